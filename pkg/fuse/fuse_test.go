package fuse

import (
	"context"
	"os"
	"testing"

	"bazil.org/fuse"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/fs/ext4"
)

func newTestFS(t *testing.T, build func(b *ext4img.Builder)) *FS {
	t.Helper()

	b := ext4img.New()
	if build != nil {
		build(b)
	}
	img, err := b.Build()
	if err != nil {
		t.Fatalf("building fixture image: %v", err)
	}
	fsys, err := ext4.NewFileSystem(img.Reader())
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	return New(fsys)
}

func TestRootAttr(t *testing.T) {
	f := newTestFS(t, nil)

	node, err := f.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	var attr fuse.Attr
	if err := node.Attr(context.Background(), &attr); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if !attr.Mode.IsDir() {
		t.Errorf("Root mode %v is not a directory", attr.Mode)
	}
	if attr.Nlink < 2 {
		t.Errorf("Root nlink = %d, want at least 2", attr.Nlink)
	}
}

func TestLookupAndRead(t *testing.T) {
	content := []byte("mounted content")
	f := newTestFS(t, func(b *ext4img.Builder) {
		b.File(b.Root(), "hello.txt", content)
	})
	ctx := context.Background()

	root, _ := f.Root()
	dir := root.(*Dir)

	node, err := dir.Lookup(ctx, "hello.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	file, ok := node.(*File)
	if !ok {
		t.Fatalf("Lookup returned %T, want *File", node)
	}

	var attr fuse.Attr
	if err := file.Attr(ctx, &attr); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if attr.Size != uint64(len(content)) {
		t.Errorf("Size = %d, want %d", attr.Size, len(content))
	}
	if attr.Mode&os.ModeType != 0 {
		t.Errorf("Mode %v is not a regular file", attr.Mode)
	}

	req := &fuse.ReadRequest{Offset: 8, Size: 64}
	resp := &fuse.ReadResponse{}
	if err := file.Read(ctx, req, resp); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(resp.Data) != string(content[8:]) {
		t.Errorf("Read = %q, want %q", resp.Data, content[8:])
	}
}

func TestLookupMissing(t *testing.T) {
	f := newTestFS(t, nil)
	root, _ := f.Root()

	_, err := root.(*Dir).Lookup(context.Background(), "nope")
	if err != fuse.ENOENT {
		t.Errorf("Lookup error = %v, want ENOENT", err)
	}
}

func TestReadDirAll(t *testing.T) {
	f := newTestFS(t, func(b *ext4img.Builder) {
		b.File(b.Root(), "a", []byte("x"))
		b.Dir(b.Root(), "d")
		b.Symlink(b.Root(), "l", "a")
	})

	root, _ := f.Root()
	entries, err := root.(*Dir).ReadDirAll(context.Background())
	if err != nil {
		t.Fatalf("ReadDirAll: %v", err)
	}

	types := make(map[string]fuse.DirentType)
	for _, ent := range entries {
		if ent.Inode == 0 {
			t.Errorf("Entry %q has inode 0", ent.Name)
		}
		types[ent.Name] = ent.Type
	}
	for name, want := range map[string]fuse.DirentType{
		"a": fuse.DT_File,
		"d": fuse.DT_Dir,
		"l": fuse.DT_Link,
	} {
		if got, ok := types[name]; !ok || got != want {
			t.Errorf("Entry %q type = %v (present %v), want %v", name, got, ok, want)
		}
	}
}

func TestMountOptionSet(t *testing.T) {
	base := mountOptions(MountOptions{MountPoint: "/mnt/x"})
	if len(base) != 3 {
		t.Errorf("Base option set has %d options, want 3 (fsname, subtype, ro)", len(base))
	}

	all := mountOptions(MountOptions{MountPoint: "/mnt/x", AllowOther: true})
	if len(all) != len(base)+1 {
		t.Errorf("AllowOther option set has %d options, want %d", len(all), len(base)+1)
	}
}

func TestReadlinkNode(t *testing.T) {
	f := newTestFS(t, func(b *ext4img.Builder) {
		b.File(b.Root(), "target", []byte("x"))
		b.Symlink(b.Root(), "link", "target")
	})
	ctx := context.Background()

	root, _ := f.Root()
	node, err := root.(*Dir).Lookup(ctx, "link")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	sym, ok := node.(*Symlink)
	if !ok {
		t.Fatalf("Lookup returned %T, want *Symlink", node)
	}
	target, err := sym.Readlink(ctx, &fuse.ReadlinkRequest{})
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "target" {
		t.Errorf("Readlink = %q, want %q", target, "target")
	}
}
