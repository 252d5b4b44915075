package ext4

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/fs"
)

func TestRootHandle(t *testing.T) {
	fsys, _ := openFS(t, ext4img.New())

	rt := fsys.Root()
	if rt.Inode != RootInode {
		t.Fatalf("root handle inode = %d, want %d", rt.Inode, RootInode)
	}

	resolved, err := fsys.Resolve(rt.Serialize())
	if err != nil {
		t.Fatalf("Resolve(root): %v", err)
	}
	if diff := cmp.Diff(rt, resolved); diff != "" {
		t.Errorf("resolved handle mismatch (-want +got):\n%s", diff)
	}

	info, err := fsys.GetAttr(context.Background(), rt)
	if err != nil {
		t.Fatalf("GetAttr(root): %v", err)
	}
	if info.Type != fs.FileTypeDirectory {
		t.Errorf("root type = %v, want directory", info.Type)
	}
	if info.Ino != RootInode {
		t.Errorf("root ino = %d, want %d", info.Ino, RootInode)
	}
	// ".", ".." and lost+found's parent entry.
	if info.Nlink != 3 {
		t.Errorf("root nlink = %d, want 3", info.Nlink)
	}
}

func TestResolveRejects(t *testing.T) {
	fsys, _ := openFS(t, ext4img.New())
	base := fsys.Root().Serialize()

	mutate := func(i int) []byte {
		raw := append([]byte(nil), base...)
		raw[i] ^= 0xFF
		return raw
	}
	craft := func(inode uint64) []byte {
		fh := fs.FileHandle{
			FileSystemID: fsys.fsID,
			Inode:        inode,
			Generation:   fsys.generation,
		}
		return fh.Serialize()
	}

	testCases := []struct {
		name    string
		raw     []byte
		wantErr error
	}{
		{"empty", nil, fs.ErrStale},
		{"truncated", base[:15], fs.ErrStale},
		{"oversized", append(append([]byte(nil), base...), 0), fs.ErrStale},
		{"wrong filesystem id", mutate(0), fs.ErrStale},
		{"wrong generation", mutate(15), fs.ErrStale},
		{"inode zero", craft(0), fs.ErrStale},
		{"inode beyond volume", craft(fsys.Volume().InodesCount() + 1), fs.ErrStale},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fsys.Resolve(tc.raw); !errors.Is(err, tc.wantErr) {
				t.Errorf("Resolve error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	b := ext4img.New()
	root := b.Root()
	b.File(root, "hello.txt", []byte("hello, world\n"))
	docs := b.Dir(root, "docs")
	b.File(docs, "readme", []byte("read me"))
	fsys, _ := openFS(t, b)

	ctx := context.Background()

	// A regular walk: child handle resolves back to the same file.
	fh, info, err := fsys.Lookup(ctx, fsys.Root(), "hello.txt")
	if err != nil {
		t.Fatalf("Lookup(hello.txt): %v", err)
	}
	if info.Type != fs.FileTypeRegular || info.Size != 13 {
		t.Errorf("hello.txt info = %v/%d, want regular/13", info.Type, info.Size)
	}
	if resolved, err := fsys.Resolve(fh.Serialize()); err != nil || resolved.Inode != fh.Inode {
		t.Errorf("child handle does not round-trip: %v", err)
	}

	// Dot entries walk to the directory itself and to the parent.
	docsFh := mustLookup(t, fsys, fsys.Root(), "docs")
	if _, info, err = fsys.Lookup(ctx, docsFh, "."); err != nil || info.Ino != docsFh.Inode {
		t.Errorf("Lookup(docs, .) = ino %d, %v; want %d", info.Ino, err, docsFh.Inode)
	}
	if _, info, err = fsys.Lookup(ctx, docsFh, ".."); err != nil || info.Ino != RootInode {
		t.Errorf("Lookup(docs, ..) = ino %d, %v; want root", info.Ino, err)
	}
	if _, info, err = fsys.Lookup(ctx, fsys.Root(), ".."); err != nil || info.Ino != RootInode {
		t.Errorf("Lookup(root, ..) = ino %d, %v; want root", info.Ino, err)
	}

	testCases := []struct {
		name    string
		dir     *fs.FileHandle
		arg     string
		wantErr error
	}{
		{"missing entry", fsys.Root(), "absent", fs.ErrNotExist},
		{"empty name", fsys.Root(), "", fs.ErrInvalidName},
		{"embedded slash", fsys.Root(), "a/b", fs.ErrInvalidName},
		{"embedded nul", fsys.Root(), "bad\x00name", fs.ErrInvalidName},
		{"name too long", fsys.Root(), strings.Repeat("n", 256), fs.ErrNameTooLong},
		{"lookup in file", fh, "x", fs.ErrNotDir},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := fsys.Lookup(ctx, tc.dir, tc.arg); !errors.Is(err, tc.wantErr) {
				t.Errorf("Lookup(%q) error = %v, want %v", tc.arg, err, tc.wantErr)
			}
		})
	}
}

func TestAccess(t *testing.T) {
	b := ext4img.New()
	b.File(b.Root(), "plain", nil)
	fsys, _ := openFS(t, b)

	ctx := context.Background()
	fileFh := mustLookup(t, fsys, fsys.Root(), "plain")

	const allBits = fs.AccessRead | fs.AccessLookup | fs.AccessModify |
		fs.AccessExtend | fs.AccessDelete | fs.AccessExecute

	testCases := []struct {
		name string
		fh   *fs.FileHandle
		ask  uint32
		want uint32
	}{
		{"directory all bits", fsys.Root(), allBits, fs.AccessRead | fs.AccessLookup | fs.AccessExecute},
		{"directory lookup only", fsys.Root(), fs.AccessLookup, fs.AccessLookup},
		{"file all bits", fileFh, allBits, fs.AccessRead | fs.AccessExecute},
		{"file write bits", fileFh, fs.AccessModify | fs.AccessExtend | fs.AccessDelete, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fsys.Access(ctx, tc.fh, tc.ask)
			if err != nil {
				t.Fatalf("Access: %v", err)
			}
			if got != tc.want {
				t.Errorf("Access(%#x) = %#x, want %#x", tc.ask, got, tc.want)
			}
		})
	}
}

func TestReadWrongType(t *testing.T) {
	b := ext4img.New()
	root := b.Root()
	b.Dir(root, "sub")
	b.Symlink(root, "ln", "sub")
	b.Fifo(root, "pipe")
	fsys, _ := openFS(t, b)

	ctx := context.Background()
	testCases := []struct {
		name    string
		wantErr error
	}{
		{"sub", fs.ErrIsDir},
		{"ln", fs.ErrInvalid},
		{"pipe", fs.ErrInvalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fh := mustLookup(t, fsys, fsys.Root(), tc.name)
			if _, _, err := fsys.Read(ctx, fh, 0, 16); !errors.Is(err, tc.wantErr) {
				t.Errorf("Read(%s) error = %v, want %v", tc.name, err, tc.wantErr)
			}
		})
	}
}

func TestReadDirPagination(t *testing.T) {
	const linkCount = 10000

	b := ext4img.New()
	root := b.Root()
	big := b.Dir(root, "big")
	payload := b.File(root, "payload", nil)
	for i := 0; i < linkCount; i++ {
		b.HardLink(big, fmt.Sprintf("entry%05d", i), payload)
	}
	fsys, _ := openFS(t, b)

	ctx := context.Background()
	dh := mustLookup(t, fsys, fsys.Root(), "big")
	total := linkCount + 2

	// Sweep the directory in fixed-size pages and account for every
	// entry exactly once.
	seen := make(map[string]bool, total)
	var pages int
	var cookie uint64
	for {
		entries, eof, err := fsys.ReadDir(ctx, dh, cookie, 128)
		if err != nil {
			t.Fatalf("ReadDir(cookie %d): %v", cookie, err)
		}
		pages++
		for _, ent := range entries {
			if seen[ent.Name] {
				t.Fatalf("entry %q returned twice", ent.Name)
			}
			seen[ent.Name] = true
			if ent.Cookie != cookie+1 {
				t.Fatalf("entry %q cookie = %d, want %d", ent.Name, ent.Cookie, cookie+1)
			}
			cookie = ent.Cookie
		}
		if eof {
			break
		}
		if len(entries) != 128 {
			t.Fatalf("non-final page has %d entries, want 128", len(entries))
		}
	}

	if wantPages := (total + 127) / 128; pages != wantPages {
		t.Errorf("sweep took %d pages, want %d", pages, wantPages)
	}
	if len(seen) != total {
		t.Fatalf("sweep returned %d distinct entries, want %d", len(seen), total)
	}
	for i := 0; i < linkCount; i += 997 {
		if name := fmt.Sprintf("entry%05d", i); !seen[name] {
			t.Errorf("sweep is missing %q", name)
		}
	}

	// Resuming exactly at the end is an empty page, not an error.
	entries, eof, err := fsys.ReadDir(ctx, dh, uint64(total), 128)
	if err != nil || len(entries) != 0 || !eof {
		t.Errorf("ReadDir(at end) = %d entries, eof %v, %v; want 0, true, nil", len(entries), eof, err)
	}

	// A cookie past the end cannot come from this directory.
	if _, _, err := fsys.ReadDir(ctx, dh, uint64(total)+1, 128); !errors.Is(err, fs.ErrBadCookie) {
		t.Errorf("ReadDir(past end) error = %v, want %v", err, fs.ErrBadCookie)
	}

	// Resuming mid-stream continues with the next entry.
	entries, _, err = fsys.ReadDir(ctx, dh, 5000, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir(resume) = %d entries, %v", len(entries), err)
	}
	if want := fmt.Sprintf("entry%05d", 5000-2); entries[0].Name != want {
		t.Errorf("resumed at %q, want %q", entries[0].Name, want)
	}

	// Unlimited count returns the whole stream at once.
	entries, eof, err = fsys.ReadDir(ctx, dh, 0, 0)
	if err != nil || !eof || len(entries) != total {
		t.Errorf("ReadDir(unlimited) = %d entries, eof %v, %v; want %d, true, nil",
			len(entries), eof, err, total)
	}
	if entries[0].Attributes == nil || entries[0].Attributes.Type != fs.FileTypeDirectory {
		t.Error("dot entry carries no directory attributes")
	}
}

func TestStatFS(t *testing.T) {
	fsys, img := openFS(t, ext4img.New(ext4img.WithBlocks(2048)))

	stat, err := fsys.StatFS(context.Background())
	if err != nil {
		t.Fatalf("StatFS: %v", err)
	}
	if want := img.Blocks * img.BlockSize; stat.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d", stat.TotalBytes, want)
	}
	if stat.TotalFiles == 0 || stat.FreeFiles >= stat.TotalFiles {
		t.Errorf("file counts out of range: %d total, %d free", stat.TotalFiles, stat.FreeFiles)
	}
	if stat.NameMaxLength != 255 {
		t.Errorf("NameMaxLength = %d, want 255", stat.NameMaxLength)
	}
}
