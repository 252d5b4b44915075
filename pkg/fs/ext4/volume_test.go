package ext4

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/fs"
)

// buildImage finalizes a fixture volume, failing the test on any
// builder error.
func buildImage(t *testing.T, b *ext4img.Builder) *ext4img.Image {
	t.Helper()
	img, err := b.Build()
	if err != nil {
		t.Fatalf("building fixture image: %v", err)
	}
	return img
}

// openFS builds the fixture and mounts it through the public entry
// point.
func openFS(t *testing.T, b *ext4img.Builder) (*FileSystem, *ext4img.Image) {
	t.Helper()
	img := buildImage(t, b)
	fsys, err := NewFileSystem(img.Reader())
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	return fsys, img
}

// reopen mounts the same image again, discarding any cached state. Used
// after patching image bytes.
func reopen(t *testing.T, img *ext4img.Image) *FileSystem {
	t.Helper()
	fsys, err := NewFileSystem(img.Reader())
	if err != nil {
		t.Fatalf("NewFileSystem after patch: %v", err)
	}
	return fsys
}

func mustLookup(t *testing.T, fsys *FileSystem, dir *fs.FileHandle, name string) *fs.FileHandle {
	t.Helper()
	fh, _, err := fsys.Lookup(context.Background(), dir, name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return fh
}

func TestOpenVolume(t *testing.T) {
	uuid := [16]byte{0xde, 0xad, 0xbe, 0xef, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	img := buildImage(t, ext4img.New(
		ext4img.WithLabel("scratch"),
		ext4img.WithUUID(uuid),
	))

	v, err := OpenVolume(img.Reader())
	if err != nil {
		t.Fatalf("OpenVolume: %v", err)
	}

	if v.BlockSize() != 1024 {
		t.Errorf("BlockSize = %d, want 1024", v.BlockSize())
	}
	if v.Label() != "scratch" {
		t.Errorf("Label = %q, want %q", v.Label(), "scratch")
	}
	if v.UUID() != uuid {
		t.Errorf("UUID = %x, want %x", v.UUID(), uuid)
	}
	if v.InodesCount() != 256 {
		t.Errorf("InodesCount = %d, want 256", v.InodesCount())
	}

	stat := v.Stat()
	if want := img.Blocks * img.BlockSize; stat.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d", stat.TotalBytes, want)
	}
	if stat.FreeBytes == 0 || stat.FreeBytes >= stat.TotalBytes {
		t.Errorf("FreeBytes = %d, out of range (0, %d)", stat.FreeBytes, stat.TotalBytes)
	}
	if stat.AvailBytes != stat.FreeBytes {
		t.Errorf("AvailBytes = %d, want FreeBytes %d", stat.AvailBytes, stat.FreeBytes)
	}
	if stat.TotalFiles != 256 {
		t.Errorf("TotalFiles = %d, want 256", stat.TotalFiles)
	}
	// Inodes 1-10 are reserved and lost+found takes inode 11.
	if stat.FreeFiles != 245 {
		t.Errorf("FreeFiles = %d, want 245", stat.FreeFiles)
	}
	if stat.NameMaxLength != 255 {
		t.Errorf("NameMaxLength = %d, want 255", stat.NameMaxLength)
	}
}

func TestOpenVolumeRejectsBadSuperblocks(t *testing.T) {
	le16 := func(img *ext4img.Image, off uint64, val uint16) {
		binary.LittleEndian.PutUint16(img.Bytes[ext4img.SuperblockOffset+off:], val)
	}
	le32 := func(img *ext4img.Image, off uint64, val uint32) {
		binary.LittleEndian.PutUint32(img.Bytes[ext4img.SuperblockOffset+off:], val)
	}

	testCases := []struct {
		name    string
		build   func() *ext4img.Builder
		patch   func(img *ext4img.Image)
		wantErr error
	}{
		{
			name:    "bad magic",
			patch:   func(img *ext4img.Image) { le16(img, 0x38, 0) },
			wantErr: ErrCorruptSuperblock,
		},
		{
			name:    "block size too large",
			patch:   func(img *ext4img.Image) { le32(img, 0x18, 7) },
			wantErr: ErrCorruptSuperblock,
		},
		{
			name:    "zero inodes per group",
			patch:   func(img *ext4img.Image) { le32(img, 0x28, 0) },
			wantErr: ErrCorruptSuperblock,
		},
		{
			name:    "zero block count",
			patch:   func(img *ext4img.Image) { le32(img, 0x04, 0) },
			wantErr: ErrCorruptSuperblock,
		},
		{
			name:    "inline data not supported",
			build:   func() *ext4img.Builder { return ext4img.New(ext4img.WithIncompatFlags(0x8000)) },
			wantErr: ErrUnsupportedFeature,
		},
		{
			name:    "encryption not supported",
			build:   func() *ext4img.Builder { return ext4img.New(ext4img.WithIncompatFlags(0x10000)) },
			wantErr: ErrUnsupportedFeature,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			build := tc.build
			if build == nil {
				build = func() *ext4img.Builder { return ext4img.New() }
			}
			img := buildImage(t, build())
			if tc.patch != nil {
				tc.patch(img)
			}

			_, err := OpenVolume(img.Reader())
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("OpenVolume error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestOpenVolumeTruncatedDevice(t *testing.T) {
	img := buildImage(t, ext4img.New())

	// Cut the device off before the superblock.
	_, err := OpenVolume(bytes.NewReader(img.Bytes[:600]))
	if err == nil {
		t.Fatal("OpenVolume on truncated device succeeded, want error")
	}
}

func TestOpenVolumeRecoverFlag(t *testing.T) {
	// An unreplayed journal is tolerated on a read-only mount.
	img := buildImage(t, ext4img.New(ext4img.WithIncompatFlags(0x4)))
	if _, err := OpenVolume(img.Reader()); err != nil {
		t.Fatalf("OpenVolume with recover flag: %v", err)
	}
}

func TestMultiGroupVolume(t *testing.T) {
	// Two block groups; with 32 inodes per group the later files land
	// in group 1 and exercise the second descriptor and inode table.
	b := ext4img.New(
		ext4img.WithBlocks(12000),
		ext4img.WithInodes(64),
		ext4img.With64Bit(),
	)
	root := b.Root()
	want := make(map[string]string)
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("f%02d", i)
		content := fmt.Sprintf("contents of file %d", i)
		b.File(root, name, []byte(content))
		want[name] = content
	}
	fsys, _ := openFS(t, b)

	ctx := context.Background()
	sawSecondGroup := false
	for name, content := range want {
		fh, info, err := fsys.Lookup(ctx, fsys.Root(), name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if info.Ino > 32 {
			sawSecondGroup = true
		}
		data, eof, err := fsys.Read(ctx, fh, 0, 1024)
		if err != nil {
			t.Fatalf("Read(%q): %v", name, err)
		}
		if string(data) != content {
			t.Errorf("Read(%q) = %q, want %q", name, data, content)
		}
		if !eof {
			t.Errorf("Read(%q) eof = false, want true", name)
		}
	}
	if !sawSecondGroup {
		t.Error("no fixture inode landed in the second block group")
	}
}
