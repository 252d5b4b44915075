package nfs

import (
	"math"
	"testing"
	"time"

	"github.com/example/ext4nfs/pkg/fs"
)

func TestFileInfoToFattr3(t *testing.T) {
	info := &fs.FileInfo{
		Type:       fs.FileTypeChar,
		Mode:       0660,
		Ino:        4242,
		Size:       1000,
		Uid:        1,
		Gid:        2,
		Nlink:      1,
		Rdev:       5<<32 | 1,
		Blocks:     8,
		AccessTime: time.Unix(1600000000, 123),
		ModifyTime: time.Unix(1600000001, 456),
		ChangeTime: time.Unix(1600000002, 789),
	}

	attr := FileInfoToFattr3(info, 0xABCD)

	// The file id is the inode number, never the size
	if attr.FileID != 4242 {
		t.Errorf("Wrong fileid: got %d, want 4242", attr.FileID)
	}
	if attr.Type != TypeChr {
		t.Errorf("Wrong type: got %d, want %d", attr.Type, TypeChr)
	}
	if attr.Mode != 0660 {
		t.Errorf("Wrong mode: got %o", attr.Mode)
	}
	if attr.Size != 1000 {
		t.Errorf("Wrong size: got %d", attr.Size)
	}
	if attr.Used != 8*512 {
		t.Errorf("Wrong used: got %d, want %d", attr.Used, 8*512)
	}
	if attr.RdevMajor != 5 || attr.RdevMinor != 1 {
		t.Errorf("Wrong rdev: got %d/%d, want 5/1", attr.RdevMajor, attr.RdevMinor)
	}
	if attr.FSID != 0xABCD {
		t.Errorf("Wrong fsid: got %d", attr.FSID)
	}
	if attr.Atime != (FileTime{Seconds: 1600000000, Nano: 123}) {
		t.Errorf("Wrong atime: %+v", attr.Atime)
	}
	if attr.Ctime != (FileTime{Seconds: 1600000002, Nano: 789}) {
		t.Errorf("Wrong ctime: %+v", attr.Ctime)
	}
}

func TestFileInfoTypeMapping(t *testing.T) {
	testCases := []struct {
		fsType fs.FileType
		want   uint32
	}{
		{fs.FileTypeRegular, TypeReg},
		{fs.FileTypeDirectory, TypeDir},
		{fs.FileTypeSymlink, TypeLnk},
		{fs.FileTypeBlock, TypeBlk},
		{fs.FileTypeChar, TypeChr},
		{fs.FileTypeFIFO, TypeFifo},
		{fs.FileTypeSocket, TypeSock},
	}

	for _, tc := range testCases {
		attr := FileInfoToFattr3(&fs.FileInfo{Type: tc.fsType}, 1)
		if attr.Type != tc.want {
			t.Errorf("Type %v: got %d, want %d", tc.fsType, attr.Type, tc.want)
		}
	}
}

func TestTimeClamping(t *testing.T) {
	// Times before the epoch clamp to zero
	before := timeToNFS(time.Unix(-5, 0))
	if before != (FileTime{}) {
		t.Errorf("Pre-epoch time: got %+v, want zero", before)
	}

	// Times past the 32-bit horizon clamp to the maximum
	far := timeToNFS(time.Unix(math.MaxUint32+100, 0))
	if far.Seconds != math.MaxUint32 {
		t.Errorf("Far future time: got %+v", far)
	}
}

func TestCredsFromAuth(t *testing.T) {
	// An AUTH_SYS credential carries the caller identity through
	body := EncodeAuthSys(&AuthSysCred{
		Machine: "client1",
		UID:     500,
		GID:     501,
		Groups:  []uint32{501, 44},
	})
	creds := CredsFromAuth(OpaqueAuth{Flavor: AuthSys, Body: body})
	if creds.UID != 500 || creds.GID != 501 || len(creds.Groups) != 2 {
		t.Errorf("Wrong credentials: %+v", creds)
	}

	// AUTH_NONE maps to the anonymous user
	anon := CredsFromAuth(OpaqueAuth{Flavor: AuthNone})
	if anon.UID != NobodyUID || anon.GID != NobodyGID {
		t.Errorf("Wrong anonymous credentials: %+v", anon)
	}

	// A corrupt AUTH_SYS body also falls back to anonymous
	bad := CredsFromAuth(OpaqueAuth{Flavor: AuthSys, Body: []byte{1, 2}})
	if bad.UID != NobodyUID {
		t.Errorf("Wrong fallback credentials: %+v", bad)
	}
}
