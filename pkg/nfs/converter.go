package nfs

import (
	"math"
	"time"

	"github.com/example/ext4nfs/pkg/fs"
)

// FileInfoToFattr3 converts filesystem FileInfo to the wire attribute
// form. The fsid is the same value packed into file handles so clients
// see a consistent filesystem identity.
func FileInfoToFattr3(info *fs.FileInfo, fsid uint64) Fattr3 {
	var fileType uint32
	switch info.Type {
	case fs.FileTypeRegular:
		fileType = TypeReg
	case fs.FileTypeDirectory:
		fileType = TypeDir
	case fs.FileTypeSymlink:
		fileType = TypeLnk
	case fs.FileTypeBlock:
		fileType = TypeBlk
	case fs.FileTypeChar:
		fileType = TypeChr
	case fs.FileTypeFIFO:
		fileType = TypeFifo
	case fs.FileTypeSocket:
		fileType = TypeSock
	default:
		fileType = TypeReg
	}

	return Fattr3{
		Type:      fileType,
		Mode:      uint32(info.Mode),
		Nlink:     info.Nlink,
		UID:       info.Uid,
		GID:       info.Gid,
		Size:      uint64(info.Size),
		Used:      info.Blocks * 512,
		RdevMajor: uint32(info.Rdev >> 32),
		RdevMinor: uint32(info.Rdev & 0xFFFFFFFF),
		FSID:      fsid,
		FileID:    info.Ino,
		Atime:     timeToNFS(info.AccessTime),
		Mtime:     timeToNFS(info.ModifyTime),
		Ctime:     timeToNFS(info.ChangeTime),
	}
}

// timeToNFS converts a time.Time to the wire time form. Times before
// the epoch or past the 32-bit horizon are clamped rather than wrapped.
func timeToNFS(t time.Time) FileTime {
	sec := t.Unix()
	if sec < 0 {
		return FileTime{}
	}
	if sec > math.MaxUint32 {
		return FileTime{Seconds: math.MaxUint32, Nano: 999999999}
	}
	return FileTime{
		Seconds: uint32(sec),
		Nano:    uint32(t.Nanosecond()),
	}
}

// CredsFromAuth converts the RPC credential to filesystem Credentials.
// AUTH_NONE and anything unrecognized map to the anonymous user.
func CredsFromAuth(cred OpaqueAuth) fs.Credentials {
	if cred.Flavor != AuthSys {
		return fs.Credentials{
			UID:    NobodyUID,
			GID:    NobodyGID,
			Groups: nil,
		}
	}

	sys, err := DecodeAuthSys(cred.Body)
	if err != nil {
		return fs.Credentials{UID: NobodyUID, GID: NobodyGID}
	}
	return fs.Credentials{
		UID:    sys.UID,
		GID:    sys.GID,
		Groups: sys.Groups,
	}
}
