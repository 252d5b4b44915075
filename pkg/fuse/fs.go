// Package fuse exposes a read-only volume through the kernel FUSE
// interface, bridging the FileSystem abstraction to bazil.org/fuse.
package fuse

import (
	"errors"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/example/ext4nfs/pkg/fs"
)

// attrValidity is how long the kernel may cache attributes. The volume
// is immutable while mounted, so a long window is safe.
const attrValidity = time.Hour

// FS bridges a FileSystem to the FUSE serve loop.
type FS struct {
	fsys fs.FileSystem
}

// New creates a FUSE bridge over the given filesystem.
func New(fsys fs.FileSystem) *FS {
	return &FS{fsys: fsys}
}

// Root returns the root directory node.
func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fsys: f.fsys, fh: f.fsys.Root()}, nil
}

// newNode wraps a file handle in the node type matching its kind.
func newNode(fsys fs.FileSystem, fh *fs.FileHandle, info *fs.FileInfo) fusefs.Node {
	switch info.Type {
	case fs.FileTypeDirectory:
		return &Dir{fsys: fsys, fh: fh}
	case fs.FileTypeSymlink:
		return &Symlink{fsys: fsys, fh: fh}
	default:
		return &File{fsys: fsys, fh: fh}
	}
}

// fillAttr converts FileInfo into the kernel attribute structure.
func fillAttr(info *fs.FileInfo, attr *fuse.Attr) {
	attr.Valid = attrValidity
	attr.Inode = info.Ino
	attr.Size = uint64(info.Size)
	attr.Blocks = info.Blocks
	attr.Atime = info.AccessTime
	attr.Mtime = info.ModifyTime
	attr.Ctime = info.ChangeTime
	attr.Mode = goFileMode(info)
	attr.Nlink = info.Nlink
	attr.Uid = info.Uid
	attr.Gid = info.Gid
	attr.Rdev = uint32(info.Rdev)
	attr.BlockSize = info.BlockSize
}

func goFileMode(info *fs.FileInfo) os.FileMode {
	mode := os.FileMode(info.Mode & fs.ModeMask)
	if info.Mode&fs.ModeSetUID != 0 {
		mode |= os.ModeSetuid
	}
	if info.Mode&fs.ModeSetGID != 0 {
		mode |= os.ModeSetgid
	}
	if info.Mode&fs.ModeSticky != 0 {
		mode |= os.ModeSticky
	}
	switch info.Type {
	case fs.FileTypeDirectory:
		mode |= os.ModeDir
	case fs.FileTypeSymlink:
		mode |= os.ModeSymlink
	case fs.FileTypeBlock:
		mode |= os.ModeDevice
	case fs.FileTypeChar:
		mode |= os.ModeDevice | os.ModeCharDevice
	case fs.FileTypeFIFO:
		mode |= os.ModeNamedPipe
	case fs.FileTypeSocket:
		mode |= os.ModeSocket
	}
	return mode
}

func direntType(ft fs.FileType) fuse.DirentType {
	switch ft {
	case fs.FileTypeRegular:
		return fuse.DT_File
	case fs.FileTypeDirectory:
		return fuse.DT_Dir
	case fs.FileTypeSymlink:
		return fuse.DT_Link
	case fs.FileTypeBlock:
		return fuse.DT_Block
	case fs.FileTypeChar:
		return fuse.DT_Char
	case fs.FileTypeFIFO:
		return fuse.DT_FIFO
	case fs.FileTypeSocket:
		return fuse.DT_Socket
	default:
		return fuse.DT_Unknown
	}
}

// mapError converts filesystem errors to kernel errnos.
func mapError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, fs.ErrNotDir):
		return fuse.Errno(syscall.ENOTDIR)
	case errors.Is(err, fs.ErrIsDir):
		return fuse.Errno(syscall.EISDIR)
	case errors.Is(err, fs.ErrStale), errors.Is(err, fs.ErrInvalidHandle):
		return fuse.Errno(syscall.ESTALE)
	case errors.Is(err, fs.ErrNameTooLong):
		return fuse.Errno(syscall.ENAMETOOLONG)
	case errors.Is(err, fs.ErrInvalid):
		return fuse.Errno(syscall.EINVAL)
	default:
		return fuse.Errno(syscall.EIO)
	}
}
