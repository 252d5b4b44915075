package fs

import (
	"context"
)

// FileSystem defines the interface that NFS operations will use to interact
// with the underlying storage system. It abstracts away storage implementation
// details to allow different backends to be used with the same NFS protocol
// layer. All implementations in this repository are read-only; mutation is
// rejected at the protocol layer before it ever reaches a FileSystem.
type FileSystem interface {
	// Root returns the file handle of the filesystem root directory.
	Root() *FileHandle

	// Resolve validates a serialized file handle and returns its structured
	// form. It fails with ErrStale when the encoding is malformed, the
	// handle belongs to a different filesystem or server run, or it
	// references an inode outside the valid range.
	Resolve(fh []byte) (*FileHandle, error)

	// GetAttr retrieves attributes for the file identified by the handle.
	// Returns file information including type, size, permissions, timestamps, etc.
	GetAttr(ctx context.Context, fh *FileHandle) (FileInfo, error)

	// Lookup finds a file by name within a directory.
	// Returns the child's handle and its attributes. The names "." and ".."
	// resolve like any other entry; looking up "." returns the directory
	// itself without a scan.
	Lookup(ctx context.Context, dir *FileHandle, name string) (*FileHandle, FileInfo, error)

	// Access reports which of the requested permission bits are granted for
	// the file. Read, lookup and execute classes may be granted; write
	// classes never are.
	Access(ctx context.Context, fh *FileHandle, mode uint32) (uint32, error)

	// Read reads data from a file at the specified offset.
	// Returns the data read, whether the end of file was reached, and any
	// error. Short reads happen only at end of file.
	Read(ctx context.Context, fh *FileHandle, offset uint64, count uint32) ([]byte, bool, error)

	// Readlink reads the target of a symbolic link.
	// Returns the target path and any error.
	Readlink(ctx context.Context, fh *FileHandle) (string, error)

	// ReadDir reads the contents of a directory.
	// cookie is a position marker: 0 starts from the beginning, and the
	// cookie of the last entry from a previous call resumes directly after
	// it. count limits the number of entries returned; 0 means no limit.
	// Returns the entries, whether the end of the directory was reached,
	// and any error. A cookie pointing past the end of the directory fails
	// with ErrBadCookie.
	ReadDir(ctx context.Context, dir *FileHandle, cookie uint64, count uint32) ([]DirEntry, bool, error)

	// StatFS retrieves file system statistics.
	// Returns information about total space, free space, etc.
	StatFS(ctx context.Context) (FSStat, error)
}
