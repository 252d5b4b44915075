package client

import (
	"context"
	"time"

	"github.com/example/ext4nfs/pkg/nfs"
)

// NFSClient defines the interface for NFS client operations against a
// read-only export.
type NFSClient interface {
	// Null probes the server without touching the filesystem
	Null(ctx context.Context) error

	// Mount and export discovery

	// Mount returns the file handle of the named export
	Mount(ctx context.Context, path string) ([]byte, error)

	// Unmount releases the named export
	Unmount(ctx context.Context, path string) error

	// Exports lists the server's export table
	Exports(ctx context.Context) ([]nfs.ExportEntry, error)

	// GetRootFileHandle retrieves the root directory file handle from the server
	GetRootFileHandle(ctx context.Context) ([]byte, error)

	// File attribute and lookup operations

	// GetAttr retrieves attributes for a file or directory
	GetAttr(ctx context.Context, fileHandle []byte) (*nfs.Fattr3, error)

	// Lookup looks up a file name in a directory
	// Returns the file handle, attributes, and any error
	Lookup(ctx context.Context, dirHandle []byte, name string) ([]byte, *nfs.Fattr3, error)

	// Access reports the permission bits granted for the file
	Access(ctx context.Context, fileHandle []byte, mode uint32) (uint32, error)

	// Readlink reads the target of a symbolic link
	Readlink(ctx context.Context, fileHandle []byte) (string, error)

	// Read operations

	// Read reads data from a file at the specified offset
	// Returns the data read, a boolean indicating if EOF was reached, and any error
	Read(ctx context.Context, fileHandle []byte, offset uint64, count uint32) ([]byte, bool, error)

	// ReadAll reads a whole file until EOF
	ReadAll(ctx context.Context, fileHandle []byte) ([]byte, error)

	// Directory operations

	// ReadDirPage performs one cookie-paginated READDIR call
	ReadDirPage(ctx context.Context, dirHandle []byte, cookie uint64, cookieVerf []byte, count uint32) (*nfs.ReadDir3Res, error)

	// ReadDir reads the complete contents of a directory
	ReadDir(ctx context.Context, dirHandle []byte) ([]nfs.DirEntry3, error)

	// ReadDirPlusPage performs one READDIRPLUS call
	ReadDirPlusPage(ctx context.Context, dirHandle []byte, cookie uint64, cookieVerf []byte, dirCount, maxCount uint32) (*nfs.ReadDirPlus3Res, error)

	// Filesystem information

	// FSStat retrieves file system statistics
	FSStat(ctx context.Context, rootHandle []byte) (*nfs.FSStat3Res, error)

	// FSInfo retrieves static server limits
	FSInfo(ctx context.Context, rootHandle []byte) (*nfs.FSInfo3Res, error)

	// PathConf retrieves pathname limits
	PathConf(ctx context.Context, fileHandle []byte) (*nfs.PathConf3Res, error)

	// Path operations

	// LookupPath resolves a file path to a file handle, starting from the root
	LookupPath(ctx context.Context, path string) ([]byte, *nfs.Fattr3, error)

	// Resource management

	// Close closes the client connection and releases all resources
	Close() error
}

// CacheableClient extends NFSClient with cache management capabilities
type CacheableClient interface {
	NFSClient

	// ClearCache clears all cached handles
	ClearCache() error

	// SetCacheTTL sets the time-to-live for cache entries
	SetCacheTTL(duration time.Duration)
}

var (
	_ NFSClient       = (*Client)(nil)
	_ CacheableClient = (*Client)(nil)
)
