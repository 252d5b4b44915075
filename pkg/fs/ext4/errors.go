package ext4

import (
	"errors"
	"fmt"

	"github.com/example/ext4nfs/pkg/fs"
)

// Sentinel errors for the on-disk reader. OpenVolume failures are fatal to
// the caller; the per-object errors wrap fs.ErrIO so the protocol layer
// reports the object unreadable instead of leaking format details.
var (
	// ErrCorruptSuperblock means the superblock failed validation and the
	// volume cannot be served.
	ErrCorruptSuperblock = errors.New("corrupt superblock")

	// ErrUnsupportedFeature means the volume uses on-disk features this
	// reader does not decode. Refusing is safer than misreading.
	ErrUnsupportedFeature = errors.New("unsupported filesystem feature")

	// ErrInvalidInode means an inode number is out of range or its record
	// cannot be decoded.
	ErrInvalidInode = fmt.Errorf("invalid inode: %w", fs.ErrIO)

	// ErrCorruptExtentTree means a file's block mapping (extent tree or
	// legacy indirect blocks) is inconsistent: bad magic, out-of-range
	// pointers, overlapping ranges, or a failed checksum.
	ErrCorruptExtentTree = fmt.Errorf("corrupt extent tree: %w", fs.ErrIO)

	// ErrCorruptDirectory means a directory block or hashed-tree index
	// cannot be decoded.
	ErrCorruptDirectory = fmt.Errorf("corrupt directory: %w", fs.ErrIO)
)
