package ext4

import (
	"fmt"

	"github.com/example/ext4nfs/pkg/fs"
)

// fastSymlinkMax is the longest target stored inline in the inode's
// 60-byte block area.
const fastSymlinkMax = 59

// isFastSymlink reports whether the link target lives inline in the
// inode record. Inline targets occupy no data blocks; an extended
// attribute block still counts against the sector total and is backed
// out before the test.
func (ino *inode) isFastSymlink(blockSize uint64) bool {
	if ino.usesExtents() || ino.raw.Flags&flagInlineData != 0 {
		return false
	}
	sectors := uint64(ino.raw.BlocksHi)<<32 | uint64(ino.raw.BlocksLo)
	acl := uint64(ino.raw.FileACLHi)<<32 | uint64(ino.raw.FileACLLo)
	if acl != 0 && sectors >= blockSize/512 {
		sectors -= blockSize / 512
	}
	return sectors == 0
}

// readSymlink returns the target path of a symbolic link. Targets up to
// fastSymlinkMax bytes are stored inline; longer ones occupy a data
// block read like regular file content.
func (v *Volume) readSymlink(ino *inode) (string, error) {
	size := ino.size()
	if size == 0 || size >= v.blockSize {
		return "", fmt.Errorf("%w: symlink inode %d has target length %d",
			fs.ErrIO, ino.num, size)
	}

	if size <= fastSymlinkMax && ino.isFastSymlink(v.blockSize) {
		return string(ino.raw.Block[:size]), nil
	}

	data, _, err := v.readRange(ino, 0, uint32(size))
	if err != nil {
		return "", err
	}
	if uint64(len(data)) != size {
		return "", fmt.Errorf("%w: symlink inode %d short target", fs.ErrIO, ino.num)
	}
	return string(data), nil
}
