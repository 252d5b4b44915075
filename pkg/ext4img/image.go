package ext4img

import "bytes"

// SuperblockOffset is the byte offset of the superblock in any image.
const SuperblockOffset = superblockOffset

// Image is a finished volume image plus enough geometry to locate
// structures inside it, for tests that patch bytes directly.
type Image struct {
	Bytes          []byte
	BlockSize      uint64
	Blocks         uint64
	InodeSize      uint32
	InodesPerGroup uint32

	inodeTables []uint64
}

// Reader wraps the image bytes for io.ReaderAt consumers.
func (im *Image) Reader() *bytes.Reader {
	return bytes.NewReader(im.Bytes)
}

// InodeOffset returns the byte offset of an inode record.
func (im *Image) InodeOffset(num uint64) uint64 {
	g := (num - 1) / uint64(im.InodesPerGroup)
	idx := (num - 1) % uint64(im.InodesPerGroup)
	return im.inodeTables[g]*im.BlockSize + idx*uint64(im.InodeSize)
}
