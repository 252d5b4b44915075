package ext4

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// crc32c chains a Castagnoli CRC over p using the raw convention of the
// kernel's metadata checksums: the seed is used as-is and the result is
// not inverted. Go's crc32.Update inverts on both sides, so both
// inversions are undone here.
func crc32c(crc uint32, p []byte) uint32 {
	return ^crc32.Update(^crc, castagnoli, p)
}

// csumSeedForInode derives the per-inode checksum seed from the volume
// seed, the inode number and its generation.
func (v *Volume) csumSeedForInode(ino *inode) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(ino.num))
	seed := crc32c(v.csumSeed, buf[:])
	binary.LittleEndian.PutUint32(buf[:], ino.raw.Generation)
	return crc32c(seed, buf[:])
}
