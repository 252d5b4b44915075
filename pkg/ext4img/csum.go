package ext4img

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// crc32c chains a raw Castagnoli CRC, matching the seed and inversion
// convention of the kernel's metadata checksums.
func crc32c(crc uint32, p []byte) uint32 {
	return ^crc32.Update(^crc, castagnoli, p)
}
