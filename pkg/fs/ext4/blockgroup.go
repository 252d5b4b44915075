package ext4

// groupDesc mirrors the on-disk block group descriptor
// (struct ext4_group_desc). Volumes without the 64-bit feature store only
// the first 32 bytes; the high-half fields then stay zero.
type groupDesc struct {
	BlockBitmapLo     uint32 // 0x00
	InodeBitmapLo     uint32 // 0x04
	InodeTableLo      uint32 // 0x08
	FreeBlocksCountLo uint16 // 0x0C
	FreeInodesCountLo uint16 // 0x0E
	UsedDirsCountLo   uint16 // 0x10
	Flags             uint16 // 0x12
	ExcludeBitmapLo   uint32 // 0x14
	BlockBitmapCsumLo uint16 // 0x18
	InodeBitmapCsumLo uint16 // 0x1A
	ItableUnusedLo    uint16 // 0x1C
	Checksum          uint16 // 0x1E
	BlockBitmapHi     uint32 // 0x20
	InodeBitmapHi     uint32 // 0x24
	InodeTableHi      uint32 // 0x28
	FreeBlocksCountHi uint16 // 0x2C
	FreeInodesCountHi uint16 // 0x2E
	UsedDirsCountHi   uint16 // 0x30
	ItableUnusedHi    uint16 // 0x32
	ExcludeBitmapHi   uint32 // 0x34
	BlockBitmapCsumHi uint16 // 0x38
	InodeBitmapCsumHi uint16 // 0x3A
	Reserved          uint32 // 0x3C
}

// inodeTable returns the first block of the group's inode table.
func (gd *groupDesc) inodeTable(is64 bool) uint64 {
	if is64 {
		return uint64(gd.InodeTableHi)<<32 | uint64(gd.InodeTableLo)
	}
	return uint64(gd.InodeTableLo)
}

// freeBlocksCount returns the group's free block count.
func (gd *groupDesc) freeBlocksCount(is64 bool) uint64 {
	if is64 {
		return uint64(gd.FreeBlocksCountHi)<<16 | uint64(gd.FreeBlocksCountLo)
	}
	return uint64(gd.FreeBlocksCountLo)
}

// freeInodesCount returns the group's free inode count.
func (gd *groupDesc) freeInodesCount(is64 bool) uint64 {
	if is64 {
		return uint64(gd.FreeInodesCountHi)<<16 | uint64(gd.FreeInodesCountLo)
	}
	return uint64(gd.FreeInodesCountLo)
}
