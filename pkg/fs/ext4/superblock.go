package ext4

// On-disk constants for the ext4 format. Multi-byte fields are little
// endian everywhere on disk.
const (
	// superblockOffset is the byte offset of the superblock from the
	// start of the volume, regardless of block size.
	superblockOffset = 1024

	// superblockMagic identifies an ext2/3/4 superblock.
	superblockMagic = 0xEF53

	// extentMagic identifies an extent tree node header.
	extentMagic = 0xF30A

	// RootInode is the inode number of the root directory.
	RootInode = 2

	// maxExtentDepth is the format limit on extent tree height.
	maxExtentDepth = 5

	// maxHtreeLevels bounds the hashed-tree index depth. Classic htree
	// uses at most two levels of interior nodes; the largedir feature
	// adds a third.
	maxHtreeLevels = 3

	// oldInodeSize is the fixed inode record size of revision 0 volumes.
	oldInodeSize = 128
)

// Compatible feature flags. These never affect reading.
const (
	compatDirIndex = 0x0020
)

// Incompatible feature flags. A reader must refuse volumes carrying
// incompat flags it does not understand.
const (
	incompatCompression = 0x0001
	incompatFileType    = 0x0002
	incompatRecover     = 0x0004
	incompatJournalDev  = 0x0008
	incompatMetaBG      = 0x0010
	incompatExtents     = 0x0040
	incompat64Bit       = 0x0080
	incompatMMP         = 0x0100
	incompatFlexBG      = 0x0200
	incompatEAInode     = 0x0400
	incompatDirData     = 0x1000
	incompatCsumSeed    = 0x2000
	incompatLargeDir    = 0x4000
	incompatInlineData  = 0x8000
	incompatEncrypt     = 0x10000
)

// Read-only compatible feature flags.
const (
	roCompatSparseSuper  = 0x0001
	roCompatLargeFile    = 0x0002
	roCompatHugeFile     = 0x0008
	roCompatGdtCsum      = 0x0010
	roCompatDirNlink     = 0x0020
	roCompatExtraIsize   = 0x0040
	roCompatMetadataCsum = 0x0400
)

// supportedIncompat is the set of incompatible features this reader
// decodes. Anything outside the set fails OpenVolume with
// ErrUnsupportedFeature rather than risking a misread.
const supportedIncompat = incompatFileType |
	incompatRecover |
	incompatExtents |
	incompat64Bit |
	incompatFlexBG |
	incompatCsumSeed |
	incompatLargeDir

// superblock mirrors the on-disk ext4 super block layout
// (struct ext4_super_block, 1024 bytes). Only a fraction of the fields
// matter for reading; the full layout is kept so one binary.Read decodes
// the record and the byte offsets stay auditable.
type superblock struct {
	InodesCount       uint32     // 0x00
	BlocksCountLo     uint32     // 0x04
	RBlocksCountLo    uint32     // 0x08
	FreeBlocksCountLo uint32     // 0x0C
	FreeInodesCount   uint32     // 0x10
	FirstDataBlock    uint32     // 0x14: 1 for 1K blocks, else 0
	LogBlockSize      uint32     // 0x18: block size = 1024 << log
	LogClusterSize    uint32     // 0x1C
	BlocksPerGroup    uint32     // 0x20
	ClustersPerGroup  uint32     // 0x24
	InodesPerGroup    uint32     // 0x28
	MTime             uint32     // 0x2C
	WTime             uint32     // 0x30
	MntCount          uint16     // 0x34
	MaxMntCount       uint16     // 0x36
	Magic             uint16     // 0x38: 0xEF53
	State             uint16     // 0x3A: 1 = clean
	Errors            uint16     // 0x3C
	MinorRevLevel     uint16     // 0x3E
	LastCheck         uint32     // 0x40
	CheckInterval     uint32     // 0x44
	CreatorOS         uint32     // 0x48
	RevLevel          uint32     // 0x4C: 1 = dynamic inode sizes
	DefResUID         uint16     // 0x50
	DefResGID         uint16     // 0x52
	FirstInode        uint32     // 0x54
	InodeSize         uint16     // 0x58
	BlockGroupNr      uint16     // 0x5A
	FeatureCompat     uint32     // 0x5C
	FeatureIncompat   uint32     // 0x60
	FeatureROCompat   uint32     // 0x64
	UUID              [16]byte   // 0x68
	VolumeName        [16]byte   // 0x78
	LastMounted       [64]byte   // 0x88
	AlgorithmUsageBmp uint32     // 0xC8
	PreallocBlocks    uint8      // 0xCC
	PreallocDirBlocks uint8      // 0xCD
	ReservedGDTBlocks uint16     // 0xCE
	JournalUUID       [16]byte   // 0xD0
	JournalInum       uint32     // 0xE0
	JournalDev        uint32     // 0xE4
	LastOrphan        uint32     // 0xE8
	HashSeed          [4]uint32  // 0xEC
	DefHashVersion    uint8      // 0xFC
	JnlBackupType     uint8      // 0xFD
	DescSize          uint16     // 0xFE: group descriptor size, 0 means 32
	DefaultMountOpts  uint32     // 0x100
	FirstMetaBg       uint32     // 0x104
	MkfsTime          uint32     // 0x108
	JnlBlocks         [17]uint32 // 0x10C
	BlocksCountHi     uint32     // 0x150
	RBlocksCountHi    uint32     // 0x154
	FreeBlocksCountHi uint32     // 0x158
	MinExtraIsize     uint16     // 0x15C
	WantExtraIsize    uint16     // 0x15E
	Flags             uint32     // 0x160
	RaidStride        uint16     // 0x164
	MmpInterval       uint16     // 0x166
	MmpBlock          uint64     // 0x168
	RaidStripeWidth   uint32     // 0x170
	LogGroupsPerFlex  uint8      // 0x174
	ChecksumType      uint8      // 0x175
	ReservedPad       uint16     // 0x176
	KBytesWritten     uint64     // 0x178
	SnapshotInum      uint32     // 0x180
	SnapshotID        uint32     // 0x184
	SnapshotRBlksCnt  uint64     // 0x188
	SnapshotList      uint32     // 0x190
	ErrorCount        uint32     // 0x194
	FirstErrorTime    uint32     // 0x198
	FirstErrorIno     uint32     // 0x19C
	FirstErrorBlock   uint64     // 0x1A0
	FirstErrorFunc    [32]byte   // 0x1A8
	FirstErrorLine    uint32     // 0x1C8
	LastErrorTime     uint32     // 0x1CC
	LastErrorIno      uint32     // 0x1D0
	LastErrorLine     uint32     // 0x1D4
	LastErrorBlock    uint64     // 0x1D8
	LastErrorFunc     [32]byte   // 0x1E0
	MountOpts         [64]byte   // 0x200
	UsrQuotaInum      uint32     // 0x240
	GrpQuotaInum      uint32     // 0x244
	OverheadBlocks    uint32     // 0x248
	BackupBgs         [2]uint32  // 0x24C
	EncryptAlgos      [4]uint8   // 0x254
	EncryptPwSalt     [16]byte   // 0x258
	LpfIno            uint32     // 0x268
	PrjQuotaInum      uint32     // 0x26C
	ChecksumSeed      uint32     // 0x270
	WtimeHi           uint8      // 0x274
	MtimeHi           uint8      // 0x275
	MkfsTimeHi        uint8      // 0x276
	LastcheckHi       uint8      // 0x277
	FirstErrorTimeHi  uint8      // 0x278
	LastErrorTimeHi   uint8      // 0x279
	ErrorTimePad      [2]uint8   // 0x27A
	Encoding          uint16     // 0x27C
	EncodingFlags     uint16     // 0x27E
	OrphanFileInum    uint32     // 0x280
	Reserved          [94]uint32 // 0x284
	Checksum          uint32     // 0x3FC
}

// blocksCount returns the total block count, folding in the high half on
// 64-bit volumes.
func (sb *superblock) blocksCount(is64 bool) uint64 {
	if is64 {
		return uint64(sb.BlocksCountHi)<<32 | uint64(sb.BlocksCountLo)
	}
	return uint64(sb.BlocksCountLo)
}

// inodeSize returns the per-inode record size. Revision 0 volumes fixed
// it at 128 bytes and left the field unset.
func (sb *superblock) inodeSize() uint32 {
	if sb.RevLevel == 0 || sb.InodeSize == 0 {
		return oldInodeSize
	}
	return uint32(sb.InodeSize)
}

// descSize returns the group descriptor size. Volumes without the 64-bit
// feature leave the field zero and use 32-byte descriptors.
func (sb *superblock) descSize() uint32 {
	if sb.FeatureIncompat&incompat64Bit != 0 && sb.DescSize >= 64 {
		return uint32(sb.DescSize)
	}
	return 32
}
