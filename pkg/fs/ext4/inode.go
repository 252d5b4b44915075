package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/example/ext4nfs/pkg/fs"
)

// Inode flags.
const (
	flagIndex      = 0x00001000 // directory has a hashed-tree index
	flagExtents    = 0x00080000 // inode uses an extent tree
	flagInlineData = 0x10000000 // data stored in the inode itself
)

// File type bits of the inode mode field.
const (
	modeTypeMask = 0xF000
	modeFIFO     = 0x1000
	modeChar     = 0x2000
	modeDir      = 0x4000
	modeBlock    = 0x6000
	modeRegular  = 0x8000
	modeSymlink  = 0xA000
	modeSocket   = 0xC000
)

// rawInode mirrors the on-disk inode record (struct ext4_inode). The base
// record is 128 bytes; revision 1 volumes extend it and record how much of
// the extension each inode actually uses in ExtraIsize.
type rawInode struct {
	Mode        uint16   // 0x00
	UID         uint16   // 0x02
	SizeLo      uint32   // 0x04
	Atime       uint32   // 0x08
	Ctime       uint32   // 0x0C
	Mtime       uint32   // 0x10
	Dtime       uint32   // 0x14
	GID         uint16   // 0x18
	LinksCount  uint16   // 0x1A
	BlocksLo    uint32   // 0x1C: 512-byte sectors
	Flags       uint32   // 0x20
	Version     uint32   // 0x24
	Block       [60]byte // 0x28: extent root, block map, or inline target
	Generation  uint32   // 0x64
	FileACLLo   uint32   // 0x68
	SizeHi      uint32   // 0x6C
	ObsoFAddr   uint32   // 0x70
	BlocksHi    uint16   // 0x74
	FileACLHi   uint16   // 0x76
	UIDHi       uint16   // 0x78
	GIDHi       uint16   // 0x7A
	ChecksumLo  uint16   // 0x7C
	Reserved    uint16   // 0x7E
	ExtraIsize  uint16   // 0x80
	ChecksumHi  uint16   // 0x82
	CtimeExtra  uint32   // 0x84
	MtimeExtra  uint32   // 0x88
	AtimeExtra  uint32   // 0x8C
	Crtime      uint32   // 0x90
	CrtimeExtra uint32   // 0x94
	VersionHi   uint32   // 0x98
	Projid      uint32   // 0x9C
}

// rawInodeSize is the decoded portion of an inode record. Larger on-disk
// records carry extended attributes past this point, which the reader
// ignores.
const rawInodeSize = 160

// inode is a decoded inode record plus its number.
type inode struct {
	num uint64
	raw rawInode

	// hasExtra reports whether the extended fields past byte 128 were
	// present on disk and covered by ExtraIsize.
	hasExtra bool
}

// readInode decodes inode n from its group's inode table. It fails with
// ErrInvalidInode when n is out of range or the record is unreadable.
func (v *Volume) readInode(n uint64) (*inode, error) {
	if n < 1 || n > uint64(v.sb.InodesCount) {
		return nil, fmt.Errorf("%w: inode %d of %d", ErrInvalidInode, n, v.sb.InodesCount)
	}

	gd, err := v.groupDescriptorFor(n)
	if err != nil {
		return nil, err
	}

	inodeSize := v.sb.inodeSize()
	index := (n - 1) % uint64(v.sb.InodesPerGroup)
	off := gd.inodeTable(v.is64)*v.blockSize + index*uint64(inodeSize)

	raw := make([]byte, rawInodeSize)
	readLen := uint64(len(raw))
	if uint64(inodeSize) < readLen {
		readLen = uint64(inodeSize)
	}
	if _, err := v.r.ReadAt(raw[:readLen], int64(off)); err != nil {
		return nil, fmt.Errorf("%w: reading inode %d", ErrInvalidInode, n)
	}

	ino := &inode{num: n}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &ino.raw); err != nil {
		return nil, fmt.Errorf("%w: decoding inode %d", ErrInvalidInode, n)
	}
	ino.hasExtra = inodeSize > oldInodeSize && ino.raw.ExtraIsize >= 32

	if ino.raw.Mode == 0 && ino.raw.LinksCount == 0 {
		return nil, fmt.Errorf("%w: inode %d is unallocated", ErrInvalidInode, n)
	}

	return ino, nil
}

// fileType maps the inode mode to the portable file type.
func (ino *inode) fileType() fs.FileType {
	switch ino.raw.Mode & modeTypeMask {
	case modeRegular:
		return fs.FileTypeRegular
	case modeDir:
		return fs.FileTypeDirectory
	case modeSymlink:
		return fs.FileTypeSymlink
	case modeBlock:
		return fs.FileTypeBlock
	case modeChar:
		return fs.FileTypeChar
	case modeFIFO:
		return fs.FileTypeFIFO
	case modeSocket:
		return fs.FileTypeSocket
	default:
		return fs.FileTypeRegular
	}
}

func (ino *inode) isDir() bool {
	return ino.raw.Mode&modeTypeMask == modeDir
}

func (ino *inode) isRegular() bool {
	return ino.raw.Mode&modeTypeMask == modeRegular
}

func (ino *inode) isSymlink() bool {
	return ino.raw.Mode&modeTypeMask == modeSymlink
}

// size returns the file size in bytes. The high half is meaningful for
// regular files and, with largedir, directories.
func (ino *inode) size() uint64 {
	if ino.isRegular() || ino.isDir() {
		return uint64(ino.raw.SizeHi)<<32 | uint64(ino.raw.SizeLo)
	}
	return uint64(ino.raw.SizeLo)
}

// usesExtents reports whether the inode's data is mapped by an extent
// tree rather than the legacy block pointer array.
func (ino *inode) usesExtents() bool {
	return ino.raw.Flags&flagExtents != 0
}

// decodeTime expands an ext4 timestamp pair into a time.Time. The extra
// field carries two epoch-extension bits and a 30-bit nanosecond count.
func decodeTime(seconds uint32, extra uint32, hasExtra bool) time.Time {
	sec := int64(seconds)
	var nsec int64
	if hasExtra {
		sec += int64(extra&0x3) << 32
		nsec = int64(extra >> 2)
	}
	return time.Unix(sec, nsec)
}

// device decodes the device number of a block or character special file.
// Old images store a 16-bit pair in the first slot; newer ones use the
// kernel's packed 32-bit encoding in the second.
func (ino *inode) device() uint64 {
	old := binary.LittleEndian.Uint32(ino.raw.Block[0:4])
	if old != 0 {
		return uint64(old>>8&0xFF)<<32 | uint64(old&0xFF)
	}
	dev := binary.LittleEndian.Uint32(ino.raw.Block[4:8])
	major := uint64(dev >> 8 & 0xFFF)
	minor := uint64(dev&0xFF | dev>>12&0xFFF00)
	return major<<32 | minor
}

// fileInfo converts the decoded record to the portable attribute form.
func (ino *inode) fileInfo(v *Volume) fs.FileInfo {
	info := fs.FileInfo{
		Type:       ino.fileType(),
		Mode:       fs.FileMode(ino.raw.Mode) &^ fs.FileMode(modeTypeMask),
		Ino:        ino.num,
		Size:       int64(ino.size()),
		Uid:        uint32(ino.raw.UIDHi)<<16 | uint32(ino.raw.UID),
		Gid:        uint32(ino.raw.GIDHi)<<16 | uint32(ino.raw.GID),
		Nlink:      uint32(ino.raw.LinksCount),
		BlockSize:  uint32(v.blockSize),
		Blocks:     uint64(ino.raw.BlocksHi)<<32 | uint64(ino.raw.BlocksLo),
		AccessTime: decodeTime(ino.raw.Atime, ino.raw.AtimeExtra, ino.hasExtra),
		ModifyTime: decodeTime(ino.raw.Mtime, ino.raw.MtimeExtra, ino.hasExtra),
		ChangeTime: decodeTime(ino.raw.Ctime, ino.raw.CtimeExtra, ino.hasExtra),
	}
	if ino.hasExtra {
		info.CreateTime = decodeTime(ino.raw.Crtime, ino.raw.CrtimeExtra, true)
	}
	if info.Type == fs.FileTypeBlock || info.Type == fs.FileTypeChar {
		info.Rdev = ino.device()
	}
	return info
}
