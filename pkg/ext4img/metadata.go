package ext4img

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"time"
)

// On-disk constants, matching the ext4 format.
const (
	superblockOffset = 1024
	superblockMagic  = 0xEF53
	extentMagic      = 0xF30A
	extentInitMax    = 32768
	rootInode        = 2
	firstFreeInode   = 11
	fastSymlinkMax   = 59

	dxRootInfoOffset    = 24
	dxRootEntriesOffset = 32
	dxNodeEntriesOffset = 8

	flagIndex   = 0x00001000
	flagExtents = 0x00080000

	modeFifo    = 0x1000
	modeChar    = 0x2000
	modeDir     = 0x4000
	modeBlock   = 0x6000
	modeRegular = 0x8000
	modeSymlink = 0xA000
	modeSocket  = 0xC000

	ftRegular = 1
	ftDir     = 2
	ftChar    = 3
	ftBlock   = 4
	ftFifo    = 5
	ftSocket  = 6
	ftSymlink = 7

	compatDirIndex       = 0x0020
	incompatFileType     = 0x0002
	incompatExtents      = 0x0040
	incompat64Bit        = 0x0080
	roCompatLargeFile    = 0x0002
	roCompatMetadataCsum = 0x0400
)

// encodeTime splits a time into the epoch seconds and the extra field
// holding the two epoch-extension bits and the nanoseconds.
func encodeTime(t time.Time) (uint32, uint32) {
	sec := t.Unix()
	extra := uint32(sec>>32)&0x3 | uint32(t.Nanosecond())<<2
	return uint32(sec), extra
}

// inodeSeed derives the per-inode checksum seed. Freshly built inodes
// carry generation zero.
func (l *layout) inodeSeed(n *Node) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n.num))
	seed := crc32c(l.csumSeed, buf[:])
	binary.LittleEndian.PutUint32(buf[:], 0)
	return crc32c(seed, buf[:])
}

func (l *layout) writeInode(n *Node, block [60]byte, sectors uint64, flags uint32) error {
	return l.writeInodeWith(n, block, sectors, flags, n.size)
}

// writeInodeWith fills the node's record in its group's inode table.
func (l *layout) writeInodeWith(n *Node, block [60]byte, sectors uint64, flags uint32, size uint64) error {
	if n.links > 0xFFFF {
		return fmt.Errorf("ext4img: inode %d has %d links", n.num, n.links)
	}

	is := uint64(l.b.inodeSize)
	rec := make([]byte, is)
	put16 := binary.LittleEndian.PutUint16
	put32 := binary.LittleEndian.PutUint32

	asec, aextra := encodeTime(n.atime)
	csec, cextra := encodeTime(n.ctime)
	msec, mextra := encodeTime(n.mtime)

	put16(rec[0x00:], n.onDiskMode())
	put16(rec[0x02:], uint16(n.uid))
	put32(rec[0x04:], uint32(size))
	put32(rec[0x08:], asec)
	put32(rec[0x0C:], csec)
	put32(rec[0x10:], msec)
	put16(rec[0x18:], uint16(n.gid))
	put16(rec[0x1A:], uint16(n.links))
	put32(rec[0x1C:], uint32(sectors))
	put32(rec[0x20:], flags)
	copy(rec[0x28:0x64], block[:])
	put32(rec[0x6C:], uint32(size>>32))
	put16(rec[0x74:], uint16(sectors>>32))
	put16(rec[0x78:], uint16(n.uid>>16))
	put16(rec[0x7A:], uint16(n.gid>>16))

	if is > 128 {
		crsec, crextra := encodeTime(n.crtime)
		put16(rec[0x80:], 32)
		put32(rec[0x84:], cextra)
		put32(rec[0x88:], mextra)
		put32(rec[0x8C:], aextra)
		put32(rec[0x90:], crsec)
		put32(rec[0x94:], crextra)
	}

	if l.b.useCsum {
		sum := crc32c(l.inodeSeed(n), rec)
		put16(rec[0x7C:], uint16(sum))
		if is > 128 {
			put16(rec[0x82:], uint16(sum>>16))
		}
	}

	g := (n.num - 1) / uint64(l.ipg)
	idx := (n.num - 1) % uint64(l.ipg)
	off := l.meta[g].inodeTable*l.b.blockSize + idx*is
	copy(l.buf[off:], rec)
	return nil
}

// writeGroupDescriptors emits the descriptor table after block group 0's
// superblock.
func (l *layout) writeGroupDescriptors() {
	base := (l.firstData + 1) * l.b.blockSize
	put16 := binary.LittleEndian.PutUint16
	put32 := binary.LittleEndian.PutUint32

	for g := range l.meta {
		d := l.buf[base+uint64(g)*l.descSize:]
		m := &l.meta[g]
		freeBlocks := l.freeBlocksInGroup(g)
		freeInodes := l.freeInodesInGroup(g)
		dirs := l.dirsInGroup(g)

		put32(d[0x00:], uint32(m.blockBitmap))
		put32(d[0x04:], uint32(m.inodeBitmap))
		put32(d[0x08:], uint32(m.inodeTable))
		put16(d[0x0C:], uint16(freeBlocks))
		put16(d[0x0E:], uint16(freeInodes))
		put16(d[0x10:], uint16(dirs))

		if l.descSize == 64 {
			put32(d[0x20:], uint32(m.blockBitmap>>32))
			put32(d[0x24:], uint32(m.inodeBitmap>>32))
			put32(d[0x28:], uint32(m.inodeTable>>32))
			put16(d[0x2C:], uint16(freeBlocks>>16))
			put16(d[0x2E:], uint16(freeInodes>>16))
			put16(d[0x30:], uint16(dirs>>16))
		}
	}
}

// dirsInGroup counts the directories whose inode lives in group g.
func (l *layout) dirsInGroup(g int) uint32 {
	var dirs uint32
	for _, n := range l.b.nodes {
		if n.kind == kindDir && (n.num-1)/uint64(l.ipg) == uint64(g) {
			dirs++
		}
	}
	return dirs
}

// writeSuperblock emits the superblock at its fixed offset.
func (l *layout) writeSuperblock() {
	b := l.b
	sb := l.buf[superblockOffset : superblockOffset+1024]
	put16 := binary.LittleEndian.PutUint16
	put32 := binary.LittleEndian.PutUint32

	var freeBlocks uint64
	var freeInodes uint32
	for g := range l.meta {
		freeBlocks += l.freeBlocksInGroup(g)
		freeInodes += l.freeInodesInGroup(g)
	}

	logBS := uint32(bits.TrailingZeros64(b.blockSize)) - 10
	now := uint32(b.now.Unix())

	incompat := uint32(incompatExtents) | b.extraFlags
	if b.useFileType {
		incompat |= incompatFileType
	}
	if b.use64Bit {
		incompat |= incompat64Bit
	}
	roCompat := uint32(roCompatLargeFile)
	if b.useCsum {
		roCompat |= roCompatMetadataCsum
	}

	put32(sb[0x00:], b.inodeCount)
	put32(sb[0x04:], uint32(b.blocks))
	put32(sb[0x0C:], uint32(freeBlocks))
	put32(sb[0x10:], freeInodes)
	put32(sb[0x14:], uint32(l.firstData))
	put32(sb[0x18:], logBS)
	put32(sb[0x1C:], logBS)
	put32(sb[0x20:], uint32(l.bpg))
	put32(sb[0x24:], uint32(l.bpg))
	put32(sb[0x28:], l.ipg)
	put32(sb[0x30:], now)
	put16(sb[0x36:], 0xFFFF)
	put16(sb[0x38:], superblockMagic)
	put16(sb[0x3A:], 1)
	put16(sb[0x3C:], 1)
	put32(sb[0x40:], now)
	put32(sb[0x4C:], 1)
	put32(sb[0x54:], firstFreeInode)
	put16(sb[0x58:], uint16(b.inodeSize))
	put32(sb[0x5C:], compatDirIndex)
	put32(sb[0x60:], incompat)
	put32(sb[0x64:], roCompat)
	copy(sb[0x68:0x78], b.uuid[:])
	copy(sb[0x78:0x88], b.label)
	put32(sb[0x108:], now)
	sb[0xFC] = 1 // half_md4 default hash

	if b.use64Bit {
		put16(sb[0xFE:], 64)
		put32(sb[0x150:], uint32(b.blocks>>32))
	}
	if b.useCsum {
		sb[0x175] = 1 // crc32c
		put32(sb[0x3FC:], crc32c(^uint32(0), sb[:0x3FC]))
	}
}
