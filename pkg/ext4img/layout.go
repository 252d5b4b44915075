package ext4img

import (
	"fmt"
)

// layout is the state of one Build run: computed geometry, the image
// buffer and per-group allocation cursors.
type layout struct {
	b   *Builder
	buf []byte

	firstData uint64
	bpg       uint64
	ipg       uint32
	groups    uint64
	descSize  uint64
	gdtBlocks uint64
	itBlocks  uint64

	meta []groupMeta

	csumSeed uint32
}

type groupMeta struct {
	start       uint64
	end         uint64
	blockBitmap uint64
	inodeBitmap uint64
	inodeTable  uint64
	dataStart   uint64
	nextFree    uint64
}

// Build lays the accumulated tree out as an ext4 image.
func (b *Builder) Build() (*Image, error) {
	if b.err != nil {
		return nil, b.err
	}

	l := &layout{b: b}
	if err := l.computeGeometry(); err != nil {
		return nil, err
	}

	l.buf = make([]byte, b.blocks*b.blockSize)
	l.markMetadata()
	if b.useCsum {
		l.csumSeed = crc32c(^uint32(0), b.uuid[:])
	}

	for _, n := range b.nodes {
		if err := l.emitNode(n); err != nil {
			return nil, err
		}
	}

	l.writeInodeBitmaps()
	l.padBlockBitmaps()
	l.writeGroupDescriptors()
	l.writeSuperblock()

	return &Image{
		Bytes:          l.buf,
		BlockSize:      b.blockSize,
		Blocks:         b.blocks,
		InodeSize:      b.inodeSize,
		InodesPerGroup: l.ipg,
		inodeTables:    l.inodeTables(),
	}, nil
}

func (l *layout) computeGeometry() error {
	b := l.b
	if b.blockSize < 1024 || b.blockSize > 65536 || b.blockSize&(b.blockSize-1) != 0 {
		return fmt.Errorf("ext4img: bad block size %d", b.blockSize)
	}
	if b.inodeSize != 128 && (b.inodeSize < 256 || b.inodeSize&(b.inodeSize-1) != 0) {
		return fmt.Errorf("ext4img: bad inode size %d", b.inodeSize)
	}

	if b.blockSize == 1024 {
		l.firstData = 1
	}
	l.bpg = 8 * b.blockSize
	if b.blocks <= l.firstData {
		return fmt.Errorf("ext4img: %d blocks is too small", b.blocks)
	}
	l.groups = (b.blocks - l.firstData + l.bpg - 1) / l.bpg

	ipg := (uint64(b.inodeCount) + l.groups - 1) / l.groups
	ipg = (ipg + 7) &^ 7
	if ipg == 0 || ipg > l.bpg {
		return fmt.Errorf("ext4img: cannot fit %d inodes in %d groups", b.inodeCount, l.groups)
	}
	l.ipg = uint32(ipg)
	b.inodeCount = uint32(ipg * l.groups)

	if b.next > uint64(b.inodeCount)+1 {
		return fmt.Errorf("ext4img: %d inodes used, only %d available", b.next-1, b.inodeCount)
	}

	l.descSize = 32
	if b.use64Bit {
		l.descSize = 64
	}
	l.gdtBlocks = (l.groups*l.descSize + b.blockSize - 1) / b.blockSize
	l.itBlocks = (ipg*uint64(b.inodeSize) + b.blockSize - 1) / b.blockSize

	l.meta = make([]groupMeta, l.groups)
	for g := range l.meta {
		m := &l.meta[g]
		m.start = l.firstData + uint64(g)*l.bpg
		m.end = m.start + l.bpg
		if m.end > b.blocks {
			m.end = b.blocks
		}

		next := m.start
		if g == 0 {
			// Superblock and group descriptor table precede the
			// group 0 bitmaps.
			next += 1 + l.gdtBlocks
		}
		m.blockBitmap = next
		m.inodeBitmap = next + 1
		m.inodeTable = next + 2
		m.dataStart = m.inodeTable + l.itBlocks
		m.nextFree = m.dataStart
		if m.dataStart > m.end {
			return fmt.Errorf("ext4img: group %d metadata exceeds its %d blocks", g, m.end-m.start)
		}
	}
	return nil
}

// markMetadata sets the block bitmap bits for every metadata block.
func (l *layout) markMetadata() {
	for g := range l.meta {
		m := &l.meta[g]
		for blk := m.start; blk < m.dataStart; blk++ {
			l.markBlockUsed(blk)
		}
	}
}

// markBlockUsed sets the bitmap bit of one block in its group.
func (l *layout) markBlockUsed(block uint64) {
	g := (block - l.firstData) / l.bpg
	bit := (block - l.firstData) % l.bpg
	off := l.meta[g].blockBitmap*l.b.blockSize + bit/8
	l.buf[off] |= 1 << (bit % 8)
}

// allocBlocks reserves n contiguous blocks, skipping gap blocks first.
// The skipped blocks stay allocated but unused, which forces physical
// discontiguity between consecutive allocations.
func (l *layout) allocBlocks(n, gap uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	for g := range l.meta {
		m := &l.meta[g]
		if m.end-m.nextFree < gap+n {
			continue
		}
		m.nextFree += gap
		start := m.nextFree
		m.nextFree += n
		for blk := start - gap; blk < start+n; blk++ {
			l.markBlockUsed(blk)
		}
		return start, nil
	}
	return 0, fmt.Errorf("ext4img: image full allocating %d blocks", n)
}

// blockBuf returns the image slice backing one block.
func (l *layout) blockBuf(block uint64) []byte {
	off := block * l.b.blockSize
	return l.buf[off : off+l.b.blockSize]
}

// freeBlocksInGroup counts unallocated blocks of one group.
func (l *layout) freeBlocksInGroup(g int) uint64 {
	return l.meta[g].end - l.meta[g].nextFree
}

// inodeTables returns each group's inode table start, for offset
// queries on the finished image.
func (l *layout) inodeTables() []uint64 {
	tables := make([]uint64, l.groups)
	for g := range l.meta {
		tables[g] = l.meta[g].inodeTable
	}
	return tables
}

// writeInodeBitmaps marks the reserved inodes and every allocated inode
// used, then pads the tail of each bitmap block.
func (l *layout) writeInodeBitmaps() {
	used := make(map[uint64]bool, len(l.b.nodes)+10)
	for i := uint64(1); i < firstFreeInode; i++ {
		used[i] = true
	}
	for _, n := range l.b.nodes {
		used[n.num] = true
	}

	for g := range l.meta {
		bm := l.blockBuf(l.meta[g].inodeBitmap)
		base := uint64(g) * uint64(l.ipg)
		for i := uint64(0); i < uint64(l.ipg); i++ {
			if used[base+i+1] {
				bm[i/8] |= 1 << (i % 8)
			}
		}
		// Pad bits past the per-group inode count.
		for i := uint64(l.ipg); i < l.b.blockSize*8; i++ {
			bm[i/8] |= 1 << (i % 8)
		}
	}
}

// padBlockBitmaps sets the bits past the end of a short last group.
func (l *layout) padBlockBitmaps() {
	for g := range l.meta {
		m := &l.meta[g]
		bm := l.blockBuf(m.blockBitmap)
		for bit := m.end - m.start; bit < l.bpg; bit++ {
			bm[bit/8] |= 1 << (bit % 8)
		}
	}
}

// freeInodesInGroup counts unallocated inodes of one group.
func (l *layout) freeInodesInGroup(g int) uint32 {
	bm := l.blockBuf(l.meta[g].inodeBitmap)
	var free uint32
	for i := uint64(0); i < uint64(l.ipg); i++ {
		if bm[i/8]&(1<<(i%8)) == 0 {
			free++
		}
	}
	return free
}
