package ext4img

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// physRun is a Run after allocation: a logical range bound to physical
// blocks.
type physRun struct {
	logical   uint64
	count     uint64
	phys      uint64
	unwritten bool
}

func (l *layout) emitNode(n *Node) error {
	switch n.kind {
	case kindDir:
		return l.emitDir(n)
	case kindFile:
		return l.emitFile(n)
	case kindSymlink:
		return l.emitSymlink(n)
	case kindDevice:
		var block [60]byte
		binary.LittleEndian.PutUint32(block[4:8], n.rdev)
		return l.writeInode(n, block, 0, 0)
	default:
		return l.writeInode(n, [60]byte{}, 0, 0)
	}
}

// placeRuns allocates physical blocks for a node's runs and writes the
// data. Unwritten runs are filled with junk bytes that a correct reader
// must never return.
func (l *layout) placeRuns(n *Node) ([]physRun, uint64, error) {
	runs := append([]Run(nil), n.runs...)
	sort.Slice(runs, func(i, j int) bool { return runs[i].Logical < runs[j].Logical })

	var out []physRun
	var blocks uint64
	prevEnd := uint64(0)
	for _, r := range runs {
		count := r.Blocks
		if !r.Unwritten {
			if count != 0 {
				return nil, 0, fmt.Errorf("ext4img: written run with explicit block count")
			}
			count = (uint64(len(r.Data)) + l.b.blockSize - 1) / l.b.blockSize
		} else if len(r.Data) != 0 {
			return nil, 0, fmt.Errorf("ext4img: unwritten run with data")
		}
		if count == 0 {
			continue
		}
		if out != nil && r.Logical < prevEnd {
			return nil, 0, fmt.Errorf("ext4img: overlapping runs at block %d", r.Logical)
		}

		phys, err := l.allocBlocks(count, r.Gap)
		if err != nil {
			return nil, 0, err
		}
		if r.Unwritten {
			junk := l.buf[phys*l.b.blockSize : (phys+count)*l.b.blockSize]
			for i := range junk {
				junk[i] = 0xAA
			}
		} else {
			copy(l.buf[phys*l.b.blockSize:], r.Data)
		}

		out = append(out, physRun{logical: r.Logical, count: count, phys: phys, unwritten: r.Unwritten})
		prevEnd = r.Logical + count
		blocks += count
	}
	return out, blocks, nil
}

func (l *layout) emitFile(n *Node) error {
	runs, dataBlocks, err := l.placeRuns(n)
	if err != nil {
		return err
	}

	var block [60]byte
	var metaBlocks uint64
	var flags uint32
	if n.blockMap {
		block, metaBlocks, err = l.writeBlockMap(n, runs)
	} else {
		flags = flagExtents
		block, metaBlocks, err = l.writeExtentTree(n, runs)
	}
	if err != nil {
		return err
	}

	sectors := (dataBlocks + metaBlocks) * (l.b.blockSize / 512)
	return l.writeInodeWith(n, block, sectors, flags, n.size)
}

// writeExtentTree encodes runs as an extent tree. Up to four extents fit
// in the inode itself; more spill into depth-one leaf nodes.
func (l *layout) writeExtentTree(n *Node, runs []physRun) ([60]byte, uint64, error) {
	var block [60]byte
	for _, r := range runs {
		max := uint64(extentInitMax)
		if r.unwritten {
			max = extentInitMax - 1
		}
		if r.count > max {
			return block, 0, fmt.Errorf("ext4img: extent of %d blocks too long", r.count)
		}
	}

	if len(runs) <= 4 {
		writeExtentHeader(block[:], uint16(len(runs)), 4, 0)
		for i, r := range runs {
			writeExtent(block[12+i*12:], r)
		}
		return block, 0, nil
	}

	perLeaf := int((l.b.blockSize - 12) / 12)
	leafCount := (len(runs) + perLeaf - 1) / perLeaf
	if leafCount > 4 {
		return block, 0, fmt.Errorf("ext4img: %d extents exceed a depth-one tree", len(runs))
	}

	writeExtentHeader(block[:], uint16(leafCount), 4, 1)
	for i := 0; i < leafCount; i++ {
		part := runs[i*perLeaf:]
		if len(part) > perLeaf {
			part = part[:perLeaf]
		}

		phys, err := l.allocBlocks(1, 0)
		if err != nil {
			return block, 0, err
		}
		leaf := l.blockBuf(phys)
		writeExtentHeader(leaf, uint16(len(part)), uint16(perLeaf), 0)
		for j, r := range part {
			writeExtent(leaf[12+j*12:], r)
		}
		if l.b.useCsum {
			tailOff := 12 + perLeaf*12
			sum := crc32c(l.inodeSeed(n), leaf[:tailOff])
			binary.LittleEndian.PutUint32(leaf[tailOff:], sum)
		}

		idx := block[12+i*12:]
		binary.LittleEndian.PutUint32(idx[0:4], uint32(part[0].logical))
		binary.LittleEndian.PutUint32(idx[4:8], uint32(phys))
		binary.LittleEndian.PutUint16(idx[8:10], uint16(phys>>32))
	}
	return block, uint64(leafCount), nil
}

func writeExtentHeader(p []byte, entries, max, depth uint16) {
	binary.LittleEndian.PutUint16(p[0:2], extentMagic)
	binary.LittleEndian.PutUint16(p[2:4], entries)
	binary.LittleEndian.PutUint16(p[4:6], max)
	binary.LittleEndian.PutUint16(p[6:8], depth)
	binary.LittleEndian.PutUint32(p[8:12], 0)
}

func writeExtent(p []byte, r physRun) {
	length := uint16(r.count)
	if r.unwritten {
		length += extentInitMax
	}
	binary.LittleEndian.PutUint32(p[0:4], uint32(r.logical))
	binary.LittleEndian.PutUint16(p[4:6], length)
	binary.LittleEndian.PutUint16(p[6:8], uint16(r.phys>>32))
	binary.LittleEndian.PutUint32(p[8:12], uint32(r.phys))
}

// writeBlockMap encodes runs through the legacy direct and indirect
// pointers, allocating chain blocks as mappings demand them.
func (l *layout) writeBlockMap(n *Node, runs []physRun) ([60]byte, uint64, error) {
	bm := &bmapWriter{l: l, ppb: l.b.blockSize / 4}
	for _, r := range runs {
		if r.unwritten {
			return bm.slots, 0, fmt.Errorf("ext4img: block-mapped files cannot hold unwritten runs")
		}
		for i := uint64(0); i < r.count; i++ {
			if err := bm.set(r.logical+i, r.phys+i); err != nil {
				return bm.slots, 0, err
			}
		}
	}
	return bm.slots, bm.metaBlocks, nil
}

type bmapWriter struct {
	l          *layout
	ppb        uint64
	slots      [60]byte
	metaBlocks uint64
}

// set maps one logical block to one physical block, materializing the
// indirect chain that covers it.
func (bm *bmapWriter) set(logical, phys uint64) error {
	if phys > 0xFFFFFFFF {
		return fmt.Errorf("ext4img: block %d beyond the 32-bit map", phys)
	}
	if logical < 12 {
		binary.LittleEndian.PutUint32(bm.slots[logical*4:], uint32(phys))
		return nil
	}

	logical -= 12
	if logical < bm.ppb {
		return bm.chain(12, []uint64{logical}, phys)
	}
	logical -= bm.ppb
	if logical < bm.ppb*bm.ppb {
		return bm.chain(13, []uint64{logical / bm.ppb, logical % bm.ppb}, phys)
	}
	logical -= bm.ppb * bm.ppb
	if logical < bm.ppb*bm.ppb*bm.ppb {
		return bm.chain(14, []uint64{
			logical / (bm.ppb * bm.ppb),
			logical / bm.ppb % bm.ppb,
			logical % bm.ppb,
		}, phys)
	}
	return fmt.Errorf("ext4img: logical block beyond triple indirect range")
}

// chain walks the indirect blocks rooted in inode slot root, allocating
// missing links, and stores phys at the final index.
func (bm *bmapWriter) chain(root int, path []uint64, phys uint64) error {
	cur := binary.LittleEndian.Uint32(bm.slots[root*4:])
	if cur == 0 {
		blk, err := bm.alloc()
		if err != nil {
			return err
		}
		cur = blk
		binary.LittleEndian.PutUint32(bm.slots[root*4:], cur)
	}

	for _, idx := range path[:len(path)-1] {
		entry := bm.l.blockBuf(uint64(cur))[idx*4 : idx*4+4]
		next := binary.LittleEndian.Uint32(entry)
		if next == 0 {
			blk, err := bm.alloc()
			if err != nil {
				return err
			}
			next = blk
			binary.LittleEndian.PutUint32(entry, next)
		}
		cur = next
	}

	last := path[len(path)-1]
	binary.LittleEndian.PutUint32(bm.l.blockBuf(uint64(cur))[last*4:], uint32(phys))
	return nil
}

func (bm *bmapWriter) alloc() (uint32, error) {
	blk, err := bm.l.allocBlocks(1, 0)
	if err != nil {
		return 0, err
	}
	bm.metaBlocks++
	return uint32(blk), nil
}

func (l *layout) emitSymlink(n *Node) error {
	if n.size == 0 || n.size >= l.b.blockSize {
		return fmt.Errorf("ext4img: symlink target length %d out of range", n.size)
	}

	var block [60]byte
	if n.size <= fastSymlinkMax {
		copy(block[:], n.target)
		return l.writeInode(n, block, 0, 0)
	}

	phys, err := l.allocBlocks(1, 0)
	if err != nil {
		return err
	}
	copy(l.blockBuf(phys), n.target)

	writeExtentHeader(block[:], 1, 4, 0)
	writeExtent(block[12:], physRun{logical: 0, count: 1, phys: phys})
	return l.writeInode(n, block, l.b.blockSize/512, flagExtents)
}

func (l *layout) emitDir(n *Node) error {
	var blocks [][]byte
	var err error
	if n.htree {
		blocks, err = l.htreeBlocks(n)
	} else {
		blocks, err = l.packDirents(n, n.entries), nil
	}
	if err != nil {
		return err
	}

	count := uint64(len(blocks))
	phys, err := l.allocBlocks(count, 0)
	if err != nil {
		return err
	}
	for i, blk := range blocks {
		copy(l.blockBuf(phys+uint64(i)), blk)
	}

	var block [60]byte
	var metaBlocks uint64
	flags := uint32(0)
	if n.htree {
		flags |= flagIndex
	}
	run := physRun{logical: 0, count: count, phys: phys}
	if n.blockMap {
		block, metaBlocks, err = l.writeBlockMap(n, []physRun{run})
	} else {
		flags |= flagExtents
		writeExtentHeader(block[:], 1, 4, 0)
		writeExtent(block[12:], run)
	}
	if err != nil {
		return err
	}

	sectors := (count + metaBlocks) * (l.b.blockSize / 512)
	return l.writeInodeWith(n, block, sectors, flags, count*l.b.blockSize)
}

// encodeRecLen stores a record length, using the 0xFFFF stand-in for a
// record spanning a full 64KiB block.
func encodeRecLen(n int) uint16 {
	if n >= 65536 {
		return 0xFFFF
	}
	return uint16(n)
}

// packDirents lays entries out as classic directory blocks. The last
// record of each block stretches to the block end, minus the checksum
// tail when metadata checksums are on.
func (l *layout) packDirents(n *Node, entries []dentry) [][]byte {
	bs := int(l.b.blockSize)
	usable := bs
	if l.b.useCsum {
		usable -= 12
	}

	var blocks [][]byte
	var cur []byte
	off, lastOff := 0, 0

	flush := func() {
		if cur == nil {
			return
		}
		recLen := usable - lastOff
		binary.LittleEndian.PutUint16(cur[lastOff+4:], encodeRecLen(recLen))
		if l.b.useCsum {
			l.writeDirentTail(n, cur)
		}
		blocks = append(blocks, cur)
		cur = nil
	}

	for _, d := range entries {
		recLen := 8 + (len(d.name)+3)&^3
		if cur != nil && off+recLen > usable {
			flush()
		}
		if cur == nil {
			cur = make([]byte, bs)
			off = 0
		}

		binary.LittleEndian.PutUint32(cur[off:], uint32(d.node.num))
		binary.LittleEndian.PutUint16(cur[off+4:], uint16(recLen))
		cur[off+6] = uint8(len(d.name))
		cur[off+7] = d.fileType
		copy(cur[off+8:], d.name)

		lastOff = off
		off += recLen
	}
	flush()

	if blocks == nil {
		// An empty block still needs one spanning record.
		cur = make([]byte, bs)
		binary.LittleEndian.PutUint16(cur[4:], encodeRecLen(usable))
		if l.b.useCsum {
			l.writeDirentTail(n, cur)
		}
		blocks = append(blocks, cur)
	}
	return blocks
}

// writeDirentTail appends the checksum pseudo-entry of one directory
// block.
func (l *layout) writeDirentTail(n *Node, block []byte) {
	off := len(block) - 12
	binary.LittleEndian.PutUint16(block[off+4:], 12)
	block[off+7] = 0xDE
	sum := crc32c(l.inodeSeed(n), block[:off])
	binary.LittleEndian.PutUint32(block[off+8:], sum)
}

// htreeBlocks lays a directory out as a hashed tree: a root index
// block, optionally one level of interior index nodes, and leaf blocks
// holding the entries. Hash values ascend artificially; readers that
// enumerate never consult them.
func (l *layout) htreeBlocks(n *Node) ([][]byte, error) {
	bs := int(l.b.blockSize)
	leaves := l.packDirents(n, n.entries[2:])

	var interior int
	if n.htreeLevels == 1 {
		interior = 2
		if len(leaves) < 2 {
			interior = 1
		}
	}

	root := make([]byte, bs)
	// "." and ".." head the root block as ordinary records; the second
	// spans the rest of the block so linear readers skip the index.
	binary.LittleEndian.PutUint32(root[0:], uint32(n.num))
	binary.LittleEndian.PutUint16(root[4:], 12)
	root[6] = 1
	root[7] = ftDir
	root[8] = '.'
	binary.LittleEndian.PutUint32(root[12:], uint32(n.entries[1].node.num))
	binary.LittleEndian.PutUint16(root[16:], uint16(bs-12))
	root[18] = 2
	root[19] = ftDir
	root[20], root[21] = '.', '.'

	root[dxRootInfoOffset] = 1 // half_md4
	root[dxRootInfoOffset+1] = 8
	root[dxRootInfoOffset+2] = uint8(n.htreeLevels)

	rootLimit := (bs - dxRootEntriesOffset) / 8
	nodeLimit := (bs - dxNodeEntriesOffset) / 8
	if l.b.useCsum {
		rootLimit--
		nodeLimit--
	}

	if interior == 0 {
		// Leaves follow the root directly: logical blocks 1..N.
		if len(leaves) > rootLimit {
			return nil, fmt.Errorf("ext4img: %d leaf blocks exceed the root index", len(leaves))
		}
		writeDxEntries(root[dxRootEntriesOffset:], rootLimit, 1, len(leaves))
		return append([][]byte{root}, leaves...), nil
	}

	// Interior nodes at logical 1..interior, leaves after them.
	writeDxEntries(root[dxRootEntriesOffset:], rootLimit, 1, interior)

	blocks := [][]byte{root}
	perNode := (len(leaves) + interior - 1) / interior
	if perNode > nodeLimit {
		return nil, fmt.Errorf("ext4img: %d leaf blocks exceed the interior index", len(leaves))
	}
	leafBase := 1 + interior
	for i := 0; i < interior; i++ {
		first := i * perNode
		count := perNode
		if first+count > len(leaves) {
			count = len(leaves) - first
		}

		node := make([]byte, bs)
		binary.LittleEndian.PutUint16(node[4:], encodeRecLen(bs))
		writeDxEntries(node[dxNodeEntriesOffset:], nodeLimit, leafBase+first, count)
		blocks = append(blocks, node)
	}
	return append(blocks, leaves...), nil
}

// writeDxEntries fills one index entry array: count entries pointing at
// consecutive logical blocks starting at firstBlock, with ascending
// synthetic hashes. The first entry overlays limit and count.
func writeDxEntries(p []byte, limit, firstBlock, count int) {
	binary.LittleEndian.PutUint16(p[0:], uint16(limit))
	binary.LittleEndian.PutUint16(p[2:], uint16(count))
	binary.LittleEndian.PutUint32(p[4:], uint32(firstBlock))
	for i := 1; i < count; i++ {
		binary.LittleEndian.PutUint32(p[i*8:], uint32(i)<<9)
		binary.LittleEndian.PutUint32(p[i*8+4:], uint32(firstBlock+i))
	}
}
