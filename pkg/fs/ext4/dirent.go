package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	direntHeaderSize = 8

	// dx_root layout: two fake entries hide the index from linear
	// readers, the root info sits at byte 24 and index entries at 32.
	// dx_node blocks carry a single fake entry, entries start at 8.
	dxRootInfoOffset    = 24
	dxRootEntriesOffset = 32
	dxNodeEntriesOffset = 8
	dxEntrySize         = 8
)

// dirEntry is one live directory record. fileType carries the on-disk
// type code and is only meaningful when the volume stores types in
// directory entries.
type dirEntry struct {
	inode    uint64
	name     string
	fileType uint8
}

// readDirAll enumerates every live entry of a directory in on-disk
// order: for linear directories the block sequence, for hashed trees
// the root block followed by the leaves in index order. The order is
// stable as the volume is immutable, so positions in the returned
// slice serve as resume points.
func (v *Volume) readDirAll(ino *inode) ([]dirEntry, error) {
	exts, err := v.extents(ino)
	if err != nil {
		return nil, err
	}

	blocks := ino.size() / v.blockSize
	if blocks == 0 || ino.size()%v.blockSize != 0 {
		return nil, fmt.Errorf("%w: inode %d size %d not block aligned",
			ErrCorruptDirectory, ino.num, ino.size())
	}

	if ino.raw.Flags&flagIndex != 0 {
		return v.readHtreeDir(ino, exts, blocks)
	}

	var out []dirEntry
	block := make([]byte, v.blockSize)
	for lb := uint64(0); lb < blocks; lb++ {
		if err := v.readDirBlock(exts, lb, block); err != nil {
			return nil, err
		}
		out, err = v.parseDirentBlock(block, out)
		if err != nil {
			return nil, fmt.Errorf("%w in inode %d block %d", err, ino.num, lb)
		}
	}
	return out, nil
}

// readHtreeDir enumerates a hashed-tree directory. The root block
// parses linearly for "." and ".." (its fake entries span the index),
// then the index walk yields each leaf block. Hash values are never
// computed or compared; enumeration only follows block pointers.
func (v *Volume) readHtreeDir(ino *inode, exts []extent, blocks uint64) ([]dirEntry, error) {
	block := make([]byte, v.blockSize)
	if err := v.readDirBlock(exts, 0, block); err != nil {
		return nil, err
	}

	out, err := v.parseDirentBlock(block, nil)
	if err != nil {
		return nil, fmt.Errorf("%w in inode %d root block", err, ino.num)
	}

	leaves, err := v.htreeLeaves(ino, exts, block, blocks)
	if err != nil {
		return nil, err
	}

	for _, lb := range leaves {
		if err := v.readDirBlock(exts, lb, block); err != nil {
			return nil, err
		}
		out, err = v.parseDirentBlock(block, out)
		if err != nil {
			return nil, fmt.Errorf("%w in inode %d block %d", err, ino.num, lb)
		}
	}
	return out, nil
}

// htreeLeaves collects the logical block numbers of all leaf blocks,
// in index order. root is the already-read block 0.
func (v *Volume) htreeLeaves(ino *inode, exts []extent, root []byte, blocks uint64) ([]uint64, error) {
	if len(root) < dxRootEntriesOffset+dxEntrySize {
		return nil, fmt.Errorf("%w: inode %d root block too small", ErrCorruptDirectory, ino.num)
	}

	infoLength := root[dxRootInfoOffset+1]
	levels := int(root[dxRootInfoOffset+2])
	if infoLength != 8 {
		return nil, fmt.Errorf("%w: inode %d index info length %d",
			ErrCorruptDirectory, ino.num, infoLength)
	}
	if levels > maxHtreeLevels {
		return nil, fmt.Errorf("%w: inode %d index depth %d",
			ErrCorruptDirectory, ino.num, levels)
	}

	w := &htreeWalk{
		v:       v,
		ino:     ino,
		exts:    exts,
		blocks:  blocks,
		visited: map[uint64]struct{}{0: {}},
	}
	if err := w.node(root, dxRootEntriesOffset, levels); err != nil {
		return nil, err
	}
	return w.leaves, nil
}

type htreeWalk struct {
	v       *Volume
	ino     *inode
	exts    []extent
	blocks  uint64
	visited map[uint64]struct{}
	leaves  []uint64
}

// node walks the index entries of one root or interior block. levels is
// the number of interior levels still below this node; at zero the
// entries point at leaf dirent blocks.
func (w *htreeWalk) node(block []byte, entriesOff, levels int) error {
	limit := int(binary.LittleEndian.Uint16(block[entriesOff:]))
	count := int(binary.LittleEndian.Uint16(block[entriesOff+2:]))
	capacity := (len(block) - entriesOff) / dxEntrySize
	if count == 0 || count > limit || limit > capacity {
		return fmt.Errorf("%w: inode %d index count %d limit %d",
			ErrCorruptDirectory, w.ino.num, count, limit)
	}

	next := make([]byte, w.v.blockSize)
	for i := 0; i < count; i++ {
		// Entry 0 overlays count and limit on its hash field; only the
		// block pointer matters here.
		lb := uint64(binary.LittleEndian.Uint32(block[entriesOff+i*dxEntrySize+4:]))
		if lb == 0 || lb >= w.blocks {
			return fmt.Errorf("%w: inode %d index points at block %d of %d",
				ErrCorruptDirectory, w.ino.num, lb, w.blocks)
		}
		if _, seen := w.visited[lb]; seen {
			return fmt.Errorf("%w: inode %d block %d indexed twice",
				ErrCorruptDirectory, w.ino.num, lb)
		}
		w.visited[lb] = struct{}{}

		if levels == 0 {
			w.leaves = append(w.leaves, lb)
			continue
		}

		if err := w.v.readDirBlock(w.exts, lb, next); err != nil {
			return err
		}
		if err := w.checkNodeFakeDirent(next, lb); err != nil {
			return err
		}
		if err := w.node(next, dxNodeEntriesOffset, levels-1); err != nil {
			return err
		}
	}
	return nil
}

// checkNodeFakeDirent validates the 8-byte fake entry that makes an
// interior index block parse as an empty dirent block.
func (w *htreeWalk) checkNodeFakeDirent(block []byte, lb uint64) error {
	inum := binary.LittleEndian.Uint32(block[0:4])
	recLen := decodeRecLen(binary.LittleEndian.Uint16(block[4:6]), w.v.blockSize)
	if inum != 0 || recLen != w.v.blockSize {
		return fmt.Errorf("%w: inode %d block %d is not an index node",
			ErrCorruptDirectory, w.ino.num, lb)
	}
	return nil
}

// readDirBlock reads the directory's logical block lb. Directories have
// no holes; an unmapped or unwritten block is corruption.
func (v *Volume) readDirBlock(exts []extent, lb uint64, p []byte) error {
	e := findExtent(exts, lb)
	if e == nil || !e.written {
		return fmt.Errorf("%w: unmapped directory block %d", ErrCorruptDirectory, lb)
	}
	return v.readBlock(e.start+(lb-e.first), p)
}

// decodeRecLen undoes the overloaded encoding used with 64KiB blocks,
// where 0xFFFF stands in for the full block size.
func decodeRecLen(recLen uint16, blockSize uint64) uint64 {
	if recLen == 0xFFFF && blockSize == 65536 {
		return blockSize
	}
	return uint64(recLen)
}

// parseDirentBlock appends the live entries of one dirent block to out.
// Records with inode zero are unused space (deleted entries, the fake
// records of an index root, checksum tails) and are skipped without
// further decoding.
func (v *Volume) parseDirentBlock(block []byte, out []dirEntry) ([]dirEntry, error) {
	off := uint64(0)
	for off+direntHeaderSize <= uint64(len(block)) {
		inum := binary.LittleEndian.Uint32(block[off:])
		recLen := decodeRecLen(binary.LittleEndian.Uint16(block[off+4:]), v.blockSize)
		nameLen := uint64(block[off+6])
		fileType := block[off+7]

		if recLen < direntHeaderSize || recLen%4 != 0 || off+recLen > uint64(len(block)) {
			return nil, fmt.Errorf("%w: record length %d at offset %d",
				ErrCorruptDirectory, recLen, off)
		}

		if inum != 0 {
			if direntHeaderSize+nameLen > recLen {
				return nil, fmt.Errorf("%w: name length %d exceeds record at offset %d",
					ErrCorruptDirectory, nameLen, off)
			}
			if uint64(inum) > uint64(v.sb.InodesCount) {
				return nil, fmt.Errorf("%w: entry references inode %d of %d",
					ErrCorruptDirectory, inum, v.sb.InodesCount)
			}
			name := block[off+direntHeaderSize : off+direntHeaderSize+nameLen]
			if nameLen == 0 || bytes.IndexByte(name, 0) >= 0 || bytes.IndexByte(name, '/') >= 0 {
				return nil, fmt.Errorf("%w: invalid entry name at offset %d",
					ErrCorruptDirectory, off)
			}
			if !v.hasFileType {
				fileType = 0
			}
			out = append(out, dirEntry{
				inode:    uint64(inum),
				name:     string(name),
				fileType: fileType,
			})
		}

		off += recLen
	}
	return out, nil
}
