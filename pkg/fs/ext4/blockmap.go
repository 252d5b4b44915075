package ext4

import (
	"encoding/binary"
	"fmt"
)

const directBlocks = 12

// blockMapExtents resolves the mapping of a legacy inode: twelve direct
// pointers followed by single, double, and triple indirect blocks. Runs
// of adjacent blocks coalesce into one extent so the read path sees the
// same shape either way. A zero pointer is a hole.
func (v *Volume) blockMapExtents(ino *inode) ([]extent, error) {
	ppb := v.blockSize / 4
	need := (ino.size() + v.blockSize - 1) / v.blockSize

	m := &blockMapWalk{v: v, need: need}

	for i := 0; i < directBlocks; i++ {
		phys := uint64(binary.LittleEndian.Uint32(ino.raw.Block[i*4:]))
		if err := m.add(uint64(i), phys); err != nil {
			return nil, err
		}
	}

	logical := uint64(directBlocks)
	for level, span := 1, ppb; level <= 3; level, span = level+1, span*ppb {
		ptr := uint64(binary.LittleEndian.Uint32(ino.raw.Block[(directBlocks+level-1)*4:]))
		if err := m.indirect(ptr, logical, level); err != nil {
			return nil, err
		}
		logical += span
	}

	return finishExtents(m.out)
}

type blockMapWalk struct {
	v    *Volume
	need uint64
	out  []extent
}

// add records the mapping of one logical block, extending the previous run
// when both sides are adjacent.
func (m *blockMapWalk) add(logical, phys uint64) error {
	if phys == 0 || logical >= m.need {
		return nil
	}
	if phys >= m.v.blocksCount {
		return fmt.Errorf("%w: block pointer %d beyond volume end", ErrCorruptExtentTree, phys)
	}
	if n := len(m.out); n > 0 {
		last := &m.out[n-1]
		if last.first+last.count == logical && last.start+last.count == phys {
			last.count++
			return nil
		}
	}
	if len(m.out) >= maxExtentsPerFile {
		return fmt.Errorf("%w: more than %d extents", ErrCorruptExtentTree, maxExtentsPerFile)
	}
	m.out = append(m.out, extent{first: logical, count: 1, start: phys, written: true})
	return nil
}

// indirect walks one indirect block at the given level. level 1 holds
// block pointers directly; higher levels hold pointers to lower-level
// indirect blocks.
func (m *blockMapWalk) indirect(ptr, logical uint64, level int) error {
	if ptr == 0 || logical >= m.need {
		return nil
	}
	if ptr >= m.v.blocksCount {
		return fmt.Errorf("%w: indirect block %d beyond volume end", ErrCorruptExtentTree, ptr)
	}

	block := make([]byte, m.v.blockSize)
	if err := m.v.readBlock(ptr, block); err != nil {
		return err
	}

	ppb := m.v.blockSize / 4
	span := uint64(1)
	for i := 1; i < level; i++ {
		span *= ppb
	}

	for i := uint64(0); i < ppb; i++ {
		child := uint64(binary.LittleEndian.Uint32(block[i*4:]))
		at := logical + i*span
		if level == 1 {
			if err := m.add(at, child); err != nil {
				return err
			}
			continue
		}
		if err := m.indirect(child, at, level-1); err != nil {
			return err
		}
	}
	return nil
}
