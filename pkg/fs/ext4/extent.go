package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// extent is one run of a file's block mapping: count logical blocks
// starting at first, stored at physical block start. Unwritten extents
// are allocated but uninitialized and read as zeros.
type extent struct {
	first   uint64
	count   uint64
	start   uint64
	written bool
}

// extentHeader mirrors struct ext4_extent_header (12 bytes).
type extentHeader struct {
	Magic      uint16
	Entries    uint16
	Max        uint16
	Depth      uint16
	Generation uint32
}

// diskExtentIdx mirrors struct ext4_extent_idx: an interior entry
// pointing at the node covering logical blocks from Block onward.
type diskExtentIdx struct {
	Block  uint32
	LeafLo uint32
	LeafHi uint16
	Unused uint16
}

// diskExtent mirrors struct ext4_extent: a leaf entry. A length above
// 32768 marks the extent unwritten, with the real length offset by that
// bias.
type diskExtent struct {
	Block   uint32
	Len     uint16
	StartHi uint16
	StartLo uint32
}

const (
	extentNodeSize       = 12
	extentUnwrittenBias  = 32768
	maxExtentsPerFile    = 1 << 20
	extentTailSize       = 4
	extentRootHeaderSize = 60
)

// extentWalk carries the state of one tree traversal.
type extentWalk struct {
	v       *Volume
	ino     *inode
	seed    uint32
	visited map[uint64]struct{}
	out     []extent
}

// extents resolves the inode's complete block mapping in logical order.
// Extent-mapped inodes walk the tree rooted in the inode record; legacy
// inodes walk the direct and indirect pointer arrays. The result is
// validated to be sorted and non-overlapping, so a corrupt tree cannot
// send readers in circles or double-map a range.
func (v *Volume) extents(ino *inode) ([]extent, error) {
	if !ino.usesExtents() {
		return v.blockMapExtents(ino)
	}

	w := &extentWalk{
		v:       v,
		ino:     ino,
		visited: make(map[uint64]struct{}),
	}
	if v.verifyCsum {
		w.seed = v.csumSeedForInode(ino)
	}

	root := ino.raw.Block[:extentRootHeaderSize]
	hdr, err := decodeExtentHeader(root)
	if err != nil {
		return nil, err
	}
	if hdr.Depth > maxExtentDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrCorruptExtentTree, hdr.Depth)
	}
	if err := w.node(root, hdr, int(hdr.Depth), true); err != nil {
		return nil, err
	}

	return finishExtents(w.out)
}

func decodeExtentHeader(node []byte) (*extentHeader, error) {
	var hdr extentHeader
	if err := binary.Read(bytes.NewReader(node[:extentNodeSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptExtentTree, err)
	}
	if hdr.Magic != extentMagic {
		return nil, fmt.Errorf("%w: bad node magic 0x%04x", ErrCorruptExtentTree, hdr.Magic)
	}
	return &hdr, nil
}

// node decodes one tree node. depth is the expected header depth; it
// strictly decreases toward the leaves, which together with the visited
// set bounds the traversal on corrupt media.
func (w *extentWalk) node(node []byte, hdr *extentHeader, depth int, isRoot bool) error {
	capacity := (len(node) - extentNodeSize) / extentNodeSize
	if !isRoot && w.v.verifyCsum {
		capacity = (len(node) - extentNodeSize - extentTailSize) / extentNodeSize
	}
	if int(hdr.Depth) != depth {
		return fmt.Errorf("%w: node depth %d, expected %d", ErrCorruptExtentTree, hdr.Depth, depth)
	}
	if int(hdr.Entries) > int(hdr.Max) || int(hdr.Max) > capacity {
		return fmt.Errorf("%w: %d entries, max %d, capacity %d",
			ErrCorruptExtentTree, hdr.Entries, hdr.Max, capacity)
	}

	entries := node[extentNodeSize:]
	if depth == 0 {
		return w.leafEntries(entries, int(hdr.Entries))
	}
	return w.indexEntries(entries, int(hdr.Entries), depth)
}

func (w *extentWalk) leafEntries(raw []byte, n int) error {
	for i := 0; i < n; i++ {
		var de diskExtent
		rec := raw[i*extentNodeSize : (i+1)*extentNodeSize]
		if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &de); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptExtentTree, err)
		}

		ext := extent{
			first:   uint64(de.Block),
			count:   uint64(de.Len),
			start:   uint64(de.StartHi)<<32 | uint64(de.StartLo),
			written: true,
		}
		if de.Len > extentUnwrittenBias {
			ext.count = uint64(de.Len) - extentUnwrittenBias
			ext.written = false
		}
		if ext.count == 0 {
			return fmt.Errorf("%w: zero-length extent at block %d", ErrCorruptExtentTree, ext.first)
		}
		if ext.start+ext.count > w.v.blocksCount {
			return fmt.Errorf("%w: extent %d+%d beyond volume end",
				ErrCorruptExtentTree, ext.start, ext.count)
		}
		if len(w.out) >= maxExtentsPerFile {
			return fmt.Errorf("%w: more than %d extents", ErrCorruptExtentTree, maxExtentsPerFile)
		}
		w.out = append(w.out, ext)
	}
	return nil
}

func (w *extentWalk) indexEntries(raw []byte, n, depth int) error {
	block := make([]byte, w.v.blockSize)
	for i := 0; i < n; i++ {
		var idx diskExtentIdx
		rec := raw[i*extentNodeSize : (i+1)*extentNodeSize]
		if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &idx); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptExtentTree, err)
		}

		child := uint64(idx.LeafHi)<<32 | uint64(idx.LeafLo)
		if _, seen := w.visited[child]; seen {
			return fmt.Errorf("%w: node block %d visited twice", ErrCorruptExtentTree, child)
		}
		w.visited[child] = struct{}{}

		if err := w.v.readBlock(child, block); err != nil {
			return err
		}
		hdr, err := decodeExtentHeader(block)
		if err != nil {
			return err
		}
		if w.v.verifyCsum {
			if err := w.verifyNodeChecksum(block, hdr, child); err != nil {
				return err
			}
		}
		if err := w.node(block, hdr, depth-1, false); err != nil {
			return err
		}
	}
	return nil
}

// verifyNodeChecksum checks the tail checksum of an on-disk tree node.
// The tail sits after the node's maximum entry area and covers everything
// before it, seeded per inode.
func (w *extentWalk) verifyNodeChecksum(block []byte, hdr *extentHeader, blockNum uint64) error {
	tailOff := extentNodeSize + int(hdr.Max)*extentNodeSize
	if tailOff+extentTailSize > len(block) {
		return fmt.Errorf("%w: checksum tail beyond block in node %d", ErrCorruptExtentTree, blockNum)
	}
	want := binary.LittleEndian.Uint32(block[tailOff : tailOff+extentTailSize])
	got := crc32c(w.seed, block[:tailOff])
	if got != want {
		return fmt.Errorf("%w: checksum mismatch in node %d", ErrCorruptExtentTree, blockNum)
	}
	return nil
}

// finishExtents sorts the collected runs and enforces that each logical
// range is covered at most once.
func finishExtents(exts []extent) ([]extent, error) {
	sort.Slice(exts, func(i, j int) bool { return exts[i].first < exts[j].first })
	for i := 1; i < len(exts); i++ {
		prev := &exts[i-1]
		if prev.first+prev.count > exts[i].first {
			return nil, fmt.Errorf("%w: overlapping ranges at block %d",
				ErrCorruptExtentTree, exts[i].first)
		}
	}
	return exts, nil
}

// findExtent locates the run covering logical block lb, or nil when the
// block falls in a hole.
func findExtent(exts []extent, lb uint64) *extent {
	i := sort.Search(len(exts), func(i int) bool {
		return exts[i].first+exts[i].count > lb
	})
	if i < len(exts) && exts[i].first <= lb {
		return &exts[i]
	}
	return nil
}
