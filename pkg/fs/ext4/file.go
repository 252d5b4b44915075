package ext4

import (
	"fmt"
	"sort"

	"github.com/example/ext4nfs/pkg/fs"
)

// readRange reads up to count bytes of the inode's data starting at
// offset. Holes and unwritten extents read as zeros. The byte count is
// clamped to the file size; the second result reports whether the read
// reached end of file.
func (v *Volume) readRange(ino *inode, offset uint64, count uint32) ([]byte, bool, error) {
	size := ino.size()
	if offset >= size {
		return nil, true, nil
	}

	n := uint64(count)
	if offset+n > size || offset+n < offset {
		n = size - offset
	}
	buf := make([]byte, n)

	exts, err := v.extents(ino)
	if err != nil {
		return nil, false, err
	}

	pos := offset
	end := offset + n
	for pos < end {
		lb := pos / v.blockSize
		e := findExtent(exts, lb)
		if e == nil {
			// Hole: the buffer is already zeroed, skip to the next
			// mapped run or the end of the request.
			i := sort.Search(len(exts), func(i int) bool { return exts[i].first > lb })
			next := end
			if i < len(exts) && exts[i].first*v.blockSize < end {
				next = exts[i].first * v.blockSize
			}
			pos = next
			continue
		}

		span := (e.first+e.count)*v.blockSize - pos
		if span > end-pos {
			span = end - pos
		}
		if e.written {
			phys := (e.start+(lb-e.first))*v.blockSize + pos%v.blockSize
			dst := buf[pos-offset : pos-offset+span]
			if _, err := v.r.ReadAt(dst, int64(phys)); err != nil {
				return nil, false, fmt.Errorf("%w: reading inode %d at %d", fs.ErrIO, ino.num, pos)
			}
		}
		pos += span
	}

	return buf, end >= size, nil
}
