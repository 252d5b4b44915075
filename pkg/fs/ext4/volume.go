// Package ext4 reads the ext4 on-disk format from a byte-addressable block
// source. It decodes superblock, group descriptors, inodes, extent trees,
// legacy indirect block maps and directory blocks, and exposes the volume
// through the read-only fs.FileSystem interface. Nothing in this package
// ever writes to the source.
package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/example/ext4nfs/pkg/fs"
)

// Volume is an opened ext4 filesystem. It holds the block source, the
// decoded superblock and the group descriptor table, all immutable after
// OpenVolume returns, so concurrent readers need no locking beyond what
// the io.ReaderAt itself guarantees.
type Volume struct {
	r io.ReaderAt

	sb     superblock
	groups []groupDesc

	// Derived constants, decoded once.
	blockSize   uint64
	blocksCount uint64
	is64        bool
	hasFileType bool
	csumSeed    uint32
	verifyCsum  bool
}

// OpenVolume reads and validates the superblock and group descriptor table
// of the filesystem backed by r. It fails with ErrCorruptSuperblock when
// the superblock does not decode and with ErrUnsupportedFeature when the
// volume uses incompatible features this reader cannot handle.
func OpenVolume(r io.ReaderAt) (*Volume, error) {
	raw := make([]byte, 1024)
	if _, err := r.ReadAt(raw, superblockOffset); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	v := &Volume{r: r}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &v.sb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSuperblock, err)
	}

	if err := v.validateSuperblock(); err != nil {
		return nil, err
	}
	if err := v.loadGroupDescriptors(); err != nil {
		return nil, err
	}

	return v, nil
}

func (v *Volume) validateSuperblock() error {
	sb := &v.sb

	if sb.Magic != superblockMagic {
		return fmt.Errorf("%w: bad magic 0x%04x", ErrCorruptSuperblock, sb.Magic)
	}
	if sb.LogBlockSize > 6 {
		return fmt.Errorf("%w: log block size %d", ErrCorruptSuperblock, sb.LogBlockSize)
	}
	v.blockSize = 1024 << sb.LogBlockSize
	v.is64 = sb.FeatureIncompat&incompat64Bit != 0
	v.blocksCount = sb.blocksCount(v.is64)
	v.hasFileType = sb.FeatureIncompat&incompatFileType != 0

	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 {
		return fmt.Errorf("%w: zero blocks or inodes per group", ErrCorruptSuperblock)
	}
	if sb.InodesCount == 0 || v.blocksCount == 0 {
		return fmt.Errorf("%w: empty volume geometry", ErrCorruptSuperblock)
	}
	if is := sb.inodeSize(); is < oldInodeSize || uint64(is) > v.blockSize {
		return fmt.Errorf("%w: inode size %d", ErrCorruptSuperblock, is)
	}

	if unsupported := sb.FeatureIncompat &^ supportedIncompat; unsupported != 0 {
		return fmt.Errorf("%w: incompat flags 0x%x", ErrUnsupportedFeature, unsupported)
	}
	if sb.FeatureIncompat&incompatRecover != 0 {
		logrus.Warn("journal has uncommitted transactions; serving the last checkpointed state")
	}

	// Metadata checksums seed every block-level checksum with either the
	// precomputed seed or a CRC of the volume UUID.
	if sb.FeatureROCompat&roCompatMetadataCsum != 0 {
		v.verifyCsum = true
		if sb.FeatureIncompat&incompatCsumSeed != 0 {
			v.csumSeed = sb.ChecksumSeed
		} else {
			v.csumSeed = crc32c(^uint32(0), sb.UUID[:])
		}
	}

	return nil
}

// loadGroupDescriptors reads the descriptor table that follows the
// superblock's block.
func (v *Volume) loadGroupDescriptors() error {
	sb := &v.sb

	groupCount := (v.blocksCount - uint64(sb.FirstDataBlock) + uint64(sb.BlocksPerGroup) - 1) /
		uint64(sb.BlocksPerGroup)
	if groupCount == 0 || groupCount > 1<<22 {
		return fmt.Errorf("%w: %d block groups", ErrCorruptSuperblock, groupCount)
	}
	inodeGroups := (uint64(sb.InodesCount) + uint64(sb.InodesPerGroup) - 1) / uint64(sb.InodesPerGroup)
	if inodeGroups > groupCount {
		return fmt.Errorf("%w: inode count spans %d groups, volume has %d",
			ErrCorruptSuperblock, inodeGroups, groupCount)
	}

	descSize := sb.descSize()
	tableOff := uint64(sb.FirstDataBlock+1) * v.blockSize
	raw := make([]byte, groupCount*uint64(descSize))
	if _, err := v.r.ReadAt(raw, int64(tableOff)); err != nil {
		return fmt.Errorf("reading group descriptors: %w", err)
	}

	v.groups = make([]groupDesc, groupCount)
	buf := make([]byte, 64)
	for i := range v.groups {
		for j := range buf {
			buf[j] = 0
		}
		copy(buf, raw[uint64(i)*uint64(descSize):uint64(i+1)*uint64(descSize)])
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v.groups[i]); err != nil {
			return fmt.Errorf("%w: group descriptor %d: %v", ErrCorruptSuperblock, i, err)
		}
	}

	return nil
}

// BlockSize returns the volume's block size in bytes.
func (v *Volume) BlockSize() uint64 {
	return v.blockSize
}

// InodesCount returns the total number of inode slots on the volume.
func (v *Volume) InodesCount() uint64 {
	return uint64(v.sb.InodesCount)
}

// UUID returns the volume's identity as recorded in the superblock.
func (v *Volume) UUID() [16]byte {
	return v.sb.UUID
}

// Label returns the volume name, empty if unset.
func (v *Volume) Label() string {
	n := bytes.IndexByte(v.sb.VolumeName[:], 0)
	if n < 0 {
		n = len(v.sb.VolumeName)
	}
	return string(v.sb.VolumeName[:n])
}

// Stat sums the free-space counters from the group descriptors. The
// counters are maintained lazily by writers, so the result is the same
// best-effort approximation a statfs on the dirty volume would see.
func (v *Volume) Stat() fs.FSStat {
	var freeBlocks, freeInodes uint64
	for i := range v.groups {
		freeBlocks += v.groups[i].freeBlocksCount(v.is64)
		freeInodes += v.groups[i].freeInodesCount(v.is64)
	}

	total := v.blocksCount * v.blockSize
	free := freeBlocks * v.blockSize
	return fs.FSStat{
		TotalBytes:    total,
		FreeBytes:     free,
		AvailBytes:    free,
		TotalFiles:    uint64(v.sb.InodesCount),
		FreeFiles:     freeInodes,
		NameMaxLength: 255,
	}
}

// readBlock reads physical block n into p, which must be at most one
// block long.
func (v *Volume) readBlock(n uint64, p []byte) error {
	if n >= v.blocksCount {
		return fmt.Errorf("%w: block %d beyond volume end", ErrCorruptExtentTree, n)
	}
	if _, err := v.r.ReadAt(p, int64(n*v.blockSize)); err != nil {
		return fs.NewError("readBlock", "", fs.ErrIO)
	}
	return nil
}

// groupDescriptorFor returns the descriptor of the block group holding
// inode n.
func (v *Volume) groupDescriptorFor(n uint64) (*groupDesc, error) {
	group := (n - 1) / uint64(v.sb.InodesPerGroup)
	if group >= uint64(len(v.groups)) {
		return nil, fmt.Errorf("%w: inode %d in group %d of %d",
			ErrInvalidInode, n, group, len(v.groups))
	}
	return &v.groups[group], nil
}
