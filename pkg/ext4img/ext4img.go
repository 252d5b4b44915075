// Package ext4img assembles small ext4 volume images in memory. It
// exists for tests and tooling that need a filesystem with exactly
// known geometry and contents, without shelling out to mkfs. The
// builder covers the read side of the format: extent and legacy block
// maps, linear and hashed-tree directories, fast and slow symlinks,
// device nodes, sparse and unwritten regions.
package ext4img

import (
	"fmt"
	"time"
)

// Run describes one mapped region of a file's content. Regions between
// runs are holes. An unwritten run allocates Blocks blocks, fills them
// with junk and marks the extent uninitialized, so a correct reader
// must return zeros for it. Gap makes the allocator skip blocks before
// placing the run, forcing physical discontiguity.
type Run struct {
	Logical   uint64
	Data      []byte
	Blocks    uint64
	Unwritten bool
	Gap       uint64
}

type nodeKind int

const (
	kindDir nodeKind = iota
	kindFile
	kindSymlink
	kindDevice
	kindFifo
	kindSocket
)

// Node is a file or directory being assembled. The zero value is not
// usable; nodes come from Builder methods.
type Node struct {
	num  uint64
	kind nodeKind
	mode uint16
	uid  uint32
	gid  uint32

	links uint32

	atime, mtime, ctime time.Time
	crtime              time.Time

	// regular file content plan
	size     uint64
	runs     []Run
	blockMap bool

	// symlink target
	target string

	// device number, packed new-style; char selects character over
	// block device
	rdev uint32
	char bool

	// directory model
	entries     []dentry
	names       map[string]bool
	htreeLevels int
	htree       bool
}

type dentry struct {
	name     string
	node     *Node
	fileType uint8
}

// Builder accumulates a filesystem tree and writes it out as a single
// ext4 image. Errors latch: the first one sticks and Build reports it.
type Builder struct {
	blockSize  uint64
	blocks     uint64
	inodeCount uint32
	inodeSize  uint32
	uuid       [16]byte
	label      string
	now        time.Time

	use64Bit    bool
	useCsum     bool
	useFileType bool
	extraFlags  uint32

	root  *Node
	nodes []*Node
	next  uint64

	err error
}

// Option adjusts builder defaults.
type Option func(*Builder)

// WithBlockSize sets the block size. Valid sizes are powers of two from
// 1024 to 65536.
func WithBlockSize(size uint64) Option {
	return func(b *Builder) { b.blockSize = size }
}

// WithBlocks sets the total block count of the image.
func WithBlocks(count uint64) Option {
	return func(b *Builder) { b.blocks = count }
}

// WithInodes sets the total inode count.
func WithInodes(count uint32) Option {
	return func(b *Builder) { b.inodeCount = count }
}

// WithInodeSize sets the inode record size. 128 produces an old-format
// volume without extended timestamps.
func WithInodeSize(size uint32) Option {
	return func(b *Builder) { b.inodeSize = size }
}

// WithUUID sets the volume UUID.
func WithUUID(uuid [16]byte) Option {
	return func(b *Builder) { b.uuid = uuid }
}

// WithLabel sets the volume label.
func WithLabel(label string) Option {
	return func(b *Builder) { b.label = label }
}

// With64Bit enables the 64-bit feature: 64-byte group descriptors and
// high block count halves.
func With64Bit() Option {
	return func(b *Builder) { b.use64Bit = true }
}

// WithMetadataCsum enables metadata checksums. The builder writes valid
// checksum tails on extent tree nodes and directory blocks.
func WithMetadataCsum() Option {
	return func(b *Builder) { b.useCsum = true }
}

// WithoutFileType clears the filetype feature, so directory entries do
// not carry type codes.
func WithoutFileType() Option {
	return func(b *Builder) { b.useFileType = false }
}

// WithIncompatFlags ors extra incompatible feature flags into the
// superblock, valid or not. Useful for probing feature rejection.
func WithIncompatFlags(flags uint32) Option {
	return func(b *Builder) { b.extraFlags = flags }
}

// WithTimestamp sets the time recorded on the superblock and on nodes
// that are not given explicit times.
func WithTimestamp(t time.Time) Option {
	return func(b *Builder) { b.now = t }
}

// defaultUUID keeps images reproducible unless a test asks otherwise.
var defaultUUID = [16]byte{
	0x3a, 0x9f, 0x51, 0xc2, 0x6e, 0x04, 0x4b, 0x8d,
	0x92, 0x17, 0xd5, 0x60, 0x7b, 0xee, 0x38, 0xa1,
}

// New returns a builder holding an empty filesystem: a root directory
// containing lost+found, like a fresh mkfs run.
func New(opts ...Option) *Builder {
	b := &Builder{
		blockSize:   1024,
		blocks:      4096,
		inodeCount:  256,
		inodeSize:   256,
		uuid:        defaultUUID,
		now:         time.Unix(1600000000, 0),
		useFileType: true,
		next:        firstFreeInode,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.root = &Node{
		num:   rootInode,
		kind:  kindDir,
		mode:  0o755,
		links: 2,
	}
	b.stampTimes(b.root)
	b.root.entries = []dentry{
		{name: ".", node: b.root, fileType: ftDir},
		{name: "..", node: b.root, fileType: ftDir},
	}
	b.nodes = append(b.nodes, b.root)

	b.Dir(b.root, "lost+found")
	return b
}

func (b *Builder) stampTimes(n *Node) {
	n.atime, n.mtime, n.ctime, n.crtime = b.now, b.now, b.now, b.now
}

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// Root returns the root directory node.
func (b *Builder) Root() *Node {
	return b.root
}

func (b *Builder) allocInode() uint64 {
	num := b.next
	b.next++
	return num
}

func (b *Builder) attach(parent *Node, name string, child *Node, ft uint8) {
	if parent == nil || parent.kind != kindDir {
		b.fail("parent of %q is not a directory", name)
		return
	}
	if name == "" || len(name) > 255 {
		b.fail("invalid entry name %q", name)
		return
	}
	if parent.names == nil {
		parent.names = make(map[string]bool)
	}
	if parent.names[name] {
		b.fail("duplicate entry %q", name)
		return
	}
	parent.names[name] = true
	if !b.useFileType {
		ft = 0
	}
	parent.entries = append(parent.entries, dentry{name: name, node: child, fileType: ft})
}

func (b *Builder) newNode(parent *Node, name string, kind nodeKind, mode uint16, ft uint8) *Node {
	n := &Node{
		num:   b.allocInode(),
		kind:  kind,
		mode:  mode,
		links: 1,
	}
	b.stampTimes(n)
	b.attach(parent, name, n, ft)
	b.nodes = append(b.nodes, n)
	return n
}

// Dir creates an empty directory under parent.
func (b *Builder) Dir(parent *Node, name string) *Node {
	n := b.newNode(parent, name, kindDir, 0o755, ftDir)
	n.links = 2
	n.entries = []dentry{
		{name: ".", node: n, fileType: ftDir},
		{name: "..", node: parent, fileType: ftDir},
	}
	if parent != nil {
		parent.links++
	}
	return n
}

// File creates a regular file with contiguous content.
func (b *Builder) File(parent *Node, name string, data []byte) *Node {
	n := b.newNode(parent, name, kindFile, 0o644, ftRegular)
	n.size = uint64(len(data))
	if len(data) > 0 {
		n.runs = []Run{{Logical: 0, Data: data}}
	}
	return n
}

// FileRuns creates a regular file from explicit runs. size may extend
// past the last run, leaving a trailing hole.
func (b *Builder) FileRuns(parent *Node, name string, size uint64, runs []Run) *Node {
	n := b.newNode(parent, name, kindFile, 0o644, ftRegular)
	n.size = size
	n.runs = runs
	return n
}

// BlockMapFile creates a regular file mapped by the legacy direct and
// indirect block pointers instead of an extent tree.
func (b *Builder) BlockMapFile(parent *Node, name string, size uint64, runs []Run) *Node {
	n := b.newNode(parent, name, kindFile, 0o644, ftRegular)
	n.size = size
	n.runs = runs
	n.blockMap = true
	return n
}

// HardLink adds another name for an existing file.
func (b *Builder) HardLink(parent *Node, name string, target *Node) {
	if target == nil || target.kind == kindDir {
		b.fail("invalid hard link target for %q", name)
		return
	}
	b.attach(parent, name, target, fileTypeCode(target))
	target.links++
}

// Symlink creates a symbolic link. Targets up to 59 bytes are stored
// inline in the inode; longer targets occupy a data block.
func (b *Builder) Symlink(parent *Node, name, target string) *Node {
	n := b.newNode(parent, name, kindSymlink, 0o777, ftSymlink)
	n.target = target
	n.size = uint64(len(target))
	return n
}

// CharDev creates a character device node.
func (b *Builder) CharDev(parent *Node, name string, major, minor uint32) *Node {
	n := b.newNode(parent, name, kindDevice, 0o644, ftChar)
	n.rdev = packDev(major, minor)
	n.char = true
	return n
}

// BlockDev creates a block device node.
func (b *Builder) BlockDev(parent *Node, name string, major, minor uint32) *Node {
	n := b.newNode(parent, name, kindDevice, 0o644, ftBlock)
	n.rdev = packDev(major, minor)
	return n
}

// Fifo creates a named pipe.
func (b *Builder) Fifo(parent *Node, name string) *Node {
	return b.newNode(parent, name, kindFifo, 0o644, ftFifo)
}

// Socket creates a unix socket node.
func (b *Builder) Socket(parent *Node, name string) *Node {
	return b.newNode(parent, name, kindSocket, 0o644, ftSocket)
}

// HtreeDir creates a directory with a hashed-tree index. names become
// hard links to a single shared regular file; interiorLevels selects
// how many levels of index nodes sit between the root and the leaf
// blocks (0 or 1).
func (b *Builder) HtreeDir(parent *Node, name string, interiorLevels int, names []string) *Node {
	if interiorLevels < 0 || interiorLevels > 1 {
		b.fail("unsupported htree depth %d", interiorLevels)
		return nil
	}
	dir := b.Dir(parent, name)
	if dir == nil {
		return nil
	}
	dir.htree = true
	dir.htreeLevels = interiorLevels

	// All entries share one regular file inode, so even huge listings
	// cost a single inode.
	shared := &Node{num: b.allocInode(), kind: kindFile, mode: 0o644}
	b.stampTimes(shared)
	b.nodes = append(b.nodes, shared)

	for _, entryName := range names {
		b.attach(dir, entryName, shared, ftRegular)
		shared.links++
	}
	if shared.links == 0 {
		shared.links = 1
	}
	return dir
}

// LegacyDir creates a directory mapped by block pointers instead of an
// extent tree.
func (b *Builder) LegacyDir(parent *Node, name string) *Node {
	n := b.Dir(parent, name)
	if n != nil {
		n.blockMap = true
	}
	return n
}

// Chmod replaces the permission bits of a node.
func (b *Builder) Chmod(n *Node, perm uint16) {
	if n == nil {
		return
	}
	n.mode = perm & 0o7777
}

// Chown sets the owner of a node.
func (b *Builder) Chown(n *Node, uid, gid uint32) {
	if n == nil {
		return
	}
	n.uid, n.gid = uid, gid
}

// Times sets the access, modify and change times of a node.
func (b *Builder) Times(n *Node, atime, mtime, ctime time.Time) {
	if n == nil {
		return
	}
	n.atime, n.mtime, n.ctime = atime, mtime, ctime
}

// InodeNumber returns the inode number the node will occupy in the
// image.
func (n *Node) InodeNumber() uint64 {
	return n.num
}

func fileTypeCode(n *Node) uint8 {
	switch n.kind {
	case kindDir:
		return ftDir
	case kindSymlink:
		return ftSymlink
	case kindFifo:
		return ftFifo
	case kindSocket:
		return ftSocket
	case kindDevice:
		if n.char {
			return ftChar
		}
		return ftBlock
	default:
		return ftRegular
	}
}

// onDiskMode folds the node kind into the mode's type bits.
func (n *Node) onDiskMode() uint16 {
	perm := n.mode & 0o7777
	switch n.kind {
	case kindDir:
		return modeDir | perm
	case kindSymlink:
		return modeSymlink | perm
	case kindFifo:
		return modeFifo | perm
	case kindSocket:
		return modeSocket | perm
	case kindDevice:
		if n.char {
			return modeChar | perm
		}
		return modeBlock | perm
	default:
		return modeRegular | perm
	}
}

// packDev encodes a device number the way the kernel stores it in the
// second block slot.
func packDev(major, minor uint32) uint32 {
	return minor&0xFF | major<<8 | minor&^0xFF<<12
}
