package ext4

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/example/ext4nfs/pkg/fs"
)

// FileSystem implements fs.FileSystem over an ext4 volume. The volume
// is treated as immutable for the lifetime of the process, so decoded
// attributes and directory listings are cached without invalidation.
type FileSystem struct {
	vol *Volume

	// fsID identifies this volume in file handles, derived from the
	// volume UUID
	fsID uint32

	// generation tags every handle minted by this server run. Handles
	// carrying another generation are stale: an inode number may have
	// been reused since they were issued.
	generation uint32

	// attrCache maps inode number to decoded fs.FileInfo
	attrCache sync.Map

	// dirCache maps directory inode number to its complete entry list
	dirCache sync.Map
}

// NewFileSystem opens the ext4 volume in r and wraps it in the generic
// filesystem interface.
func NewFileSystem(r io.ReaderAt) (*FileSystem, error) {
	vol, err := OpenVolume(r)
	if err != nil {
		return nil, err
	}

	return &FileSystem{
		vol:        vol,
		fsID:       generateFsID(vol.UUID()),
		generation: uint32(time.Now().Unix()),
	}, nil
}

// generateFsID hashes the volume UUID into a handle-sized identifier.
func generateFsID(uuid [16]byte) uint32 {
	var h uint32
	for _, b := range uuid {
		h = h*31 + uint32(b)
	}
	return h
}

// Volume exposes the underlying volume for tools that want raw access.
func (e *FileSystem) Volume() *Volume {
	return e.vol
}

// Root returns the handle of the volume's root directory.
func (e *FileSystem) Root() *fs.FileHandle {
	return &fs.FileHandle{
		FileSystemID: e.fsID,
		Inode:        RootInode,
		Generation:   e.generation,
	}
}

// handleFor mints a handle for an inode of this volume.
func (e *FileSystem) handleFor(inode uint64) *fs.FileHandle {
	return &fs.FileHandle{
		FileSystemID: e.fsID,
		Inode:        inode,
		Generation:   e.generation,
	}
}

// Resolve validates a serialized handle against this volume and run.
// Malformed encodings fail the same way outdated ones do: the handle
// cannot name a live object, so the client must look it up again.
func (e *FileSystem) Resolve(raw []byte) (*fs.FileHandle, error) {
	if len(raw) != fs.HandleSize {
		return nil, fs.ErrStale
	}

	fh, err := fs.DeserializeFileHandle(raw)
	if err != nil {
		return nil, fs.ErrStale
	}

	if fh.FileSystemID != e.fsID || fh.Generation != e.generation {
		return nil, fs.ErrStale
	}
	if fh.Inode < 1 || fh.Inode > e.vol.InodesCount() {
		return nil, fs.ErrStale
	}

	return fh, nil
}

// inodeInfo returns the cached attributes of an inode, decoding the
// on-disk record on first use.
func (e *FileSystem) inodeInfo(num uint64) (fs.FileInfo, error) {
	if cached, ok := e.attrCache.Load(num); ok {
		return cached.(fs.FileInfo), nil
	}

	ino, err := e.vol.readInode(num)
	if err != nil {
		return fs.FileInfo{}, err
	}

	info := ino.fileInfo(e.vol)
	e.attrCache.Store(num, info)
	return info, nil
}

// dirEntries returns the cached complete listing of a directory,
// enumerating it on first use.
func (e *FileSystem) dirEntries(num uint64) ([]dirEntry, error) {
	if cached, ok := e.dirCache.Load(num); ok {
		return cached.([]dirEntry), nil
	}

	ino, err := e.vol.readInode(num)
	if err != nil {
		return nil, err
	}
	if !ino.isDir() {
		return nil, fs.ErrNotDir
	}

	entries, err := e.vol.readDirAll(ino)
	if err != nil {
		return nil, err
	}

	e.dirCache.Store(num, entries)
	return entries, nil
}

// inodeRef renders an inode number for error context.
func inodeRef(num uint64) string {
	return "inode " + strconv.FormatUint(num, 10)
}

// GetAttr retrieves the attributes of the file behind the handle.
func (e *FileSystem) GetAttr(ctx context.Context, fh *fs.FileHandle) (fs.FileInfo, error) {
	info, err := e.inodeInfo(fh.Inode)
	if err != nil {
		return fs.FileInfo{}, fs.NewError("getattr", inodeRef(fh.Inode), err)
	}
	return info, nil
}

// Lookup finds name within the directory and returns the child's handle
// and attributes.
func (e *FileSystem) Lookup(ctx context.Context, dir *fs.FileHandle, name string) (*fs.FileHandle, fs.FileInfo, error) {
	if err := checkName(name); err != nil {
		return nil, fs.FileInfo{}, fs.NewError("lookup", name, err)
	}

	dirInfo, err := e.inodeInfo(dir.Inode)
	if err != nil {
		return nil, fs.FileInfo{}, fs.NewError("lookup", inodeRef(dir.Inode), err)
	}
	if dirInfo.Type != fs.FileTypeDirectory {
		return nil, fs.FileInfo{}, fs.NewError("lookup", inodeRef(dir.Inode), fs.ErrNotDir)
	}

	// "." is the directory itself; no scan needed.
	if name == "." {
		return e.handleFor(dir.Inode), dirInfo, nil
	}

	entries, err := e.dirEntries(dir.Inode)
	if err != nil {
		return nil, fs.FileInfo{}, fs.NewError("lookup", inodeRef(dir.Inode), err)
	}

	for i := range entries {
		if entries[i].name != name {
			continue
		}
		info, err := e.inodeInfo(entries[i].inode)
		if err != nil {
			return nil, fs.FileInfo{}, fs.NewError("lookup", name, err)
		}
		return e.handleFor(entries[i].inode), info, nil
	}

	return nil, fs.FileInfo{}, fs.NewError("lookup", name, fs.ErrNotExist)
}

// checkName rejects names a directory can never contain.
func checkName(name string) error {
	if name == "" {
		return fs.ErrInvalidName
	}
	if len(name) > 255 {
		return fs.ErrNameTooLong
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return fs.ErrInvalidName
		}
	}
	return nil
}

// Access reports which of the requested permission classes are granted.
// The volume is exported read-only to everyone, so read, lookup and
// execute classes pass through and write classes never do.
func (e *FileSystem) Access(ctx context.Context, fh *fs.FileHandle, mode uint32) (uint32, error) {
	info, err := e.inodeInfo(fh.Inode)
	if err != nil {
		return 0, fs.NewError("access", inodeRef(fh.Inode), err)
	}

	var supported uint32
	if info.Type == fs.FileTypeDirectory {
		supported = fs.AccessRead | fs.AccessLookup | fs.AccessExecute
	} else {
		supported = fs.AccessRead | fs.AccessExecute
	}
	return mode & supported, nil
}

// Read returns up to count bytes of the file starting at offset and
// whether the read reached end of file.
func (e *FileSystem) Read(ctx context.Context, fh *fs.FileHandle, offset uint64, count uint32) ([]byte, bool, error) {
	ino, err := e.vol.readInode(fh.Inode)
	if err != nil {
		return nil, false, fs.NewError("read", inodeRef(fh.Inode), err)
	}
	if ino.isDir() {
		return nil, false, fs.NewError("read", inodeRef(fh.Inode), fs.ErrIsDir)
	}
	if !ino.isRegular() {
		return nil, false, fs.NewError("read", inodeRef(fh.Inode), fs.ErrInvalid)
	}

	data, eof, err := e.vol.readRange(ino, offset, count)
	if err != nil {
		return nil, false, fs.NewError("read", inodeRef(fh.Inode), err)
	}
	return data, eof, nil
}

// Readlink returns the target of a symbolic link.
func (e *FileSystem) Readlink(ctx context.Context, fh *fs.FileHandle) (string, error) {
	ino, err := e.vol.readInode(fh.Inode)
	if err != nil {
		return "", fs.NewError("readlink", inodeRef(fh.Inode), err)
	}
	if !ino.isSymlink() {
		return "", fs.NewError("readlink", inodeRef(fh.Inode), fs.ErrInvalid)
	}

	target, err := e.vol.readSymlink(ino)
	if err != nil {
		return "", fs.NewError("readlink", inodeRef(fh.Inode), err)
	}
	return target, nil
}

// ReadDir lists directory entries starting after the position named by
// cookie. Cookie zero starts at the beginning; the cookie stored on each
// returned entry resumes directly after it. count caps the number of
// entries returned, with zero meaning no cap.
func (e *FileSystem) ReadDir(ctx context.Context, dir *fs.FileHandle, cookie uint64, count uint32) ([]fs.DirEntry, bool, error) {
	entries, err := e.dirEntries(dir.Inode)
	if err != nil {
		return nil, false, fs.NewError("readdir", inodeRef(dir.Inode), err)
	}

	if cookie > uint64(len(entries)) {
		return nil, false, fs.NewError("readdir", inodeRef(dir.Inode), fs.ErrBadCookie)
	}

	start := int(cookie)
	end := len(entries)
	if count != 0 && start+int(count) < end {
		end = start + int(count)
	}

	out := make([]fs.DirEntry, 0, end-start)
	for i := start; i < end; i++ {
		entry := fs.DirEntry{
			Name:   entries[i].name,
			FileId: entries[i].inode,
			Cookie: uint64(i) + 1,
		}
		if info, err := e.inodeInfo(entries[i].inode); err == nil {
			entry.Attributes = &info
		}
		out = append(out, entry)
	}

	return out, end == len(entries), nil
}

// StatFS returns usage statistics of the volume.
func (e *FileSystem) StatFS(ctx context.Context) (fs.FSStat, error) {
	return e.vol.Stat(), nil
}
