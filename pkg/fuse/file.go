package fuse

import (
	"context"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/example/ext4nfs/pkg/fs"
)

// File is a regular file node.
type File struct {
	fsys fs.FileSystem
	fh   *fs.FileHandle
}

var _ fusefs.Node = (*File)(nil)
var _ fusefs.HandleReader = (*File)(nil)

// Attr fills in the file attributes.
func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := f.fsys.GetAttr(ctx, f.fh)
	if err != nil {
		return mapError(err)
	}
	fillAttr(&info, attr)
	return nil
}

// Read serves one read request.
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if req.Offset < 0 || req.Size <= 0 {
		return nil
	}
	data, _, err := f.fsys.Read(ctx, f.fh, uint64(req.Offset), uint32(req.Size))
	if err != nil {
		return mapError(err)
	}
	resp.Data = data
	return nil
}

// Symlink is a symbolic link node.
type Symlink struct {
	fsys fs.FileSystem
	fh   *fs.FileHandle
}

var _ fusefs.Node = (*Symlink)(nil)
var _ fusefs.NodeReadlinker = (*Symlink)(nil)

// Attr fills in the link attributes.
func (s *Symlink) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := s.fsys.GetAttr(ctx, s.fh)
	if err != nil {
		return mapError(err)
	}
	fillAttr(&info, attr)
	return nil
}

// Readlink returns the link target.
func (s *Symlink) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	target, err := s.fsys.Readlink(ctx, s.fh)
	if err != nil {
		return "", mapError(err)
	}
	return target, nil
}
