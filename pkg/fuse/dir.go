package fuse

import (
	"context"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/example/ext4nfs/pkg/fs"
)

// Dir is a directory node.
type Dir struct {
	fsys fs.FileSystem
	fh   *fs.FileHandle
}

var _ fusefs.Node = (*Dir)(nil)
var _ fusefs.NodeStringLookuper = (*Dir)(nil)
var _ fusefs.HandleReadDirAller = (*Dir)(nil)

// Attr fills in the directory attributes.
func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := d.fsys.GetAttr(ctx, d.fh)
	if err != nil {
		return mapError(err)
	}
	fillAttr(&info, attr)
	return nil
}

// Lookup resolves one name within the directory.
func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child, info, err := d.fsys.Lookup(ctx, d.fh, name)
	if err != nil {
		return nil, mapError(err)
	}
	return newNode(d.fsys, child, &info), nil
}

// ReadDirAll lists the whole directory. The kernel asks for everything
// at once, so the cookie sweep happens here.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var out []fuse.Dirent
	var cookie uint64
	for {
		entries, eof, err := d.fsys.ReadDir(ctx, d.fh, cookie, 0)
		if err != nil {
			return nil, mapError(err)
		}
		for _, ent := range entries {
			de := fuse.Dirent{
				Inode: ent.FileId,
				Name:  ent.Name,
			}
			if ent.Attributes != nil {
				de.Type = direntType(ent.Attributes.Type)
			}
			out = append(out, de)
			cookie = ent.Cookie
		}
		if eof || len(entries) == 0 {
			return out, nil
		}
	}
}
