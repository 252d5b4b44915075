package client

import (
	"context"
	"fmt"

	"github.com/example/ext4nfs/pkg/nfs"
)

// nfsCall runs one NFSv3 procedure with retry.
func (c *Client) nfsCall(ctx context.Context, op string, procedure uint32,
	args func(*nfs.Encoder), decode func(*nfs.Decoder) error) error {

	return c.callWithRetry(ctx, op, func(callCtx context.Context) error {
		d, err := c.call(callCtx, nfs.ProgramNFS, nfs.VersionNFS, procedure, args)
		if err != nil {
			return err
		}
		return decode(d)
	})
}

// Null performs the NULL procedure, a connectivity probe.
func (c *Client) Null(ctx context.Context) error {
	return c.nfsCall(ctx, "Null", nfs.Proc3Null, nil, func(d *nfs.Decoder) error {
		return nil
	})
}

// Mount asks the MOUNT program for the handle of the named export.
func (c *Client) Mount(ctx context.Context, path string) ([]byte, error) {
	var handle []byte
	err := c.callWithRetry(ctx, "Mnt", func(callCtx context.Context) error {
		d, err := c.call(callCtx, nfs.ProgramMnt, nfs.VersionMnt, nfs.MntProcMnt, func(e *nfs.Encoder) {
			e.String(path)
		})
		if err != nil {
			return err
		}
		res := &nfs.Mount3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.MntOK {
			return mountStatusToError("Mnt", res.Status)
		}
		handle = res.Handle
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// Unmount tells the MOUNT program the export is no longer in use.
func (c *Client) Unmount(ctx context.Context, path string) error {
	return c.callWithRetry(ctx, "Umnt", func(callCtx context.Context) error {
		_, err := c.call(callCtx, nfs.ProgramMnt, nfs.VersionMnt, nfs.MntProcUmnt, func(e *nfs.Encoder) {
			e.String(path)
		})
		return err
	})
}

// Exports lists the server's export table.
func (c *Client) Exports(ctx context.Context) ([]nfs.ExportEntry, error) {
	var exports []nfs.ExportEntry
	err := c.callWithRetry(ctx, "Export", func(callCtx context.Context) error {
		d, err := c.call(callCtx, nfs.ProgramMnt, nfs.VersionMnt, nfs.MntProcExport, nil)
		if err != nil {
			return err
		}
		exports, err = nfs.DecodeExports(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return exports, nil
}

// GetRootFileHandle retrieves the root directory file handle from the
// server, mounting the "/" export on first use.
func (c *Client) GetRootFileHandle(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	root := c.root
	c.mu.Unlock()
	if root != nil {
		return root, nil
	}

	root, err := c.Mount(ctx, "/")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	return root, nil
}

// GetAttr retrieves attributes for a file or directory
func (c *Client) GetAttr(ctx context.Context, fileHandle []byte) (*nfs.Fattr3, error) {
	var attr *nfs.Fattr3
	err := c.nfsCall(ctx, "GetAttr", nfs.Proc3GetAttr, func(e *nfs.Encoder) {
		(&nfs.GetAttr3Args{Handle: fileHandle}).Encode(e)
	}, func(d *nfs.Decoder) error {
		res := &nfs.GetAttr3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("GetAttr", res.Status)
		}
		attr = &res.Attr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// Lookup looks up a file name in a directory
func (c *Client) Lookup(ctx context.Context, dirHandle []byte, name string) ([]byte, *nfs.Fattr3, error) {
	var handle []byte
	var attr *nfs.Fattr3
	err := c.nfsCall(ctx, "Lookup", nfs.Proc3Lookup, func(e *nfs.Encoder) {
		(&nfs.DirOpArgs3{Dir: dirHandle, Name: name}).Encode(e)
	}, func(d *nfs.Decoder) error {
		res := &nfs.Lookup3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("Lookup", res.Status)
		}
		handle = res.Handle
		if res.ObjAttr.Present {
			attr = &res.ObjAttr.Attr
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return handle, attr, nil
}

// Access reports which of the requested permission bits the server
// grants for the file.
func (c *Client) Access(ctx context.Context, fileHandle []byte, mode uint32) (uint32, error) {
	var granted uint32
	err := c.nfsCall(ctx, "Access", nfs.Proc3Access, func(e *nfs.Encoder) {
		(&nfs.Access3Args{Handle: fileHandle, Access: mode}).Encode(e)
	}, func(d *nfs.Decoder) error {
		res := &nfs.Access3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("Access", res.Status)
		}
		granted = res.Access
		return nil
	})
	return granted, err
}

// Readlink reads the target of a symbolic link.
func (c *Client) Readlink(ctx context.Context, fileHandle []byte) (string, error) {
	var target string
	err := c.nfsCall(ctx, "Readlink", nfs.Proc3Readlink, func(e *nfs.Encoder) {
		e.Opaque(fileHandle)
	}, func(d *nfs.Decoder) error {
		res := &nfs.Readlink3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("Readlink", res.Status)
		}
		target = res.Target
		return nil
	})
	return target, err
}

// Read reads up to count bytes from a file at the specified offset.
// Returns the data read, a boolean indicating if EOF was reached, and
// any error. The server may return fewer bytes than requested only at
// end of file.
func (c *Client) Read(ctx context.Context, fileHandle []byte, offset uint64, count uint32) ([]byte, bool, error) {
	var data []byte
	var eof bool
	err := c.nfsCall(ctx, "Read", nfs.Proc3Read, func(e *nfs.Encoder) {
		(&nfs.Read3Args{Handle: fileHandle, Offset: offset, Count: count}).Encode(e)
	}, func(d *nfs.Decoder) error {
		res := &nfs.Read3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("Read", res.Status)
		}
		data = res.Data
		eof = res.EOF
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, eof, nil
}

// ReadAll reads a whole file by issuing READ calls until EOF.
func (c *Client) ReadAll(ctx context.Context, fileHandle []byte) ([]byte, error) {
	const chunk = 64 * 1024

	var out []byte
	var offset uint64
	for {
		data, eof, err := c.Read(ctx, fileHandle, offset, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		offset += uint64(len(data))
		if eof {
			return out, nil
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("read at offset %d returned no data without eof", offset)
		}
	}
}

// ReadDirPage performs one READDIR call. cookie and cookieVerf resume a
// previous page; both are zero-valued on the first call.
func (c *Client) ReadDirPage(ctx context.Context, dirHandle []byte, cookie uint64, cookieVerf []byte, count uint32) (*nfs.ReadDir3Res, error) {
	var page *nfs.ReadDir3Res
	err := c.nfsCall(ctx, "ReadDir", nfs.Proc3ReadDir, func(e *nfs.Encoder) {
		(&nfs.ReadDir3Args{Handle: dirHandle, Cookie: cookie, CookieVerf: cookieVerf, Count: count}).Encode(e)
	}, func(d *nfs.Decoder) error {
		res := &nfs.ReadDir3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("ReadDir", res.Status)
		}
		page = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ReadDir reads the complete contents of a directory, following
// continuation cookies until the server reports the end.
func (c *Client) ReadDir(ctx context.Context, dirHandle []byte) ([]nfs.DirEntry3, error) {
	const pageSize = 64 * 1024

	var entries []nfs.DirEntry3
	var cookie uint64
	var verf []byte
	for {
		page, err := c.ReadDirPage(ctx, dirHandle, cookie, verf, pageSize)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page.Entries...)
		if page.EOF {
			return entries, nil
		}
		if len(page.Entries) == 0 {
			return nil, fmt.Errorf("readdir page at cookie %d was empty without eof", cookie)
		}
		cookie = page.Entries[len(page.Entries)-1].Cookie
		verf = page.CookieVerf
	}
}

// ReadDirPlusPage performs one READDIRPLUS call, returning per-entry
// attributes and handles alongside the names.
func (c *Client) ReadDirPlusPage(ctx context.Context, dirHandle []byte, cookie uint64, cookieVerf []byte, dirCount, maxCount uint32) (*nfs.ReadDirPlus3Res, error) {
	var page *nfs.ReadDirPlus3Res
	err := c.nfsCall(ctx, "ReadDirPlus", nfs.Proc3ReadDirPlus, func(e *nfs.Encoder) {
		(&nfs.ReadDirPlus3Args{
			Handle: dirHandle, Cookie: cookie, CookieVerf: cookieVerf,
			DirCount: dirCount, MaxCount: maxCount,
		}).Encode(e)
	}, func(d *nfs.Decoder) error {
		res := &nfs.ReadDirPlus3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("ReadDirPlus", res.Status)
		}
		page = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// FSStat retrieves file system usage statistics.
func (c *Client) FSStat(ctx context.Context, rootHandle []byte) (*nfs.FSStat3Res, error) {
	var stat *nfs.FSStat3Res
	err := c.nfsCall(ctx, "FSStat", nfs.Proc3FSStat, func(e *nfs.Encoder) {
		e.Opaque(rootHandle)
	}, func(d *nfs.Decoder) error {
		res := &nfs.FSStat3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("FSStat", res.Status)
		}
		stat = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stat, nil
}

// FSInfo retrieves the server's static limits and preferences.
func (c *Client) FSInfo(ctx context.Context, rootHandle []byte) (*nfs.FSInfo3Res, error) {
	var info *nfs.FSInfo3Res
	err := c.nfsCall(ctx, "FSInfo", nfs.Proc3FSInfo, func(e *nfs.Encoder) {
		e.Opaque(rootHandle)
	}, func(d *nfs.Decoder) error {
		res := &nfs.FSInfo3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("FSInfo", res.Status)
		}
		info = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// PathConf retrieves POSIX pathname limits for the object.
func (c *Client) PathConf(ctx context.Context, fileHandle []byte) (*nfs.PathConf3Res, error) {
	var conf *nfs.PathConf3Res
	err := c.nfsCall(ctx, "PathConf", nfs.Proc3PathConf, func(e *nfs.Encoder) {
		e.Opaque(fileHandle)
	}, func(d *nfs.Decoder) error {
		res := &nfs.PathConf3Res{}
		if err := res.Decode(d); err != nil {
			return err
		}
		if res.Status != nfs.StatusOK {
			return StatusToError("PathConf", res.Status)
		}
		conf = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}
