package server

import (
	"bytes"
	"context"

	"github.com/example/ext4nfs/pkg/fs"
	"github.com/example/ext4nfs/pkg/nfs"
)

// Reply size accounting for the READDIR budget. The fixed part covers
// the RPC reply header, status, directory attributes, cookie verifier,
// list terminator and eof flag; the per-entry part covers everything but
// the name bytes.
const (
	readDirFixedOverhead = 132
	readDirEntryOverhead = 24

	// READDIRPLUS adds present attributes and a handle per entry.
	readDirPlusAttrOverhead   = 88
	readDirPlusHandleOverhead = 8 + fs.HandleSize

	// maxReplySize caps client-requested reply budgets.
	maxReplySize = 1 << 20
)

// Static FSINFO and PATHCONF values. The volume is immutable, so the
// preferred sizes never change while serving.
const (
	fsinfoBlockMult = 4096
	fsinfoDirPref   = 32768
	fsinfoMaxFile   = 1 << 44
	pathconfLinkMax = 65000
	pathconfNameMax = 255
)

func pad4(n int) int {
	return (n + 3) &^ 3
}

// dispatchNFS decodes and answers one NFSv3 procedure call.
func (s *Server) dispatchNFS(ctx context.Context, e *nfs.Encoder, call *nfs.CallHeader, d *nfs.Decoder, clientAddr string) {
	xid := call.XID

	// Decode failures below this point answer GARBAGE_ARGS
	garbage := func() {
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptGarbageArgs)
	}
	success := func() {
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)
	}

	switch call.Procedure {
	case nfs.Proc3Null:
		success()

	case nfs.Proc3GetAttr:
		args := &nfs.GetAttr3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		res := s.handleGetAttr(ctx, args, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3SetAttr:
		args := &nfs.SetAttr3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "SetAttr", args.Handle, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Lookup:
		args := &nfs.DirOpArgs3{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		res := s.handleLookup(ctx, args, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3Access:
		args := &nfs.Access3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		res := s.handleAccess(ctx, args, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3Readlink:
		handle, err := d.Opaque(nfs.HandleMaxSize)
		if err != nil {
			garbage()
			return
		}
		res := s.handleReadlink(ctx, handle, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3Read:
		args := &nfs.Read3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		res := s.handleRead(ctx, args, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3Write:
		args := &nfs.Write3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Write", args.Handle, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Create:
		args := &nfs.Create3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Create", args.Dir, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Mkdir:
		args := &nfs.Mkdir3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Mkdir", args.Dir, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Symlink:
		args := &nfs.Symlink3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Symlink", args.Dir, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Mknod:
		args := &nfs.Mknod3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Mknod", args.Dir, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Remove:
		args := &nfs.DirOpArgs3{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Remove", args.Dir, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Rmdir:
		args := &nfs.DirOpArgs3{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Rmdir", args.Dir, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	case nfs.Proc3Rename:
		args := &nfs.Rename3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, fromWcc, toWcc := s.handleRename(ctx, args, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		fromWcc.Encode(e)
		toWcc.Encode(e)

	case nfs.Proc3Link:
		args := &nfs.Link3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, fileAttr, dirWcc := s.handleLink(ctx, args, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		fileAttr.Encode(e)
		dirWcc.Encode(e)

	case nfs.Proc3ReadDir:
		args := &nfs.ReadDir3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		res := s.handleReadDir(ctx, args, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3ReadDirPlus:
		args := &nfs.ReadDirPlus3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		res := s.handleReadDirPlus(ctx, args, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3FSStat:
		handle, err := d.Opaque(nfs.HandleMaxSize)
		if err != nil {
			garbage()
			return
		}
		res := s.handleFSStat(ctx, handle, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3FSInfo:
		handle, err := d.Opaque(nfs.HandleMaxSize)
		if err != nil {
			garbage()
			return
		}
		res := s.handleFSInfo(ctx, handle, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3PathConf:
		handle, err := d.Opaque(nfs.HandleMaxSize)
		if err != nil {
			garbage()
			return
		}
		res := s.handlePathConf(ctx, handle, xid, clientAddr)
		success()
		res.Encode(e)

	case nfs.Proc3Commit:
		args := &nfs.Commit3Args{}
		if args.Decode(d) != nil {
			garbage()
			return
		}
		status, wcc := s.handleRejectUpdate(ctx, "Commit", args.Handle, xid, clientAddr)
		success()
		e.Uint32(uint32(status))
		wcc.Encode(e)

	default:
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptProcUnavail)
	}
}

// postOpAttr fetches attributes for a post-op arm, absent on failure.
func (s *Server) postOpAttr(ctx context.Context, fh *fs.FileHandle) nfs.PostOpAttr {
	info, err := s.fileSystem.GetAttr(ctx, fh)
	if err != nil {
		return nfs.PostOpAttr{}
	}
	return nfs.PostOpAttr{Present: true, Attr: nfs.FileInfoToFattr3(&info, s.fsid)}
}

// postOpAttrRaw resolves a serialized handle before fetching attributes.
func (s *Server) postOpAttrRaw(ctx context.Context, raw []byte) nfs.PostOpAttr {
	fh, err := s.fileSystem.Resolve(raw)
	if err != nil {
		return nfs.PostOpAttr{}
	}
	return s.postOpAttr(ctx, fh)
}

func (s *Server) handleGetAttr(ctx context.Context, args *nfs.GetAttr3Args, xid uint32, clientAddr string) *nfs.GetAttr3Res {
	res := &nfs.GetAttr3Res{}
	res.Status = s.processRequest(ctx, "GetAttr", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(args.Handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		info, err := s.fileSystem.GetAttr(ctx, fh)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Attr = nfs.FileInfoToFattr3(&info, s.fsid)
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleLookup(ctx context.Context, args *nfs.DirOpArgs3, xid uint32, clientAddr string) *nfs.Lookup3Res {
	res := &nfs.Lookup3Res{}
	res.Status = s.processRequest(ctx, "Lookup", xid, clientAddr, func() (nfs.Status, error) {
		dir, err := s.fileSystem.Resolve(args.Dir)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.DirAttr = s.postOpAttr(ctx, dir)

		child, info, err := s.fileSystem.Lookup(ctx, dir, args.Name)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Handle = child.Serialize()
		res.ObjAttr = nfs.PostOpAttr{Present: true, Attr: nfs.FileInfoToFattr3(&info, s.fsid)}
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleAccess(ctx context.Context, args *nfs.Access3Args, xid uint32, clientAddr string) *nfs.Access3Res {
	res := &nfs.Access3Res{}
	res.Status = s.processRequest(ctx, "Access", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(args.Handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.ObjAttr = s.postOpAttr(ctx, fh)

		granted, err := s.fileSystem.Access(ctx, fh, args.Access)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Access = granted
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleReadlink(ctx context.Context, handle []byte, xid uint32, clientAddr string) *nfs.Readlink3Res {
	res := &nfs.Readlink3Res{}
	res.Status = s.processRequest(ctx, "Readlink", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.SymAttr = s.postOpAttr(ctx, fh)

		target, err := s.fileSystem.Readlink(ctx, fh)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Target = target
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleRead(ctx context.Context, args *nfs.Read3Args, xid uint32, clientAddr string) *nfs.Read3Res {
	res := &nfs.Read3Res{}
	res.Status = s.processRequest(ctx, "Read", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(args.Handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}

		// Limit read size
		count := args.Count
		if max := s.config.MaxReadSize; max > 0 && count > uint32(max) {
			count = uint32(max)
		}

		data, eof, err := s.fileSystem.Read(ctx, fh, args.Offset, count)
		res.FileAttr = s.postOpAttr(ctx, fh)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}

		res.Count = uint32(len(data))
		res.EOF = eof
		res.Data = data
		return nfs.StatusOK, nil
	})
	return res
}

// handleRejectUpdate answers a mutation procedure with NFS3ERR_ROFS,
// carrying best-effort post-op attributes of the named target.
func (s *Server) handleRejectUpdate(ctx context.Context, op string, target []byte, xid uint32, clientAddr string) (nfs.Status, nfs.WccData) {
	var wcc nfs.WccData
	status := s.processRequest(ctx, op, xid, clientAddr, func() (nfs.Status, error) {
		wcc.After = s.postOpAttrRaw(ctx, target)
		return nfs.StatusROFS, nil
	})
	return status, wcc
}

func (s *Server) handleRename(ctx context.Context, args *nfs.Rename3Args, xid uint32, clientAddr string) (nfs.Status, nfs.WccData, nfs.WccData) {
	var fromWcc, toWcc nfs.WccData
	status := s.processRequest(ctx, "Rename", xid, clientAddr, func() (nfs.Status, error) {
		fromWcc.After = s.postOpAttrRaw(ctx, args.FromDir)
		toWcc.After = s.postOpAttrRaw(ctx, args.ToDir)
		return nfs.StatusROFS, nil
	})
	return status, fromWcc, toWcc
}

func (s *Server) handleLink(ctx context.Context, args *nfs.Link3Args, xid uint32, clientAddr string) (nfs.Status, nfs.PostOpAttr, nfs.WccData) {
	var fileAttr nfs.PostOpAttr
	var dirWcc nfs.WccData
	status := s.processRequest(ctx, "Link", xid, clientAddr, func() (nfs.Status, error) {
		fileAttr = s.postOpAttrRaw(ctx, args.Handle)
		dirWcc.After = s.postOpAttrRaw(ctx, args.Dir)
		return nfs.StatusROFS, nil
	})
	return status, fileAttr, dirWcc
}

// cookieVerfOK accepts the verifier handed out by this server run. A
// zero verifier passes too: the first call carries one, and the export
// cannot change underneath a stale-but-zero client.
func (s *Server) cookieVerfOK(cookie uint64, verf []byte) bool {
	if cookie == 0 {
		return true
	}
	zero := true
	for _, b := range verf {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return true
	}
	return bytes.Equal(verf, s.cookieVerf[:])
}

func (s *Server) handleReadDir(ctx context.Context, args *nfs.ReadDir3Args, xid uint32, clientAddr string) *nfs.ReadDir3Res {
	res := &nfs.ReadDir3Res{}
	res.Status = s.processRequest(ctx, "ReadDir", xid, clientAddr, func() (nfs.Status, error) {
		dir, err := s.fileSystem.Resolve(args.Handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.DirAttr = s.postOpAttr(ctx, dir)

		if !s.cookieVerfOK(args.Cookie, args.CookieVerf) {
			return nfs.StatusBadCookie, nil
		}

		entries, eof, err := s.fileSystem.ReadDir(ctx, dir, args.Cookie, 0)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}

		// Pack entries until the reply budget is spent
		budget := int(args.Count)
		if budget > maxReplySize {
			budget = maxReplySize
		}
		used := readDirFixedOverhead
		for _, ent := range entries {
			need := readDirEntryOverhead + pad4(len(ent.Name))
			if used+need > budget {
				if len(res.Entries) == 0 {
					return nfs.StatusTooSmall, nil
				}
				eof = false
				break
			}
			res.Entries = append(res.Entries, nfs.DirEntry3{
				FileID: ent.FileId,
				Name:   ent.Name,
				Cookie: ent.Cookie,
			})
			used += need
		}

		res.CookieVerf = s.cookieVerf[:]
		res.EOF = eof
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleReadDirPlus(ctx context.Context, args *nfs.ReadDirPlus3Args, xid uint32, clientAddr string) *nfs.ReadDirPlus3Res {
	res := &nfs.ReadDirPlus3Res{}
	res.Status = s.processRequest(ctx, "ReadDirPlus", xid, clientAddr, func() (nfs.Status, error) {
		dir, err := s.fileSystem.Resolve(args.Handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.DirAttr = s.postOpAttr(ctx, dir)

		if !s.cookieVerfOK(args.Cookie, args.CookieVerf) {
			return nfs.StatusBadCookie, nil
		}

		entries, eof, err := s.fileSystem.ReadDir(ctx, dir, args.Cookie, 0)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}

		// dircount budgets the directory portion of each entry, maxcount
		// the whole reply
		dirBudget := int(args.DirCount)
		maxBudget := int(args.MaxCount)
		if maxBudget > maxReplySize {
			maxBudget = maxReplySize
		}
		root := s.fileSystem.Root()
		used := readDirFixedOverhead
		dirUsed := 0
		for _, ent := range entries {
			base := readDirEntryOverhead + pad4(len(ent.Name))
			need := base + readDirPlusAttrOverhead + readDirPlusHandleOverhead
			if used+need > maxBudget || dirUsed+base > dirBudget {
				if len(res.Entries) == 0 {
					return nfs.StatusTooSmall, nil
				}
				eof = false
				break
			}

			entry := nfs.DirEntryPlus3{
				FileID: ent.FileId,
				Name:   ent.Name,
				Cookie: ent.Cookie,
			}
			if ent.Attributes != nil {
				entry.Attr = nfs.PostOpAttr{Present: true, Attr: nfs.FileInfoToFattr3(ent.Attributes, s.fsid)}
			}
			child := fs.FileHandle{
				FileSystemID: root.FileSystemID,
				Inode:        ent.FileId,
				Generation:   root.Generation,
			}
			entry.FH = nfs.PostOpFH3{Present: true, Handle: child.Serialize()}

			res.Entries = append(res.Entries, entry)
			used += need
			dirUsed += base
		}

		res.CookieVerf = s.cookieVerf[:]
		res.EOF = eof
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleFSStat(ctx context.Context, handle []byte, xid uint32, clientAddr string) *nfs.FSStat3Res {
	res := &nfs.FSStat3Res{}
	res.Status = s.processRequest(ctx, "FSStat", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Attr = s.postOpAttr(ctx, fh)

		stat, err := s.fileSystem.StatFS(ctx)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.TotalBytes = stat.TotalBytes
		res.FreeBytes = stat.FreeBytes
		res.AvailBytes = stat.AvailBytes
		res.TotalFiles = stat.TotalFiles
		res.FreeFiles = stat.FreeFiles
		res.AvailFiles = stat.FreeFiles
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handleFSInfo(ctx context.Context, handle []byte, xid uint32, clientAddr string) *nfs.FSInfo3Res {
	res := &nfs.FSInfo3Res{}
	res.Status = s.processRequest(ctx, "FSInfo", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Attr = s.postOpAttr(ctx, fh)

		max := uint32(s.config.MaxReadSize)
		res.RTMax = max
		res.RTPref = max
		res.RTMult = fsinfoBlockMult
		res.WTMax = max
		res.WTPref = max
		res.WTMult = fsinfoBlockMult
		res.DTPref = fsinfoDirPref
		res.MaxFileSize = fsinfoMaxFile
		res.TimeDelta = nfs.FileTime{Seconds: 0, Nano: 1}
		res.Properties = nfs.FSFLink | nfs.FSFSymlink | nfs.FSFHomogeneous
		return nfs.StatusOK, nil
	})
	return res
}

func (s *Server) handlePathConf(ctx context.Context, handle []byte, xid uint32, clientAddr string) *nfs.PathConf3Res {
	res := &nfs.PathConf3Res{}
	res.Status = s.processRequest(ctx, "PathConf", xid, clientAddr, func() (nfs.Status, error) {
		fh, err := s.fileSystem.Resolve(handle)
		if err != nil {
			return nfs.MapErrorToStatus(err), err
		}
		res.Attr = s.postOpAttr(ctx, fh)

		res.LinkMax = pathconfLinkMax
		res.NameMax = pathconfNameMax
		res.NoTrunc = true
		res.ChownRestricted = true
		res.CaseInsensitive = false
		res.CasePreserving = true
		return nfs.StatusOK, nil
	})
	return res
}
