package server

import (
	"context"

	"github.com/example/ext4nfs/pkg/nfs"
)

// exportPath is the single export this server offers: the volume root.
const exportPath = "/"

// dispatchMount decodes and answers one MOUNT v3 procedure call. The
// program shares the NFS socket, so clients mount with an explicit
// mountport.
func (s *Server) dispatchMount(ctx context.Context, e *nfs.Encoder, call *nfs.CallHeader, d *nfs.Decoder, clientAddr string) {
	xid := call.XID

	switch call.Procedure {
	case nfs.MntProcNull:
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)

	case nfs.MntProcMnt:
		path, err := d.String(nfs.PathMaxSize)
		if err != nil {
			nfs.EncodeAcceptedReply(e, xid, nfs.AcceptGarbageArgs)
			return
		}
		res := s.handleMount(ctx, path, xid, clientAddr)
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)
		res.Encode(e)

	case nfs.MntProcDump:
		// Mounts are not tracked, the list is always empty
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)
		e.Bool(false)

	case nfs.MntProcUmnt:
		if _, err := d.String(nfs.PathMaxSize); err != nil {
			nfs.EncodeAcceptedReply(e, xid, nfs.AcceptGarbageArgs)
			return
		}
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)

	case nfs.MntProcUmntAll:
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)

	case nfs.MntProcExport:
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptSuccess)
		nfs.EncodeExports(e, []nfs.ExportEntry{{Dir: exportPath}})

	default:
		nfs.EncodeAcceptedReply(e, xid, nfs.AcceptProcUnavail)
	}
}

// handleMount resolves a MNT request for the export root.
func (s *Server) handleMount(ctx context.Context, path string, xid uint32, clientAddr string) *nfs.Mount3Res {
	// Overwritten by the closure; stands when the worker pool is full
	res := &nfs.Mount3Res{Status: nfs.MntErrSrvFault}
	s.processRequest(ctx, "Mnt", xid, clientAddr, func() (nfs.Status, error) {
		if path != exportPath {
			res.Status = nfs.MntErrNoEnt
			return nfs.StatusNoEnt, nil
		}
		res.Status = nfs.MntOK
		res.Handle = s.fileSystem.Root().Serialize()
		res.AuthFlavors = []uint32{nfs.AuthNone, nfs.AuthSys}
		return nfs.StatusOK, nil
	})
	return res
}
