package nfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ONC RPC v2 message constants (RFC 5531).
const (
	RPCVersion = 2

	MsgCall  = 0
	MsgReply = 1

	ReplyAccepted = 0
	ReplyDenied   = 1

	AcceptSuccess      = 0
	AcceptProgUnavail  = 1
	AcceptProgMismatch = 2
	AcceptProcUnavail  = 3
	AcceptGarbageArgs  = 4
	AcceptSystemErr    = 5

	RejectRPCMismatch = 0
	RejectAuthError   = 1

	AuthNone  = 0
	AuthSys   = 1
	AuthShort = 2

	// auth_stat values used when rejecting credentials.
	AuthBadCred = 1
	AuthTooWeak = 5

	// maxAuthBody is the RFC limit on opaque_auth body length.
	maxAuthBody = 400
)

// OpaqueAuth is an RPC authenticator: a flavor and its opaque body.
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte
}

func (a *OpaqueAuth) encode(e *Encoder) {
	e.Uint32(a.Flavor)
	e.Opaque(a.Body)
}

func (a *OpaqueAuth) decode(d *Decoder) error {
	var err error
	if a.Flavor, err = d.Uint32(); err != nil {
		return err
	}
	a.Body, err = d.Opaque(maxAuthBody)
	return err
}

// CallHeader is the decoded prefix of an RPC call. The procedure
// arguments follow it in the stream.
type CallHeader struct {
	XID        uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
}

// DecodeCall parses an RPC call header. A non-call message is malformed;
// an unsupported RPC version is left for the caller to reject, since the
// reply needs the decoded xid.
func DecodeCall(d *Decoder) (*CallHeader, error) {
	h := &CallHeader{}
	var err error
	if h.XID, err = d.Uint32(); err != nil {
		return nil, err
	}
	mtype, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if mtype != MsgCall {
		return nil, fmt.Errorf("%w: message type %d is not a call", ErrMalformed, mtype)
	}
	if h.RPCVersion, err = d.Uint32(); err != nil {
		return nil, err
	}
	if h.Program, err = d.Uint32(); err != nil {
		return nil, err
	}
	if h.Version, err = d.Uint32(); err != nil {
		return nil, err
	}
	if h.Procedure, err = d.Uint32(); err != nil {
		return nil, err
	}
	if err = h.Cred.decode(d); err != nil {
		return nil, err
	}
	if err = h.Verf.decode(d); err != nil {
		return nil, err
	}
	return h, nil
}

// EncodeCall writes an RPC call header. The caller appends the procedure
// arguments.
func EncodeCall(e *Encoder, xid, program, version, procedure uint32, cred, verf OpaqueAuth) {
	e.Uint32(xid)
	e.Uint32(MsgCall)
	e.Uint32(RPCVersion)
	e.Uint32(program)
	e.Uint32(version)
	e.Uint32(procedure)
	cred.encode(e)
	verf.encode(e)
}

// EncodeAcceptedReply writes an accepted reply header with the given
// accept status. For AcceptSuccess the caller appends the results; for
// AcceptProgMismatch it must append the supported version range.
func EncodeAcceptedReply(e *Encoder, xid, stat uint32) {
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(ReplyAccepted)
	none := OpaqueAuth{Flavor: AuthNone}
	none.encode(e)
	e.Uint32(stat)
}

// EncodeProgMismatchReply writes an accepted PROG_MISMATCH reply naming
// the only supported version.
func EncodeProgMismatchReply(e *Encoder, xid, low, high uint32) {
	EncodeAcceptedReply(e, xid, AcceptProgMismatch)
	e.Uint32(low)
	e.Uint32(high)
}

// EncodeAuthErrorReply writes a rejected reply carrying an auth_stat.
func EncodeAuthErrorReply(e *Encoder, xid, authStat uint32) {
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(ReplyDenied)
	e.Uint32(RejectAuthError)
	e.Uint32(authStat)
}

// EncodeRPCMismatchReply writes a rejected reply for an RPC version
// other than 2.
func EncodeRPCMismatchReply(e *Encoder, xid uint32) {
	e.Uint32(xid)
	e.Uint32(MsgReply)
	e.Uint32(ReplyDenied)
	e.Uint32(RejectRPCMismatch)
	e.Uint32(RPCVersion)
	e.Uint32(RPCVersion)
}

// AcceptError is a reply accepted with a status other than SUCCESS.
type AcceptError struct {
	Stat uint32

	// Supported version range, set for PROG_MISMATCH.
	Low  uint32
	High uint32
}

func (e *AcceptError) Error() string {
	switch e.Stat {
	case AcceptProgUnavail:
		return "rpc: program unavailable"
	case AcceptProgMismatch:
		return fmt.Sprintf("rpc: program version mismatch (server supports %d through %d)", e.Low, e.High)
	case AcceptProcUnavail:
		return "rpc: procedure unavailable"
	case AcceptGarbageArgs:
		return "rpc: garbage arguments"
	case AcceptSystemErr:
		return "rpc: system error"
	}
	return fmt.Sprintf("rpc: accept status %d", e.Stat)
}

// AuthRejectedError is a reply denied with an authentication failure.
type AuthRejectedError uint32

func (e AuthRejectedError) Error() string {
	return fmt.Sprintf("rpc: authentication rejected (auth_stat %d)", uint32(e))
}

// DecodeReply parses an RPC reply header, returning the xid. The
// procedure results follow in the stream only when the error is nil.
func DecodeReply(d *Decoder) (uint32, error) {
	xid, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	mtype, err := d.Uint32()
	if err != nil {
		return xid, err
	}
	if mtype != MsgReply {
		return xid, fmt.Errorf("%w: message type %d is not a reply", ErrMalformed, mtype)
	}
	stat, err := d.Uint32()
	if err != nil {
		return xid, err
	}

	if stat == ReplyDenied {
		reason, err := d.Uint32()
		if err != nil {
			return xid, err
		}
		if reason == RejectAuthError {
			authStat, err := d.Uint32()
			if err != nil {
				return xid, err
			}
			return xid, AuthRejectedError(authStat)
		}
		low, _ := d.Uint32()
		high, err := d.Uint32()
		if err != nil {
			return xid, err
		}
		return xid, fmt.Errorf("rpc: version mismatch (server supports %d through %d)", low, high)
	}

	var verf OpaqueAuth
	if err := verf.decode(d); err != nil {
		return xid, err
	}
	astat, err := d.Uint32()
	if err != nil {
		return xid, err
	}
	if astat == AcceptSuccess {
		return xid, nil
	}

	ae := &AcceptError{Stat: astat}
	if astat == AcceptProgMismatch {
		ae.Low, _ = d.Uint32()
		ae.High, _ = d.Uint32()
	}
	return xid, ae
}

// AuthSysCred is a decoded AUTH_SYS (AUTH_UNIX) credential body.
type AuthSysCred struct {
	Stamp   uint32
	Machine string
	UID     uint32
	GID     uint32
	Groups  []uint32
}

// DecodeAuthSys parses an AUTH_SYS credential body.
func DecodeAuthSys(body []byte) (*AuthSysCred, error) {
	d := NewDecoder(body)
	c := &AuthSysCred{}
	var err error
	if c.Stamp, err = d.Uint32(); err != nil {
		return nil, err
	}
	if c.Machine, err = d.String(255); err != nil {
		return nil, err
	}
	if c.UID, err = d.Uint32(); err != nil {
		return nil, err
	}
	if c.GID, err = d.Uint32(); err != nil {
		return nil, err
	}
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if n > 16 {
		return nil, fmt.Errorf("%w: %d supplementary groups", ErrMalformed, n)
	}
	c.Groups = make([]uint32, n)
	for i := range c.Groups {
		if c.Groups[i], err = d.Uint32(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// EncodeAuthSys builds an AUTH_SYS credential body.
func EncodeAuthSys(c *AuthSysCred) []byte {
	e := NewEncoder()
	e.Uint32(c.Stamp)
	e.String(c.Machine)
	e.Uint32(c.UID)
	e.Uint32(c.GID)
	e.Uint32(uint32(len(c.Groups)))
	for _, g := range c.Groups {
		e.Uint32(g)
	}
	return e.Bytes()
}

// Record marking for RPC over TCP: each record travels as one or more
// fragments, a 4-byte header carrying the fragment length and a
// last-fragment bit.
const lastFragment = 0x80000000

// ReadRecord reads one complete RPC record. maxSize bounds the
// reassembled record; a clean EOF before any bytes surfaces as io.EOF.
func ReadRecord(r io.Reader, maxSize uint32) ([]byte, error) {
	var record []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF && record != nil {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		h := binary.BigEndian.Uint32(hdr[:])
		last := h&lastFragment != 0
		n := h &^ uint32(lastFragment)

		if uint64(len(record))+uint64(n) > uint64(maxSize) {
			return nil, fmt.Errorf("rpc: record exceeds %d bytes", maxSize)
		}
		if record == nil {
			record = make([]byte, 0, n)
		}
		frag := make([]byte, n)
		if _, err := io.ReadFull(r, frag); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		record = append(record, frag...)

		if last {
			return record, nil
		}
	}
}

// WriteRecord writes one RPC record as a single fragment.
func WriteRecord(w io.Writer, p []byte) error {
	if uint64(len(p)) >= lastFragment {
		return fmt.Errorf("rpc: record of %d bytes cannot be framed", len(p))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p))|lastFragment)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}
