package nfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCallRoundTrip(t *testing.T) {
	// Build an AUTH_SYS credential
	cred := OpaqueAuth{
		Flavor: AuthSys,
		Body: EncodeAuthSys(&AuthSysCred{
			Stamp:   7,
			Machine: "testhost",
			UID:     1000,
			GID:     1000,
			Groups:  []uint32{1000, 20},
		}),
	}

	// Encode a GETATTR call
	e := NewEncoder()
	EncodeCall(e, 0xCAFE0001, ProgramNFS, VersionNFS, Proc3GetAttr, cred, OpaqueAuth{Flavor: AuthNone})

	// Decode the header back
	h, err := DecodeCall(NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatalf("DecodeCall failed: %v", err)
	}
	if h.XID != 0xCAFE0001 {
		t.Errorf("Wrong xid: got 0x%08X", h.XID)
	}
	if h.RPCVersion != RPCVersion {
		t.Errorf("Wrong rpc version: got %d", h.RPCVersion)
	}
	if h.Program != ProgramNFS || h.Version != VersionNFS || h.Procedure != Proc3GetAttr {
		t.Errorf("Wrong target: got %d/%d/%d", h.Program, h.Version, h.Procedure)
	}
	if h.Cred.Flavor != AuthSys {
		t.Fatalf("Wrong cred flavor: got %d", h.Cred.Flavor)
	}

	// The credential body must decode to the original identity
	sys, err := DecodeAuthSys(h.Cred.Body)
	if err != nil {
		t.Fatalf("DecodeAuthSys failed: %v", err)
	}
	want := &AuthSysCred{Stamp: 7, Machine: "testhost", UID: 1000, GID: 1000, Groups: []uint32{1000, 20}}
	if diff := cmp.Diff(want, sys); diff != "" {
		t.Errorf("Credential mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCallRejectsReply(t *testing.T) {
	// A reply message where a call is expected is malformed
	e := NewEncoder()
	e.Uint32(1)
	e.Uint32(MsgReply)

	_, err := DecodeCall(NewDecoder(e.Bytes()))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Wrong error: got %v, want ErrMalformed", err)
	}
}

func TestAcceptedReplyRoundTrip(t *testing.T) {
	// Encode a successful reply with a payload after the header
	e := NewEncoder()
	EncodeAcceptedReply(e, 42, AcceptSuccess)
	e.Uint32(12345)

	d := NewDecoder(e.Bytes())
	xid, err := DecodeReply(d)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	if xid != 42 {
		t.Errorf("Wrong xid: got %d, want 42", xid)
	}

	// The payload follows the header
	v, err := d.Uint32()
	if err != nil {
		t.Fatalf("Payload read failed: %v", err)
	}
	if v != 12345 {
		t.Errorf("Wrong payload: got %d, want 12345", v)
	}
}

func TestReplyErrors(t *testing.T) {
	testCases := []struct {
		name   string
		encode func(e *Encoder)
		check  func(t *testing.T, err error)
	}{
		{
			name: "prog unavail",
			encode: func(e *Encoder) {
				EncodeAcceptedReply(e, 1, AcceptProgUnavail)
			},
			check: func(t *testing.T, err error) {
				var ae *AcceptError
				if !errors.As(err, &ae) || ae.Stat != AcceptProgUnavail {
					t.Errorf("Wrong error: got %v", err)
				}
			},
		},
		{
			name: "prog mismatch carries version range",
			encode: func(e *Encoder) {
				EncodeProgMismatchReply(e, 1, 3, 3)
			},
			check: func(t *testing.T, err error) {
				var ae *AcceptError
				if !errors.As(err, &ae) {
					t.Fatalf("Wrong error: got %v", err)
				}
				if ae.Stat != AcceptProgMismatch || ae.Low != 3 || ae.High != 3 {
					t.Errorf("Wrong mismatch info: %+v", ae)
				}
			},
		},
		{
			name: "proc unavail",
			encode: func(e *Encoder) {
				EncodeAcceptedReply(e, 1, AcceptProcUnavail)
			},
			check: func(t *testing.T, err error) {
				var ae *AcceptError
				if !errors.As(err, &ae) || ae.Stat != AcceptProcUnavail {
					t.Errorf("Wrong error: got %v", err)
				}
			},
		},
		{
			name: "garbage args",
			encode: func(e *Encoder) {
				EncodeAcceptedReply(e, 1, AcceptGarbageArgs)
			},
			check: func(t *testing.T, err error) {
				var ae *AcceptError
				if !errors.As(err, &ae) || ae.Stat != AcceptGarbageArgs {
					t.Errorf("Wrong error: got %v", err)
				}
			},
		},
		{
			name: "auth rejected",
			encode: func(e *Encoder) {
				EncodeAuthErrorReply(e, 1, AuthTooWeak)
			},
			check: func(t *testing.T, err error) {
				var ar AuthRejectedError
				if !errors.As(err, &ar) || uint32(ar) != AuthTooWeak {
					t.Errorf("Wrong error: got %v", err)
				}
			},
		},
		{
			name: "rpc version mismatch",
			encode: func(e *Encoder) {
				EncodeRPCMismatchReply(e, 1)
			},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("Expected an error")
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder()
			tc.encode(e)

			xid, err := DecodeReply(NewDecoder(e.Bytes()))
			if xid != 1 {
				t.Errorf("Wrong xid: got %d, want 1", xid)
			}
			tc.check(t, err)
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 1000)

	// Write a record and read it back
	var buf bytes.Buffer
	if err := WriteRecord(&buf, payload); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	got, err := ReadRecord(&buf, 1<<20)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Record mismatch")
	}

	// The stream is drained, the next read is a clean EOF
	if _, err := ReadRecord(&buf, 1<<20); err != io.EOF {
		t.Errorf("Wrong error after drain: got %v, want io.EOF", err)
	}
}

func TestRecordReassembly(t *testing.T) {
	// Build a record split across three fragments, last bit on the final one
	var buf bytes.Buffer
	frags := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 20),
		bytes.Repeat([]byte{3}, 5),
	}
	for i, frag := range frags {
		hdr := uint32(len(frag))
		if i == len(frags)-1 {
			hdr |= 0x80000000
		}
		var h [4]byte
		binary.BigEndian.PutUint32(h[:], hdr)
		buf.Write(h[:])
		buf.Write(frag)
	}

	got, err := ReadRecord(&buf, 1<<20)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	want := append(append(append([]byte{}, frags[0]...), frags[1]...), frags[2]...)
	if !bytes.Equal(got, want) {
		t.Errorf("Reassembly mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestRecordTruncated(t *testing.T) {
	// A header promising more bytes than the stream carries
	var buf bytes.Buffer
	var h [4]byte
	binary.BigEndian.PutUint32(h[:], 100|0x80000000)
	buf.Write(h[:])
	buf.Write([]byte{1, 2, 3})

	if _, err := ReadRecord(&buf, 1<<20); err != io.ErrUnexpectedEOF {
		t.Errorf("Wrong error: got %v, want io.ErrUnexpectedEOF", err)
	}

	// EOF between a non-final fragment and the next header
	buf.Reset()
	binary.BigEndian.PutUint32(h[:], 4)
	buf.Write(h[:])
	buf.Write([]byte{1, 2, 3, 4})

	if _, err := ReadRecord(&buf, 1<<20); err != io.ErrUnexpectedEOF {
		t.Errorf("Wrong error mid-record: got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestRecordSizeLimit(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecord(&buf, bytes.Repeat([]byte{9}, 100)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	if _, err := ReadRecord(&buf, 64); err == nil {
		t.Error("Expected an error for an oversized record")
	}
}
