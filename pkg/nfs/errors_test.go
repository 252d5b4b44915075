package nfs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/example/ext4nfs/pkg/fs"
)

func TestMapErrorToStatus(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"not exist", fs.ErrNotExist, StatusNoEnt},
		{"permission", fs.ErrPermission, StatusAcces},
		{"io", fs.ErrIO, StatusIO},
		{"is dir", fs.ErrIsDir, StatusIsDir},
		{"not dir", fs.ErrNotDir, StatusNotDir},
		{"name too long", fs.ErrNameTooLong, StatusNameTooLong},
		{"invalid name", fs.ErrInvalidName, StatusInval},
		{"invalid argument", fs.ErrInvalid, StatusInval},
		{"invalid handle", fs.ErrInvalidHandle, StatusBadHandle},
		{"read only", fs.ErrReadOnly, StatusROFS},
		{"bad cookie", fs.ErrBadCookie, StatusBadCookie},
		{"stale", fs.ErrStale, StatusStale},
		{"not supported", fs.ErrNotSupported, StatusNotSupp},
		{"wrapped in context", fs.NewError("lookup", "/x", fs.ErrNotExist), StatusNoEnt},
		{"wrapped stale", fmt.Errorf("resolving: %w", fs.ErrStale), StatusStale},
		{"os not exist", os.ErrNotExist, StatusNoEnt},
		{"os permission", os.ErrPermission, StatusPerm},
		{"errno enoent", syscall.ENOENT, StatusNoEnt},
		{"errno eacces", syscall.EACCES, StatusAcces},
		{"errno erofs", syscall.EROFS, StatusROFS},
		{"errno estale", syscall.ESTALE, StatusStale},
		{"unknown defaults to io", errors.New("mystery failure"), StatusIO},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := MapErrorToStatus(tc.err)
			if got != tc.want {
				t.Errorf("Wrong status: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNFSError(t *testing.T) {
	cause := fs.ErrStale
	err := NewNFSError(StatusStale, "handle no longer valid", cause)

	// The message names the status
	if msg := err.Error(); msg == "" || !errors.Is(err, cause) {
		t.Errorf("Error/Unwrap mismatch: %q, Is=%v", msg, errors.Is(err, cause))
	}
	if err.Status != StatusStale {
		t.Errorf("Wrong status: got %v", err.Status)
	}

	// Without a cause the message still renders
	plain := NewNFSError(StatusIO, "device gone", nil)
	if plain.Error() == "" {
		t.Error("Empty message")
	}
	if plain.Unwrap() != nil {
		t.Error("Unexpected cause")
	}
}
