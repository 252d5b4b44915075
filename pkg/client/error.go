package client

import (
	"errors"
	"fmt"

	"github.com/example/ext4nfs/pkg/nfs"
)

// Common error types
var (
	ErrNotImplemented = errors.New("operation not implemented")
	ErrInvalidHandle  = errors.New("invalid file handle")
	ErrInvalidPath    = errors.New("invalid path")
	ErrPermission     = errors.New("permission denied")
	ErrNotExist       = errors.New("file does not exist")
	ErrIsDir          = errors.New("is a directory")
	ErrNotDir         = errors.New("not a directory")
	ErrReadOnly       = errors.New("read-only file system")
	ErrTooManyLinks   = errors.New("too many levels of symbolic links")
)

// NFSError represents an error reply in an NFS operation
type NFSError struct {
	// Operation that failed
	Op string

	// NFS status code
	Status nfs.Status

	// Error message
	Message string

	// Underlying error
	Err error
}

// Error implements the error interface
func (e *NFSError) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Op, e.Status, e.Message)
}

// Unwrap returns the underlying error
func (e *NFSError) Unwrap() error {
	return e.Err
}

// StatusToError converts an NFS status to an error. The underlying
// sentinel, when one fits, lets callers test with errors.Is.
func StatusToError(op string, status nfs.Status) error {
	if status == nfs.StatusOK {
		return nil
	}

	var message string
	var err error

	switch status {
	case nfs.StatusPerm:
		message = "not owner"
		err = ErrPermission
	case nfs.StatusNoEnt:
		message = "no such file or directory"
		err = ErrNotExist
	case nfs.StatusIO:
		message = "I/O error"
	case nfs.StatusNXIO:
		message = "no such device or address"
	case nfs.StatusAcces:
		message = "permission denied"
		err = ErrPermission
	case nfs.StatusExist:
		message = "file exists"
	case nfs.StatusNoDev:
		message = "no such device"
	case nfs.StatusNotDir:
		message = "not a directory"
		err = ErrNotDir
	case nfs.StatusIsDir:
		message = "is a directory"
		err = ErrIsDir
	case nfs.StatusInval:
		message = "invalid argument"
	case nfs.StatusFBig:
		message = "file too large"
	case nfs.StatusNoSpc:
		message = "no space left on device"
	case nfs.StatusROFS:
		message = "read-only file system"
		err = ErrReadOnly
	case nfs.StatusNameTooLong:
		message = "filename too long"
	case nfs.StatusNotEmpty:
		message = "directory not empty"
	case nfs.StatusDQuot:
		message = "disk quota exceeded"
	case nfs.StatusStale:
		message = "stale file handle"
		err = ErrInvalidHandle
	case nfs.StatusBadHandle:
		message = "illegal NFS file handle"
		err = ErrInvalidHandle
	case nfs.StatusNotSync:
		message = "update synchronization mismatch"
	case nfs.StatusBadCookie:
		message = "READDIR cookie is stale"
	case nfs.StatusNotSupp:
		message = "operation not supported"
		err = ErrNotImplemented
	case nfs.StatusTooSmall:
		message = "buffer or request is too small"
	case nfs.StatusServerFault:
		message = "server fault"
	case nfs.StatusBadType:
		message = "type not supported"
	case nfs.StatusJukebox:
		message = "server temporarily unable, try again"
	default:
		message = "unknown error"
	}

	return &NFSError{Op: op, Status: status, Message: message, Err: err}
}

// MountError represents an error reply from the MOUNT program.
type MountError struct {
	Op     string
	Status nfs.MountStatus
}

// Error implements the error interface
func (e *MountError) Error() string {
	return fmt.Sprintf("%s failed: mount status %d", e.Op, uint32(e.Status))
}

// mountStatusToError converts a MOUNT status to an error.
func mountStatusToError(op string, status nfs.MountStatus) error {
	if status == nfs.MntOK {
		return nil
	}
	return &MountError{Op: op, Status: status}
}
