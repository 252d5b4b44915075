package nfs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/ext4nfs/pkg/fs"
)

// MapErrorToStatus converts a Go error to an NFS status code
func MapErrorToStatus(err error) Status {
	if err == nil {
		return StatusOK
	}

	// Map filesystem errors to NFS status codes
	if errors.Is(err, fs.ErrNotExist) {
		return StatusNoEnt
	} else if errors.Is(err, fs.ErrPermission) {
		return StatusAcces
	} else if errors.Is(err, fs.ErrIO) {
		return StatusIO
	} else if errors.Is(err, fs.ErrIsDir) {
		return StatusIsDir
	} else if errors.Is(err, fs.ErrNotDir) {
		return StatusNotDir
	} else if errors.Is(err, fs.ErrNameTooLong) {
		return StatusNameTooLong
	} else if errors.Is(err, fs.ErrInvalidName) {
		return StatusInval
	} else if errors.Is(err, fs.ErrInvalid) {
		return StatusInval
	} else if errors.Is(err, fs.ErrInvalidHandle) {
		return StatusBadHandle
	} else if errors.Is(err, fs.ErrReadOnly) {
		return StatusROFS
	} else if errors.Is(err, fs.ErrBadCookie) {
		return StatusBadCookie
	} else if errors.Is(err, fs.ErrStale) {
		return StatusStale
	} else if errors.Is(err, fs.ErrNotSupported) {
		return StatusNotSupp
	}

	// Map standard Go errors
	if errors.Is(err, os.ErrPermission) {
		return StatusPerm
	} else if errors.Is(err, os.ErrNotExist) {
		return StatusNoEnt
	} else if errors.Is(err, os.ErrExist) {
		return StatusExist
	}

	// Map syscall errors
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EPERM:
			return StatusPerm
		case syscall.ENOENT:
			return StatusNoEnt
		case syscall.EIO:
			return StatusIO
		case syscall.ENXIO:
			return StatusNXIO
		case syscall.EACCES:
			return StatusAcces
		case syscall.EEXIST:
			return StatusExist
		case syscall.ENODEV:
			return StatusNoDev
		case syscall.ENOTDIR:
			return StatusNotDir
		case syscall.EISDIR:
			return StatusIsDir
		case syscall.EINVAL:
			return StatusInval
		case syscall.EFBIG:
			return StatusFBig
		case syscall.ENOSPC:
			return StatusNoSpc
		case syscall.EROFS:
			return StatusROFS
		case syscall.ENAMETOOLONG:
			return StatusNameTooLong
		case syscall.ENOTEMPTY:
			return StatusNotEmpty
		case syscall.ESTALE:
			return StatusStale
		}
	}

	// Default for unrecognized errors
	LogUnknownError(err)
	return StatusIO
}

// LogUnknownError logs detailed information about unrecognized errors
func LogUnknownError(err error) {
	log.WithFields(log.Fields{
		"errorType": fmt.Sprintf("%T", err),
	}).Warnf("unknown error type: %v", err)
}

// LogRequest logs information about a received NFS request
func LogRequest(op string, xid uint32, clientAddr string, creds fs.Credentials) {
	log.WithFields(log.Fields{
		"op":     op,
		"xid":    fmt.Sprintf("0x%08x", xid),
		"client": clientAddr,
		"uid":    creds.UID,
		"gid":    creds.GID,
	}).Debug("request")
}

// LogResponse logs information about an NFS response
func LogResponse(op string, xid uint32, status Status, duration time.Duration) {
	log.WithFields(log.Fields{
		"op":       op,
		"xid":      fmt.Sprintf("0x%08x", xid),
		"status":   status.String(),
		"duration": duration,
	}).Debug("response")
}

// LogError logs an error with its context
func LogError(op string, xid uint32, err error) {
	log.WithFields(log.Fields{
		"op":  op,
		"xid": fmt.Sprintf("0x%08x", xid),
	}).Errorf("request failed: %v", err)
}

// NFSError represents an error with NFS status code
type NFSError struct {
	Status  Status // NFS status code
	Message string // Error description
	Cause   error  // Underlying error
}

// Error implements the error interface
func (e *NFSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (underlying: %v)", e.Status.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Status.String(), e.Message)
}

// Unwrap returns the underlying error
func (e *NFSError) Unwrap() error {
	return e.Cause
}

// NewNFSError creates a new NFSError
func NewNFSError(status Status, message string, cause error) *NFSError {
	return &NFSError{
		Status:  status,
		Message: message,
		Cause:   cause,
	}
}
