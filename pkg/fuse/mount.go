package fuse

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	log "github.com/sirupsen/logrus"

	"github.com/example/ext4nfs/pkg/fs"
)

// MountOptions configures a FUSE mount.
type MountOptions struct {
	// MountPoint is the directory the volume appears under.
	MountPoint string

	// AllowOther lets users other than the mounting one access the
	// volume. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug dumps the FUSE protocol conversation.
	Debug bool
}

// mountOptions builds the kernel mount option set. The volume is
// always mounted read-only regardless of what the caller asks for.
func mountOptions(options MountOptions) []fuse.MountOption {
	opts := []fuse.MountOption{
		fuse.FSName("ext4nfs"),
		fuse.Subtype("ext4"),
		fuse.ReadOnly(),
	}
	if options.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}
	return opts
}

// Mount serves the filesystem at the mount point until it is unmounted
// or the process receives SIGINT or SIGTERM.
func Mount(fsys fs.FileSystem, options MountOptions) error {
	if options.Debug {
		fuse.Debug = func(msg interface{}) {
			log.WithField("msg", msg).Debug("fuse")
		}
	}

	conn, err := fuse.Mount(options.MountPoint, mountOptions(options)...)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", options.MountPoint, err)
	}
	defer conn.Close()

	log.WithField("mountpoint", options.MountPoint).Info("Volume mounted")

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- fusefs.Serve(conn, New(fsys))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-serveDone:
		// The kernel unmounted us (fusermount -u or shutdown)
		return err
	case s := <-sig:
		log.WithField("signal", s).Info("Unmounting")
		if err := Unmount(options.MountPoint); err != nil {
			log.WithError(err).Warn("Unmount failed; is the mount busy?")
			return err
		}
		return <-serveDone
	}
}

// Unmount detaches the filesystem mounted at the given path.
func Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}
