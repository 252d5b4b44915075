// Command ext4-fuse mounts an ext4 block device or image file read-only
// through FUSE, without a server in between.
//
// Usage:
//
//	ext4-fuse [flags] /dev/sdb1 /mnt/point
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/example/ext4nfs/pkg/fs/ext4"
	"github.com/example/ext4nfs/pkg/fuse"
)

func main() {
	allowOther := flag.Bool("allow-other", false, "Allow other users to access the mount")
	debug := flag.Bool("debug", false, "Dump the FUSE protocol conversation")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <device-or-image> <mountpoint>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	devicePath := flag.Arg(0)
	mountPoint := flag.Arg(1)

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)
	if *debug && level < log.DebugLevel {
		log.SetLevel(log.DebugLevel)
	}

	lock := flock.New(devicePath)
	locked, err := lock.TryRLock()
	if err != nil {
		log.Fatalf("Failed to lock %s: %v", devicePath, err)
	}
	if !locked {
		log.Fatalf("%s is locked for writing by another process", devicePath)
	}
	defer lock.Unlock()

	device, err := os.Open(devicePath)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer device.Close()

	fileSystem, err := ext4.NewFileSystem(device)
	if err != nil {
		log.Fatalf("Failed to read filesystem on %s: %v", devicePath, err)
	}

	options := fuse.MountOptions{
		MountPoint: mountPoint,
		AllowOther: *allowOther,
		Debug:      *debug,
	}
	if err := fuse.Mount(fileSystem, options); err != nil {
		log.Fatalf("Mount failed: %v", err)
	}
}
