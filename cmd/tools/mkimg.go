package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/example/ext4nfs/pkg/ext4img"
)

// MkImg implements subcommands.Command for the "mkimg" command. It
// writes a small ext4 image with sample content, handy for trying out
// the server without a real block device.
type MkImg struct {
	files int
}

// Name implements subcommands.Command.Name.
func (*MkImg) Name() string {
	return "mkimg"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MkImg) Synopsis() string {
	return "write a sample ext4 image file"
}

// Usage implements subcommands.Command.Usage.
func (*MkImg) Usage() string {
	return `mkimg [-files n] <output-path>
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *MkImg) SetFlags(f *flag.FlagSet) {
	f.IntVar(&m.files, "files", 16, "number of sample files to create")
}

// Execute implements subcommands.Command.Execute.
func (m *MkImg) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	outPath := f.Arg(0)

	b := ext4img.New()
	docs := b.Dir(b.Root(), "docs")
	b.File(b.Root(), "README", []byte("Sample volume built by the tools command.\n"))
	b.Symlink(b.Root(), "readme.txt", "README")
	for i := 0; i < m.files; i++ {
		name := fmt.Sprintf("note%02d.txt", i)
		b.File(docs, name, []byte(fmt.Sprintf("This is %s.\n", name)))
	}

	img, err := b.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build image: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(outPath, img.Bytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outPath, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Wrote %s: %d bytes, block size %d\n", outPath, len(img.Bytes), img.BlockSize)
	return subcommands.ExitSuccess
}
