package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/example/ext4nfs/pkg/client"
)

// GetHandle implements subcommands.Command for the "gethandle" command.
type GetHandle struct {
	server string
}

// Name implements subcommands.Command.Name.
func (*GetHandle) Name() string {
	return "gethandle"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*GetHandle) Synopsis() string {
	return "resolve a path on the server to its file handle"
}

// Usage implements subcommands.Command.Usage.
func (*GetHandle) Usage() string {
	return `gethandle [-server addr] <path>
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (g *GetHandle) SetFlags(f *flag.FlagSet) {
	f.StringVar(&g.server, "server", "localhost:11111", "NFS server address")
}

// Execute implements subcommands.Command.Execute.
func (g *GetHandle) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)

	config := client.DefaultConfig()
	config.ServerAddress = g.server
	c, err := client.NewClient(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	fh, attr, err := c.LookupPath(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve %s: %v\n", path, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Path:   %s\n", path)
	fmt.Printf("Handle: %s\n", hex.EncodeToString(fh))
	fmt.Printf("Inode:  %d\n", attr.FileID)
	return subcommands.ExitSuccess
}
