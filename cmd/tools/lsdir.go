package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/example/ext4nfs/pkg/client"
)

// LsDir implements subcommands.Command for the "lsdir" command. Unlike
// a plain listing it shows the READDIR paging as the server returns it,
// which helps when debugging cookie handling.
type LsDir struct {
	server string
	count  uint
}

// Name implements subcommands.Command.Name.
func (*LsDir) Name() string {
	return "lsdir"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*LsDir) Synopsis() string {
	return "list a directory page by page, printing cookies"
}

// Usage implements subcommands.Command.Usage.
func (*LsDir) Usage() string {
	return `lsdir [-server addr] [-count bytes] <path>
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *LsDir) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.server, "server", "localhost:11111", "NFS server address")
	f.UintVar(&l.count, "count", 4096, "READDIR reply budget in bytes")
}

// Execute implements subcommands.Command.Execute.
func (l *LsDir) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)

	config := client.DefaultConfig()
	config.ServerAddress = l.server
	c, err := client.NewClient(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		return subcommands.ExitFailure
	}
	defer c.Close()

	fh, _, err := c.LookupPath(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve %s: %v\n", path, err)
		return subcommands.ExitFailure
	}

	var cookie uint64
	var verf []byte
	total := 0
	for page := 1; ; page++ {
		res, err := c.ReadDirPage(ctx, fh, cookie, verf, uint32(l.count))
		if err != nil {
			fmt.Fprintf(os.Stderr, "READDIR failed at cookie %d: %v\n", cookie, err)
			return subcommands.ExitFailure
		}

		fmt.Printf("-- page %d (%d entries, eof %v)\n", page, len(res.Entries), res.EOF)
		for _, ent := range res.Entries {
			fmt.Printf("%10d  cookie %-6d %s\n", ent.FileID, ent.Cookie, ent.Name)
			cookie = ent.Cookie
		}
		verf = res.CookieVerf
		total += len(res.Entries)

		if res.EOF {
			break
		}
		if len(res.Entries) == 0 {
			fmt.Fprintln(os.Stderr, "Server returned an empty page without eof")
			return subcommands.ExitFailure
		}
	}

	fmt.Printf("%d entries\n", total)
	return subcommands.ExitSuccess
}
