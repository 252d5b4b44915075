// Command tools bundles small maintenance utilities for working with an
// exported volume: resolving file handles, walking directories page by
// page, and building scratch ext4 images.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&GetHandle{}, "")
	subcommands.Register(&LsDir{}, "")
	subcommands.Register(&MkImg{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
