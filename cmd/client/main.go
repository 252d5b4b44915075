// Command client is a small command-line NFS client for inspecting an
// exported volume without mounting it.
//
// Usage:
//
//	client [flags] ls /some/dir
//	client [flags] stat /some/file
//	client [flags] cat /some/file
//	client [flags] readlink /some/link
//	client [flags] statfs
//	client [flags] exports
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/example/ext4nfs/pkg/client"
	"github.com/example/ext4nfs/pkg/nfs"
)

var typeNames = map[uint32]string{
	nfs.TypeReg:  "regular",
	nfs.TypeDir:  "directory",
	nfs.TypeBlk:  "block",
	nfs.TypeChr:  "char",
	nfs.TypeLnk:  "symlink",
	nfs.TypeSock: "socket",
	nfs.TypeFifo: "fifo",
}

func main() {
	serverAddr := flag.String("server", "localhost:11111", "NFS server address")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-call timeout")
	uid := flag.Uint("uid", uint(os.Getuid()), "User ID for AUTH_SYS credentials")
	gid := flag.Uint("gid", uint(os.Getgid()), "Group ID for AUTH_SYS credentials")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] <ls|stat|cat|readlink|statfs|exports> [path]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	config := client.DefaultConfig()
	config.ServerAddress = *serverAddr
	config.Timeout = *timeout
	config.UID = uint32(*uid)
	config.GID = uint32(*gid)

	c, err := client.NewClient(config)
	if err != nil {
		fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	switch command {
	case "ls":
		runLs(ctx, c, pathArg())
	case "stat":
		runStat(ctx, c, pathArg())
	case "cat":
		runCat(ctx, c, pathArg())
	case "readlink":
		runReadlink(ctx, c, pathArg())
	case "statfs":
		runStatFS(ctx, c)
	case "exports":
		runExports(ctx, c)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

func pathArg() string {
	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Missing path argument")
		os.Exit(2)
	}
	return flag.Arg(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runLs(ctx context.Context, c *client.Client, path string) {
	fh, _, err := c.LookupPath(ctx, path)
	if err != nil {
		fatalf("ls %s: %v", path, err)
	}
	entries, err := c.ReadDir(ctx, fh)
	if err != nil {
		fatalf("ls %s: %v", path, err)
	}
	for _, ent := range entries {
		fmt.Printf("%10d  %s\n", ent.FileID, ent.Name)
	}
}

func runStat(ctx context.Context, c *client.Client, path string) {
	_, attr, err := c.LookupPath(ctx, path)
	if err != nil {
		fatalf("stat %s: %v", path, err)
	}

	typeName := typeNames[attr.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("type %d", attr.Type)
	}
	fmt.Printf("File:     %s\n", path)
	fmt.Printf("Type:     %s\n", typeName)
	fmt.Printf("Mode:     %04o\n", attr.Mode)
	fmt.Printf("Size:     %d bytes\n", attr.Size)
	fmt.Printf("Inode:    %d\n", attr.FileID)
	fmt.Printf("Links:    %d\n", attr.Nlink)
	fmt.Printf("Owner:    %d:%d\n", attr.UID, attr.GID)
	if attr.Type == nfs.TypeBlk || attr.Type == nfs.TypeChr {
		fmt.Printf("Device:   %d,%d\n", attr.RdevMajor, attr.RdevMinor)
	}
	fmt.Printf("Modified: %s\n", time.Unix(int64(attr.Mtime.Seconds), int64(attr.Mtime.Nano)).Format(time.RFC3339))
	fmt.Printf("Accessed: %s\n", time.Unix(int64(attr.Atime.Seconds), int64(attr.Atime.Nano)).Format(time.RFC3339))
	fmt.Printf("Changed:  %s\n", time.Unix(int64(attr.Ctime.Seconds), int64(attr.Ctime.Nano)).Format(time.RFC3339))
}

func runCat(ctx context.Context, c *client.Client, path string) {
	fh, _, err := c.LookupPath(ctx, path)
	if err != nil {
		fatalf("cat %s: %v", path, err)
	}
	data, err := c.ReadAll(ctx, fh)
	if err != nil {
		fatalf("cat %s: %v", path, err)
	}
	os.Stdout.Write(data)
}

func runReadlink(ctx context.Context, c *client.Client, path string) {
	fh, _, err := c.LookupPath(ctx, path)
	if err != nil {
		fatalf("readlink %s: %v", path, err)
	}
	target, err := c.Readlink(ctx, fh)
	if err != nil {
		fatalf("readlink %s: %v", path, err)
	}
	fmt.Println(target)
}

func runStatFS(ctx context.Context, c *client.Client) {
	root, err := c.GetRootFileHandle(ctx)
	if err != nil {
		fatalf("statfs: %v", err)
	}
	stat, err := c.FSStat(ctx, root)
	if err != nil {
		fatalf("statfs: %v", err)
	}
	fmt.Printf("Total:       %d bytes\n", stat.TotalBytes)
	fmt.Printf("Free:        %d bytes\n", stat.FreeBytes)
	fmt.Printf("Available:   %d bytes\n", stat.AvailBytes)
	fmt.Printf("Total files: %d\n", stat.TotalFiles)
	fmt.Printf("Free files:  %d\n", stat.FreeFiles)
}

func runExports(ctx context.Context, c *client.Client) {
	exports, err := c.Exports(ctx)
	if err != nil {
		fatalf("exports: %v", err)
	}
	for _, e := range exports {
		fmt.Println(e.Dir)
	}
}
