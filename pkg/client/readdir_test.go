package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/nfs"
)

func TestReadDirComplete(t *testing.T) {
	const fileCount = 300

	c := startServer(t, func(b *ext4img.Builder) {
		dirNode := b.Dir(b.Root(), "many")
		payload := b.File(b.Root(), "payload", nil)
		for i := 0; i < fileCount; i++ {
			b.HardLink(dirNode, fmt.Sprintf("entry%03d", i), payload)
		}
	})
	ctx := context.Background()

	dh, _, err := c.LookupPath(ctx, "/many")
	if err != nil {
		t.Fatalf("LookupPath: %v", err)
	}

	entries, err := c.ReadDir(ctx, dh)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	// ".", ".." plus the links
	if len(entries) != fileCount+2 {
		t.Fatalf("ReadDir returned %d entries, want %d", len(entries), fileCount+2)
	}
	seen := make(map[string]bool, len(entries))
	for _, ent := range entries {
		if seen[ent.Name] {
			t.Fatalf("entry %q returned twice", ent.Name)
		}
		seen[ent.Name] = true
	}
	for i := 0; i < fileCount; i++ {
		if name := fmt.Sprintf("entry%03d", i); !seen[name] {
			t.Errorf("sweep is missing %q", name)
		}
	}
}

func TestReadDirSmallPages(t *testing.T) {
	const fileCount = 64

	c := startServer(t, func(b *ext4img.Builder) {
		dirNode := b.Dir(b.Root(), "d")
		payload := b.File(b.Root(), "payload", nil)
		for i := 0; i < fileCount; i++ {
			b.HardLink(dirNode, fmt.Sprintf("n%02d", i), payload)
		}
	})
	ctx := context.Background()

	dh, _, err := c.LookupPath(ctx, "/d")
	if err != nil {
		t.Fatalf("LookupPath: %v", err)
	}

	// A tight byte budget forces many round trips; the sweep must
	// still produce every entry exactly once
	seen := make(map[string]bool)
	var cookie uint64
	var verf []byte
	pages := 0
	for {
		page, err := c.ReadDirPage(ctx, dh, cookie, verf, 512)
		if err != nil {
			t.Fatalf("ReadDirPage(cookie %d): %v", cookie, err)
		}
		if len(page.Entries) == 0 && !page.EOF {
			t.Fatal("empty page without eof")
		}
		for _, ent := range page.Entries {
			if seen[ent.Name] {
				t.Fatalf("entry %q returned twice", ent.Name)
			}
			seen[ent.Name] = true
			cookie = ent.Cookie
		}
		verf = page.CookieVerf
		pages++
		if page.EOF {
			break
		}
	}

	if len(seen) != fileCount+2 {
		t.Errorf("sweep returned %d entries, want %d", len(seen), fileCount+2)
	}
	if pages < 2 {
		t.Errorf("sweep took %d pages; the budget should have forced pagination", pages)
	}
}

func TestReadDirBadCookie(t *testing.T) {
	c := startServer(t, func(b *ext4img.Builder) {
		b.File(b.Root(), "only", []byte("x"))
	})
	ctx := context.Background()

	root, err := c.GetRootFileHandle(ctx)
	if err != nil {
		t.Fatalf("GetRootFileHandle: %v", err)
	}

	_, err = c.ReadDirPage(ctx, root, 9999, nil, 4096)
	var nfsErr *NFSError
	if !errors.As(err, &nfsErr) || nfsErr.Status != nfs.StatusBadCookie {
		t.Errorf("ReadDirPage(bad cookie) error = %v, want %v", err, nfs.StatusBadCookie)
	}
}

func TestReadDirOnFile(t *testing.T) {
	c := startServer(t, func(b *ext4img.Builder) {
		b.File(b.Root(), "plain", []byte("x"))
	})
	ctx := context.Background()

	fh, _, err := c.LookupPath(ctx, "/plain")
	if err != nil {
		t.Fatalf("LookupPath: %v", err)
	}
	if _, err := c.ReadDir(ctx, fh); !errors.Is(err, ErrNotDir) {
		t.Errorf("ReadDir(file) error = %v, want %v", err, ErrNotDir)
	}
}

func TestReadDirPlus(t *testing.T) {
	c := startServer(t, func(b *ext4img.Builder) {
		b.File(b.Root(), "a.txt", []byte("aaaa"))
		b.Dir(b.Root(), "sub")
		b.Symlink(b.Root(), "lnk", "a.txt")
	})
	ctx := context.Background()

	root, err := c.GetRootFileHandle(ctx)
	if err != nil {
		t.Fatalf("GetRootFileHandle: %v", err)
	}

	page, err := c.ReadDirPlusPage(ctx, root, 0, nil, 16*1024, 64*1024)
	if err != nil {
		t.Fatalf("ReadDirPlusPage: %v", err)
	}
	if !page.EOF {
		t.Error("small directory did not fit in one READDIRPLUS page")
	}

	byName := make(map[string]nfs.DirEntryPlus3)
	for _, ent := range page.Entries {
		byName[ent.Name] = ent
	}
	for name, wantType := range map[string]uint32{
		"a.txt": nfs.TypeReg,
		"sub":   nfs.TypeDir,
		"lnk":   nfs.TypeLnk,
	} {
		ent, ok := byName[name]
		if !ok {
			t.Fatalf("READDIRPLUS page is missing %q", name)
		}
		if !ent.Attr.Present || ent.Attr.Attr.Type != wantType {
			t.Errorf("%q attr = %+v, want type %d", name, ent.Attr, wantType)
		}
		if !ent.FH.Present {
			t.Errorf("%q carries no handle", name)
			continue
		}
		// The per-entry handle resolves to the same object
		attr, err := c.GetAttr(ctx, ent.FH.Handle)
		if err != nil {
			t.Errorf("GetAttr(%q handle): %v", name, err)
		} else if attr.FileID != ent.FileID {
			t.Errorf("%q handle resolves to fileid %d, want %d", name, attr.FileID, ent.FileID)
		}
	}
}
