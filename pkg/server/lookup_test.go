package server

import (
	"context"
	"strings"
	"testing"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/fs"
	"github.com/example/ext4nfs/pkg/nfs"
)

func TestLookup(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "testfile.txt", []byte("lookup me"))
		b.Dir(b.Root(), "testdir")
	})
	ctx := context.Background()

	res := srv.handleLookup(ctx, &nfs.DirOpArgs3{Dir: rootHandle(srv), Name: "testfile.txt"}, 1, testClientAddr)
	if res.Status != nfs.StatusOK {
		t.Fatalf("Unexpected status: got %v, want OK", res.Status)
	}
	if len(res.Handle) != fs.HandleSize {
		t.Errorf("Wrong handle size: got %d, want %d", len(res.Handle), fs.HandleSize)
	}
	if !res.ObjAttr.Present || res.ObjAttr.Attr.Type != nfs.TypeReg {
		t.Errorf("Wrong object attributes: %+v", res.ObjAttr)
	}
	if !res.DirAttr.Present || res.DirAttr.Attr.Type != nfs.TypeDir {
		t.Errorf("Wrong directory attributes: %+v", res.DirAttr)
	}

	// The returned handle resolves back to the same object
	attr := srv.handleGetAttr(ctx, &nfs.GetAttr3Args{Handle: res.Handle}, 2, testClientAddr)
	if attr.Status != nfs.StatusOK || attr.Attr.FileID != res.ObjAttr.Attr.FileID {
		t.Errorf("Handle round trip: status %v, fileid %d want %d",
			attr.Status, attr.Attr.FileID, res.ObjAttr.Attr.FileID)
	}
}

func TestLookupMissingName(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "present", []byte("x"))
	})

	res := srv.handleLookup(context.Background(), &nfs.DirOpArgs3{Dir: rootHandle(srv), Name: "absent"}, 3, testClientAddr)
	if res.Status != nfs.StatusNoEnt {
		t.Errorf("Unexpected status: got %v, want %v", res.Status, nfs.StatusNoEnt)
	}
	// The dir_attributes arm is still filled on failure
	if !res.DirAttr.Present {
		t.Error("Directory attributes missing on NOENT reply")
	}
}

func TestLookupInNonDirectory(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "plain", []byte("x"))
	})

	fh := mustLookupHandle(t, srv, rootHandle(srv), "plain")
	res := srv.handleLookup(context.Background(), &nfs.DirOpArgs3{Dir: fh, Name: "child"}, 4, testClientAddr)
	if res.Status != nfs.StatusNotDir {
		t.Errorf("Unexpected status: got %v, want %v", res.Status, nfs.StatusNotDir)
	}
}

func TestLookupDotAndDotDot(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.Dir(b.Root(), "sub")
	})
	ctx := context.Background()

	sub := mustLookupHandle(t, srv, rootHandle(srv), "sub")

	self := srv.handleLookup(ctx, &nfs.DirOpArgs3{Dir: sub, Name: "."}, 5, testClientAddr)
	if self.Status != nfs.StatusOK {
		t.Fatalf("Lookup(.): %v", self.Status)
	}
	subAttr := srv.handleGetAttr(ctx, &nfs.GetAttr3Args{Handle: sub}, 6, testClientAddr)
	if self.ObjAttr.Attr.FileID != subAttr.Attr.FileID {
		t.Errorf("Lookup(.) resolved to fileid %d, want %d", self.ObjAttr.Attr.FileID, subAttr.Attr.FileID)
	}

	parent := srv.handleLookup(ctx, &nfs.DirOpArgs3{Dir: sub, Name: ".."}, 7, testClientAddr)
	if parent.Status != nfs.StatusOK {
		t.Fatalf("Lookup(..): %v", parent.Status)
	}
	rootAttr := srv.handleGetAttr(ctx, &nfs.GetAttr3Args{Handle: rootHandle(srv)}, 8, testClientAddr)
	if parent.ObjAttr.Attr.FileID != rootAttr.Attr.FileID {
		t.Errorf("Lookup(..) resolved to fileid %d, want %d", parent.ObjAttr.Attr.FileID, rootAttr.Attr.FileID)
	}
}

func TestLookupNameTooLong(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	name := strings.Repeat("n", 300)
	res := srv.handleLookup(context.Background(), &nfs.DirOpArgs3{Dir: rootHandle(srv), Name: name}, 9, testClientAddr)
	if res.Status != nfs.StatusNameTooLong && res.Status != nfs.StatusNoEnt {
		t.Errorf("Unexpected status: got %v", res.Status)
	}
}

func TestLookupNestedPath(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		a := b.Dir(b.Root(), "a")
		bb := b.Dir(a, "b")
		b.File(bb, "deep.txt", []byte("found"))
	})

	dir := rootHandle(srv)
	for _, name := range []string{"a", "b"} {
		dir = mustLookupHandle(t, srv, dir, name)
	}
	res := srv.handleLookup(context.Background(), &nfs.DirOpArgs3{Dir: dir, Name: "deep.txt"}, 10, testClientAddr)
	if res.Status != nfs.StatusOK {
		t.Fatalf("Unexpected status: got %v, want OK", res.Status)
	}
	if res.ObjAttr.Attr.Size != 5 {
		t.Errorf("Wrong size: got %d, want 5", res.ObjAttr.Attr.Size)
	}
}
