package server

import (
	"context"
	"testing"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/nfs"
)

// The export is immutable: every mutation procedure answers ROFS
// without touching the volume.

func TestMutationsReturnROFS(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "victim", []byte("do not touch"))
		b.Dir(b.Root(), "dir")
	})
	ctx := context.Background()

	root := rootHandle(srv)
	victim := mustLookupHandle(t, srv, root, "victim")

	tests := []struct {
		op     string
		invoke func() (nfs.Status, nfs.WccData)
	}{
		{"SetAttr", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "SetAttr", victim, 1, testClientAddr)
		}},
		{"Write", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Write", victim, 2, testClientAddr)
		}},
		{"Create", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Create", root, 3, testClientAddr)
		}},
		{"Mkdir", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Mkdir", root, 4, testClientAddr)
		}},
		{"Symlink", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Symlink", root, 5, testClientAddr)
		}},
		{"Mknod", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Mknod", root, 6, testClientAddr)
		}},
		{"Remove", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Remove", root, 7, testClientAddr)
		}},
		{"Rmdir", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Rmdir", root, 8, testClientAddr)
		}},
		{"Commit", func() (nfs.Status, nfs.WccData) {
			return srv.handleRejectUpdate(ctx, "Commit", victim, 9, testClientAddr)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			status, wcc := tt.invoke()
			if status != nfs.StatusROFS {
				t.Errorf("Status: got %v, want %v", status, nfs.StatusROFS)
			}
			// The wcc_data arm carries post-op attributes of the target
			if !wcc.After.Present {
				t.Error("Post-op attributes missing from the ROFS reply")
			}
		})
	}
}

func TestRenameReturnsROFS(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.Dir(b.Root(), "from")
		b.Dir(b.Root(), "to")
	})
	ctx := context.Background()

	from := mustLookupHandle(t, srv, rootHandle(srv), "from")
	to := mustLookupHandle(t, srv, rootHandle(srv), "to")

	status, fromWcc, toWcc := srv.handleRename(ctx, &nfs.Rename3Args{
		FromDir:  from,
		FromName: "a",
		ToDir:    to,
		ToName:   "b",
	}, 10, testClientAddr)
	if status != nfs.StatusROFS {
		t.Errorf("Status: got %v, want %v", status, nfs.StatusROFS)
	}
	if !fromWcc.After.Present || !toWcc.After.Present {
		t.Error("Post-op attributes missing from the ROFS reply")
	}
}

func TestLinkReturnsROFS(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "f", []byte("x"))
	})
	ctx := context.Background()

	root := rootHandle(srv)
	fh := mustLookupHandle(t, srv, root, "f")

	status, fileAttr, dirWcc := srv.handleLink(ctx, &nfs.Link3Args{
		Handle: fh,
		Dir:    root,
		Name:   "another",
	}, 11, testClientAddr)
	if status != nfs.StatusROFS {
		t.Errorf("Status: got %v, want %v", status, nfs.StatusROFS)
	}
	if !fileAttr.Present || !dirWcc.After.Present {
		t.Error("Post-op attributes missing from the ROFS reply")
	}
}

func TestMutationLeavesVolumeIntact(t *testing.T) {
	content := []byte("do not touch")
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "victim", content)
	})
	ctx := context.Background()

	fh := mustLookupHandle(t, srv, rootHandle(srv), "victim")

	srv.handleRejectUpdate(ctx, "Write", fh, 12, testClientAddr)
	srv.handleRejectUpdate(ctx, "SetAttr", fh, 13, testClientAddr)

	res := srv.handleRead(ctx, &nfs.Read3Args{Handle: fh, Offset: 0, Count: 64}, 14, testClientAddr)
	if res.Status != nfs.StatusOK {
		t.Fatalf("Read after rejected writes: %v", res.Status)
	}
	if string(res.Data) != string(content) {
		t.Errorf("Content changed: got %q, want %q", res.Data, content)
	}
}

func TestAccessNeverGrantsWriteBits(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.Chmod(b.File(b.Root(), "f", []byte("x")), 0o777)
	})
	ctx := context.Background()

	root := rootHandle(srv)
	fh := mustLookupHandle(t, srv, root, "f")

	for _, handle := range [][]byte{root, fh} {
		res := srv.handleAccess(ctx, &nfs.Access3Args{
			Handle: handle,
			Access: nfs.AccessRead | nfs.AccessLookup | nfs.AccessModify | nfs.AccessExtend | nfs.AccessDelete | nfs.AccessExecute,
		}, 15, testClientAddr)
		if res.Status != nfs.StatusOK {
			t.Fatalf("Access status: %v", res.Status)
		}
		if res.Access&(nfs.AccessModify|nfs.AccessExtend|nfs.AccessDelete) != 0 {
			t.Errorf("Write bits granted: %#x", res.Access)
		}
		if res.Access&nfs.AccessRead == 0 {
			t.Error("Read bit not granted")
		}
	}
}
