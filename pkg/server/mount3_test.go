package server

import (
	"bytes"
	"context"
	"testing"

	"github.com/example/ext4nfs/pkg/nfs"
)

func TestMountExportRoot(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	res := srv.handleMount(context.Background(), "/", 1, testClientAddr)
	if res.Status != nfs.MntOK {
		t.Fatalf("Unexpected status: got %v, want OK", res.Status)
	}
	if !bytes.Equal(res.Handle, rootHandle(srv)) {
		t.Error("Mount handle is not the export root handle")
	}

	hasAuthSys := false
	for _, f := range res.AuthFlavors {
		if f == nfs.AuthSys {
			hasAuthSys = true
		}
	}
	if !hasAuthSys {
		t.Errorf("AUTH_SYS missing from flavors: %v", res.AuthFlavors)
	}
}

func TestMountUnknownExport(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	res := srv.handleMount(context.Background(), "/elsewhere", 2, testClientAddr)
	if res.Status != nfs.MntErrNoEnt {
		t.Errorf("Unexpected status: got %v, want %v", res.Status, nfs.MntErrNoEnt)
	}
}

func TestMountExportList(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	e := nfs.NewEncoder()
	nfs.EncodeCall(e, 3, nfs.ProgramMnt, nfs.VersionMnt, nfs.MntProcExport,
		nfs.OpaqueAuth{Flavor: nfs.AuthNone}, nfs.OpaqueAuth{Flavor: nfs.AuthNone})
	reply := callOverPipe(t, srv, e.Bytes())

	d := nfs.NewDecoder(reply)
	if _, err := nfs.DecodeReply(d); err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	exports, err := nfs.DecodeExports(d)
	if err != nil {
		t.Fatalf("DecodeExports: %v", err)
	}
	if len(exports) != 1 || exports[0].Dir != "/" {
		t.Errorf("Wrong export list: %+v", exports)
	}
}
