package server

import (
	"bytes"
	"context"
	"testing"

	"github.com/example/ext4nfs/pkg/ext4img"
	"github.com/example/ext4nfs/pkg/nfs"
)

func TestRead(t *testing.T) {
	content := []byte("This is test content for the read tests.")
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.File(b.Root(), "testfile.txt", content)
	})
	fh := mustLookupHandle(t, srv, rootHandle(srv), "testfile.txt")

	tests := []struct {
		name    string
		offset  uint64
		count   uint32
		want    []byte
		wantEOF bool
	}{
		{"whole file", 0, uint32(len(content)), content, true},
		{"prefix", 0, 4, content[:4], false},
		{"middle", 8, 4, content[8:12], false},
		{"tail", uint64(len(content) - 6), 100, content[len(content)-6:], true},
		{"past eof", uint64(len(content) + 10), 10, nil, true},
		{"zero count", 0, 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := srv.handleRead(context.Background(), &nfs.Read3Args{
				Handle: fh,
				Offset: tt.offset,
				Count:  tt.count,
			}, 1, testClientAddr)

			if res.Status != nfs.StatusOK {
				t.Fatalf("Unexpected status: got %v, want OK", res.Status)
			}
			if !bytes.Equal(res.Data, tt.want) {
				t.Errorf("Wrong data: got %q, want %q", res.Data, tt.want)
			}
			if res.Count != uint32(len(tt.want)) {
				t.Errorf("Wrong count: got %d, want %d", res.Count, len(tt.want))
			}
			if res.EOF != tt.wantEOF {
				t.Errorf("Wrong eof: got %v, want %v", res.EOF, tt.wantEOF)
			}
			if !res.FileAttr.Present {
				t.Error("File attributes missing")
			}
		})
	}
}

func TestReadDirectory(t *testing.T) {
	srv := newTestServer(t, DefaultConfig(), nil)

	res := srv.handleRead(context.Background(), &nfs.Read3Args{
		Handle: rootHandle(srv),
		Offset: 0,
		Count:  16,
	}, 2, testClientAddr)
	if res.Status != nfs.StatusIsDir {
		t.Errorf("Unexpected status: got %v, want %v", res.Status, nfs.StatusIsDir)
	}
}

func TestReadCapsRequestSize(t *testing.T) {
	config := DefaultConfig()
	config.MaxReadSize = 1024

	srv := newTestServer(t, config, func(b *ext4img.Builder) {
		b.File(b.Root(), "big", bytes.Repeat([]byte("ABCD"), 2048))
	})
	fh := mustLookupHandle(t, srv, rootHandle(srv), "big")

	res := srv.handleRead(context.Background(), &nfs.Read3Args{
		Handle: fh,
		Offset: 0,
		Count:  1 << 20,
	}, 3, testClientAddr)
	if res.Status != nfs.StatusOK {
		t.Fatalf("Unexpected status: got %v, want OK", res.Status)
	}
	if res.Count != 1024 {
		t.Errorf("Count not capped: got %d, want 1024", res.Count)
	}
	if res.EOF {
		t.Error("EOF set on a capped partial read")
	}
}

func TestReadSparseExtents(t *testing.T) {
	// A file with holes between its extent runs reads back as zeros
	data := bytes.Repeat([]byte("0123456789abcdef"), 256) // 4 KiB
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.FileRuns(b.Root(), "sparse", 8*1024, []ext4img.Run{
			{Logical: 0, Data: data[:2048]},
			{Logical: 6, Data: data[2048:]},
		})
	})
	fh := mustLookupHandle(t, srv, rootHandle(srv), "sparse")

	res := srv.handleRead(context.Background(), &nfs.Read3Args{
		Handle: fh,
		Offset: 0,
		Count:  8 * 1024,
	}, 4, testClientAddr)
	if res.Status != nfs.StatusOK {
		t.Fatalf("Unexpected status: got %v, want OK", res.Status)
	}
	if len(res.Data) != 8*1024 {
		t.Fatalf("Wrong length: got %d, want %d", len(res.Data), 8*1024)
	}
	if !bytes.Equal(res.Data[:2048], data[:2048]) {
		t.Error("First run mismatch")
	}
	if !bytes.Equal(res.Data[2048:6144], make([]byte, 4096)) {
		t.Error("Hole did not read as zeros")
	}
	if !bytes.Equal(res.Data[6144:], data[2048:]) {
		t.Error("Second run mismatch")
	}
}

func TestReadBlockMappedFile(t *testing.T) {
	// Old-style indirect block maps instead of extents
	data := bytes.Repeat([]byte("blockmap"), 4096) // 32 KiB spills into indirects
	srv := newTestServer(t, DefaultConfig(), func(b *ext4img.Builder) {
		b.BlockMapFile(b.Root(), "legacy", uint64(len(data)), []ext4img.Run{
			{Logical: 0, Data: data},
		})
	})
	fh := mustLookupHandle(t, srv, rootHandle(srv), "legacy")

	res := srv.handleRead(context.Background(), &nfs.Read3Args{
		Handle: fh,
		Offset: 0,
		Count:  uint32(len(data)),
	}, 5, testClientAddr)
	if res.Status != nfs.StatusOK {
		t.Fatalf("Unexpected status: got %v, want OK", res.Status)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("Block-mapped content mismatch")
	}
}
