package fs

import (
	"bytes"
	"testing"
)

func TestFileHandleRoundTrip(t *testing.T) {
	original := &FileHandle{
		FileSystemID: 0xef530000,
		Inode:        1 << 40,
		Generation:   42,
	}

	data := original.Serialize()
	if len(data) != HandleSize {
		t.Fatalf("Serialized length: got %d, want %d", len(data), HandleSize)
	}

	recovered, err := DeserializeFileHandle(data)
	if err != nil {
		t.Fatalf("DeserializeFileHandle: %v", err)
	}
	if *recovered != *original {
		t.Errorf("Round trip mismatch: got %+v, want %+v", recovered, original)
	}
}

func TestFileHandleLayout(t *testing.T) {
	// The wire layout is fixed: big-endian fsid, inode, generation. A
	// change here invalidates every handle held by a live client.
	fh := &FileHandle{
		FileSystemID: 0x01020304,
		Inode:        0x05060708090a0b0c,
		Generation:   0x0d0e0f10,
	}
	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c,
		0x0d, 0x0e, 0x0f, 0x10,
	}
	if got := fh.Serialize(); !bytes.Equal(got, want) {
		t.Errorf("Layout mismatch:\ngot  %x\nwant %x", got, want)
	}
}

func TestDeserializeShortHandle(t *testing.T) {
	for _, n := range []int{0, 3, HandleSize - 1} {
		if _, err := DeserializeFileHandle(make([]byte, n)); err == nil {
			t.Errorf("DeserializeFileHandle(%d bytes) succeeded, want error", n)
		}
	}
}
