package ext4

import "testing"

func TestCrc32cKnownAnswer(t *testing.T) {
	// Raw-convention CRC32C of the standard check string. The classic
	// check value 0xE3069283 includes the final inversion; the kernel's
	// seeded form does not.
	got := crc32c(^uint32(0), []byte("123456789"))
	if got != 0x1CF96D7C {
		t.Errorf("crc32c = %#08x, want 0x1cf96d7c", got)
	}
}

func TestCrc32cChaining(t *testing.T) {
	whole := []byte("metadata checksum chaining")
	part := crc32c(0x1234, whole[:9])
	if got, want := crc32c(part, whole[9:]), crc32c(0x1234, whole); got != want {
		t.Errorf("chained crc = %#08x, want %#08x", got, want)
	}
}
