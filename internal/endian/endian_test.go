package endian_test

import (
	"testing"

	"github.com/avirt/allora-kernel/internal/endian"
)

func TestLittleRoundTrip(t *testing.T) {
	t.Parallel()

	v := endian.NewU32[endian.Little](0x74726976)
	if got := v.Native(); got != 0x74726976 {
		t.Fatalf("Native() = %#x, want %#x", got, 0x74726976)
	}

	if v[0] != 0x76 || v[3] != 0x74 {
		t.Fatalf("unexpected wire bytes: %x", v)
	}
}

func TestBigRoundTrip(t *testing.T) {
	t.Parallel()

	v := endian.NewU32[endian.Big](0xd00dfeed)
	if got := v.Native(); got != 0xd00dfeed {
		t.Fatalf("Native() = %#x, want %#x", got, 0xd00dfeed)
	}

	if v[0] != 0xd0 || v[3] != 0xed {
		t.Fatalf("unexpected wire bytes: %x", v)
	}
}

func TestU16(t *testing.T) {
	t.Parallel()

	be := endian.NewU16[endian.Big](0x0102)
	if be[0] != 0x01 || be[1] != 0x02 {
		t.Fatalf("unexpected BE16 bytes: %x", be)
	}

	le := endian.NewU16[endian.Little](0x0102)
	if le[0] != 0x02 || le[1] != 0x01 {
		t.Fatalf("unexpected LE16 bytes: %x", le)
	}

	if be.Native() != le.Native() {
		t.Fatalf("native values should agree regardless of wire order")
	}
}

func TestU64(t *testing.T) {
	t.Parallel()

	v := endian.NewU64[endian.Little](0x1122334455667788)
	if got := v.Native(); got != 0x1122334455667788 {
		t.Fatalf("Native() = %#x, want %#x", got, 0x1122334455667788)
	}
}
