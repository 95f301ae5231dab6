package shell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/avirt/allora-kernel/arm/gic"
	"github.com/avirt/allora-kernel/internal/mmio"
	"github.com/avirt/allora-kernel/virtio"
	"github.com/avirt/allora-kernel/virtio/block"
	"github.com/avirt/allora-kernel/virtio/entropy"
)

type fakeAllocator struct{}

func (fakeAllocator) Reserve(size, align int) (uint64, []byte) { return 0, make([]byte, size) }
func (fakeAllocator) Release(uint64)                           {}

func newFakeBlock(t *testing.T) *block.Device {
	t.Helper()

	mem := mmio.Fake{Mem: make([]byte, 0x200)}
	mem.Write32(0x000, virtio.Magic)
	mem.Write32(0x004, 2)
	mem.Write32(0x008, virtio.DeviceBlk)
	mem.Write32(0x010, 0xffffffff)

	tr := virtio.New(mem, gic.New(16), fakeAllocator{})

	dev, err := block.New(tr, fakeAllocator{})
	if err != nil {
		t.Fatalf("block.New: %v", err)
	}

	tr.Queue(0).SetUsedIdxForTest(1)

	return dev
}

func newFakeEntropy(t *testing.T) *entropy.Device {
	t.Helper()

	mem := mmio.Fake{Mem: make([]byte, 0x200)}
	mem.Write32(0x000, virtio.Magic)
	mem.Write32(0x004, 2)
	mem.Write32(0x008, virtio.DeviceEntropy)
	mem.Write32(0x010, 0xffffffff)

	tr := virtio.New(mem, gic.New(16), fakeAllocator{})

	dev, err := entropy.New(tr, fakeAllocator{})
	if err != nil {
		t.Fatalf("entropy.New: %v", err)
	}

	tr.Queue(0).SetUsedIdxForTest(1)

	return dev
}

func TestDoLineRandEmitsPrefixAndSixteenBytes(t *testing.T) {
	t.Parallel()

	s := &Shell{Entropy: newFakeEntropy(t)}

	var out bytes.Buffer
	if exit := s.DoLine([]byte("rand"), nil, &out); exit {
		t.Fatalf("rand requested exit")
	}

	if !bytes.HasPrefix(out.Bytes(), []byte("Random: ")) {
		t.Fatalf("output = %q, want prefix %q", out.String(), "Random: ")
	}

	if got := len(out.Bytes()) - len("Random: "); got != 16 {
		t.Fatalf("got %d random bytes, want 16", got)
	}
}

func TestDoLineReadDefaultsToOneSector(t *testing.T) {
	t.Parallel()

	s := &Shell{Block: newFakeBlock(t)}

	var out bytes.Buffer
	if exit := s.DoLine([]byte("read 3"), nil, &out); exit {
		t.Fatalf("read requested exit")
	}

	if out.Len() != sectorSize {
		t.Fatalf("output length = %d, want %d", out.Len(), sectorSize)
	}
}

func TestDoLineReadHonorsExplicitLength(t *testing.T) {
	t.Parallel()

	s := &Shell{Block: newFakeBlock(t)}

	var out bytes.Buffer
	if exit := s.DoLine([]byte("read 0 10"), nil, &out); exit {
		t.Fatalf("read requested exit")
	}

	if out.Len() != 10 {
		t.Fatalf("output length = %d, want 10", out.Len())
	}
}

func TestDoLineWriteRandReportsDone(t *testing.T) {
	t.Parallel()

	s := &Shell{Block: newFakeBlock(t), Entropy: newFakeEntropy(t)}

	var out bytes.Buffer
	if exit := s.DoLine([]byte("writerand 5 512"), nil, &out); exit {
		t.Fatalf("writerand requested exit")
	}

	if out.String() != "done" {
		t.Fatalf("output = %q, want %q", out.String(), "done")
	}
}

func TestDoLineWriteReadsFromSuppliedReader(t *testing.T) {
	t.Parallel()

	s := &Shell{Block: newFakeBlock(t)}

	payload := bytes.Repeat([]byte{0x42}, sectorSize)
	r := bytes.NewReader(payload)

	var out bytes.Buffer
	if exit := s.DoLine([]byte("write 1 512"), r, &out); exit {
		t.Fatalf("write requested exit")
	}

	if out.String() != "done" {
		t.Fatalf("output = %q, want %q", out.String(), "done")
	}
}

func TestDoLineWriteFallsBackToEntropyWithoutReader(t *testing.T) {
	t.Parallel()

	s := &Shell{Block: newFakeBlock(t), Entropy: newFakeEntropy(t)}

	var out bytes.Buffer
	if exit := s.DoLine([]byte("write 1 512"), nil, &out); exit {
		t.Fatalf("write requested exit")
	}

	if out.String() != "done" {
		t.Fatalf("output = %q, want %q", out.String(), "done")
	}
}

func TestDoLineExitReturnsTrue(t *testing.T) {
	t.Parallel()

	s := &Shell{}

	var out bytes.Buffer
	if exit := s.DoLine([]byte("exit"), nil, &out); !exit {
		t.Fatalf("exit did not request termination")
	}
}

func TestDoLineUnknownCommandEchoesLine(t *testing.T) {
	t.Parallel()

	s := &Shell{}

	var out bytes.Buffer
	s.DoLine([]byte("frobnicate 1 2"), nil, &out)

	if !strings.Contains(out.String(), `Unknown command "frobnicate 1 2"`) {
		t.Fatalf("output = %q, want it to contain the unknown-command message", out.String())
	}
}

func TestDoLineEmptyLineIsANoop(t *testing.T) {
	t.Parallel()

	s := &Shell{}

	var out bytes.Buffer
	if exit := s.DoLine([]byte(""), nil, &out); exit {
		t.Fatalf("empty line requested exit")
	}

	if out.Len() != 0 {
		t.Fatalf("output = %q, want empty", out.String())
	}
}

func TestDoLineNetShellInvokesHook(t *testing.T) {
	t.Parallel()

	called := false
	s := &Shell{NetShell: func() error { called = true; return nil }}

	var out bytes.Buffer
	s.DoLine([]byte("netshell"), nil, &out)

	if !called {
		t.Fatalf("netshell did not invoke the NetShell hook")
	}
}

func TestDoLineStripsTrailingCROrLF(t *testing.T) {
	t.Parallel()

	s := &Shell{}

	var out bytes.Buffer
	s.DoLine([]byte("bogus\r\n"), nil, &out)

	if !strings.Contains(out.String(), `"bogus"`) {
		t.Fatalf("output = %q, want the unknown line trimmed to %q", out.String(), "bogus")
	}
}
