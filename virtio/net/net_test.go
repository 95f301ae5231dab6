package net

import (
	"bytes"
	"testing"

	"github.com/avirt/allora-kernel/arm/gic"
	"github.com/avirt/allora-kernel/internal/mmio"
	"github.com/avirt/allora-kernel/virtio"
)

type fakeAllocator struct{}

func (fakeAllocator) Reserve(size, align int) (uint64, []byte) {
	return 0, make([]byte, size)
}

func (fakeAllocator) Release(uint64) {}

func newFakeDevice(t *testing.T) (*Device, mmio.Fake) {
	t.Helper()

	mem := mmio.Fake{Mem: make([]byte, 0x300)}
	mem.Write32(0x000, virtio.Magic)
	mem.Write32(0x004, 2)
	mem.Write32(0x008, virtio.DeviceNet)
	mem.Write32(0x010, 0xffffffff)

	tr := virtio.New(mem, gic.New(16), fakeAllocator{})

	dev, err := New(tr, fakeAllocator{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr.Queue(queueRX).SetUsedIdxForTest(1)
	tr.Queue(queueTX).SetUsedIdxForTest(1)

	return dev, mem
}

func TestWriteZeroesNetHdr(t *testing.T) {
	t.Parallel()

	dev, _ := newFakeDevice(t)

	for i := range dev.txHdr {
		dev.txHdr[i] = 0xff
	}

	frame := make([]byte, FrameSize)
	if err := dev.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for i, b := range dev.txHdr {
		if b != 0 {
			t.Fatalf("txHdr[%d] = %#x, want 0", i, b)
		}
	}
}

func TestWriteCopiesFrameAndPads(t *testing.T) {
	t.Parallel()

	dev, _ := newFakeDevice(t)

	frame := bytes.Repeat([]byte{0xaa}, 64)
	if err := dev.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !bytes.Equal(dev.txFrame[:64], frame) {
		t.Fatalf("txFrame head mismatch")
	}

	if dev.txFrame[64] != 0 {
		t.Fatalf("txFrame not zero-padded past frame length")
	}
}

func TestReadCopiesDeviceFrameIntoCaller(t *testing.T) {
	t.Parallel()

	dev, _ := newFakeDevice(t)

	for i := range dev.rxFrame {
		dev.rxFrame[i] = byte(i)
	}

	out := make([]byte, FrameSize)
	n, err := dev.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if n != FrameSize {
		t.Fatalf("Read returned %d bytes, want %d", n, FrameSize)
	}

	if out[10] != 10 {
		t.Fatalf("out[10] = %d, want 10", out[10])
	}
}

func TestConfigReadsMACBytes(t *testing.T) {
	t.Parallel()

	dev, mem := newFakeDevice(t)

	mac := []byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	for i, b := range mac {
		mem.Mem[0x100+i] = b
	}

	cfg := dev.Config()
	if !bytes.Equal(cfg.MAC[:], mac) {
		t.Fatalf("Config().MAC = %x, want %x", cfg.MAC, mac)
	}
}
