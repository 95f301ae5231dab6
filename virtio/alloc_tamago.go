//go:build arm64

package virtio

import "github.com/usbarmory/tamago/dma"

// dmaAllocator backs DefaultAllocator on the real kernel build: every
// queue and device-visible buffer is reserved from TamaGo's DMA region
// instead of the Go heap.
type dmaAllocator struct{}

func (dmaAllocator) Reserve(size, align int) (uint64, []byte) {
	addr, buf := dma.Reserve(size, align)
	return uint64(addr), buf
}

func (dmaAllocator) Release(addr uint64) {
	dma.Release(uint(addr))
}

// DefaultAllocator returns the Allocator a real device transport
// should use.
func DefaultAllocator() Allocator {
	return dmaAllocator{}
}
