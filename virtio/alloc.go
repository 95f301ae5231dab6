// Package virtio implements the virtio-mmio transport: probing,
// bring-up, feature negotiation, queue installation and the
// submit/wait protocol shared by the block, entropy and net device
// personalities in the sibling virtio/block, virtio/entropy and
// virtio/net packages.
//
// The register layout is grounded on
// _examples/other_examples/5aaf3194_usbarmory-tamago__kvm-virtio-mmio.go.go
// (github.com/usbarmory/tamago's own virtio-mmio MMIO struct); the
// bring-up sequence, submission protocol and descriptor flag values are
// grounded on _examples/original_source/src/virtio.rs and
// src/virtio/blk.rs.
package virtio

import "unsafe"

// Allocator reserves DMA-visible memory for descriptors and buffers.
// The device must see the same bytes the driver wrote, at a stable
// address, for the lifetime of one in-flight request (spec.md §3
// Ownership) — exactly what github.com/usbarmory/tamago/dma's
// Reserve/Release pair provides on real hardware. Go's moving garbage
// collector means a plain Go slice's address cannot be handed to a
// device directly, which is why every queue and buffer in this package
// goes through this interface instead of make([]byte, ...).
type Allocator interface {
	Reserve(size, align int) (addr uint64, buf []byte)
	Release(addr uint64)
}

// sliceAllocator is the Allocator used off real hardware: by this
// package's own tests, and by DefaultAllocator on any build that is
// not the arm64 kernel target. It hands out plain Go byte slices and
// reports their process address as the "physical" address, which is
// all a test needs since nothing but this process ever reads the
// slice back.
type sliceAllocator struct{}

func (sliceAllocator) Reserve(size, align int) (uint64, []byte) {
	if align < 1 {
		align = 1
	}

	buf := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec

	pad := 0
	if rem := int(addr) % align; rem != 0 {
		pad = align - rem
	}

	return uint64(addr) + uint64(pad), buf[pad : pad+size]
}

func (sliceAllocator) Release(uint64) {}
