// Package entropy drives a virtio-entropy (rng) device: a single
// writable descriptor filled with device-supplied random bytes,
// grounded on _examples/original_source/src/virtio/entropy.rs.
package entropy

import "github.com/avirt/allora-kernel/virtio"

// Device is a virtio-entropy device bound to queue 0.
type Device struct {
	tr    *virtio.Transport
	q     *virtio.Queue
	alloc virtio.Allocator
}

// New negotiates and installs queue 0 for a virtio-entropy device.
// Desired features are 0 (spec.md §4.4: "entropy=0").
func New(tr *virtio.Transport, alloc virtio.Allocator) (*Device, error) {
	if err := tr.Negotiate(0); err != nil {
		return nil, err
	}

	q := tr.InstallQueue(0)
	tr.SetDriverOK()

	return &Device{tr: tr, q: q, alloc: alloc}, nil
}

// Read fills buf with device-supplied random bytes. There is no
// completion check beyond used-index advancement (spec.md §4.6): the
// device always fills the whole buffer it was given.
func (d *Device) Read(buf []byte) error {
	addr, dma := d.alloc.Reserve(len(buf), 1)
	defer d.alloc.Release(addr)

	d.q.SetDescriptor(0, addr, uint32(len(buf)), virtio.DescWrite, 0)

	if err := d.tr.Submit(0, 0); err != nil {
		return err
	}

	copy(buf, dma)

	return nil
}
