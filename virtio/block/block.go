// Package block drives a virtio-blk device: sector-granular read and
// write over a three-descriptor chain, grounded on
// _examples/original_source/src/virtio/blk.rs.
package block

import (
	"encoding/binary"

	"github.com/avirt/allora-kernel/virtio"
)

const sectorSize = 512

// request types in BlkReqHdr.req_type.
const (
	reqRead  = 0
	reqWrite = 1
)

// Device is a virtio-blk device bound to queue 0. All three chain
// buffers (header, one sector payload, status) are DMA-reserved once
// at construction and reused across calls, matching this kernel's
// one-in-flight-request-per-queue design (spec.md §4.4).
type Device struct {
	tr *virtio.Transport
	q  *virtio.Queue

	hdrAddr     uint64
	hdr         []byte
	payloadAddr uint64
	payload     []byte
	statusAddr  uint64
	status      []byte
}

// New negotiates and installs queue 0 for a virtio-blk device.
// Desired features are 0 (spec.md §4.4: "blk=0").
func New(tr *virtio.Transport, alloc virtio.Allocator) (*Device, error) {
	if err := tr.Negotiate(0); err != nil {
		return nil, err
	}

	q := tr.InstallQueue(0)
	tr.SetDriverOK()

	hdrAddr, hdr := alloc.Reserve(16, 8) // req_type(4) + reserved(4) + sector(8)
	payloadAddr, payload := alloc.Reserve(sectorSize, 8)
	statusAddr, status := alloc.Reserve(1, 1)

	return &Device{
		tr: tr, q: q,
		hdrAddr: hdrAddr, hdr: hdr,
		payloadAddr: payloadAddr, payload: payload,
		statusAddr: statusAddr, status: status,
	}, nil
}

func (d *Device) buildRequest(reqType uint32, sector uint64, payloadFlags uint16) {
	binary.LittleEndian.PutUint32(d.hdr[0:], reqType)
	binary.LittleEndian.PutUint32(d.hdr[4:], 0)
	binary.LittleEndian.PutUint64(d.hdr[8:], sector)

	d.status[0] = 0

	d.q.SetDescriptor(0, d.hdrAddr, 16, virtio.DescNext, 1)
	d.q.SetDescriptor(1, d.payloadAddr, sectorSize, payloadFlags, 2)
	d.q.SetDescriptor(2, d.statusAddr, 1, virtio.DescWrite, 0)
}

// Read fills buf (exactly one 512-byte sector) from the device.
func (d *Device) Read(sector uint64, buf []byte) error {
	if len(buf) != sectorSize {
		panic("block: Read requires a 512-byte buffer")
	}

	d.buildRequest(reqRead, sector, virtio.DescWrite|virtio.DescNext)

	if err := d.tr.Submit(0, 0); err != nil {
		return err
	}

	copy(buf, d.payload)

	return nil
}

// Write sends buf (exactly one 512-byte sector) to the device.
func (d *Device) Write(sector uint64, buf []byte) error {
	if len(buf) != sectorSize {
		panic("block: Write requires a 512-byte buffer")
	}

	copy(d.payload, buf)
	d.buildRequest(reqWrite, sector, virtio.DescNext)

	return d.tr.Submit(0, 0)
}
