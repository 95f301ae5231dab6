// Package net drives a virtio-net device: two queues (0=receive,
// 1=transmit), each frame preceded by an 11-byte NetHdr the device
// injects or requires, grounded on
// _examples/original_source/src/virtio/net.rs.
package net

import (
	"github.com/avirt/allora-kernel/virtio"
)

// FrameSize is the maximum Ethernet II frame this kernel exchanges
// with the device (spec.md §4.7: "up to 1526 bytes").
const FrameSize = 1526

// NetHdrSize is virtio-net's per-frame header.
const NetHdrSize = 11

// VIRTIO_NET_F_MAC, the only feature this driver negotiates (spec.md
// §4.4: "net=VIRTIO_NET_F_MAC (bit 5)").
const featureMAC = 1 << 5

const (
	queueRX = 0
	queueTX = 1
)

// Device is a virtio-net device bound to queues 0 (RX) and 1 (TX).
type Device struct {
	tr    *virtio.Transport
	rx    *virtio.Queue
	tx    *virtio.Queue
	alloc virtio.Allocator

	rxHdrAddr, rxFrameAddr uint64
	rxHdr, rxFrame         []byte

	txHdrAddr, txFrameAddr uint64
	txHdr, txFrame         []byte
}

// New negotiates VIRTIO_NET_F_MAC and installs both queues.
func New(tr *virtio.Transport, alloc virtio.Allocator) (*Device, error) {
	if err := tr.Negotiate(featureMAC); err != nil {
		return nil, err
	}

	rx := tr.InstallQueue(queueRX)
	tx := tr.InstallQueue(queueTX)
	tr.SetDriverOK()

	rxHdrAddr, rxHdr := alloc.Reserve(NetHdrSize, 2)
	rxFrameAddr, rxFrame := alloc.Reserve(FrameSize, 2)
	txHdrAddr, txHdr := alloc.Reserve(NetHdrSize, 2)
	txFrameAddr, txFrame := alloc.Reserve(FrameSize, 2)

	return &Device{
		tr: tr, rx: rx, tx: tx, alloc: alloc,
		rxHdrAddr: rxHdrAddr, rxHdr: rxHdr, rxFrameAddr: rxFrameAddr, rxFrame: rxFrame,
		txHdrAddr: txHdrAddr, txHdr: txHdr, txFrameAddr: txFrameAddr, txFrame: txFrame,
	}, nil
}

// Read fills frame with one received Ethernet II frame (spec.md §4.7:
// chain [NetHdr (WRITE|NEXT), frame (WRITE)] on queue 0) and returns
// the number of bytes copied into frame, which is always FrameSize; the
// length the device reports in the used ring is not consulted.
func (d *Device) Read(frame []byte) (int, error) {
	if len(frame) < FrameSize {
		panic("net: Read requires a buffer of at least FrameSize bytes")
	}

	d.rx.SetDescriptor(0, d.rxHdrAddr, NetHdrSize, virtio.DescWrite|virtio.DescNext, 1)
	d.rx.SetDescriptor(1, d.rxFrameAddr, FrameSize, virtio.DescWrite, 0)

	if err := d.tr.Submit(queueRX, 0); err != nil {
		return 0, err
	}

	n := copy(frame, d.rxFrame)

	return n, nil
}

// Write transmits frame (spec.md §4.7: chain [NetHdr zeroed (NEXT,
// out), frame (out)] on queue 1).
func (d *Device) Write(frame []byte) error {
	for i := range d.txHdr {
		d.txHdr[i] = 0
	}

	n := copy(d.txFrame, frame)
	for i := n; i < len(d.txFrame); i++ {
		d.txFrame[i] = 0
	}

	d.tx.SetDescriptor(0, d.txHdrAddr, NetHdrSize, virtio.DescNext, 1)
	d.tx.SetDescriptor(1, d.txFrameAddr, uint32(len(frame)), 0, 0)

	return d.tr.Submit(queueTX, 0)
}

// Config is the virtio-net device-specific configuration area.
type Config struct {
	MAC        [6]byte
	Status     uint16
	MaxVQPairs uint16
	MTU        uint16
}

// Config reads the device's config area (spec.md §3 VirtIONetConfig).
// A correct caller must not assume MAC auto-negotiation: this is the
// hypervisor-assigned address.
func (d *Device) Config() Config {
	var c Config

	for i := range c.MAC {
		c.MAC[i] = d.tr.ConfigByte(uintptr(i))
	}

	c.Status = uint16(d.tr.ConfigByte(6)) | uint16(d.tr.ConfigByte(7))<<8
	c.MaxVQPairs = uint16(d.tr.ConfigByte(8)) | uint16(d.tr.ConfigByte(9))<<8
	c.MTU = uint16(d.tr.ConfigByte(10)) | uint16(d.tr.ConfigByte(11))<<8

	return c
}
