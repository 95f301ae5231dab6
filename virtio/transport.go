package virtio

import (
	"errors"

	"github.com/avirt/allora-kernel/arm/gic"
	"github.com/avirt/allora-kernel/internal/mmio"
)

// Register offsets within a virtio-mmio device's MMIO window (virtio-mmio
// version 2), grounded verbatim on
// _examples/other_examples/5aaf3194_usbarmory-tamago__kvm-virtio-mmio.go.go.
const (
	regMagic             = 0x000
	regVersion           = 0x004
	regDeviceID          = 0x008
	regVendorID          = 0x00c
	regDeviceFeatures    = 0x010
	regDeviceFeaturesSel = 0x014
	regDriverFeatures    = 0x020
	regDriverFeaturesSel = 0x024
	regQueueSel          = 0x030
	regQueueNumMax       = 0x034
	regQueueNum          = 0x038
	regQueueReady        = 0x044
	regQueueNotify       = 0x050
	regInterruptStatus   = 0x060
	regInterruptAck      = 0x064
	regStatus            = 0x070
	regQueueDescLow      = 0x080
	regQueueDescHigh     = 0x084
	regQueueAvailLow     = 0x090
	regQueueAvailHigh    = 0x094
	regQueueUsedLow      = 0x0a0
	regQueueUsedHigh     = 0x0a4
	regConfigGeneration  = 0x0fc
	regConfig            = 0x100
)

// Magic is the fixed magic value every virtio-mmio device exposes.
const Magic = 0x74726976

// Device status bits (spec.md §4.4 bring-up sequence).
const (
	statusReset      = 0
	statusAck        = 1
	statusDriver     = 2
	statusDriverOK   = 4
	statusFeaturesOk = 8
	statusNeedsReset = 64
	statusFailed     = 128
)

// Device ids, per the virtio-mmio device_id register.
const (
	DeviceNet      = 1
	DeviceBlk      = 2
	DeviceConsole  = 3
	DeviceEntropy  = 4
	DeviceBalloon  = 5
	DeviceIOMemory = 6
	DeviceRPMSG    = 7
	DeviceSCSIHost = 8
	Device9P       = 9
)

var (
	ErrBadMagic           = errors.New("virtio: bad magic")
	ErrBadVersion         = errors.New("virtio: unsupported version")
	ErrBadDeviceID        = errors.New("virtio: unrecognized device id")
	ErrFeaturesNotLatched = errors.New("virtio: FEATURES_OK did not latch")
)

// Probe reports whether a candidate MMIO window holds a virtio-mmio
// version-2 device, and if so its device id (spec.md §4.4 Probe).
func Probe(regs mmio.Space) (deviceID uint32, ok bool) {
	if regs.Read32(regMagic) != Magic {
		return 0, false
	}

	if regs.Read32(regVersion) != 2 {
		return 0, false
	}

	id := regs.Read32(regDeviceID)
	if id < 1 || id > 9 {
		return 0, false
	}

	return id, true
}

// Transport owns one virtio-mmio device's register window and the
// queues installed on it. Device personalities (block, entropy, net)
// are built on top of a Transport rather than duplicating bring-up and
// submission logic (spec.md §9 "factor only the queue-installation
// ritual").
type Transport struct {
	regs   mmio.Space
	irq    gic.GIC
	alloc  Allocator
	queues []*Queue
}

// New constructs a Transport over an already-probed register window.
func New(regs mmio.Space, irq gic.GIC, alloc Allocator) *Transport {
	return &Transport{regs: regs, irq: irq, alloc: alloc}
}

// NewAt constructs a Transport over a real MMIO base address, using
// the platform's default DMA allocator.
func NewAt(base uintptr, irqLine uint32) *Transport {
	return New(mmio.Hardware{Base: base}, gic.New(irqLine), DefaultAllocator())
}

// Negotiate runs the bring-up sequence through FEATURES_OK (spec.md
// §4.4 steps 1–6): reset, acknowledge, driver, then select the
// intersection of desired and device-offered features. It does not
// install queues or set DRIVER_OK; callers do that once their queues
// exist, matching the original ordering (features must latch before
// queue_num_max is meaningful).
func (t *Transport) Negotiate(desired uint32) error {
	t.regs.Write32(regStatus, statusReset)
	t.regs.Write32(regStatus, statusAck)
	t.regs.Write32(regStatus, statusDriver)

	t.regs.Write32(regDeviceFeaturesSel, 0)
	device := t.regs.Read32(regDeviceFeatures)

	t.regs.Write32(regDriverFeaturesSel, 0)
	t.regs.Write32(regDriverFeatures, desired&device)

	t.regs.Write32(regStatus, statusFeaturesOk)
	if t.regs.Read32(regStatus)&statusFeaturesOk == 0 {
		return ErrFeaturesNotLatched
	}

	return nil
}

// InstallQueue reserves and registers queue index with the device
// (spec.md §4.4 step 7): queue_num fixed at QueueSize, the three ring
// addresses written low+high, then queue_ready set.
func (t *Transport) InstallQueue(index int) *Queue {
	q := NewQueue(t.alloc)
	descAddr, availAddr, usedAddr := q.addrs()

	t.regs.Write32(regQueueSel, uint32(index))
	t.regs.Write32(regQueueNum, QueueSize)
	t.regs.Write32(regQueueDescLow, uint32(descAddr))
	t.regs.Write32(regQueueDescHigh, uint32(descAddr>>32))
	t.regs.Write32(regQueueAvailLow, uint32(availAddr))
	t.regs.Write32(regQueueAvailHigh, uint32(availAddr>>32))
	t.regs.Write32(regQueueUsedLow, uint32(usedAddr))
	t.regs.Write32(regQueueUsedHigh, uint32(usedAddr>>32))
	t.regs.Write32(regQueueReady, 1)

	for len(t.queues) <= index {
		t.queues = append(t.queues, nil)
	}
	t.queues[index] = q

	return q
}

// SetDriverOK finishes bring-up (spec.md §4.4 step 8), after every
// queue the device needs has been installed.
func (t *Transport) SetDriverOK() {
	t.regs.Write32(regStatus, statusDriverOK)
}

// Queue returns the queue previously installed at index.
func (t *Transport) Queue(index int) *Queue {
	return t.queues[index]
}

// ConfigByte returns the byte at offset within the device-specific config
// area starting at regConfig (used by virtio/net to read the MAC).
func (t *Transport) ConfigByte(offset uintptr) byte {
	word := t.regs.Read32((regConfig + offset) &^ 3)
	shift := (offset & 3) * 8

	return byte(word >> shift)
}

// Submit runs the submission protocol of spec.md §4.4: publish head
// into the available ring, two barriers and an available.idx bump,
// notify, then enable the device IRQ and wfi-loop acknowledging
// interrupt_status until used.idx catches up to available.idx.
//
// This kernel allows exactly one in-flight request per queue, so head
// is always the index of the chain's first descriptor and the wait
// always terminates after exactly one device-completion wake.
func (t *Transport) Submit(queueIndex int, head uint16) error {
	q := t.queues[queueIndex]

	idx := q.availIdx()
	q.setAvailRing(idx, head)
	mmio.Barrier()

	q.setAvailIdx(idx + 1)
	mmio.Barrier()

	t.regs.Write32(regQueueNotify, uint32(queueIndex))
	mmio.Barrier()

	t.irq.Enable()
	for q.usedIdx() != q.availIdx() {
		mmio.WaitForInterrupt()

		if status := t.regs.Read32(regInterruptStatus); status != 0 {
			t.regs.Write32(regInterruptAck, status)
		}
	}
	t.irq.Disable()

	return nil
}
