package virtio

import "github.com/avirt/allora-kernel/internal/endian"

// QueueSize is the fixed split-virtqueue depth this kernel uses for
// every queue of every device (spec.md §3).
const QueueSize = 128

// Descriptor flag bits.
const (
	DescNext     = 1 // chain continues at the next field
	DescWrite    = 2 // device writes into this buffer
	DescIndirect = 4 // unused by any device in this kernel
)

const (
	descSize  = 16                 // addr(8) + len(4) + flags(2) + next(2)
	availSize = 4 + QueueSize*2 + 2 // flags + idx + ring + used_event
	usedSize  = 4 + QueueSize*8 + 2 // flags + idx + ring (id+len each 4) + avail_event
	usedElem  = 8
)

// Queue is one split virtqueue: a descriptor table plus an available
// ring (driver→device) and a used ring (device→driver), each a
// separately DMA-reserved allocation per spec.md §3 (16/2/4-byte
// alignment respectively).
type Queue struct {
	descAddr, availAddr, usedAddr uint64
	desc, avail, used             []byte
	alloc                         Allocator
}

// NewQueue reserves storage for all three rings.
func NewQueue(alloc Allocator) *Queue {
	descAddr, desc := alloc.Reserve(QueueSize*descSize, 16)
	availAddr, avail := alloc.Reserve(availSize, 2)
	usedAddr, used := alloc.Reserve(usedSize, 4)

	return &Queue{
		descAddr: descAddr, availAddr: availAddr, usedAddr: usedAddr,
		desc: desc, avail: avail, used: used,
		alloc: alloc,
	}
}

// Release frees all three ring allocations.
func (q *Queue) Release() {
	q.alloc.Release(q.descAddr)
	q.alloc.Release(q.availAddr)
	q.alloc.Release(q.usedAddr)
}

func (q *Queue) addrs() (desc, avail, used uint64) {
	return q.descAddr, q.availAddr, q.usedAddr
}

// putLE16/getLE16/putLE32/getLE32/putLE64 route every little-endian
// ring/descriptor field access through endian.U16/U32/U64[Little],
// the wrapper spec.md module 1 names for on-wire fields, rather than
// calling encoding/binary directly at each call site.
func putLE16(b []byte, v uint16) {
	w := endian.NewU16[endian.Little](v)
	copy(b, w[:])
}

func getLE16(b []byte) uint16 {
	return endian.U16[endian.Little](b[:2]).Native()
}

func putLE32(b []byte, v uint32) {
	w := endian.NewU32[endian.Little](v)
	copy(b, w[:])
}

func getLE32(b []byte) uint32 {
	return endian.U32[endian.Little](b[:4]).Native()
}

func putLE64(b []byte, v uint64) {
	w := endian.NewU64[endian.Little](v)
	copy(b, w[:])
}

// SetDescriptor fills descriptor slot i of the chain.
func (q *Queue) SetDescriptor(i int, addr uint64, length uint32, flags, next uint16) {
	off := i * descSize
	putLE64(q.desc[off:], addr)
	putLE32(q.desc[off+8:], length)
	putLE16(q.desc[off+12:], flags)
	putLE16(q.desc[off+14:], next)
}

func (q *Queue) availIdx() uint16 {
	return getLE16(q.avail[2:])
}

func (q *Queue) setAvailIdx(v uint16) {
	putLE16(q.avail[2:], v)
}

// setAvailRing writes descriptor index desc into available ring slot
// (idx mod QueueSize), per spec.md §4.4 submission step 2.
func (q *Queue) setAvailRing(idx uint16, desc uint16) {
	off := 4 + int(idx%QueueSize)*2
	putLE16(q.avail[off:], desc)
}

func (q *Queue) usedIdx() uint16 {
	return getLE16(q.used[2:])
}

// SetUsedIdxForTest writes the used ring's idx field directly. It
// exists for device-personality tests across packages that need to
// simulate a completed request without a real device behind the
// queue; mmio.WaitForInterrupt is a no-op off arm64; pre-advancing
// used.idx to the value available.idx will reach is what lets
// Transport.Submit's wait loop exit in those tests.
func (q *Queue) SetUsedIdxForTest(v uint16) {
	putLE16(q.used[2:], v)
}

// UsedLen returns the length field the device reported for the used
// ring slot at position idx mod QueueSize; device personalities that
// need it (none currently surface it, per spec.md §4.5's "status byte
// is written but not inspected") can read it for diagnostics.
func (q *Queue) UsedLen(idx uint16) uint32 {
	off := 4 + int(idx%QueueSize)*usedElem + 4
	return getLE32(q.used[off:])
}
