// Package endian implements endianness-tagged integer wrappers.
//
// The device-tree walker, the virtio ring accessors, the network
// stack and kernel_main's read of the blob size access their fields
// through these types, so that the byte order conversion happens
// exactly once, at the point of access. MMIO registers, the virtio-blk
// request header and the virtio-net config area are decoded without
// them.
package endian

import "encoding/binary"

// Order is the set of operations a byte order must provide to be used
// as the E parameter of Value[T, E].
type Order interface {
	put16(b []byte, v uint16)
	put32(b []byte, v uint32)
	put64(b []byte, v uint64)
	u16(b []byte) uint16
	u32(b []byte) uint32
	u64(b []byte) uint64
}

// Big is the tag type for big-endian (network order, used on the wire
// by the device-tree blob and by IPv4/ARP/ICMP/UDP headers).
type Big struct{}

// Little is the tag type for little-endian (used by every virtio-mmio
// register and every virtio data structure).
type Little struct{}

func (Big) put16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func (Big) put32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func (Big) put64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func (Big) u16(b []byte) uint16      { return binary.BigEndian.Uint16(b) }
func (Big) u32(b []byte) uint32      { return binary.BigEndian.Uint32(b) }
func (Big) u64(b []byte) uint64      { return binary.BigEndian.Uint64(b) }

func (Little) put16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func (Little) put32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func (Little) put64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func (Little) u16(b []byte) uint16      { return binary.LittleEndian.Uint16(b) }
func (Little) u32(b []byte) uint32      { return binary.LittleEndian.Uint32(b) }
func (Little) u64(b []byte) uint64      { return binary.LittleEndian.Uint64(b) }

// U16 is a 16-bit integer stored in byte order E.
type U16[E Order] [2]byte

// NewU16 converts a host-order value into wire order E.
func NewU16[E Order](v uint16) U16[E] {
	var e E
	var out U16[E]
	e.put16(out[:], v)

	return out
}

// Native returns the value converted to host byte order.
func (v U16[E]) Native() uint16 {
	var e E
	return e.u16(v[:])
}

// U32 is a 32-bit integer stored in byte order E.
type U32[E Order] [4]byte

// NewU32 converts a host-order value into wire order E.
func NewU32[E Order](v uint32) U32[E] {
	var e E
	var out U32[E]
	e.put32(out[:], v)

	return out
}

// Native returns the value converted to host byte order.
func (v U32[E]) Native() uint32 {
	var e E
	return e.u32(v[:])
}

// U64 is a 64-bit integer stored in byte order E.
type U64[E Order] [8]byte

// NewU64 converts a host-order value into wire order E.
func NewU64[E Order](v uint64) U64[E] {
	var e E
	var out U64[E]
	e.put64(out[:], v)

	return out
}

// Native returns the value converted to host byte order.
func (v U64[E]) Native() uint64 {
	var e E
	return e.u64(v[:])
}

// BE16/BE32/BE64 and LE16/LE32/LE64 are the concrete instantiations used
// throughout the rest of the kernel; spelling out the generic
// instantiation at every call site would obscure the field tables they
// appear in.
type (
	BE16 = U16[Big]
	BE32 = U32[Big]
	BE64 = U64[Big]
	LE16 = U16[Little]
	LE32 = U32[Little]
	LE64 = U64[Little]
)
