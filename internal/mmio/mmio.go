// Package mmio implements the volatile register access and memory
// barrier primitives every driver in this kernel is built on: GIC,
// UART and the virtio-mmio transport all go through a Space instead of
// touching pointers directly, which is what lets their tests run
// against a plain byte slice instead of real hardware.
package mmio

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Space is a little-endian 32-bit register window. Hardware implements
// it over a physical base address; tests implement it over a plain
// byte slice standing in for a device's MMIO page.
type Space interface {
	Read32(offset uintptr) uint32
	Write32(offset uintptr, v uint32)
}

// Hardware is a Space backed by a real physical address, accessed with
// atomic loads/stores. Go has no `volatile` keyword; using the atomic
// package to touch the address is the idiomatic stand-in — the
// compiler cannot reorder, cache or elide an atomic access the way it
// could a plain load/store, which is exactly the property a device
// register needs.
type Hardware struct {
	Base uintptr
}

func (h Hardware) Read32(offset uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(h.Base + offset))) //nolint:gosec
}

func (h Hardware) Write32(offset uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(h.Base+offset)), v) //nolint:gosec
}

// Fake is a Space backed by an in-memory buffer, used by every package
// in this repository that needs a mock MMIO window in its tests.
type Fake struct {
	Mem []byte
}

func (f Fake) Read32(offset uintptr) uint32 {
	return binary.LittleEndian.Uint32(f.Mem[offset:])
}

func (f Fake) Write32(offset uintptr, v uint32) {
	binary.LittleEndian.PutUint32(f.Mem[offset:], v)
}

// SetBits ors mask into the register at offset.
func SetBits(s Space, offset uintptr, mask uint32) {
	s.Write32(offset, s.Read32(offset)|mask)
}

// ClearBits clears mask from the register at offset.
func ClearBits(s Space, offset uintptr, mask uint32) {
	s.Write32(offset, s.Read32(offset)&^mask)
}

// IsSet reports whether bit is set in the register at offset.
func IsSet(s Space, offset uintptr, bit uint) bool {
	return s.Read32(offset)&(1<<bit) != 0
}
