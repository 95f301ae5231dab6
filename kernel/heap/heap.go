// Package heap bootstraps and drives the kernel's free-list allocator:
// locating usable RAM from the FDT (spec.md §4.10) and handing out
// aligned blocks from it.
//
// The free-list bookkeeping — a sorted slice of disjoint free extents,
// coalescing neighbors on Free — is grounded on the teacher's
// (github.com/bobuhiro11/gokvm) memory/memory.go address-space region
// list, adapted from tracking guest-physical memory regions to
// tracking free blocks past HEAP_START.
package heap

import (
	"errors"
	"sort"

	"github.com/avirt/allora-kernel/fdt"
)

var (
	ErrNoMemoryNode     = errors.New("heap: no FDT node with device_type \"memory\"")
	ErrHeapStartOutside = errors.New("heap: HEAP_START lies outside the memory node's region")
	ErrOOM              = errors.New("heap: out of memory")
)

// extent is a disjoint, address-ordered free block.
type extent struct {
	base, size uintptr
}

// Allocator is a first-fit, address-sorted free-list allocator over
// one contiguous region.
type Allocator struct {
	free []extent
}

// region locates the memory node (device_type == "memory") under the
// FDT root and decodes its reg property into (address, size) using
// the root's own #address-cells/#size-cells (spec.md §4.10).
func region(root fdt.Node) (base, size uintptr, err error) {
	addrCells := root.AddressCells()
	sizeCells := root.SizeCells()

	for _, n := range root.ChildrenByProp("device_type", func(p fdt.Prop) bool {
		return p.AsString() == "memory"
	}) {
		reg, ok := n.PropByName("reg")
		if !ok {
			continue
		}

		cells := reg.AsU32s()
		if uint32(len(cells)) < addrCells+sizeCells {
			continue
		}

		var addr, sz uintptr
		for i := uint32(0); i < addrCells; i++ {
			addr = addr<<32 | uintptr(cells[i])
		}

		for i := uint32(0); i < sizeCells; i++ {
			sz = sz<<32 | uintptr(cells[addrCells+i])
		}

		return addr, sz, nil
	}

	return 0, 0, ErrNoMemoryNode
}

// New walks tree for the memory node, requires heapStart to lie within
// it, and returns an Allocator covering [heapStart, base+size).
func New(tree *fdt.Tree, heapStart uintptr) (*Allocator, error) {
	root, ok := tree.Root()
	if !ok {
		return nil, ErrNoMemoryNode
	}

	base, size, err := region(root)
	if err != nil {
		return nil, err
	}

	if heapStart < base || heapStart >= base+size {
		return nil, ErrHeapStartOutside
	}

	return &Allocator{free: []extent{{base: heapStart, size: base + size - heapStart}}}, nil
}

// Alloc returns the base address of a size-byte block aligned to
// align (a power of two), removing it from the free list.
func (a *Allocator) Alloc(size, align uintptr) (uintptr, error) {
	if align == 0 {
		align = 1
	}

	for i, e := range a.free {
		aligned := (e.base + align - 1) &^ (align - 1)
		pad := aligned - e.base

		if pad+size > e.size {
			continue
		}

		a.free = removeAndSplit(a.free, i, pad, size)

		return aligned, nil
	}

	return 0, ErrOOM
}

// removeAndSplit replaces free list entry i (base e.base, size e.size)
// with whatever is left over on either side of [e.base+pad, +size).
func removeAndSplit(free []extent, i int, pad, size uintptr) []extent {
	e := free[i]
	rest := append(free[:i:i], free[i+1:]...)

	if pad > 0 {
		rest = insertSorted(rest, extent{base: e.base, size: pad})
	}

	tailBase := e.base + pad + size
	tailSize := e.size - pad - size
	if tailSize > 0 {
		rest = insertSorted(rest, extent{base: tailBase, size: tailSize})
	}

	return rest
}

func insertSorted(free []extent, e extent) []extent {
	i := sort.Search(len(free), func(i int) bool { return free[i].base >= e.base })
	free = append(free, extent{})
	copy(free[i+1:], free[i:])
	free[i] = e

	return free
}

// Free returns a previously allocated block to the free list,
// coalescing it with an adjacent neighbor if one exists.
func (a *Allocator) Free(base, size uintptr) {
	e := extent{base: base, size: size}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].base >= e.base })

	a.free = append(a.free, extent{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = e

	a.coalesce()
}

func (a *Allocator) coalesce() {
	out := a.free[:0]

	for _, e := range a.free {
		if n := len(out); n > 0 && out[n-1].base+out[n-1].size == e.base {
			out[n-1].size += e.size
			continue
		}

		out = append(out, e)
	}

	a.free = out
}
