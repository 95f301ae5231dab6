//go:build tamago && arm64

// Command kernel is this machine's entry point: boot.Entry (the reset
// vector) calls boot.KernelMain with the firmware-supplied device tree
// blob's physical address, which main wires to kernelMain below
// (spec.md §6 Entry; §2 control flow at startup).
package main

import (
	"log"
	"unsafe"

	"github.com/avirt/allora-kernel/arm/gic"
	"github.com/avirt/allora-kernel/boot"
	"github.com/avirt/allora-kernel/drivers/uart"
	"github.com/avirt/allora-kernel/fdt"
	"github.com/avirt/allora-kernel/internal/endian"
	"github.com/avirt/allora-kernel/internal/mmio"
	"github.com/avirt/allora-kernel/kernel"
	"github.com/avirt/allora-kernel/kernel/heap"
	"github.com/avirt/allora-kernel/netstack"
	"github.com/avirt/allora-kernel/shell"
	"github.com/avirt/allora-kernel/virtio"
	"github.com/avirt/allora-kernel/virtio/block"
	"github.com/avirt/allora-kernel/virtio/entropy"
	"github.com/avirt/allora-kernel/virtio/net"
)

// heapStart stands in for the linker symbol HEAP_START that spec.md
// §4.10 names; kernel/heap.New takes the start address as a parameter.
// Chosen past this binary's own expected footprint in qemu-virt's
// default RAM-at-0x40000000 layout.
const heapStart = 0x40100000

// uartRegionSize is the PL011 MMIO window size this kernel requires of
// the node named by /chosen/stdout-path (spec.md §6 scenario E); a
// node reporting any other size is treated as no UART at all.
const uartRegionSize = 0x1000

// uartDefaultIRQ is qemu-virt's pl011 line (SPI 1) used when the FDT
// node carries no "interrupts" property of its own.
const uartDefaultIRQ = gic.SPIBase + 1

func main() {
	boot.KernelMain = kernelMain
}

// kernelMain runs once, on the primary core, with a valid GIC not yet
// initialized for this CPU (spec.md §2): it brings up the GIC, the
// heap, the UART, and every virtio-mmio device the tree names, spawns
// the serial shell task on its own core, then idles. The network shell
// is not a second always-running task: it only runs when the serial
// shell's "netshell" command transfers control to it, on the same
// core, matching original_source/src/apps/shell.rs's do_line handling
// of that command (see the NetShell wiring below).
func kernelMain(dtb uintptr) {
	gic.Init()

	tree, err := readFDT(dtb)
	if err != nil {
		kernel.Panic("kernel: " + err.Error())
	}

	root, ok := tree.Root()
	if !ok {
		kernel.Panic("kernel: FDT has no root node")
	}

	if _, err := heap.New(tree, heapStart); err != nil {
		kernel.Panic("kernel: " + err.Error())
	}

	u := bringUpUART(root)
	if u == nil {
		kernel.Panic("kernel: no UART node matching " + kernel.StdoutPath)
	}

	log.SetOutput(u)
	log.SetFlags(0)
	log.Printf("kernel: stdout up at %s", kernel.StdoutPath)

	devs := kernel.Global()
	devs.UARTMu.Lock()
	devs.UART = u
	devs.UARTMu.Unlock()

	for _, vn := range collectVirtioNodes(root) {
		bringUpVirtio(devs, vn)
	}

	sh := &shell.Shell{}

	devs.BlockMu.Lock()
	sh.Block = devs.Block
	devs.BlockMu.Unlock()

	devs.EntropyMu.Lock()
	sh.Entropy = devs.Entropy
	devs.EntropyMu.Unlock()

	devs.NetMu.Lock()
	netDev := devs.Net
	devs.NetMu.Unlock()

	// The net device has exactly one caller, ever: the UART shell's own
	// goroutine, and only once "netshell" is typed and only until that
	// call returns (original_source/src/apps/net.rs's run is entered the
	// same way, on the same thread that read the command). There is no
	// background net worker spawned alongside it — doing so would let
	// both tasks reach Device.Read/Write (and s.Block/s.Entropy) at once
	// with no lock guarding either, which spec.md §5's "lock held for
	// the duration of one operation" rules out.
	if netDev != nil {
		sh.NetShell = func() error {
			netstack.Run(netDev, sh)
			return nil
		}
	}

	kernel.Spawn(func() {
		shell.Run(u, sh)
	})

	for {
		mmio.WaitForInterrupt()
	}
}

// readFDT maps the blob's 40-byte header to learn its total size, then
// remaps the full blob. dtb is firmware-owned memory the boot stub
// handed us by physical address; there is no allocation to free it
// into, so this reads it in place rather than copying.
func readFDT(dtb uintptr) (*fdt.Tree, error) {
	head := unsafe.Slice((*byte)(unsafe.Pointer(dtb)), 40) //nolint:gosec
	total := endian.U32[endian.Big](head[4:8]).Native()

	blob := unsafe.Slice((*byte)(unsafe.Pointer(dtb)), total) //nolint:gosec

	return fdt.New(blob)
}

// bringUpUART requires /chosen/stdout-path to equal kernel.StdoutPath
// exactly, then decodes that node's own reg property using the root's
// address/size cells (spec.md §6 scenario E): a missing node, a
// mismatched path, or a region of any size but uartRegionSize yields
// nil rather than a partially-trusted UART.
func bringUpUART(root fdt.Node) *uart.UART {
	chosen, ok := root.ChildByName("chosen")
	if !ok {
		return nil
	}

	path, ok := chosen.PropByName("stdout-path")
	if !ok || path.AsString() != kernel.StdoutPath {
		return nil
	}

	node := root.ChildByPath(kernel.StdoutPath)

	reg, ok := node.PropByName("reg")
	if !ok {
		return nil
	}

	base, size, ok := decodeReg(reg, root.AddressCells(), root.SizeCells())
	if !ok || size != uartRegionSize {
		return nil
	}

	irq := uint32(uartDefaultIRQ)
	if p, ok := node.PropByName("interrupts"); ok {
		if cells := p.AsU32s(); len(cells) >= 2 {
			irq = decodeIRQLine(cells[0], cells[1])
		}
	}

	return uart.New(base, irq)
}

// virtioNode is one /**/**/compatible=="virtio,mmio" node's decoded
// reg and interrupts properties (spec.md §6).
type virtioNode struct {
	base uintptr
	irq  uint32
}

// collectVirtioNodes walks the whole tree below root, not just its
// immediate children, since spec.md §6 names "/**/**/*" — virtio-mmio
// nodes on qemu-virt sit directly under root, but this kernel does not
// assume that placement.
func collectVirtioNodes(n fdt.Node) []virtioNode {
	var out []virtioNode

	addrCells := n.AddressCells()
	sizeCells := n.SizeCells()

	it := n.Children()
	for {
		c, ok := it.Next()
		if !ok {
			break
		}

		if p, ok := c.PropByName("compatible"); ok && p.AsString() == "virtio,mmio" {
			if vn, ok := decodeVirtioNode(c, addrCells, sizeCells); ok {
				out = append(out, vn)
			}
		}

		out = append(out, collectVirtioNodes(c)...)
	}

	return out
}

func decodeVirtioNode(n fdt.Node, addrCells, sizeCells uint32) (virtioNode, bool) {
	reg, ok := n.PropByName("reg")
	if !ok {
		return virtioNode{}, false
	}

	base, _, ok := decodeReg(reg, addrCells, sizeCells)
	if !ok {
		return virtioNode{}, false
	}

	irqProp, ok := n.PropByName("interrupts")
	if !ok {
		return virtioNode{}, false
	}

	cells := irqProp.AsU32s()
	if len(cells) < 2 {
		return virtioNode{}, false
	}

	return virtioNode{base: base, irq: decodeIRQLine(cells[0], cells[1])}, true
}

// decodeReg concatenates a reg property's leading address/size cells,
// big-endian, the same way kernel/heap.region decodes a memory node's.
func decodeReg(reg fdt.Prop, addrCells, sizeCells uint32) (base, size uintptr, ok bool) {
	cells := reg.AsU32s()
	if uint32(len(cells)) < addrCells+sizeCells {
		return 0, 0, false
	}

	for i := uint32(0); i < addrCells; i++ {
		base = base<<32 | uintptr(cells[i])
	}

	for i := uint32(0); i < sizeCells; i++ {
		size = size<<32 | uintptr(cells[addrCells+i])
	}

	return base, size, true
}

// decodeIRQLine applies the SPI/PPI convention spec.md §6 names: an
// interrupt cell's type 0 is SPI (add gic.SPIBase), type 1 is PPI (add
// gic.PPIBase).
func decodeIRQLine(typ, line uint32) uint32 {
	if typ == 1 {
		return gic.PPIBase + line
	}

	return gic.SPIBase + line
}

// bringUpVirtio probes one virtio-mmio window and, if it names a
// device this kernel drives, constructs it and installs it into the
// global registry. An unrecognized or unprobeable device is logged and
// skipped rather than panicking: spec.md's Unrecoverable tier is for
// mandatory bring-up (the UART, the memory node), not for an optional
// peripheral qemu-virt happens to expose more of than this kernel uses.
func bringUpVirtio(devs *kernel.Devices, vn virtioNode) {
	regs := mmio.Hardware{Base: vn.base}

	id, ok := virtio.Probe(regs)
	if !ok {
		log.Printf("kernel: no virtio device at %#x", vn.base)
		return
	}

	tr := virtio.New(regs, gic.New(vn.irq), virtio.DefaultAllocator())

	switch id {
	case virtio.DeviceBlk:
		dev, err := block.New(tr, virtio.DefaultAllocator())
		if err != nil {
			log.Printf("kernel: block device at %#x: %v", vn.base, err)
			return
		}

		devs.BlockMu.Lock()
		devs.Block = dev
		devs.BlockMu.Unlock()

	case virtio.DeviceEntropy:
		dev, err := entropy.New(tr, virtio.DefaultAllocator())
		if err != nil {
			log.Printf("kernel: entropy device at %#x: %v", vn.base, err)
			return
		}

		devs.EntropyMu.Lock()
		devs.Entropy = dev
		devs.EntropyMu.Unlock()

	case virtio.DeviceNet:
		dev, err := net.New(tr, virtio.DefaultAllocator())
		if err != nil {
			log.Printf("kernel: net device at %#x: %v", vn.base, err)
			return
		}

		devs.NetMu.Lock()
		devs.Net = dev
		devs.NetMu.Unlock()

	default:
		log.Printf("kernel: unsupported virtio device id %d at %#x", id, vn.base)
	}
}
