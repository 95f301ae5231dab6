// Package gic drives a GICv2-style interrupt controller, the
// AArch64 "virt" platform's programmable interrupt controller.
//
// The register layout and enable/ack/disable contract are grounded on
// github.com/usbarmory/tamago/arm/gic's own distributor+CPU-interface
// split (see soc/nxp/imx6ul.go's `GIC = &gic.GIC{Base: GIC_BASE}`
// construction), adapted here to the two fixed bases qemu-virt exposes
// (GICD at 0x08000000, GICC at 0x08010000) instead of a single SoC base.
package gic

import (
	"runtime"

	"github.com/avirt/allora-kernel/internal/mmio"
)

// Distributor and CPU interface register offsets (GICv2).
const (
	gicdCTLR        = 0x000
	gicdISENABLER   = 0x100
	gicdICENABLER   = 0x180
	gicdIPRIORITYR  = 0x400
	gicdITARGETSR   = 0x800
	gicdICFGR       = 0xc00

	gicdEnableGroup0 = 1 << 0
	gicdEnableGroup1 = 1 << 1

	giccCTLR = 0x000
	giccPMR  = 0x004
	giccIAR  = 0x00c
	giccEOIR = 0x010

	gicdBase = 0x08000000
	giccBase = 0x08010000

	// SPI interrupts start at line 32; type 0 ("SPI") in an FDT
	// `interrupts` cell therefore adds 32, type 1 ("PPI") adds 16
	// (spec.md §6).
	SPIBase = 32
	PPIBase = 16

	defaultPriority = 0xa0
)

var (
	distributor mmio.Space = defaultSpace(gicdBase)
	cpuIface    mmio.Space = defaultSpace(giccBase)
)

// defaultSpace returns the hardware register window at base on arm64.
// On any other architecture it returns a zeroed in-memory window, the
// same host fallback mmio.WaitForInterrupt and virtio's allocator use,
// so driver tests that enable and clear their line run without a GIC.
func defaultSpace(base uintptr) mmio.Space {
	if runtime.GOARCH != "arm64" {
		return mmio.Fake{Mem: make([]byte, 0x1000)}
	}

	return mmio.Hardware{Base: base}
}

// Init brings up the GIC's CPU interface for the calling core. It must
// run once per CPU, before that core enables any IRQ line (spec.md
// §4.2): secondary cores call it from their own entry point
// (kernel/cpu.go), the primary core calls it during kernel_main.
func Init() {
	distributor.Write32(gicdCTLR, gicdEnableGroup0|gicdEnableGroup1)
	cpuIface.Write32(giccPMR, 0xff)
	cpuIface.Write32(giccCTLR, 1)
}

// GIC is a handle to a single interrupt line.
type GIC struct {
	IRQ uint32
}

// New constructs a handle to interrupt line irq. It does not enable
// the line; callers do that explicitly around a wait.
func New(irq uint32) GIC {
	return GIC{IRQ: irq}
}

// Enable unmasks the line at both the distributor and (implicitly, via
// the priority mask already set by Init) the CPU interface.
func (g GIC) Enable() {
	reg := gicdISENABLER + 4*(g.IRQ/32)
	distributor.Write32(uintptr(reg), 1<<(g.IRQ%32))
}

// Disable masks the line again at the distributor.
func (g GIC) Disable() {
	reg := gicdICENABLER + 4*(g.IRQ/32)
	distributor.Write32(uintptr(reg), 1<<(g.IRQ%32))
}

// Clear acknowledges and ends the interrupt currently pending at the
// CPU interface. Drivers use Enable→WaitForInterrupt→Clear→Disable as
// a bounded sleep primitive (spec.md §4.2); Clear does not verify that
// the acknowledged IRQ number matches g.IRQ, mirroring the teacher's
// own single-in-flight-request assumption (one request per queue) —
// on qemu-virt each device's line is exclusively owned by its driver.
func (g GIC) Clear() {
	iar := cpuIface.Read32(giccIAR)
	cpuIface.Write32(giccEOIR, iar)
}
