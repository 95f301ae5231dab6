package gic

import (
	"testing"

	"github.com/avirt/allora-kernel/internal/mmio"
)

// withFakeGIC swaps the package-level hardware Space for a plain byte
// slice for the duration of a test, the same mock-MMIO approach every
// driver package in this repository uses (spec.md §8: "implementable
// against mock MMIO").
func withFakeGIC(t *testing.T) (d, c mmio.Fake) {
	t.Helper()

	d = mmio.Fake{Mem: make([]byte, 0x1000)}
	c = mmio.Fake{Mem: make([]byte, 0x1000)}

	origD, origC := distributor, cpuIface
	distributor, cpuIface = d, c

	t.Cleanup(func() {
		distributor, cpuIface = origD, origC
	})

	return d, c
}

func TestEnableSetsDistributorBit(t *testing.T) {
	t.Parallel()

	d, _ := withFakeGIC(t)

	g := New(33) // SPI 1: register word 1, bit 1
	g.Enable()

	got := d.Read32(gicdISENABLER + 4)
	if got != 1<<1 {
		t.Fatalf("ISENABLER[1] = %#x, want %#x", got, 1<<1)
	}
}

func TestDisableSetsClearEnableBit(t *testing.T) {
	t.Parallel()

	d, _ := withFakeGIC(t)

	g := New(40) // word 1, bit 8
	g.Disable()

	got := d.Read32(gicdICENABLER + 4)
	if got != 1<<8 {
		t.Fatalf("ICENABLER[1] = %#x, want %#x", got, 1<<8)
	}
}

func TestClearAcknowledgesAndEOIs(t *testing.T) {
	t.Parallel()

	_, c := withFakeGIC(t)

	c.Write32(giccIAR, 42)

	g := New(42)
	g.Clear()

	if got := c.Read32(giccEOIR); got != 42 {
		t.Fatalf("EOIR = %d, want 42", got)
	}
}

func TestInitEnablesGroupsAndPriorityMask(t *testing.T) {
	t.Parallel()

	d, c := withFakeGIC(t)

	Init()

	if got := d.Read32(gicdCTLR); got != gicdEnableGroup0|gicdEnableGroup1 {
		t.Fatalf("GICD_CTLR = %#x", got)
	}

	if got := c.Read32(giccPMR); got != 0xff {
		t.Fatalf("GICC_PMR = %#x, want 0xff", got)
	}
}
