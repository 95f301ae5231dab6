//go:build arm64

package kernel

import "github.com/avirt/allora-kernel/internal/mmio"

const (
	pl011DR = 0x00
	pl011FR = 0x18
	frBUSY  = 1 << 3
)

// pl011WriteByte polls the busy flag directly (no interrupt, no lock)
// before writing, deliberately bypassing drivers/uart's GIC-gated
// path: a panicking core must not depend on an interrupt ever firing
// again.
func pl011WriteByte(b byte) {
	regs := mmio.Hardware{Base: pl011Base}

	for regs.Read32(pl011FR)&frBUSY != 0 {
	}

	regs.Write32(pl011DR, uint32(b))
}
