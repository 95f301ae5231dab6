package kernel

import (
	"github.com/avirt/allora-kernel/arm/psci"
)

// pl011Base is the PL011 UART's physical address on qemu-virt; Panic
// writes to it directly rather than going through drivers/uart, since
// a panicking core cannot assume that package's lock is free (spec.md
// §9 "Unrecoverable" tier — this is the one path in the kernel that
// deliberately bypasses the UART driver).
const pl011Base = 0x09000000

// Panic prints msg directly to the UART data register (polling the
// busy flag rather than waiting on an interrupt, since the GIC state
// on a panicking core is unknown) and halts the machine via PSCI
// SYSTEM_OFF. It never returns.
func Panic(msg string) {
	writeRaw(msg + "\npanic: halting\n")
	psci.SystemOff()

	for {
	}
}

func writeRaw(s string) {
	for i := 0; i < len(s); i++ {
		pl011WriteByte(s[i])
	}
}
