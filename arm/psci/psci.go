// Package psci issues Power State Coordination Interface calls via
// SMC: CPU_ON to bring up a secondary core, CPU_OFF to retire the
// calling core, and SYSTEM_OFF to power down the whole machine from
// the panic path (spec.md §4.9, §6).
package psci

// PSCI v0.2 function identifiers (32-bit SMC calling convention).
const (
	fnCPUOn     = 0x84000003
	fnCPUOff    = 0x84000002
	fnSystemOff = 0x84000008
)

// CPUOn powers on core and starts it executing at entry, passing
// ctx as its first argument (the thread descriptor pointer in
// kernel/cpu.go). Returns a PSCI status code (0 is success).
func CPUOn(core uint64, entry uintptr, ctx uintptr) int64 {
	return smc(fnCPUOn, core, uint64(entry), uint64(ctx))
}

// CPUOff retires the calling core. It does not return on success.
func CPUOff() {
	smc(fnCPUOff, 0, 0, 0)
}

// SystemOff powers down the machine. It does not return.
func SystemOff() {
	smc(fnSystemOff, 0, 0, 0)
}
