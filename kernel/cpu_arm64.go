//go:build arm64

package kernel

// secondaryEntry returns the address PSCI CPU_ON should start the new
// core at: a small trampoline (cpu_arm64.s) that sets SP from
// coreStacks[core] — using the core id PSCI delivers back as the
// context argument — before calling into secondaryMain.
func secondaryEntry() uintptr
