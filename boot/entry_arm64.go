//go:build arm64

package boot

// Entry is the machine's reset vector (entry_arm64.s). It is never
// called from Go; it exists as a named symbol for a linker script to
// mark as the ELF entry point.
func Entry()
