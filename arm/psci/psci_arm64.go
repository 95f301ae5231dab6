//go:build arm64

package psci

// smc issues a Secure Monitor Call with up to three arguments and
// returns the function's x0 result. Implemented in psci_arm64.s; the
// instruction has no non-assembly encoding.
func smc(function, arg0, arg1, arg2 uint64) int64
