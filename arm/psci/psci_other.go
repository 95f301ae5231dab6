//go:build !arm64

package psci

// smc is unavailable outside the arm64 kernel build; PSCI calls only
// take effect on real AArch64 hardware. Here every call returns
// NOT_SUPPORTED without doing anything, and kernel.Spawn's host tests
// run through this stub.
func smc(function, arg0, arg1, arg2 uint64) int64 {
	return -1 // PSCI NOT_SUPPORTED
}
