//go:build !arm64

package mmio

import "sync/atomic"

// barrierFence stands in for the AArch64 DSB on non-arm64 builds (unit
// tests run against a Fake Space on the host's native architecture).
// A Go atomic op is a full compiler/CPU fence on every architecture Go
// supports, which is all the ordering a Fake Space needs.
var barrierFence uint32

// Barrier is the non-arm64 stand-in described above; see
// barrier_arm64.s for the real AArch64 DSB used in the kernel build.
func Barrier() {
	atomic.AddUint32(&barrierFence, 1)
}

// WaitForInterrupt is a no-op outside the arm64 kernel build: tests
// drive completion with a fake hypervisor goroutine instead of a real
// GIC, so there is nothing to actually wait for.
func WaitForInterrupt() {}
