//go:build arm64

package mmio

// Barrier issues a full data synchronization barrier (DSB SY). The
// split virtqueue protocol (spec.md §4.4) requires one between every
// descriptor-ring mutation step: the device may otherwise observe a
// fresh available-ring index pointing at a stale descriptor.
func Barrier()

// WaitForInterrupt halts the calling core until an unmasked interrupt
// arrives (AArch64 WFI). It is the kernel's only suspension point:
// UART byte I/O, every virtio request, and the primary core's idle
// loop all issue it directly or through a GIC-gated wait.
func WaitForInterrupt()
