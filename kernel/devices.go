package kernel

import (
	"sync"

	"github.com/avirt/allora-kernel/drivers/uart"
	"github.com/avirt/allora-kernel/virtio/block"
	"github.com/avirt/allora-kernel/virtio/entropy"
	"github.com/avirt/allora-kernel/virtio/net"
)

// Devices is the global registry of driver singletons: "shared device
// handles guarded by spinlocks" (spec.md §3 Ownership, §5 Shared
// resources), named as a type since the distillation describes the
// requirement without giving it one. kernel_main populates it once,
// before any worker task is spawned, and then copies the handles out
// under each field's own lock into the shell it spawns.
type Devices struct {
	UARTMu sync.Mutex
	UART   *uart.UART

	BlockMu sync.Mutex
	Block   *block.Device

	EntropyMu sync.Mutex
	Entropy   *entropy.Device

	NetMu sync.Mutex
	Net   *net.Device
}

// global is the single instance kernel_main fills in.
var global Devices

// Global returns the device registry. Safe to call from any core once
// kernel_main has finished device bring-up.
func Global() *Devices {
	return &global
}
