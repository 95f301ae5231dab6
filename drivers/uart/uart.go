// Package uart drives a PL011-style UART: byte-granular I/O gated by
// the GIC (spec.md §4.3), plus line editing with echo for the shell.
//
// The register offsets and write_byte/read_byte wait pattern are
// grounded on _examples/original_source/src/uart.rs (data register at
// offset 0, flag register at 0x18, interrupt mask/clear registers at
// 0x38/0x44 in the PL011 map); the interrupt-driven wait itself (mask
// one bit, enable the GIC line, WFI, clear, restore the mask) is
// spec.md §4.3's addition over that file, grounded on the teacher's
// serial.go IRQ-injection idiom (github.com/bobuhiro11/gokvm serial
// package) adapted from "inject an IRQ on write" to "wait for one".
package uart

import (
	"sync"

	"github.com/avirt/allora-kernel/arm/gic"
	"github.com/avirt/allora-kernel/internal/mmio"
)

// PL011 register offsets.
const (
	regDR   = 0x00
	regFR   = 0x18
	regIMSC = 0x38
	regICR  = 0x44

	frTXFF = 1 << 5 // transmit FIFO full
	frRXFE = 1 << 4 // receive FIFO empty
	frBUSY = 1 << 3

	imscTXIM = 1 << 5
	imscRXIM = 1 << 4
)

// UART is a PL011 instance. It is a global singleton behind a lock
// (spec.md §3 Ownership, §5 Shared resources); callers hold Lock for
// the duration of one operation and never hold it across a wfi for
// another device.
type UART struct {
	mu   sync.Mutex
	regs mmio.Space
	irq  gic.GIC
}

// New constructs a UART at the given MMIO base, wired to GIC line irq.
func New(base uintptr, irq uint32) *UART {
	return &UART{regs: mmio.Hardware{Base: base}, irq: gic.New(irq)}
}

// newFake is used by tests to construct a UART over a plain byte slice.
func newFake(mem []byte, irq uint32) *UART {
	return &UART{regs: mmio.Fake{Mem: mem}, irq: gic.New(irq)}
}

// Lock acquires the UART for the duration of one operation. Exported
// so a caller composing several byte operations (read_line) can hold
// it across all of them without re-entering the mutex per byte.
func (u *UART) Lock()   { u.mu.Lock() }
func (u *UART) Unlock() { u.mu.Unlock() }

// WriteByte writes b, waiting on the GIC for the TX-empty condition
// exactly as spec.md §4.3 describes: mask in the TX interrupt, enable
// the line, wfi, clear, loop until BUSY clears, then restore the mask.
func (u *UART) WriteByte(b byte) error {
	u.regs.Write32(regDR, uint32(b))

	imsc := u.regs.Read32(regIMSC)
	mmio.SetBits(u.regs, regIMSC, imscTXIM)
	u.irq.Enable()

	for u.regs.Read32(regFR)&frBUSY != 0 {
		mmio.WaitForInterrupt()
		u.irq.Clear()
	}

	u.irq.Disable()
	u.regs.Write32(regIMSC, imsc)

	return nil
}

// ReadByte waits for and returns one byte, using the same
// mask/enable/wfi/clear dance against the RX-not-empty condition.
func (u *UART) ReadByte() (byte, error) {
	imsc := u.regs.Read32(regIMSC)
	mmio.SetBits(u.regs, regIMSC, imscRXIM)
	u.irq.Enable()

	for u.regs.Read32(regFR)&frRXFE != 0 {
		mmio.WaitForInterrupt()
		u.irq.Clear()
	}

	u.irq.Disable()
	u.regs.Write32(regIMSC, imsc)

	b := byte(u.regs.Read32(regDR))

	return b, nil
}

// Write implements io.Writer by writing each byte in turn; it does not
// take the lock itself. A caller that keeps a run of operations
// together holds Lock around them, as shell.Run does around its prompt
// and line read.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		if err := u.WriteByte(b); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}

// ReadLine accumulates bytes into buf until CR, LF, or buf is full,
// optionally echoing each byte plus a trailing newline.
func (u *UART) ReadLine(buf []byte, echo bool) ([]byte, error) {
	n := 0

	for n < len(buf) {
		b, err := u.ReadByte()
		if err != nil {
			return nil, err
		}

		if b == '\r' || b == '\n' {
			break
		}

		if echo {
			if err := u.WriteByte(b); err != nil {
				return nil, err
			}
		}

		buf[n] = b
		n++
	}

	if echo {
		if err := u.WriteByte('\n'); err != nil {
			return nil, err
		}
	}

	return buf[:n], nil
}
