// Package shell implements the line-oriented command dispatcher
// (spec.md §4.8): split a line on spaces, dispatch on the first
// token, write output through a caller-supplied sink so the same
// dispatcher serves both the UART and the UDP/44 reply path,
// grounded on _examples/original_source/src/apps/shell.rs.
package shell

import (
	"bytes"
	"io"
	"strconv"

	"github.com/avirt/allora-kernel/drivers/uart"
	"github.com/avirt/allora-kernel/virtio/block"
	"github.com/avirt/allora-kernel/virtio/entropy"
)

const sectorSize = 512

// biasScale and biasShift implement the original source's biased
// entropy-to-printable-range mapping for writerand: b = b*100/272 + 32.
const (
	biasScale = 100
	biasShift = 272
	biasBase  = 32
)

// Shell owns the block and entropy devices a command may touch. It is
// safe for one shell loop at a time; the UART loop and a netshell
// session never run concurrently (spec.md §4.8: netshell "transfers
// control" rather than running alongside the UART).
type Shell struct {
	Block   *block.Device
	Entropy *entropy.Device

	// NetShell, if non-nil, hands control to the UDP/44 server until
	// it returns. It is wired in by cmd/kernel rather than imported
	// directly, since netstack dispatches lines back through DoLine
	// and importing it here would cycle.
	NetShell func() error
}

// DoLine executes one command line, writing output to w and reading
// any command-specific input from r (used only by "write"), and
// reports whether the shell loop should terminate.
func (s *Shell) DoLine(line []byte, r io.Reader, w io.Writer) bool {
	line = firstLine(line)
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch string(fields[0]) {
	case "rand":
		s.rand(w)
	case "writerand":
		s.writeRand(fields[1:], w)
	case "read":
		s.read(fields[1:], w)
	case "write":
		s.write(fields[1:], r, w)
	case "netshell":
		if s.NetShell != nil {
			s.NetShell()
		}
	case "exit":
		return true
	case "help":
		io.WriteString(w, "commands: rand, read <sector> [len], write <sector> <len>, writerand <sector> <len>, netshell, exit")
	default:
		io.WriteString(w, `Unknown command "`)
		w.Write(line)
		io.WriteString(w, `"`)
	}

	return false
}

// firstLine strips a trailing CR/LF the way the original source's
// split(|c| *c == b'\n' || *c == b'\r').next() does.
func firstLine(line []byte) []byte {
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		return line[:i]
	}
	return line
}

func parseUint(s []byte, fallback uint64) uint64 {
	v, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(s []byte, fallback int) int {
	v, err := strconv.Atoi(string(s))
	if err != nil {
		return fallback
	}
	return v
}

func arg(fields [][]byte, i int) []byte {
	if i < len(fields) {
		return fields[i]
	}
	return nil
}

// rand implements "rand": 16 entropy bytes prefixed "Random: ".
func (s *Shell) rand(w io.Writer) {
	var data [16]byte
	s.Entropy.Read(data[:])

	io.WriteString(w, "Random: ")
	w.Write(data[:])
}

// writeRand implements "writerand sector len": len bytes of biased
// entropy written to sequential 512-byte sectors starting at sector.
func (s *Shell) writeRand(fields [][]byte, w io.Writer) {
	sector := parseUint(arg(fields, 0), 0)
	length := int(parseUint(arg(fields, 1), 0))

	var sectorBuf [sectorSize]byte
	for length > 0 {
		cur := min(sectorSize, length)
		buf := sectorBuf[:cur]

		s.Entropy.Read(buf)
		for i, b := range buf {
			buf[i] = byte(uint32(b)*biasScale/biasShift + biasBase)
		}

		full := sectorBuf
		for i := cur; i < sectorSize; i++ {
			full[i] = 0
		}
		s.Block.Write(sector, full[:])

		sector++
		length -= cur
	}

	io.WriteString(w, "done")
}

// read implements "read sector [len=512]": emit len bytes starting at
// sector.
func (s *Shell) read(fields [][]byte, w io.Writer) {
	sector := parseUint(arg(fields, 0), 0)
	length := parseInt(arg(fields, 1), sectorSize)

	var data [sectorSize]byte
	for {
		s.Block.Read(sector, data[:])
		sector++

		if length > sectorSize {
			w.Write(data[:])
			length -= sectorSize
			continue
		}

		w.Write(data[:length])
		break
	}
}

// write implements the restored "write sector len" command (spec.md's
// distillation dropped it; SPEC_FULL.md §4.8 brings it back): bytes
// come from r, the same reader the command line itself was read from.
// If r is nil (the UDP path has no paired reader for this command),
// it falls back to writeRand's entropy source.
func (s *Shell) write(fields [][]byte, r io.Reader, w io.Writer) {
	if r == nil {
		s.writeRand(fields, w)
		return
	}

	sector := parseUint(arg(fields, 0), 0)
	length := int(parseUint(arg(fields, 1), 0))

	var sectorBuf [sectorSize]byte
	for length > 0 {
		cur := min(sectorSize, length)
		buf := sectorBuf[:cur]

		if _, err := io.ReadFull(r, buf); err != nil {
			io.WriteString(w, "write: short read")
			return
		}

		full := sectorBuf
		for i := cur; i < sectorSize; i++ {
			full[i] = 0
		}
		s.Block.Write(sector, full[:])

		sector++
		length -= cur
	}

	io.WriteString(w, "done")
}

// uartReader reads from a UART one byte at a time, so the "write"
// command takes its input from the UART the command line came from.
type uartReader struct{ u *uart.UART }

func (r uartReader) Read(p []byte) (int, error) {
	for i := range p {
		b, err := r.u.ReadByte()
		if err != nil {
			return i, err
		}

		p[i] = b
	}

	return len(p), nil
}

// Run drives the shell over u: print a prompt, read a line with echo,
// dispatch it, and repeat until the line requests exit. It holds u's
// lock while printing the prompt and reading the line.
func Run(u *uart.UART, s *Shell) {
	buf := make([]byte, 1024)

	for {
		u.Lock()
		io.WriteString(u, "$> ")

		line, err := u.ReadLine(buf, true)
		u.Unlock()
		if err != nil {
			return
		}

		if s.DoLine(line, uartReader{u}, u) {
			return
		}

		u.WriteByte('\n')
	}
}
