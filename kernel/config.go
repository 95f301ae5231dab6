package kernel

// config.go centralizes the compile-time constants the rest of this
// kernel needs. There is no argv/envp at boot and spec.md's Non-goals
// exclude a filesystem, so there is nothing for a flags/config library
// to parse — these are plain Go constants, in the same spirit as the
// teacher's own compile-time-constant device addresses.

// StdoutPath is the FDT /chosen/stdout-path this kernel requires for
// the UART to come up (spec.md §6).
const StdoutPath = "/pl011@9000000"

// HostIP and ShellPort are this kernel's fixed network identity: the
// address the ARP/ICMP responder answers to, and the UDP port the
// line shell listens on (spec.md §4.8).
const (
	HostIP    = "192.168.14.4"
	ShellPort = 44
)

// QueueDepth mirrors virtio.QueueSize as a named configuration
// constant; the virtio package uses its own QueueSize and nothing in
// this kernel reads QueueDepth.
const QueueDepth = 128

// MaxLineLength bounds one shell command line received over UDP; the
// UART shell (shell.Run) reads lines into its own 1024-byte buffer.
const MaxLineLength = 256
