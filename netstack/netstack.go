// Package netstack implements the fixed ARP/ICMP/UDP application that
// runs on top of a virtio-net device: a statically-addressed host
// (spec.md §4.8) that answers ARP requests and ICMP echoes for its own
// address and serves the line shell over UDP/44, grounded on
// _examples/original_source/src/apps/net.rs.
package netstack

import (
	"io"
	"strconv"
	"strings"

	"github.com/avirt/allora-kernel/internal/endian"
	"github.com/avirt/allora-kernel/kernel"
	"github.com/avirt/allora-kernel/virtio/net"
)

// be16/putBE16 route every big-endian wire field access in this file
// (ethertype, IP length/id/flags/checksum, UDP port/length/checksum)
// through endian.U16[Big], the wrapper spec.md module 1 names for
// on-wire fields, rather than calling encoding/binary directly.
func be16(b []byte) uint16 {
	return endian.U16[endian.Big](b[:2]).Native()
}

func putBE16(b []byte, v uint16) {
	w := endian.NewU16[endian.Big](v)
	copy(b, w[:])
}

const (
	ethTypeARP  = 0x0806
	ethTypeIPv4 = 0x0800

	ipProtoICMP = 1
	ipProtoUDP  = 17

	ethHeaderLen = 14
	ipHeaderLen  = 20
	udpHeaderLen = 8
	arpLen       = 28
)

// Dispatcher is the line-execution method netstack needs; shell.Shell
// satisfies it. Declared as an interface here, rather than importing
// shell directly, since shell's "netshell" command calls back into
// netstack.Run and an import in both directions would cycle.
type Dispatcher interface {
	DoLine(line []byte, r io.Reader, w io.Writer) bool
}

var hostIP = parseIPv4(kernel.HostIP)

func parseIPv4(s string) [4]byte {
	var ip [4]byte
	parts := strings.SplitN(s, ".", 4)
	for i := 0; i < 4 && i < len(parts); i++ {
		v, _ := strconv.Atoi(parts[i])
		ip[i] = byte(v)
	}
	return ip
}

// Run reads frames from dev until the shell requests exit, answering
// ARP and ICMP for hostIP and serving lines over UDP/kernel.ShellPort
// (spec.md §4.8). do is the line dispatcher backing the UDP shell.
func Run(dev *net.Device, do Dispatcher) {
	mac := dev.Config().MAC

	buf := make([]byte, net.FrameSize)
	for {
		n, err := dev.Read(buf)
		if err != nil {
			return
		}

		frame := buf[:n]
		if len(frame) < ethHeaderLen {
			continue
		}

		switch be16(frame[12:14]) {
		case ethTypeARP:
			handleARP(dev, frame, mac)
		case ethTypeIPv4:
			if handleIPv4(dev, frame, mac, do) {
				return
			}
		}
	}
}

func handleARP(dev *net.Device, frame []byte, mac [6]byte) {
	payload := frame[ethHeaderLen:]
	if len(payload) < arpLen {
		return
	}

	hwType := be16(payload[0:2])
	protoType := be16(payload[2:4])
	op := be16(payload[6:8])

	var targetProto [4]byte
	copy(targetProto[:], payload[24:28])

	if hwType != 1 || protoType != ethTypeIPv4 || op != 1 || targetProto != hostIP {
		return
	}

	copy(frame[0:6], frame[6:12])
	copy(frame[6:12], mac[:])

	putBE16(payload[6:8], 2) // reply

	var senderHW [6]byte
	copy(senderHW[:], payload[8:14])
	var senderProto [4]byte
	copy(senderProto[:], payload[14:18])

	copy(payload[18:24], senderHW[:])
	copy(payload[24:28], senderProto[:])
	copy(payload[8:14], mac[:])
	copy(payload[14:18], hostIP[:])

	dev.Write(frame)
}

func handleIPv4(dev *net.Device, frame []byte, mac [6]byte, do Dispatcher) bool {
	ip := frame[ethHeaderLen:]
	if len(ip) < ipHeaderLen {
		return false
	}

	var dst [4]byte
	copy(dst[:], ip[16:20])
	if dst != hostIP {
		return false
	}

	switch ip[9] {
	case ipProtoICMP:
		handleICMP(dev, frame, mac)
	case ipProtoUDP:
		ipPayload := ip[ipHeaderLen:]
		if len(ipPayload) >= udpHeaderLen && ipPayload[2] == 0 && ipPayload[3] == kernel.ShellPort {
			return handleUDP(dev, frame, mac, do)
		}
	}

	return false
}

func handleICMP(dev *net.Device, frame []byte, mac [6]byte) {
	ip := frame[ethHeaderLen:]
	icmp := ip[ipHeaderLen:]

	copy(frame[0:6], frame[6:12])
	copy(frame[6:12], mac[:])

	var srcIP [4]byte
	copy(srcIP[:], ip[12:16])
	copy(ip[16:20], srcIP[:])
	copy(ip[12:16], hostIP[:])

	putBE16(ip[4:6], 0) // id
	putBE16(ip[6:8], 0) // flags/frag
	putBE16(ip[10:12], 0)
	putBE16(ip[10:12], checksum(ip[:ipHeaderLen]))

	totalLen := int(be16(ip[2:4]))
	icmpLen := totalLen - ipHeaderLen
	if icmpLen < 0 || icmpLen > len(icmp) {
		icmpLen = len(icmp)
	}

	icmp[0] = 0 // echo reply
	putBE16(icmp[2:4], 0)
	putBE16(icmp[2:4], checksum(icmp[:icmpLen]))

	dev.Write(frame)
}

// handleUDP implements the UDP/44 shell transport: swap addresses and
// ports, dispatch the payload as one shell command line, and write
// back each output chunk as its own reply packet (spec.md §4.8). A
// trailing single "\n" packet is sent when the shell requests exit.
func handleUDP(dev *net.Device, frame []byte, mac [6]byte, do Dispatcher) bool {
	ip := frame[ethHeaderLen:]
	udp := ip[ipHeaderLen:]

	length := int(be16(udp[4:6]))
	if length < udpHeaderLen || length > len(udp) {
		return false
	}

	var line [kernel.MaxLineLength]byte
	n := copy(line[:], udp[udpHeaderLen:length])

	copy(frame[0:6], frame[6:12])
	copy(frame[6:12], mac[:])

	var srcIP [4]byte
	copy(srcIP[:], ip[12:16])
	copy(ip[16:20], srcIP[:])
	copy(ip[12:16], hostIP[:])

	putBE16(ip[4:6], 0)
	putBE16(ip[6:8], 0)

	srcPort0, srcPort1 := udp[0], udp[1]
	dstPort0, dstPort1 := udp[2], udp[3]
	udp[0], udp[1] = dstPort0, dstPort1
	udp[2], udp[3] = srcPort0, srcPort1

	// Each Write call the shell makes becomes its own reply packet
	// (spec.md §4.8: "for each output chunk the shell emits ... set IP
	// total length ... transmit"), not one packet for the whole reply.
	w := udpReplyWriter{dev: dev, frame: frame}
	exit := do.DoLine(line[:n], nil, w)

	if exit {
		w.Write([]byte{'\n'})
		return true
	}

	return false
}

// udpReplyWriter transmits each Write call as its own UDP/44 reply
// packet over the frame it was constructed from.
type udpReplyWriter struct {
	dev   *net.Device
	frame []byte
}

func (w udpReplyWriter) Write(payload []byte) (int, error) {
	ip := w.frame[ethHeaderLen:]
	udp := ip[ipHeaderLen:]

	total := ipHeaderLen + udpHeaderLen + len(payload)
	copy(udp[udpHeaderLen:], payload)

	putBE16(ip[2:4], uint16(total))
	putBE16(ip[10:12], 0)
	putBE16(ip[10:12], checksum(ip[:ipHeaderLen]))

	putBE16(udp[4:6], uint16(udpHeaderLen+len(payload)))
	putBE16(udp[6:8], 0) // UDP checksum left unset, optional over IPv4

	if err := w.dev.Write(w.frame[:ethHeaderLen+total]); err != nil {
		return 0, err
	}

	return len(payload), nil
}
