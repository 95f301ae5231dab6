//go:build !arm64

package kernel

// panicSink collects bytes Panic would otherwise write to the real
// PL011 UART; off the arm64 kernel build there is no such hardware to
// touch, so tests of the panic path assert against this instead (see
// panic_test.go).
var panicSink []byte

func pl011WriteByte(b byte) {
	panicSink = append(panicSink, b)
}
