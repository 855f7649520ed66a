// Package console is the 16550-compatible serial console: the only output
// device available before the rest of the kernel (disk, framebuffer, the
// scheduler itself) is up, and the target of last resort when something
// has gone wrong enough that normal logging cannot be trusted.
package console

import (
	"fmt"
	"runtime"
	"sync"

	"caller"
)

// Port addresses for the four legacy COM ports, and the per-port register
// offsets a 16550 UART exposes. Confirmed against the reference serial
// driver's own REG_* layout: register 0 is THR on write and RBR on read
// (DLAB 0), or the low divisor-latch byte (DLAB 1); register 5 is the
// line-status register whose bit 5 (ETR) gates whether the transmit
// holding register is free to accept another byte.
const (
	com1 = 0x3f8
	com2 = 0x2f8
	com3 = 0x3e8
	com4 = 0x2e8
)

const (
	regTHR = 0 // write, DLAB 0
	regDLL = 0 // write, DLAB 1
	regIER = 1
	regDLH = 1 // write, DLAB 1
	regFCR = 2
	regLCR = 3
	regMCR = 4
	regLSR = 5

	lsrETR = 1 << 5 // transmitter holding register empty
)

var ports = [4]uint16{com1, com2, com3, com4}

// Console_t is a set of initialized serial ports, written to in parallel so
// a panic dump reaches whichever port a serial console happens to be
// attached to.
type Console_t struct {
	mu   sync.Mutex
	live [4]bool
}

var global *Console_t

// Init initializes the four legacy COM ports, matching the original
// port-setup sequence bit for bit (DLAB toggled around the divisor-latch
// write, 115200 baud, 8N1, FIFO enabled, IRQs on). Every port is marked
// live; this kernel does not loop back a test byte to verify the port
// answers, since a serial console that is plugged into nothing should not
// make bring-up fail.
func Init() *Console_t {
	c := &Console_t{}
	for i, p := range ports {
		initPort(p)
		c.live[i] = true
	}
	global = c
	return c
}

func initPort(port uint16) {
	runtime.Outb(port+regLCR, 0x00)
	runtime.Outb(port+regIER, 0x00)
	runtime.Outb(port+regLCR, 0x80)
	runtime.Outb(port+regDLL, 0x01)
	runtime.Outb(port+regDLH, 0x00)
	runtime.Outb(port+regLCR, 0x03)
	runtime.Outb(port+regFCR, 0xe7)
	runtime.Outb(port+regMCR, 0x0b)
}

func putc(port uint16, ch byte) {
	for i := 0; i < 4096; i++ {
		if runtime.Inb(port+regLSR)&lsrETR != 0 {
			break
		}
	}
	runtime.Outb(port+regTHR, ch)
}

// Write implements io.Writer, translating a bare '\n' to "\r\n" on every
// live port the way a real terminal line discipline expects.
func (c *Console_t) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, port := range ports {
		if !c.live[i] {
			continue
		}
		for _, b := range p {
			if b == '\n' {
				putc(port, '\r')
			}
			putc(port, b)
		}
	}
	return len(p), nil
}

// Global returns the console installed by Init, or nil before bring-up has
// reached that point.
func Global() *Console_t { return global }

// Printf writes directly to the global console, bypassing whatever the
// rest of the kernel currently has stdout pointed at. Bring-up uses this
// before anything else is safe to call.
func Printf(format string, args ...interface{}) {
	if global == nil {
		return
	}
	fmt.Fprintf(global, format, args...)
}

// Panic prints msg and a call-stack dump to the console and then parks the
// calling goroutine forever. It does not call runtime's own panic, since a
// kernel panic must not unwind into whatever recover handlers user Go code
// might have installed -- it is a terminal condition, not an exception.
func Panic(msg string) {
	Printf("panic: %s\n", msg)
	caller.Callerdump(2)
	select {}
}
