// Package limits holds the system-wide resource limits the kernel enforces
// so that a single process (or a burst of processes) cannot exhaust kernel
// memory: process table slots, futex entries, open files, and so on.
package limits

import "sync/atomic"
import "unsafe"

/// Lhits counts how many times a limit has refused a request, for
/// diagnostics.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically given and taken.
type Sysatomic_t int64

/// Syslimit_t tracks system wide resource limits. Each field is protected by
/// whatever lock guards the resource it counts, except the Sysatomic_t
/// fields, which are self-synchronizing.
type Syslimit_t struct {
	// protected by the global process-list lock
	Sysprocs int
	// number of outstanding futex wait-queue entries, protected by the
	// global futex table lock
	Futexes int
	// per TCP socket tx/rx segments to remember (network stack is out of
	// scope for the CORE, but the accounting line stays uniform with the
	// rest of the table)
	Tcpsegs int
	// sockets, pipes and TCP connections in TIMEWAIT
	Socks Sysatomic_t
	// open pipes
	Pipes Sysatomic_t
	// additional memory-backed per-page objects
	Mfspgs Sysatomic_t
	// bdev blocks reserved for disk caches
	Blocks int
}

/// Syslimit describes the configured system wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 1e4,
		Futexes:  1024,
		Tcpsegs:  16,
		Socks:    1e5,
		Pipes:    1e4,
		Blocks:   100000,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	Lhits++
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
