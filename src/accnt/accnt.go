// Package accnt accumulates per-process CPU accounting: user and system
// nanoseconds, reported to user space as an rusage structure and rolled up
// into a parent's cumulative counters when a zombie is reaped.
package accnt

import "sync"
import "sync/atomic"
import "time"

import "util"

// Accnt_t accumulates per-process accounting information. Both Userns and
// Sysns store runtime in nanoseconds. The embedded mutex allows callers to
// take a consistent snapshot of the fields when exporting usage statistics.
type Accnt_t struct {
	/// Userns is nanoseconds of user time consumed.
	Userns int64
	/// Sysns is nanoseconds of system time consumed.
	Sysns int64
	/// Mutex protects concurrent access when reporting usage data.
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

/// Now returns the current time in nanoseconds.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

/// Io_time removes time spent waiting for I/O from system time.
func (a *Accnt_t) Io_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

/// Sleep_time removes time spent sleeping from system time.
func (a *Accnt_t) Sleep_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

/// Finish finalizes accounting by adding time since inttime to system time.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

/// Add merges another accounting record into this one; used when reaping a
/// zombie child to fold its usage into the parent's cumulative counters.
func (a *Accnt_t) Add(n *Accnt_t) {
	n.Lock()
	du, ds := n.Userns, n.Sysns
	n.Unlock()
	a.Lock()
	a.Userns += du
	a.Sysns += ds
	a.Unlock()
}

/// Fetch returns a snapshot of the accounting information encoded as rusage.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	ru := a.to_rusage()
	a.Unlock()
	return ru
}

// to_rusage converts the accounting data into a byte slice formatted as an
// rusage structure: {user timeval, sys timeval}, each {secs, usecs} as two
// 8-byte words, matching the layout getrusage copies out.
func (a *Accnt_t) to_rusage() []uint8 {
	words := 4
	ret := make([]uint8, words*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
