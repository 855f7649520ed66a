// Package tinfo tracks the per-thread note the scheduler consults when it
// needs to kill, join, or otherwise interrupt a specific kernel thread,
// independent of whatever higher-level Proc_t/Thread_t bookkeeping the proc
// package layers on top. The "current" note is stashed in a per-goroutine
// slot the runtime exposes via Gptr/Setgptr so any code running on behalf of
// a thread can find its own note without threading a parameter through
// every call.
package tinfo

import "runtime"
import "sync"
import "unsafe"

import "defs"

/// Tnote_t stores per-thread state used by the runtime to kill or join a
/// thread from the outside.
type Tnote_t struct {
	// State is opaque to this package; the proc package stores a back
	// pointer to its Thread_t here so trap handlers can recover it from
	// Current().
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool
	// Mutex protects Killed, Killnaps.Cond and Killnaps.Kerr, and is a
	// leaf lock: nothing is acquired while holding it.
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// Doomed reports whether the thread is marked as doomed (about to be torn
/// down regardless of what it is currently doing).
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// Threadinfo_t tracks all thread notes, keyed by TID, so a ptrace tracer or
/// signal sender can find a thread's note without the thread itself being
/// reachable through any other structure.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

/// Current returns the current thread's note. It panics if called from a
/// goroutine that never registered one via SetCurrent -- every kernel
/// thread must call SetCurrent before running any code that might touch
/// the rest of the kernel.
func Current() *Tnote_t {
	_p := runtime.Gptr()
	if _p == nil {
		panic("nuts")
	}
	return (*Tnote_t)(_p)
}

/// SetCurrent installs p as the current thread's note.
func SetCurrent(p *Tnote_t) {
	if p == nil {
		panic("nuts")
	}
	if runtime.Gptr() != nil {
		panic("nuts")
	}
	runtime.Setgptr(unsafe.Pointer(p))
}

/// ClearCurrent removes the current thread note, called just before a
/// kernel thread's goroutine exits.
func ClearCurrent() {
	if runtime.Gptr() == nil {
		panic("nuts")
	}
	runtime.Setgptr(nil)
}
