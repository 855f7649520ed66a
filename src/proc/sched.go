package proc

import "runtime"

// Scheduling model: this kernel hosts one goroutine per Thread_t and lets
// the Go runtime's own scheduler stand in for the per-CPU run queue the
// design calls for -- GOMAXPROCS already gives one OS thread per CPU, and
// a goroutine parked on a Waitq_t or blocked in a syscall already yields
// its CPU the way a suspended kernel thread would. The must_resched flag
// a timer tick or cross-CPU IPI would set elsewhere becomes, here, a
// plain call into the runtime scheduler: there is no separate run queue
// to manipulate because the runtime already maintains one per P.

/// Reschedule cooperatively yields cpu's current goroutine back to the Go
/// scheduler, the response to a cross-CPU IPI whose reschedule flag was
/// found set. It never blocks: Gosched always returns once this goroutine
/// is rescheduled, possibly on a different OS thread.
func Reschedule(cpu int) {
	_ = cpu
	runtime.Gosched()
}
