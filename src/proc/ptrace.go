package proc

import "defs"

// PTRACE_* request numbers, the subset this kernel implements.
const (
	PTRACE_TRACEME = iota
	PTRACE_CONT
	PTRACE_SYSCALL
	PTRACE_SINGLESTEP
	PTRACE_GETREGS
	PTRACE_SETREGS
	PTRACE_KILL
)

/// PtraceTraceme marks the calling thread as traced by its parent, the
/// PTRACE_TRACEME half of the "child calls PTRACE_TRACEME, execs, stops
/// with SIGTRAP" attach sequence.
func (t *Thread_t) PtraceTraceme() defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Ptrace != PT_NONE {
		return -defs.EPERM
	}
	t.Ptrace = PT_RUNNING
	t.Tracer = t.Proc.Parent0()
	return 0
}

// Parent0 resolves the owning process's parent thread id, the tracer a
// TRACEME call attaches to. Only the first thread of the parent process
// is addressable this way; multi-threaded tracers are out of scope.
func (p *Proc_t) Parent0() defs.Tid_t {
	par, ok := Lookup(p.Parent)
	if !ok || len(par.Threads) == 0 {
		return defs.NoTid
	}
	return par.Threads[0]
}

/// PtraceRequest dispatches a PTRACE_* request from tracer against target.
/// CONT and SYSCALL both resume a stopped tracee, differing only in
/// whether the next syscall boundary re-stops it. SINGLESTEP resumes the
/// tracee in PT_ONESTEP state; it does not set the trap flag in the
/// tracee's saved flags, and no single-step stop is made.
func PtraceRequest(tracer *Thread_t, target *Thread_t, req int, data int) defs.Err_t {
	if target.Tracer != tracer.Tid {
		return -defs.ESRCH
	}
	switch req {
	case PTRACE_CONT:
		return resumeTracee(target, PT_RUNNING, data)
	case PTRACE_SYSCALL:
		return resumeTracee(target, PT_SYSCALL, data)
	case PTRACE_SINGLESTEP:
		return resumeTracee(target, PT_ONESTEP, data)
	case PTRACE_KILL:
		target.Proc.ExitSignaled(SIGKILL)
		return resumeTracee(target, PT_RUNNING, 0)
	case PTRACE_GETREGS, PTRACE_SETREGS:
		// Register transfer itself goes through the trapframe directly
		// (sysc copies Tf to/from the tracer's supplied buffer); this
		// entry point only validates the stopped-state precondition.
		target.mu.Lock()
		stopped := target.Ptrace == PT_STOPPED
		target.mu.Unlock()
		if !stopped {
			return -defs.EBUSY
		}
		return 0
	default:
		return -defs.EINVAL
	}
}

func resumeTracee(target *Thread_t, next Ptrace_t, sig int) defs.Err_t {
	target.mu.Lock()
	if target.Ptrace != PT_STOPPED {
		target.mu.Unlock()
		return -defs.ESRCH
	}
	target.Ptrace = next
	if sig != 0 {
		target.Sigpend |= sigbit(sig)
	}
	target.mu.Unlock()
	target.PtraceWaitq.Broadcast()
	return 0
}

/// StopForTracer transitions t to PT_STOPPED and blocks until a tracer
/// resumes it via PtraceRequest; an untraced thread returns at once. The
/// signal argument is not recorded or reported to the tracer. Its callers
/// are the PTRACE_SYSCALL syscall-entry/exit stops in sysc.Syscall.
func (t *Thread_t) StopForTracer(signal int) {
	t.mu.Lock()
	if t.Ptrace == PT_NONE {
		t.mu.Unlock()
		return
	}
	prev := t.Ptrace
	t.Ptrace = PT_STOPPED
	t.mu.Unlock()

	t.PtraceWaitq.Sleep(func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.Ptrace != PT_STOPPED
	})

	_ = signal
	_ = prev
}
