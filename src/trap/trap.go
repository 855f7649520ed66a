// Package trap is the L3 trap dispatcher: the decision tree every
// architecture entry stub funnels into once it has pushed a trapframe.
// It classifies the vector in tf, then hands off to vm (page faults),
// proc (synchronous exceptions become signals, pending signals are
// checked on every return to user mode), sysc (the syscall vector), or
// irq (everything in the device range), mirroring the classification
// order described for interrupt/exception/syscall handling.
package trap

import "fmt"

import "arch"
import "console"
import "irq"
import "proc"
import "sysc"
import "vm"

// PageFaultVector is the architecture-reserved exception vector that
// carries a faulting address in TF_FAULTADDR and an access-type error
// code in TF_ERRORCODE. x86 assigns this to vector 14; other
// architectures reserve their own number but this package only ever
// sees it through arch's uniform trapframe encoding.
const PageFaultVector = 14

// fatalSignal maps the remaining reserved exception vectors to the
// signal a user-mode fault of that kind raises. Vectors not present
// here (NMI, machine-check) are kernel-fatal and handled
// by panicking rather than signaling a process that cannot itself be
// at fault.
var fatalSignal = map[int]int{
	0:  proc.SIGFPE,  // divide error
	4:  proc.SIGSEGV, // overflow (INTO), taken as an addressing fault
	5:  proc.SIGSEGV, // bound range exceeded
	6:  proc.SIGILL,  // invalid opcode
	7:  proc.SIGFPE,  // device not available (FPU context not ready)
	8:  proc.SIGSEGV, // double fault: treated as fatal to the process, not the kernel, for a user-mode trapframe
	10: proc.SIGSEGV, // invalid TSS
	11: proc.SIGBUS,  // segment not present
	12: proc.SIGBUS,  // stack-segment fault
	13: proc.SIGSEGV, // general protection fault
	16: proc.SIGFPE,  // x87 floating point exception
	17: proc.SIGBUS,  // alignment check
	19: proc.SIGFPE,  // SIMD floating point exception
}

/// Dispatch is called by the architecture entry stub with the trapframe
/// it just built and the CPU it trapped on. It never returns a value:
/// the entry stub resumes whatever thread ended up current, which may
/// differ from the one that trapped if a signal or reschedule ran.
func Dispatch(tf *arch.Tf_t, cpu int) {
	a := arch.Current()
	vector := int(tf[arch.TF_VECTOR])

	switch {
	case vector == PageFaultVector:
		handlePageFault(tf)
	case vector <= irq.VecExceptionHi:
		handleException(tf, vector)
	case vector == irq.VecSyscall:
		sysc.Syscall(tf)
	case vector == irq.VecIPI:
		a.DisableInterrupts()
		if irq.Resched_pending(cpu) {
			proc.Reschedule(cpu)
		}
		a.EnableInterrupts()
	default:
		irq.Dispatch(cpu, vector)
	}

	checkPendingWork(tf)
}

func handlePageFault(tf *arch.Tf_t) {
	t := proc.CurrentThread()
	fa := uintptr(tf[arch.TF_FAULTADDR])
	ec := uintptr(tf[arch.TF_ERRORCODE])
	err := t.Proc.Vm.Pgfault(t.Tid, fa, ec)
	if err == 0 {
		return
	}
	if !arch.Current().FromUserMode(tf) {
		console.Panic(fmt.Sprintf("unresolved page fault at %#x in kernel mode", fa))
		return
	}
	t.RaiseTo(proc.SIGSEGV)
}

func handleException(tf *arch.Tf_t, vector int) {
	sig, ok := fatalSignal[vector]
	if !ok {
		msg := fmt.Sprintf("unrecoverable exception %d trapped from user mode", vector)
		if d, ok := arch.Current().(arch.Disassembler_i); ok {
			msg += ": " + d.DisassembleAt(tf)
		}
		console.Panic(msg)
		return
	}
	t := proc.CurrentThread()
	t.RaiseTo(sig)
}

// checkPendingWork runs on every return-to-user path and delivers the
// lowest-numbered pending, unmasked signal: a user handler gets a frame,
// an ignored signal is dropped, and a default action either terminates
// the process or drops the signal. Stop and continue signals are dropped
// without stopping the process. Tracer stops are not made here;
// PTRACE_SYSCALL stops happen in sysc.Syscall.
func checkPendingWork(tf *arch.Tf_t) {
	t := proc.CurrentThread()
	if sig := t.NextPending(); sig != 0 {
		deliver(t, tf, sig)
	}
}

func deliver(t *proc.Thread_t, tf *arch.Tf_t, sig int) {
	if sig == proc.SIGKILL {
		t.Proc.ExitSignaled(sig)
		return
	}
	act, custom := t.Proc.Sigact(sig)
	if custom {
		deliverToHandler(t, tf, sig, act)
		return
	}
	if act.Handler == 1 {
		t.ClearPending(sig)
		return
	}
	if terminate, _ := proc.DefaultDisposition(sig); terminate {
		t.Proc.ExitSignaled(sig)
		return
	}
	t.ClearPending(sig)
}

// deliverToHandler arranges a signal-frame copyout on the thread's
// normal stack, or its sigaltstack if SA_ONSTACK is set and one is
// installed, then redirects tf to the handler entry point. The frame
// copyout itself is bounded (B_THREAD_T_COPYOUT_SIGFRAME) since it is a
// user-memory write performed while no space lock is held.
func deliverToHandler(t *proc.Thread_t, tf *arch.Tf_t, sig int, act proc.Sigaction_t) {
	a := arch.Current()
	sp := a.StackPointer(tf)
	onAltstack := act.Flags&proc.SA_ONSTACK != 0 && t.AltstackConfigured()
	if onAltstack {
		sp = t.AltstackTop()
		t.EnterAltstack()
	}

	oldmask := t.EnterHandlerMask(act, sig)
	frame := vm.BuildSigframe(*tf, oldmask)
	newsp, err := t.Proc.Vm.CopyoutSigframe(frame, act.Restorer, sp)
	if err != 0 {
		if onAltstack {
			t.LeaveAltstack()
		}
		t.Sigprocmask(proc.SIG_SETMASK, oldmask)
		t.RaiseTo(proc.SIGSEGV)
		return
	}
	t.ClearPending(sig)
	a.SetStackPointer(tf, newsp)
	a.SetInstructionPointer(tf, act.Handler)
	a.SetArgument(tf, 0, sig)
}
