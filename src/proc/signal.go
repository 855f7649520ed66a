package proc

import "defs"

// Signal delivery: sigaction, sigprocmask, sigpending, sigsuspend and
// sigaltstack, plus the queued-signal bookkeeping the trap dispatcher
// consults on every kernel-to-user return.

/// SIG_BLOCK/SIG_UNBLOCK/SIG_SETMASK select how Sigprocmask combines the
/// caller's mask with the requested one.
const (
	SIG_BLOCK = iota
	SIG_UNBLOCK
	SIG_SETMASK
)

/// Sigaction installs a new handler for signum on p, returning the
/// previously installed one. SIGKILL/SIGSTOP cannot be caught, blocked or
/// ignored -- rejecting an attempt to install a handler for them is part
/// of the signal-mask-sanity invariant.
func (p *Proc_t) Sigaction(signum int, act *Sigaction_t) (Sigaction_t, defs.Err_t) {
	if signum <= 0 || signum > 64 {
		return Sigaction_t{}, -defs.EINVAL
	}
	if signum == SIGKILL || signum == SIGSTOP {
		return Sigaction_t{}, -defs.EINVAL
	}
	if act != nil && act.Handler > 1 && (act.Flags&SA_RESTORER == 0 || act.Restorer == 0) {
		return Sigaction_t{}, -defs.EINVAL
	}
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	old := p.Sigacts[signum-1]
	if act != nil {
		na := *act
		na.Mask = maskable(na.Mask)
		p.Sigacts[signum-1] = na
	}
	return old, 0
}

/// Sigprocmask changes t's signal mask per how, returning the mask that was
/// in effect before the change.
func (t *Thread_t) Sigprocmask(how int, set uint64) (uint64, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.Sigmask
	switch how {
	case SIG_BLOCK:
		t.Sigmask = maskable(old | set)
	case SIG_UNBLOCK:
		t.Sigmask = maskable(old &^ set)
	case SIG_SETMASK:
		t.Sigmask = maskable(set)
	default:
		return 0, -defs.EINVAL
	}
	return old, 0
}

/// Sigpending returns the set of signals pending for t that are currently
/// blocked (the only ones a caller polling sigpending ever needs to see;
/// an unblocked pending signal is delivered before userspace runs again).
func (t *Thread_t) Sigpending() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Sigpend & t.Sigmask
}

/// RaiseTo marks signum pending on t. If t is blocked in an interruptible
/// sleep and the signal is unmasked, the caller is responsible for waking
/// it (via whatever Waitq_t it is parked on); RaiseTo only updates the bit.
func (t *Thread_t) RaiseTo(signum int) {
	t.mu.Lock()
	t.Sigpend |= sigbit(signum)
	t.mu.Unlock()
}

/// ClearPending clears signum from t's pending set, called once the signal
/// has been delivered (a frame built, or the default action taken).
func (t *Thread_t) ClearPending(signum int) {
	t.mu.Lock()
	t.Sigpend &^= sigbit(signum)
	t.mu.Unlock()
}

/// NextPending picks the lowest-numbered unmasked pending signal, or 0 if
/// none. Lowest-numbered-first is an arbitrary but fixed tiebreak so
/// delivery order is deterministic for a given pending set.
func (t *Thread_t) NextPending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	deliverable := t.Sigpend &^ t.Sigmask
	if deliverable == 0 {
		return 0
	}
	for i := 0; i < 64; i++ {
		if deliverable&(1<<uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

/// Sigaltstack installs a new alternate signal stack for t, returning the
/// previous one. Installing a new stack while one is currently active
/// (Onstack>0) is rejected, matching sigaltstack(2)'s EPERM case.
func (t *Thread_t) Sigaltstack(newst *Sigaltstack_t) (Sigaltstack_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.Altstack
	if newst == nil {
		return old, 0
	}
	if old.Onstack > 0 {
		return Sigaltstack_t{}, -defs.EPERM
	}
	t.Altstack = *newst
	return old, 0
}

/// EnterAltstack bumps the nesting counter when a handler begins running
/// on the alternate stack (SA_ONSTACK); LeaveAltstack decrements it on
/// sigreturn. Reentrant delivery while already on the altstack is legal
/// (a second signal caught while the first handler runs) and is exactly
/// what the counter, rather than a boolean, is for.
func (t *Thread_t) EnterAltstack() {
	t.mu.Lock()
	t.Altstack.Onstack++
	t.mu.Unlock()
}

func (t *Thread_t) LeaveAltstack() {
	t.mu.Lock()
	if t.Altstack.Onstack > 0 {
		t.Altstack.Onstack--
	}
	t.mu.Unlock()
}

/// Sigsuspend atomically replaces t's mask with mask, then blocks the
/// calling goroutine until a signal deliverable under the new mask
/// arrives, restoring the original mask before returning -- the classic
/// pselect/ppoll race-free wait-for-signal primitive.
func (t *Thread_t) Sigsuspend(mask uint64, wake *Waitq_t) defs.Err_t {
	t.mu.Lock()
	old := t.Sigmask
	t.Sigmask = maskable(mask)
	t.mu.Unlock()

	wake.Sleep(func() bool { return t.Pending_unmasked() })

	t.mu.Lock()
	t.Sigmask = old
	t.mu.Unlock()
	return -defs.EINTR
}

/// EnterHandlerMask blocks act.Mask plus sig itself (unless act carries
/// SA_NODEFER -- not modeled here, so sig is always blocked) for the
/// duration of a handler invocation, returning the mask that was in
/// effect immediately before -- the value deliverToHandler stashes in the
/// sigframe for sigreturn to restore.
func (t *Thread_t) EnterHandlerMask(act Sigaction_t, sig int) uint64 {
	old, _ := t.Sigprocmask(SIG_BLOCK, act.Mask|sigbit(sig))
	return old
}

/// Sigact returns the process's installed action for signum and whether
/// it is a real user handler (neither SIG_DFL nor SIG_IGN), the check
/// the trap dispatcher makes to decide between default-action handling
/// and a frame copyout.
func (p *Proc_t) Sigact(signum int) (Sigaction_t, bool) {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	act := p.Sigacts[signum-1]
	return act, act.Handler > 1
}

/// Onstack reports whether t is currently executing a handler on its
/// alternate signal stack.
func (t *Thread_t) Onstack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Altstack.Onstack > 0
}

/// AltstackConfigured reports whether t has installed an alternate signal
/// stack that is currently eligible to receive a delivery (sigaltstack
/// set a size and it has not been disabled). Unlike Onstack, this does
/// not depend on a handler already running on it -- it is what
/// SA_ONSTACK delivery must check to decide whether to switch stacks in
/// the first place.
func (t *Thread_t) AltstackConfigured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Altstack.Size > 0 && !t.Altstack.Disable
}

/// AltstackTop returns the initial stack pointer for a handler entered
/// on t's alternate stack (the top of the region, since the stack grows
/// down).
func (t *Thread_t) AltstackTop() uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Altstack.Sp + uintptr(t.Altstack.Size)
}

/// AltstackContains reports whether sp falls inside t's installed
/// alternate stack region -- the check sigreturn makes to decide whether
/// the frame it is unwinding ran on the altstack, since the thread may
/// have more than one signal nested and sigreturn must only pop the
/// nesting counter for the ones that actually used it.
func (t *Thread_t) AltstackContains(sp uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Altstack.Size == 0 {
		return false
	}
	return sp >= t.Altstack.Sp && sp < t.Altstack.Sp+uintptr(t.Altstack.Size)
}

// DefaultDisposition reports whether signum's default action (when no
// handler is installed and it isn't SIG_IGN) terminates the process, per
// the POSIX default-action table this kernel implements.
func DefaultDisposition(signum int) (terminate bool, core bool) {
	switch signum {
	case SIGCHLD, SIGCONT:
		return false, false
	case SIGQUIT, SIGILL, SIGABRT, SIGFPE, SIGSEGV, SIGBUS, SIGTRAP:
		return true, true
	case SIGSTOP, SIGTSTP:
		return false, false
	default:
		return true, false
	}
}
