package proc

import "defs"

// wait4's target-selection modes, matching the pid argument's meaning:
// a specific PID, any child in the caller's own group, any child at all,
// or any child in a specific group.
const (
	waitAny = iota
	waitPid
	waitMyGrp
	waitGrp
)

func classifyWait(pid defs.Pid_t) (mode int, target defs.Pid_t) {
	switch {
	case pid == -1:
		return waitAny, 0
	case pid == 0:
		return waitMyGrp, 0
	case pid < -1:
		return waitGrp, -pid
	default:
		return waitPid, pid
	}
}

/// WaitStatus_t packs a reaped child's termination reason the way wait4(2)
/// encodes it: a normal exit keeps the low byte zero and puts the exit code
/// in bits 8-15; a signal death puts the signal number in the low 7 bits.
type WaitStatus_t int

func exitedStatus(code int) WaitStatus_t  { return WaitStatus_t((code & 0xff) << 8) }
func signaledStatus(sig int) WaitStatus_t { return WaitStatus_t(sig & 0x7f) }

/// Exit tears p down with an already wait4(2)-encoded status. ExitNormal
/// and ExitSignaled are the two encoders callers actually use; Exit is
/// exported for callers that already have a packed status in hand.
///
/// Threads are expected to have already stopped running, open
/// descriptors are closed, the address space is freed (unless
/// CLONE_VM-shared, in which case the last exiting sibling frees it),
/// status is recorded, and the process becomes a zombie its parent must
/// reap via wait4. Children of p are reparented to p's parent (pid 1 in
/// the common case), preserving the "every process has a parent until
/// reaped" invariant.
func (p *Proc_t) Exit(status int) {
	for _, tid := range p.Threads {
		unregisterThread(tid)
	}

	p.mu.Lock()
	for n, f := range p.Fds {
		f.Fops.Close()
		delete(p.Fds, n)
	}
	p.mu.Unlock()

	if p.Vm != nil {
		p.Vm.Uvmfree()
	}

	if p.Pgrp != nil {
		p.Pgrp.mu.Lock()
		delete(p.Pgrp.Members, p.Pid)
		p.Pgrp.mu.Unlock()
	}

	reparentTo, ok := Lookup(p.Parent)
	p.childMu.Lock()
	children := p.Children
	p.Children = nil
	p.childMu.Unlock()
	if ok {
		reparentTo.childMu.Lock()
		reparentTo.Children = append(reparentTo.Children, children...)
		reparentTo.childMu.Unlock()
	}
	for _, cpid := range children {
		if c, ok := Lookup(cpid); ok {
			c.Parent = p.Parent
		}
	}

	p.ExitStatus = status
	p.State = ST_ZOMBIE

	if par, ok := Lookup(p.Parent); ok {
		par.WaitWaitq.Broadcast()
		if par.Vm == p.Vm {
			par.vforkWake()
		}
	}
}

/// ExitNormal tears p down with a normal exit(2) code, the common case
/// (the exit/exit_group syscalls, or falling off main).
func (p *Proc_t) ExitNormal(code int) {
	p.Exit(int(exitedStatus(code)))
}

/// ExitSignaled tears p down as killed by an uncaught signal, the path
/// the trap dispatcher's default-disposition handling and PTRACE_KILL
/// both take.
func (p *Proc_t) ExitSignaled(sig int) {
	p.Exit(int(signaledStatus(sig)))
}

func (p *Proc_t) vforkWake() {
	p.vforkDone = 1
	p.VforkWaitq.Broadcast()
}

/// Wait4 blocks the calling process until a child matching pid's selector
/// becomes a zombie, then reaps it: aggregates its accounting into the
/// caller's ChildAccnt (the reaping-conservation invariant -- usage is
/// never lost, only rolled up) and removes it from the global process
/// table.
func Wait4(caller *Proc_t, pid defs.Pid_t, status *int, nohang bool) (defs.Pid_t, defs.Err_t) {
	mode, target := classifyWait(pid)

	matches := func(c *Proc_t) bool {
		switch mode {
		case waitAny:
			return true
		case waitPid:
			return c.Pid == target
		case waitMyGrp:
			return caller.Pgrp != nil && c.Pgrp == caller.Pgrp
		case waitGrp:
			return c.Pgrp != nil && c.Pgrp.Id == target
		}
		return false
	}

	findZombie := func() *Proc_t {
		caller.childMu.Lock()
		defer caller.childMu.Unlock()
		for _, cpid := range caller.Children {
			c, ok := Lookup(cpid)
			if !ok || !matches(c) {
				continue
			}
			if c.State == ST_ZOMBIE {
				return c
			}
		}
		return nil
	}

	hasAnyMatch := func() bool {
		caller.childMu.Lock()
		defer caller.childMu.Unlock()
		for _, cpid := range caller.Children {
			if c, ok := Lookup(cpid); ok && matches(c) {
				return true
			}
		}
		return false
	}

	var zomb *Proc_t
	if nohang {
		zomb = findZombie()
		if zomb == nil {
			if !hasAnyMatch() {
				return defs.NoPid, -defs.ECHILD
			}
			return 0, 0
		}
	} else {
		if !hasAnyMatch() {
			return defs.NoPid, -defs.ECHILD
		}
		caller.WaitWaitq.Sleep(func() bool { return findZombie() != nil })
		zomb = findZombie()
		if zomb == nil {
			return defs.NoPid, -defs.ECHILD
		}
	}

	if status != nil {
		*status = zomb.ExitStatus
	}
	rpid := zomb.Pid

	caller.ChildAccnt.Add(&zomb.Accnt)
	caller.ChildAccnt.Add(&zomb.ChildAccnt)

	caller.childMu.Lock()
	for i, cpid := range caller.Children {
		if cpid == rpid {
			caller.Children = append(caller.Children[:i], caller.Children[i+1:]...)
			break
		}
	}
	caller.childMu.Unlock()

	Unregister(rpid)
	return rpid, 0
}
