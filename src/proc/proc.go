// Package proc implements the L4 process and thread model: Proc_t/Thread_t,
// clone/exec/wait4, process groups and sessions, credentials, signal
// delivery and ptrace. It sits directly on vm (address spaces), fd (file
// tables), accnt (CPU accounting), tinfo (the per-goroutine current-thread
// note) and limits (system-wide resource caps), the same supporting
// packages the rest of this tree already builds on.
package proc

import "sync"
import "sync/atomic"

import "accnt"
import "arch"
import "defs"
import "fd"
import "limits"
import "tinfo"
import "vm"

/// State_t is a thread's scheduling state.
type State_t int

const (
	ST_PAUSED State_t = iota
	ST_RUNNABLE
	ST_RUNNING
	ST_SLEEPING
	ST_ZOMBIE
)

/// Ptrace_t is a thread's ptrace state machine, driven by PTRACE_*
/// requests from the tracer and by the trap dispatcher at syscall-enter/
/// exit and single-step points.
type Ptrace_t int

const (
	PT_NONE Ptrace_t = iota
	PT_STOPPED
	PT_SYSCALL
	PT_RUNNING
	PT_ONESTEP
)

/// Waitq_t is a simple condition-variable sleep queue. Threads attach,
/// sleep, and are woken by a signaler; the embedded mutex is the leaf lock
/// guarding both the queue and the condition it watches. sleepers tracks
/// how many threads are currently parked, so a waker can tell a real wakeup
/// from a no-op Signal() against an empty queue.
type Waitq_t struct {
	sync.Mutex
	cond     *sync.Cond
	sleepers int
}

func (w *Waitq_t) lazyCond() *sync.Cond {
	if w.cond == nil {
		w.cond = sync.NewCond(&w.Mutex)
	}
	return w.cond
}

/// Sleep blocks on the queue until Wake/Broadcast, re-checking pred under
/// the queue's lock each time it wakes (the standard condvar idiom, which
/// closes the race window between predicate check and sleep that poll/
/// select must also avoid).
func (w *Waitq_t) Sleep(pred func() bool) {
	w.Lock()
	c := w.lazyCond()
	w.sleepers++
	for !pred() {
		c.Wait()
	}
	w.sleepers--
	w.Unlock()
}

/// Sleepers returns the number of threads currently parked on this queue.
func (w *Waitq_t) Sleepers() int {
	w.Lock()
	defer w.Unlock()
	return w.sleepers
}

/// Wake wakes one sleeper.
func (w *Waitq_t) Wake() {
	w.Lock()
	if w.cond != nil {
		w.cond.Signal()
	}
	w.Unlock()
}

/// Broadcast wakes every sleeper.
func (w *Waitq_t) Broadcast() {
	w.Lock()
	if w.cond != nil {
		w.cond.Broadcast()
	}
	w.Unlock()
}

/// Sigaltstack_t is the thread's alternate signal stack, with the nesting
/// counter that tracks re-entry while a handler runs on it.
type Sigaltstack_t struct {
	Sp      uintptr
	Size    int
	Disable bool
	Onstack int // nesting depth; >0 means currently executing on this stack
}

/// Thread_t is the schedulable unit.
type Thread_t struct {
	Tid  defs.Tid_t
	Proc *Proc_t

	Tf  arch.Tf_t
	Fpu [512]byte // sized generously; arch.Arch_i.FPUBufSize() bounds real use

	Kstack []byte
	Prio   int
	Tlsaddr uintptr

	mu        sync.Mutex
	Sigmask   uint64
	Sigpend   uint64
	Altstack  Sigaltstack_t

	Ptrace    Ptrace_t
	Tracer    defs.Tid_t
	PtraceWaitq Waitq_t

	State   State_t
	FutAddr uintptr

	note *tinfo.Tnote_t
}

/// Sigmask_load returns a consistent snapshot of the thread's signal mask.
func (t *Thread_t) Sigmask_load() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Sigmask
}

// maskable clears SIGKILL/SIGSTOP out of any mask a caller tries to
// install, the signal-mask-sanity invariant: those two bits may never be
// set in a thread's sigmask at any observable point.
func maskable(m uint64) uint64 {
	return m &^ (sigbit(SIGKILL) | sigbit(SIGSTOP))
}

func sigbit(n int) uint64 { return 1 << uint(n-1) }

/// Sigmask_store installs a new mask, silently dropping SIGKILL/SIGSTOP
/// bits per the sanity invariant.
func (t *Thread_t) Sigmask_store(m uint64) {
	t.mu.Lock()
	t.Sigmask = maskable(m)
	t.mu.Unlock()
}

/// Pending_unmasked reports whether any unmasked signal is pending, the
/// check the trap dispatcher runs on every kernel-to-user return.
func (t *Thread_t) Pending_unmasked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Sigpend&^t.Sigmask != 0
}

/// Ucred_t holds a process's real/effective/saved identity, per POSIX
/// setuid/setgid semantics.
type Ucred_t struct {
	Uid, Euid, Suid int
	Gid, Egid, Sgid int
	Groups          []int // up to 65535 entries, replaced atomically
}

/// Sigaction_t is one of a process's 64 signal-action slots. Restorer is
/// the user-space trampoline sigreturn expects the handler to fall back
/// into on return (SA_RESTORER); a real handler cannot be installed
/// without one, since there is no other way back into the kernel once
/// the handler's "ret" runs.
type Sigaction_t struct {
	Handler  uintptr // 0 = SIG_DFL, 1 = SIG_IGN, else a user PC
	Mask     uint64
	Flags    int
	Restorer uintptr
}

const (
	SA_ONSTACK = 1 << iota
	SA_RESTART
	SA_SIGINFO
	SA_NOCLDWAIT
	SA_RESTORER
)

// Well-known signal numbers this package treats specially.
const (
	SIGHUP  = 1
	SIGINT  = 2
	SIGQUIT = 3
	SIGILL  = 4
	SIGTRAP = 5
	SIGABRT = 6
	SIGBUS  = 7
	SIGFPE  = 8
	SIGKILL = 9
	SIGUSR1 = 10
	SIGSEGV = 11
	SIGUSR2 = 12
	SIGPIPE = 13
	SIGALRM = 14
	SIGTERM = 15
	SIGCHLD = 17
	SIGCONT = 18
	SIGSTOP = 19
	SIGTSTP = 20
)

/// Proc_t is the resource container: PID, parent pointer (a weak id
/// resolved through the global process table), children, threads, address
/// space, FD table, credentials, signal-action table, working directory,
/// and accumulated usage.
type Proc_t struct {
	Pid    defs.Pid_t
	Parent defs.Pid_t // NoPid for the very first process

	mu       sync.RWMutex // guards Fds and Vm (execve swaps Vm wholesale)
	Fds      map[int]*fd.Fd_t
	nextFd   int

	childMu sync.Mutex
	Children []defs.Pid_t
	Threads  []defs.Tid_t

	Vm   *vm.Vm_t
	Cwd  *fd.Cwd_t
	Root *fd.Cwd_t
	Umask int

	credMu sync.Mutex
	Cred   Ucred_t

	sigMu   sync.Mutex
	Sigacts [64]Sigaction_t

	Pgrp *Pgrp_t

	Accnt accnt.Accnt_t
	// ChildAccnt accumulates the usage of reaped children, per wait4's
	// "aggregates its and its children's procstats" contract.
	ChildAccnt accnt.Accnt_t

	State State_t

	WaitWaitq  Waitq_t
	VforkWaitq Waitq_t
	vforkDone  int32

	ExitStatus int
}

/// NewProc allocates an empty process container; exec populates it.
func NewProc(pid, parent defs.Pid_t) *Proc_t {
	return &Proc_t{
		Pid: pid, Parent: parent,
		Fds: make(map[int]*fd.Fd_t), nextFd: 0,
		Umask: 0022,
	}
}

/// AddFd installs f at the lowest available descriptor number.
func (p *Proc_t) AddFd(f *fd.Fd_t) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for {
		if _, taken := p.Fds[n]; !taken {
			break
		}
		n++
	}
	p.Fds[n] = f
	p.nextFd = n + 1
	return n
}

/// GetFd looks up a descriptor, returning EBADF if unset.
func (p *Proc_t) GetFd(n int) (*fd.Fd_t, defs.Err_t) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.Fds[n]
	if !ok {
		return nil, -defs.EBADF
	}
	return f, 0
}

/// CloseFd removes and closes a descriptor.
func (p *Proc_t) CloseFd(n int) defs.Err_t {
	p.mu.Lock()
	f, ok := p.Fds[n]
	if !ok {
		p.mu.Unlock()
		return -defs.EBADF
	}
	delete(p.Fds, n)
	p.mu.Unlock()
	return f.Fops.Close()
}

/// ExecClose closes every CLOEXEC-flagged descriptor, the "exec preserves
/// only slots whose CLOEXEC flag is clear" invariant.
func (p *Proc_t) ExecClose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n, f := range p.Fds {
		if f.Cloexec() {
			fd.Close_panic(f)
			delete(p.Fds, n)
		}
	}
}

// Global process table, guarded by its own lock per the "global spinlocks
// guard: process list, session list" resource model.
var procMu sync.Mutex
var procs = map[defs.Pid_t]*Proc_t{}
var nextPid int64 = 1

/// AllocPid hands out a fresh PID.
func AllocPid() defs.Pid_t {
	return defs.Pid_t(atomic.AddInt64(&nextPid, 1))
}

/// Register inserts a newly constructed process into the global table.
func Register(p *Proc_t) {
	procMu.Lock()
	procs[p.Pid] = p
	procMu.Unlock()
}

/// Lookup resolves a PID to its process, or false if reaped/never existed
/// -- the mechanism by which a weak parent pointer is resolved.
func Lookup(pid defs.Pid_t) (*Proc_t, bool) {
	procMu.Lock()
	defer procMu.Unlock()
	p, ok := procs[pid]
	return p, ok
}

/// Unregister removes a reaped zombie's PID from the table, making it
/// "no longer visible" and eligible for reuse per the reaping-conservation
/// invariant.
func Unregister(pid defs.Pid_t) {
	procMu.Lock()
	delete(procs, pid)
	procMu.Unlock()
}

// Global thread table, guarded by its own lock, the same weak-id
// resolution pattern as the process table above -- kill(2)/tkill(2)/
// ptrace(2) all address a thread by its numeric TID rather than holding
// a pointer, so something must resolve TID back to a *Thread_t.
var threadMu sync.Mutex
var threads = map[defs.Tid_t]*Thread_t{}

func registerThread(t *Thread_t) {
	threadMu.Lock()
	threads[t.Tid] = t
	threadMu.Unlock()
}

func unregisterThread(tid defs.Tid_t) {
	threadMu.Lock()
	delete(threads, tid)
	threadMu.Unlock()
}

/// LookupThread resolves tid to its Thread_t, or false if it has exited
/// or never existed. p is accepted for callers that only ever mean to
/// address a thread belonging to a specific process, but resolution
/// itself is global: a TID is unique kernel-wide.
func LookupThread(p *Proc_t, tid defs.Tid_t) (*Thread_t, bool) {
	threadMu.Lock()
	defer threadMu.Unlock()
	t, ok := threads[tid]
	if !ok || (p != nil && t.Proc != p) {
		return nil, false
	}
	return t, true
}

/// Pgrp_t groups processes for signal delivery and job control.
type Pgrp_t struct {
	Id   defs.Pid_t
	Sess *Session_t

	mu      sync.Mutex
	Members map[defs.Pid_t]*Proc_t
}

/// Session_t nests process groups under a controlling session.
type Session_t struct {
	Id defs.Pid_t

	mu     sync.Mutex
	Groups map[defs.Pid_t]*Pgrp_t
}

var sessMu sync.Mutex
var sessions = map[defs.Pid_t]*Session_t{}
var pgrps = map[defs.Pid_t]*Pgrp_t{}

/// Setsid creates a new session and group, both named by p's PID, and
/// moves p into it. It fails with EPERM if a group already has id==p.Pid
/// (a process cannot become a session leader while already a group
/// leader of a different group sharing its own PID as that group's id).
func Setsid(p *Proc_t) defs.Err_t {
	sessMu.Lock()
	defer sessMu.Unlock()
	if _, exists := pgrps[p.Pid]; exists {
		return -defs.EPERM
	}
	sess := &Session_t{Id: p.Pid, Groups: make(map[defs.Pid_t]*Pgrp_t)}
	grp := &Pgrp_t{Id: p.Pid, Sess: sess, Members: make(map[defs.Pid_t]*Proc_t)}
	sess.Groups[grp.Id] = grp
	sessions[sess.Id] = sess
	pgrps[grp.Id] = grp

	if p.Pgrp != nil {
		p.Pgrp.mu.Lock()
		delete(p.Pgrp.Members, p.Pid)
		p.Pgrp.mu.Unlock()
	}
	grp.Members[p.Pid] = p
	p.Pgrp = grp
	return 0
}

/// Setpgid moves process pid into group pgid, creating the group (in the
/// caller's own session) if it does not yet exist.
func Setpgid(p *Proc_t, pgid defs.Pid_t) defs.Err_t {
	if pgid == 0 {
		pgid = p.Pid
	}
	sessMu.Lock()
	defer sessMu.Unlock()

	grp, ok := pgrps[pgid]
	if !ok {
		if pgid != p.Pid || p.Pgrp == nil {
			return -defs.EPERM
		}
		grp = &Pgrp_t{Id: pgid, Sess: p.Pgrp.Sess, Members: make(map[defs.Pid_t]*Proc_t)}
		pgrps[pgid] = grp
		grp.Sess.mu.Lock()
		grp.Sess.Groups[pgid] = grp
		grp.Sess.mu.Unlock()
	} else if p.Pgrp != nil && grp.Sess != p.Pgrp.Sess {
		return -defs.EPERM
	}

	if p.Pgrp != nil {
		p.Pgrp.mu.Lock()
		delete(p.Pgrp.Members, p.Pid)
		p.Pgrp.mu.Unlock()
	}
	grp.mu.Lock()
	grp.Members[p.Pid] = p
	grp.mu.Unlock()
	p.Pgrp = grp
	return 0
}

/// CurrentThread recovers the calling goroutine's Thread_t from the
/// tinfo note it registered at creation.
func CurrentThread() *Thread_t {
	n := tinfo.Current()
	th, ok := n.State.(*Thread_t)
	if !ok {
		panic("tnote not bound to a proc.Thread_t")
	}
	return th
}

// takeProcSlot enforces the Sysprocs limit: every new process consumes one
// process-table slot, freed again when the process is reaped.
func takeProcSlot() defs.Err_t {
	procMu.Lock()
	ok := len(procs) < limits.Syslimit.Sysprocs
	procMu.Unlock()
	if !ok {
		return -defs.ENOMEM
	}
	return 0
}
