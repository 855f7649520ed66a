package sysc

import "acpi"
import "arch"
import "defs"
import "fd"
import "mem"
import "proc"
import "vm"

func sysExit(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	p.ExitNormal(a[0])
	return 0, 0
}

func sysExitGroup(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	p.ExitNormal(a[0])
	return 0, 0
}

// sysClone's argument window follows clone(2): flags, child stack
// pointer. A new process reports its PID to the caller; a new thread
// in the caller's own thread group reports its TID instead, since both
// share the same return-value slot in this ABI.
func sysClone(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	np, nt, err := proc.Clone(p, t, a[0], uintptr(a[1]))
	if err != 0 {
		return 0, err
	}
	if np == p {
		return int(nt.Tid), 0
	}
	return int(np.Pid), 0
}

// sysExecve's argument window is (image-buffer, length, unused): the
// VFS-backed pathname lookup that would normally turn a path into a
// loadable image is out of scope for the CORE, so this entry point
// takes the already-resolved image bytes directly from user memory
// rather than performing a namei walk itself. argv/envp marshaling from
// user memory is left to a VFS-aware caller; Execve accepts nil for
// both, which is a program running with no arguments and no
// environment -- a minimal but legal starting state.
func sysExecve(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	ub := userbuf(p, a[0], a[1])
	raw := make([]byte, ub.Remain())
	if _, err := ub.Uioread(raw); err != 0 {
		return 0, err
	}
	return 0, proc.Execve(p, t, raw, nil, nil)
}

func sysWait4(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	var status int
	pid, err := proc.Wait4(p, defs.Pid_t(a[0]), &status, a[2]&1 != 0)
	if err != 0 {
		return 0, err
	}
	if a[1] != 0 {
		if werr := p.Vm.Userwriten(a[1], 4, status); werr != 0 {
			return 0, werr
		}
	}
	return int(pid), 0
}

func sysGetpid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return int(p.Pid), 0
}

func sysGetppid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return int(p.Parent), 0
}

// sysKill raises a[1] on the target process's first thread; POSIX
// kill(2) semantics are "deliver to one arbitrary thread of the target
// process", and this kernel has no process-wide pending set separate
// from a thread's, so the first thread registered is that arbitrary
// pick.
func sysKill(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	target, ok := proc.Lookup(defs.Pid_t(a[0]))
	if !ok || len(target.Threads) == 0 {
		return 0, -defs.ESRCH
	}
	first, ok := proc.LookupThread(target, target.Threads[0])
	if !ok {
		return 0, -defs.ESRCH
	}
	first.RaiseTo(a[1])
	return 0, 0
}

func sysTkill(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	target, ok := proc.LookupThread(p, defs.Tid_t(a[0]))
	if !ok {
		return 0, -defs.ESRCH
	}
	target.RaiseTo(a[1])
	return 0, 0
}

func sysRead(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	f, err := p.GetFd(a[0])
	if err != 0 {
		return 0, err
	}
	return f.Fops.Read(userbuf(p, a[1], a[2]))
}

func sysWrite(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	f, err := p.GetFd(a[0])
	if err != 0 {
		return 0, err
	}
	return f.Fops.Write(userbuf(p, a[1], a[2]))
}

func sysPread(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	f, err := p.GetFd(a[0])
	if err != 0 {
		return 0, err
	}
	return f.Fops.Pread(userbuf(p, a[1], a[2]), a[3])
}

func sysPwrite(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	f, err := p.GetFd(a[0])
	if err != 0 {
		return 0, err
	}
	return f.Fops.Pwrite(userbuf(p, a[1], a[2]), a[3])
}

func sysClose(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, p.CloseFd(a[0])
}

func sysDup(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	f, err := p.GetFd(a[0])
	if err != 0 {
		return 0, err
	}
	nf, err := fd.Copyfd(f)
	if err != 0 {
		return 0, err
	}
	return p.AddFd(nf), 0
}

// PROT_* bits, the mmap(2) prot argument this entry point translates
// into the PTE permission bits vm.Vmadd_anon expects.
const (
	PROT_READ  = 0x1
	PROT_WRITE = 0x2
	PROT_EXEC  = 0x4
)

func permsFromProt(prot int) mem.Pa_t {
	perms := mem.Pa_t(mem.PTE_U)
	if prot&PROT_WRITE != 0 {
		perms |= mem.PTE_W
	}
	if prot&PROT_EXEC == 0 {
		perms |= mem.PTE_NX
	}
	return perms
}

// sysMmap only services an ANON|PRIVATE request at an address the
// kernel picks itself; MAP_FIXED and file-backed mappings need the VFS
// layer this tree does not implement, and are refused with EINVAL
// rather than silently reinterpreted.
func sysMmap(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	const MAP_FIXED = 0x10
	const MAP_ANONYMOUS = 0x20
	if a[3]&MAP_FIXED != 0 || a[3]&MAP_ANONYMOUS == 0 {
		return 0, -defs.EINVAL
	}
	va, err := p.Vm.Mmap(a[1], permsFromProt(a[2]))
	return va, err
}

func sysMunmap(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, p.Vm.Munmap(a[0], a[1])
}

// sysBrk is not implemented: this kernel models the heap as an ordinary
// anonymous mmap zone sized explicitly by the caller rather than a
// single grow/shrink break pointer, so legacy brk(2) has no equivalent
// kernel-side primitive to forward to.
func sysBrk(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, -defs.ENOSYS
}

func sysSigaction(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	var act *proc.Sigaction_t
	if a[1] != 0 {
		na := proc.Sigaction_t{Handler: uintptr(a[1]), Mask: uint64(a[2]), Flags: a[3], Restorer: uintptr(a[4])}
		act = &na
	}
	_, err := p.Sigaction(a[0], act)
	return 0, err
}

func sysSigprocmask(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	old, err := t.Sigprocmask(a[0], uint64(a[1]))
	return int(old), err
}

func sysSigaltstack(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	var ss *proc.Sigaltstack_t
	if a[0] != 0 {
		nss := proc.Sigaltstack_t{Sp: uintptr(a[0]), Size: a[1]}
		ss = &nss
	}
	_, err := t.Sigaltstack(ss)
	return 0, err
}

func sysSigsuspend(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	var wake proc.Waitq_t
	return 0, t.Sigsuspend(uint64(a[0]), &wake)
}

func sysSigpending(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return int(t.Sigpending()), 0
}

// sysFutex's load closure re-reads uaddr's current value with no lock
// held, matching futex_wait's "re-check before sleeping, EAGAIN if it
// already differs" contract; FUTEX_WAKE ignores it.
func sysFutex(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	load := func() (int, defs.Err_t) {
		return p.Vm.Userreadn(a[0], 4)
	}
	return proc.Futex(t, uintptr(a[0]), a[1], a[2], load, a[3])
}

func sysSetuid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, p.Setuid(a[0])
}

func sysSetreuid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, p.Setreuid(a[0], a[1])
}

func sysSetgid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, p.Setgid(a[0])
}

func sysSetgroups(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	n := a[1]
	groups := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := p.Vm.Userreadn(a[0]+i*4, 4)
		if err != 0 {
			return 0, err
		}
		groups[i] = v
	}
	return 0, p.Setgroups(groups)
}

func sysSetpgid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	target := p
	if a[0] != 0 {
		var ok bool
		target, ok = proc.Lookup(defs.Pid_t(a[0]))
		if !ok {
			return 0, -defs.ESRCH
		}
	}
	return 0, proc.Setpgid(target, defs.Pid_t(a[1]))
}

func sysSetsid(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	if err := proc.Setsid(p); err != 0 {
		return 0, err
	}
	return int(p.Pgrp.Id), 0
}

func sysGetpgrp(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	if p.Pgrp == nil {
		return 0, -defs.ESRCH
	}
	return int(p.Pgrp.Id), 0
}

func sysPtrace(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	if a[0] == proc.PTRACE_TRACEME {
		return 0, t.PtraceTraceme()
	}
	target, ok := proc.LookupThread(nil, defs.Tid_t(a[1]))
	if !ok {
		return 0, -defs.ESRCH
	}
	return 0, proc.PtraceRequest(t, target, a[0], a[3])
}

// reboot(cmd) command codes -- spec's {SHUTDOWN, REBOOT, SUSPEND, HIBERNATE}.
const (
	RB_SHUTDOWN = iota
	RB_REBOOT
	RB_SUSPEND
	RB_HIBERNATE
)

// sysReboot is the reboot(cmd) external interface. SHUTDOWN and REBOOT
// both go through the platform's installed acpi.Sleeper_t (_S5_/PM1a for
// shutdown, the FADT reset register for reboot); SUSPEND/HIBERNATE are
// not implemented and return -ENOSYS, and there is no PSCI/syscon path
// for non-x86 platforms.
func sysReboot(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	s := acpi.GlobalSleeper()
	if s == nil {
		return 0, -defs.ENOSYS
	}
	switch a[0] {
	case RB_SHUTDOWN:
		return 0, s.EnterSleepState(5)
	case RB_REBOOT:
		return 0, s.Reboot()
	default:
		return 0, -defs.ENOSYS
	}
}

// sysSigreturn unwinds the frame deliverToHandler copied out: it reads
// the saved trapframe and pre-handler mask back from the stack the
// handler's "ret" left sp pointing at, rejects a frame that claims
// kernel-mode privilege, then restores both the registers and the mask
// and, if the frame it is unwinding ran on the altstack, drops the
// nesting counter by one.
func sysSigreturn(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	ar := arch.Current()
	sp := ar.StackPointer(tf)
	ntf, mask, err := vm.ReadSigframe(p.Vm, sp)
	if err != 0 {
		return 0, err
	}
	if err := ar.ValidateUserTrapframe(&ntf); err != 0 {
		return 0, err
	}
	onAltstack := t.AltstackContains(sp)
	*tf = ntf
	mask &^= (uint64(1) << uint(proc.SIGKILL-1)) | (uint64(1) << uint(proc.SIGSTOP-1))
	t.Sigprocmask(proc.SIG_SETMASK, mask)
	if onAltstack {
		t.LeaveAltstack()
	}
	return ar.SyscallRetval(tf), 0
}
