// Package sysc is the L5 system-call dispatch table: a fixed-numbered
// table of up to 120 entries, each invoked with the calling thread's
// trapframe already validated by the trap dispatcher. Argument registers
// follow the architecture's standard convention (TF_ARG0-3 for the first
// four arguments, the TF_R4/TF_R5 general-purpose slots for a fifth and
// sixth where a call needs them); the syscall number itself travels in
// the first general-purpose slot, TF_R0, by the same convention every
// arch implementation must honor.
//
// Calls this kernel cannot service because their backing subsystem is
// out of scope for the CORE (VFS-backed open/openat/getdents, the
// network-socket calls, ioctl/poll against device-specific state) have no
// table entry; like unassigned numbers they dispatch through sysnosys and
// return -ENOSYS, so a caller cannot tell the two cases apart.
package sysc

import "arch"
import "defs"
import "proc"
import "vm"

// Syscall numbers. Not all 120 the reference table reserves are
// implemented; unassigned numbers and numbers whose backing subsystem is
// out of scope both dispatch through sysnosys.
const (
	SYS_EXIT = iota
	SYS_EXIT_GROUP
	SYS_CLONE
	SYS_EXECVE
	SYS_WAIT4
	SYS_GETPID
	SYS_GETPPID
	SYS_KILL
	SYS_TKILL
	SYS_READ
	SYS_WRITE
	SYS_PREAD
	SYS_PWRITE
	SYS_CLOSE
	SYS_DUP
	SYS_MMAP
	SYS_MUNMAP
	SYS_BRK
	SYS_SIGACTION
	SYS_SIGPROCMASK
	SYS_SIGALTSTACK
	SYS_SIGSUSPEND
	SYS_SIGPENDING
	SYS_FUTEX
	SYS_SETUID
	SYS_SETREUID
	SYS_SETGID
	SYS_SETGROUPS
	SYS_SETPGID
	SYS_SETSID
	SYS_GETPGRP
	SYS_PTRACE
	SYS_REBOOT
	SYS_SIGRETURN
	sysCount
)

/// Args is the argument window a handler sees: up to six integer-sized
/// values, already pulled off the trapframe by Syscall before dispatch.
type Args [6]int

type handler_f func(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t)

var table [sysCount]handler_f

func init() {
	table[SYS_EXIT] = sysExit
	table[SYS_EXIT_GROUP] = sysExitGroup
	table[SYS_CLONE] = sysClone
	table[SYS_EXECVE] = sysExecve
	table[SYS_WAIT4] = sysWait4
	table[SYS_GETPID] = sysGetpid
	table[SYS_GETPPID] = sysGetppid
	table[SYS_KILL] = sysKill
	table[SYS_TKILL] = sysTkill
	table[SYS_READ] = sysRead
	table[SYS_WRITE] = sysWrite
	table[SYS_PREAD] = sysPread
	table[SYS_PWRITE] = sysPwrite
	table[SYS_CLOSE] = sysClose
	table[SYS_DUP] = sysDup
	table[SYS_MMAP] = sysMmap
	table[SYS_MUNMAP] = sysMunmap
	table[SYS_BRK] = sysBrk
	table[SYS_SIGACTION] = sysSigaction
	table[SYS_SIGPROCMASK] = sysSigprocmask
	table[SYS_SIGALTSTACK] = sysSigaltstack
	table[SYS_SIGSUSPEND] = sysSigsuspend
	table[SYS_SIGPENDING] = sysSigpending
	table[SYS_FUTEX] = sysFutex
	table[SYS_SETUID] = sysSetuid
	table[SYS_SETREUID] = sysSetreuid
	table[SYS_SETGID] = sysSetgid
	table[SYS_SETGROUPS] = sysSetgroups
	table[SYS_SETPGID] = sysSetpgid
	table[SYS_SETSID] = sysSetsid
	table[SYS_GETPGRP] = sysGetpgrp
	table[SYS_PTRACE] = sysPtrace
	table[SYS_REBOOT] = sysReboot
	table[SYS_SIGRETURN] = sysSigreturn
}

/// Syscall is the trap dispatcher's entry point for the syscall vector:
/// it pulls the number and up to six arguments off tf, runs the matching
/// handler, and writes the result (or its negated errno) back into the
/// syscall-return slot.
func Syscall(tf *arch.Tf_t) {
	t := proc.CurrentThread()
	a := arch.Current()

	num := int(tf[arch.TF_R0])
	args := Args{
		a.Argument(tf, 0),
		a.Argument(tf, 1),
		a.Argument(tf, 2),
		a.Argument(tf, 3),
		int(tf[arch.TF_R4]),
		int(tf[arch.TF_R5]),
	}

	if t.Ptrace == proc.PT_SYSCALL {
		t.StopForTracer(proc.SIGTRAP)
	}

	var ret int
	var err defs.Err_t
	if num < 0 || num >= sysCount || table[num] == nil {
		ret, err = sysnosys(t.Proc, t, args, tf)
	} else {
		ret, err = table[num](t.Proc, t, args, tf)
	}

	if t.Ptrace == proc.PT_SYSCALL {
		t.StopForTracer(proc.SIGTRAP)
	}

	if err != 0 {
		a.SetSyscallRetval(tf, int(err))
	} else {
		a.SetSyscallRetval(tf, ret)
	}
}

func sysnosys(p *proc.Proc_t, t *proc.Thread_t, a Args, tf *arch.Tf_t) (int, defs.Err_t) {
	return 0, -defs.ENOSYS
}

func userbuf(p *proc.Proc_t, uva, n int) *vm.Userbuf_t {
	return p.Vm.Mkuserbuf(uva, n)
}
