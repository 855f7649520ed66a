// Package arch is the architecture boundary the rest of the kernel calls
// through: trapframe field access, FPU context save/restore, per-CPU IPI
// send, and the handful of VM operations whose exact encoding is
// architecture-specific (map/unmap/protect, address-space init/copy/
// destroy, the per-CPU copy-zone retarget an eager CoW copy would go
// through; vm.Fork shares pages read-only instead and never calls it).
// Exactly one Arch_i implementation is installed during bring-up; every
// other package (trap, sysc, proc, vm's callers) only ever sees this
// interface.
package arch

import "defs"

/// Tf_t is a trapframe: the saved integer register set (the FPU state is
/// kept in a separate buffer through SaveFPU/LoadFPU), indexed by the named slots below
/// rather than a struct, so an entry stub written in assembly can push
/// registers at fixed offsets without needing Go struct layout knowledge.
type Tf_t [TFSIZE]int

// Named trapframe slots. The first block is general-purpose registers
// (caller's choice of ABI ordering), followed by the three privilege-
// transition words every x86-family, ARM, and RISC-V entry stub saves in
// some form (instruction pointer, stack pointer, flags/PSTATE), and the
// two fields the trap dispatcher consults before doing anything else
// (vector number, architecture error/syndrome code).
const (
	TF_R0 = iota
	TF_R1
	TF_R2
	TF_R3
	TF_R4
	TF_R5
	TF_R6
	TF_R7
	TF_ARG0
	TF_ARG1
	TF_ARG2
	TF_ARG3
	TF_RETVAL
	TF_IP
	TF_SP
	TF_FP
	TF_FLAGS
	TF_VECTOR
	TF_ERRORCODE
	TF_FAULTADDR
	TFSIZE
)

/// Arch_i is the full architecture-boundary function list: every
/// operation the generic core calls through rather than encoding
/// architecture knowledge directly.
type Arch_i interface {
	// VM operations.
	VmMap(as *AddrSpace_i, va uintptr, pa uintptr, perms uint) defs.Err_t
	VmUnmap(as *AddrSpace_i, va uintptr, n int) defs.Err_t
	VmProtect(as *AddrSpace_i, va uintptr, n int, perms uint) defs.Err_t
	VmPopulatePage(as *AddrSpace_i, va uintptr, perms uint) (uintptr, defs.Err_t)
	VmSpaceInit() (*AddrSpace_i, defs.Err_t)
	VmSpaceCopy(dst, src *AddrSpace_i) defs.Err_t
	VmSpaceDestroy(as *AddrSpace_i)
	SetCopyZone(cpu int, slot int, pa uintptr)

	// Trapframe field access.
	SyscallRetval(tf *Tf_t) int
	SetSyscallRetval(tf *Tf_t, v int)
	StackPointer(tf *Tf_t) uintptr
	SetStackPointer(tf *Tf_t, v uintptr)
	InstructionPointer(tf *Tf_t) uintptr
	SetInstructionPointer(tf *Tf_t, v uintptr)
	FramePointer(tf *Tf_t) uintptr
	SetFramePointer(tf *Tf_t, v uintptr)
	Argument(tf *Tf_t, n int) int
	SetArgument(tf *Tf_t, n int, v int)

	// FPU context, opaque outside this package.
	SaveFPU(buf []byte)
	LoadFPU(buf []byte)
	FPUBufSize() int

	SetTLSAddr(tf *Tf_t, addr uintptr)
	// ValidateUserTrapframe checks that sigreturn's caller-supplied frame
	// does not escalate privilege: segment registers, the interrupt-enable
	// flag, and privilege-level bits must match what a legitimate user
	// trap would have produced.
	ValidateUserTrapframe(tf *Tf_t) defs.Err_t
	// FromUserMode reports whether tf was built on a trap taken from ring
	// 3, the same privilege-level check ValidateUserTrapframe makes,
	// exposed separately since callers like an unresolved page fault need
	// it without a full frame validation.
	FromUserMode(tf *Tf_t) bool

	CpuIPI(apicid uint32, vector int)
	DisableInterrupts()
	EnableInterrupts()
	WaitForInterrupt()
	StartSMPCpu(cpu int, entry uintptr) defs.Err_t
}

// AddrSpace_i is deliberately opaque here -- arch implementations pair it
// with vm.Vm_t internally, but this package must not import vm (vm has no
// business depending on its own caller's caller).
type AddrSpace_i struct {
	Opaque interface{}
}

var current Arch_i

/// Set installs the architecture implementation. Called exactly once
/// during bring-up before any other kernel subsystem runs.
func Set(a Arch_i) { current = a }

/// Current returns the installed architecture implementation.
func Current() Arch_i {
	if current == nil {
		panic("arch.Set never called")
	}
	return current
}
