package vm

import "encoding/binary"

import "arch"
import "bounds"
import "defs"
import "res"

// sigframeAlign matches the ABI stack alignment every calling convention
// this kernel targets requires at a function entry point (the handler
// entry itself).
const sigframeAlign = 16

/// BuildSigframe serializes tf and the thread's pre-handler signal mask --
/// together, the complete state sigreturn must restore -- into a byte
/// blob: the trapframe words followed by the 8-byte mask.
func BuildSigframe(tf arch.Tf_t, mask uint64) []byte {
	buf := make([]byte, len(tf)*8+8)
	for i, word := range tf {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(word))
	}
	binary.LittleEndian.PutUint64(buf[len(tf)*8:], mask)
	return buf
}

/// CopyoutSigframe writes frame onto the user stack below sp, preceded by
/// an 8-byte word holding restorer, and returns the new, ABI-aligned stack
/// pointer a handler should be entered with -- the address of that
/// restorer word, so the handler's own "ret" pops it and jumps into the
/// sigreturn trampoline rather than into whatever garbage used to be
/// there. The write is bounded (B_THREAD_T_COPYOUT_SIGFRAME): it is a
/// user-memory store made with no address-space lock held across the
/// call, the same discipline every other unbounded user-copy path in
/// this package follows.
func (as *Vm_t) CopyoutSigframe(frame []byte, restorer uintptr, sp uintptr) (uintptr, defs.Err_t) {
	if !res.Resadd_noblock(bounds.Bounds(bounds.B_THREAD_T_COPYOUT_SIGFRAME)) {
		return 0, -defs.ENOHEAP
	}
	defer res.Resdel(bounds.Bounds(bounds.B_THREAD_T_COPYOUT_SIGFRAME))

	base := (sp - uintptr(len(frame)+8)) &^ (sigframeAlign - 1)
	var retaddr [8]byte
	binary.LittleEndian.PutUint64(retaddr[:], uint64(restorer))
	if err := as.K2user(retaddr[:], int(base)); err != 0 {
		return 0, err
	}
	if err := as.K2user(frame, int(base)+8); err != 0 {
		return 0, err
	}
	return base, 0
}

/// ReadSigframe reads a frame previously built by BuildSigframe back from
/// the user stack at sp (the stack pointer sigreturn's own syscall trapped
/// with, which sits just past the restorer word CopyoutSigframe wrote),
/// returning the saved trapframe and signal mask.
func ReadSigframe(as *Vm_t, sp uintptr) (arch.Tf_t, uint64, defs.Err_t) {
	var tf arch.Tf_t
	if !res.Resadd_noblock(bounds.Bounds(bounds.B_THREAD_T_READIN_SIGFRAME)) {
		return tf, 0, -defs.ENOHEAP
	}
	defer res.Resdel(bounds.Bounds(bounds.B_THREAD_T_READIN_SIGFRAME))

	buf := make([]byte, len(tf)*8+8)
	if err := as.User2k(buf, int(sp)); err != 0 {
		return tf, 0, err
	}
	for i := range tf {
		tf[i] = int(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	mask := binary.LittleEndian.Uint64(buf[len(tf)*8:])
	return tf, mask, 0
}
