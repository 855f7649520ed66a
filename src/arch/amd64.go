package arch

import "fmt"
import "runtime"
import "unsafe"

import "golang.org/x/arch/x86/x86asm"

import "defs"
import "mem"

// Amd64_t is the concrete Arch_i for the x86-64 family: 4-level paging,
// the FXSAVE/FXRSTOR legacy FPU area, local-APIC IPIs, and the
// CLI/STI/HLT interrupt-control trio. Bring-up installs exactly one of
// these via Set before any other subsystem runs.
type Amd64_t struct {
	nx bool
}

// NewAmd64 probes CPUID for the features this implementation depends on
// (NX support gates whether PTE_NX is ever set; every CPU old enough to
// lack it is also too old to run this kernel, but we still probe rather
// than assume) and returns a ready-to-install Arch_i.
func NewAmd64() *Amd64_t {
	_, _, _, edx := runtime.Cpuid(0x80000001, 0)
	return &Amd64_t{nx: edx&(1<<20) != 0}
}

type amd64AddrSpace struct {
	pmap   *mem.Pmap_t
	p_pmap mem.Pa_t
}

func toAS(as *AddrSpace_i) *amd64AddrSpace {
	return as.Opaque.(*amd64AddrSpace)
}

// walk descends the 4-level page table, creating missing intermediate
// (non-leaf) tables along the way when create is set. Mirrors vm's own
// pmap_walk bit-for-bit (0x1ff masks at bits 39/30/21/12) since both
// are describing the same hardware page-table format; this copy exists
// because arch must not import vm (vm is this package's caller's
// caller), so the two layers each own an independent walker over the
// same wire format.
func (a *Amd64_t) walk(pmap *mem.Pmap_t, va uintptr, create bool, perms mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	idxs := [3]int{
		int((va >> 39) & 0x1ff),
		int((va >> 30) & 0x1ff),
		int((va >> 21) & 0x1ff),
	}
	l1 := int((va >> 12) & 0x1ff)

	cur := pmap
	for _, idx := range idxs {
		if cur[idx]&mem.PTE_P == 0 {
			if !create {
				return nil, 0
			}
			np, p_np, ok := mem.Physmem.Pmap_new()
			if !ok {
				return nil, -defs.ENOMEM
			}
			cur[idx] = p_np | perms | mem.PTE_P
			cur = np
		} else {
			cur = mem.Pg2pmap(mem.Physmem.Dmap(cur[idx] & mem.PTE_ADDR))
		}
	}
	return &cur[l1], 0
}

func (a *Amd64_t) permBits(perms uint) mem.Pa_t {
	p := mem.Pa_t(perms) & (mem.PTE_U | mem.PTE_W | mem.PTE_PWT | mem.PTE_PCD)
	if a.nx {
		p |= mem.Pa_t(perms) & mem.PTE_NX
	}
	return p
}

func (a *Amd64_t) VmMap(as *AddrSpace_i, va uintptr, pa uintptr, perms uint) defs.Err_t {
	space := toAS(as)
	pte, err := a.walk(space.pmap, va, true, mem.PTE_U|mem.PTE_W)
	if err != 0 {
		return err
	}
	*pte = mem.Pa_t(pa) | a.permBits(perms) | mem.PTE_P
	return 0
}

func (a *Amd64_t) VmUnmap(as *AddrSpace_i, va uintptr, n int) defs.Err_t {
	space := toAS(as)
	for i := 0; i < n; i++ {
		cur := va + uintptr(i)*uintptr(mem.PGSIZE)
		pte, err := a.walk(space.pmap, cur, false, 0)
		if err != 0 {
			return err
		}
		if pte == nil || *pte&mem.PTE_P == 0 {
			continue
		}
		mem.Physmem.Refdown(*pte & mem.PTE_ADDR)
		*pte = 0
	}
	return 0
}

func (a *Amd64_t) VmProtect(as *AddrSpace_i, va uintptr, n int, perms uint) defs.Err_t {
	space := toAS(as)
	for i := 0; i < n; i++ {
		cur := va + uintptr(i)*uintptr(mem.PGSIZE)
		pte, err := a.walk(space.pmap, cur, false, 0)
		if err != 0 {
			return err
		}
		if pte == nil || *pte&mem.PTE_P == 0 {
			continue
		}
		*pte = (*pte &^ (mem.PTE_U | mem.PTE_W | mem.PTE_NX)) | a.permBits(perms) | mem.PTE_P
	}
	return 0
}

func (a *Amd64_t) VmPopulatePage(as *AddrSpace_i, va uintptr, perms uint) (uintptr, defs.Err_t) {
	space := toAS(as)
	_, p_pg, ok := mem.Physmem.Refpg_new()
	if !ok {
		return 0, -defs.ENOMEM
	}
	pte, err := a.walk(space.pmap, va, true, mem.PTE_U|mem.PTE_W)
	if err != 0 {
		mem.Physmem.Refdown(p_pg)
		return 0, err
	}
	*pte = p_pg | a.permBits(perms) | mem.PTE_P
	return uintptr(p_pg), 0
}

func (a *Amd64_t) VmSpaceInit() (*AddrSpace_i, defs.Err_t) {
	pmap, p_pmap, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, -defs.ENOMEM
	}
	return &AddrSpace_i{Opaque: &amd64AddrSpace{pmap: pmap, p_pmap: p_pmap}}, 0
}

// VmSpaceCopy installs dst's top-level entries for the kernel half of
// the address space (indices 256-511, the canonical higher-half split)
// by reference, leaving the user half (0-255) for the caller to
// populate -- identical to how a fresh Pmap_new's kernel-half entries
// are already shared rather than copied elsewhere in this tree.
func (a *Amd64_t) VmSpaceCopy(dst, src *AddrSpace_i) defs.Err_t {
	d, s := toAS(dst), toAS(src)
	for i := 256; i < 512; i++ {
		d.pmap[i] = s.pmap[i]
	}
	return 0
}

func (a *Amd64_t) VmSpaceDestroy(as *AddrSpace_i) {
	space := toAS(as)
	mem.Physmem.Dec_pmap(space.p_pmap)
}

// SetCopyZone would retarget a per-CPU scratch mapping to pa for the
// eager-CoW alternative (copy through a temporary mapping rather than
// marking the original page read-only and faulting later); vm.Fork
// takes the cheaper share-and-mark-readonly path instead (see
// DESIGN.md's CoW-strategy decision), so this hook is never called on
// the path this tree actually exercises and is left unimplemented
// rather than guessed at.
func (a *Amd64_t) SetCopyZone(cpu int, slot int, pa uintptr) {
}

func (a *Amd64_t) SyscallRetval(tf *Tf_t) int      { return tf[TF_RETVAL] }
func (a *Amd64_t) SetSyscallRetval(tf *Tf_t, v int) { tf[TF_RETVAL] = v }

func (a *Amd64_t) StackPointer(tf *Tf_t) uintptr      { return uintptr(tf[TF_SP]) }
func (a *Amd64_t) SetStackPointer(tf *Tf_t, v uintptr) { tf[TF_SP] = int(v) }

func (a *Amd64_t) InstructionPointer(tf *Tf_t) uintptr      { return uintptr(tf[TF_IP]) }
func (a *Amd64_t) SetInstructionPointer(tf *Tf_t, v uintptr) { tf[TF_IP] = int(v) }

func (a *Amd64_t) FramePointer(tf *Tf_t) uintptr      { return uintptr(tf[TF_FP]) }
func (a *Amd64_t) SetFramePointer(tf *Tf_t, v uintptr) { tf[TF_FP] = int(v) }

// Argument returns one of the first four syscall arguments, which this
// ABI places in TF_ARG0-3; a fifth and sixth argument (rare; only a
// couple of syscalls in the reference table need them) travel in the
// general-purpose TF_R4/TF_R5 slots instead, read directly by sysc
// rather than through this accessor.
func (a *Amd64_t) Argument(tf *Tf_t, n int) int {
	switch n {
	case 0:
		return tf[TF_ARG0]
	case 1:
		return tf[TF_ARG1]
	case 2:
		return tf[TF_ARG2]
	case 3:
		return tf[TF_ARG3]
	default:
		panic("argument index out of range")
	}
}

func (a *Amd64_t) SetArgument(tf *Tf_t, n int, v int) {
	switch n {
	case 0:
		tf[TF_ARG0] = v
	case 1:
		tf[TF_ARG1] = v
	case 2:
		tf[TF_ARG2] = v
	case 3:
		tf[TF_ARG3] = v
	default:
		panic("argument index out of range")
	}
}

// SaveFPU/LoadFPU hand buf straight to the patched runtime's FXSAVE/
// FXRSTOR wrappers, which use the first FPUBufSize bytes of buf; no length
// or 16-byte alignment check is made here.
func (a *Amd64_t) SaveFPU(buf []byte) {
	runtime.Fxsave((*[64]uintptr)(unsafe.Pointer(&buf[0])))
}

func (a *Amd64_t) LoadFPU(buf []byte) {
	runtime.Fxrstor((*[64]uintptr)(unsafe.Pointer(&buf[0])))
}

func (a *Amd64_t) FPUBufSize() int { return 64 * 8 }

// SetTLSAddr writes the user TLS base a thread-pointer-relative access
// resolves against; this ABI keeps it in the otherwise-unused TF_R6
// general-purpose slot rather than a dedicated segment-register field,
// since %fs/%gs base loads happen on the kernel-to-user return path
// (outside this interface) from whatever value sits there.
func (a *Amd64_t) SetTLSAddr(tf *Tf_t, addr uintptr) {
	tf[TF_R6] = int(addr)
}

// ValidateUserTrapframe rejects a sigreturn-supplied frame that claims
// kernel-mode flags: the interrupt-enable bit must be set (a user
// trapframe with interrupts disabled could wedge the CPU on return),
// and the two privilege bits under it must select ring 3.
func (a *Amd64_t) ValidateUserTrapframe(tf *Tf_t) defs.Err_t {
	const rflagsIF = 1 << 9
	const cplMask = 3
	flags := uintptr(tf[TF_FLAGS])
	if flags&rflagsIF == 0 {
		return -defs.EINVAL
	}
	if tf[TF_R7]&cplMask != 3 {
		return -defs.EINVAL
	}
	return 0
}

// FromUserMode reports whether tf's saved CPL selects ring 3.
func (a *Amd64_t) FromUserMode(tf *Tf_t) bool {
	const cplMask = 3
	return tf[TF_R7]&cplMask == 3
}

// Disassembler_i is implemented by an Arch_i that can decode the machine
// code at a trapframe's instruction pointer; trap's fatal-exception path
// type-asserts for it when building a panic message, rather than growing
// Arch_i itself with a method every other architecture would also have
// to implement just to satisfy the interface.
type Disassembler_i interface {
	DisassembleAt(tf *Tf_t) string
}

// DisassembleAt decodes the 15 bytes (the longest possible x86
// instruction) starting at tf's instruction pointer, for a panic
// register dump to show what the CPU was actually executing. It reads
// directly through an unsafe pointer rather than through the VM
// abstraction: by the time this is called the fault is already fatal to
// the kernel, so there is no virtual-address-space bookkeeping left to
// respect.
func (a *Amd64_t) DisassembleAt(tf *Tf_t) string {
	ip := uintptr(tf[TF_IP])
	code := unsafe.Slice((*byte)(unsafe.Pointer(ip)), 15)
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("<undecodable at %#x: %v>", ip, err)
	}
	return inst.String()
}

// lapicBase is the local APIC's MMIO window, set once during bring-up
// once the MADT's LAPIC-address field (acpi/madt.go) has been mapped
// into the kernel's address space. CpuIPI writes the Interrupt Command
// Register pair directly; Controller_i has no SendIPI method of its own
// since raw IPI send is arch's job, not the controller abstraction's
// (Controller_i only covers line masking, EOI, and MSI programming).
var lapicBase uintptr

// SetLAPICBase installs the local APIC's mapped MMIO base address.
func SetLAPICBase(base uintptr) {
	lapicBase = base
}

const (
	lapicICRLo = 0x300
	lapicICRHi = 0x310
)

func (a *Amd64_t) CpuIPI(apicid uint32, vector int) {
	if lapicBase == 0 {
		return
	}
	hi := (*uint32)(unsafe.Pointer(lapicBase + lapicICRHi))
	lo := (*uint32)(unsafe.Pointer(lapicBase + lapicICRLo))
	*hi = apicid << 24
	*lo = uint32(vector) | 1<<14 // fixed delivery, assert level
}

func (a *Amd64_t) DisableInterrupts() { runtime.Cli() }
func (a *Amd64_t) EnableInterrupts()  { runtime.Sti() }
func (a *Amd64_t) WaitForInterrupt()  { runtime.Hlt() }

// StartSMPCpu is the AP bring-up trampoline invocation: it is left
// unimplemented pending the real-mode trampoline page and INIT-SIPI-SIPI
// sequence, which needs identity-mapped low memory this tree's VM setup
// does not yet reserve. Single-CPU bring-up is otherwise fully
// functional without it.
func (a *Amd64_t) StartSMPCpu(cpu int, entry uintptr) defs.Err_t {
	return -defs.ENOSYS
}
