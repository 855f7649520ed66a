package proc

import "debug/elf"
import "bytes"
import "sync/atomic"

import "arch"
import "defs"
import "fd"
import "mem"
import "ustr"
import "vm"

// clone flags, matching the bit assignment userspace expects from
// clone(2): the low byte is reserved for the child's termination signal,
// the remaining bits select what is shared rather than copied.
const (
	CLONE_VM     = 1 << 8
	CLONE_FS     = 1 << 9
	CLONE_FILES  = 1 << 10
	CLONE_THREAD = 1 << 11
	CLONE_VFORK  = 1 << 12
)

func exitSigOf(flags int) int { return flags & 0xff }

/// Clone creates a new thread or process from parent/pthread depending on
/// flags. CLONE_THREAD requires CLONE_VM (a thread cannot have its own
/// address space while sharing a thread group); CLONE_VFORK requires that
/// the parent block until the child execs or exits, enforced by blocking
/// on VforkWaitq below rather than by validating anything here.
func Clone(parent *Proc_t, pthread *Thread_t, flags int, stackva uintptr) (*Proc_t, *Thread_t, defs.Err_t) {
	if flags&CLONE_THREAD != 0 && flags&CLONE_VM == 0 {
		return nil, nil, -defs.EINVAL
	}
	if err := takeProcSlot(); err != 0 {
		return nil, nil, err
	}

	if flags&CLONE_THREAD != 0 {
		nt := newThread(parent)
		nt.Tf = pthread.Tf
		arch.Current().SetStackPointer(&nt.Tf, stackva)
		parent.childMu.Lock()
		parent.Threads = append(parent.Threads, nt.Tid)
		parent.childMu.Unlock()
		return parent, nt, 0
	}

	np := NewProc(AllocPid(), parent.Pid)

	if flags&CLONE_VM != 0 {
		parent.Vm.Addref()
		np.Vm = parent.Vm
	} else {
		cp, err := vm.Fork(parent.Vm)
		if err != 0 {
			return nil, nil, err
		}
		np.Vm = cp
	}

	if flags&CLONE_FILES != 0 {
		parent.mu.RLock()
		for n, f := range parent.Fds {
			np.Fds[n] = f
		}
		parent.mu.RUnlock()
	} else {
		parent.mu.RLock()
		for n, f := range parent.Fds {
			nf, err := fd.Copyfd(f)
			if err != 0 {
				parent.mu.RUnlock()
				return nil, nil, err
			}
			np.Fds[n] = nf
		}
		parent.mu.RUnlock()
	}

	// CLONE_FS controls whether filesystem namespace attributes (cwd,
	// root, umask) are shared by reference or copied; this kernel has no
	// per-namespace mount table yet, so sharing and copying both just
	// mean "which Cwd_t pointer the child starts with".
	if flags&CLONE_FS != 0 {
		np.Cwd = parent.Cwd
		np.Root = parent.Root
	} else {
		parent.Cwd.Lock()
		np.Cwd = &fd.Cwd_t{Fd: parent.Cwd.Fd, Path: append(ustr.Ustr{}, parent.Cwd.Path...)}
		parent.Cwd.Unlock()
		np.Root = parent.Root
	}
	np.Umask = parent.Umask

	parent.credMu.Lock()
	np.Cred = parent.Cred
	np.Cred.Groups = append([]int(nil), parent.Cred.Groups...)
	parent.credMu.Unlock()

	np.Pgrp = parent.Pgrp
	if np.Pgrp != nil {
		np.Pgrp.mu.Lock()
		np.Pgrp.Members[np.Pid] = np
		np.Pgrp.mu.Unlock()
	}

	nt := newThread(np)
	nt.Tf = pthread.Tf
	if stackva != 0 {
		arch.Current().SetStackPointer(&nt.Tf, stackva)
	}
	np.Threads = []defs.Tid_t{nt.Tid}

	Register(np)
	parent.childMu.Lock()
	parent.Children = append(parent.Children, np.Pid)
	parent.childMu.Unlock()

	if flags&CLONE_VFORK != 0 {
		parent.vforkDone = 0
		parent.VforkWaitq.Sleep(func() bool { return parent.vforkDoneCheck() })
	}

	return np, nt, 0
}

func (p *Proc_t) vforkDoneCheck() bool {
	return loadVforkDone(p)
}

var nextTid int64 = 1

func newThread(p *Proc_t) *Thread_t {
	nt := &Thread_t{
		Tid:  defs.Tid_t(atomic.AddInt64(&nextTid, 1)),
		Proc: p,
	}
	registerThread(nt)
	return nt
}

func loadVforkDone(p *Proc_t) bool { return p.vforkDone != 0 }

/// ElfImage_t is a parsed, loadable program image.
type ElfImage_t struct {
	Entry   uintptr
	Loads   []ElfLoad_t
}

/// ElfLoad_t is one PT_LOAD segment, ready to be mapped into a fresh
/// address space.
type ElfLoad_t struct {
	Vaddr  uintptr
	Memsz  uintptr
	Filesz uintptr
	Perms  mem.Pa_t
	Data   []byte
}

/// ParseElf validates and decodes an ELF64 little-endian image of type
/// ET_EXEC or ET_DYN for execve. It checks the class, byte order and file
/// type; the machine field is not checked.
func ParseElf(raw []byte) (*ElfImage_t, defs.Err_t) {
	ef, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, -defs.ENOEXEC
	}
	if ef.Class != elf.ELFCLASS64 || ef.Data != elf.ELFDATA2LSB {
		return nil, -defs.ENOEXEC
	}
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_DYN {
		return nil, -defs.ENOEXEC
	}

	img := &ElfImage_t{Entry: uintptr(ef.Entry)}
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		perms := mem.Pa_t(mem.PTE_U | mem.PTE_P)
		if prog.Flags&elf.PF_W != 0 {
			perms |= mem.PTE_W
		}
		data := make([]byte, prog.Filesz)
		sr := io_NewSectionReader(prog)
		if _, err := sr.Read(data); err != nil && prog.Filesz != 0 {
			return nil, -defs.ENOEXEC
		}
		img.Loads = append(img.Loads, ElfLoad_t{
			Vaddr:  uintptr(prog.Vaddr),
			Memsz:  uintptr(prog.Memsz),
			Filesz: uintptr(prog.Filesz),
			Perms:  perms,
			Data:   data,
		})
	}
	return img, 0
}

// io_NewSectionReader adapts a debug/elf Prog's own ReaderAt into a plain
// Reader positioned at its start, avoiding a second import alias for
// "io" in the common case callers only read once sequentially.
func io_NewSectionReader(prog *elf.Prog) interface {
	Read(p []byte) (int, error)
} {
	return prog.Open()
}

/// Execve replaces np's address space and the calling thread's trapframe
/// with a freshly loaded ELF image, per execve(2): file descriptors
/// without CLOEXEC survive, everything else about the process identity
/// (PID, parent, credentials, pending signals) is unchanged.
func Execve(p *Proc_t, t *Thread_t, raw []byte, argv []string, envp []string) defs.Err_t {
	img, err := ParseElf(raw)
	if err != 0 {
		return err
	}
	nvm, err := vm.NewAddrSpace()
	if err != 0 {
		return err
	}
	for _, ld := range img.Loads {
		if err := vm.LoadSegment(nvm, ld.Vaddr, ld.Memsz, ld.Data, uint(ld.Perms)); err != 0 {
			return err
		}
	}
	sp, err := vm.SetupInitialStack(nvm, argv, envp)
	if err != 0 {
		return err
	}

	p.mu.Lock()
	oldVm := p.Vm
	p.mu.Unlock()

	// A vforked child shares oldVm with its parent, which is blocked in
	// clone waiting for exactly this moment or the child's exit -- wake
	// it before the address space it's sleeping on gets replaced out
	// from under it.
	if par, ok := Lookup(p.Parent); ok && par.Vm == oldVm {
		par.vforkWake()
	}

	p.mu.Lock()
	p.Vm = nvm
	p.mu.Unlock()
	if oldVm != nil && oldVm != nvm {
		oldVm.Uvmfree()
	}

	p.ExecClose()

	t.Tf = arch.Tf_t{}
	a := arch.Current()
	a.SetInstructionPointer(&t.Tf, img.Entry)
	a.SetStackPointer(&t.Tf, sp)
	return 0
}
