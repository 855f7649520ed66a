package vm

import "mem"

import "defs"
import "util"

/// NewAddrSpace allocates an empty address space with a fresh top-level
/// page table and no regions, the starting point execve builds a freshly
/// loaded program image on top of.
func NewAddrSpace() (*Vm_t, defs.Err_t) {
	pmap, p_pmap, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, -defs.ENOMEM
	}
	return &Vm_t{Pmap: pmap, P_pmap: p_pmap, refs: 1}, 0
}

/// LoadSegment eagerly populates an anonymous region covering [va, va+memsz)
/// with the first filesz bytes of data and zero-fills the rest (the
/// .bss tail a PT_LOAD segment's memsz-over-filesz gap represents).
/// Segments are loaded eagerly rather than fault-in because the backing
/// ELF data does not outlive this call.
func LoadSegment(as *Vm_t, va uintptr, memsz uintptr, data []byte, perms uint) defs.Err_t {
	start := util.Rounddown(int(va), PGSIZE)
	end := util.Roundup(int(va)+int(memsz), PGSIZE)
	as.Vmadd_anon(start, end-start, (mem.Pa_t(perms)&(PTE_U|PTE_W))|PTE_U)

	as.Lock_pmap()
	defer as.Unlock_pmap()
	off := 0
	for cur := int(va); off < len(data); {
		pg, p_pg, ok := mem.Physmem.Refpg_new_nozero()
		if !ok {
			return -defs.ENOMEM
		}
		bpg := mem.Pg2bytes(pg)
		for i := range bpg {
			bpg[i] = 0
		}
		pageoff := cur & int(PGOFFSET)
		n := PGSIZE - pageoff
		if rem := len(data) - off; rem < n {
			n = rem
		}
		copy(bpg[pageoff:pageoff+n], data[off:off+n])

		pte := Pmap_lookup(as.Pmap, cur-pageoff)
		var err defs.Err_t
		if pte == nil {
			pte, err = pmap_walk(as.Pmap, cur-pageoff, PTE_U|PTE_W)
			if err != 0 {
				mem.Physmem.Refdown(p_pg)
				return err
			}
		}
		if _, ok := as.Page_insert(cur-pageoff, p_pg, mem.Pa_t(perms)|PTE_U|PTE_P, *pte == 0, pte); !ok {
			mem.Physmem.Refdown(p_pg)
			return -defs.ENOMEM
		}
		off += n
		cur += n
	}
	return 0
}

// Default user stack size and placement, below the conventional
// USERMIN..top-of-address-space gap this kernel reserves for mmap/brk
// growth.
const (
	stackSize  = 8 * PGSIZE
	stackTopVA = 0x7ffffff00000
)

/// SetupInitialStack maps a fresh stack region and writes argv/envp onto
/// it in the standard argc/argv[]/NULL/envp[]/NULL layout a libc
/// _start expects, returning the initial stack pointer.
func SetupInitialStack(as *Vm_t, argv []string, envp []string) (uintptr, defs.Err_t) {
	base := stackTopVA - stackSize
	as.Vmadd_anon(base, stackSize, PTE_U|PTE_W)

	sp := stackTopVA
	ptrs := make([]int, 0, len(argv)+len(envp)+2)
	write := func(s string) int {
		b := append([]byte(s), 0)
		sp -= len(b)
		sp = util.Rounddown(sp, 8)
		if err := as.K2user(b, sp); err != 0 {
			return 0
		}
		return sp
	}
	for _, s := range argv {
		ptrs = append(ptrs, write(s))
	}
	ptrs = append(ptrs, 0)
	for _, s := range envp {
		ptrs = append(ptrs, write(s))
	}
	ptrs = append(ptrs, 0)

	// write pointer table and argc, highest addresses first so argc ends
	// up lowest (closest to the final sp), matching the ABI's expected
	// [argc][argv...][NULL][envp...][NULL] layout read upward from sp.
	for i := len(ptrs) - 1; i >= 0; i-- {
		sp -= 8
		if err := as.Userwriten(sp, 8, ptrs[i]); err != 0 {
			return 0, err
		}
	}
	sp -= 8
	if err := as.Userwriten(sp, 8, len(argv)); err != 0 {
		return 0, err
	}
	return uintptr(sp), 0
}
