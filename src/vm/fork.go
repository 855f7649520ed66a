package vm

import "mem"

import "defs"

/// Fork builds a child address space that is a copy-on-write snapshot of
/// parent: every region is duplicated in the child's region list, and
/// every currently-present anonymous page is marked PTE_COW in both
/// parent and child and shared (refcounted) rather than copied, the same
/// eager-COW-setup/lazy-copy split Sys_pgfault's write-fault path expects
/// to find already in place.
func Fork(parent *Vm_t) (*Vm_t, defs.Err_t) {
	parent.Lock_pmap()
	defer parent.Unlock_pmap()

	npmap, np_pmap, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, -defs.ENOMEM
	}
	child := &Vm_t{Pmap: npmap, P_pmap: np_pmap, refs: 1}

	for _, vmi := range parent.Vmregion.Regions() {
		nvmi := &Vminfo_t{Mtype: vmi.Mtype, Pgn: vmi.Pgn, Pglen: vmi.Pglen, Perms: vmi.Perms}
		nvmi.file = vmi.file
		child.Vmregion.insert(nvmi)

		if vmi.Mtype == VSANON || vmi.Mtype == VFILE && vmi.file.shared {
			// shared state: both address spaces must see writes, so the
			// child maps the same pages directly rather than via COW.
			continue
		}

		for pg := 0; pg < vmi.Pglen; pg++ {
			va := int((vmi.Pgn + uintptr(pg)) << PGSHIFT)
			ppte := Pmap_lookup(parent.Pmap, va)
			if ppte == nil || *ppte&PTE_P == 0 {
				continue
			}
			if *ppte&PTE_W != 0 {
				*ppte = (*ppte &^ (PTE_W | PTE_WASCOW)) | PTE_COW
			}
			cpte, err := pmap_walk(child.Pmap, va, PTE_U|PTE_W)
			if err != 0 {
				return nil, err
			}
			*cpte = *ppte
			mem.Physmem.Refup(mem.Pa_t(*ppte & PTE_ADDR))
		}
	}
	return child, 0
}
