package vm

import "defs"
import "mem"
import "util"

/// Mmap services an anonymous, private mapping request: the kernel picks
/// the address itself (no MAP_FIXED support) and installs a fresh
/// zero-fill-on-demand region sized to length, rounded up to a whole
/// number of pages.
func (as *Vm_t) Mmap(length int, perms mem.Pa_t) (int, defs.Err_t) {
	if length <= 0 {
		return 0, -defs.EINVAL
	}
	length = util.Roundup(length, PGSIZE)
	as.Lock_pmap()
	defer as.Unlock_pmap()
	va := as.Unusedva_inner(0, length)
	as.Vmadd_anon(va, length, perms)
	return va, 0
}

/// Munmap removes the region starting exactly at start (the only case
/// mmap's caller-facing contract requires this kernel to support;
/// unmapping a sub-range of a larger mapping needs split support the
/// component design does not call for). Every present page in the range
/// is torn down and a TLB shootdown issued before returning, satisfying
/// the "TLB visibility" invariant: any subsequent access to the removed
/// range on any CPU must fault.
func (as *Vm_t) Munmap(start, length int) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	pgn := uintptr(start) >> PGSHIFT
	if !as.Vmregion.remove(pgn) {
		return -defs.EINVAL
	}

	pgcount := 0
	for va := util.Rounddown(start, PGSIZE); va < start+length; va += PGSIZE {
		if as.Page_remove(va) {
			pgcount++
		}
	}
	as.Tlbshoot(uintptr(start), pgcount)
	return 0
}
