package vm

import "sort"

/// Vmregion_t is the sorted set of mapped regions in an address space,
/// ordered by page number so Lookup can binary search and adjacent
/// free-range queries (Unusedva_inner) can scan linearly.
type Vmregion_t struct {
	regions []*Vminfo_t
}

func (vr *Vmregion_t) sidx(pgn uintptr) int {
	return sort.Search(len(vr.regions), func(i int) bool {
		r := vr.regions[i]
		return r.Pgn+uintptr(r.Pglen) > pgn
	})
}

/// Lookup finds the region containing the given virtual address, if any.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> PGSHIFT
	i := vr.sidx(pgn)
	if i >= len(vr.regions) {
		return nil, false
	}
	r := vr.regions[i]
	if pgn < r.Pgn {
		return nil, false
	}
	return r, true
}

// insert adds a region, keeping regions sorted by start page number.
// Overlapping regions are a caller bug -- mmap's MAP_FIXED collision
// handling must unmap the old region first.
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	i := vr.sidx(vmi.Pgn)
	if i < len(vr.regions) {
		o := vr.regions[i]
		if vmi.Pgn < o.Pgn+uintptr(o.Pglen) && o.Pgn < vmi.Pgn+uintptr(vmi.Pglen) {
			panic("overlapping vm region")
		}
	}
	if vmi.Mtype == VFILE && vmi.file.mfile != nil {
		vmi.file.mfile.mapcount++
	}
	vr.regions = append(vr.regions, nil)
	copy(vr.regions[i+1:], vr.regions[i:])
	vr.regions[i] = vmi
}

// empty finds a free page-aligned range of at least length bytes at or
// above start, returning its start address and length unchanged (not the
// size of the gap it sits in).
func (vr *Vmregion_t) empty(start, length uintptr) (uintptr, uintptr) {
	reqpg := (length + uintptr(PGOFFSET)) >> PGSHIFT
	cur := start >> PGSHIFT
	for _, r := range vr.regions {
		if r.Pgn+uintptr(r.Pglen) <= cur {
			continue
		}
		if r.Pgn >= cur+reqpg {
			break
		}
		cur = r.Pgn + uintptr(r.Pglen)
	}
	return cur << PGSHIFT, length
}

/// Regions returns the region list in start-address order, for callers
/// that must walk every mapping (fork's copy-on-write setup, /proc/maps
/// style introspection).
func (vr *Vmregion_t) Regions() []*Vminfo_t {
	return vr.regions
}

// remove drops the region that starts at page pgn entirely; a caller
// unmapping a sub-range of a larger region is responsible for shrinking
// or splitting first. Returns false if no region starts exactly there.
func (vr *Vmregion_t) remove(pgn uintptr) bool {
	i := vr.sidx(pgn)
	if i >= len(vr.regions) || vr.regions[i].Pgn != pgn {
		return false
	}
	r := vr.regions[i]
	if r.Mtype == VFILE && r.file.mfile != nil {
		r.file.mfile.mapcount--
	}
	vr.regions = append(vr.regions[:i], vr.regions[i+1:]...)
	return true
}

/// Clear drops every region, decrementing the mapcount on any shared file
/// mapping so the last unmapper can release the backing pages.
func (vr *Vmregion_t) Clear() {
	for _, r := range vr.regions {
		if r.Mtype == VFILE && r.file.mfile != nil {
			r.file.mfile.mapcount--
		}
	}
	vr.regions = nil
}
