package vm

import "defs"
import "fdops"
import "mem"

// Re-exported so the rest of this package can write PTE_W instead of
// mem.PTE_W; the page-table bit layout is mem's concern, address-space
// policy (COW, region lookup, fault handling) is vm's.
const (
	PGSHIFT  = mem.PGSHIFT
	PGSIZE   = mem.PGSIZE
	PGOFFSET = mem.PGOFFSET
	PGMASK   = mem.PGMASK

	PTE_P      = mem.PTE_P
	PTE_W      = mem.PTE_W
	PTE_U      = mem.PTE_U
	PTE_G      = mem.PTE_G
	PTE_PWT    = mem.PTE_PWT
	PTE_PCD    = mem.PTE_PCD
	PTE_PS     = mem.PTE_PS
	PTE_A      = mem.PTE_A
	PTE_D      = mem.PTE_D
	PTE_NX     = mem.PTE_NX
	PTE_COW    = mem.PTE_COW
	PTE_WASCOW = mem.PTE_WASCOW
	PTE_ADDR   = mem.PTE_ADDR
)

/// Prot_t is the protection/cache-mode mask a caller passes to mmap-style
/// address space operations; it is distinct from the PTE_* bits because a
/// caller never gets to specify PTE_P/PTE_COW/PTE_WASCOW directly -- the
/// fault handler derives those.
type Prot_t uint

const (
	PROT_R  Prot_t = 1 << iota /// readable (always implied; kept for symmetry)
	PROT_W                     /// writable
	PROT_X                     /// executable
	PROT_UC                    /// uncacheable
	PROT_WC                    /// write-combining
	PROT_WB                    /// write-back (default when no cache bit set)
)

/// ValidateProt rejects protection requests the hardware cannot express:
/// simultaneously writable and executable, or more than one cache mode.
func ValidateProt(p Prot_t) bool {
	if p&PROT_W != 0 && p&PROT_X != 0 {
		return false
	}
	n := 0
	for _, b := range []Prot_t{PROT_UC, PROT_WC, PROT_WB} {
		if p&b != 0 {
			n++
		}
	}
	return n <= 1
}

/// ProtToPerms converts a Prot_t into the PTE_U/PTE_W bits _mkvmi expects.
/// PROT_X is validated but otherwise inert here: no PTE_NX bit is
/// produced, and Sys_pgfault does not set PTE_NX in the entries it
/// installs, so user mappings are not marked non-executable.
func ProtToPerms(p Prot_t) mem.Pa_t {
	var perms mem.Pa_t = PTE_U
	if p&PROT_W != 0 {
		perms |= PTE_W
	}
	return perms
}

/// mtype_t classifies how a Vminfo_t's pages are filled on first fault.
type mtype_t uint

const (
	/// VANON is a private anonymous mapping, fault-filled from the zero
	/// page and broken into private copies on write.
	VANON mtype_t = iota
	/// VFILE is a mapping backed by an open file description, either
	/// private (copy-on-write over file contents) or shared.
	VFILE
	/// VSANON is a shared anonymous mapping; all its pages must already
	/// be resident, since there is no file to refault them back in from.
	VSANON
)

/// Mfile_t is the file-backing state for a VFILE region, shared by every
/// Vminfo_t mapping the same file range so a shared mapping's page is
/// installed at most once.
type Mfile_t struct {
	mfops    fdops.Fdops_i
	unpin    mem.Unpin_i
	mapcount int
}

type file_t struct {
	foff   int
	mfile  *Mfile_t
	shared bool
}

/// Vminfo_t describes one mapped region of an address space: a page-number
/// range, its permissions, and how faults within it are resolved.
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr
	Pglen int
	Perms uint
	file  file_t
}

/// Ptefor returns the PTE for uva within this region, allocating
/// intermediate page-table levels as needed but never a leaf mapping.
func (vmi *Vminfo_t) Ptefor(pmap *mem.Pmap_t, uva uintptr) (*mem.Pa_t, bool) {
	// intermediate (non-leaf) entries are always U|W; restricting access
	// happens only at the leaf PTE, which the caller fills in separately.
	pte, err := pmap_walk(pmap, int(uva), PTE_U|PTE_W)
	if err != 0 {
		return nil, false
	}
	return pte, true
}

/// Filepage returns the page backing the file offset for faultaddr,
/// reading it in via the region's file operations if it is not already
/// cached. The caller is responsible for Refdown'ing the returned physical
/// address if it does not install it into a PTE (mirrors mem.Refpg_new).
func (vmi *Vminfo_t) Filepage(faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	pgn := int((faultaddr >> PGSHIFT) - vmi.Pgn)
	mmapinfo, err := vmi.file.mfile.mfops.Mmapi(vmi.file.foff+pgn*PGSIZE, 1, true)
	if err != 0 {
		return nil, 0, err
	}
	if len(mmapinfo) != 1 {
		panic("how")
	}
	p_pg := mem.Pa_t(mmapinfo[0].Phys)
	return mem.Physmem.Dmap(p_pg), p_pg, 0
}

/// Pmap_lookup returns the PTE for va without creating missing
/// intermediate tables, or nil if one is absent.
func Pmap_lookup(pmap *mem.Pmap_t, va int) *mem.Pa_t {
	pte, _ := pmap_walk_opt(pmap, va, false, 0)
	return pte
}

// pmap_walk descends the 4-level page table rooted at pmap, creating any
// missing intermediate (non-leaf) tables along the way with the given
// permissions, and returns the leaf PTE for va.
func pmap_walk(pmap *mem.Pmap_t, va int, perms mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	return pmap_walk_opt(pmap, va, true, perms)
}

func pmap_walk_opt(pmap *mem.Pmap_t, va int, create bool, perms mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	uva := uintptr(va)
	idxs := [3]int{
		int((uva >> 39) & 0x1ff),
		int((uva >> 30) & 0x1ff),
		int((uva >> 21) & 0x1ff),
	}
	l1 := int((uva >> 12) & 0x1ff)

	cur := pmap
	for _, idx := range idxs {
		if cur[idx]&PTE_P == 0 {
			if !create {
				return nil, 0
			}
			np, p_np, ok := mem.Physmem.Pmap_new()
			if !ok {
				return nil, -defs.ENOMEM
			}
			cur[idx] = p_np | perms | PTE_P
			cur = np
		} else {
			cur = mem.Pg2pmap(mem.Physmem.Dmap(cur[idx] & PTE_ADDR))
		}
	}
	return &cur[l1], 0
}
