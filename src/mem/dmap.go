package mem

import "runtime"
import "sync"
import "unsafe"

// Virtual address space layout (amd64, 4-level paging). PML4 slots VREC
// through VEND hold kernel bookkeeping (the recursive self-map and the
// direct map); user mappings start at slot VUSER.

/// VREC is the PML4 slot of the recursive self-map: walking through this
/// slot N times dereferences a page table N levels down, letting the
/// kernel edit any page table via ordinary loads/stores instead of a
/// separate "physical memory window" per level.
const VREC = 0x42

/// VDIRECT is the PML4 slot where all of physical memory is linearly
/// mapped, so Dmap can translate any physical address to a virtual one
/// with simple arithmetic rather than a page-table walk.
const VDIRECT = 0x44

/// VEND marks the first PML4 slot past kernel-reserved space.
const VEND = 0x50

/// VUSER is the first PML4 slot available to user mappings.
const VUSER = 0x59

/// USERMIN is the lowest virtual address a user mapping may occupy.
const USERMIN int = VUSER << 39

/// DMAPLEN is the size in bytes of the direct-map window.
const DMAPLEN = uintptr(1) << 39

/// Vdirect is the base virtual address of the direct-map window.
const Vdirect = uintptr(VDIRECT) << 39

/// Dmaplen reports DMAPLEN as an int.
func Dmaplen() int {
	return int(DMAPLEN)
}

/// Dmaplen32 reports DMAPLEN truncated to uint32, for 32-bit arithmetic
/// sites that only ever compare against small offsets.
func Dmaplen32() uint32 {
	return uint32(DMAPLEN)
}

func pgbits(v uintptr) (uint, uint, uint, uint) {
	lp4 := uint((v >> 39) & 0x1ff)
	lp3 := uint((v >> 30) & 0x1ff)
	lp2 := uint((v >> 21) & 0x1ff)
	lp1 := uint((v >> 12) & 0x1ff)
	return lp4, lp3, lp2, lp1
}

// caddr builds a canonical address through the recursive self-map slot l4,
// with the indices a-d OR'd into the four table-index fields;
// caddr(VREC, VREC, VREC, VREC, VREC) addresses the PML4 itself.
func caddr(l4 uint, a, b, c, d uint) *Pmap_t {
	pte := uintptr(a)<<(12+9*3) | uintptr(b)<<(12+9*2) |
		uintptr(c)<<(12+9*1) | uintptr(d)<<(12+9*0)
	ptead := uintptr(l4)<<39 | uintptr(l4)<<30 | uintptr(l4)<<21 | uintptr(l4)<<12
	ptead |= pte
	if l4 >= 0x100 {
		ptead |= 0xffff << 48
	}
	return (*Pmap_t)(mkpg(ptead))
}

func mkpg(va uintptr) unsafe.Pointer {
	return unsafe.Pointer(va)
}

/// Kent_t pairs a PML4 slot with the entry that should live there.
type Kent_t struct {
	Pml4slot int
	Entry    Pa_t
}

var Zerobpg *Bytepg_t

/// P_zeropg is the physical address backing Zeropg/Zerobpg.
var P_zeropg Pa_t

/// Kents lists the kernel-reserved PML4 entries every address space shares
/// (recursive slot, direct map, kernel text/data).
var Kents []Kent_t

var kpglock sync.Mutex
var kpgadd_slots = map[int]*Pmap_t{}

// pgtracker_t records which kernel pmaps have had a given kernel page
// table page installed already, so installing a new kernel mapping can
// walk every existing address space exactly once.
type pgtracker_t map[int]*Pmap_t

var Pgtracker = pgtracker_t{}

/// Kpmapp returns a pointer to the canonical kernel pmap (PML4) via the
/// recursive self-map.
func Kpmapp() *Pmap_t {
	return caddr(VREC, VREC, VREC, VREC, VREC)
}

/// Kpmap dereferences the kernel pmap.
func Kpmap() *Pmap_t {
	return Kpmapp()
}

// gbpages reports whether the CPU supports 1GB pages (checked via CPUID
// leaf 0x80000001, bit 26 of EDX).
func gbpages() bool {
	_, _, _, edx := runtime.Cpuid(0x80000001, 0)
	return edx&(1<<26) != 0
}

// globalpages reports whether global (PTE_G) pages are both supported
// (CPUID leaf 1, EDX bit 13) and enabled (CR4.PGE).
func globalpages() bool {
	_, _, _, edx := runtime.Cpuid(0x1, 0)
	if edx&(1<<13) == 0 {
		return false
	}
	return runtime.Rcr4()&(1<<7) != 0
}

/// Dmap_init installs the direct map covering all of physical memory,
/// using 1GB pages when the CPU supports them and 2MB pages otherwise, and
/// freezes the PML4 so user forks copy this structure without racing the
/// installer.
func Dmap_init() {
	var startpg uintptr
	sz := DMAPLEN
	pt1 := runtime.Vtop(new(Pmap_t))
	bigpages := gbpages()
	globals := globalpages()

	var flags Pa_t = PTE_P | PTE_W
	if globals {
		flags |= PTE_G
	}

	pml4 := Kpmap()
	pml4slot := VDIRECT

	if bigpages {
		pdpt := (*Pmap_t)(mkpg(uintptr(pt1)))
		pml4[pml4slot] = Pa_t(pt1) | flags
		n := uintptr(1) << 30
		for i := 0; i < 512; i++ {
			pdpt[i] = Pa_t(startpg) | flags | PTE_PS
			startpg += n
		}
	} else {
		pdpt := (*Pmap_t)(mkpg(uintptr(pt1)))
		pml4[pml4slot] = Pa_t(pt1) | flags
		n := uintptr(1) << 21
		pdcount := int(sz / (uintptr(1) << 30))
		if pdcount < 1 {
			pdcount = 1
		}
		for pdi := 0; pdi < pdcount && pdi < 512; pdi++ {
			pdpg := runtime.Get_phys()
			pd := (*Pmap_t)(mkpg(uintptr(pdpg)))
			pdpt[pdi] = Pa_t(pdpg) | flags
			for i := 0; i < 512; i++ {
				pd[i] = Pa_t(startpg) | flags | PTE_PS
				startpg += n
			}
		}
	}

	runtime.Pml4freeze()

	Kents = append(Kents, Kent_t{Pml4slot: pml4slot, Entry: pml4[pml4slot]})

	phys := Physmem
	phys.Dmapinit = true

	pg, p_pg, ok := phys._refpg_new()
	if !ok {
		panic("no mem for zero page")
	}
	Zeropg = pg
	Zerobpg = Pg2bytes(pg)
	P_zeropg = p_pg
}
