// Package msi tracks the CPU-local vector pool used by message-signaled
// interrupts and computes the address/data pair a PCI device's MSI or
// MSI-X capability must be programmed with to target a given CPU.
package msi

import "sync"

/// Msivec_t names a vector reserved for MSI/MSI-X use. The top of the
/// vector space is carved out for devices; the low vectors stay reserved
// for CPU exceptions, the syscall gate, IPIs and the legacy PIC range.
type Msivec_t uint

const (
	// MsiVecLo/MsiVecHi bound the vector range the allocator hands out.
	// 32-55 are reserved for ISA/IOAPIC lines and the syscall and IPI
	// vectors; the spurious vector is 255, above MsiVecHi. 56-239 are
	// handed out for MSI.
	MsiVecLo Msivec_t = 56
	MsiVecHi Msivec_t = 239
)

/// Msivecs_t is a per-system pool of free MSI vectors.
type Msivecs_t struct {
	sync.Mutex
	avail map[Msivec_t]bool
}

var msivecs = Msivecs_t{avail: initPool()}

func initPool() map[Msivec_t]bool {
	m := make(map[Msivec_t]bool, int(MsiVecHi-MsiVecLo)+1)
	for v := MsiVecLo; v <= MsiVecHi; v++ {
		m[v] = true
	}
	return m
}

/// Msi_alloc removes and returns an available MSI vector. It panics if the
/// pool is exhausted -- a system with that many distinct MSI sources has
/// bigger problems than a clean error return.
func Msi_alloc() Msivec_t {
	msivecs.Lock()
	defer msivecs.Unlock()

	for v := range msivecs.avail {
		delete(msivecs.avail, v)
		return v
	}
	panic("no more MSI vecs")
}

/// Msi_free returns a previously allocated vector to the pool.
func Msi_free(vector Msivec_t) {
	msivecs.Lock()
	defer msivecs.Unlock()

	if msivecs.avail[vector] {
		panic("double free")
	}
	msivecs.avail[vector] = true
}

/// Msimsg_t is the address/data pair a device's MSI or MSI-X capability
/// table is programmed with. Writing Data words to Addr raises the named
/// vector on the targeted CPU's local APIC.
type Msimsg_t struct {
	Addr uint64
	Data uint32
}

// x86 MSI address format: bits 31:20 are the fixed 0xFEE prefix that
// routes the write to the local APIC address space, bits 19:12 carry the
// destination APIC id, bit 3 selects redirection hint, bit 2 selects
// logical vs physical destination mode.
const msiAddrBase uint64 = 0xFEE00000

/// For_cpu computes the address/data pair that targets the local APIC of
/// the given destination APIC id with the given vector, delivered as a
/// fixed (non-NMI, non-SMI) interrupt.
func For_cpu(apicid uint32, vector Msivec_t) Msimsg_t {
	return Msimsg_t{
		Addr: msiAddrBase | (uint64(apicid) << 12),
		Data: uint32(vector),
	}
}
