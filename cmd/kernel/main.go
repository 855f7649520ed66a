// Command kernel is the deterministic bring-up sequence: the one place
// that runs before any subsystem can assume the others are ready. There
// is no teacher analogue to adapt here -- the reference kernel's own
// bootstrap lives in assembly and a patched runtime fork, neither of
// which are Go source this tree can read -- so the ordering below is
// built directly from what each subsystem's own package requires before
// its exported functions may be called.
package main

import (
	"acpi"
	"arch"
	"bootinfo"
	"console"
	"irq"
	"mem"
	"mptable"
	"proc"
)

// physReader adapts mem.Physmem's page-granular Dmap8 into the flat
// ReadPhys(addr, length) shape acpi.Reader_i, bootinfo.Parse's caller,
// and mptable.Reader_i all share, stitching page-boundary-crossing reads
// together a byte page at a time.
type physReader struct{}

func (physReader) ReadPhys(addr uintptr, length int) []byte {
	out := make([]byte, 0, length)
	for len(out) < length {
		pg := mem.Physmem.Dmap8(mem.Pa_t(addr))
		n := length - len(out)
		if n > len(pg) {
			n = len(pg)
		}
		out = append(out, pg[:n]...)
		addr += uintptr(n)
	}
	return out
}

// multibootInfoAddr is the physical address the loader left in %ebx at
// kernel entry; the entry stub (not Go source) stashes it here before
// calling into this package. A zero value means no loader handed one
// off, forcing the BIOS-area RSDP/MP-table scan path.
var multibootInfoAddr uintptr

func main() {
	r := physReader{}

	var rsdp uintptr
	var haveRSDP bool
	useXSDT := false

	if multibootInfoAddr != 0 {
		hdr := r.ReadPhys(multibootInfoAddr, 8)
		total := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16 | int(hdr[3])<<24
		if info, err := bootinfo.Parse(r.ReadPhys(multibootInfoAddr, total)); err == nil && len(info.RSDP) >= 20 {
			// The 32-bit RSDT address sits at offset 16 in both RSDP forms.
			rsdp = uintptr(le64(info.RSDP[16:20]))
			haveRSDP = true
		}
	}
	if !haveRSDP {
		if addr, xsdt, err := acpi.LocateRSDP(r, 0xe0000, 0x100000); err == 0 {
			rsdp = addr
			useXSDT = xsdt
			haveRSDP = true
		}
	}

	var lapicBase uintptr = 0xfee00000
	var ioapicBase uintptr = 0xfec00000
	var gsiBase uint32
	var apicids []uint32

	gotMADT := false
	if haveRSDP {
		if drv, err := acpi.Enumerate(r, rsdp, useXSDT); err == 0 {
			if t, ok := drv.Lookup("APIC"); ok {
				madt := acpi.ParseMADT(t)
				lapicBase = uintptr(madt.LocalControllerAddr)
				for _, la := range madt.LocalAPICs {
					if la.Enabled {
						apicids = append(apicids, uint32(la.APICID))
					}
				}
				if len(madt.IOAPICs) > 0 {
					ioapicBase = uintptr(madt.IOAPICs[0].Address)
					gsiBase = madt.IOAPICs[0].SysInterruptBase
				}
				gotMADT = true
			}
		}
	}
	if !gotMADT {
		if fp, ok := mptable.Locate(r); ok {
			if t, err := mptable.Parse(r, fp); err == nil {
				lapicBase = uintptr(t.LapicAddress)
				for _, cpu := range t.CPUs {
					if cpu.Enabled {
						apicids = append(apicids, uint32(cpu.ApicID))
					}
				}
				if len(t.IOAPICs) > 0 {
					ioapicBase = uintptr(t.IOAPICs[0].Address)
				}
			}
		}
	}
	if len(apicids) == 0 {
		apicids = []uint32{0}
	}

	a := arch.NewAmd64()
	arch.Set(a)
	arch.SetLAPICBase(lapicBase)
	irq.SetIPISender(a.CpuIPI)
	irq.SetController(irq.NewApicController(lapicBase, ioapicBase, gsiBase, apicids))

	console.Init()
	console.Printf("kernel: %d cpu(s) discovered, lapic=%#x ioapic=%#x\n", len(apicids), lapicBase, ioapicBase)

	if _, ok := proc.Lookup(1); !ok {
		console.Printf("kernel: no init process image available, halting\n")
	}

	console.Printf("kernel: bring-up complete\n")
	for {
		a.WaitForInterrupt()
	}
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}
