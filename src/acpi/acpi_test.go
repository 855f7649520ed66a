package acpi

import (
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"
)

// mmapReader backs Reader_i with an anonymous mmap'd region rather than a
// plain Go slice, so the test exercises the same "already-mapped window"
// shape the real boot path hands in (mem.Physmem.Dmap-backed), just
// sourced from the host OS's own VM subsystem instead of the kernel's.
type mmapReader struct {
	base []byte
}

func newMmapReader(t *testing.T, size int) *mmapReader {
	t.Helper()
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	t.Cleanup(func() { unix.Munmap(b) })
	return &mmapReader{base: b}
}

func (m *mmapReader) ReadPhys(addr uintptr, length int) []byte {
	return m.base[addr : addr+uintptr(length)]
}

func fixChecksum(b []byte, checksumOff int) {
	b[checksumOff] = 0
	var sum uint8
	for _, c := range b {
		sum += c
	}
	b[checksumOff] = -sum
}

func writeRSDPRev1(buf []byte, off int, rsdtAddr uint32) {
	copy(buf[off:], "RSD PTR ")
	buf[off+15] = acpiRev1
	binary.LittleEndian.PutUint32(buf[off+16:], rsdtAddr)
	fixChecksum(buf[off:off+20], 8)
}

func writeSDTHeader(buf []byte, off int, sig string, length uint32, revision uint8) {
	copy(buf[off:], sig)
	binary.LittleEndian.PutUint32(buf[off+4:], length)
	buf[off+8] = revision
}

func TestLocateRSDPRev1(t *testing.T) {
	r := newMmapReader(t, 0x20000)
	const rsdpOff = 0x1040
	writeRSDPRev1(r.base, rsdpOff, 0x3000)

	addr, xsdt, err := LocateRSDP(r, 0x1000, 0x1000+0x10000)
	if err != 0 {
		t.Fatalf("LocateRSDP failed: %v", err)
	}
	if xsdt {
		t.Fatalf("expected rev-1 RSDP, got XSDT form")
	}
	if addr != 0x3000 {
		t.Fatalf("rsdt addr = %#x, want 0x3000", addr)
	}
}

func TestLocateRSDPNotFound(t *testing.T) {
	r := newMmapReader(t, 0x10000)
	_, _, err := LocateRSDP(r, 0, 0x10000)
	if err == 0 {
		t.Fatalf("expected ENOENT over a region with no signature")
	}
}

func TestEnumerateRSDTAndMADT(t *testing.T) {
	r := newMmapReader(t, 0x10000)

	const rsdtOff = 0x3000
	const madtOff = 0x4000

	// MADT: header (36) + LocalControllerAddr(4) + Flags(4) + one
	// MADTLocalAPIC entry (type 0, length 8).
	madtLen := 36 + 8 + 8
	writeSDTHeader(r.base, madtOff, madtSignature, uint32(madtLen), 1)
	binary.LittleEndian.PutUint32(r.base[madtOff+36:], 0xfee00000)
	entry := r.base[madtOff+44:]
	entry[0] = 0 // MADTLocalAPIC
	entry[1] = 8 // length
	entry[2] = 0 // processor id
	entry[3] = 0 // apic id
	binary.LittleEndian.PutUint32(entry[4:], 1) // enabled
	fixChecksum(r.base[madtOff:madtOff+madtLen], 9)

	// RSDT: header(36) + one 4-byte pointer to the MADT.
	rsdtLen := 36 + 4
	writeSDTHeader(r.base, rsdtOff, "RSDT", uint32(rsdtLen), 1)
	binary.LittleEndian.PutUint32(r.base[rsdtOff+36:], uint32(madtOff))
	fixChecksum(r.base[rsdtOff:rsdtOff+rsdtLen], 9)

	drv, err := Enumerate(r, rsdtOff, false)
	if err != 0 {
		t.Fatalf("Enumerate failed: %v", err)
	}
	tbl, ok := drv.Lookup("APIC")
	if !ok {
		t.Fatalf("MADT not found after enumeration")
	}
	m := ParseMADT(tbl)
	if m.LocalControllerAddr != 0xfee00000 {
		t.Fatalf("LocalControllerAddr = %#x, want 0xfee00000", m.LocalControllerAddr)
	}
	if len(m.LocalAPICs) != 1 || !m.LocalAPICs[0].Enabled {
		t.Fatalf("expected one enabled local APIC, got %+v", m.LocalAPICs)
	}
}

func TestEnumerateSkipsBadChecksum(t *testing.T) {
	r := newMmapReader(t, 0x10000)
	const rsdtOff = 0x3000
	const badOff = 0x4000

	writeSDTHeader(r.base, badOff, madtSignature, 40, 1)
	// Deliberately leave checksum wrong (zero header bytes sum non-zero).

	rsdtLen := 36 + 4
	writeSDTHeader(r.base, rsdtOff, "RSDT", uint32(rsdtLen), 1)
	binary.LittleEndian.PutUint32(r.base[rsdtOff+36:], uint32(badOff))
	fixChecksum(r.base[rsdtOff:rsdtOff+rsdtLen], 9)

	drv, err := Enumerate(r, rsdtOff, false)
	if err != 0 {
		t.Fatalf("Enumerate failed outright: %v", err)
	}
	if _, ok := drv.Lookup("APIC"); ok {
		t.Fatalf("checksum-invalid table should have been skipped")
	}
}
