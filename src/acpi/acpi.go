// Package acpi locates and validates the firmware ACPI tables: the RSDP
// handed to the kernel by the bootloader's tag list, the RSDT/XSDT it
// points at, and every table reachable from there (FADT, MADT, HPET, MCFG,
// DSDT, SSDTs, TPM2, FACS). Each recognized table is kept in a
// name-indexed map the aml package and reboot/shutdown path consult.
//
// Table memory is supplied by the caller as already-mapped byte slices
// (the bootloader's tag list or an identity-mapped physical range) rather
// than walked via raw pointers, so this package has no unsafe dependency
// on a particular address-space layout -- callers on the real boot path
// hand in mem.Physmem.Dmap-backed slices.
package acpi

import "encoding/binary"
import "fmt"

import "defs"

const (
	acpiRev1     uint8 = 0
	acpiRev2Plus uint8 = 2
)

// rsdpSignature is the fixed 8-byte magic at the start of an RSDP.
var rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

const fadtSignature = "FACP"
const madtSignature = "APIC"
const facsSignature = "FACS"

/// SDTHeader is the common header every ACPI table starts with.
type SDTHeader struct {
	Signature  [4]byte
	Length     uint32
	Revision   uint8
	Checksum   uint8
	OEMID      [6]byte
	OEMTableID [8]byte
}

func parseHeader(b []byte) (SDTHeader, defs.Err_t) {
	var h SDTHeader
	if len(b) < 36 {
		return h, -defs.EIO
	}
	copy(h.Signature[:], b[0:4])
	h.Length = binary.LittleEndian.Uint32(b[4:8])
	h.Revision = b[8]
	h.Checksum = b[9]
	copy(h.OEMID[:], b[10:16])
	copy(h.OEMTableID[:], b[16:24])
	return h, 0
}

func checksum(b []byte) bool {
	var sum uint8
	for _, c := range b {
		sum += c
	}
	return sum == 0
}

/// Table_t is a fully-mapped, checksum-validated ACPI table: its header
/// fields plus the raw bytes (header included) for type-specific parsing.
type Table_t struct {
	SDTHeader
	Raw []byte
}

/// Driver_t owns the discovered table set once RSDT/XSDT enumeration
/// completes.
type Driver_t struct {
	useXSDT bool
	tables  map[string]*Table_t
}

/// Lookup finds a table by its 4-byte signature (e.g. "FACP", "APIC").
func (d *Driver_t) Lookup(signature string) (*Table_t, bool) {
	t, ok := d.tables[signature]
	return t, ok
}

/// Reader_i abstracts "map this physical range and hand me its bytes",
/// the one piece of platform-specific plumbing table discovery needs.
// Implementations on the real boot path wrap mem.Physmem.Dmap; tests can
// supply a flat byte-array reader instead.
type Reader_i interface {
	ReadPhys(addr uintptr, length int) []byte
}

/// LocateRSDP scans [lo, hi) for a 16-byte-aligned RSDP signature within
/// already-mapped memory (the BIOS reserves 0xe0000-0xfffff for this).
/// It returns the physical address of the RSDT/XSDT and whether the
/// extended (64-bit, XSDT) form applies.
func LocateRSDP(r Reader_i, lo, hi uintptr) (uintptr, bool, defs.Err_t) {
	const align = 16
	region := r.ReadPhys(lo, int(hi-lo))
	for off := 0; off+36 <= len(region); off += align {
		if !matchSig(region[off:off+8], rsdpSignature) {
			continue
		}
		rev := region[off+15]
		if rev == acpiRev1 {
			if !checksum(region[off : off+20]) {
				continue
			}
			rsdt := binary.LittleEndian.Uint32(region[off+16 : off+20])
			return uintptr(rsdt), false, 0
		}
		// Extended RSDP: length at +20, XSDT addr at +24, ext checksum +32.
		if off+33 > len(region) {
			continue
		}
		extlen := int(binary.LittleEndian.Uint32(region[off+20 : off+24]))
		if off+extlen > len(region) || !checksum(region[off:off+extlen]) {
			continue
		}
		xsdt := binary.LittleEndian.Uint64(region[off+24 : off+32])
		return uintptr(xsdt), true, 0
	}
	return 0, false, -defs.ENOENT
}

func matchSig(b []byte, sig [8]byte) bool {
	for i := range sig {
		if b[i] != sig[i] {
			return false
		}
	}
	return true
}

/// Enumerate walks the RSDT or XSDT at rsdtAddr, mapping and
/// checksum-validating every table it points to, plus the DSDT reachable
/// through the FADT. Tables that fail their checksum are skipped rather
/// than aborting discovery.
func Enumerate(r Reader_i, rsdtAddr uintptr, useXSDT bool) (*Driver_t, defs.Err_t) {
	drv := &Driver_t{useXSDT: useXSDT, tables: make(map[string]*Table_t)}

	root, err := mapTable(r, rsdtAddr)
	if err != 0 {
		return nil, err
	}

	entrySize := 4
	if useXSDT {
		entrySize = 8
	}
	payload := root.Raw[36:root.Length]
	n := len(payload) / entrySize
	for i := 0; i < n; i++ {
		var addr uintptr
		if useXSDT {
			addr = uintptr(binary.LittleEndian.Uint64(payload[i*8 : i*8+8]))
		} else {
			addr = uintptr(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
		}
		t, err := mapTable(r, addr)
		if err != 0 {
			continue
		}
		sig := string(t.Signature[:])
		drv.tables[sig] = t

		if sig == fadtSignature {
			if dsdt, ok := dsdtFromFADT(r, t); ok {
				drv.tables[string(dsdt.Signature[:])] = dsdt
			}
		}
	}
	return drv, 0
}

func mapTable(r Reader_i, addr uintptr) (*Table_t, defs.Err_t) {
	hdrBytes := r.ReadPhys(addr, 36)
	h, err := parseHeader(hdrBytes)
	if err != 0 {
		return nil, err
	}
	full := r.ReadPhys(addr, int(h.Length))
	if !checksum(full) {
		return nil, -defs.EILSEQ
	}
	return &Table_t{SDTHeader: h, Raw: full}, 0
}

// dsdtFromFADT extracts the DSDT address from a mapped FADT, preferring
// the 64-bit extended field on ACPI 2.0+.
func dsdtFromFADT(r Reader_i, fadt *Table_t) (*Table_t, bool) {
	if len(fadt.Raw) < 44 {
		return nil, false
	}
	dsdtAddr := uintptr(binary.LittleEndian.Uint32(fadt.Raw[40:44]))
	if fadt.Revision >= acpiRev2Plus && len(fadt.Raw) >= 148 {
		ext := binary.LittleEndian.Uint64(fadt.Raw[140:148])
		if ext != 0 {
			dsdtAddr = uintptr(ext)
		}
	}
	t, err := mapTable(r, dsdtAddr)
	if err != 0 {
		return nil, false
	}
	return t, true
}

/// FADT is the subset of the Fixed ACPI Description Table the reboot and
/// sleep-state paths need: the PM1a control and event blocks, the SMI
/// command port and ACPI-enable value, and the ACPI 5.0+ reset register.
type FADT struct {
	PM1aControlBlock uint32
	PM1aEventBlock   uint32
	SMICommandPort   uint32
	AcpiEnable       uint8
	ResetRegAddr     uint32 // system-I/O-space only, the common case
	ResetValue       uint8
	HasResetReg      bool
}

/// ParseFADT decodes the fixed-layout fields of a FADT table previously
/// returned by Enumerate/Lookup("FACP").
func ParseFADT(t *Table_t) (FADT, defs.Err_t) {
	var f FADT
	b := t.Raw
	if len(b) < 45 {
		return f, -defs.EIO
	}
	f.SMICommandPort = binary.LittleEndian.Uint32(b[48:52])
	f.AcpiEnable = b[52]
	f.PM1aEventBlock = binary.LittleEndian.Uint32(b[56:60])
	f.PM1aControlBlock = binary.LittleEndian.Uint32(b[64:68])
	if len(b) >= 129 {
		// ResetReg is a GenericAddress{space,width,offset,access,addr64};
		// only the system-I/O-space case (most common in practice) is
		// decoded into the 32-bit port getter below.
		space := b[108]
		addr := binary.LittleEndian.Uint64(b[112:120])
		f.ResetValue = b[128]
		if space == 1 { // AddressSpaceSysIO
			f.ResetRegAddr = uint32(addr)
			f.HasResetReg = true
		}
	}
	return f, 0
}

/// String renders a table's signature and length for diagnostic listing.
func (t *Table_t) String() string {
	return fmt.Sprintf("%s (%d bytes, oem=%s)", string(t.Signature[:]), t.Length, string(t.OEMID[:]))
}
