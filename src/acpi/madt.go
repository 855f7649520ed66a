package acpi

import "encoding/binary"

/// MADTEntryType identifies the variant of a MADT record.
type MADTEntryType uint8

const (
	MADTLocalAPIC MADTEntryType = iota
	MADTIOAPIC
	MADTIntSrcOverride
	MADTNMI
)

/// MADTLocalAPIC_t describes one physical processor and its local
/// interrupt controller.
type MADTLocalAPIC_t struct {
	ProcessorID uint8
	APICID      uint8
	Enabled     bool
}

/// MADTIOAPIC_t describes an I/O APIC and the first global system
/// interrupt it handles.
type MADTIOAPIC_t struct {
	APICID           uint8
	Address          uint32
	SysInterruptBase uint32
}

/// MADTIntSrcOverride_t remaps a legacy ISA IRQ to a global system
/// interrupt number, needed because several ISA lines are rewired on
/// real hardware (the PIT's IRQ0 commonly lands on GSI 2).
type MADTIntSrcOverride_t struct {
	BusSrc          uint8
	IRQSrc          uint8
	GlobalInterrupt uint32
	Flags           uint16
}

/// MADT_t is the fully decoded Multiple APIC Description Table.
type MADT_t struct {
	LocalControllerAddr uint32
	Flags               uint32
	LocalAPICs          []MADTLocalAPIC_t
	IOAPICs             []MADTIOAPIC_t
	Overrides           []MADTIntSrcOverride_t
}

/// ParseMADT walks the variable-length entry list following the MADT
/// header, dispatching on each entry's type byte.
func ParseMADT(t *Table_t) MADT_t {
	var m MADT_t
	b := t.Raw
	if len(b) < 44 {
		return m
	}
	m.LocalControllerAddr = binary.LittleEndian.Uint32(b[36:40])
	m.Flags = binary.LittleEndian.Uint32(b[40:44])

	off := 44
	for off+2 <= len(b) {
		typ := MADTEntryType(b[off])
		length := int(b[off+1])
		if length < 2 || off+length > len(b) {
			break
		}
		rec := b[off : off+length]
		switch typ {
		case MADTLocalAPIC:
			if length >= 8 {
				m.LocalAPICs = append(m.LocalAPICs, MADTLocalAPIC_t{
					ProcessorID: rec[2],
					APICID:      rec[3],
					Enabled:     binary.LittleEndian.Uint32(rec[4:8])&1 != 0,
				})
			}
		case MADTIOAPIC:
			if length >= 12 {
				m.IOAPICs = append(m.IOAPICs, MADTIOAPIC_t{
					APICID:           rec[2],
					Address:          binary.LittleEndian.Uint32(rec[4:8]),
					SysInterruptBase: binary.LittleEndian.Uint32(rec[8:12]),
				})
			}
		case MADTIntSrcOverride:
			if length >= 10 {
				m.Overrides = append(m.Overrides, MADTIntSrcOverride_t{
					BusSrc:          rec[2],
					IRQSrc:          rec[3],
					GlobalInterrupt: binary.LittleEndian.Uint32(rec[4:8]),
					Flags:           binary.LittleEndian.Uint16(rec[8:10]),
				})
			}
		}
		off += length
	}
	return m
}
