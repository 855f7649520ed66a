package aml

import "encoding/binary"

import "defs"

// _CRS buffers contain a stream of resource descriptors: small ones
// (single tag byte, length in the low 3 bits) and large ones (tag byte
// with the top bit set, followed by a 16-bit length). This package
// decodes only the two large-descriptor tags the CORE's bus-enumeration
// drivers consume.
const (
	tagFixedMemory32    = 0x86
	tagExtendedIRQ      = 0x89
	largeDescriptorMask = 0x80
)

/// FixedMemory32_t is the decoded 32-bit Fixed Memory Range descriptor
/// (tag 0x86, fixed length 9): a base address and length plus whether the
/// range is writable.
type FixedMemory32_t struct {
	WriteMutable bool
	Base         uint32
	Length       uint32
}

/// ExtendedIRQ_t is the decoded Extended Interrupt descriptor (tag 0x89,
/// variable length): a resource-consumer/producer flag, a trigger/polarity
/// byte, and one or more global system interrupt numbers.
type ExtendedIRQ_t struct {
	Flags     byte
	Interrupt []uint32
}

/// ParseCRS walks a _CRS buffer, returning every FixedMemory32 and
/// ExtendedIRQ descriptor it contains. Unrecognized descriptor tags are
/// skipped using their own length field -- the CRS stream's length-prefix
/// discipline lets this package step over descriptors it does not parse
/// without losing its place in the buffer, unlike the AML opcode parser
/// where an unsupported opcode must abort.
func ParseCRS(buf []byte) ([]FixedMemory32_t, []ExtendedIRQ_t, defs.Err_t) {
	var mems []FixedMemory32_t
	var irqs []ExtendedIRQ_t

	pos := 0
	for pos < len(buf) {
		tag := buf[pos]
		if tag&largeDescriptorMask == 0 {
			// Small descriptor: bits 3-6 are the tag, bits 0-2 are length.
			length := int(tag & 0x7)
			pos += 1 + length
			if tag>>3 == 0xf { // End Tag
				break
			}
			continue
		}

		if pos+3 > len(buf) {
			return mems, irqs, -defs.EIO
		}
		length := int(binary.LittleEndian.Uint16(buf[pos+1 : pos+3]))
		body := buf[pos+3:]
		if length > len(body) {
			return mems, irqs, -defs.EIO
		}
		body = body[:length]

		switch tag {
		case tagFixedMemory32:
			if length != 9 {
				return mems, irqs, -defs.EILSEQ
			}
			mems = append(mems, FixedMemory32_t{
				WriteMutable: body[0]&1 != 0,
				Base:         binary.LittleEndian.Uint32(body[1:5]),
				Length:       binary.LittleEndian.Uint32(body[5:9]),
			})
		case tagExtendedIRQ:
			if length < 2 {
				return mems, irqs, -defs.EILSEQ
			}
			flags := body[0]
			count := int(body[1])
			ent := ExtendedIRQ_t{Flags: flags}
			off := 2
			for i := 0; i < count && off+4 <= len(body); i++ {
				ent.Interrupt = append(ent.Interrupt, binary.LittleEndian.Uint32(body[off:off+4]))
				off += 4
			}
			irqs = append(irqs, ent)
		}
		pos += 3 + length
	}
	return mems, irqs, 0
}
