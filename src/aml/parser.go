package aml

import "defs"

// Opcode bytes this package understands. Two-byte opcodes are prefixed
// with extOp (0x5b); anything else encountered during parsing is rejected
// rather than skipped.
const (
	zeroOp      = 0x00
	oneOp       = 0x01
	aliasOp     = 0x06
	nameOp      = 0x08
	bytePrefix  = 0x0a
	wordPrefix  = 0x0b
	dwordPrefix = 0x0c
	stringPrfx  = 0x0d
	qwordPrefix = 0x0e
	scopeOp     = 0x10
	bufferOp    = 0x11
	packageOp   = 0x12
	methodOp    = 0x14
	extOp       = 0x5b
	mutexOp     = 0x01 // under extOp
	eventOp     = 0x02 // under extOp
	deviceOp    = 0x82 // under extOp
	powerResOp  = 0x84 // under extOp
	procOp      = 0x83 // under extOp
	thermalOp   = 0x85 // under extOp
	opRegionOp  = 0x80 // under extOp
	fieldOp     = 0x81 // under extOp
	onesOp      = 0xff
)

/// Parser_t decodes a DSDT/SSDT AML byte stream into the namespace rooted
/// at Root, covering the object-definition subset this package supports.
type Parser_t struct {
	buf  []byte
	pos  int
	Root *Entity_t
}

/// NewParser creates a parser over the AML bytecode following an SDT
/// header (the caller strips the 36-byte ACPI table header first).
func NewParser(buf []byte, root *Entity_t) *Parser_t {
	return &Parser_t{buf: buf, Root: root}
}

func (p *Parser_t) byte() (byte, defs.Err_t) {
	if p.pos >= len(p.buf) {
		return 0, -defs.EIO
	}
	b := p.buf[p.pos]
	p.pos++
	return b, 0
}

// pkgLength decodes AML's variable-length PkgLength encoding: the high two
// bits of the first byte count the 0-3 length bytes that follow. With none,
// the low six bits are the whole length; otherwise the low nibble holds the
// length's lowest four bits and each following byte the next eight.
func (p *Parser_t) pkgLength() (int, defs.Err_t) {
	lead, err := p.byte()
	if err != 0 {
		return 0, err
	}
	nbytes := int(lead >> 6)
	if nbytes == 0 {
		return int(lead & 0x3f), 0
	}
	length := int(lead & 0xf)
	for i := 0; i < nbytes; i++ {
		b, err := p.byte()
		if err != 0 {
			return 0, err
		}
		length |= int(b) << (4 + 8*i)
	}
	return length, 0
}

// nameString reads a 4-character NameSeg (this subset does not implement
// multi-segment NamePath prefixes like DualNamePrefix/MultiNamePrefix or
// the root/parent prefixes '\\'/'^', which the covered tables do not use
// for the objects this package cares about).
func (p *Parser_t) nameString() (string, defs.Err_t) {
	if p.pos+4 > len(p.buf) {
		return "", -defs.EIO
	}
	s := string(p.buf[p.pos : p.pos+4])
	p.pos += 4
	return s, 0
}

/// ParseTermList parses AML terms into scope until end, adding any
/// NameDef/Device/Scope/Method/etc. objects it recognizes as children of
/// scope. It returns ENOSYS on an opcode outside the covered subset.
func (p *Parser_t) ParseTermList(scope *Entity_t, end int) defs.Err_t {
	for p.pos < end {
		if err := p.parseOne(scope); err != 0 {
			return err
		}
	}
	return 0
}

func (p *Parser_t) parseOne(scope *Entity_t) defs.Err_t {
	op, err := p.byte()
	if err != 0 {
		return err
	}
	switch op {
	case nameOp:
		name, err := p.nameString()
		if err != 0 {
			return err
		}
		val, err := p.parseDataValue()
		if err != 0 {
			return err
		}
		scope.AddChild(&Entity_t{Kind: KNameDef, Name: name, Value: val})
		return 0
	case scopeOp:
		return p.parseScoped(scope, KScope)
	case methodOp:
		return p.parseMethod(scope)
	case bufferOp, packageOp:
		// Top-level buffer/package terms not bound by a preceding NameOp
		// are evaluated for side effects only; this subset has none, so
		// just skip over them. PkgLength counts from its own first byte,
		// matching the accounting parseScoped/parseMethod use.
		startPos := p.pos - 1
		length, err := p.pkgLength()
		if err != 0 {
			return err
		}
		target := startPos + 1 + length
		if target > len(p.buf) || target < p.pos {
			return -defs.EIO
		}
		p.pos = target
		return 0
	case extOp:
		return p.parseExt(scope)
	default:
		return -defs.ENOSYS
	}
}

// lenOfPkgLenSoFar is unused on the fast path; pkgLength already advanced
// p.pos past its own encoding, so the remaining payload is simply
// length bytes from the current position. Kept as a named no-op that
// records that invariant; nothing calls it.
func lenOfPkgLenSoFar(p *Parser_t) int { return 0 }

func (p *Parser_t) parseScoped(parent *Entity_t, kind Kind_t) defs.Err_t {
	startPos := p.pos - 1 // op byte already consumed
	length, err := p.pkgLength()
	if err != 0 {
		return err
	}
	end := startPos + 1 + length
	name, err := p.nameString()
	if err != 0 {
		return err
	}
	ent := &Entity_t{Kind: kind, Name: name}
	parent.AddChild(ent)
	return p.ParseTermList(ent, end)
}

func (p *Parser_t) parseMethod(parent *Entity_t) defs.Err_t {
	startPos := p.pos - 1
	length, err := p.pkgLength()
	if err != 0 {
		return err
	}
	end := startPos + 1 + length
	name, err := p.nameString()
	if err != 0 {
		return err
	}
	flags, err := p.byte()
	if err != 0 {
		return err
	}
	m := &Entity_t{
		Kind:        KMethod,
		Name:        name,
		MethodOff:   p.pos,
		MethodLen:   end - p.pos,
		MethodNargs: int(flags & 0x7),
	}
	parent.AddChild(m)
	p.pos = end
	return 0
}

func (p *Parser_t) parseExt(parent *Entity_t) defs.Err_t {
	sub, err := p.byte()
	if err != 0 {
		return err
	}
	switch sub {
	case deviceOp:
		return p.parseScoped(parent, KDevice)
	case powerResOp:
		startPos := p.pos - 2
		length, err := p.pkgLength()
		if err != 0 {
			return err
		}
		end := startPos + 2 + length
		name, err := p.nameString()
		if err != 0 {
			return err
		}
		// SystemLevel (byte) + ResourceOrder (word) follow the name.
		if p.pos+3 > end {
			return -defs.EIO
		}
		p.pos += 3
		ent := &Entity_t{Kind: KPowerResource, Name: name}
		parent.AddChild(ent)
		return p.ParseTermList(ent, end)
	case procOp:
		startPos := p.pos - 2
		length, err := p.pkgLength()
		if err != 0 {
			return err
		}
		end := startPos + 2 + length
		name, err := p.nameString()
		if err != 0 {
			return err
		}
		// ProcID (byte) + PblkAddr (dword) + PblkLen (byte).
		if p.pos+6 > end {
			return -defs.EIO
		}
		p.pos += 6
		ent := &Entity_t{Kind: KProcessor, Name: name}
		parent.AddChild(ent)
		return p.ParseTermList(ent, end)
	case thermalOp:
		return p.parseScoped(parent, KThermalZone)
	case mutexOp:
		name, err := p.nameString()
		if err != 0 {
			return err
		}
		if _, err := p.byte(); err != 0 { // SyncFlags
			return err
		}
		parent.AddChild(&Entity_t{Kind: KMutex, Name: name})
		return 0
	case eventOp:
		name, err := p.nameString()
		if err != 0 {
			return err
		}
		parent.AddChild(&Entity_t{Kind: KEvent, Name: name})
		return 0
	case opRegionOp:
		name, err := p.nameString()
		if err != 0 {
			return err
		}
		space, err := p.byte()
		if err != 0 {
			return err
		}
		off, err := p.parseDataValue()
		if err != 0 {
			return err
		}
		ln, err := p.parseDataValue()
		if err != 0 {
			return err
		}
		offv, _ := off.AsInt()
		lnv, _ := ln.AsInt()
		parent.AddChild(&Entity_t{Kind: KOperationRegion, Name: name,
			RegionSpace: space, RegionOffset: offv, RegionLen: lnv})
		return 0
	case fieldOp:
		startPos := p.pos - 2
		length, err := p.pkgLength()
		if err != 0 {
			return err
		}
		end := startPos + 2 + length
		region, err := p.nameString()
		if err != 0 {
			return err
		}
		if _, err := p.byte(); err != 0 { // FieldFlags
			return err
		}
		p.pos = end // field-unit list: not decoded by this subset
		parent.AddChild(&Entity_t{Kind: KField, Name: region})
		return 0
	}
	return -defs.ENOSYS
}

/// parseDataValue decodes a ComputationalData term: the constant-literal
/// subset (Zero/One/Ones/Byte/Word/DWord/QWord/String/Package of the
/// same) this package needs to read fixed tables like _S5_. General
/// expression opcodes are out of scope and return ENOSYS.
func (p *Parser_t) parseDataValue() (Value_t, defs.Err_t) {
	op, err := p.byte()
	if err != 0 {
		return Value_t{}, err
	}
	switch op {
	case zeroOp:
		return Value_t{Kind: VZero}, 0
	case oneOp:
		return Value_t{Kind: VOne}, 0
	case onesOp:
		return Value_t{Kind: VOnes}, 0
	case bytePrefix:
		b, err := p.byte()
		return Value_t{Kind: VByte, Num: uint64(b)}, err
	case wordPrefix:
		if p.pos+2 > len(p.buf) {
			return Value_t{}, -defs.EIO
		}
		n := uint64(p.buf[p.pos]) | uint64(p.buf[p.pos+1])<<8
		p.pos += 2
		return Value_t{Kind: VWord, Num: n}, 0
	case dwordPrefix:
		if p.pos+4 > len(p.buf) {
			return Value_t{}, -defs.EIO
		}
		var n uint64
		for i := 0; i < 4; i++ {
			n |= uint64(p.buf[p.pos+i]) << (8 * i)
		}
		p.pos += 4
		return Value_t{Kind: VDWord, Num: n}, 0
	case qwordPrefix:
		if p.pos+8 > len(p.buf) {
			return Value_t{}, -defs.EIO
		}
		var n uint64
		for i := 0; i < 8; i++ {
			n |= uint64(p.buf[p.pos+i]) << (8 * i)
		}
		p.pos += 8
		return Value_t{Kind: VQWord, Num: n}, 0
	case stringPrfx:
		start := p.pos
		for p.pos < len(p.buf) && p.buf[p.pos] != 0 {
			p.pos++
		}
		if p.pos >= len(p.buf) {
			return Value_t{}, -defs.EIO
		}
		s := normalizeString(p.buf[start:p.pos])
		p.pos++ // NUL
		return Value_t{Kind: VString, Str: s}, 0
	case packageOp:
		startPos := p.pos - 1
		length, err := p.pkgLength()
		if err != 0 {
			return Value_t{}, err
		}
		end := startPos + 1 + length
		count, err := p.byte()
		if err != 0 {
			return Value_t{}, err
		}
		elems := make([]Value_t, 0, count)
		for p.pos < end {
			v, err := p.parseDataValue()
			if err != 0 {
				return Value_t{}, err
			}
			elems = append(elems, v)
		}
		return Value_t{Kind: VPackage, Package: elems}, 0
	}
	return Value_t{}, -defs.ENOSYS
}
