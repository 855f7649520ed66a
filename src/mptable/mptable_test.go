package mptable

import "testing"

type fakeReader struct {
	mem []byte
}

func (f *fakeReader) ReadPhys(addr uintptr, length int) []byte {
	if int(addr)+length > len(f.mem) {
		grown := make([]byte, int(addr)+length)
		copy(grown, f.mem)
		f.mem = grown
	}
	return f.mem[addr : int(addr)+length]
}

func putFP(buf []byte, off int, cfgAddr uint32) {
	copy(buf[off:], "_MP_")
	le32put(buf[off+4:], cfgAddr)
	buf[off+8] = 1 // length, in 16-byte paragraphs
	fixSum(buf[off : off+16])
}

func fixSum(b []byte) {
	const checksumOff = 10
	b[checksumOff] = 0
	var sum uint8
	for _, c := range b {
		sum += c
	}
	b[checksumOff] = -sum
}

func le32put(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func le16put(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func TestLocateInEBDA(t *testing.T) {
	r := &fakeReader{mem: make([]byte, 0x100000)}
	putFP(r.mem, 0x9fc00+0x80, 0x5000)

	addr, ok := Locate(r)
	if !ok {
		t.Fatalf("expected to locate floating pointer struct")
	}
	if addr != 0x9fc00+0x80 {
		t.Fatalf("addr = %#x, want %#x", addr, 0x9fc00+0x80)
	}
}

func TestLocateNotFound(t *testing.T) {
	r := &fakeReader{mem: make([]byte, 0x100000)}
	if _, ok := Locate(r); ok {
		t.Fatalf("expected no signature to be found in a zeroed buffer")
	}
}

func TestParseConfigTable(t *testing.T) {
	r := &fakeReader{mem: make([]byte, 0x100000)}
	const fpAddr = 0x9fc00
	const cfgAddr = 0x4000

	putFP(r.mem, fpAddr, cfgAddr)

	cfg := r.mem[cfgAddr:]
	copy(cfg, "PCMP")
	entryCount := 2
	length := 44 + 20 + 8
	le16put(cfg[4:], uint16(length))
	le16put(cfg[34:], uint16(entryCount))
	le32put(cfg[36:], 0xfee00000)

	// processor entry (type 0, 20 bytes): enabled, BSP.
	proc := cfg[44:]
	proc[0] = cfgProcessor
	proc[1] = 1 // lapic id
	proc[3] = 0x3

	// ioapic entry (type 2, 8 bytes).
	ioapic := cfg[44+20:]
	ioapic[0] = cfgIOAPIC
	ioapic[1] = 2
	le32put(ioapic[4:], 0xfec00000)

	fixTableChecksum(cfg[:length])

	tbl, err := Parse(r, fpAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.LapicAddress != 0xfee00000 {
		t.Fatalf("LapicAddress = %#x", tbl.LapicAddress)
	}
	if len(tbl.CPUs) != 1 || !tbl.CPUs[0].Enabled || !tbl.CPUs[0].BSP {
		t.Fatalf("CPUs = %+v", tbl.CPUs)
	}
	if len(tbl.IOAPICs) != 1 || tbl.IOAPICs[0].Address != 0xfec00000 {
		t.Fatalf("IOAPICs = %+v", tbl.IOAPICs)
	}
}

func fixTableChecksum(b []byte) {
	const checksumOff = 7
	b[checksumOff] = 0
	var sum uint8
	for _, c := range b {
		sum += c
	}
	b[checksumOff] = -sum
}
