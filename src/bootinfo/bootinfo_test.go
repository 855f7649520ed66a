package bootinfo

import (
	"encoding/binary"
	"testing"
)

func putTagHeader(buf []byte, off int, typ, size uint32) {
	binary.LittleEndian.PutUint32(buf[off:], typ)
	binary.LittleEndian.PutUint32(buf[off+4:], size)
}

func TestParseCmdlineAndMeminfo(t *testing.T) {
	buf := make([]byte, 256)
	off := 8

	cmdline := "console=ttyS0\x00"
	size := uint32(8 + len(cmdline))
	putTagHeader(buf, off, tagCmdline, size)
	copy(buf[off+8:], cmdline)
	off += int((size + 7) &^ 7)

	putTagHeader(buf, off, tagBasicMeminfo, 16)
	binary.LittleEndian.PutUint32(buf[off+8:], 639)
	binary.LittleEndian.PutUint32(buf[off+12:], 129024)
	off += 16

	putTagHeader(buf, off, tagEnd, 8)
	off += 8

	binary.LittleEndian.PutUint32(buf[0:], uint32(off))

	info, err := Parse(buf[:off])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.CmdLine != "console=ttyS0" {
		t.Fatalf("CmdLine = %q", info.CmdLine)
	}
	if info.MemLower != 639 || info.MemUpper != 129024 {
		t.Fatalf("meminfo = %d/%d", info.MemLower, info.MemUpper)
	}
}

func TestParseMemoryMapAndRSDP(t *testing.T) {
	buf := make([]byte, 256)
	off := 8

	// Memory map: entry_size/entry_version header + two 24-byte entries.
	entries := [][2]uint64{{0, 0x9fc00}, {0x100000, 0x1000000}}
	size := uint32(8 + 8 + 24*len(entries))
	putTagHeader(buf, off, tagMemoryMap, size)
	binary.LittleEndian.PutUint32(buf[off+8:], 24)
	binary.LittleEndian.PutUint32(buf[off+12:], 0)
	eoff := off + 16
	for i, e := range entries {
		binary.LittleEndian.PutUint64(buf[eoff+i*24:], e[0])
		binary.LittleEndian.PutUint64(buf[eoff+i*24+8:], e[1])
		binary.LittleEndian.PutUint32(buf[eoff+i*24+16:], 1)
	}
	off += int((size + 7) &^ 7)

	rsdp := []byte("RSD PTR XXXXXXXXXXXX")
	asize := uint32(8 + len(rsdp))
	putTagHeader(buf, off, tagACPIOld, asize)
	copy(buf[off+8:], rsdp)
	off += int((asize + 7) &^ 7)

	putTagHeader(buf, off, tagEnd, 8)
	off += 8
	binary.LittleEndian.PutUint32(buf[0:], uint32(off))

	info, err := Parse(buf[:off])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(info.MemoryMap) != 2 {
		t.Fatalf("got %d memory map entries, want 2", len(info.MemoryMap))
	}
	if info.MemoryMap[1].BaseAddr != 0x100000 || info.MemoryMap[1].Length != 0x1000000 {
		t.Fatalf("entry 1 = %+v", info.MemoryMap[1])
	}
	if string(info.RSDP) != string(rsdp) {
		t.Fatalf("RSDP = %q, want %q", info.RSDP, rsdp)
	}
}

func TestParseRejectsShortOrOverrunTag(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error on short header")
	}

	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], 16)
	putTagHeader(buf, 8, tagCmdline, 100) // size claims more than buffer holds
	if _, err := Parse(buf); err == nil {
		t.Fatalf("expected error on tag overrunning buffer")
	}
}
