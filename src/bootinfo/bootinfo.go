// Package bootinfo decodes the Multiboot2 boot information structure the
// loader hands off in %ebx at kernel entry: a flat list of 8-byte-aligned
// tags describing memory layout, the RSDP address, loaded modules, and the
// framebuffer, terminated by a type-0 tag. This is the only configuration
// source available before any filesystem exists, so acpi's own RSDP
// search (LocateRSDP) is a fallback for loaders that skip the ACPI tags
// entirely, not the primary path.
package bootinfo

import (
	"encoding/binary"
	"fmt"
)

const (
	tagEnd            = 0
	tagCmdline        = 1
	tagBootLoaderName = 2
	tagModule         = 3
	tagBasicMeminfo   = 4
	tagMemoryMap      = 6
	tagFramebuffer    = 8
	tagACPIOld        = 14
	tagACPINew        = 15
)

// MemMapEntry_t is one BIOS/UEFI memory-map region, as the tag 6 payload
// lays them out: 24 bytes each, base/length as little-endian uint64, a
// uint32 type (1 == available RAM), and a reserved uint32.
type MemMapEntry_t struct {
	BaseAddr uint64
	Length   uint64
	Type     uint32
}

// Module_t is one tag-3 boot module: a [Start, End) physical range plus
// the loader-supplied command line string naming it.
type Module_t struct {
	Start   uint32
	End     uint32
	Cmdline string
}

// Framebuffer_t mirrors the tag-8 common fields every framebuffer type
// (indexed, RGB, or EGA text) shares; the color-mode-specific fields past
// these are not decoded, since nothing in this tree draws to a
// framebuffer yet.
type Framebuffer_t struct {
	Addr   uint64
	Pitch  uint32
	Width  uint32
	Height uint32
	Bpp    uint8
	Type   uint8
}

// Info_t is everything this kernel cares about out of the full tag list.
type Info_t struct {
	CmdLine     string
	BootLoader  string
	MemLower    uint32
	MemUpper    uint32
	MemoryMap   []MemMapEntry_t
	Modules     []Module_t
	Framebuffer *Framebuffer_t

	// RSDP holds the embedded ACPI RSDP bytes from whichever of the old
	// (ACPI 1.0, 20-byte) or new (ACPI 2.0+, up to 36-byte) tags the
	// loader supplied; acpi.LocateRSDP only runs when this is empty.
	RSDP []byte
}

// Parse decodes the flat tag list starting at data[0]; data must begin at
// the multiboot info structure's own total_size/reserved header (the
// first 8 bytes) as the loader hands it off, typically obtained via
// mem.Physmem.Dmap8 against the physical address passed in at entry.
func Parse(data []byte) (*Info_t, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bootinfo: short header")
	}
	total := binary.LittleEndian.Uint32(data[0:4])
	if int(total) > len(data) {
		return nil, fmt.Errorf("bootinfo: total_size %d exceeds buffer %d", total, len(data))
	}

	info := &Info_t{}
	off := 8
	for off+8 <= int(total) {
		typ := binary.LittleEndian.Uint32(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		if typ == tagEnd {
			break
		}
		if off+int(size) > len(data) {
			return nil, fmt.Errorf("bootinfo: tag type %d size %d overruns buffer", typ, size)
		}
		payload := data[off+8 : off+int(size)]
		parseTag(info, typ, payload)

		// Tags are padded to an 8-byte boundary; the padding is not
		// reflected in size itself.
		off += (int(size) + 7) &^ 7
	}
	return info, nil
}

func parseTag(info *Info_t, typ uint32, p []byte) {
	switch typ {
	case tagCmdline:
		info.CmdLine = cstr(p)
	case tagBootLoaderName:
		info.BootLoader = cstr(p)
	case tagBasicMeminfo:
		if len(p) >= 8 {
			info.MemLower = binary.LittleEndian.Uint32(p[0:4])
			info.MemUpper = binary.LittleEndian.Uint32(p[4:8])
		}
	case tagMemoryMap:
		parseMemoryMap(info, p)
	case tagModule:
		if len(p) >= 8 {
			info.Modules = append(info.Modules, Module_t{
				Start:   binary.LittleEndian.Uint32(p[0:4]),
				End:     binary.LittleEndian.Uint32(p[4:8]),
				Cmdline: cstr(p[8:]),
			})
		}
	case tagFramebuffer:
		if len(p) >= 24 {
			info.Framebuffer = &Framebuffer_t{
				Addr:   binary.LittleEndian.Uint64(p[0:8]),
				Pitch:  binary.LittleEndian.Uint32(p[8:12]),
				Width:  binary.LittleEndian.Uint32(p[12:16]),
				Height: binary.LittleEndian.Uint32(p[16:20]),
				Bpp:    p[20],
				Type:   p[21],
			}
		}
	case tagACPIOld, tagACPINew:
		if len(info.RSDP) == 0 {
			info.RSDP = append([]byte(nil), p...)
		}
	}
}

// parseMemoryMap walks the tag-6 payload's own entry_size/entry_version
// header followed by a run of fixed-size entries -- entry_size is
// authoritative over the 24-byte layout future revisions might extend.
func parseMemoryMap(info *Info_t, p []byte) {
	if len(p) < 8 {
		return
	}
	entrySize := binary.LittleEndian.Uint32(p[0:4])
	if entrySize < 24 {
		return
	}
	for off := 8; off+int(entrySize) <= len(p); off += int(entrySize) {
		e := p[off:]
		info.MemoryMap = append(info.MemoryMap, MemMapEntry_t{
			BaseAddr: binary.LittleEndian.Uint64(e[0:8]),
			Length:   binary.LittleEndian.Uint64(e[8:16]),
			Type:     binary.LittleEndian.Uint32(e[16:20]),
		})
	}
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
