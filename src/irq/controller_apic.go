package irq

import "sync"
import "unsafe"

import "msi"

// ApicController_t is the concrete Controller_i backing the local-APIC
// plus I/O-APIC pair real hardware exposes: one IOAPIC redirection-table
// entry per native line, EOI through the local APIC's own MMIO window.
// Register offsets are the ones the hardware actually defines (confirmed
// against original_source/sys/x86/lapic.c and ioapic.c): LAPIC_REG_EOI
// at 0xB0, IOAPIC_IOREGSEL/IOWIN at 0x0/0x4, IOAPIC_REG_REDTBL at 0x10
// (two 32-bit words per entry).
type ApicController_t struct {
	lapicBase uintptr

	mu         sync.Mutex
	ioapicBase uintptr
	gsiBase    uint32

	// apicids maps a logical CPU index (as this kernel numbers them) to
	// its local APIC id, the mapping vm.SetCrossIPI's caller and
	// ApicID both need.
	apicids []uint32
}

const (
	lapicRegEOI = 0xB0

	ioapicIOREGSEL = 0x0
	ioapicIOWIN    = 0x4
	ioapicRegRedtbl = 0x10

	ioapicTrigLevel = 1 << 15
	ioapicIntPolLow = 1 << 13
	ioapicMasked    = 1 << 16
)

// NewApicController installs a controller against the already-mapped
// local APIC and (single, boot-time) I/O APIC MMIO windows; gsiBase is
// the IOAPIC's global-system-interrupt base from the MADT IOAPIC entry
// (0 for the common single-IOAPIC case), and apicids is the per-CPU
// local APIC id table the MADT's local-APIC entries enumerate.
func NewApicController(lapicBase, ioapicBase uintptr, gsiBase uint32, apicids []uint32) *ApicController_t {
	return &ApicController_t{lapicBase: lapicBase, ioapicBase: ioapicBase, gsiBase: gsiBase, apicids: apicids}
}

func (c *ApicController_t) lapicWr(reg uint32, v uint32) {
	p := (*uint32)(unsafe.Pointer(c.lapicBase + uintptr(reg)))
	*p = v
}

func (c *ApicController_t) ioapicRd(reg uint32) uint32 {
	sel := (*uint32)(unsafe.Pointer(c.ioapicBase + ioapicIOREGSEL))
	win := (*uint32)(unsafe.Pointer(c.ioapicBase + ioapicIOWIN))
	*sel = reg
	return *win
}

func (c *ApicController_t) ioapicWr(reg uint32, v uint32) {
	sel := (*uint32)(unsafe.Pointer(c.ioapicBase + ioapicIOREGSEL))
	win := (*uint32)(unsafe.Pointer(c.ioapicBase + ioapicIOWIN))
	*sel = reg
	*win = v
}

// EnableLine programs line's redirection table entry to deliver vector
// to cpu's local APIC, unmasked, edge-triggered active-high -- the
// common ISA-line case. There is no level-triggered or active-low
// variant, and the polarity/trigger flags of MADT interrupt-source-
// override entries are not applied.
func (c *ApicController_t) EnableLine(line int, cpu int, vector int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gsi := uint32(line) - c.gsiBase
	reg := ioapicRegRedtbl + gsi*2
	apicid := uint32(0)
	if cpu < len(c.apicids) {
		apicid = c.apicids[cpu]
	}
	c.ioapicWr(reg, uint32(vector))
	c.ioapicWr(reg+1, apicid<<24)
}

func (c *ApicController_t) DisableLine(line int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gsi := uint32(line) - c.gsiBase
	reg := ioapicRegRedtbl + gsi*2
	c.ioapicWr(reg, ioapicMasked)
}

func (c *ApicController_t) EOI(vector int) {
	c.lapicWr(lapicRegEOI, 0)
}

// ProgramMSI/ProgramMSIX would write the device's PCI config-space MSI
// or MSI-X capability; this tree has no PCI config-space accessor
// wired into irq yet (register_pci_irq's caller supplies a Pcidev_t
// with capability offsets but nothing in this build owns a PCI config
// read/write primitive), so both report "not programmed" rather than
// silently pretending to have wired the device.
func (c *ApicController_t) ProgramMSI(dev *Pcidev_t, msg msi.Msimsg_t) bool {
	return false
}

func (c *ApicController_t) ProgramMSIX(dev *Pcidev_t, vecslot int, msg msi.Msimsg_t) bool {
	return false
}

// RoutePin programs the IOAPIC redirection entry for a PCI device's
// legacy INTx pin, the routing-table fallback Register_pci_irq takes
// when neither MSI nor MSI-X programmed successfully.
func (c *ApicController_t) RoutePin(dev *Pcidev_t, cpu int, vector int) bool {
	if dev.Pin == 0 {
		return false
	}
	c.EnableLine(dev.Pin, cpu, vector)
	return true
}

func (c *ApicController_t) ApicID(cpu int) uint32 {
	if cpu < 0 || cpu >= len(c.apicids) {
		return 0
	}
	return c.apicids[cpu]
}
