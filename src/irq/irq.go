// Package irq is the L2 interrupt-controller abstraction: registration of
// native (ISA/IOAPIC) lines and PCI interrupts (MSI-X, then MSI, then a
// routing-table fallback), per-CPU vector handler lists, and the EOI
// sequence the trap dispatcher runs before invoking handlers.
//
// The package never talks to hardware directly -- programming the local
// APIC, I/O APIC redirection table, or legacy PIC is delegated to a
// Controller_i the platform bring-up code installs via SetController, the
// same indirection vm uses for cross-CPU TLB shootdown IPIs.
package irq

import "sync"

import "runtime"

import "defs"
import "msi"
import "vm"

// Vector range layout. Exceptions occupy 0-31; the syscall and IPI
// vectors below are carved out of the device range 32-254, the spurious
// vector sits at 255 above it, and everything else is available to
// register_native_irq/register_pci_irq.
const (
	VecExceptionLo = 0
	VecExceptionHi = 31

	// VecSyscall is the legacy int-gate vector on x86; other architectures
	// reserve their own SWI-class vector number but route through the same
	// dispatcher entry point.
	VecSyscall = 48
	// VecIPI carries reschedule hints between CPUs.
	VecIPI = 49
	// VecSpurious is programmed into the local APIC's spurious vector
	// register so stray EOIs never fall through to a real handler.
	VecSpurious = 255

	VecDeviceLo = 32
	VecDeviceHi = 254
)

func reserved(vec int) bool {
	return vec == VecSyscall || vec == VecIPI || vec == VecSpurious
}

/// Kind_t tags how a handle was registered, per the IRQ handle data model.
type Kind_t int

const (
	NATIVE Kind_t = iota
	MSI
	MSIX
)

/// Handler_f is a registrant's callback. Handlers run with architecture
// interrupts disabled and may not block.
type Handler_f func(vector int, userdata interface{})

/// Handle_t is a live registration: it sits on exactly one per-CPU,
/// per-vector handler list until Disable removes it.
type Handle_t struct {
	Kind     Kind_t
	Cpu      int
	Vector   int
	Fn       Handler_f
	Userdata interface{}

	line int // native line number, meaningful only when Kind == NATIVE
}

type vecentry_t struct {
	sync.Mutex
	handlers []*Handle_t
}

// table is indexed [cpu][vector]; each slot is an ordered handler list
// guarded by its own lock so unrelated vectors never contend.
var table [runtime.MAXCPUS][256]vecentry_t

// nativeEnabled tracks, per native line, whether the controller currently
// has that line unmasked -- disabling the last handler for a line disables
// the line itself.
var nativeMu sync.Mutex
var nativeEnabled = map[int]int{} // line -> registration refcount

/// Controller_i is the hardware-specific half of the abstraction: masking
/// and unmasking a native line, issuing the controller's EOI sequence, and
/// programming a PCI device's MSI/MSI-X capability.
type Controller_i interface {
	EnableLine(line int, cpu int, vector int)
	DisableLine(line int)
	EOI(vector int)
	// ProgramMSI writes msg into the device's MSI capability, returning
	// false if the device has no MSI capability.
	ProgramMSI(dev *Pcidev_t, msg msi.Msimsg_t) bool
	// ProgramMSIX is the same for the MSI-X table; vecslot selects which
	// table entry to program.
	ProgramMSIX(dev *Pcidev_t, vecslot int, msg msi.Msimsg_t) bool
	// RoutePin programs the controller's routing-table fallback (e.g. an
	// IOAPIC redirection entry) for a PCI device's legacy pin.
	RoutePin(dev *Pcidev_t, cpu int, vector int) bool
	// ApicID maps a CPU index to its local APIC id, the same mapping
	// vm.Cpumap installs for TLB shootdown.
	ApicID(cpu int) uint32
}

var ctl Controller_i

/// SetController installs the platform's controller implementation. Called
/// once during bring-up after the local APIC / IOAPIC / GIC is probed.
func SetController(c Controller_i) {
	ctl = c
	vm.SetCrossIPI(func(apicid uint32, startva uintptr, pgcount int) {
		crossIPI(apicid, startva, pgcount)
	})
}

// Pcidev_t is the minimal PCI device identity register_pci_irq needs: bus
// address plus the capability offsets the controller consults to decide
// whether MSI-X, MSI, or the routing-table fallback applies. A zero
// capability offset means the device lacks that capability.
type Pcidev_t struct {
	Bus, Slot, Func int
	MSIXCap         int
	MSICap          int
	Pin             int // legacy INTx pin, 1-4, 0 if wired to none
}

/// Register_native_irq binds a platform line number to fn, enabling the
/// line on CPU 0 (the boot CPU) at the given vector. Returns an error if
/// the vector is one of the three reserved vectors.
func Register_native_irq(line, vector int, fn Handler_f, userdata interface{}) (*Handle_t, defs.Err_t) {
	if reserved(vector) {
		return nil, -defs.EINVAL
	}
	h := &Handle_t{Kind: NATIVE, Cpu: 0, Vector: vector, Fn: fn, Userdata: userdata, line: line}
	addHandler(h)

	nativeMu.Lock()
	nativeEnabled[line]++
	first := nativeEnabled[line] == 1
	nativeMu.Unlock()
	if first && ctl != nil {
		ctl.EnableLine(line, h.Cpu, vector)
	}
	return h, 0
}

/// Disable_native unregisters a native-line handle, masking the line at
/// the controller if no other handler remains for it.
func Disable_native(h *Handle_t) {
	if h.Kind != NATIVE {
		panic("not a native handle")
	}
	removeHandler(h)

	nativeMu.Lock()
	nativeEnabled[h.line]--
	last := nativeEnabled[h.line] == 0
	if last {
		delete(nativeEnabled, h.line)
	}
	nativeMu.Unlock()
	if last && ctl != nil {
		ctl.DisableLine(h.line)
	}
}

/// Register_pci_irq attempts MSI-X first, then MSI, then falls back to the
/// controller's routing-table entry for the device's pin -- in that order,
/// per the controller-abstraction contract.
func Register_pci_irq(dev *Pcidev_t, fn Handler_f, userdata interface{}) (*Handle_t, defs.Err_t) {
	if ctl == nil {
		return nil, -defs.ENXIO
	}
	cpu, vector, ok := emptiestVector()
	if !ok {
		return nil, -defs.ENOMEM
	}
	msg := msi.For_cpu(ctl.ApicID(cpu), msi.Msivec_t(vector))

	kind := MSIX
	if dev.MSIXCap != 0 && ctl.ProgramMSIX(dev, 0, msg) {
		// programmed
	} else if dev.MSICap != 0 && ctl.ProgramMSI(dev, msg) {
		kind = MSI
	} else if dev.Pin != 0 && ctl.RoutePin(dev, cpu, vector) {
		kind = NATIVE
	} else {
		return nil, -defs.ENXIO
	}

	h := &Handle_t{Kind: kind, Cpu: cpu, Vector: vector, Fn: fn, Userdata: userdata}
	addHandler(h)
	return h, 0
}

// emptiestVector picks the first (cpu, vector) pair in the device range
// whose handler list is currently empty, the MSI steering policy the
// component design calls for ("searches CPUs for a vector whose handler
// list is empty").
func emptiestVector() (int, int, bool) {
	for cpu := 0; cpu < runtime.MAXCPUS; cpu++ {
		for v := VecDeviceLo; v <= VecDeviceHi; v++ {
			if reserved(v) {
				continue
			}
			e := &table[cpu][v]
			e.Lock()
			empty := len(e.handlers) == 0
			e.Unlock()
			if empty {
				return cpu, v, true
			}
		}
	}
	return 0, 0, false
}

func addHandler(h *Handle_t) {
	e := &table[h.Cpu][h.Vector]
	e.Lock()
	e.handlers = append(e.handlers, h)
	e.Unlock()
}

func removeHandler(h *Handle_t) {
	e := &table[h.Cpu][h.Vector]
	e.Lock()
	defer e.Unlock()
	for i, cur := range e.handlers {
		if cur == h {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

/// Dispatch is called by the trap dispatcher for any vector in the device
/// range: it issues EOI, then runs every registered handler in
/// registration order. Handlers run with interrupts disabled; Dispatch
/// itself must be called in that state.
func Dispatch(cpu, vector int) {
	if ctl != nil {
		ctl.EOI(vector)
	}
	e := &table[cpu][vector]
	e.Lock()
	hs := make([]*Handle_t, len(e.handlers))
	copy(hs, e.handlers)
	e.Unlock()
	for _, h := range hs {
		h.Fn(vector, h.Userdata)
	}
}

// reschedFlags is set by Send_resched_ipi and cleared by the trap dispatcher when
// it handles VecIPI, per the IPI semantics: "the handler consults a flag
// and, if set, performs a cooperative reschedule."
var reschedFlags [runtime.MAXCPUS]bool
var reschedMu sync.Mutex

/// Resched_pending reports and clears cpu's reschedule flag.
func Resched_pending(cpu int) bool {
	reschedMu.Lock()
	defer reschedMu.Unlock()
	p := reschedFlags[cpu]
	reschedFlags[cpu] = false
	return p
}

/// Send_resched_ipi asks cpu to cooperatively reschedule at its next
/// opportunity, the only mechanism by which cross-CPU scheduling is
/// triggered.
func Send_resched_ipi(cpu int) {
	if ctl == nil {
		return
	}
	reschedMu.Lock()
	reschedFlags[cpu] = true
	reschedMu.Unlock()
	crossIPI(ctl.ApicID(cpu), 0, 0)
}

// crossIPI is the low-level send primitive shared by the reschedule path
// and the vm.CrossIPI hook vm installs for TLB shootdown; vm passes
// startva/pgcount through unused here since the IPI vector itself carries
// no payload -- the receiving CPU re-reads whatever per-CPU state it needs
// (the pending TLB-shootdown bitmap, or reschedFlags) once it traps in.
func crossIPI(apicid uint32, startva uintptr, pgcount int) {
	if ctl == nil {
		return
	}
	_ = startva
	_ = pgcount
	sendIPI(apicid, VecIPI)
}

// sendIPI is overridden in tests; in production bring-up installs the
// arch implementation's CpuIPI through SetIPISender.
var sendIPI = func(apicid uint32, vector int) {}

/// SetIPISender installs the architecture's IPI-send primitive.
func SetIPISender(f func(apicid uint32, vector int)) {
	sendIPI = f
}
