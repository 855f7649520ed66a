package acpi

import "encoding/binary"
import "sync/atomic"
import "unsafe"

import "aml"
import "defs"

// FACS global-lock bit layout within its 32-bit GlobalLock field: bit 0 is
// the pending flag a waiter sets to ask the firmware to hand ownership
// over, bit 1 is the owned flag itself. Firmware and OS both use the same
// lock-cmpxchg retry dance against this word (the "two-bit ownership
// protocol" the sleep sequence calls for).
const (
	facsGlobalLockPending uint32 = 1 << 0
	facsGlobalLockOwned   uint32 = 1 << 1
)

/// AcquireGlobalLock implements the FACS global-lock handshake: attempt to
/// take ownership by CAS; if the firmware already owns it, set the pending
/// bit and report that the caller must wait for an SCI before retrying.
func AcquireGlobalLock(facs *Table_t) (acquired bool, mustWait bool, err defs.Err_t) {
	if len(facs.Raw) < 64 {
		return false, false, -defs.EIO
	}
	word := facs.Raw[60:64]
	for {
		old := binary.LittleEndian.Uint32(word)
		if old&facsGlobalLockOwned == 0 {
			next := old | facsGlobalLockOwned
			if casWord32(word, old, next) {
				return true, false, 0
			}
			continue
		}
		next := old | facsGlobalLockPending
		if casWord32(word, old, next) {
			return false, true, 0
		}
	}
}

/// ReleaseGlobalLock clears ownership. If the pending bit is set, the
/// caller (firmware, in practice) must be notified via SCI that the lock
/// is free -- this package only clears the bits; signaling the SCI handler
/// is the platform bring-up's job.
func ReleaseGlobalLock(facs *Table_t) (pending bool) {
	word := facs.Raw[60:64]
	for {
		old := binary.LittleEndian.Uint32(word)
		next := old &^ (facsGlobalLockOwned | facsGlobalLockPending)
		if casWord32(word, old, next) {
			return old&facsGlobalLockPending != 0
		}
	}
}

// casWord32 does a little-endian compare-and-swap against a raw byte
// slice, standing in for the architecture's locked cmpxchg against the
// actual (uncacheable) FACS memory on the real boot path.
func casWord32(word []byte, old, next uint32) bool {
	cur := binary.LittleEndian.Uint32(word)
	if cur != old {
		return false
	}
	// Raw is a regular Go slice in this package (see Reader_i); treat the
	// four bytes as an atomic unit via the standard library's word CAS by
	// reinterpreting them, matching how the rest of the kernel performs
	// atomic updates against mapped device memory.
	p := (*uint32)(unsafe.Pointer(&word[0]))
	return atomic.CompareAndSwapUint32(p, old, next)
}

/// Sleeper_t drives the ACPI sleep-state entry sequence against a parsed
/// FADT/FACS pair and an AML interpreter over the loaded DSDT.
type Sleeper_t struct {
	FADT FADT
	FACS *Table_t
	Vm   *aml.Interp_t
	// OutPort writes a byte to an I/O port; installed by the platform
	// bring-up code since this package has no architecture access.
	OutPort func(port uint16, val uint16)
}

/// EnterSleepState runs the _S<n>_ sequence: evaluate _TTS, the sleep
/// package, _PTS, acquire the global lock, _GTS, then write
/// SLP_TYP|SLP_EN to PM1a control. It does not flush caches before that
/// write. n=5 is the shutdown (soft-off) state.
func (s *Sleeper_t) EnterSleepState(n int) defs.Err_t {
	if err := s.Vm.CallIfPresent(`_TTS`, aml.Value_t{Kind: aml.VByte, Num: uint64(n)}); err != 0 {
		return err
	}
	slpTypA, _, err := s.Vm.SleepPackage(n)
	if err != 0 {
		return err
	}
	if err := s.Vm.CallIfPresent(`_PTS`, aml.Value_t{Kind: aml.VByte, Num: uint64(n)}); err != 0 {
		return err
	}

	acquired, mustWait, err := AcquireGlobalLock(s.FACS)
	if err != 0 {
		return err
	}
	if mustWait {
		// The real kernel would block on the SCI here; this subset treats
		// contention as a hard failure since there is no SCI wiring yet.
		return -defs.EBUSY
	}
	if acquired {
		defer ReleaseGlobalLock(s.FACS)
	}

	if err := s.Vm.CallIfPresent(`_GTS`, aml.Value_t{Kind: aml.VByte, Num: uint64(n)}); err != 0 {
		return err
	}

	// SLP_EN is bit 13 of PM1_CNT; SLP_TYP occupies bits 10-12.
	const slpEnBit = 1 << 13
	val := uint16(slpTypA&0x7)<<10 | slpEnBit
	if s.OutPort != nil {
		s.OutPort(uint16(s.FADT.PM1aControlBlock), val)
	}
	return 0
}

/// Reboot writes the FADT reset register with the configured reset value,
/// the ACPI 5.0+ reset mechanism.
func (s *Sleeper_t) Reboot() defs.Err_t {
	if !s.FADT.HasResetReg {
		return -defs.ENOSYS
	}
	if s.OutPort != nil {
		s.OutPort(uint16(s.FADT.ResetRegAddr), uint16(s.FADT.ResetValue))
	}
	return 0
}

var globalSleeper *Sleeper_t

/// SetSleeper installs the platform's Sleeper_t, built once bring-up has
/// enumerated the FADT/FACS and loaded the DSDT into an aml.Interp_t.
/// reboot(2)'s SHUTDOWN/REBOOT paths reach it through GlobalSleeper.
func SetSleeper(s *Sleeper_t) {
	globalSleeper = s
}

/// GlobalSleeper returns the installed Sleeper_t, or nil if this platform
/// never wired up ACPI sleep/reboot support.
func GlobalSleeper() *Sleeper_t {
	return globalSleeper
}
