// Package res tracks a global kernel memory budget that bounded copy loops
// (see bounds) spend against before each iteration, so a long copyin/copyout
// against a huge user buffer fails cleanly with ENOHEAP instead of driving
// the allocator to OOM while an address-space lock is held.
package res

import "sync/atomic"

// budget is the number of bytes of kernel memory still available for
// reservation. It is refilled by Setbudget during bring-up once the
// physical allocator reports how much RAM it manages.
var budget int64

/// Setbudget installs the total reservable budget, in bytes. Called once
/// during kernel init after the physical page allocator is up.
func Setbudget(bytes int64) {
	atomic.StoreInt64(&budget, bytes)
}

/// Resadd_noblock attempts to reserve n bytes from the global budget without
/// blocking. It returns false if doing so would drive the budget negative,
/// in which case the caller must fail its operation (typically ENOHEAP)
/// rather than wait, since waiting while holding a space lock can deadlock.
func Resadd_noblock(n int) bool {
	if n <= 0 {
		return true
	}
	for {
		cur := atomic.LoadInt64(&budget)
		next := cur - int64(n)
		if next < 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&budget, cur, next) {
			return true
		}
	}
}

/// Resdel gives back n bytes previously reserved via Resadd_noblock. Callers
/// that finish a bounded loop early (error mid-copy) must return the unused
/// portion.
func Resdel(n int) {
	if n <= 0 {
		return
	}
	atomic.AddInt64(&budget, int64(n))
}

/// Remain reports the currently available budget, for diagnostics.
func Remain() int64 {
	return atomic.LoadInt64(&budget)
}
