package proc

import "sync"

import "bounds"
import "defs"
import "limits"
import "res"

// Futex operation codes, the subset this kernel implements.
const (
	FUTEX_WAIT = iota
	FUTEX_WAKE
)

type futexq_t struct {
	sync.Mutex
	waiters map[uintptr]*Waitq_t
	count   int
}

var ftbl = futexq_t{waiters: make(map[uintptr]*Waitq_t)}

func (f *futexq_t) get(uaddr uintptr) *Waitq_t {
	f.Lock()
	defer f.Unlock()
	wq, ok := f.waiters[uaddr]
	if !ok {
		wq = &Waitq_t{}
		f.waiters[uaddr] = wq
	}
	return wq
}

// take/give enforce limits.Syslimit.Futexes, the cap on outstanding futex
// wait-queue entries across the whole system.
func (f *futexq_t) take() bool {
	f.Lock()
	defer f.Unlock()
	if f.count >= limits.Syslimit.Futexes {
		return false
	}
	f.count++
	return true
}

func (f *futexq_t) give() {
	f.Lock()
	f.count--
	f.Unlock()
}

/// Futex implements FUTEX_WAIT/FUTEX_WAKE: wait blocks the calling thread
/// while *uaddr's value (read through the caller-supplied load function,
/// since this package has no direct user-memory access) still equals val, wake
/// returns how many waiters it actually woke, capped at count.
func Futex(t *Thread_t, uaddr uintptr, op int, val int, load func() (int, defs.Err_t), count int) (int, defs.Err_t) {
	switch op {
	case FUTEX_WAIT:
		if !ftbl.take() {
			return 0, -defs.ENOMEM
		}
		defer ftbl.give()

		gimme := bounds.Bounds(bounds.B_FUTEX_T_FUTEX_WAIT)
		if !res.Resadd_noblock(gimme) {
			return 0, -defs.ENOHEAP
		}
		wq := ftbl.get(uaddr)
		cur, err := load()
		if err != 0 {
			return 0, err
		}
		if cur != val {
			return 0, -defs.EAGAIN
		}
		t.FutAddr = uaddr
		wq.Sleep(func() bool {
			cur, err := load()
			return err != 0 || cur != val || t.FutAddr != uaddr
		})
		return 0, 0
	case FUTEX_WAKE:
		wq := ftbl.get(uaddr)
		n := wq.Sleepers()
		if count < n {
			n = count
		}
		for i := 0; i < n; i++ {
			wq.Wake()
		}
		return n, 0
	default:
		return 0, -defs.EINVAL
	}
}
