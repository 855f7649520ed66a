// Package fdops defines the capability interfaces every open file
// description implements: the fixed operation set of Fdops_i below (read,
// write, poll, close, reopen, mmap and the socket calls; there is no ioctl
// operation), selected at runtime through Go's dynamic dispatch rather
// than a C-style function-pointer table. The syscall layer calls Read,
// Write, Pread, Pwrite and Close through the interface without knowing
// the concrete type behind it.
package fdops

import "defs"

/// Userio_i abstracts a source or sink for a read/write transfer: a real
/// user-space buffer (vm.Userbuf_t), a scatter/gather iovec array, or a
/// kernel-side buffer standing in for one (vm.Fakeubuf_t). Every type that
/// copies bytes across a syscall boundary is built on top of this.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

/// Pollmsg_t describes one registration with a poller: the condition mask
/// the caller is waiting on and the events observed so far.
type Pollmsg_t struct {
	Events int
	Events_aux int
}

/// Fdops_i is the capability set every open file description exposes. Not
/// every object supports every method; unsupported methods return ENOSUP
/// or -ENOSYS as the reference kernel's corresponding op tables do.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(st Stat_i) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Mmapi(off, len int, inc bool) ([]Mmapinfo_t, defs.Err_t)
	Pathi() Inum_i
	Read(dst Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(src Userio_i) (int, defs.Err_t)
	Fullpath() (string, defs.Err_t)
	Truncate(newlen uint) defs.Err_t
	Pread(dst Userio_i, offset int) (int, defs.Err_t)
	Pwrite(src Userio_i, offset int) (int, defs.Err_t)
	Accept(sa Userio_i) (Fdops_i, uint, defs.Err_t)
	Bind(sa []uint8) defs.Err_t
	Connect(sa []uint8) defs.Err_t
	Listen(backlog int) (Fdops_i, defs.Err_t)
	Sendmsg(src Userio_i, toaddr []uint8, cmsg []uint8, flags int) (int, defs.Err_t)
	Recvmsg(dst Userio_i, fromsa Userio_i, cmsg Userio_i, flags int) (int, int, int, Csize_t, defs.Err_t)
	Poll(pm Pollmsg_t) (Ready_t, defs.Err_t)
	GetSockOpt(opt int, bufarg Userio_i, intarg int) (int, defs.Err_t)
	SetSockOpt(level, opt int, bufarg Userio_i, intarg int) defs.Err_t
	Shutdown(read, write bool) defs.Err_t
	Getsockname(sa Userio_i) (int, defs.Err_t)
	Getpeername(sa Userio_i) (int, defs.Err_t)
}

// Stat_i, Inum_i, Mmapinfo_t, Csize_t, and Ready_t are declared here (rather
// than imported from a filesystem package) because VFS layout is explicitly
// out of scope for the CORE: only the shape of the call these operations
// need to satisfy matters to the syscall and VM layers.

/// Stat_i is the subset of stat.Stat_t the generic op tables need to fill
/// in, kept as an interface so fdops never has to import the stat package.
type Stat_i interface {
	Wdev(uint)
	Wino(uint)
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
}

/// Inum_i identifies the backing object a descriptor refers to, for
/// directory-entry style getdents-like bookkeeping.
type Inum_i interface {
	Inum() uint
}

/// Mmapinfo_t pairs a kernel page with its physical address for Vmadd_file
/// to install into a faulting address space.
type Mmapinfo_t struct {
	Pg   *[512]int
	Phys uintptr
}

/// Csize_t reports how many bytes of out-of-band control data a recvmsg
/// call produced.
type Csize_t int

/// Ready_t is a bitmask of readiness conditions a poller can wait for.
type Ready_t uint

const (
	R_READ  Ready_t = 1 << iota /// readable
	R_WRITE                      /// writable
	R_ERROR                      /// exceptional condition pending
	R_HUP                        /// peer hung up
)
