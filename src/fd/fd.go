// Package fd implements the file-descriptor slot: a reference to an open
// file description plus the close-on-exec flag the FD table checks when
// execve tears down the old address space.
package fd

import "sync"

import "bpath"
import "defs"
import "fdops"
import "ustr"

/// File descriptor permission bits.
const (
	FD_READ    = 0x1 /// read permission
	FD_WRITE   = 0x2 /// write permission
	FD_CLOEXEC = 0x4 /// close-on-exec flag
)

/// Fd_t represents an open file descriptor slot.
type Fd_t struct {
	// Fops is an interface implemented via a pointer receiver, thus Fops
	// is a reference, not a value.
	Fops  fdops.Fdops_i /// descriptor operations
	Perms int           /// permission bits, including FD_CLOEXEC
}

/// Cloexec reports whether this slot must be closed across exec.
func (f *Fd_t) Cloexec() bool {
	return f.Perms&FD_CLOEXEC != 0
}

/// Copyfd duplicates an open file descriptor by reopening it (dup/dup3,
/// and inherited slots across fork share the underlying file this way).
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure; used when
/// tearing down state that must succeed (process exit, exec cleanup).
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Cwd_t tracks the current working directory for a process.
type Cwd_t struct {
	sync.Mutex // serializes concurrent chdir calls
	Fd   *Fd_t
	Path ustr.Ustr
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(append(ustr.Ustr{}, cwd.Path...), '/')
	return append(full, p...)
}

/// Canonicalpath resolves path components relative to cwd, collapsing "."
/// and "..".
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(cwd.Fullpath(p))
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: fd, Path: ustr.MkUstrRoot()}
}
