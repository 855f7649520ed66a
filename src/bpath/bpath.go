// Package bpath performs purely lexical path canonicalization: collapsing
// "." and ".." components and repeated slashes. It knows nothing about any
// on-disk layout (file-system internals are out of scope for the CORE) and
// is used only to normalize the path a process hands to openat/execve
// before the per-object file operations resolve it.
package bpath

import "ustr"

/// Canonicalize collapses "." and ".." components of an absolute path
/// without touching the file system; ".." above the root is a no-op, same
/// as the shell's cd builtin.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	comps := split(p)
	out := make([]ustr.Ustr, 0, len(comps))
	for _, c := range comps {
		switch {
		case len(c) == 0, c.Isdot():
			continue
		case c.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	ret := ustr.MkUstrRoot()
	for i, c := range out {
		if i == 0 {
			ret = append(ustr.Ustr{}, c...)
			ret = append(ustr.Ustr{'/'}, ret...)
		} else {
			ret = ret.Extend(c)
		}
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	return ret
}

func split(p ustr.Ustr) []ustr.Ustr {
	var ret []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				ret = append(ret, p[start:i])
			}
			start = i + 1
		}
	}
	return ret
}
