package proc

import "defs"

const maxGroups = 65535

/// Setuid implements the real/effective/saved-id transition rules setuid(2)
/// documents: root (euid==0) may set all three ids to anything; a
/// non-root caller sets only its effective uid, and only to its current
/// real, effective or saved uid.
func (p *Proc_t) Setuid(uid int) defs.Err_t {
	p.credMu.Lock()
	defer p.credMu.Unlock()
	c := &p.Cred
	if c.Euid == 0 {
		c.Uid, c.Euid, c.Suid = uid, uid, uid
		return 0
	}
	if uid != c.Uid && uid != c.Euid && uid != c.Suid {
		return -defs.EPERM
	}
	c.Euid = uid
	return 0
}

/// Setreuid sets the real and effective uids independently; -1 leaves a
/// component unchanged. A non-root caller may only move ids among its own
/// current real/effective/saved set, and any change to the real uid (or
/// setting euid different from the old real uid) additionally updates the
/// saved uid, matching setreuid(2)'s "saved id tracks euid across a real
/// change" rule.
func (p *Proc_t) Setreuid(ruid, euid int) defs.Err_t {
	p.credMu.Lock()
	defer p.credMu.Unlock()
	c := &p.Cred
	isroot := c.Euid == 0
	if !isroot {
		if ruid != -1 && ruid != c.Uid && ruid != c.Euid && ruid != c.Suid {
			return -defs.EPERM
		}
		if euid != -1 && euid != c.Uid && euid != c.Euid && euid != c.Suid {
			return -defs.EPERM
		}
	}
	changed := ruid != -1
	if ruid != -1 {
		c.Uid = ruid
	}
	if euid != -1 {
		c.Euid = euid
	}
	if changed || (euid != -1 && euid != c.Uid) {
		c.Suid = c.Euid
	}
	return 0
}

/// Setgid mirrors Setuid for the group-id triple.
func (p *Proc_t) Setgid(gid int) defs.Err_t {
	p.credMu.Lock()
	defer p.credMu.Unlock()
	c := &p.Cred
	if c.Euid == 0 {
		c.Gid, c.Egid, c.Sgid = gid, gid, gid
		return 0
	}
	if gid != c.Gid && gid != c.Egid && gid != c.Sgid {
		return -defs.EPERM
	}
	c.Egid = gid
	return 0
}

/// Setgroups replaces the supplementary group list wholesale, rejecting
/// more than maxGroups entries and requiring root.
func (p *Proc_t) Setgroups(groups []int) defs.Err_t {
	if len(groups) > maxGroups {
		return -defs.EINVAL
	}
	p.credMu.Lock()
	defer p.credMu.Unlock()
	if p.Cred.Euid != 0 {
		return -defs.EPERM
	}
	p.Cred.Groups = append([]int(nil), groups...)
	return 0
}

/// InGroup reports whether gid is p's effective gid or one of its
/// supplementary groups, the check file permission tests use.
func (p *Proc_t) InGroup(gid int) bool {
	p.credMu.Lock()
	defer p.credMu.Unlock()
	if p.Cred.Egid == gid {
		return true
	}
	for _, g := range p.Cred.Groups {
		if g == gid {
			return true
		}
	}
	return false
}
