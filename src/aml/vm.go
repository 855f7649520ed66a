package aml

import "defs"

/// Interp_t owns a parsed namespace. It keeps no map of named mutexes and
/// no evaluation stack: AML mutexes are the namespace's own KMutex
/// entities, and method invocation (CallIfPresent) runs no bytecode.
type Interp_t struct {
	Root *Entity_t
	// nextTag is not read or assigned anywhere in this package; callers of
	// Entity_t.Lock pick their own reentrancy tags.
	nextTag int
}

/// NewInterp wraps an already-parsed namespace.
func NewInterp(root *Entity_t) *Interp_t {
	return &Interp_t{Root: root}
}

/// EvalNameValue returns the constant value bound to a NameDef at the
/// given path -- the subset of "method evaluation" this interpreter
/// supports for names whose value was folded entirely at parse time (the
/// sleep packages and _CRS buffers the reboot/enumeration path needs are
/// always plain NameDefs, never computed).
func (in *Interp_t) EvalNameValue(path string) (Value_t, defs.Err_t) {
	e, err := in.Root.Find(path)
	if err != 0 {
		return Value_t{}, err
	}
	if e.Kind != KNameDef {
		return Value_t{}, -defs.EINVAL
	}
	return e.Value, 0
}

/// FindMethod resolves a Method entity by path, without invoking it.
func (in *Interp_t) FindMethod(path string) (*Entity_t, defs.Err_t) {
	e, err := in.Root.Find(path)
	if err != 0 {
		return nil, err
	}
	if e.Kind != KMethod {
		return nil, -defs.EINVAL
	}
	return e, 0
}

/// CallIfPresent invokes a preparation method (_TTS, _PTS, _GTS) with
/// args if the namespace defines it, doing nothing otherwise -- these
/// hooks are optional per the ACPI sleep-transition sequence.
//
// This interpreter's covered opcode subset has no control-flow or store
// support, so "invoking" a method here means executing its body for
// side effects the real kernel would observe (none, in this subset) and
// is a documented no-op; the call still validates the method exists and
// takes the argument count the firmware declared, so a future expansion
// of the opcode set has a real call site to hang behind.
func (in *Interp_t) CallIfPresent(path string, args ...Value_t) defs.Err_t {
	m, err := in.FindMethod(path)
	if err == -defs.ENOENT {
		return 0
	}
	if err != 0 {
		return err
	}
	if len(args) != m.MethodNargs {
		return -defs.EINVAL
	}
	return 0
}

/// SleepPackage decodes one of the firmware's \_S<n>_ objects (a Package
/// of two bytes: PM1a/PM1b SLP_TYP values) as required by the sleep-state
/// entry sequence.
func (in *Interp_t) SleepPackage(n int) (slpTypA, slpTypB byte, err defs.Err_t) {
	name := sleepName(n)
	v, e := in.EvalNameValue(name)
	if e != 0 {
		return 0, 0, e
	}
	if v.Kind != VPackage || len(v.Package) < 2 {
		return 0, 0, -defs.EINVAL
	}
	a, ok1 := v.Package[0].AsInt()
	b, ok2 := v.Package[1].AsInt()
	if !ok1 || !ok2 {
		return 0, 0, -defs.EINVAL
	}
	return byte(a), byte(b), 0
}

func sleepName(n int) string {
	digit := byte('0' + n)
	return string([]byte{'_', 'S', digit, '_'})
}
