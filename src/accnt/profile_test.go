package accnt

import (
	"bytes"
	"testing"

	"github.com/google/pprof/profile"
)

func TestWriteProfileRoundTrips(t *testing.T) {
	a := &Accnt_t{Userns: 1500, Sysns: 250}
	b := &Accnt_t{Userns: 9000, Sysns: 1}

	var buf bytes.Buffer
	if err := WriteProfile(&buf, []Sample_t{{Pid: 1, Accnt: a}, {Pid: 42, Accnt: b}}); err != nil {
		t.Fatalf("WriteProfile: %v", err)
	}

	p, err := profile.Parse(&buf)
	if err != nil {
		t.Fatalf("profile.Parse: %v", err)
	}
	if len(p.Sample) != 2 {
		t.Fatalf("got %d samples, want 2", len(p.Sample))
	}
	if p.Sample[0].Value[0] != 1500 || p.Sample[0].Value[1] != 250 {
		t.Fatalf("sample 0 = %v", p.Sample[0].Value)
	}
	if p.Sample[1].Value[0] != 9000 || p.Sample[1].Value[1] != 1 {
		t.Fatalf("sample 1 = %v", p.Sample[1].Value)
	}
	if len(p.Function) != 2 || p.Function[1].Name != "pid 42" {
		t.Fatalf("function names = %+v", p.Function)
	}
}
