package accnt

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"
)

// Sample_t pairs a process's accounting record with the pid it belongs to,
// for WriteProfile to label each pprof sample.
type Sample_t struct {
	Pid   int
	Accnt *Accnt_t
}

// WriteProfile dumps a set of process accounting records as a gzipped
// pprof profile, one sample per process with "user" and "sys" value
// types in nanoseconds. The profile has no call stacks of its own --
// each process gets a single synthetic frame named by its pid, which is
// enough for `go tool pprof -top` to rank processes by time consumed
// without faking information this kernel doesn't keep.
func WriteProfile(w io.Writer, samples []Sample_t) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "user", Unit: "nanoseconds"},
			{Type: "sys", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     1,
	}

	for i, s := range samples {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: fmt.Sprintf("pid %d", s.Pid)}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)

		s.Accnt.Lock()
		u, sy := s.Accnt.Userns, s.Accnt.Sysns
		s.Accnt.Unlock()

		p.Sample = append(p.Sample, &profile.Sample{
			Value:    []int64{u, sy},
			Location: []*profile.Location{loc},
		})
	}

	return p.Write(w)
}
