package timeline

import (
	"math"

	"github.com/forPelevin/editclick/internal/types"
)

// Units groups merged entries by the shot they fall in. Consecutive entries
// without a shot form one gap unit.
func Units(entries []Entry, s types.Streams) []Unit {
	var out []Unit
	for _, e := range entries {
		if n := len(out); n > 0 && sameShot(out[n-1], e) {
			out[n-1].End = e.End
			out[n-1].Entries = append(out[n-1].Entries, e)
			continue
		}
		u := Unit{Start: e.Start, End: e.End, Entries: []Entry{e}, streams: &s}
		if e.Shot != Unset {
			shot := s.Shots[e.Shot]
			u.Shot = &shot
		}
		out = append(out, u)
	}
	return out
}

func sameShot(u Unit, e Entry) bool {
	if u.Shot == nil {
		return e.Shot == Unset
	}
	return e.Shot != Unset && u.Entries[0].Shot == e.Shot
}

// Plan runs the policy over every unit and returns the retained intervals,
// merging kept neighbours. Every boundary it returns is a unit boundary.
func Plan(entries []Entry, s types.Streams, p Policy) ([]types.Span, error) {
	if p == nil {
		p = KeepAll
	}
	units := Units(entries, s)

	var keeps []types.Span
	for _, u := range units {
		if !p.Keep(u) {
			continue
		}
		if n := len(keeps); n > 0 && math.Abs(keeps[n-1].End-u.Start) <= eps {
			keeps[n-1].End = u.End
			continue
		}
		keeps = append(keeps, u.Span())
	}
	if len(keeps) == 0 {
		var total float64
		if n := len(entries); n > 0 {
			total = entries[n-1].End
		}
		return nil, &EmptyTimelineError{Units: len(units), Duration: total}
	}
	return keeps, nil
}

// Complement returns the removed spans of [0, duration) given sorted keeps.
func Complement(keeps []types.Span, duration float64) []types.Span {
	var out []types.Span
	cursor := 0.0
	for _, k := range keeps {
		if k.Start-cursor > eps {
			out = append(out, types.Span{Start: cursor, End: k.Start})
		}
		cursor = math.Max(cursor, k.End)
	}
	if duration-cursor > eps {
		out = append(out, types.Span{Start: cursor, End: duration})
	}
	return out
}
