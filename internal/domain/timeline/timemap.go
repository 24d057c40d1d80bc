package timeline

import (
	"fmt"
	"sort"

	"github.com/forPelevin/editclick/internal/types"
)

// TimeMap maps source-video seconds onto the edited timeline. It is built
// once from the retained intervals and never changes afterwards.
type TimeMap struct {
	starts  []float64
	ends    []float64
	offsets []float64
	total   float64
	source  float64
}

// Piece is the part of a span that falls inside one retained interval.
type Piece struct {
	Interval int
	Orig     types.Span
	Edited   types.Span
}

func NewTimeMap(retained []types.Span, duration float64) (*TimeMap, error) {
	if len(retained) == 0 {
		return nil, &EmptyTimelineError{Duration: duration}
	}
	if !(duration > 0) {
		return nil, fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidInput, duration)
	}
	m := &TimeMap{
		starts:  make([]float64, len(retained)),
		ends:    make([]float64, len(retained)),
		offsets: make([]float64, len(retained)),
		source:  duration,
	}
	cursor := 0.0
	for i, r := range retained {
		if !r.Valid() || r.Start < 0 || r.End > duration+eps {
			return nil, fmt.Errorf("%w: retained interval %d [%v, %v) outside [0, %v]", ErrInvalidInput, i, r.Start, r.End, duration)
		}
		if i > 0 && r.Start < retained[i-1].End {
			return nil, fmt.Errorf("%w: retained interval %d starts at %v before previous end %v", ErrInvalidInput, i, r.Start, retained[i-1].End)
		}
		m.starts[i] = r.Start
		m.ends[i] = r.End
		m.offsets[i] = cursor
		cursor += r.End - r.Start
	}
	m.total = cursor
	return m, nil
}

// Duration is the edited length, the sum of all retained lengths.
func (m *TimeMap) Duration() float64 { return m.total }

// Source is the duration of the source video.
func (m *TimeMap) Source() float64 { return m.source }

func (m *TimeMap) Len() int { return len(m.starts) }

// Interval returns retained interval i in both time bases.
func (m *TimeMap) Interval(i int) (orig, edited types.Span) {
	orig = types.Span{Start: m.starts[i], End: m.ends[i]}
	edited = types.Span{Start: m.offsets[i], End: m.editedEnd(i)}
	return orig, edited
}

func (m *TimeMap) editedEnd(i int) float64 {
	return m.offsets[i] + (m.ends[i] - m.starts[i])
}

// Map maps a start point. t must lie in some [s_i, e_i).
func (m *TimeMap) Map(t float64) (float64, bool) {
	i := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > t }) - 1
	if i < 0 || t >= m.ends[i] {
		return 0, false
	}
	return m.offsets[i] + (t - m.starts[i]), true
}

// MapEnd maps an end point. t must lie in some (s_i, e_i], so the end of a
// retained interval maps onto the end of its edited span.
func (m *TimeMap) MapEnd(t float64) (float64, bool) {
	i := sort.Search(len(m.ends), func(i int) bool { return m.ends[i] >= t })
	if i == len(m.ends) || t <= m.starts[i] {
		return 0, false
	}
	return m.offsets[i] + (t - m.starts[i]), true
}

// Unmap maps an edited time back to the source. The edited end of the
// timeline maps to the end of the last retained interval.
func (m *TimeMap) Unmap(t float64) (float64, bool) {
	if t < 0 || t > m.total {
		return 0, false
	}
	i := sort.Search(len(m.offsets), func(i int) bool { return m.offsets[i] > t }) - 1
	if i < 0 {
		return 0, false
	}
	return m.starts[i] + (t - m.offsets[i]), true
}

// Clip returns the retained pieces of s in order. A span inside a removed
// region has none.
func (m *TimeMap) Clip(s types.Span) []Piece {
	first := sort.Search(len(m.ends), func(i int) bool { return m.ends[i] > s.Start })
	var out []Piece
	for i := first; i < len(m.starts) && m.starts[i] < s.End; i++ {
		st := max(s.Start, m.starts[i])
		en := min(s.End, m.ends[i])
		if en-st <= eps {
			continue
		}
		out = append(out, Piece{
			Interval: i,
			Orig:     types.Span{Start: st, End: en},
			Edited:   types.Span{Start: m.offsets[i] + (st - m.starts[i]), End: m.offsets[i] + (en - m.starts[i])},
		})
	}
	return out
}
