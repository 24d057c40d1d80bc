package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

// Kind tags the three annotation streams. The numeric order is also the
// tie-break order of the merge sweep.
type Kind uint8

const (
	KindShot Kind = iota
	KindSegment
	KindWindow
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindShot:
		return "shot"
	case KindSegment:
		return "segment"
	case KindWindow:
		return "window"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Unset marks an empty reference slot in an Entry.
const Unset = -1

// eps absorbs float noise at boundaries; spans shorter than this are treated as empty.
const eps = 1e-6

// Entry is one stretch of the master timeline during which the set of active
// annotations does not change. Shot, Segment and Window are positions in the
// corresponding input stream, or Unset.
type Entry struct {
	Start   float64
	End     float64
	Shot    int
	Segment int
	Window  int
}

func (e Entry) Span() types.Span { return types.Span{Start: e.Start, End: e.End} }

// Ref returns the reference held in the slot for k.
func (e Entry) Ref(k Kind) (int, bool) {
	var idx int
	switch k {
	case KindShot:
		idx = e.Shot
	case KindSegment:
		idx = e.Segment
	case KindWindow:
		idx = e.Window
	default:
		return Unset, false
	}
	return idx, idx != Unset
}

func (e Entry) sameRefs(o Entry) bool {
	return e.Shot == o.Shot && e.Segment == o.Segment && e.Window == o.Window
}

type event struct {
	t     float64
	start bool
	kind  Kind
	idx   int
}

// Merge sweeps the boundaries of all three streams and returns entries that
// cover [0, duration) without gaps or overlaps.
func Merge(s types.Streams, duration float64) ([]Entry, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidInput, duration)
	}

	streams := [numKinds][]types.Span{
		KindShot:    lo.Map(s.Shots, func(x types.Shot, _ int) types.Span { return x.Span() }),
		KindSegment: lo.Map(s.Segments, func(x types.Segment, _ int) types.Span { return x.Span() }),
		KindWindow:  lo.Map(s.Windows, func(x types.FeatureWindow, _ int) types.Span { return x.Span() }),
	}

	total := 0
	for k, spans := range streams {
		if err := checkStream(Kind(k), spans); err != nil {
			return nil, err
		}
		total += len(spans)
	}

	events := make([]event, 0, 2*total)
	for k, spans := range streams {
		for i, sp := range spans {
			st := math.Max(sp.Start, 0)
			en := math.Min(sp.End, duration)
			if en-st <= eps {
				continue
			}
			events = append(events,
				event{t: st, start: true, kind: Kind(k), idx: i},
				event{t: en, start: false, kind: Kind(k), idx: i},
			)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.t != b.t {
			return a.t < b.t
		}
		if a.start != b.start {
			return a.start
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.idx < b.idx
	})

	active := [numKinds]int{Unset, Unset, Unset}
	out := make([]Entry, 0, len(events)+1)
	cursor := 0.0
	emit := func(end float64) {
		if end-cursor <= eps {
			return
		}
		e := Entry{Start: cursor, End: end, Shot: active[KindShot], Segment: active[KindSegment], Window: active[KindWindow]}
		if n := len(out); n > 0 && out[n-1].sameRefs(e) {
			out[n-1].End = end
		} else {
			out = append(out, e)
		}
		cursor = end
	}

	for _, ev := range events {
		if ev.t > cursor {
			emit(ev.t)
		}
		if ev.start {
			active[ev.kind] = ev.idx
		} else if active[ev.kind] == ev.idx {
			// A later item of the same stream may already have started at
			// this instant; only clear the slot if it is still ours.
			active[ev.kind] = Unset
		}
	}
	emit(duration)

	switch n := len(out); {
	case n == 0:
		out = append(out, Entry{Start: 0, End: duration, Shot: Unset, Segment: Unset, Window: Unset})
	case out[n-1].End != duration:
		out[n-1].End = duration
	}
	return out, nil
}

func checkStream(k Kind, spans []types.Span) error {
	for i, sp := range spans {
		if !sp.Valid() {
			return fmt.Errorf("%w: %s %d has invalid span [%v, %v)", ErrInvalidInput, k, i, sp.Start, sp.End)
		}
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		if sp.Start < prev.End-eps {
			return &AnnotationOverlapError{Kind: k, Index: i, Prev: i - 1, Start: sp.Start, PrevEnd: prev.End}
		}
	}
	return nil
}
