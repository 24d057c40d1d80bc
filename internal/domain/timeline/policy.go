package timeline

import (
	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

// Unit is the smallest piece of the source a cut may remove: one shot, or one
// gap in the shot stream. Entries are the merged entries it covers.
type Unit struct {
	Start   float64
	End     float64
	Shot    *types.Shot
	Entries []Entry

	streams *types.Streams
}

func (u Unit) Span() types.Span  { return types.Span{Start: u.Start, End: u.End} }
func (u Unit) Duration() float64 { return u.End - u.Start }

// SpeechSeconds is how much of the unit a speech segment is active for.
func (u Unit) SpeechSeconds() float64 {
	return lo.SumBy(u.Entries, func(e Entry) float64 {
		if e.Segment == Unset {
			return 0
		}
		return e.End - e.Start
	})
}

func (u Unit) SpeechRatio() float64 {
	d := u.Duration()
	if d <= 0 {
		return 0
	}
	return u.SpeechSeconds() / d
}

// Segments returns the distinct speech segments active in the unit.
func (u Unit) Segments() []types.Segment {
	if u.streams == nil {
		return nil
	}
	idx := lo.Uniq(lo.FilterMap(u.Entries, func(e Entry, _ int) (int, bool) { return e.Segment, e.Segment != Unset }))
	return lo.Map(idx, func(i int, _ int) types.Segment { return u.streams.Segments[i] })
}

// Windows returns the distinct feature windows active in the unit.
func (u Unit) Windows() []types.FeatureWindow {
	if u.streams == nil {
		return nil
	}
	idx := lo.Uniq(lo.FilterMap(u.Entries, func(e Entry, _ int) (int, bool) { return e.Window, e.Window != Unset }))
	return lo.Map(idx, func(i int, _ int) types.FeatureWindow { return u.streams.Windows[i] })
}

// Energy returns the overlap-weighted mean RMS level and BPM of the feature
// windows covering the unit. ok is false when no window covers it.
func (u Unit) Energy() (rmsDB, bpm float64, ok bool) {
	if u.streams == nil {
		return 0, 0, false
	}
	var covered, bpmCovered float64
	for _, e := range u.Entries {
		if e.Window == Unset {
			continue
		}
		w := u.streams.Windows[e.Window]
		d := e.End - e.Start
		covered += d
		rmsDB += w.RMSDB * d
		if w.BPM > 0 {
			bpm += w.BPM * d
			bpmCovered += d
		}
	}
	if covered <= 0 {
		return 0, 0, false
	}
	rmsDB /= covered
	if bpmCovered > 0 {
		bpm /= bpmCovered
	}
	return rmsDB, bpm, true
}

// Policy decides whether a unit stays in the edit.
type Policy interface {
	Keep(u Unit) bool
}

type PolicyFunc func(u Unit) bool

func (f PolicyFunc) Keep(u Unit) bool { return f(u) }

var KeepAll Policy = PolicyFunc(func(Unit) bool { return true })

// DropShots removes the shots with the given indices. Gap units are kept.
func DropShots(indices ...int) Policy {
	drop := lo.Associate(indices, func(i int) (int, struct{}) { return i, struct{}{} })
	return PolicyFunc(func(u Unit) bool {
		if u.Shot == nil {
			return true
		}
		_, ok := drop[u.Shot.Index]
		return !ok
	})
}

// All keeps a unit only if every policy keeps it.
func All(ps ...Policy) Policy {
	return PolicyFunc(func(u Unit) bool {
		for _, p := range ps {
			if p != nil && !p.Keep(u) {
				return false
			}
		}
		return true
	})
}

// SilenceEnergy drops units that carry no speech and whose audio is quiet and
// slow. A unit with speech covering at least MinSpeechRatio of it is kept.
// Otherwise it is kept only if its mean level reaches MinRMSDB or, when
// MinBPM is positive, its tempo reaches MinBPM.
type SilenceEnergy struct {
	MinSpeechRatio float64
	MinRMSDB       float64
	MinBPM         float64
}

func DefaultSilenceEnergy() SilenceEnergy {
	return SilenceEnergy{MinSpeechRatio: 0.1, MinRMSDB: -35, MinBPM: 0}
}

func (p SilenceEnergy) Keep(u Unit) bool {
	if u.SpeechSeconds() > 0 && u.SpeechRatio() >= p.MinSpeechRatio {
		return true
	}
	rms, bpm, ok := u.Energy()
	if !ok {
		return false
	}
	if rms >= p.MinRMSDB {
		return true
	}
	return p.MinBPM > 0 && bpm >= p.MinBPM
}
