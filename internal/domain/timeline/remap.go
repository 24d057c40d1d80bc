package timeline

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

// placed is one remapped copy of an annotation. intervals lists the retained
// intervals it spans.
type placed struct {
	orig      types.Span
	edited    types.Span
	intervals []int
}

type outcome uint8

const (
	kept outcome = iota
	removed
	straddleDropped
	truncated
	split
)

type refKey struct {
	item     int
	interval int
}

type remapper struct {
	m        *TimeMap
	straddle Straddle
	log      *zerolog.Logger
	doc      *types.Document

	shotAt map[refKey]int
	segAt  map[refKey]int
	winAt  map[refKey]int
}

// Remap carries every annotation and merged entry onto the edited timeline
// and returns the unvalidated document. Annotations inside removed spans are
// dropped; straddling ones follow the straddle option.
func Remap(m *TimeMap, entries []Entry, s types.Streams, opts Options) *types.Document {
	r := &remapper{
		m:        m,
		straddle: opts.straddle(),
		log:      opts.logger(),
		doc: &types.Document{
			EditedDuration: m.Duration(),
			Straddle:       string(opts.straddle()),
			Shots:          []types.DocShot{},
			Segments:       []types.DocSegment{},
			Windows:        []types.DocWindow{},
			Timeline:       []types.DocEntry{},
		},
		shotAt: map[refKey]int{},
		segAt:  map[refKey]int{},
		winAt:  map[refKey]int{},
	}

	r.doc.Retained = make([]types.RetainedInterval, m.Len())
	for i := range m.Len() {
		orig, edited := m.Interval(i)
		r.doc.Retained[i] = types.RetainedInterval{Start: edited.Start, End: edited.End, Orig: orig}
	}

	for i, sh := range s.Shots {
		for _, p := range r.place(KindShot, i, sh.Span()) {
			r.index(r.shotAt, i, p, len(r.doc.Shots))
			r.doc.Shots = append(r.doc.Shots, types.DocShot{
				Start: p.edited.Start, End: p.edited.End, Orig: p.orig,
				Index: sh.Index, Probability: sh.Probability,
			})
		}
	}
	for i, seg := range s.Segments {
		for j, p := range r.place(KindSegment, i, seg.Span()) {
			r.index(r.segAt, i, p, len(r.doc.Segments))
			r.doc.Segments = append(r.doc.Segments, types.DocSegment{
				Start: p.edited.Start, End: p.edited.End, Orig: p.orig,
				ID: seg.ID, Text: seg.Text,
				Words: r.words(i, seg.Words, p, j == 0),
			})
		}
	}
	for i, w := range s.Windows {
		for _, p := range r.place(KindWindow, i, w.Span()) {
			r.index(r.winAt, i, p, len(r.doc.Windows))
			r.doc.Windows = append(r.doc.Windows, types.DocWindow{
				Start: p.edited.Start, End: p.edited.End, Orig: p.orig,
				Index: i, Features: w.Features,
			})
		}
	}

	for _, e := range entries {
		pieces := m.Clip(e.Span())
		if len(pieces) == 0 {
			r.doc.Dropped.Entries++
			continue
		}
		// Retained boundaries are shot boundaries, which are merge boundaries,
		// so an entry lands whole inside one interval.
		for _, pc := range pieces {
			r.doc.Timeline = append(r.doc.Timeline, types.DocEntry{
				Start: pc.Edited.Start, End: pc.Edited.End, Orig: pc.Orig,
				Shot:    r.lookup(r.shotAt, e.Shot, pc.Interval),
				Segment: r.lookup(r.segAt, e.Segment, pc.Interval),
				Window:  r.lookup(r.winAt, e.Window, pc.Interval),
			})
		}
	}
	return r.doc
}

func (r *remapper) index(at map[refKey]int, item int, p placed, pos int) {
	for _, iv := range p.intervals {
		at[refKey{item: item, interval: iv}] = pos
	}
}

func (r *remapper) lookup(at map[refKey]int, item, interval int) *int {
	if item == Unset {
		return nil
	}
	pos, ok := at[refKey{item: item, interval: interval}]
	if !ok {
		return nil
	}
	return &pos
}

// place resolves a source span into its edited copies and records the outcome.
func (r *remapper) place(k Kind, i int, s types.Span) []placed {
	out, res := resolve(r.m, s, r.straddle)
	switch res {
	case removed, straddleDropped:
		r.countDrop(k)
		reason := "inside removed span"
		if res == straddleDropped {
			reason = "straddles cut"
		}
		r.log.Info().
			Str("kind", k.String()).
			Int("index", i).
			Float64("start", s.Start).
			Float64("end", s.End).
			Str("reason", reason).
			Msg("annotation dropped")
	case truncated:
		r.doc.Dropped.Truncated++
		r.log.Debug().Str("kind", k.String()).Int("index", i).Msg("annotation truncated at cut")
	case split:
		r.doc.Dropped.Split++
		r.log.Debug().Str("kind", k.String()).Int("index", i).Int("pieces", len(out)).Msg("annotation split at cut")
	}
	return out
}

func (r *remapper) countDrop(k Kind) {
	switch k {
	case KindShot:
		r.doc.Dropped.Shots++
	case KindSegment:
		r.doc.Dropped.Segments++
	case KindWindow:
		r.doc.Dropped.Windows++
	}
}

func resolve(m *TimeMap, s types.Span, straddle Straddle) ([]placed, outcome) {
	s = types.Span{Start: max(s.Start, 0), End: min(s.End, m.Source())}
	pieces := m.Clip(s)
	if len(pieces) == 0 {
		return nil, removed
	}
	if len(pieces) == 1 && pieces[0].Orig == s {
		pc := pieces[0]
		return []placed{{orig: pc.Orig, edited: pc.Edited, intervals: []int{pc.Interval}}}, kept
	}
	switch straddle {
	case StraddleDrop:
		return nil, straddleDropped
	case StraddleSplit:
		out := lo.Map(pieces, func(pc Piece, _ int) placed {
			return placed{orig: pc.Orig, edited: pc.Edited, intervals: []int{pc.Interval}}
		})
		if len(out) == 1 {
			return out, truncated
		}
		return out, split
	default:
		first, last := pieces[0], pieces[len(pieces)-1]
		return []placed{{
			orig:      types.Span{Start: first.Orig.Start, End: last.Orig.End},
			edited:    types.Span{Start: first.Edited.Start, End: last.Edited.End},
			intervals: lo.Map(pieces, func(pc Piece, _ int) int { return pc.Interval }),
		}}, truncated
	}
}

// words remaps the words of segment seg into its placed copy p. Words are
// clipped to the intervals of p and to its edited span. A word is never
// split: under the split option each piece keeps its own part of the word.
// Drops are decided against the whole map and counted only by the owner,
// the first copy of the segment.
func (r *remapper) words(seg int, ws []types.Word, p placed, owner bool) []types.DocWord {
	if len(ws) == 0 {
		return nil
	}
	mode := r.straddle
	if mode == StraddleSplit {
		mode = StraddleTruncate
	}
	drop := func(wi int, w types.Word) {
		if !owner {
			return
		}
		r.doc.Dropped.Words++
		r.log.Info().
			Str("kind", "word").
			Int("segment", seg).
			Int("index", wi).
			Float64("start", w.Start).
			Float64("end", w.End).
			Msg("annotation dropped")
	}
	out := make([]types.DocWord, 0, len(ws))
	for wi, w := range ws {
		if !w.Span().Valid() {
			if owner {
				r.doc.Dropped.Words++
			}
			continue
		}
		all := r.m.Clip(w.Span())
		if len(all) == 0 || (mode == StraddleDrop && (len(all) != 1 || all[0].Orig != w.Span())) {
			drop(wi, w)
			continue
		}
		pieces := lo.Filter(all, func(pc Piece, _ int) bool {
			return lo.Contains(p.intervals, pc.Interval)
		})
		if len(pieces) == 0 {
			// Kept by another copy of the segment.
			continue
		}
		first, last := pieces[0], pieces[len(pieces)-1]
		dw := types.DocWord{
			Start: max(first.Edited.Start, p.edited.Start),
			End:   min(last.Edited.End, p.edited.End),
			Orig:  types.Span{Start: max(first.Orig.Start, p.orig.Start), End: min(last.Orig.End, p.orig.End)},
			Word:  w.Word,
		}
		if dw.End-dw.Start <= eps {
			drop(wi, w)
			continue
		}
		if n := len(out); n > 0 && dw.Start < out[n-1].End {
			// Overlapping upstream words: keep order, never overlap.
			dw.Start = out[n-1].End
			if orig, ok := r.m.Unmap(dw.Start); ok {
				dw.Orig.Start = orig
			}
			if dw.End-dw.Start <= eps {
				drop(wi, w)
				continue
			}
		}
		out = append(out, dw)
	}
	return out
}
