package bgm

import (
	"math"

	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

type Options struct {
	MinWindowSec float64 // minimum cue length
	MarginSec    float64 // generated clip is this much shorter than its cue
	MinClipSec   float64
}

func DefaultOptions() Options {
	return Options{MinWindowSec: 15, MarginSec: 1.5, MinClipSec: 4}
}

// Cue is a planned music section with its mood and generation request.
type Cue struct {
	types.MusicCue
	Mood    Mood    `json:"mood"`
	ClipSec float64 `json:"clip_sec"`
}

// Plan splits the edited video into music cues along shot boundaries and
// writes a prompt for each.
func Plan(doc *types.Document, opts Options) []Cue {
	groups := Groups(doc, opts.MinWindowSec)
	return lo.Map(groups, func(g types.Span, i int) Cue {
		mood := Analyze(doc, g)
		return Cue{
			MusicCue: types.MusicCue{
				Index:  i + 1,
				Start:  g.Start,
				End:    g.End,
				Prompt: Prompt(i+1, g, mood, opts),
			},
			Mood:    mood,
			ClipSec: ClipLength(g, opts),
		}
	})
}

// Groups accumulates consecutive edited shots until a group is at least
// minWindow long. A short trailing group is folded into the one before it.
// The groups tile [0, edited duration).
func Groups(doc *types.Document, minWindow float64) []types.Span {
	total := doc.EditedDuration
	if total <= 0 {
		return nil
	}
	if len(doc.Shots) == 0 {
		return []types.Span{{Start: 0, End: total}}
	}

	var groups []types.Span
	cur := types.Span{Start: 0, End: doc.Shots[0].End}
	for _, sh := range doc.Shots[1:] {
		cur.End = math.Max(cur.End, sh.Start)
		if cur.End-cur.Start < minWindow {
			cur.End = sh.End
			continue
		}
		groups = append(groups, cur)
		cur = types.Span{Start: cur.End, End: sh.End}
	}
	cur.End = total
	groups = append(groups, cur)

	if n := len(groups); n >= 2 && groups[n-1].Duration() < minWindow {
		groups[n-2].End = groups[n-1].End
		groups = groups[:n-1]
	}
	return groups
}

// ClipLength is the length to request from the generator for a cue.
func ClipLength(g types.Span, opts Options) float64 {
	return math.Max(g.Duration()-opts.MarginSec, opts.MinClipSec)
}
