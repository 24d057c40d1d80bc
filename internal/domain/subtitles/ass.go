package subtitles

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

// ErrNoCaptions is returned when the document holds no speech worth showing.
var ErrNoCaptions = errors.New("no captions to render")

type Options struct {
	MarginSec      float64
	MinDurationSec float64
	DelaySec       float64
	Font           string
	FontSize       int
	Karaoke        bool
}

func DefaultOptions() Options {
	return Options{MarginSec: 0.08, MinDurationSec: 0.30, Font: "Arial", FontSize: 42, Karaoke: true}
}

type wword struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []wword
	Text  string
	Style Style
}

// RenderASS renders the document's speech segments as an ASS script on the
// edited timeline, one styled dialogue block per segment.
func RenderASS(doc *types.Document, opts Options) (string, error) {
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultOptions().FontSize
	}
	if strings.TrimSpace(opts.Font) == "" {
		opts.Font = DefaultOptions().Font
	}

	var lines []line
	for _, seg := range doc.Segments {
		lines = append(lines, segmentLines(doc, seg, opts)...)
	}
	if len(lines) == 0 {
		return "", ErrNoCaptions
	}
	return renderASS(lines, opts), nil
}

func segmentLines(doc *types.Document, seg types.DocSegment, opts Options) []line {
	if seg.End-seg.Start < 0.05 {
		return nil
	}
	text := sanitizeASS(seg.Text)

	visS := seg.Start + opts.MarginSec
	visE := seg.End - opts.MarginSec
	if visE-visS < opts.MinDurationSec {
		visS, visE = seg.Start, seg.End
	}
	visS += opts.DelaySec
	visE += opts.DelaySec
	if doc.EditedDuration > 0 {
		visE = min(visE, doc.EditedDuration)
	}
	if visE <= visS {
		return nil
	}

	feats, ok := dominantFeatures(doc, seg.Span())
	style := DecideStyle(feats, ok, opts.FontSize)
	start, end := dur(visS), dur(visE)

	words := collectWords(seg.Words, opts.DelaySec, start, end)
	if !opts.Karaoke || len(words) == 0 {
		if text == "" {
			return nil
		}
		return []line{{Start: start, End: end, Text: text, Style: style}}
	}

	out := packWords(words)
	minDur := dur(opts.MinDurationSec)
	for i := range out {
		out[i].Style = style
		if out[i].End-out[i].Start < minDur {
			limit := end
			if i+1 < len(out) {
				limit = out[i+1].Start
			}
			out[i].End = min(out[i].Start+minDur, max(limit, out[i].End))
		}
	}
	return out
}

// dominantFeatures returns the features of the window that overlaps span the
// most on the edited timeline.
func dominantFeatures(doc *types.Document, span types.Span) (types.Features, bool) {
	overlap := func(w types.DocWindow) float64 {
		return min(w.End, span.End) - max(w.Start, span.Start)
	}
	hits := lo.Filter(doc.Windows, func(w types.DocWindow, _ int) bool { return overlap(w) > 0 })
	if len(hits) == 0 {
		return types.Features{}, false
	}
	best := lo.MaxBy(hits, func(a, b types.DocWindow) bool { return overlap(a) > overlap(b) })
	return best.Features, true
}

func collectWords(ws []types.DocWord, delay float64, start, end time.Duration) []wword {
	var out []wword
	for _, w := range ws {
		text := sanitizeASS(w.Word)
		if text == "" {
			continue
		}
		s, e := dur(w.Start+delay), dur(w.End+delay)
		s, e = max(s, start), min(e, end)
		if e <= s {
			continue
		}
		out = append(out, wword{Start: s, End: e, Text: text})
	}
	return out
}

func packWords(words []wword) []line {
	var out []line
	cur := line{Start: words[0].Start}
	// Hard budgets keep every caption readable on vertical-video layouts.
	charBudget := 42
	wordBudget := 9
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.Text))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		if len(cur.Words) > 0 && (len(cur.Words) >= wordBudget || nextLen > charBudget) {
			cur.End = cur.Words[len(cur.Words)-1].End
			out = append(out, cur)
			cur = line{Start: w.Start}
			curLen = 0
		}
		cur.Words = append(cur.Words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.End = w.End
			out = append(out, cur)
		}
	}
	return out
}

func renderASS(lines []line, opts Options) string {
	var b strings.Builder
	b.WriteString(assHeader(opts.Font, opts.FontSize))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.Start))
		b.WriteString(",")
		b.WriteString(assTime(ln.End))
		b.WriteString(",Caption,,0,0,0,,")
		b.WriteString(ln.Style.override(opts.FontSize))
		if len(ln.Words) == 0 {
			b.WriteString(ln.Text)
			b.WriteString("\n")
			continue
		}
		for i, w := range ln.Words {
			durCS := int((w.End - w.Start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(fmt.Sprintf("{\\k%d}%s", durCS, w.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader(font string, size int) string {
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, %s, %d, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,2,0,2, 80,80,140,1
`, sanitizeASS(font), size))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(math.Round(sec * float64(time.Second))) }
