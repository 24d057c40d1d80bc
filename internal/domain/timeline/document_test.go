package timeline

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forPelevin/editclick/internal/types"
)

func TestBuild_DroppedShotShiftsLaterSpeech(t *testing.T) {
	t.Parallel()

	res, err := Build(Input{
		Duration: 15,
		Streams: types.Streams{
			Shots:    shots(0, 5, 10, 15),
			Segments: []types.Segment{seg(12, 13, "later")},
		},
	}, Options{Policy: DropShots(1)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Retained) != 2 || res.Retained[0] != (types.Span{Start: 0, End: 5}) || res.Retained[1] != (types.Span{Start: 10, End: 15}) {
		t.Fatalf("retained=%+v", res.Retained)
	}
	doc := res.Document
	if len(doc.Segments) != 1 {
		t.Fatalf("segments=%+v", doc.Segments)
	}
	if s := doc.Segments[0]; s.Start != 7 || s.End != 8 || s.Orig != (types.Span{Start: 12, End: 13}) {
		t.Fatalf("segment=%+v", s)
	}
	if doc.EditedDuration != 10 || doc.Dropped.Shots != 1 {
		t.Fatalf("edited=%v dropped=%+v", doc.EditedDuration, doc.Dropped)
	}
	if len(doc.Shots) != 2 || doc.Shots[1].Index != 2 || doc.Shots[1].Start != 5 {
		t.Fatalf("shots=%+v", doc.Shots)
	}
}

func TestBuild_Straddle(t *testing.T) {
	t.Parallel()

	words := []types.Word{{Start: 4, End: 4.5, Word: "a"}, {Start: 4.6, End: 5.4, Word: "b"}, {Start: 5.5, End: 6, Word: "c"}}
	in := Input{
		Duration: 10,
		Streams: types.Streams{
			Shots:    shots(0, 5, 10),
			Segments: []types.Segment{{Start: 4, End: 6, Text: "a b c", Words: words}},
		},
	}

	t.Run("truncate", func(t *testing.T) {
		t.Parallel()
		res, err := Build(in, Options{Policy: DropShots(1)})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		doc := res.Document
		if len(doc.Segments) != 1 {
			t.Fatalf("segments=%+v", doc.Segments)
		}
		s := doc.Segments[0]
		if s.Start != 4 || s.End != 5 || s.Orig != (types.Span{Start: 4, End: 5}) {
			t.Fatalf("segment=%+v", s)
		}
		if len(s.Words) != 2 || s.Words[1].End != 5 || s.Words[1].Word != "b" {
			t.Fatalf("words=%+v", s.Words)
		}
		if doc.Dropped.Truncated != 1 || doc.Dropped.Words != 1 {
			t.Fatalf("dropped=%+v", doc.Dropped)
		}
		if doc.Straddle != string(StraddleTruncate) {
			t.Fatalf("straddle=%q", doc.Straddle)
		}
	})

	t.Run("drop", func(t *testing.T) {
		t.Parallel()
		res, err := Build(in, Options{Policy: DropShots(1), Straddle: StraddleDrop})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if n := len(res.Document.Segments); n != 0 || res.Document.Dropped.Segments != 1 {
			t.Fatalf("segments=%d dropped=%+v", n, res.Document.Dropped)
		}
		for _, e := range res.Document.Timeline {
			if e.Segment != nil {
				t.Fatalf("entry references dropped segment: %+v", e)
			}
		}
	})

	t.Run("split", func(t *testing.T) {
		t.Parallel()
		res, err := Build(Input{
			Duration: 15,
			Streams: types.Streams{
				Shots:    shots(0, 5, 10, 15),
				Segments: []types.Segment{seg(4, 11, "long")},
			},
		}, Options{Policy: DropShots(1), Straddle: StraddleSplit})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		doc := res.Document
		if len(doc.Segments) != 2 || doc.Dropped.Split != 1 {
			t.Fatalf("segments=%+v dropped=%+v", doc.Segments, doc.Dropped)
		}
		if doc.Segments[0].End != 5 || doc.Segments[1].Start != 5 || doc.Segments[1].End != 6 {
			t.Fatalf("pieces=%+v", doc.Segments)
		}
		if doc.Segments[1].Orig != (types.Span{Start: 10, End: 11}) {
			t.Fatalf("second orig=%+v", doc.Segments[1].Orig)
		}
		var refs []int
		for _, e := range doc.Timeline {
			if e.Segment != nil {
				refs = append(refs, *e.Segment)
			}
		}
		if len(refs) != 2 || refs[0] != 0 || refs[1] != 1 {
			t.Fatalf("entry segment refs=%v", refs)
		}
	})
}

func TestBuild_SplitKeepsWordsInTheirPiece(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	words := []types.Word{{Start: 4, End: 4.5, Word: "a"}, {Start: 6, End: 7, Word: "gone"}, {Start: 10.2, End: 10.8, Word: "b"}}
	res, err := Build(Input{
		Duration: 15,
		Streams: types.Streams{
			Shots:    shots(0, 5, 10, 15),
			Segments: []types.Segment{{Start: 4, End: 11, Text: "a gone b", Words: words}},
		},
	}, Options{Policy: DropShots(1), Straddle: StraddleSplit, Log: &log})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	doc := res.Document
	if len(doc.Segments) != 2 {
		t.Fatalf("segments=%+v", doc.Segments)
	}
	first, second := doc.Segments[0].Words, doc.Segments[1].Words
	if len(first) != 1 || first[0].Word != "a" || len(second) != 1 || second[0].Word != "b" {
		t.Fatalf("words=%+v / %+v", first, second)
	}
	if math.Abs(second[0].Start-5.2) > 1e-9 || second[0].Orig != (types.Span{Start: 10.2, End: 10.8}) {
		t.Fatalf("second word=%+v", second[0])
	}
	if doc.Dropped.Words != 1 {
		t.Fatalf("dropped words=%d, want only the word inside the cut", doc.Dropped.Words)
	}
	if n := strings.Count(buf.String(), `"kind":"word"`); n != 1 {
		t.Fatalf("word drop events=%d\n%s", n, buf.String())
	}
}

func TestBuild_OverlappingWordsAcrossCutKeepOrigin(t *testing.T) {
	t.Parallel()

	words := []types.Word{{Start: 4.8, End: 10.6, Word: "x"}, {Start: 4.9, End: 10.8, Word: "y"}}
	res, err := Build(Input{
		Duration: 15,
		Streams: types.Streams{
			Shots:    shots(0, 5, 10, 15),
			Segments: []types.Segment{{Start: 4, End: 12, Text: "x y", Words: words}},
		},
	}, Options{Policy: DropShots(1)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ws := res.Document.Segments[0].Words
	if len(ws) != 2 {
		t.Fatalf("words=%+v", ws)
	}
	y := ws[1]
	if math.Abs(y.Start-ws[0].End) > 1e-9 {
		t.Fatalf("y starts at %v, want %v", y.Start, ws[0].End)
	}
	if math.Abs(y.Orig.Start-10.6) > 1e-9 {
		t.Fatalf("y orig start=%v, want 10.6 past the cut", y.Orig.Start)
	}
	back, ok := res.TimeMap.Unmap(y.Start)
	if !ok || math.Abs(back-y.Orig.Start) > 1e-9 {
		t.Fatalf("unmap(%v)=%v,%v orig=%v", y.Start, back, ok, y.Orig.Start)
	}
}

func TestBuild_EmptyPolicy(t *testing.T) {
	t.Parallel()

	_, err := Build(Input{Duration: 10, Streams: types.Streams{Shots: shots(0, 3, 10)}},
		Options{Policy: PolicyFunc(func(Unit) bool { return false })})
	var ee *EmptyTimelineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmptyTimelineError, got %v", err)
	}
}

func TestBuild_SilentGapKeepsUnsetSlot(t *testing.T) {
	t.Parallel()

	res, err := Build(Input{
		Duration: 6,
		Streams:  types.Streams{Segments: []types.Segment{seg(0, 3, "a"), seg(4, 6, "b")}},
	}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tl := res.Document.Timeline
	if len(tl) != 3 || tl[1].Start != 3 || tl[1].End != 4 || tl[1].Segment != nil {
		t.Fatalf("timeline=%+v", tl)
	}
	if tl[2].Segment == nil || *tl[2].Segment != 1 {
		t.Fatalf("last entry=%+v", tl[2])
	}
}

func TestBuild_LogsDroppedAnnotations(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	_, err := Build(Input{
		Duration: 10,
		Streams: types.Streams{
			Shots:    shots(0, 5, 10),
			Segments: []types.Segment{seg(6, 7, "gone")},
		},
	}, Options{Policy: DropShots(1), Log: &log})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) || !strings.Contains(out, `"kind":"segment"`) || !strings.Contains(out, "annotation dropped") {
		t.Fatalf("log output: %s", out)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	res, err := Build(Input{Duration: 15, Streams: types.Streams{Shots: shots(0, 5, 10, 15)}}, Options{Policy: DropShots(0)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	doc := res.Document
	if err := Verify(doc, 10.1, 0); err != nil {
		t.Fatalf("Verify within tolerance: %v", err)
	}
	err = Verify(doc, 10.5, 0)
	var ce *TimelineConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("expected TimelineConsistencyError, got %v", err)
	}
	if ce.Expected != 10 || ce.Actual != 10.5 || ce.Tolerance != DefaultTolerance {
		t.Fatalf("error fields: %+v", ce)
	}
	if err := Verify(doc, 10.5, 1); err != nil {
		t.Fatalf("Verify with wide tolerance: %v", err)
	}
}

func TestValidate_RejectsBrokenDocuments(t *testing.T) {
	t.Parallel()

	res, err := Build(Input{
		Duration: 10,
		Streams:  types.Streams{Shots: shots(0, 5, 10), Segments: []types.Segment{seg(1, 2, "a"), seg(6, 7, "b")}},
	}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(d *types.Document)
	}{
		{name: "segments out of order", mutate: func(d *types.Document) { d.Segments[0], d.Segments[1] = d.Segments[1], d.Segments[0] }},
		{name: "segment past end", mutate: func(d *types.Document) { d.Segments[1].End = 11 }},
		{name: "timeline gap", mutate: func(d *types.Document) { d.Timeline = d.Timeline[1:] }},
		{name: "bad reference", mutate: func(d *types.Document) { bad := 9; d.Timeline[0].Segment = &bad }},
		{name: "duration mismatch", mutate: func(d *types.Document) { d.EditedDuration = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw, err := Encode(res.Document)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			doc, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if err := Validate(doc); err != nil {
				t.Fatalf("decoded document invalid: %v", err)
			}
			tt.mutate(doc)
			var ce *TimelineConsistencyError
			if err := Validate(doc); !errors.As(err, &ce) {
				t.Fatalf("expected TimelineConsistencyError, got %v", err)
			}
		})
	}
}

// randomInput builds a plausible analysis: contiguous shots with occasional
// gaps, sparse speech with words, and fixed feature windows.
func randomInput(r *rand.Rand) Input {
	var in Input
	t := 0.0
	for i := 0; i < 4+r.Intn(12); i++ {
		if r.Intn(6) == 0 {
			t += 0.2 + r.Float64()*2
		}
		d := 0.5 + r.Float64()*6
		in.Streams.Shots = append(in.Streams.Shots, types.Shot{Index: i, Start: t, End: t + d})
		t += d
	}
	in.Duration = t + r.Float64()

	for t = r.Float64() * 2; ; {
		d := 0.3 + r.Float64()*4
		if t+d > in.Duration+1 {
			break
		}
		s := types.Segment{ID: len(in.Streams.Segments), Start: t, End: t + d, Text: "w"}
		for wt := t; wt+0.2 < t+d; wt += 0.25 + r.Float64()*0.3 {
			s.Words = append(s.Words, types.Word{Start: wt, End: wt + 0.2, Word: "w"})
		}
		in.Streams.Segments = append(in.Streams.Segments, s)
		t += d + r.Float64()*2
	}

	for t = 0; t < in.Duration; t += 2.5 {
		in.Streams.Windows = append(in.Streams.Windows, types.FeatureWindow{
			Start: t, End: min(t+2.5, in.Duration),
			Features: types.Features{Emotion: "neu", RMSDB: -60 + r.Float64()*50, BPM: 90},
		})
	}
	return in
}

func randomPolicy(r *rand.Rand, in Input) Policy {
	var drop []int
	for _, s := range in.Streams.Shots {
		if r.Intn(10) < 4 {
			drop = append(drop, s.Index)
		}
	}
	return DropShots(drop...)
}

func TestBuild_Properties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		in := randomInput(r)
		straddle := []Straddle{StraddleTruncate, StraddleDrop, StraddleSplit}[trial%3]
		opts := Options{Policy: randomPolicy(r, in), Straddle: straddle}

		entries, err := Merge(in.Streams, in.Duration)
		if err != nil {
			t.Fatalf("trial %d: Merge: %v", trial, err)
		}
		if entries[0].Start != 0 || entries[len(entries)-1].End != in.Duration {
			t.Fatalf("trial %d: merge does not cover [0,%v)", trial, in.Duration)
		}
		for i := 1; i < len(entries); i++ {
			if entries[i].Start != entries[i-1].End {
				t.Fatalf("trial %d: merge gap at %d", trial, i)
			}
		}

		res, err := Build(in, opts)
		if err != nil {
			var ee *EmptyTimelineError
			if errors.As(err, &ee) {
				continue
			}
			t.Fatalf("trial %d: Build: %v", trial, err)
		}
		doc := res.Document

		bounds := map[float64]bool{0: true, in.Duration: true}
		for _, s := range in.Streams.Shots {
			bounds[s.Start] = true
			bounds[s.End] = true
		}
		sum := 0.0
		for _, k := range res.Retained {
			if !bounds[k.Start] || !bounds[k.End] {
				t.Fatalf("trial %d: retained %+v not on shot boundaries", trial, k)
			}
			sum += k.End - k.Start
		}
		if math.Abs(sum-doc.EditedDuration) > 1e-9 {
			t.Fatalf("trial %d: retained sum %v != edited %v", trial, sum, doc.EditedDuration)
		}

		if got, ok := res.TimeMap.Map(res.Retained[0].Start); !ok || got != 0 {
			t.Fatalf("trial %d: map(first retained start)=%v,%v", trial, got, ok)
		}
		prev := -1.0
		for _, k := range res.Retained {
			for _, f := range []float64{0, 0.25, 0.5, 0.99} {
				got, ok := res.TimeMap.Map(k.Start + f*(k.End-k.Start))
				if !ok || got < prev {
					t.Fatalf("trial %d: map not monotonic at %v", trial, k.Start+f*(k.End-k.Start))
				}
				prev = got
			}
		}

		for i, s := range doc.Segments {
			back, ok := res.TimeMap.Unmap(s.Start)
			if !ok || math.Abs(back-s.Orig.Start) > 1e-9 {
				t.Fatalf("trial %d: segment %d start %v unmaps to %v, orig %v", trial, i, s.Start, back, s.Orig.Start)
			}
			fwd, ok := res.TimeMap.Map(s.Orig.Start)
			if !ok || math.Abs(fwd-s.Start) > 1e-9 {
				t.Fatalf("trial %d: segment %d orig start %v maps to %v, edited %v", trial, i, s.Orig.Start, fwd, s.Start)
			}
			for _, w := range s.Words {
				if w.Start < s.Start-1e-9 || w.End > s.End+1e-9 {
					t.Fatalf("trial %d: word %+v outside segment %+v", trial, w, s)
				}
			}
		}

		again, err := Build(in, opts)
		if err != nil {
			t.Fatalf("trial %d: rebuild: %v", trial, err)
		}
		a, _ := Encode(doc)
		b, _ := Encode(again.Document)
		if !bytes.Equal(a, b) || doc.ID != again.Document.ID {
			t.Fatalf("trial %d: rebuild is not identical", trial)
		}
		if err := Verify(doc, doc.EditedDuration, 0); err != nil {
			t.Fatalf("trial %d: Verify: %v", trial, err)
		}
	}
}
