package timeline

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/forPelevin/editclick/internal/types"
)

const DocumentVersion = 1

// DefaultTolerance is the largest accepted gap, in seconds, between the
// document's edited duration and the duration of the cut video.
const DefaultTolerance = 0.15

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("editclick/document"))

type Input struct {
	Duration float64
	Streams  types.Streams
}

type Result struct {
	Document *types.Document
	Entries  []Entry
	Retained []types.Span
	TimeMap  *TimeMap
}

// Build runs merge, plan and remap over one video's annotations and returns
// the validated document.
func Build(in Input, opts Options) (*Result, error) {
	log := opts.logger()

	entries, err := Merge(in.Streams, in.Duration)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("entries", len(entries)).Msg("annotations merged")

	keeps, err := Plan(entries, in.Streams, opts.policy())
	if err != nil {
		return nil, err
	}

	m, err := NewTimeMap(keeps, in.Duration)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("retained", len(keeps)).
		Float64("source_sec", in.Duration).
		Float64("edited_sec", m.Duration()).
		Msg("cut planned")

	doc := Remap(m, entries, in.Streams, opts)
	doc.Version = DocumentVersion
	doc.SourceDuration = in.Duration
	if err := Validate(doc); err != nil {
		return nil, err
	}
	id, err := DocumentID(doc)
	if err != nil {
		return nil, err
	}
	doc.ID = id

	return &Result{Document: doc, Entries: entries, Retained: keeps, TimeMap: m}, nil
}

// Validate checks the internal consistency of a remapped document.
func Validate(doc *types.Document) error {
	if doc == nil {
		return inconsistent("nil document")
	}
	total := doc.EditedDuration
	if !(total > 0) {
		return inconsistent("edited duration %v is not positive", total)
	}
	if len(doc.Retained) == 0 {
		return inconsistent("no retained intervals")
	}

	cursor, sum := 0.0, 0.0
	for i, r := range doc.Retained {
		if r.Start != cursor {
			return inconsistent("retained interval %d starts at %v, expected %v", i, r.Start, cursor)
		}
		if !r.Orig.Valid() || !(r.End > r.Start) {
			return inconsistent("retained interval %d is empty", i)
		}
		sum += r.Orig.End - r.Orig.Start
		cursor = r.End
	}
	if cursor != total {
		return inconsistent("retained intervals end at %v, edited duration is %v", cursor, total)
	}
	if math.Abs(sum-total) > eps {
		return inconsistent("retained lengths sum to %v, edited duration is %v", sum, total)
	}

	check := func(kind string, spans []types.Span) error {
		for i, s := range spans {
			if !(s.End > s.Start) || s.Start < -eps || s.End > total+eps {
				return inconsistent("%s %d [%v, %v) outside [0, %v]", kind, i, s.Start, s.End, total)
			}
			if i > 0 && s.Start < spans[i-1].End-eps {
				return inconsistent("%s %d starts at %v before %s %d ends at %v", kind, i, s.Start, kind, i-1, spans[i-1].End)
			}
		}
		return nil
	}

	if err := check("shot", spansOf(doc.Shots, types.DocShot.Span)); err != nil {
		return err
	}
	if err := check("segment", spansOf(doc.Segments, types.DocSegment.Span)); err != nil {
		return err
	}
	for i, seg := range doc.Segments {
		ws := spansOf(seg.Words, func(w types.DocWord) types.Span { return types.Span{Start: w.Start, End: w.End} })
		if err := check(fmt.Sprintf("segment %d word", i), ws); err != nil {
			return err
		}
	}
	if err := check("window", spansOf(doc.Windows, types.DocWindow.Span)); err != nil {
		return err
	}

	entries := spansOf(doc.Timeline, func(e types.DocEntry) types.Span { return types.Span{Start: e.Start, End: e.End} })
	if err := check("entry", entries); err != nil {
		return err
	}
	cursor = 0
	for i, e := range doc.Timeline {
		if math.Abs(e.Start-cursor) > eps {
			return inconsistent("timeline gap before entry %d: %v to %v", i, cursor, e.Start)
		}
		if err := checkRef("shot", i, e.Shot, len(doc.Shots)); err != nil {
			return err
		}
		if err := checkRef("segment", i, e.Segment, len(doc.Segments)); err != nil {
			return err
		}
		if err := checkRef("window", i, e.Window, len(doc.Windows)); err != nil {
			return err
		}
		cursor = e.End
	}
	if math.Abs(cursor-total) > eps {
		return inconsistent("timeline ends at %v, edited duration is %v", cursor, total)
	}
	return nil
}

func checkRef(kind string, entry int, ref *int, n int) error {
	if ref != nil && (*ref < 0 || *ref >= n) {
		return inconsistent("entry %d references %s %d of %d", entry, kind, *ref, n)
	}
	return nil
}

func spansOf[T any](items []T, span func(T) types.Span) []types.Span {
	out := make([]types.Span, len(items))
	for i, it := range items {
		out[i] = span(it)
	}
	return out
}

// Verify compares the document's last edited timestamp with the duration of
// the video the cutter produced. tolerance <= 0 selects DefaultTolerance.
func Verify(doc *types.Document, actual, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if doc == nil {
		return inconsistent("nil document")
	}
	expected := doc.EditedDuration
	if n := len(doc.Retained); n > 0 {
		expected = doc.Retained[n-1].End
	}
	if math.IsNaN(actual) || math.Abs(actual-expected) > tolerance {
		return &TimelineConsistencyError{Expected: expected, Actual: actual, Tolerance: tolerance}
	}
	return nil
}

// DocumentID derives a stable ID from the document content, ignoring any ID
// already set.
func DocumentID(doc *types.Document) (string, error) {
	c := *doc
	c.ID = ""
	b, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("document id: %w", err)
	}
	return uuid.NewSHA1(documentNamespace, b).String(), nil
}

func Encode(doc *types.Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(b, '\n'), nil
}

func Decode(b []byte) (*types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}
