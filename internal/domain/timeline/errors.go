package timeline

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks malformed arguments: non-positive durations, empty or
// non-finite spans, retained intervals outside the video.
var ErrInvalidInput = errors.New("invalid input")

// AnnotationOverlapError reports an upstream stream whose spans overlap or are
// out of order.
type AnnotationOverlapError struct {
	Kind    Kind
	Index   int
	Prev    int
	Start   float64
	PrevEnd float64
}

func (e *AnnotationOverlapError) Error() string {
	return fmt.Sprintf("%s stream overlaps: item %d starts at %.3fs before item %d ends at %.3fs",
		e.Kind, e.Index, e.Start, e.Prev, e.PrevEnd)
}

// EmptyTimelineError reports that the cut policy kept nothing.
type EmptyTimelineError struct {
	Units    int
	Duration float64
}

func (e *EmptyTimelineError) Error() string {
	return fmt.Sprintf("cut policy retained nothing (%d units over %.3fs)", e.Units, e.Duration)
}

// TimelineConsistencyError reports a document whose timestamps disagree with
// themselves or with the duration of the video the cutter actually produced.
type TimelineConsistencyError struct {
	Expected  float64
	Actual    float64
	Tolerance float64
	Reason    string
}

func (e *TimelineConsistencyError) Error() string {
	if e.Reason != "" {
		return "timeline inconsistent: " + e.Reason
	}
	return fmt.Sprintf("timeline inconsistent: document ends at %.3fs but cut video lasts %.3fs (diff %.3fs, tolerance %.3fs)",
		e.Expected, e.Actual, e.Actual-e.Expected, e.Tolerance)
}

func inconsistent(format string, args ...any) error {
	return &TimelineConsistencyError{Reason: fmt.Sprintf(format, args...)}
}
