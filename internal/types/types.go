package types

import "math"

// Span is a half-open interval [Start, End) in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Span) Duration() float64 { return s.End - s.Start }

// Valid reports whether the span is finite and non-empty.
func (s Span) Valid() bool {
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
		return false
	}
	return s.End > s.Start
}

func (s Span) Contains(t float64) bool { return t >= s.Start && t < s.End }

type Shot struct {
	Index       int     `json:"index"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

func (s Shot) Span() Span { return Span{Start: s.Start, End: s.End} }

type Transcript struct {
	Text     string    `json:"text,omitempty"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

func (s Segment) Span() Span { return Span{Start: s.Start, End: s.End} }

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

func (w Word) Span() Span { return Span{Start: w.Start, End: w.End} }

// Features are the emotion and rhythm descriptors measured over one audio window.
type Features struct {
	Emotion      string  `json:"emotion"`
	EmotionScore float64 `json:"emotion_score,omitempty"`
	BPM          float64 `json:"bpm"`
	ToneTag      string  `json:"tone_tag"`
	RhythmTag    string  `json:"rhythm_tag"`
	RMSDB        float64 `json:"rms_db"`
	ZCR          float64 `json:"zcr,omitempty"`
	VADRatio     float64 `json:"vad_ratio"`
}

type FeatureWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Features
}

func (w FeatureWindow) Span() Span { return Span{Start: w.Start, End: w.End} }

// Streams holds the three annotation streams produced by the analysis stage.
// Each stream is sorted by start and internally non-overlapping.
type Streams struct {
	Shots    []Shot          `json:"shots"`
	Segments []Segment       `json:"segments"`
	Windows  []FeatureWindow `json:"windows"`
}

// Analysis is the on-disk form of the analysis stage output.
type Analysis struct {
	Input    string  `json:"input,omitempty"`
	Duration float64 `json:"duration"`
	Streams
}

// Document is the integrated, remapped annotation artifact handed to the
// subtitle, music and mixing stages. Start/End fields are edited-timeline
// seconds; Orig holds the source-video span each item came from.
type Document struct {
	ID             string             `json:"id"`
	Version        int                `json:"version"`
	SourceDuration float64            `json:"source_duration"`
	EditedDuration float64            `json:"edited_duration"`
	Straddle       string             `json:"straddle_policy"`
	Retained       []RetainedInterval `json:"retained"`
	Shots          []DocShot          `json:"shots"`
	Segments       []DocSegment       `json:"segments"`
	Windows        []DocWindow        `json:"windows"`
	Timeline       []DocEntry         `json:"timeline"`
	Dropped        DropStats          `json:"dropped"`
}

type RetainedInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Orig  Span    `json:"orig"`
}

type DocShot struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Orig        Span    `json:"orig"`
	Index       int     `json:"index"`
	Probability float64 `json:"probability,omitempty"`
}

func (s DocShot) Span() Span { return Span{Start: s.Start, End: s.End} }

type DocSegment struct {
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Orig  Span      `json:"orig"`
	ID    int       `json:"id"`
	Text  string    `json:"text"`
	Words []DocWord `json:"words,omitempty"`
}

func (s DocSegment) Span() Span { return Span{Start: s.Start, End: s.End} }

type DocWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Orig  Span    `json:"orig"`
	Word  string  `json:"word"`
}

type DocWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Orig  Span    `json:"orig"`
	Index int     `json:"index"`
	Features
}

func (w DocWindow) Span() Span { return Span{Start: w.Start, End: w.End} }

// DocEntry is a merged timeline entry on the edited timeline. Shot, Segment
// and Window are positions in the Document's own lists; nil means unset.
type DocEntry struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Orig    Span    `json:"orig"`
	Shot    *int    `json:"shot,omitempty"`
	Segment *int    `json:"segment,omitempty"`
	Window  *int    `json:"window,omitempty"`
}

type DropStats struct {
	Shots     int `json:"shots"`
	Segments  int `json:"segments"`
	Words     int `json:"words"`
	Windows   int `json:"windows"`
	Entries   int `json:"entries"`
	Truncated int `json:"truncated"`
	Split     int `json:"split"`
}

// MusicCue is one background-music section on the edited timeline.
type MusicCue struct {
	Index  int     `json:"index"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Prompt string  `json:"prompt"`
	File   string  `json:"file,omitempty"`
}

func (c MusicCue) Span() Span { return Span{Start: c.Start, End: c.End} }

type Manifest struct {
	Input      string           `json:"input"`
	DocumentID string           `json:"document_id,omitempty"`
	Final      string           `json:"final,omitempty"`
	Stages     map[string]Stage `json:"stages"`
}

type Stage struct {
	Status   string `json:"status"`
	Artifact string `json:"artifact,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Emotion is a speech-emotion label with its classifier confidence.
type Emotion struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}
