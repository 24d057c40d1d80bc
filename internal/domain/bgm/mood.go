package bgm

import (
	"strings"

	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

// Emotion buckets used for mood ratios.
const (
	Happy   = "hap"
	Angry   = "ang"
	Sad     = "sad"
	Neutral = "neu"
	Other   = "other"
)

var buckets = []string{Happy, Angry, Sad, Neutral, Other}

const defaultBPM = 100.0

// Mood summarises the feature windows under one cue.
type Mood struct {
	Ratios      map[string]float64 `json:"ratios"`
	Primary     string             `json:"primary"`
	Secondary   string             `json:"secondary"`
	BrightRatio float64            `json:"bright_ratio"`
	NegStrength float64            `json:"neg_strength"`
	AvgBPM      float64            `json:"avg_bpm"`
	Rhythm      string             `json:"rhythm,omitempty"`
	Tone        string             `json:"tone,omitempty"`
	Core        string             `json:"core"`
	Nuance      string             `json:"nuance,omitempty"`
	Tempo       string             `json:"tempo"`
}

func bucket(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, b := range []string{Happy, Angry, Sad, Neutral} {
		if strings.HasPrefix(l, b) {
			return b
		}
	}
	return Other
}

// Analyze weights every feature window by its overlap with g on the edited
// timeline. Without windows the cue is treated as neutral.
func Analyze(doc *types.Document, g types.Span) Mood {
	dur := lo.Associate(buckets, func(b string) (string, float64) { return b, 0 })
	rhythm := map[string]float64{}
	tone := map[string]float64{}
	var bpmSum, bpmW float64

	for _, w := range doc.Windows {
		ov := min(w.End, g.End) - max(w.Start, g.Start)
		if ov <= 0 {
			continue
		}
		dur[bucket(w.Emotion)] += ov
		if w.BPM > 0 {
			bpmSum += w.BPM * ov
			bpmW += ov
		}
		if w.RhythmTag != "" {
			rhythm[w.RhythmTag] += ov
		}
		if w.ToneTag != "" {
			tone[w.ToneTag] += ov
		}
	}
	total := lo.Sum(lo.Values(dur))
	if total <= 0 {
		dur[Neutral] = g.Duration()
		total = dur[Neutral]
		if total <= 0 {
			dur[Neutral], total = 1, 1
		}
	}

	m := Mood{Ratios: make(map[string]float64, len(buckets)), AvgBPM: defaultBPM}
	for _, b := range buckets {
		m.Ratios[b] = dur[b] / total
	}
	m.Primary = topLabel(dur, "")
	m.Secondary = topLabel(lo.OmitByKeys(dur, []string{m.Primary}), Other)
	if bpmW > 0 {
		m.AvgBPM = bpmSum / bpmW
	}
	m.Rhythm = topLabel(rhythm, "")
	m.Tone = topLabel(tone, "")

	m.BrightRatio = m.Ratios[Happy] + 0.7*m.Ratios[Neutral]
	m.NegStrength = max(m.Ratios[Angry], m.Ratios[Sad])
	m.Core = moodCore(m.BrightRatio, m.NegStrength)
	m.Nuance = nuance(m)
	m.Tempo = tempoPhrase(m.BrightRatio)
	return m
}

// topLabel returns the heaviest key, breaking ties by name so the result
// does not depend on map order.
func topLabel(weights map[string]float64, fallback string) string {
	best, bestW := fallback, 0.0
	for _, k := range lo.Keys(weights) {
		w := weights[k]
		if w > bestW || (w == bestW && w > 0 && k < best) {
			best, bestW = k, w
		}
	}
	return best
}

func moodCore(bright, neg float64) string {
	switch {
	case neg >= 0.6:
		return "calm but clearly serious and somewhat heavy"
	case neg >= 0.4 && bright < 0.5:
		return "calm with a slightly tense or somber edge, still understated"
	case bright >= 0.65:
		return "soft, positive and lightly uplifting, relaxed"
	case bright >= 0.45:
		return "calm, warm and slightly hopeful"
	case bright >= 0.25:
		return "neutral and steady with a gentle tone"
	default:
		return "neutral and unobtrusive, leaning serious"
	}
}

func nuance(m Mood) string {
	var parts []string
	add := func(label string, ratio float64, strong, light string) {
		if ratio <= 0.15 || m.Primary == label {
			return
		}
		if ratio >= 0.3 {
			parts = append(parts, strong)
		} else {
			parts = append(parts, light)
		}
	}
	add(Angry, m.Ratios[Angry], "with some background tension", "with a faint hint of tension")
	add(Happy, m.Ratios[Happy], "with quiet warmth and optimism", "with a light positive undertone")
	add(Sad, m.Ratios[Sad], "with a soft reflective feeling", "with a touch of melancholy")
	return strings.Join(parts, " ")
}

func tempoPhrase(bright float64) string {
	switch {
	case bright >= 0.55:
		return "a light, moderately upbeat tempo around 95-105 BPM"
	case bright >= 0.35:
		return "a relaxed mid-tempo pace around 90-100 BPM"
	default:
		return "a calm, slightly slower tempo around 80-90 BPM"
	}
}
