// Package wavfeat measures per-window audio features straight from a PCM
// wav file: loudness, zero-crossing rate, voiced ratio, a tone bucket, a
// tempo estimate and a rhythm tag.
package wavfeat

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-audio/wav"

	"github.com/forPelevin/editclick/internal/types"
)

const (
	frameSec = 0.025
	hopSec   = 0.010

	silenceDB = -80.0
	// A frame is voiced when it is within vadRelDB of the window median and
	// above vadFloorDB.
	vadRelDB   = -6.0
	vadFloorDB = -60.0

	minBPM = 55
	maxBPM = 135
)

var bpmGrid = []float64{60, 70, 80, 90, 100, 110, 120, 130}

type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

// Analyze tiles the file into windowSec windows; the last one may be
// shorter. Emotion fields are left for the classifier.
func (a *Analyzer) Analyze(ctx context.Context, wavPath string, windowSec float64) ([]types.FeatureWindow, error) {
	if windowSec <= 0 {
		return nil, fmt.Errorf("wavfeat: window must be positive, got %v", windowSec)
	}
	samples, sr, err := readMono(wavPath)
	if err != nil {
		return nil, err
	}
	total := float64(len(samples)) / float64(sr)

	var out []types.FeatureWindow
	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := float64(k) * windowSec
		if start >= total {
			break
		}
		end := math.Min(start+windowSec, total)
		lo, hi := int(math.Round(start*float64(sr))), int(math.Round(end*float64(sr)))
		hi = min(hi, len(samples))
		if hi <= lo {
			break
		}
		out = append(out, types.FeatureWindow{
			Start:    start,
			End:      end,
			Features: Measure(samples[lo:hi], sr),
		})
	}
	return out, nil
}

func readMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("wavfeat: %s is not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavfeat: read pcm: %w", err)
	}
	ch := buf.Format.NumChannels
	sr := buf.Format.SampleRate
	if ch <= 0 || sr <= 0 {
		return nil, 0, fmt.Errorf("wavfeat: bad format %d ch @ %d Hz", ch, sr)
	}
	depth := int(d.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := math.Ldexp(1, depth-1)

	out := make([]float64, len(buf.Data)/ch)
	for i := range out {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch) / scale
	}
	return out, sr, nil
}

// Measure computes the features of one window of mono samples in [-1, 1].
func Measure(x []float64, sr int) types.Features {
	frame := max(int(frameSec*float64(sr)), 1)
	hop := max(int(hopSec*float64(sr)), 1)

	var dbs, zcrs, rms []float64
	for i := 0; i < len(x); i += hop {
		fr := x[i:min(i+frame, len(x))]
		if len(fr) == 0 {
			break
		}
		var energy float64
		crossings := 0
		for j, v := range fr {
			energy += v * v
			if j > 0 && (v >= 0) != (fr[j-1] >= 0) {
				crossings++
			}
		}
		r := math.Sqrt(energy / float64(len(fr)))
		rms = append(rms, r)
		dbs = append(dbs, toDB(r))
		zcrs = append(zcrs, float64(crossings)/float64(len(fr)))
		if i+frame >= len(x) {
			break
		}
	}
	if len(dbs) == 0 {
		return types.Features{RMSDB: silenceDB, ToneTag: "dark", RhythmTag: rhythmTag(0, 0)}
	}

	f := types.Features{
		RMSDB:    mean(dbs),
		ZCR:      mean(zcrs),
		VADRatio: voicedRatio(dbs),
	}
	f.ToneTag = toneTag(f.ZCR, sr)
	f.RhythmTag = rhythmTag(f.VADRatio, f.ZCR)
	f.BPM = estimateBPM(rms, 1/hopSec)
	return f
}

func toDB(r float64) float64 {
	return math.Max(20*math.Log10(math.Max(r, 1e-12)), silenceDB)
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func voicedRatio(dbs []float64) float64 {
	sorted := append([]float64(nil), dbs...)
	sort.Float64s(sorted)
	med := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		med = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}
	active := 0
	for _, d := range dbs {
		if d > med+vadRelDB && d > vadFloorDB {
			active++
		}
	}
	return float64(active) / float64(len(dbs))
}

// toneTag buckets an approximate spectral centroid. The zero-crossing rate
// of a signal tracks its dominant frequency (crossings / 2 per second).
func toneTag(zcr float64, sr int) string {
	centroid := zcr * float64(sr) / 2
	scale := float64(sr) / 16000
	switch {
	case centroid < 1500*scale:
		return "dark"
	case centroid < 2500*scale:
		return "warm"
	case centroid < 3500*scale:
		return "neutral"
	default:
		return "bright"
	}
}

func rhythmTag(vad, zcr float64) string {
	switch {
	case vad >= 0.6 || zcr <= 0.05:
		return "minimal rhythm, low syncopation"
	case vad >= 0.3:
		return "simple rhythm"
	default:
		return "moderate rhythm"
	}
}

// estimateBPM autocorrelates the positive energy flux of the frame RMS
// curve over the plausible tempo range and snaps the best lag to bpmGrid.
// Zero means no onsets were found.
func estimateBPM(rms []float64, fps float64) float64 {
	env := make([]float64, len(rms))
	var total float64
	for i := 1; i < len(rms); i++ {
		env[i] = math.Max(rms[i]-rms[i-1], 0)
		total += env[i]
	}
	if total <= 1e-6*float64(len(env)) {
		return 0
	}

	best, bestScore := 0.0, 0.0
	for bpm := minBPM; bpm <= maxBPM; bpm++ {
		lag := 60 * fps / float64(bpm)
		if lag >= float64(len(env)-1) {
			continue
		}
		if s := autocorr(env, lag); s > bestScore {
			best, bestScore = float64(bpm), s
		}
	}
	if best == 0 {
		return 0
	}
	return snap(best)
}

func autocorr(env []float64, lag float64) float64 {
	l := int(lag)
	frac := lag - float64(l)
	var s float64
	for i := 0; i+l+1 < len(env); i++ {
		shifted := (1-frac)*env[i+l] + frac*env[i+l+1]
		s += env[i] * shifted
	}
	return s
}

func snap(bpm float64) float64 {
	best := bpmGrid[0]
	for _, g := range bpmGrid[1:] {
		if math.Abs(g-bpm) < math.Abs(best-bpm) {
			best = g
		}
	}
	return best
}
