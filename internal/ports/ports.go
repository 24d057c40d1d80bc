package ports

import (
	"context"
	"time"

	"github.com/forPelevin/editclick/internal/types"
)

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	DetectShots(ctx context.Context, inMP4 string, threshold float64, duration time.Duration) ([]types.Shot, error)
	CutAndConcat(ctx context.Context, inMP4 string, keeps []types.Span, workDir, outMP4 string) error
	BurnSubtitles(ctx context.Context, inMP4, assPath, outMP4 string) error
	BuildMusicBed(ctx context.Context, cues []types.MusicCue, volume float64, outWav string) error
	MixMusic(ctx context.Context, inMP4, musicWav, outMP4 string) error
	ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// FeatureAnalyzer measures loudness, voicing and rhythm over fixed windows
// of a mono wav file.
type FeatureAnalyzer interface {
	Analyze(ctx context.Context, wavPath string, windowSec float64) ([]types.FeatureWindow, error)
}

// EmotionClassifier returns one label per window, in window order.
type EmotionClassifier interface {
	Classify(ctx context.Context, wavPath string, windows []types.Span) ([]types.Emotion, error)
}

type MusicGenerator interface {
	Generate(ctx context.Context, prompt string, seconds float64, outPath string) error
}
