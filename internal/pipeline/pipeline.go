package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"github.com/forPelevin/editclick/internal/config"
	"github.com/forPelevin/editclick/internal/domain/bgm"
	"github.com/forPelevin/editclick/internal/domain/subtitles"
	"github.com/forPelevin/editclick/internal/domain/timeline"
	"github.com/forPelevin/editclick/internal/ports"
	"github.com/forPelevin/editclick/internal/ports/adapters/emotioncmd"
	"github.com/forPelevin/editclick/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/editclick/internal/ports/adapters/openaistt"
	"github.com/forPelevin/editclick/internal/ports/adapters/stableaudio"
	"github.com/forPelevin/editclick/internal/ports/adapters/wavfeat"
	"github.com/forPelevin/editclick/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/editclick/internal/types"
	"github.com/forPelevin/editclick/internal/usecase"
)

type Config struct {
	InputMP4 string
	OutDir   string
	Settings *config.Config // nil means config.DefaultConfig()
	Log      *zerolog.Logger

	// CacheDir is the base directory for local artifacts (audio, transcripts, etc.).
	// If empty, defaults to ".cache".
	CacheDir string

	// OpenAIAPIKey switches transcription from whisper.cpp to the OpenAI API.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// StableAudioAPIKey enables music generation when the bgm stage is on.
	StableAudioAPIKey       string
	StableAudioBaseURL      string
	StableAudioAllowedHosts []string
}

func (c Config) settings() *config.Config {
	if c.Settings != nil {
		return c.Settings
	}
	return config.DefaultConfig()
}

func (c Config) logger() *zerolog.Logger {
	if c.Log != nil {
		return c.Log
	}
	nop := zerolog.Nop()
	return &nop
}

func (c Config) Validate() error {
	if c.InputMP4 == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.InputMP4); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	s := c.settings()
	if err := s.Validate(); err != nil {
		return err
	}
	if c.OpenAIAPIKey == "" && s.Tools.WhisperModel == "" {
		return fmt.Errorf("whisper model path is required (or set OPENAI_API_KEY)")
	}
	if s.BGM.Enabled && c.StableAudioAPIKey != "" {
		return stableaudio.ValidateBaseURL(c.StableAudioBaseURL, c.StableAudioAllowedHosts)
	}
	return nil
}

// PolicyFromConfig builds the cut policy named in the settings. Listed drop
// shots are honoured by every policy.
func PolicyFromConfig(cc config.CutConfig) (timeline.Policy, error) {
	var p timeline.Policy
	switch cc.Policy {
	case "", "keep-all":
		p = timeline.KeepAll
	case "drop-shots":
		return timeline.DropShots(cc.DropShots...), nil
	case "silence-energy":
		p = timeline.SilenceEnergy{MinSpeechRatio: cc.MinSpeechRatio, MinRMSDB: cc.MinRMSDB, MinBPM: cc.MinBPM}
	default:
		return nil, fmt.Errorf("unknown cut policy %q", cc.Policy)
	}
	if len(cc.DropShots) > 0 {
		p = timeline.All(timeline.DropShots(cc.DropShots...), p)
	}
	return p, nil
}

// TimelineOptions resolves the cut policy and straddle handling.
func TimelineOptions(s *config.Config, log *zerolog.Logger) (timeline.Options, error) {
	p, err := PolicyFromConfig(s.Cut)
	if err != nil {
		return timeline.Options{}, err
	}
	st, err := timeline.ParseStraddle(s.Cut.Straddle)
	if err != nil {
		return timeline.Options{}, err
	}
	return timeline.Options{Policy: p, Straddle: st, Log: log}, nil
}

func Run(ctx context.Context, cfg Config) error {
	log := cfg.logger()
	s := cfg.settings()

	topts, err := TimelineOptions(s, log)
	if err != nil {
		return err
	}

	// adapters
	v := ffmpeg.New(s.Tools.FFmpeg, s.Tools.FFprobe)
	var asr ports.ASR = whispercpp.New(s.Tools.WhisperBin, s.Tools.WhisperModel)
	if cfg.OpenAIAPIKey != "" {
		asr = openaistt.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, s.Analysis.Language)
		log.Debug().Msg("transcribing with the OpenAI API")
	}

	deps := usecase.Deps{
		Video:    v,
		ASR:      asr,
		Features: wavfeat.New(),
		Emotion:  emotioncmd.New(s.Tools.EmotionCmd, 0.3),
	}
	musicFormat := s.BGM.Format
	if gen := cfg.musicGenerator(s, log); gen != nil {
		deps.Music = gen
		musicFormat = gen.Format()
	}

	uc := usecase.New(deps)

	jobID := hash(cfg.InputMP4)
	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	cacheDir := filepath.Join(baseCache, "runs", jobID)
	log.Debug().Msg("preparing workspace")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	log.Debug().Str("cache", cacheDir).Msg("cache ready")

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.InputMP4, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return err
	}
	runLog := log.With().Str("run", runOutDir).Logger()
	runLog.Info().Str("input", cfg.InputMP4).Msg("run started")
	if err := config.SaveConfigFile(s, filepath.Join(runOutDir, settingsFile)); err != nil {
		return err
	}

	mf, err := newManifest(filepath.Join(runOutDir, "manifest.json"), cfg.InputMP4)
	if err != nil {
		return err
	}

	in := usecase.Input{
		InputMP4:       cfg.InputMP4,
		CacheDir:       cacheDir,
		OutDir:         runOutDir,
		SceneThreshold: s.Analysis.SceneThreshold,
		WindowSec:      s.Analysis.WindowSec,
		SkipHeadSec:    s.Analysis.SkipHeadSec,
		MinSegmentSec:  s.Analysis.MinSegmentSec,
		Timeline:       topts,
		ToleranceSec:   s.Timeline.ToleranceSec,
		MusicVolume:    s.BGM.Volume,
		MusicFormat:    musicFormat,
		Log:            &runLog,
		OnStage: func(name string, st types.Stage) {
			if err := mf.set("stages."+name, st); err != nil {
				runLog.Warn().Err(err).Msg("manifest update failed")
			}
		},
	}
	if s.Subtitles.Enabled {
		o := SubtitleOptions(s.Subtitles)
		in.Subtitles = &o
	}
	if s.BGM.Enabled {
		o := BGMOptions(s.BGM)
		in.BGM = &o
	}

	res, runErr := uc.Run(ctx, in)
	if res.Document != nil {
		if err := mf.set("document_id", res.Document.ID); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if err := mf.set("final", filepath.Base(res.Final)); err != nil {
		return err
	}
	runLog.Info().Str("final", res.Final).Str("manifest", mf.path).Msg("run finished")
	return nil
}

// settingsFile holds the effective settings of a run, next to its manifest.
const settingsFile = "settings.yaml"

// musicGenerator returns the Stable Audio client, or nil when music is off
// or no API key is set.
func (c Config) musicGenerator(s *config.Config, log *zerolog.Logger) *stableaudio.Adapter {
	if !s.BGM.Enabled {
		return nil
	}
	if c.StableAudioAPIKey == "" {
		log.Warn().Msg("STABLE_AUDIO_API_KEY is not set, background music is skipped")
		return nil
	}
	return stableaudio.New(c.StableAudioAPIKey, c.StableAudioBaseURL, s.BGM.Format, s.BGM.Steps,
		stableaudio.WithLogger(*log))
}

// Plan runs only the timeline core over a saved analysis and writes the
// document to outPath.
func Plan(an types.Analysis, s *config.Config, outPath string, log *zerolog.Logger) (*types.Document, error) {
	if s == nil {
		s = config.DefaultConfig()
	}
	topts, err := TimelineOptions(s, log)
	if err != nil {
		return nil, err
	}
	res, err := timeline.Build(timeline.Input{Duration: an.Duration, Streams: an.Streams}, topts)
	if err != nil {
		return nil, err
	}
	b, err := timeline.Encode(res.Document)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return nil, err
	}
	return res.Document, nil
}

func SubtitleOptions(sc config.SubtitlesConfig) subtitles.Options {
	return subtitles.Options{
		MarginSec:      sc.MarginSec,
		MinDurationSec: sc.MinDurationSec,
		DelaySec:       sc.DelaySec,
		Font:           sc.Font,
		FontSize:       sc.FontSize,
		Karaoke:        sc.Karaoke,
	}
}

func BGMOptions(bc config.BGMConfig) bgm.Options {
	return bgm.Options{MinWindowSec: bc.MinWindowSec, MarginSec: bc.MarginSec, MinClipSec: bc.MinClipSec}
}

// manifest is the run's manifest.json, rewritten in place as stages finish.
type manifest struct {
	mu   sync.Mutex
	path string
	raw  []byte
}

func newManifest(path, input string) (*manifest, error) {
	b, err := json.MarshalIndent(types.Manifest{Input: input, Stages: map[string]types.Stage{}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	m := &manifest{path: path, raw: b}
	return m, m.flush()
}

func (m *manifest) set(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := sjson.SetBytes(m.raw, key, v)
	if err != nil {
		return fmt.Errorf("update manifest %s: %w", key, err)
	}
	m.raw = b
	return m.flush()
}

func (m *manifest) flush() error {
	return os.WriteFile(m.path, m.raw, 0o644)
}

func buildRunOutDir(outRoot, inputMP4 string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(inputMP4), filepath.Ext(inputMP4))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", inputMP4, now.UTC().UnixNano())
	suffix := uuid.NewSHA1(uuid.NameSpaceURL, []byte(runSeed)).String()[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.ASR = (*openaistt.Adapter)(nil)
var _ ports.FeatureAnalyzer = (*wavfeat.Analyzer)(nil)
var _ ports.EmotionClassifier = (*emotioncmd.Adapter)(nil)
var _ ports.MusicGenerator = (*stableaudio.Adapter)(nil)
