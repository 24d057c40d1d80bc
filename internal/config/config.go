package config

// Config holds the tunable settings of an editclick run. Paths and secrets
// are not part of it: they come from flags and the environment.
type Config struct {
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Cut       CutConfig       `yaml:"cut"`
	Timeline  TimelineConfig  `yaml:"timeline"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	BGM       BGMConfig       `yaml:"bgm"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// AnalysisConfig controls the three producers that feed the timeline.
type AnalysisConfig struct {
	SceneThreshold float64 `yaml:"scene_threshold"` // ffmpeg scene score, 0..1
	WindowSec      float64 `yaml:"window_sec"`      // audio feature window length
	SkipHeadSec    float64 `yaml:"skip_head_sec"`   // speech before this is discarded
	MinSegmentSec  float64 `yaml:"min_segment_sec"` // shorter speech segments are discarded
	Language       string  `yaml:"language"`        // "auto" lets the recognizer decide
}

// CutConfig selects the cut policy and how annotations crossing a cut are handled.
type CutConfig struct {
	Policy         string  `yaml:"policy"` // "keep-all", "drop-shots", "silence-energy"
	MinSpeechRatio float64 `yaml:"min_speech_ratio"`
	MinRMSDB       float64 `yaml:"min_rms_db"`
	MinBPM         float64 `yaml:"min_bpm"`    // 0 disables the tempo rule
	DropShots      []int   `yaml:"drop_shots"` // used by "drop-shots", and always honoured
	Straddle       string  `yaml:"straddle"`   // "truncate", "drop", "split"
}

type TimelineConfig struct {
	ToleranceSec float64 `yaml:"tolerance_sec"` // allowed drift between document and cut video
}

type SubtitlesConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MarginSec      float64 `yaml:"margin_sec"`       // trimmed from both ends of every line
	MinDurationSec float64 `yaml:"min_duration_sec"` // lines are never shorter than this
	DelaySec       float64 `yaml:"delay_sec"`        // global shift, for players with audio lag
	Font           string  `yaml:"font"`
	FontSize       int     `yaml:"font_size"`
	Karaoke        bool    `yaml:"karaoke"`
}

type BGMConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MinWindowSec float64 `yaml:"min_window_sec"` // minimum cue length
	MarginSec    float64 `yaml:"margin_sec"`     // generated clip is this much shorter than its cue
	MinClipSec   float64 `yaml:"min_clip_sec"`
	Volume       float64 `yaml:"volume"`
	Steps        int     `yaml:"steps"`
	Format       string  `yaml:"format"` // "wav" or "mp3"
}

type ToolsConfig struct {
	FFmpeg       string `yaml:"ffmpeg"`
	FFprobe      string `yaml:"ffprobe"`
	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`
	EmotionCmd   string `yaml:"emotion_cmd"` // empty labels every window neutral
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			SceneThreshold: 0.3,
			WindowSec:      2.5,
			SkipHeadSec:    2.0,
			MinSegmentSec:  0.5,
			Language:       "auto",
		},
		Cut: CutConfig{
			Policy:         "keep-all",
			MinSpeechRatio: 0.1,
			MinRMSDB:       -35,
			MinBPM:         0,
			Straddle:       "truncate",
		},
		Timeline: TimelineConfig{
			ToleranceSec: 0.15,
		},
		Subtitles: SubtitlesConfig{
			Enabled:        true,
			MarginSec:      0.08,
			MinDurationSec: 0.30,
			DelaySec:       0,
			Font:           "Arial",
			FontSize:       42,
			Karaoke:        true,
		},
		BGM: BGMConfig{
			Enabled:      true,
			MinWindowSec: 15,
			MarginSec:    1.5,
			MinClipSec:   4,
			Volume:       0.35,
			Steps:        30,
			Format:       "wav",
		},
		Tools: ToolsConfig{
			FFmpeg:     "ffmpeg",
			FFprobe:    "ffprobe",
			WhisperBin: "whisper-cli",
		},
	}
}

// Copy creates a deep copy of the config
func (c *Config) Copy() *Config {
	cp := *c
	cp.Cut.DropShots = append([]int(nil), c.Cut.DropShots...)
	return &cp
}

func CutPolicyValues() []string {
	return []string{"keep-all", "drop-shots", "silence-energy"}
}

func StraddleValues() []string {
	return []string{"truncate", "drop", "split"}
}

func BGMFormatValues() []string {
	return []string{"wav", "mp3"}
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}
