package config

import (
	"fmt"
	"strings"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []string

	sections := []struct {
		name string
		fn   func() error
	}{
		{"analysis", c.Analysis.Validate},
		{"cut", c.Cut.Validate},
		{"timeline", c.Timeline.Validate},
		{"subtitles", c.Subtitles.Validate},
		{"bgm", c.BGM.Validate},
		{"tools", c.Tools.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func joined(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, ", "))
}

func (a *AnalysisConfig) Validate() error {
	var errs []string
	if a.SceneThreshold <= 0 || a.SceneThreshold >= 1 {
		errs = append(errs, "scene threshold must be between 0 and 1")
	}
	if a.WindowSec <= 0 {
		errs = append(errs, "window length must be positive")
	}
	if a.SkipHeadSec < 0 {
		errs = append(errs, "skip head cannot be negative")
	}
	if a.MinSegmentSec < 0 {
		errs = append(errs, "min segment cannot be negative")
	}
	return joined(errs)
}

func (cc *CutConfig) Validate() error {
	var errs []string
	if !oneOf(cc.Policy, CutPolicyValues()) {
		errs = append(errs, fmt.Sprintf("invalid policy '%s', must be one of: %s", cc.Policy, strings.Join(CutPolicyValues(), ", ")))
	}
	if !oneOf(cc.Straddle, StraddleValues()) {
		errs = append(errs, fmt.Sprintf("invalid straddle '%s', must be one of: %s", cc.Straddle, strings.Join(StraddleValues(), ", ")))
	}
	if cc.MinSpeechRatio < 0 || cc.MinSpeechRatio > 1 {
		errs = append(errs, "min speech ratio must be between 0 and 1")
	}
	if cc.MinBPM < 0 {
		errs = append(errs, "min bpm cannot be negative")
	}
	for _, i := range cc.DropShots {
		if i < 0 {
			errs = append(errs, fmt.Sprintf("drop shot index %d is negative", i))
		}
	}
	if cc.Policy == "drop-shots" && len(cc.DropShots) == 0 {
		errs = append(errs, "policy 'drop-shots' needs at least one shot index")
	}
	return joined(errs)
}

func (tc *TimelineConfig) Validate() error {
	if tc.ToleranceSec <= 0 {
		return fmt.Errorf("tolerance must be positive")
	}
	return nil
}

func (sc *SubtitlesConfig) Validate() error {
	var errs []string
	if sc.MarginSec < 0 {
		errs = append(errs, "margin cannot be negative")
	}
	if sc.MinDurationSec < 0 {
		errs = append(errs, "min duration cannot be negative")
	}
	if sc.FontSize < 8 || sc.FontSize > 200 {
		errs = append(errs, "font size must be between 8 and 200")
	}
	if sc.Enabled && strings.TrimSpace(sc.Font) == "" {
		errs = append(errs, "font is required")
	}
	return joined(errs)
}

func (bc *BGMConfig) Validate() error {
	var errs []string
	if bc.MinWindowSec <= 0 {
		errs = append(errs, "min window must be positive")
	}
	if bc.MarginSec < 0 {
		errs = append(errs, "margin cannot be negative")
	}
	if bc.MinClipSec <= 0 {
		errs = append(errs, "min clip must be positive")
	}
	if bc.Volume < 0 || bc.Volume > 2 {
		errs = append(errs, "volume must be between 0 and 2")
	}
	if bc.Steps <= 0 || bc.Steps > 100 {
		errs = append(errs, "steps must be between 1 and 100")
	}
	if !oneOf(bc.Format, BGMFormatValues()) {
		errs = append(errs, fmt.Sprintf("invalid format '%s', must be one of: %s", bc.Format, strings.Join(BGMFormatValues(), ", ")))
	}
	return joined(errs)
}

func (tc *ToolsConfig) Validate() error {
	var errs []string
	if strings.TrimSpace(tc.FFmpeg) == "" {
		errs = append(errs, "ffmpeg is required")
	}
	if strings.TrimSpace(tc.FFprobe) == "" {
		errs = append(errs, "ffprobe is required")
	}
	return joined(errs)
}
