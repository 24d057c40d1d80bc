package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/forPelevin/editclick/internal/config"
	"github.com/forPelevin/editclick/internal/domain/timeline"
	"github.com/forPelevin/editclick/internal/types"
)

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/My Cool.Video.mp4", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	if !strings.HasPrefix(base, "my-cool-video-20260212-103045Z-") {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len("my-cool-video-20260212-103045Z-")+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
	if again := buildRunOutDir("out", "/tmp/My Cool.Video.mp4", now); again != got {
		t.Fatalf("run dir not deterministic: %s vs %s", again, got)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.mp4")
	if err := os.WriteFile(in, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	withModel := config.DefaultConfig()
	withModel.Tools.WhisperModel = "ggml-base.bin"

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty input", cfg: Config{}, wantErr: "input is empty"},
		{name: "missing input", cfg: Config{InputMP4: in + ".missing"}, wantErr: "stat input"},
		{name: "no recognizer", cfg: Config{InputMP4: in}, wantErr: "whisper model path is required"},
		{name: "openai instead of whisper", cfg: Config{InputMP4: in, OpenAIAPIKey: "sk"}},
		{name: "whisper model", cfg: Config{InputMP4: in, Settings: withModel}},
		{
			name:    "music host not allowed",
			cfg:     Config{InputMP4: in, Settings: withModel, StableAudioAPIKey: "k", StableAudioBaseURL: "https://evil.example"},
			wantErr: "is not in STABLE_AUDIO_ALLOWED_HOSTS",
		},
		{
			name: "music host allowed",
			cfg: Config{InputMP4: in, Settings: withModel, StableAudioAPIKey: "k",
				StableAudioBaseURL: "https://proxy.internal", StableAudioAllowedHosts: []string{"proxy.internal"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	shot := func(i int) timeline.Unit {
		return timeline.Unit{Start: 0, End: 1, Shot: &types.Shot{Index: i, Start: 0, End: 1}}
	}

	tests := []struct {
		name    string
		cc      config.CutConfig
		keep    []int
		drop    []int
		wantErr bool
	}{
		{name: "keep all", cc: config.CutConfig{Policy: "keep-all"}, keep: []int{0, 1}},
		{name: "drop shots", cc: config.CutConfig{Policy: "drop-shots", DropShots: []int{1}}, keep: []int{0}, drop: []int{1}},
		{name: "keep all still honours drops", cc: config.CutConfig{Policy: "keep-all", DropShots: []int{0}}, keep: []int{1}, drop: []int{0}},
		{name: "unknown", cc: config.CutConfig{Policy: "random"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PolicyFromConfig(tt.cc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, i := range tt.keep {
				if !p.Keep(shot(i)) {
					t.Fatalf("shot %d dropped", i)
				}
			}
			for _, i := range tt.drop {
				if p.Keep(shot(i)) {
					t.Fatalf("shot %d kept", i)
				}
			}
		})
	}
}

func TestPlan_WritesDocument(t *testing.T) {
	s := config.DefaultConfig()
	s.Cut.Policy = "drop-shots"
	s.Cut.DropShots = []int{1}

	an := types.Analysis{
		Duration: 20,
		Streams: types.Streams{
			Shots: []types.Shot{{Index: 0, Start: 0, End: 5}, {Index: 1, Start: 5, End: 10}, {Index: 2, Start: 10, End: 20}},
			Segments: []types.Segment{
				{ID: 0, Start: 12, End: 13, Text: "later speech"},
			},
		},
	}
	out := filepath.Join(t.TempDir(), "plan", "document.json")
	doc, err := Plan(an, s, out, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if doc.EditedDuration != 15 || doc.Segments[0].Start != 7 {
		t.Fatalf("document=%+v", doc)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(b, "id").String() != doc.ID || gjson.GetBytes(b, "segments.0.orig.start").Float() != 12 {
		t.Fatalf("unexpected file:\n%s", b)
	}
}

func TestManifest_SetRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m, err := newManifest(path, "in.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.set("stages.cut", types.Stage{Status: "done", Artifact: "hardcut.mp4"}); err != nil {
		t.Fatal(err)
	}
	if err := m.set("document_id", "abc"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(b, "input").String() != "in.mp4" ||
		gjson.GetBytes(b, "stages.cut.artifact").String() != "hardcut.mp4" ||
		gjson.GetBytes(b, "document_id").String() != "abc" {
		t.Fatalf("unexpected manifest:\n%s", b)
	}
}

func TestMusicGenerator(t *testing.T) {
	s := config.DefaultConfig()
	s.BGM.Format = "mp3"
	log := zerolog.Nop()

	if gen := (Config{}).musicGenerator(s, &log); gen != nil {
		t.Fatalf("generator without key: %+v", gen)
	}
	off := s.Copy()
	off.BGM.Enabled = false
	if gen := (Config{StableAudioAPIKey: "k"}).musicGenerator(off, &log); gen != nil {
		t.Fatalf("generator with music off: %+v", gen)
	}
	gen := (Config{StableAudioAPIKey: "k", StableAudioBaseURL: "https://api.stability.ai"}).musicGenerator(s, &log)
	if gen == nil || gen.Format() != "mp3" {
		t.Fatalf("generator=%+v", gen)
	}
}

func TestRun_SavesEffectiveSettings(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "in.mp4")
	if err := os.WriteFile(in, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := config.DefaultConfig()
	s.Tools.FFmpeg = filepath.Join(tmp, "no-ffmpeg")
	s.Tools.WhisperModel = "model.bin"
	s.Cut.Straddle = "split"

	outDir := filepath.Join(tmp, "out")
	err := Run(context.Background(), Config{InputMP4: in, OutDir: outDir, CacheDir: filepath.Join(tmp, "cache"), Settings: s})
	if err == nil || !strings.Contains(err.Error(), "ffmpeg extract audio") {
		t.Fatalf("expected audio extraction to fail, got %v", err)
	}

	saved, _ := filepath.Glob(filepath.Join(outDir, "*", settingsFile))
	if len(saved) != 1 {
		t.Fatalf("settings snapshots=%v", saved)
	}
	got, err := config.LoadConfigFile(saved[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Cut.Straddle != "split" || got.Tools.FFmpeg != s.Tools.FFmpeg {
		t.Fatalf("snapshot=%+v", got)
	}
	mf, err := os.ReadFile(filepath.Join(filepath.Dir(saved[0]), "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	if st := gjson.GetBytes(mf, "stages.analysis.status").String(); st != "failed" {
		t.Fatalf("analysis status=%q\n%s", st, mf)
	}
}
