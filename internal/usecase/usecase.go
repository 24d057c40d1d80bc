package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/editclick/internal/domain/bgm"
	"github.com/forPelevin/editclick/internal/domain/subtitles"
	"github.com/forPelevin/editclick/internal/domain/timeline"
	"github.com/forPelevin/editclick/internal/ports"
	"github.com/forPelevin/editclick/internal/types"
)

// Stage names recorded in the run manifest.
const (
	StageAnalysis  = "analysis"
	StageTimeline  = "timeline"
	StageCut       = "cut"
	StageVerify    = "verify"
	StageSubtitles = "subtitles"
	StageBGM       = "bgm"
	StageMix       = "mix"
)

const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type Deps struct {
	Video    ports.VideoTool
	ASR      ports.ASR
	Features ports.FeatureAnalyzer
	Emotion  ports.EmotionClassifier
	Music    ports.MusicGenerator // nil skips music generation
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	InputMP4 string
	CacheDir string
	OutDir   string

	SceneThreshold float64
	WindowSec      float64
	SkipHeadSec    float64
	MinSegmentSec  float64

	Timeline     timeline.Options
	ToleranceSec float64

	Subtitles *subtitles.Options // nil disables subtitles

	BGM         *bgm.Options // nil disables background music
	MusicVolume float64
	MusicFormat string

	Log *zerolog.Logger

	// OnStage is called after every stage with its outcome.
	OnStage func(name string, st types.Stage)
}

type Result struct {
	Document *types.Document
	Manifest types.Manifest
	Final    string // path of the last video produced
}

func (in Input) logger() *zerolog.Logger {
	if in.Log != nil {
		return in.Log
	}
	nop := zerolog.Nop()
	return &nop
}

type run struct {
	in  Input
	log *zerolog.Logger
	m   types.Manifest
}

func (r *run) stage(name, status, artifact, detail string) {
	st := types.Stage{Status: status, Artifact: artifact, Detail: detail}
	r.m.Stages[name] = st
	ev := r.log.Info()
	if status == StatusFailed {
		ev = r.log.Error()
	}
	ev.Str("stage", name).Str("status", status).Str("artifact", artifact).Str("detail", detail).Msg("stage finished")
	if r.in.OnStage != nil {
		r.in.OnStage(name, st)
	}
}

func (r *run) rel(path string) string {
	if rel, err := filepath.Rel(r.in.OutDir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	r := &run{in: in, log: in.logger(), m: types.Manifest{Input: in.InputMP4, Stages: map[string]types.Stage{}}}

	an, err := u.Analyze(ctx, in)
	if err != nil {
		r.stage(StageAnalysis, StatusFailed, "", err.Error())
		return Result{Manifest: r.m}, err
	}
	analysisPath := filepath.Join(in.OutDir, "analysis.json")
	if err := writeJSON(analysisPath, an); err != nil {
		return Result{Manifest: r.m}, err
	}
	r.stage(StageAnalysis, StatusDone, r.rel(analysisPath),
		fmt.Sprintf("%d shots, %d segments, %d windows", len(an.Shots), len(an.Segments), len(an.Windows)))

	opts := in.Timeline
	opts.Log = r.log
	built, err := timeline.Build(timeline.Input{Duration: an.Duration, Streams: an.Streams}, opts)
	if err != nil {
		r.stage(StageTimeline, StatusFailed, "", err.Error())
		return Result{Manifest: r.m}, err
	}
	doc := built.Document
	r.m.DocumentID = doc.ID
	docPath := filepath.Join(in.OutDir, "document.json")
	if err := writeDocument(docPath, doc); err != nil {
		return Result{Manifest: r.m}, err
	}
	cutsPath := filepath.Join(in.OutDir, "cuts.json")
	if err := writeJSON(cutsPath, doc.Retained); err != nil {
		return Result{Manifest: r.m}, err
	}
	r.stage(StageTimeline, StatusDone, r.rel(docPath),
		fmt.Sprintf("kept %.3fs of %.3fs in %d intervals", doc.EditedDuration, doc.SourceDuration, len(doc.Retained)))

	hardcut := filepath.Join(in.OutDir, "hardcut.mp4")
	if err := u.d.Video.CutAndConcat(ctx, in.InputMP4, built.Retained, filepath.Join(in.CacheDir, "cuts"), hardcut); err != nil {
		r.stage(StageCut, StatusFailed, "", err.Error())
		return Result{Document: doc, Manifest: r.m}, err
	}
	r.stage(StageCut, StatusDone, r.rel(hardcut), "")

	actual, err := u.d.Video.ProbeDuration(ctx, hardcut)
	if err != nil {
		return Result{Document: doc, Manifest: r.m}, err
	}
	if err := timeline.Verify(doc, actual.Seconds(), in.ToleranceSec); err != nil {
		r.stage(StageVerify, StatusFailed, "", err.Error())
		return Result{Document: doc, Manifest: r.m}, err
	}
	r.stage(StageVerify, StatusDone, "", fmt.Sprintf("cut video lasts %.3fs", actual.Seconds()))

	final, err := u.subtitles(ctx, r, doc, hardcut)
	if err != nil {
		return Result{Document: doc, Manifest: r.m, Final: final}, err
	}
	final, err = u.music(ctx, r, doc, final)
	if err != nil {
		return Result{Document: doc, Manifest: r.m, Final: final}, err
	}
	return Result{Document: doc, Manifest: r.m, Final: final}, nil
}

// Analyze runs shot detection, transcription and audio feature extraction
// concurrently over one input video.
func (u Usecase) Analyze(ctx context.Context, in Input) (types.Analysis, error) {
	log := in.logger()
	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		return types.Analysis{}, err
	}
	wav := filepath.Join(in.CacheDir, "audio.wav")
	if err := u.d.Video.ExtractAudioMono16k(ctx, in.InputMP4, wav); err != nil {
		return types.Analysis{}, err
	}
	d, err := u.d.Video.ProbeDuration(ctx, in.InputMP4)
	if err != nil {
		return types.Analysis{}, err
	}
	duration := d.Seconds()
	if duration <= 0 {
		return types.Analysis{}, fmt.Errorf("input %s has no duration", in.InputMP4)
	}

	var (
		shots   []types.Shot
		tr      types.Transcript
		windows []types.FeatureWindow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shots, err = u.d.Video.DetectShots(gctx, in.InputMP4, in.SceneThreshold, d)
		if err != nil {
			return fmt.Errorf("detect shots: %w", err)
		}
		log.Debug().Int("shots", len(shots)).Msg("shots detected")
		return nil
	})
	g.Go(func() error {
		var err error
		tr, err = u.d.ASR.Transcribe(gctx, wav, in.CacheDir)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		log.Debug().Int("segments", len(tr.Segments)).Str("language", tr.Language).Msg("speech transcribed")
		return nil
	})
	g.Go(func() error {
		var err error
		windows, err = u.d.Features.Analyze(gctx, wav, in.WindowSec)
		if err != nil {
			return fmt.Errorf("audio features: %w", err)
		}
		u.labelEmotions(gctx, log, wav, windows)
		log.Debug().Int("windows", len(windows)).Msg("audio features measured")
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.Analysis{}, err
	}

	return types.Analysis{
		Input:    in.InputMP4,
		Duration: duration,
		Streams: types.Streams{
			Shots:    shots,
			Segments: normalizeTranscript(tr, in.SkipHeadSec, in.MinSegmentSec, duration),
			Windows:  clampWindows(windows, duration),
		},
	}, nil
}

// labelEmotions fills the emotion of every window. A failing classifier
// leaves the windows neutral instead of failing the run.
func (u Usecase) labelEmotions(ctx context.Context, log *zerolog.Logger, wav string, windows []types.FeatureWindow) {
	if u.d.Emotion == nil || len(windows) == 0 {
		return
	}
	spans := make([]types.Span, len(windows))
	for i, w := range windows {
		spans[i] = w.Span()
	}
	labels, err := u.d.Emotion.Classify(ctx, wav, spans)
	if err == nil && len(labels) != len(windows) {
		err = fmt.Errorf("got %d labels for %d windows", len(labels), len(windows))
	}
	if err != nil {
		log.Warn().Err(err).Msg("emotion classification failed, using neutral")
		for i := range windows {
			windows[i].Emotion = "neu"
		}
		return
	}
	for i, l := range labels {
		windows[i].Emotion = l.Label
		windows[i].EmotionScore = l.Score
	}
}

// normalizeTranscript drops speech that ends inside the skipped head,
// clamps the rest into [skipHead, duration), removes overlaps and then drops
// segments shorter than minSeg. Words are clamped into their segment.
func normalizeTranscript(tr types.Transcript, skipHead, minSeg, duration float64) []types.Segment {
	segs := append([]types.Segment(nil), tr.Segments...)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	var out []types.Segment
	floor := max(skipHead, 0)
	for _, s := range segs {
		s.Start = max(s.Start, floor)
		s.End = min(s.End, duration)
		if s.End-s.Start < minSeg || s.End <= s.Start {
			continue
		}
		s.Words = clampWords(s.Words, s.Start, s.End)
		out = append(out, s)
		floor = s.End
	}
	return out
}

func clampWords(ws []types.Word, start, end float64) []types.Word {
	var out []types.Word
	for _, w := range ws {
		w.Start = max(w.Start, start)
		w.End = min(w.End, end)
		if w.End <= w.Start {
			continue
		}
		out = append(out, w)
	}
	return out
}

func clampWindows(ws []types.FeatureWindow, duration float64) []types.FeatureWindow {
	out := ws[:0:0]
	for _, w := range ws {
		w.End = min(w.End, duration)
		if w.End > w.Start {
			out = append(out, w)
		}
	}
	return out
}

func (u Usecase) subtitles(ctx context.Context, r *run, doc *types.Document, video string) (string, error) {
	if r.in.Subtitles == nil {
		r.stage(StageSubtitles, StatusSkipped, "", "disabled")
		return video, nil
	}
	ass, err := subtitles.RenderASS(doc, *r.in.Subtitles)
	if errors.Is(err, subtitles.ErrNoCaptions) {
		r.stage(StageSubtitles, StatusSkipped, "", err.Error())
		return video, nil
	}
	if err != nil {
		r.stage(StageSubtitles, StatusFailed, "", err.Error())
		return video, err
	}
	assPath := filepath.Join(r.in.OutDir, "subtitles.ass")
	if err := writeFile(assPath, []byte(ass)); err != nil {
		return video, err
	}
	out := filepath.Join(r.in.OutDir, "subtitled.mp4")
	if err := u.d.Video.BurnSubtitles(ctx, video, assPath, out); err != nil {
		r.stage(StageSubtitles, StatusFailed, r.rel(assPath), err.Error())
		return video, err
	}
	r.stage(StageSubtitles, StatusDone, r.rel(out), "")
	return out, nil
}

func (u Usecase) music(ctx context.Context, r *run, doc *types.Document, video string) (string, error) {
	if r.in.BGM == nil || u.d.Music == nil {
		r.stage(StageBGM, StatusSkipped, "", "disabled")
		r.stage(StageMix, StatusSkipped, "", "disabled")
		return video, nil
	}
	cues := bgm.Plan(doc, *r.in.BGM)
	if len(cues) == 0 {
		r.stage(StageBGM, StatusSkipped, "", "empty edit")
		r.stage(StageMix, StatusSkipped, "", "empty edit")
		return video, nil
	}

	dir := filepath.Join(r.in.OutDir, "bgm")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return video, err
	}
	format := r.in.MusicFormat
	if format == "" {
		format = "wav"
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i := range cues {
		c := &cues[i]
		g.Go(func() error {
			out := filepath.Join(dir, fmt.Sprintf("cue_%02d.%s", c.Index, format))
			if err := u.d.Music.Generate(gctx, c.Prompt, c.ClipSec, out); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Warn().Err(err).Int("cue", c.Index).Msg("music generation failed, cue stays silent")
				return nil
			}
			c.File = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.stage(StageBGM, StatusFailed, "", err.Error())
		return video, err
	}

	cuesPath := filepath.Join(dir, "cues.json")
	if err := writeJSON(cuesPath, cues); err != nil {
		return video, err
	}
	generated := 0
	music := make([]types.MusicCue, len(cues))
	for i, c := range cues {
		music[i] = c.MusicCue
		if c.File != "" {
			generated++
		}
	}
	if generated == 0 {
		r.stage(StageBGM, StatusFailed, r.rel(cuesPath), "no cue could be generated")
		r.stage(StageMix, StatusSkipped, "", "no music")
		return video, nil
	}
	r.stage(StageBGM, StatusDone, r.rel(cuesPath), fmt.Sprintf("%d of %d cues generated", generated, len(cues)))

	bed := filepath.Join(dir, "bed.wav")
	if err := u.d.Video.BuildMusicBed(ctx, music, r.in.MusicVolume, bed); err != nil {
		r.stage(StageMix, StatusFailed, "", err.Error())
		return video, err
	}
	final := filepath.Join(r.in.OutDir, "final.mp4")
	if err := u.d.Video.MixMusic(ctx, video, bed, final); err != nil {
		r.stage(StageMix, StatusFailed, "", err.Error())
		return video, err
	}
	r.stage(StageMix, StatusDone, r.rel(final), "")
	return final, nil
}

func writeDocument(path string, doc *types.Document) error {
	b, err := timeline.Encode(doc)
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, append(b, '\n'))
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
