package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) run(ctx context.Context, what string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return b, fmt.Errorf("ffmpeg %s: %w\n%s", what, err, string(b))
	}
	return b, nil
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	_, err := a.run(ctx, "extract audio", []string{
		"-y",
		"-i", inMP4,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	})
	return err
}

// DetectShots runs the scene-change filter and turns the reported cut times
// into contiguous shots covering [0, duration).
func (a *Adapter) DetectShots(ctx context.Context, inMP4 string, threshold float64, duration time.Duration) ([]types.Shot, error) {
	b, err := a.run(ctx, "detect shots", sceneArgs(inMP4, threshold))
	if err != nil {
		return nil, err
	}
	return shotsFromCuts(parseSceneCuts(string(b)), duration.Seconds()), nil
}

func sceneArgs(inMP4 string, threshold float64) []string {
	return []string{
		"-hide_banner",
		"-i", inMP4,
		"-an",
		"-vf", fmt.Sprintf("select=gt(scene\\,%s),metadata=print:file=-", strconv.FormatFloat(threshold, 'f', -1, 64)),
		"-f", "null",
		"-",
	}
}

var ptsTimeRE = regexp.MustCompile(`pts_time:([0-9.]+)`)

func parseSceneCuts(out string) []float64 {
	var cuts []float64
	for _, m := range ptsTimeRE.FindAllStringSubmatch(out, -1) {
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, t)
	}
	return cuts
}

// minShotSec merges cuts closer than this into the previous shot.
const minShotSec = 0.2

func shotsFromCuts(cuts []float64, duration float64) []types.Shot {
	if duration <= 0 {
		return nil
	}
	var shots []types.Shot
	start := 0.0
	for _, c := range cuts {
		if c-start < minShotSec || duration-c < minShotSec {
			continue
		}
		shots = append(shots, types.Shot{Index: len(shots), Start: start, End: c})
		start = c
	}
	return append(shots, types.Shot{Index: len(shots), Start: start, End: duration})
}

// CutAndConcat re-encodes every retained span into workDir and joins them
// with the concat demuxer. Re-encoding keeps the cut points frame accurate.
func (a *Adapter) CutAndConcat(ctx context.Context, inMP4 string, keeps []types.Span, workDir, outMP4 string) error {
	if len(keeps) == 0 {
		return fmt.Errorf("ffmpeg cut: no retained spans")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}
	clips := make([]string, 0, len(keeps))
	for i, k := range keeps {
		clip := filepath.Join(workDir, fmt.Sprintf("keep_%03d.mp4", i+1))
		if _, err := a.run(ctx, fmt.Sprintf("cut span %d", i+1), clipArgs(inMP4, k, clip)); err != nil {
			return err
		}
		clips = append(clips, clip)
	}

	list := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(list, []byte(concatList(clips)), 0o644); err != nil {
		return err
	}
	_, err := a.run(ctx, "concat", []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-c", "copy",
		"-movflags", "+faststart",
		outMP4,
	})
	return err
}

func clipArgs(inMP4 string, k types.Span, outMP4 string) []string {
	return []string{
		"-y",
		"-ss", fmtSeconds(k.Start),
		"-to", fmtSeconds(k.End),
		"-i", inMP4,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "48000",
		"-avoid_negative_ts", "make_zero",
		outMP4,
	}
}

func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err == nil {
			p = abs
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func (a *Adapter) BurnSubtitles(ctx context.Context, inMP4, assPath, outMP4 string) error {
	_, err := a.run(ctx, "burn subtitles", []string{
		"-y",
		"-i", inMP4,
		"-vf", "subtitles=" + escapeFilterPath(assPath),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "copy",
		outMP4,
	})
	return err
}

// BuildMusicBed lays each cue's clip over its cue span: padded or trimmed
// to the cue length, scaled by volume, then concatenated. Cues without a
// file become silence.
func (a *Adapter) BuildMusicBed(ctx context.Context, cues []types.MusicCue, volume float64, outWav string) error {
	if len(cues) == 0 {
		return fmt.Errorf("ffmpeg music bed: no cues")
	}
	_, err := a.run(ctx, "music bed", musicBedArgs(cues, volume, outWav))
	return err
}

func musicBedArgs(cues []types.MusicCue, volume float64, outWav string) []string {
	args := []string{"-y"}
	for _, c := range cues {
		if c.File == "" {
			args = append(args, "-f", "lavfi", "-t", fmtSeconds(c.Span().Duration()), "-i", "anullsrc=r=44100:cl=stereo")
			continue
		}
		args = append(args, "-i", c.File)
	}
	vol := strconv.FormatFloat(volume, 'f', -1, 64)
	chains := lo.Map(cues, func(c types.MusicCue, i int) string {
		return fmt.Sprintf("[%d:a]aformat=sample_rates=44100:channel_layouts=stereo,volume=%s,apad,atrim=0:%s,asetpts=PTS-STARTPTS[m%d]",
			i, vol, fmtSeconds(c.Span().Duration()), i)
	})
	labels := lo.Map(cues, func(_ types.MusicCue, i int) string { return fmt.Sprintf("[m%d]", i) })
	graph := strings.Join(chains, ";") + ";" + strings.Join(labels, "") +
		fmt.Sprintf("concat=n=%d:v=0:a=1[bed]", len(cues))
	return append(args,
		"-filter_complex", graph,
		"-map", "[bed]",
		"-c:a", "pcm_s16le",
		outWav,
	)
}

// MixMusic mixes the music bed under the video's own audio. The video
// stream is copied and the output keeps the video's length.
func (a *Adapter) MixMusic(ctx context.Context, inMP4, musicWav, outMP4 string) error {
	_, err := a.run(ctx, "mix music", mixArgs(inMP4, musicWav, outMP4))
	return err
}

func mixArgs(inMP4, musicWav, outMP4 string) []string {
	return []string{
		"-y",
		"-i", inMP4,
		"-i", musicWav,
		"-filter_complex", "[0:a][1:a]amix=inputs=2:weights=1 1:normalize=1:duration=first[aout]",
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		outMP4,
	}
}

func (a *Adapter) ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inMP4,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}
