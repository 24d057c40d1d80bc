package ffmpeg

import (
	"strings"
	"testing"

	"github.com/forPelevin/editclick/internal/types"
)

func TestParseSceneCuts(t *testing.T) {
	t.Parallel()

	out := `frame:0    pts:61440   pts_time:4.8
lavfi.scene_score=0.412
frame:1    pts:158720  pts_time:12.4
lavfi.scene_score=0.655
[out#0/null] video:0kB audio:0kB`
	got := parseSceneCuts(out)
	if len(got) != 2 || got[0] != 4.8 || got[1] != 12.4 {
		t.Fatalf("parseSceneCuts=%v", got)
	}
}

func TestShotsFromCuts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cuts     []float64
		duration float64
		want     []types.Span
	}{
		{name: "no cuts", duration: 10, want: []types.Span{{Start: 0, End: 10}}},
		{name: "two cuts", cuts: []float64{4.8, 12.4}, duration: 20, want: []types.Span{{Start: 0, End: 4.8}, {Start: 4.8, End: 12.4}, {Start: 12.4, End: 20}}},
		{name: "flash frames merge", cuts: []float64{0.05, 5, 5.1, 19.95}, duration: 20, want: []types.Span{{Start: 0, End: 5}, {Start: 5, End: 20}}},
		{name: "zero duration", cuts: []float64{1}, duration: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := shotsFromCuts(tt.cuts, tt.duration)
			if len(got) != len(tt.want) {
				t.Fatalf("shots=%+v, want %+v", got, tt.want)
			}
			for i, sh := range got {
				if sh.Index != i || sh.Span() != tt.want[i] {
					t.Fatalf("shot %d=%+v, want %+v", i, sh, tt.want[i])
				}
			}
		})
	}
}

func TestSceneArgsEscapesComma(t *testing.T) {
	t.Parallel()

	args := strings.Join(sceneArgs("in.mp4", 0.3), " ")
	if !strings.Contains(args, `select=gt(scene\,0.3),metadata=print:file=-`) {
		t.Fatalf("args=%s", args)
	}
}

func TestMusicBedArgs(t *testing.T) {
	t.Parallel()

	cues := []types.MusicCue{
		{Index: 1, Start: 0, End: 16, File: "bgm/cue_01.wav"},
		{Index: 2, Start: 16, End: 40},
	}
	args := musicBedArgs(cues, 0.35, "bed.wav")
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-i bgm/cue_01.wav") {
		t.Fatalf("missing cue input: %s", joined)
	}
	if !strings.Contains(joined, "-f lavfi -t 24.000 -i anullsrc=r=44100:cl=stereo") {
		t.Fatalf("missing silence input: %s", joined)
	}
	for _, want := range []string{
		"[0:a]aformat=sample_rates=44100:channel_layouts=stereo,volume=0.35,apad,atrim=0:16.000,asetpts=PTS-STARTPTS[m0]",
		"[1:a]aformat=sample_rates=44100:channel_layouts=stereo,volume=0.35,apad,atrim=0:24.000,asetpts=PTS-STARTPTS[m1]",
		"[m0][m1]concat=n=2:v=0:a=1[bed]",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %s", want, joined)
		}
	}
	if args[len(args)-1] != "bed.wav" {
		t.Fatalf("output=%s", args[len(args)-1])
	}
}

func TestClipArgs(t *testing.T) {
	t.Parallel()

	got := strings.Join(clipArgs("in.mp4", types.Span{Start: 5, End: 12.25}, "out.mp4"), " ")
	if !strings.HasPrefix(got, "-y -ss 5.000 -to 12.250 -i in.mp4") {
		t.Fatalf("clipArgs=%s", got)
	}
}

func TestConcatListQuotes(t *testing.T) {
	t.Parallel()

	got := concatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	want := "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n"
	if got != want {
		t.Fatalf("concatList=%q, want %q", got, want)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	t.Parallel()

	if got := escapeFilterPath(`C:\runs\sub.ass`); got != `C\:\\runs\\sub.ass` {
		t.Fatalf("escapeFilterPath=%q", got)
	}
}
