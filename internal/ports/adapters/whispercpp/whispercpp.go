package whispercpp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/forPelevin/editclick/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath}
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-ojf",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, err
	}
	return parseOutput(jb)
}

// parseOutput reads whisper.cpp's full JSON output. Offsets are in
// milliseconds; tokens are glued into words on leading spaces.
func parseOutput(jb []byte) (types.Transcript, error) {
	if !gjson.ValidBytes(jb) {
		return types.Transcript{}, fmt.Errorf("whisper.cpp output is not valid JSON")
	}
	root := gjson.ParseBytes(jb)
	tr := types.Transcript{Language: root.Get("result.language").String()}

	var all []string
	root.Get("transcription").ForEach(func(_, seg gjson.Result) bool {
		text := strings.TrimSpace(seg.Get("text").String())
		s := types.Segment{
			ID:    len(tr.Segments),
			Start: seg.Get("offsets.from").Float() / 1000,
			End:   seg.Get("offsets.to").Float() / 1000,
			Text:  text,
			Words: tokenWords(seg.Get("tokens")),
		}
		if text == "" || s.End <= s.Start {
			return true
		}
		tr.Segments = append(tr.Segments, s)
		all = append(all, text)
		return true
	})
	tr.Text = strings.Join(all, " ")
	return tr, nil
}

func tokenWords(tokens gjson.Result) []types.Word {
	var words []types.Word
	tokens.ForEach(func(_, tok gjson.Result) bool {
		text := tok.Get("text").String()
		if strings.HasPrefix(text, "[_") || strings.TrimSpace(text) == "" {
			return true
		}
		from := tok.Get("offsets.from").Float() / 1000
		to := tok.Get("offsets.to").Float() / 1000
		if len(words) == 0 || strings.HasPrefix(text, " ") {
			words = append(words, types.Word{Start: from, End: to, Word: strings.TrimSpace(text)})
			return true
		}
		last := &words[len(words)-1]
		last.Word += text
		last.End = max(last.End, to)
		return true
	})
	return words
}
