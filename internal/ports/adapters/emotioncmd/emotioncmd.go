// Package emotioncmd classifies speech emotion by running an external
// model runner. The runner gets the wav path as its last argument and the
// windows as JSON on stdin, and prints one label per window:
//
//	{"emotions":[{"label":"hap","score":0.81}, ...]}
package emotioncmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/forPelevin/editclick/internal/types"
)

// NeutralLabel is assigned when no classifier is configured or a window is
// too short to classify.
const NeutralLabel = "neu"

type Adapter struct {
	argv      []string
	minWindow float64
}

// New splits command on whitespace. An empty command yields an adapter that
// labels every window neutral.
func New(command string, minWindowSec float64) *Adapter {
	return &Adapter{argv: strings.Fields(command), minWindow: minWindowSec}
}

func (a *Adapter) Classify(ctx context.Context, wavPath string, windows []types.Span) ([]types.Emotion, error) {
	out := neutral(len(windows))
	if len(a.argv) == 0 || len(windows) == 0 {
		return out, nil
	}

	in, err := json.Marshal(struct {
		Windows []types.Span `json:"windows"`
	}{windows})
	if err != nil {
		return nil, err
	}
	args := append(append([]string(nil), a.argv[1:]...), wavPath)
	cmd := exec.CommandContext(ctx, a.argv[0], args...)
	cmd.Stdin = bytes.NewReader(in)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("emotion runner: %w\n%s", err, stderr.String())
	}

	labels, err := parseOutput(b)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(windows) {
		return nil, fmt.Errorf("emotion runner: got %d labels for %d windows", len(labels), len(windows))
	}
	for i, l := range labels {
		if windows[i].Duration() < a.minWindow || l.Label == "" {
			continue
		}
		out[i] = l
	}
	return out, nil
}

func parseOutput(b []byte) ([]types.Emotion, error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("emotion runner: output is not JSON: %q", truncate(string(b), 200))
	}
	r := gjson.ParseBytes(b)
	list := r.Get("emotions")
	if !list.Exists() && r.IsArray() {
		list = r
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("emotion runner: missing emotions array")
	}
	var out []types.Emotion
	list.ForEach(func(_, e gjson.Result) bool {
		out = append(out, types.Emotion{
			Label: normalizeLabel(e.Get("label").String()),
			Score: e.Get("score").Float(),
		})
		return true
	})
	return out, nil
}

// normalizeLabel maps long model labels (happy, angry, neutral...) onto the
// short codes used by styling and mood analysis.
func normalizeLabel(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	for _, short := range []string{"hap", "ang", "sad", "neu"} {
		if strings.HasPrefix(l, short) {
			return short
		}
	}
	return l
}

func neutral(n int) []types.Emotion {
	out := make([]types.Emotion, n)
	for i := range out {
		out[i] = types.Emotion{Label: NeutralLabel}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
