//go:build integration

package itest

import (
	"fmt"
	"os/exec"

	"github.com/tidwall/gjson"
)

// probeDurationSeconds reads the container duration of an output file.
func probeDurationSeconds(mp4Path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		mp4Path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	d := gjson.GetBytes(b, "format.duration")
	if !d.Exists() {
		return 0, fmt.Errorf("ffprobe: no duration in %s", string(b))
	}
	return d.Float(), nil
}
