//go:build integration

package itest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// writeShotsMP4 renders one solid-colour shot per entry of colors, each
// shotSec long, with audio taken from wav or a quiet tone when wav is empty.
func writeShotsMP4(t *testing.T, dir string, colors []string, shotSec float64, wav string) string {
	t.Helper()
	out := filepath.Join(dir, "input.mp4")

	var args []string
	args = append(args, "-y", "-hide_banner", "-loglevel", "error")
	for _, c := range colors {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=640x360:r=25:d=%g", c, shotSec))
	}
	total := shotSec * float64(len(colors))
	if wav != "" {
		args = append(args, "-i", wav)
	} else {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=220:sample_rate=48000:duration=%g", total))
	}
	filter := ""
	for i := range colors {
		filter += fmt.Sprintf("[%d:v]", i)
	}
	filter += fmt.Sprintf("concat=n=%d:v=1:a=0[v];[%d:a]apad,atrim=0:%g[a]", len(colors), len(colors), total)
	args = append(args,
		"-filter_complex", filter,
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		out,
	)
	if b, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return out
}

// writeSettings writes a settings file and returns its path.
func writeSettings(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "editclick.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}
