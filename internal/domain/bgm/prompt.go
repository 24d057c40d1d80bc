package bgm

import (
	"fmt"
	"strings"

	"github.com/forPelevin/editclick/internal/types"
)

// Prompt writes the text-to-audio request for cue idx (1-based).
func Prompt(idx int, g types.Span, m Mood, opts Options) string {
	feel := m.Core
	if m.Nuance != "" {
		feel += " " + m.Nuance
	}

	var b strings.Builder
	b.WriteString("Unobtrusive modern background music for a talking-head or documentary video. ")
	b.WriteString("Instrumental only: no vocals, no lyrics, no lead melody competing with speech.\n\n")
	fmt.Fprintf(&b, "Cue %d covers about %.1f seconds of the edited video starting near %.1f seconds. ", idx, g.Duration(), g.Start)
	fmt.Fprintf(&b, "It should feel %s. Use %s.\n\n", feel, m.Tempo)
	b.WriteString("Instrumentation: soft piano, gentle acoustic guitar, light plucks or mallets, airy pads and light percussion. ")
	b.WriteString("Avoid heavy drums, dark drones and boomy low end.\n\n")
	b.WriteString("Mix: keep the level gentle so dialogue sits on top, and fade out smoothly at the end.\n\n")
	fmt.Fprintf(&b, "Target duration is about %.1f seconds.", ClipLength(g, opts))

	var texture []string
	if m.Tone != "" {
		texture = append(texture, fmt.Sprintf("a %q tonal colour", m.Tone))
	}
	if m.Rhythm != "" {
		texture = append(texture, fmt.Sprintf("a rhythmic feel like %q", m.Rhythm))
	}
	if len(texture) > 0 {
		fmt.Fprintf(&b, "\nThe texture should have %s.", strings.Join(texture, " and "))
	}
	return b.String()
}
