package subtitles

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/forPelevin/editclick/internal/types"
)

// Style is the per-line look derived from the speaker's emotion and voice.
type Style struct {
	Color string // colour name, see assColors
	Size  int
}

// ASS colours are &HAABBGGRR.
var assColors = map[string]string{
	"white":       "&H00FFFFFF",
	"red":         "&H000000FF",
	"deepskyblue": "&H00FFBF00",
	"yellow":      "&H0000FFFF",
	"lightblue":   "&H00E6D8AD",
	"orangered":   "&H000045FF",
}

// DecideStyle picks colour and size for a caption. Anger is red and large,
// sadness blue, happiness yellow; loud speech grows, quiet speech shrinks;
// a bright tone turns the caption yellow. The size stays within
// [base-10, base+22].
func DecideStyle(f types.Features, ok bool, base int) Style {
	st := Style{Color: "white", Size: base}
	if !ok {
		return st
	}

	emo := strings.ToLower(f.Emotion)
	switch {
	case emo == "ang" || emo == "anger" || emo == "angry":
		st.Color, st.Size = "red", base+12
	case emo == "sad" || emo == "sadness":
		st.Color, st.Size = "deepskyblue", base+6
	case emo == "hap" || emo == "joy" || emo == "happy":
		st.Color, st.Size = "yellow", base+8
	}

	if f.RMSDB != 0 {
		switch {
		case f.RMSDB > -25:
			st.Size += 6
		case f.RMSDB < -35:
			st.Size -= 4
		}
	}

	tone := strings.ToLower(f.ToneTag)
	switch {
	case strings.Contains(tone, "bright"):
		st.Color = "yellow"
	case strings.Contains(tone, "warm") && st.Color == "deepskyblue":
		st.Color = "lightblue"
	case strings.Contains(tone, "dark") && st.Color == "red":
		st.Color = "orangered"
	}

	st.Size = lo.Clamp(st.Size, base-10, base+22)
	return st
}

// override returns the inline tags that turn the base caption style into st.
func (st Style) override(base int) string {
	var tags []string
	if c, ok := assColors[st.Color]; ok && st.Color != "white" {
		tags = append(tags, fmt.Sprintf("\\c%s&", c))
	}
	if st.Size != base && st.Size > 0 {
		tags = append(tags, fmt.Sprintf("\\fs%d", st.Size))
	}
	if len(tags) == 0 {
		return ""
	}
	return "{" + strings.Join(tags, "") + "}"
}
