package timeline

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Straddle decides what happens to an annotation that crosses a cut.
type Straddle string

const (
	// StraddleTruncate keeps the retained part as one annotation. Because the
	// removed span collapses, the retained parts are contiguous on the edited
	// timeline.
	StraddleTruncate Straddle = "truncate"
	// StraddleDrop removes any annotation not wholly inside one retained interval.
	StraddleDrop Straddle = "drop"
	// StraddleSplit emits one annotation per retained interval it touches.
	StraddleSplit Straddle = "split"
)

func StraddleValues() []string {
	return []string{string(StraddleTruncate), string(StraddleDrop), string(StraddleSplit)}
}

func ParseStraddle(s string) (Straddle, error) {
	switch v := Straddle(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return StraddleTruncate, nil
	case StraddleTruncate, StraddleDrop, StraddleSplit:
		return v, nil
	default:
		return "", fmt.Errorf("unknown straddle policy %q, must be one of: %s", s, strings.Join(StraddleValues(), ", "))
	}
}

type Options struct {
	// Policy selects the kept units. Nil keeps everything.
	Policy Policy
	// Straddle defaults to StraddleTruncate.
	Straddle Straddle
	// Log receives dropped-annotation events. Nil discards them.
	Log *zerolog.Logger
}

func (o Options) policy() Policy {
	if o.Policy == nil {
		return KeepAll
	}
	return o.Policy
}

func (o Options) straddle() Straddle {
	if o.Straddle == "" {
		return StraddleTruncate
	}
	return o.Straddle
}

func (o Options) logger() *zerolog.Logger {
	if o.Log == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return o.Log
}
