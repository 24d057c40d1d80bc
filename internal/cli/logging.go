package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the process logger from EDITCLICK_LOG_LEVEL
// (debug|info|warn|error) and EDITCLICK_LOG_FORMAT (console|json).
func newLogger(w io.Writer) zerolog.Logger {
	level := parseLogLevel(os.Getenv("EDITCLICK_LOG_LEVEL"))

	format := strings.ToLower(strings.TrimSpace(os.Getenv("EDITCLICK_LOG_FORMAT")))
	if format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func parseLogLevel(value string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
