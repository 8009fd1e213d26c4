package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const component = "openstack-service-checks"

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// New returns a JSON logger on stdout at info level.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a stdout logger at the given level.
// Unknown or empty levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLevel(value string) zerolog.Level {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(value))]; ok {
		return level
	}
	return zerolog.InfoLevel
}
