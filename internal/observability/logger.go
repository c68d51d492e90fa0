package observability

import (
	"io"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/rs/zerolog"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// NewLogger builds a zerolog logger writing to w in json or console format.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.Nop(), clierr.New(clierr.CodeUsage, "log level must be one of trace|debug|info|warn|error")
	}

	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", LogFormatJSON:
		out = w
	case LogFormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), clierr.New(clierr.CodeUsage, "log format must be json or console")
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "volumebot").Logger(), nil
}
