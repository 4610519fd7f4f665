package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/config"
)

const timeFormat = "2006-01-02 15:04:05"

// New builds the root logger writing to stdout.
func New(cfg config.LoggingConfig, env string) zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg, env)
}

// NewWithWriter builds the root logger. JSON output is used when the format
// is "json"; anything else gets the human-readable console writer.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var base zerolog.Logger
	if cfg.Format == "json" {
		base = zerolog.New(w)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat})
	}

	return base.
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", env).
		Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
