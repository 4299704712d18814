// Package logging builds the zerolog loggers used by the ingest
// pipeline and the command line tools. Library packages stay silent;
// anything that wants to log receives a zerolog.Logger explicitly.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds logger construction options.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error,
	// fatal, panic, disabled. Default: info.
	Level string

	// Format is json or console. Default: json.
	Format string

	// Caller includes the caller file and line in each event.
	Caller bool

	// Output is the log destination. Default: os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// New builds a logger from cfg. Empty fields fall back to
// DefaultConfig values.
func New(cfg Config) zerolog.Logger {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	lgr := zerolog.New(output).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		lgr = lgr.Caller()
	}
	return lgr.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewTestLogger writes JSON events to w, for capturing log output in
// tests.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
