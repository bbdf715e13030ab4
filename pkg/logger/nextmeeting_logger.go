// Package logger configures the process-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config for logger initialization.
type Config struct {
	Level   string // debug, info, warn, error
	Service string
	Pretty  bool // force console writer; otherwise auto-detected from the TTY
}

// New creates a configured root logger. Components derive their own with
// .With().Str("component", ...).
func New(cfg Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stderr)
	if cfg.Pretty || isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	logger := out.With().Timestamp().Logger().Level(lvl)
	if cfg.Service != "" {
		logger = logger.With().Str("service", cfg.Service).Logger()
	}
	return logger
}
