package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// NewLogger builds a zerolog logger from the logging configuration. When
// Format is empty, console output is chosen only when stderr is a terminal,
// so piped and scheduled runs emit machine-readable JSON. When File is set,
// logs are appended there in addition to stderr; a file that cannot be
// opened degrades to stderr-only with a warning rather than failing the
// command.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if cfg.Format == "console" || (cfg.Format == "" && isTerminal(os.Stderr)) {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	if cfg.File == "" {
		return newLogger(lvl, console)
	}

	logFile, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		logger := newLogger(lvl, console)
		logger.Warn().Err(err).Str("path", cfg.File).Msg("could not open log file, logging to stderr only")
		return logger
	}
	return newLogger(lvl, zerolog.MultiLevelWriter(console, logFile))
}

func newLogger(lvl zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
