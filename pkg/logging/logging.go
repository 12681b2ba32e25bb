// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logger := logging.Setup("info", os.Stderr) // also installed as slog.Default
//
// The level comes from config (log.level, or PLEDGELEDGER_LOG_LEVEL):
// debug, info, warn, error. Unknown values fall back to info.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs and returns a colored logger at the named level.
func Setup(level string, w io.Writer) *slog.Logger {
	logger := New(ParseLevel(level), w)
	slog.SetDefault(logger)
	return logger
}

// New returns a tint logger writing to w. Source locations are only added at
// debug level.
func New(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  level <= slog.LevelDebug,
		}),
	)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
