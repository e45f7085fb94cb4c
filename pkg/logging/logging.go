// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logger := logging.Setup(slog.LevelInfo) // also installs it as slog.Default
//
// Set NO_COLOR to disable ANSI colors, e.g. when logs go to a file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a tint logger on stderr at level as the default logger.
func Setup(level slog.Level) *slog.Logger {
	logger := New(os.Stderr, level, os.Getenv("NO_COLOR") != "")
	slog.SetDefault(logger)
	return logger
}

// New returns a tint logger writing to w. Source locations are only added
// at debug level.
func New(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			AddSource:  level <= slog.LevelDebug,
			NoColor:    noColor,
		}),
	)
}
