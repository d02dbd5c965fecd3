// Package logging initializes the application's slog-based loggers.
package logging

import (
	"log/slog"
	"os"
	"sync"
)

var (
	structuredLogger *slog.Logger
	initOnce         sync.Once
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// Init initializes the logging system. Structured JSON goes to stdout,
// human-readable text to stderr. Safe to call more than once.
func Init(debug bool) {
	initOnce.Do(func() {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		replaceLevel := func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl := a.Value.Any().(slog.Level)
				if label, ok := levelNames[lvl]; ok {
					a.Value = slog.StringValue(label)
				}
			}
			return a
		}

		structuredHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceLevel,
		})
		structuredLogger = slog.New(structuredHandler)
		slog.SetDefault(structuredLogger)
	})
}

// ForService returns a logger scoped to a named component. Falls back to the
// default logger if Init has not run yet.
func ForService(service string) *slog.Logger {
	if structuredLogger == nil {
		return slog.Default().With("service", service)
	}
	return structuredLogger.With("service", service)
}
