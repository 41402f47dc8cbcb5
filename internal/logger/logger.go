// Package logger builds the process-wide structured logger.
//
// Records are written one JSON object per line with a "ts" field rendered in
// the configured time zone, e.g.
//
//	{"ts":"2026-01-02T15:04:05.123+09:00","level":"info","msg":"http_request","status":200}
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a logger writing to stdout.
func New(level, format string, loc *time.Location) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format, loc)
}

// NewWithWriter returns a logger writing to w. format is "json" or "text".
func NewWithWriter(w io.Writer, level, format string, loc *time.Location) *slog.Logger {
	if loc == nil {
		loc = time.UTC
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: replaceAttr(loc),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func replaceAttr(loc *time.Location) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			return slog.String("ts", a.Value.Time().In(loc).Format(time.RFC3339Nano))
		case slog.LevelKey:
			return slog.String(slog.LevelKey, strings.ToLower(a.Value.String()))
		}
		return a
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
