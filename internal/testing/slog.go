package testing

import (
	"context"
	"log/slog"
)

// TestSlogHandler is a slog.Handler that captures emitted Records on a
// buffered channel, letting tests assert on what was logged. Records
// beyond the buffer are dropped rather than blocking the logger
type TestSlogHandler struct {
	Logs     chan slog.Record
	minLevel slog.Leveler
}

// NewTestSlogHandler instantiates a TestSlogHandler capturing all levels
// down to Debug
func NewTestSlogHandler() *TestSlogHandler {
	var minLevel slog.LevelVar
	minLevel.Set(slog.LevelDebug)
	return &TestSlogHandler{
		Logs:     make(chan slog.Record, 10),
		minLevel: &minLevel,
	}
}

func (h *TestSlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel.Level()
}

func (h *TestSlogHandler) Handle(_ context.Context, r slog.Record) error {
	select {
	case h.Logs <- r:
	default:
	}
	return nil
}

func (h *TestSlogHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *TestSlogHandler) WithGroup(_ string) slog.Handler {
	return h
}
