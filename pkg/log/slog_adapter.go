package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors command events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event. It never fails.
func (a *SlogAdapter) Log(event Event) error {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("tag", event.Tag.String()),
		slog.Int("pwm", event.Value),
		slog.Duration("elapsed", event.Elapsed),
		slog.String("source", event.Source.String()),
	}
	if event.PeerID != "" {
		attrs = append(attrs, slog.String("peer", event.PeerID))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "command", attrs...)
	return nil
}

var _ Logger = (*SlogAdapter)(nil)
