package log

import "errors"

// ErrClosed is returned by file sinks after Close.
var ErrClosed = errors.New("command log closed")

// Logger receives command events. Implementations must be safe for
// concurrent use. Log returns only after the event is durable for sinks
// that write to disk.
type Logger interface {
	Log(event Event) error
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) error { return nil }

var _ Logger = NoopLogger{}
