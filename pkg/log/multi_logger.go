package log

import (
	"io"

	"go.uber.org/multierr"
)

// MultiLogger sends events to multiple loggers.
// Every logger sees every event even when an earlier one fails.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger over loggers. Nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to all loggers and combines their errors.
func (m *MultiLogger) Log(event Event) error {
	var err error
	for _, l := range m.loggers {
		err = multierr.Append(err, l.Log(event))
	}
	return err
}

// Close closes every logger that implements io.Closer.
func (m *MultiLogger) Close() error {
	var err error
	for _, l := range m.loggers {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

var _ Logger = (*MultiLogger)(nil)
