package log

import (
	"errors"
	"testing"
	"time"
)

// mockLogger records events for testing
type mockLogger struct {
	events []Event
	err    error
	closed int
}

func (m *mockLogger) Log(event Event) error {
	m.events = append(m.events, event)
	return m.err
}

func (m *mockLogger) Close() error {
	m.closed++
	return nil
}

func TestMultiLoggerCallsAll(t *testing.T) {
	mock1 := &mockLogger{}
	mock2 := &mockLogger{}
	mock3 := &mockLogger{}

	multi := NewMultiLogger(mock1, mock2, mock3)

	if err := multi.Log(Event{Timestamp: time.Now(), SessionID: "s", Value: 1525, Tag: TagUp}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	for i, mock := range []*mockLogger{mock1, mock2, mock3} {
		if len(mock.events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(mock.events))
			continue
		}
		if mock.events[0].Value != 1525 {
			t.Errorf("logger %d: Value = %d, want 1525", i, mock.events[0].Value)
		}
	}
}

func TestMultiLoggerContinuesAfterError(t *testing.T) {
	errDisk := errors.New("disk full")
	failing := &mockLogger{err: errDisk}
	after := &mockLogger{}

	multi := NewMultiLogger(failing, after)
	err := multi.Log(Event{Tag: TagStop})

	if !errors.Is(err, errDisk) {
		t.Errorf("Log() = %v, want disk full", err)
	}
	if len(after.events) != 1 {
		t.Error("logger after the failing one did not receive the event")
	}
}

func TestMultiLoggerEmptyList(t *testing.T) {
	multi := NewMultiLogger()
	if err := multi.Log(Event{Tag: TagStart}); err != nil {
		t.Errorf("Log() = %v, want nil", err)
	}
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	mock := &mockLogger{}
	multi := NewMultiLogger(nil, mock, nil)

	if err := multi.Log(Event{Tag: TagUp}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(mock.events) != 1 {
		t.Errorf("got %d events, want 1", len(mock.events))
	}
}

func TestMultiLoggerClose(t *testing.T) {
	closer := &mockLogger{}
	multi := NewMultiLogger(closer, NoopLogger{})

	if err := multi.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closer.closed != 1 {
		t.Errorf("closed = %d, want 1", closer.closed)
	}
}
