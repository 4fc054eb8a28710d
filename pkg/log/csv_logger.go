package log

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// CSVHeader is the first line of every CSV command log.
var CSVHeader = []string{"t_s", "pwm", "event"}

// CSVLogger writes events as t_s,pwm,event rows.
type CSVLogger struct {
	file   *os.File
	w      *csv.Writer
	mu     sync.Mutex
	closed bool
}

// NewCSVLogger truncates path and writes the header.
func NewCSVLogger(path string) (*CSVLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}

	l := &CSVLogger{file: f, w: csv.NewWriter(f)}
	if err := l.writeRow(CSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Log appends one row. The row is on disk when Log returns nil.
func (l *CSVLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	return l.writeRow(FormatCSVRow(event))
}

// FormatCSVRow returns the CSV fields for event.
func FormatCSVRow(event Event) []string {
	return []string{
		strconv.FormatFloat(event.Elapsed.Seconds(), 'f', 6, 64),
		strconv.Itoa(event.Value),
		event.Tag.String(),
	}
}

func (l *CSVLogger) writeRow(row []string) error {
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync csv log: %w", err)
	}
	return nil
}

// Close closes the file. It is safe to call Close multiple times.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*CSVLogger)(nil)
