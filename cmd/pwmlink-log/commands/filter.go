package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/pwmlink/pwmlink-go/pkg/log"
)

// FilterOptions holds the textual filter criteria shared by every command.
// Empty fields match all events.
type FilterOptions struct {
	SessionID string
	Tag       string
	Source    string
	PeerID    string
	TimeStart string
	TimeEnd   string
}

// Build parses the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		SessionID: o.SessionID,
		PeerID:    o.PeerID,
	}

	if o.Tag != "" {
		tag, err := log.ParseTag(o.Tag)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Tag = &tag
	}

	if o.Source != "" {
		src, err := log.ParseSource(o.Source)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Source = &src
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

// RunFilter copies the events of path matching opts into a new log file at
// output and reports the count on w.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	err = eachEvent(reader, func(event log.Event) error {
		if err := logger.Log(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}

// eachEvent calls fn for every remaining event of reader.
func eachEvent(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
