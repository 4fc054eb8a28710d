// Package commands implements the pwmlink-log CLI commands.
package commands

import (
	"fmt"
	"io"

	"github.com/pwmlink/pwmlink-go/pkg/log"
)

const timestampFormat = "2006-01-02T15:04:05.000000Z"

// formatEvent writes one line per event:
//
//	timestamp [session] +elapsed TAG value SOURCE [peer]
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timestampFormat)
	fmt.Fprintf(w, "%s [%s] %+12.6fs %-5s %5d %s",
		ts,
		shortenID(event.SessionID),
		event.Elapsed.Seconds(),
		event.Tag,
		event.Value,
		event.Source)
	if event.PeerID != "" {
		fmt.Fprintf(w, " peer:%s", shortenID(event.PeerID))
	}
	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a UUID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// RunView prints the events of path that match filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return eachEvent(reader, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}
