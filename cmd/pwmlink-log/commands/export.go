package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pwmlink/pwmlink-go/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// csvHeader is the column layout of the csv export. The session log's
// own CSV (t_s,pwm,event) is a subset.
var csvHeader = []string{"timestamp", "t_s", "session_id", "pwm", "event", "source", "peer_id"}

// jsonEvent is the JSONL representation of an event.
type jsonEvent struct {
	Timestamp string  `json:"timestamp"`
	Elapsed   float64 `json:"t_s"`
	SessionID string  `json:"session_id"`
	Value     int     `json:"pwm"`
	Tag       string  `json:"event"`
	Source    string  `json:"source"`
	PeerID    string  `json:"peer_id,omitempty"`
}

// RunExport writes the events of path matching filter in format to output,
// or to stdout when output is empty.
func RunExport(path, format, output string, filter log.Filter) error {
	if format != FormatJSONL && format != FormatCSV {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == FormatCSV {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return eachEvent(reader, func(event log.Event) error {
		if err := encoder.Encode(toJSON(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func toJSON(event log.Event) jsonEvent {
	return jsonEvent{
		Timestamp: event.Timestamp.UTC().Format(timestampFormat),
		Elapsed:   event.Elapsed.Seconds(),
		SessionID: event.SessionID,
		Value:     event.Value,
		Tag:       event.Tag.String(),
		Source:    event.Source.String(),
		PeerID:    event.PeerID,
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := eachEvent(reader, func(event log.Event) error {
		row := []string{
			event.Timestamp.UTC().Format(timestampFormat),
			strconv.FormatFloat(event.Elapsed.Seconds(), 'f', 6, 64),
			event.SessionID,
			strconv.Itoa(event.Value),
			event.Tag.String(),
			event.Source.String(),
			event.PeerID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}
