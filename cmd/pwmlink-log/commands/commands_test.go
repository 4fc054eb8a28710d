package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pwmlink/pwmlink-go/pkg/log"
)

const (
	sessionA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	sessionB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	peerID   = "e1f5b9a2-3c44-4f0e-9d5c-2b7a8e6f1c30"
)

var base = time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.plog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("failed to log event: %v", err)
		}
	}
	logger.Close()

	return path
}

func event(offset time.Duration, session string, value int, tag log.Tag, src log.Source) log.Event {
	return log.Event{
		Timestamp: base.Add(offset),
		Elapsed:   offset,
		SessionID: session,
		Value:     value,
		Tag:       tag,
		Source:    src,
	}
}

// sessionEvents is one session driven by keys and a relay peer.
func sessionEvents() []log.Event {
	relay := event(3*time.Second, sessionA, 1700, log.TagRelay, log.SourceRelay)
	relay.PeerID = peerID
	return []log.Event{
		event(0, sessionA, 1500, log.TagStart, log.SourceSystem),
		event(time.Second, sessionA, 1525, log.TagUp, log.SourceLocal),
		event(2*time.Second, sessionA, 1550, log.TagUp, log.SourceLocal),
		relay,
		event(4*time.Second, sessionA, 1500, log.TagStop, log.SourceLocal),
		event(5*time.Second, sessionA, 1500, log.TagExit, log.SourceSystem),
	}
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, e)
	}
}

func TestFormatEvent(t *testing.T) {
	e := event(1500*time.Millisecond, sessionA, 1525, log.TagUp, log.SourceLocal)
	e.Timestamp = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

	var buf bytes.Buffer
	formatEvent(&buf, e)
	output := buf.String()

	for _, want := range []string{"2026-01-28T10:15:32.123456Z", "[0f8fad5b]", "+1.500000s", "UP", "1525", "LOCAL"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in %q", want, output)
		}
	}
	if strings.Contains(output, "peer:") {
		t.Errorf("local event should not show a peer: %q", output)
	}
	if !strings.HasSuffix(output, "\n") || strings.Count(output, "\n") != 1 {
		t.Errorf("expected one line, got %q", output)
	}
}

func TestFormatRelayEvent(t *testing.T) {
	e := event(0, sessionA, 1700, log.TagRelay, log.SourceRelay)
	e.PeerID = peerID

	var buf bytes.Buffer
	formatEvent(&buf, e)

	if !strings.Contains(buf.String(), "peer:e1f5b9a2") {
		t.Errorf("expected shortened peer ID, got %q", buf.String())
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 6 {
		t.Errorf("expected 6 lines, got %d:\n%s", lines, buf.String())
	}

	tag := log.TagUp
	buf.Reset()
	if err := RunView(path, log.Filter{Tag: &tag}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("expected 2 UP lines, got %d", lines)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.plog"), log.Filter{}, io.Discard)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, FormatJSONL, outPath, log.Filter{}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}

	var relay jsonEvent
	if err := json.Unmarshal([]byte(lines[3]), &relay); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := jsonEvent{
		Timestamp: "2026-01-28T10:00:03.000000Z",
		Elapsed:   3,
		SessionID: sessionA,
		Value:     1700,
		Tag:       "RELAY",
		Source:    "RELAY",
		PeerID:    peerID,
	}
	if relay != want {
		t.Errorf("relay event = %+v, want %+v", relay, want)
	}

	if strings.Contains(lines[0], "peer_id") {
		t.Errorf("peer_id should be omitted for system events: %s", lines[0])
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	src := log.SourceLocal
	if err := RunExport(path, FormatCSV, outPath, log.Filter{Source: &src}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}

	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "timestamp,t_s,session_id,pwm,event,source,peer_id" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if got := strings.Join(rows[1][1:6], ","); got != "1.000000,"+sessionA+",1525,UP,LOCAL" {
		t.Errorf("unexpected first row: %s", got)
	}
	if rows[3][4] != "STOP" {
		t.Errorf("expected STOP last, got %s", rows[3][4])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	err := RunExport(path, "xml", "", log.Filter{})
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestFilterByTagAndSource(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	var buf bytes.Buffer
	err := RunFilter(path, outPath, FilterOptions{Tag: "up", Source: "local"}, &buf)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected report: %q", buf.String())
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Tag != log.TagUp || e.Source != log.SourceLocal {
			t.Errorf("unexpected event %+v", e)
		}
	}
}

func TestFilterByTimeRange(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	err := RunFilter(path, outPath, FilterOptions{
		TimeStart: base.Add(time.Second).Format(time.RFC3339),
		TimeEnd:   base.Add(3 * time.Second).Format(time.RFC3339),
	}, io.Discard)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events in [1s, 3s), got %d", len(events))
	}
	if events[0].Value != 1525 || events[1].Value != 1550 {
		t.Errorf("unexpected values %d, %d", events[0].Value, events[1].Value)
	}
}

func TestFilterByPeer(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	if err := RunFilter(path, outPath, FilterOptions{PeerID: peerID}, io.Discard); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	events := readAll(t, outPath)
	if len(events) != 1 || events[0].Tag != log.TagRelay {
		t.Errorf("expected the relay event, got %+v", events)
	}
}

func TestFilterOptionsBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"Tag", FilterOptions{Tag: "sideways"}},
		{"Source", FilterOptions{Source: "bluetooth"}},
		{"TimeStart", FilterOptions{TimeStart: "yesterday"}},
		{"TimeEnd", FilterOptions{TimeEnd: "2026-13-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{SessionID: sessionB, Tag: "EXIT", Source: "system"}.Build()
	if err != nil {
		t.Fatal(err)
	}
	if f.SessionID != sessionB || *f.Tag != log.TagExit || *f.Source != log.SourceSystem {
		t.Errorf("unexpected filter %+v", f)
	}
	if f.TimeStart != nil || f.TimeEnd != nil {
		t.Error("time bounds should be unset")
	}
}

func TestCollectStats(t *testing.T) {
	events := sessionEvents()
	// A second session that never shut down.
	events = append(events,
		event(time.Hour, sessionB, 1500, log.TagStart, log.SourceSystem),
		event(time.Hour+time.Second, sessionB, 1475, log.TagDown, log.SourceLocal),
	)
	path := createTestLogFile(t, events)

	stats, err := CollectStats(path, log.Filter{})
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}

	if stats.TotalEvents != 8 {
		t.Errorf("TotalEvents = %d, want 8", stats.TotalEvents)
	}
	if stats.EventsByTag[log.TagUp] != 2 || stats.EventsByTag[log.TagStart] != 2 {
		t.Errorf("EventsByTag = %v", stats.EventsByTag)
	}
	if stats.EventsBySource[log.SourceRelay] != 1 {
		t.Errorf("EventsBySource = %v", stats.EventsBySource)
	}
	if len(stats.Sessions) != 2 {
		t.Fatalf("Sessions = %d, want 2", len(stats.Sessions))
	}

	a := stats.Sessions[sessionA]
	if a.Min != 1500 || a.Max != 1700 || a.Final != 1500 || !a.Exited || a.Peers[peerID] != 1 {
		t.Errorf("session A = %+v", a)
	}
	b := stats.Sessions[sessionB]
	if b.Min != 1475 || b.Exited {
		t.Errorf("session B = %+v", b)
	}
	if !stats.TimeRange.End.Equal(base.Add(time.Hour + time.Second)) {
		t.Errorf("TimeRange.End = %v", stats.TimeRange.End)
	}
}

func TestRunStatsOutput(t *testing.T) {
	events := append(sessionEvents(), event(time.Hour, sessionB, 1500, log.TagStart, log.SourceSystem))
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 7",
		"UP:      2",
		"RELAY:   1",
		"Sessions: 2",
		"[0f8fad5b] 6 events, duration 5s",
		"Range: 1500..1700, final 1500",
		"Relay peers: 1",
		"No EXIT record",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestRunStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") || strings.Contains(buf.String(), "Time Range") {
		t.Errorf("unexpected output for empty log:\n%s", buf.String())
	}
}
