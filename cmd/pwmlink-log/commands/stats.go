package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pwmlink/pwmlink-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents    int
	EventsByTag    map[log.Tag]int
	EventsBySource map[log.Source]int
	Sessions       map[string]*SessionStats
	TimeRange      struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single pwmlink run.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Min       int
	Max       int
	Final     int
	Exited    bool
	Peers     map[string]int
}

// CollectStats reads every event of path matching filter.
func CollectStats(path string, filter log.Filter) (*Stats, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByTag:    make(map[log.Tag]int),
		EventsBySource: make(map[log.Source]int),
		Sessions:       make(map[string]*SessionStats),
	}

	err = eachEvent(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByTag[event.Tag]++
	s.EventsBySource[event.Source]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Min:       event.Value,
			Max:       event.Value,
			Peers:     make(map[string]int),
		}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	sess.Min = min(sess.Min, event.Value)
	sess.Max = max(sess.Max, event.Value)
	sess.Final = event.Value
	if event.Tag == log.TagExit {
		sess.Exited = true
	}
	if event.PeerID != "" {
		sess.Peers[event.PeerID]++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats, err := CollectStats(path, filter)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== pwmlink Command Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Tag:")
	for _, tag := range []log.Tag{log.TagStart, log.TagUp, log.TagDown, log.TagStop, log.TagRelay, log.TagExit} {
		if count := stats.EventsByTag[tag]; count > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", tag.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Source:")
	for _, src := range []log.Source{log.SourceSystem, log.SourceLocal, log.SourceRelay} {
		if count := stats.EventsBySource[src]; count > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", src.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) == 0 {
		return
	}

	type sessionInfo struct {
		id    string
		stats *SessionStats
	}
	sessions := make([]sessionInfo, 0, len(stats.Sessions))
	for id, ss := range stats.Sessions {
		sessions = append(sessions, sessionInfo{id, ss})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
	})

	fmt.Fprintln(w)
	for _, s := range sessions {
		duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
		fmt.Fprintf(w, "           Range: %d..%d, final %d\n", s.stats.Min, s.stats.Max, s.stats.Final)
		if !s.stats.Exited {
			fmt.Fprintln(w, "           No EXIT record (session did not shut down cleanly)")
		}
		if len(s.stats.Peers) > 0 {
			fmt.Fprintf(w, "           Relay peers: %d\n", len(s.stats.Peers))
		}
	}
}
