package log

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVLoggerHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm_log.csv")
	l, err := NewCSVLogger(path)
	require.NoError(t, err)
	defer l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "t_s,pwm,event\n", string(data))
}

func TestCSVLoggerRowsDurableBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm_log.csv")
	l, err := NewCSVLogger(path)
	require.NoError(t, err)
	defer l.Close()

	events := []Event{
		{Elapsed: 0, Value: 1500, Tag: TagStart},
		{Elapsed: 1204311 * time.Microsecond, Value: 1525, Tag: TagUp},
		{Elapsed: 2 * time.Second, Value: 1550, Tag: TagUp},
		{Elapsed: 2500 * time.Millisecond, Value: 1525, Tag: TagDown},
	}
	for _, e := range events {
		require.NoError(t, l.Log(e))
	}

	rows := readCSV(t, path)
	assert.Equal(t, [][]string{
		{"t_s", "pwm", "event"},
		{"0.000000", "1500", "START"},
		{"1.204311", "1525", "UP"},
		{"2.000000", "1550", "UP"},
		{"2.500000", "1525", "DOWN"},
	}, rows)
}

func TestCSVLoggerTruncatesPerSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwm_log.csv")

	first, err := NewCSVLogger(path)
	require.NoError(t, err)
	require.NoError(t, first.Log(Event{Value: 1900, Tag: TagUp}))
	require.NoError(t, first.Close())

	second, err := NewCSVLogger(path)
	require.NoError(t, err)
	require.NoError(t, second.Log(Event{Value: 1500, Tag: TagStart}))
	require.NoError(t, second.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0.000000", "1500", "START"}, rows[1])
}

func TestCSVLoggerCloseIdempotent(t *testing.T) {
	l, err := NewCSVLogger(filepath.Join(t.TempDir(), "pwm_log.csv"))
	require.NoError(t, err)

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
	assert.True(t, errors.Is(l.Log(Event{}), ErrClosed))
}

func TestFormatCSVRow(t *testing.T) {
	row := FormatCSVRow(Event{Elapsed: 3*time.Second + 7*time.Nanosecond, Value: 1100, Tag: TagExit})
	assert.Equal(t, []string{"3.000000", "1100", "EXIT"}, row)
}
