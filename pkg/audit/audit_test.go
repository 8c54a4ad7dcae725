package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexepic/metrix-studio/pkg/driver"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Event {
	t.Helper()
	var out []Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func TestLoggerObserve(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, Config{Enabled: true, IncludeQueries: true})

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	logger.Observe(driver.Event{Type: driver.EventOpened, Time: at, Path: "/data/a.mx"})
	logger.Observe(driver.Event{
		Type: driver.EventQueryDone, Time: at, Path: "/data/a.mx", Query: "MATCH (n) RETURN n",
		Rows: 3, Nodes: 3, Duration: 42 * time.Millisecond,
	})
	logger.Observe(driver.Event{
		Type: driver.EventNodeExtractFailed, Time: at, Path: "/data/a.mx", Row: 0, Column: 2,
		Message: "node info unavailable",
	})

	events := decodeLines(t, &buf)
	require.Len(t, events, 3)

	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
	assert.Equal(t, uint64(3), events[2].Seq)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Len(t, events[0].ID, 36)

	assert.Equal(t, driver.EventOpened, events[0].Type)
	assert.True(t, at.Equal(events[0].Timestamp))
	assert.Nil(t, events[0].Row)

	assert.Equal(t, "MATCH (n) RETURN n", events[1].Query)
	assert.Equal(t, 3, events[1].Nodes)
	assert.Equal(t, int64(42), events[1].DurationMS)
	assert.True(t, events[1].Success())

	require.NotNil(t, events[2].Row)
	assert.Equal(t, 0, *events[2].Row)
	assert.Equal(t, 2, *events[2].Column)
	assert.False(t, events[2].Success())
}

func TestLoggerRedactsQueries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, Config{Enabled: true})
	logger.Observe(driver.Event{Type: driver.EventQueryFailed, Query: "MATCH (secret)", Message: "boom"})

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Query)
	assert.Equal(t, "boom", events[0].Message)
	assert.NotContains(t, buf.String(), "secret")
}

func TestLoggerDisabled(t *testing.T) {
	logger, err := NewLogger(Config{Enabled: false, LogPath: "/nonexistent/dir/audit.log"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled())
	assert.NoError(t, logger.Log(Event{Type: driver.EventOpened}))
	logger.Observe(driver.Event{Type: driver.EventOpened})
	assert.NoError(t, logger.Close())
}

func TestLoggerAlerts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, DefaultConfig())

	var alerts []Event
	logger.SetAlertCallback(func(e Event) { alerts = append(alerts, e) })

	logger.Observe(driver.Event{Type: driver.EventQueryFailed, Message: "syntax"})
	logger.Observe(driver.Event{Type: driver.EventSystemFailed, Message: "engine crashed"})

	require.Len(t, alerts, 1)
	assert.Equal(t, "engine crashed", alerts[0].Message)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLoggerErrors(t *testing.T) {
	logger := NewLoggerWithWriter(failingWriter{}, Config{Enabled: true})

	var got error
	logger.SetErrorHandler(func(err error) { got = err })
	logger.Observe(driver.Event{Type: driver.EventOpened})
	require.Error(t, got)
	assert.Contains(t, got.Error(), "disk full")

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	assert.ErrorIs(t, logger.Log(Event{Type: driver.EventOpened}), ErrClosed)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	logger, err := NewLogger(Config{Enabled: true, LogPath: path, SyncWrites: true, IncludeQueries: true})
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	logger.Observe(driver.Event{Type: driver.EventOpened, Time: base, Path: "/a"})
	logger.Observe(driver.Event{Type: driver.EventQueryDone, Time: base.Add(time.Hour), Path: "/a", Query: "RETURN 1"})
	logger.Observe(driver.Event{Type: driver.EventQueryFailed, Time: base.Add(2 * time.Hour), Path: "/b", Message: "bad"})
	logger.Observe(driver.Event{Type: driver.EventClosed, Time: base.Add(3 * time.Hour), Path: "/b"})
	require.NoError(t, logger.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	reader := NewReader(path)

	t.Run("all", func(t *testing.T) {
		res, err := reader.Query(Query{})
		require.NoError(t, err)
		assert.Equal(t, 4, res.TotalCount)
		assert.False(t, res.HasMore)
	})

	t.Run("by type", func(t *testing.T) {
		res, err := reader.Query(Query{Types: []driver.EventType{driver.EventQueryDone, driver.EventQueryFailed}})
		require.NoError(t, err)
		require.Len(t, res.Events, 2)
		assert.Equal(t, "RETURN 1", res.Events[0].Query)
	})

	t.Run("by path", func(t *testing.T) {
		res, err := reader.Query(Query{Path: "/b"})
		require.NoError(t, err)
		assert.Len(t, res.Events, 2)
	})

	t.Run("time window", func(t *testing.T) {
		res, err := reader.Query(Query{StartTime: base.Add(30 * time.Minute), EndTime: base.Add(150 * time.Minute)})
		require.NoError(t, err)
		assert.Len(t, res.Events, 2)
	})

	t.Run("pagination", func(t *testing.T) {
		res, err := reader.Query(Query{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, res.Events, 2)
		assert.Equal(t, uint64(2), res.Events[0].Seq)
		assert.True(t, res.HasMore)

		res, err = reader.Query(Query{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, res.Events)
	})

	t.Run("failures", func(t *testing.T) {
		res, err := reader.Failures(time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		assert.Equal(t, "bad", res.Events[0].Message)
	})
}

func TestReaderMissingAndMalformed(t *testing.T) {
	res, err := NewReader(filepath.Join(t.TempDir(), "absent.log")).Query(Query{})
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"id":"a","seq":1,"type":"db.opened"}
{"id":"b","seq":"two","type":"db.opened"}
{"id":"c","seq":3,"type":"db.closed"}
{not json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	res, err = NewReader(path).Query(Query{})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "a", res.Events[0].ID)
	assert.Equal(t, "c", res.Events[1].ID)
}

func TestReaderSkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	long := strings.Repeat("x", 200*1024)
	content := `{"id":"a","seq":1,"type":"db.opened","path":"/data/a.mx"}
{"id":"b","seq":2,"type":"query.execution_fai
{"id":"c","seq":3,"type":"query.execution_failed","path":"/data/a.mx","query":"` + long + `"}

{"id":"d","seq":4,"type":"db.closed","path":"/data/a.mx"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reader := NewReader(path)
	res, err := reader.Query(Query{})
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, "a", res.Events[0].ID)
	assert.Equal(t, "c", res.Events[1].ID)
	assert.Len(t, res.Events[1].Query, len(long))
	assert.Equal(t, "d", res.Events[2].ID)

	failures, err := reader.Failures(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, failures.Events, 1)
	assert.Equal(t, "c", failures.Events[0].ID)
}
