// Package audit provides an append-only journal of driver events for Metrix
// Studio.
//
// Every event the driver emits (database opened or closed, query completed or
// failed, node/edge extraction failures) can be recorded as one JSON object
// per line. The journal answers questions like "which databases were opened
// yesterday?" or "which queries failed against /data/prod.mx?" without any
// extra infrastructure.
//
// Features:
//   - Append-only JSON-lines format for machine processing
//   - Unique event ids plus a per-process sequence number
//   - Optional fsync per write
//   - Optional query-text redaction
//   - Alert callback for system-level failures
//   - Reader with time, type and path filters
//
// Example Usage:
//
//	logger, err := audit.NewLogger(audit.Config{
//		Enabled: true,
//		LogPath: "./logs/audit.log",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	// The logger is a driver.Observer.
//	conn, err := driver.Open(engine, "/data/graph.mx", driver.WithObserver(logger))
//
//	// Later: what failed?
//	res, _ := audit.NewReader("./logs/audit.log").Query(audit.Query{
//		Types: []driver.EventType{driver.EventQueryFailed, driver.EventSystemFailed},
//	})
//	for _, ev := range res.Events {
//		fmt.Println(ev.Timestamp, ev.Path, ev.Message)
//	}
//
// ELI12 (Explain Like I'm 12):
//
// Think of the audit journal like a ship's logbook. Every time the crew does
// something important (leave port, drop anchor, hit a storm) somebody writes
// one line in the book with the time and what happened. Nobody tears pages
// out, you only ever add to the end. If something goes wrong later, you flip
// back through the book to see exactly what happened and when.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexepic/metrix-studio/pkg/driver"
)

// ErrClosed is returned when logging to a closed journal.
var ErrClosed = errors.New("audit logger is closed")

// Event is one journal line.
type Event struct {
	// Unique event identifier
	ID string `json:"id"`
	// Seq increases by one for every event written by this process.
	Seq       uint64           `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	Type      driver.EventType `json:"type"`

	Path  string `json:"path,omitempty"`
	Query string `json:"query,omitempty"`

	// Row and Column locate decode events.
	Row    *int `json:"row,omitempty"`
	Column *int `json:"column,omitempty"`

	Message string `json:"message,omitempty"`

	Rows       int   `json:"rows,omitempty"`
	Nodes      int   `json:"nodes,omitempty"`
	Edges      int   `json:"edges,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// Success reports whether the event records a successful operation.
func (e Event) Success() bool {
	switch e.Type {
	case driver.EventOpenFailed, driver.EventQueryFailed, driver.EventSystemFailed,
		driver.EventNodeExtractFailed, driver.EventEdgeExtractFailed:
		return false
	}
	return true
}

// Config holds audit logger configuration.
type Config struct {
	// Enabled controls whether audit logging is active
	Enabled bool

	// LogPath is the path to the audit log file
	LogPath string

	// SyncWrites forces fsync after each write (slower but more durable)
	SyncWrites bool

	// IncludeQueries keeps query text in events; off drops it.
	IncludeQueries bool

	// AlertOnEvents triggers the alert callback for these event types.
	AlertOnEvents []driver.EventType
}

// DefaultConfig returns sensible defaults for audit logging.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		LogPath:        "./logs/audit.log",
		IncludeQueries: true,
		AlertOnEvents:  []driver.EventType{driver.EventSystemFailed},
	}
}

// Logger writes driver events to the journal. It implements driver.Observer.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *os.File
	config   Config
	sequence uint64
	closed   bool

	alertCallback func(Event)
	errorHandler  func(error)
}

var _ driver.Observer = (*Logger)(nil)

// NewLogger creates a logger with the given configuration.
//
// The log directory is created if needed and the file is opened in append
// mode. If logging is disabled the returned logger discards every event.
//
// File Permissions:
//   - Log files: 0640
//   - Log directories: 0750
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}

	dir := filepath.Dir(config.LogPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	file, err := os.OpenFile(config.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}

	return &Logger{
		writer: file,
		file:   file,
		config: config,
	}, nil
}

// NewLoggerWithWriter creates a logger with a custom writer (for testing).
func NewLoggerWithWriter(writer io.Writer, config Config) *Logger {
	return &Logger{
		writer: writer,
		config: config,
	}
}

// SetAlertCallback sets a callback invoked for event types in
// Config.AlertOnEvents.
func (l *Logger) SetAlertCallback(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alertCallback = fn
}

// SetErrorHandler sets a callback for write failures that Observe cannot
// return.
func (l *Logger) SetErrorHandler(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorHandler = fn
}

// Enabled reports whether events are written.
func (l *Logger) Enabled() bool {
	return l.config.Enabled
}

// Observe records a driver event. Write failures go to the error handler.
func (l *Logger) Observe(e driver.Event) {
	if err := l.Log(FromDriver(e)); err != nil {
		l.mu.Lock()
		handler := l.errorHandler
		l.mu.Unlock()
		if handler != nil {
			handler(err)
		}
	}
}

// FromDriver converts a driver event into a journal event.
func FromDriver(e driver.Event) Event {
	ev := Event{
		Timestamp:  e.Time.UTC(),
		Type:       e.Type,
		Path:       e.Path,
		Query:      e.Query,
		Message:    e.Message,
		Rows:       e.Rows,
		Nodes:      e.Nodes,
		Edges:      e.Edges,
		DurationMS: e.Duration.Milliseconds(),
	}
	if e.Type == driver.EventNodeExtractFailed || e.Type == driver.EventEdgeExtractFailed {
		row, col := e.Row, e.Column
		ev.Row, ev.Column = &row, &col
	}
	return ev
}

// Log records an event. Timestamp and ID are filled in when empty, and the
// sequence number is always assigned here.
func (l *Logger) Log(event Event) error {
	if !l.config.Enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if !l.config.IncludeQueries {
		event.Query = ""
	}
	l.sequence++
	event.Seq = l.sequence

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	if l.config.SyncWrites && l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("syncing audit log: %w", err)
		}
	}

	if l.alertCallback != nil {
		for _, alertType := range l.config.AlertOnEvents {
			if event.Type == alertType {
				l.alertCallback(event)
				break
			}
		}
	}

	return nil
}

// Close closes the audit logger. Closing twice is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Query selects journal events.
type Query struct {
	StartTime time.Time
	EndTime   time.Time
	Types     []driver.EventType
	Path      string
	Success   *bool
	Limit     int
	Offset    int
}

// QueryResult holds audit query results.
type QueryResult struct {
	Events     []Event
	TotalCount int
	HasMore    bool
}

// maxLineSize bounds one journal line; events carry full query text.
const maxLineSize = 16 << 20

// Reader reads a journal file.
type Reader struct {
	path string
}

// NewReader creates an audit log reader.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Query scans the journal and returns matching events in file order.
// Malformed lines are skipped. A missing file yields no events.
func (r *Reader) Query(q Query) (*QueryResult, error) {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &QueryResult{Events: []Event{}}, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer file.Close()

	events := []Event{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		if !q.StartTime.IsZero() && event.Timestamp.Before(q.StartTime) {
			continue
		}
		if !q.EndTime.IsZero() && event.Timestamp.After(q.EndTime) {
			continue
		}
		if len(q.Types) > 0 && !containsEventType(q.Types, event.Type) {
			continue
		}
		if q.Path != "" && event.Path != q.Path {
			continue
		}
		if q.Success != nil && event.Success() != *q.Success {
			continue
		}

		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	total := len(events)
	if q.Offset > 0 {
		if q.Offset >= len(events) {
			events = []Event{}
		} else {
			events = events[q.Offset:]
		}
	}
	if q.Limit > 0 && len(events) > q.Limit {
		events = events[:q.Limit]
	}

	return &QueryResult{
		Events:     events,
		TotalCount: total,
		HasMore:    q.Offset+len(events) < total,
	}, nil
}

// Failures returns failed events between start and end.
func (r *Reader) Failures(start, end time.Time) (*QueryResult, error) {
	failed := false
	return r.Query(Query{StartTime: start, EndTime: end, Success: &failed})
}

func containsEventType(types []driver.EventType, t driver.EventType) bool {
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}
