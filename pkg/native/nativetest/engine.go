// Package nativetest provides a scriptable native engine for tests.
//
// The engine keeps counters for every handle and cursor it hands out so tests
// can assert that the driver releases each native resource exactly once.
//
// Usage:
//
//	engine := nativetest.NewEngine()
//	engine.AddDatabase("/data/graph.mx")
//	engine.On("MATCH (n) RETURN n", nativetest.Rows(
//		[]string{"n"},
//		[]native.Cell{native.NodeCell(1, native.Str("Person"), native.Str(`{"name":"a"}`))},
//	))
//	engine.On("BROKEN", nativetest.Fail("syntax error"))
//
//	// ... drive pkg/driver or pkg/session ...
//
//	stats := engine.Stats()
//	assert.Equal(t, stats.CursorsOpened, stats.CursorsClosed)
package nativetest

import (
	"sync"

	"github.com/nexepic/metrix-studio/pkg/native"
)

// Response scripts what Execute returns for one query.
type Response struct {
	// System makes Execute return a nil cursor and sets the last error.
	System bool
	// Failed makes Execute return a cursor whose success flag is false.
	Failed bool
	// Message is the error text for System or Failed; nil means a null pointer.
	Message *string

	Columns []*string
	Rows    [][]native.Cell
}

// Rows scripts a successful result.
func Rows(columns []string, rows ...[]native.Cell) Response {
	cols := make([]*string, len(columns))
	for i := range columns {
		cols[i] = native.Str(columns[i])
	}
	return Response{Columns: cols, Rows: rows}
}

// Fail scripts a logic-level failure with the given message.
func Fail(msg string) Response {
	return Response{Failed: true, Message: native.Str(msg)}
}

// SystemFail scripts a null cursor with the given last error.
func SystemFail(msg string) Response {
	return Response{System: true, Message: native.Str(msg)}
}

// Stats counts native resources handed out and released.
type Stats struct {
	DBsOpened     int
	DBsClosed     int
	CursorsOpened int
	CursorsClosed int
	// DoubleCloses counts Close calls on already-closed handles or cursors.
	DoubleCloses int
	// Executions counts Execute calls, including null-cursor results.
	Executions int
}

// Engine is a native.Engine driven by scripted responses.
type Engine struct {
	mu        sync.Mutex
	databases map[string]bool
	responses map[string]Response
	fallback  *Response
	openErr   map[string]*string
	lastErr   *string
	stats     Stats

	// BeforeExecute, when set, runs at the start of every Execute call.
	BeforeExecute func(query string)
}

// NewEngine returns an engine with no databases and no scripted queries.
func NewEngine() *Engine {
	return &Engine{
		databases: make(map[string]bool),
		responses: make(map[string]Response),
		openErr:   make(map[string]*string),
	}
}

// AddDatabase marks path as an existing database.
func (e *Engine) AddDatabase(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.databases[path] = true
}

// Exists reports whether a database exists at path.
func (e *Engine) Exists(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.databases[path]
}

// FailOpen makes every open of path fail with msg as last error; a nil msg
// leaves the last error null.
func (e *Engine) FailOpen(path string, msg *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr[path] = msg
}

// On scripts the response for query.
func (e *Engine) On(query string, resp Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[query] = resp
}

// Otherwise scripts the response for unscripted queries. Without it,
// unscripted queries fail with "unknown query".
func (e *Engine) Otherwise(resp Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = &resp
}

// SetLastError overwrites the engine's last error; nil makes it null.
func (e *Engine) SetLastError(msg *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = msg
}

// Stats returns a snapshot of the resource counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Open creates the database if needed and returns a handle.
func (e *Engine) Open(path string) native.DB {
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg, fail := e.openErr[path]; fail {
		e.lastErr = msg
		return nil
	}
	e.databases[path] = true
	return e.newDBLocked(path)
}

// OpenIfExists returns a handle only for databases that already exist.
func (e *Engine) OpenIfExists(path string) native.DB {
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg, fail := e.openErr[path]; fail {
		e.lastErr = msg
		return nil
	}
	if !e.databases[path] {
		e.lastErr = nil
		return nil
	}
	return e.newDBLocked(path)
}

// LastError returns the scripted last error.
func (e *Engine) LastError() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		return "", false
	}
	return *e.lastErr, true
}

func (e *Engine) newDBLocked(path string) *DB {
	e.stats.DBsOpened++
	return &DB{engine: e, Path: path}
}

// DB is a handle returned by Engine.
type DB struct {
	engine *Engine
	Path   string
	closed bool
}

// Execute returns the scripted response for query.
func (d *DB) Execute(query string) native.Cursor {
	e := d.engine
	if e.BeforeExecute != nil {
		e.BeforeExecute(query)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Executions++

	resp, ok := e.responses[query]
	if !ok {
		if e.fallback != nil {
			resp = *e.fallback
		} else {
			resp = Fail("unknown query: " + query)
		}
	}

	if resp.System {
		e.lastErr = resp.Message
		return nil
	}

	e.stats.CursorsOpened++
	cursor := &native.BufferedCursor{
		Columns: resp.Columns,
		Rows:    resp.Rows,
		Failed:  resp.Failed,
		Err:     resp.Message,
		OnClose: func() {
			e.mu.Lock()
			e.stats.CursorsClosed++
			e.mu.Unlock()
		},
	}
	return &trackedCursor{BufferedCursor: cursor, engine: e}
}

// Close releases the handle.
func (d *DB) Close() {
	e := d.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if d.closed {
		e.stats.DoubleCloses++
		return
	}
	d.closed = true
	e.stats.DBsClosed++
}

// trackedCursor counts double closes on top of BufferedCursor.
type trackedCursor struct {
	*native.BufferedCursor
	engine *Engine
}

func (c *trackedCursor) Close() {
	if c.Closed() {
		c.engine.mu.Lock()
		c.engine.stats.DoubleCloses++
		c.engine.mu.Unlock()
		return
	}
	c.BufferedCursor.Close()
}
