// Package driver is the boundary between Go callers and a native graph-query
// engine reached through the pkg/native handle contract.
//
// It owns three things the engine does not: turning native error pointers
// into text (TranslateNativeError), tying a database handle's lifetime to a
// Go value (Conn), and materializing a native cursor into plain Go values
// (QueryResult).
//
// Example:
//
//	engine, _ := native.Lookup("metrix")
//	conn, err := driver.Open(engine, "/data/social.mx")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	res, err := conn.Execute("MATCH (n:Person) RETURN n.name, n")
//	if errors.Is(err, driver.ErrExecutionFailure) {
//		fmt.Println("query error:", err)
//	}
//
// Conn is not safe for concurrent use. Shared access goes through
// pkg/session, which serializes callers around a single Conn.
package driver

import (
	"strings"
	"sync"

	"github.com/nexepic/metrix-studio/pkg/native"
)

// Option configures a Conn.
type Option func(*Conn)

// WithObserver routes driver events to o.
func WithObserver(o Observer) Option {
	return func(c *Conn) {
		if o != nil {
			c.observer = o
		}
	}
}

// Conn owns exactly one native database handle. The handle is released
// exactly once, by Close.
type Conn struct {
	engine   native.Engine
	db       native.DB
	path     string
	observer Observer

	closeOnce sync.Once
}

// Open opens or creates the database at path.
//
// Returns ErrInvalidInput if path contains a NUL byte (the engine is not
// called) and ErrOpenFailure carrying the translated native error if the
// engine returns no handle.
func Open(engine native.Engine, path string, opts ...Option) (*Conn, error) {
	return open(engine, path, false, opts)
}

// OpenIfExists opens an existing database at path and never creates one.
// Failure semantics match Open.
func OpenIfExists(engine native.Engine, path string, opts ...Option) (*Conn, error) {
	return open(engine, path, true, opts)
}

func open(engine native.Engine, path string, mustExist bool, opts []Option) (*Conn, error) {
	c := &Conn{engine: engine, path: path, observer: nopObserver{}}
	for _, opt := range opts {
		opt(c)
	}

	if hasNUL(path) {
		emit(c.observer, Event{Type: EventOpenFailed, Path: path, Message: MsgInvalidPath})
		return nil, newError(ErrInvalidInput, MsgInvalidPath)
	}

	var db native.DB
	if mustExist {
		db = engine.OpenIfExists(path)
	} else {
		db = engine.Open(path)
	}
	if db == nil {
		msg := LastNativeError(engine)
		emit(c.observer, Event{Type: EventOpenFailed, Path: path, Message: msg})
		return nil, newError(ErrOpenFailure, msg)
	}

	c.db = db
	emit(c.observer, Event{Type: EventOpened, Path: path})
	return c, nil
}

// Path returns the path the connection was opened with.
func (c *Conn) Path() string { return c.path }

// Closed reports whether Close has run.
func (c *Conn) Closed() bool { return c.db == nil }

// Close releases the native handle. Calling it again is a no-op.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if c.db == nil {
			return
		}
		c.db.Close()
		c.db = nil
		emit(c.observer, Event{Type: EventClosed, Path: c.path})
	})
	return nil
}

// CheckPath reports ErrInvalidInput if path cannot be handed to the engine.
func CheckPath(path string) error {
	if hasNUL(path) {
		return newError(ErrInvalidInput, MsgInvalidPath)
	}
	return nil
}

func hasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}
