// Package session holds the process-wide database connection slot.
//
// A Guard owns at most one *driver.Conn and serializes every operation on it
// behind a single mutex: open, open-if-exists, query and close each hold the
// lock for their full duration, native call and decoding included. No two
// queries ever run concurrently against the same connection.
//
// State machine:
//
//	Closed --Open/OpenIfExists ok--> Open
//	Open   --Open/OpenIfExists ok--> Open    (old handle released after the swap)
//	Open   --Open/OpenIfExists fail> Open    (old handle kept)
//	Open   --Close-----------------> Closed
//	Open   --Query-----------------> Open
//	Closed --Query-----------------> error ErrNoConnection
//	Closed --Close-----------------> Closed  (no-op)
//
// If anything panics while the lock is held, the guard is poisoned: the panic
// keeps propagating, and every later call returns driver.ErrLockFailure.
package session

import (
	"sync"

	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/native"
)

// State is the guard's connection state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StatePoisoned
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StatePoisoned:
		return "poisoned"
	}
	return "unknown"
}

type openFunc func(native.Engine, string, ...driver.Option) (*driver.Conn, error)

// Guard is the shared connection slot. The zero value is not usable; use New.
type Guard struct {
	engine native.Engine
	opts   []driver.Option

	mu       sync.Mutex
	conn     *driver.Conn
	poisoned bool
}

// New returns a closed guard over engine. opts are applied to every
// connection the guard opens.
func New(engine native.Engine, opts ...driver.Option) *Guard {
	return &Guard{engine: engine, opts: opts}
}

// Open creates or opens the database at path, replacing any open connection.
func (g *Guard) Open(path string) error {
	return g.open(path, driver.Open)
}

// OpenIfExists opens an existing database at path, replacing any open
// connection. It never creates a database.
func (g *Guard) OpenIfExists(path string) error {
	return g.open(path, driver.OpenIfExists)
}

// open asks the engine for the new handle while the old one stays in the
// slot; the old handle is released only once the new one replaces it, so a
// failed open leaves the current connection usable.
//
// Reopening the path that is already open releases the old handle first,
// since engines that lock their files cannot hand out a second handle. A
// failure there leaves the guard closed.
func (g *Guard) open(path string, fn openFunc) error {
	return g.locked(func() error {
		if err := driver.CheckPath(path); err != nil {
			return err
		}
		if g.conn != nil && g.conn.Path() == path {
			g.conn.Close()
			g.conn = nil
		}
		conn, err := fn(g.engine, path, g.opts...)
		if err != nil {
			return err
		}
		if g.conn != nil {
			g.conn.Close()
		}
		g.conn = conn
		return nil
	})
}

// Query runs query on the open connection.
func (g *Guard) Query(query string) (*driver.QueryResult, error) {
	result, _, err := g.QueryAt(query)
	return result, err
}

// QueryAt is Query that also returns the path of the connection the query
// ran against, read under the same lock. The path is "" when no connection
// was open.
func (g *Guard) QueryAt(query string) (*driver.QueryResult, string, error) {
	var (
		result *driver.QueryResult
		path   string
	)
	err := g.locked(func() error {
		if g.conn == nil {
			return driver.NoConnection()
		}
		path = g.conn.Path()
		var err error
		result, err = g.conn.Execute(query)
		return err
	})
	if err != nil {
		return nil, path, err
	}
	return result, path, nil
}

// Close releases the open connection. Closing a closed guard is a no-op.
func (g *Guard) Close() error {
	return g.locked(func() error {
		if g.conn == nil {
			return nil
		}
		err := g.conn.Close()
		g.conn = nil
		return err
	})
}

// State reports the current connection state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.poisoned:
		return StatePoisoned
	case g.conn != nil:
		return StateOpen
	}
	return StateClosed
}

// Snapshot returns State and Path read under one lock.
func (g *Guard) Snapshot() (State, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.poisoned:
		return StatePoisoned, ""
	case g.conn != nil:
		return StateOpen, g.conn.Path()
	}
	return StateClosed, ""
}

// Path returns the open connection's path, or "" when closed.
func (g *Guard) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil || g.poisoned {
		return ""
	}
	return g.conn.Path()
}

// locked runs fn under the lock. A panic in fn poisons the guard on its way
// out; the deferred poison mark runs before the unlock.
func (g *Guard) locked(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.poisoned {
		return driver.LockFailure()
	}

	completed := false
	defer func() {
		if !completed {
			g.poisoned = true
		}
	}()

	err := fn()
	completed = true
	return err
}
