// Package bolt adapts any Bolt-speaking graph server such as Neo4j or
// Memgraph to the native engine contract and registers it as "bolt".
//
// The "path" handed to Open is a Bolt URI such as bolt://localhost:7687 or
// neo4j+s://graph.example.com. Credentials and the target database come from
// Options. A client cannot create a server, so Open and OpenIfExists behave
// the same: both build a driver and verify connectivity.
//
// Query failures reported by the server (Neo4jError: syntax, constraint,
// unknown label) become failed cursors carrying the server's message.
// Transport failures yield no cursor and set the engine's last error.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/nexepic/metrix-studio/pkg/native"
)

func init() {
	native.Register("bolt", New(DefaultOptions()))
}

// Options configures Bolt connections.
type Options struct {
	Username string
	Password string
	// Database selects the target database; empty uses the server default.
	Database string
	// ConnectTimeout bounds driver creation and connectivity checks.
	ConnectTimeout time.Duration
	// MaxConnectionPoolSize caps pooled connections per database.
	MaxConnectionPoolSize int
}

// DefaultOptions returns options for an unauthenticated local server.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:        10 * time.Second,
		MaxConnectionPoolSize: 10,
	}
}

// Engine opens Bolt connections.
type Engine struct {
	opts Options

	mu      sync.Mutex
	lastErr *string
}

// New returns an engine using opts for every connection it opens.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

func (e *Engine) Open(uri string) native.DB {
	return e.connect(uri)
}

func (e *Engine) OpenIfExists(uri string) native.DB {
	return e.connect(uri)
}

func (e *Engine) LastError() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		return "", false
	}
	return *e.lastErr, true
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = &msg
}

func (e *Engine) auth() neo4j.AuthToken {
	if e.opts.Username == "" {
		return neo4j.NoAuth()
	}
	return neo4j.BasicAuth(e.opts.Username, e.opts.Password, "")
}

func (e *Engine) connect(uri string) native.DB {
	drv, err := neo4j.NewDriverWithContext(uri, e.auth(), func(c *neo4j.Config) {
		if e.opts.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = e.opts.MaxConnectionPoolSize
		}
		if e.opts.ConnectTimeout > 0 {
			c.SocketConnectTimeout = e.opts.ConnectTimeout
			c.ConnectionAcquisitionTimeout = e.opts.ConnectTimeout
		}
	})
	if err != nil {
		e.setLastError(err.Error())
		return nil
	}

	ctx := context.Background()
	if e.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ConnectTimeout)
		defer cancel()
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		drv.Close(context.Background())
		e.setLastError(fmt.Sprintf("cannot reach %s: %v", uri, err))
		return nil
	}
	return &db{engine: e, driver: drv}
}

type db struct {
	engine *Engine
	driver neo4j.DriverWithContext
}

func (d *db) Execute(query string) native.Cursor {
	ctx := context.Background()
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.engine.opts.Database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return d.failure(err)
	}
	keys, err := result.Keys()
	if err != nil {
		return d.failure(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return d.failure(err)
	}

	rows := make([][]native.Cell, 0, len(records))
	for _, rec := range records {
		row := make([]native.Cell, len(rec.Values))
		for i, v := range rec.Values {
			row[i] = cellOf(v)
		}
		rows = append(rows, row)
	}
	return native.NewBufferedCursor(keys, rows)
}

// failure splits server-side query errors from transport errors.
func (d *db) failure(err error) native.Cursor {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		msg := neoErr.Msg
		if msg == "" {
			msg = neoErr.Error()
		}
		return native.NewFailedCursor(&msg)
	}
	d.engine.setLastError(err.Error())
	return nil
}

func (d *db) Close() {
	if d.driver == nil {
		return
	}
	d.driver.Close(context.Background())
	d.driver = nil
}
