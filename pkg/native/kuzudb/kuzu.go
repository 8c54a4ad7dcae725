//go:build kuzu

package kuzudb

import (
	"fmt"
	"os"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/nexepic/metrix-studio/pkg/convert"
	"github.com/nexepic/metrix-studio/pkg/native"
)

// Available reports whether this binary was built with Kùzu.
const Available = true

func init() {
	native.Register("kuzu", New(DefaultOptions()))
}

// Engine opens Kùzu databases on disk.
type Engine struct {
	opts Options

	mu      sync.Mutex
	lastErr *string
}

// New returns an engine using opts for every database it opens.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

func (e *Engine) Open(path string) native.DB {
	return e.open(path)
}

// OpenIfExists refuses paths with nothing on disk; Kùzu itself would create
// a fresh database there.
func (e *Engine) OpenIfExists(path string) native.DB {
	if _, err := os.Stat(path); err != nil {
		e.setLastError(fmt.Sprintf("database does not exist: %s", path))
		return nil
	}
	return e.open(path)
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

func (e *Engine) open(path string) native.DB {
	cfg := kuzu.DefaultSystemConfig()
	if e.opts.BufferPoolSize > 0 {
		cfg.BufferPoolSize = e.opts.BufferPoolSize
	}
	if e.opts.MaxNumThreads > 0 {
		cfg.MaxNumThreads = e.opts.MaxNumThreads
	}
	cfg.ReadOnly = e.opts.ReadOnly

	database, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		e.setLastError(err.Error())
		return nil
	}
	conn, err := kuzu.OpenConnection(database)
	if err != nil {
		database.Close()
		e.setLastError(err.Error())
		return nil
	}
	return &db{engine: e, database: database, conn: conn}
}

type db struct {
	engine   *Engine
	database *kuzu.Database
	conn     *kuzu.Connection
}

// Execute runs query. Kùzu reports query errors through a result object
// that is itself non-nil; that case becomes a failed cursor. An error with
// no result at all is a system failure.
func (d *db) Execute(query string) native.Cursor {
	result, err := d.conn.Query(query)
	if err != nil {
		if result == nil {
			d.engine.setLastError(err.Error())
			return nil
		}
		result.Close()
		msg := err.Error()
		return native.NewFailedCursor(&msg)
	}
	defer result.Close()

	cursor, err := drain(result)
	if err != nil {
		d.engine.setLastError(err.Error())
		return nil
	}
	return cursor
}

func (d *db) Close() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	if d.database != nil {
		d.database.Close()
		d.database = nil
	}
}

func drain(result *kuzu.QueryResult) (*native.BufferedCursor, error) {
	columns := result.GetColumnNames()
	rows := make([][]native.Cell, 0)
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(rows), err)
		}
		values, err := tuple.GetAsSlice()
		tuple.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding row %d: %w", len(rows), err)
		}
		row := make([]native.Cell, len(values))
		for i, v := range values {
			row[i] = cellOf(v)
		}
		rows = append(rows, row)
	}
	return native.NewBufferedCursor(columns, rows), nil
}

func cellOf(v any) native.Cell {
	switch val := v.(type) {
	case kuzu.Node:
		return nodeCell(val)
	case *kuzu.Node:
		if val == nil {
			return native.NullCell()
		}
		return nodeCell(*val)
	case kuzu.Relationship:
		return edgeCell(val)
	case *kuzu.Relationship:
		if val == nil {
			return native.NullCell()
		}
		return edgeCell(*val)
	case kuzu.InternalID:
		return native.IntCell(packInternal(val))
	}
	return convert.ScalarCell(v)
}

func nodeCell(n kuzu.Node) native.Cell {
	return native.NodeCell(packInternal(n.ID), labelOf(n.Label), convert.PropsJSON(n.Properties))
}

func edgeCell(r kuzu.Relationship) native.Cell {
	return native.EdgeCell(
		packInternal(r.ID),
		packInternal(r.SourceID),
		packInternal(r.DestinationID),
		labelOf(r.Label),
		convert.PropsJSON(r.Properties),
	)
}

func packInternal(id kuzu.InternalID) int64 {
	return PackID(id.TableID, id.Offset)
}
