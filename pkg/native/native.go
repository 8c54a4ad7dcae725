// Package native defines the contract Metrix Studio uses to talk to a graph
// query engine through an opaque handle API.
//
// The contract mirrors a C-style engine surface: a database handle that may
// come back null, a per-query cursor that may come back null, accessors that
// may return null strings, and a process-wide "last error" slot. Go renders
// the nulls explicitly:
//   - A nil DB or Cursor interface value is a null handle.
//   - Accessors returning (string, bool) report ok=false for a null pointer.
//   - NodeInfo.Label and EdgeInfo.Label are nil when the engine gave no label.
//
// Implementations live in sub-packages:
//   - cmetrix: cgo binding to the Metrix C API (build with -tags metrix)
//   - kuzudb: embedded Kùzu engine (build with -tags kuzu)
//   - bolt: any Bolt server through the Neo4j Go driver
//   - nativetest: scriptable engine for tests
//
// Engines register themselves by name, database/sql style:
//
//	import _ "github.com/nexepic/metrix-studio/pkg/native/bolt"
//
//	engine, err := native.Lookup("bolt")
//	if err != nil {
//		return err
//	}
//	db := engine.Open("bolt://localhost:7687")
//	if db == nil {
//		msg, _ := engine.LastError()
//		return errors.New(msg)
//	}
//	defer db.Close()
//
// Nothing in this package is safe for concurrent use unless stated; callers
// serialize access (see pkg/session).
package native

import (
	"fmt"
	"sort"
	"sync"
)

// ValueType is the native type tag of a single result cell.
type ValueType int

// Native type tags. The numeric values follow the C enum order.
const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt
	TypeDouble
	TypeString
	TypeNode
	TypeEdge
)

// String returns the tag name.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeBool:
		return "BOOL"
	case TypeInt:
		return "INT"
	case TypeDouble:
		return "DOUBLE"
	case TypeString:
		return "STRING"
	case TypeNode:
		return "NODE"
	case TypeEdge:
		return "EDGE"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// NodeInfo is what the engine reports for a node cell.
type NodeInfo struct {
	ID    int64
	Label *string
}

// EdgeInfo is what the engine reports for an edge cell.
type EdgeInfo struct {
	ID       int64
	SourceID int64
	TargetID int64
	Label    *string
}

// Engine opens database handles and exposes the engine's last error text.
type Engine interface {
	// Open creates or opens the database at path. Returns nil on failure.
	Open(path string) DB
	// OpenIfExists opens an existing database only. Returns nil on failure,
	// including when no database exists at path.
	OpenIfExists(path string) DB
	// LastError returns the engine's most recent error text; ok is false
	// when the engine has none (a null pointer).
	LastError() (msg string, ok bool)
}

// DB is an open database handle.
type DB interface {
	// Execute runs query and returns a cursor, or nil on a system-level failure.
	Execute(query string) Cursor
	// Close releases the handle. Callers invoke it exactly once.
	Close()
}

// Cursor is the result stream of one query. Column accessors are valid for
// the current row only, after Next has returned true.
type Cursor interface {
	IsSuccess() bool
	Error() (string, bool)

	ColumnCount() int
	ColumnName(i int) (string, bool)

	Next() bool
	Type(i int) ValueType

	String(i int) (string, bool)
	Int(i int) int64
	Double(i int) float64
	Bool(i int) bool
	Node(i int) (NodeInfo, bool)
	Edge(i int) (EdgeInfo, bool)
	PropsJSON(i int) (string, bool)

	// Close releases the cursor. Callers invoke it exactly once.
	Close()
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Engine)
)

// Register makes an engine available by name. It panics if name is empty,
// engine is nil, or name is already registered.
func Register(name string, engine Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" || engine == nil {
		panic("native: Register called with empty name or nil engine")
	}
	if _, dup := registry[name]; dup {
		panic("native: Register called twice for engine " + name)
	}
	registry[name] = engine
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	engine, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (registered: %v)", name, engines())
	}
	return engine, nil
}

// Engines returns the sorted names of all registered engines.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return engines()
}

func engines() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Str returns a pointer to s. Handy for building labels and nullable cells.
func Str(s string) *string { return &s }
