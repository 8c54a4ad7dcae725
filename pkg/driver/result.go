package driver

import (
	"encoding/json"
	"time"
)

// GraphNode is a node extracted from a result cell.
type GraphNode struct {
	ID         int64          `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// GraphEdge is a relationship extracted from a result cell.
type GraphEdge struct {
	ID         int64          `json:"id"`
	Source     int64          `json:"source"`
	Target     int64          `json:"target"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// QueryResult is the fully materialized outcome of one query.
//
// Every row has len(Columns) values. Nodes and Edges collect every node and
// edge cell in row-major order without deduplication: the same entity
// returned in two rows appears twice.
type QueryResult struct {
	Columns  []string
	Rows     [][]Value
	Nodes    []GraphNode
	Edges    []GraphEdge
	Duration time.Duration
}

func newQueryResult(columns int) *QueryResult {
	return &QueryResult{
		Columns: make([]string, 0, columns),
		Rows:    make([][]Value, 0),
		Nodes:   make([]GraphNode, 0),
		Edges:   make([]GraphEdge, 0),
	}
}

// DurationMillis returns Duration in whole milliseconds.
func (r *QueryResult) DurationMillis() int64 {
	return r.Duration.Milliseconds()
}

type queryResultJSON struct {
	Columns    []string    `json:"columns"`
	Rows       [][]Value   `json:"rows"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
	DurationMS int64       `json:"duration_ms"`
}

// MarshalJSON renders the caller-facing shape
// {columns, rows, nodes, edges, duration_ms}. Nil slices render as [].
func (r QueryResult) MarshalJSON() ([]byte, error) {
	out := queryResultJSON{
		Columns:    r.Columns,
		Rows:       r.Rows,
		Nodes:      r.Nodes,
		Edges:      r.Edges,
		DurationMS: r.Duration.Milliseconds(),
	}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	if out.Rows == nil {
		out.Rows = [][]Value{}
	}
	if out.Nodes == nil {
		out.Nodes = []GraphNode{}
	}
	if out.Edges == nil {
		out.Edges = []GraphEdge{}
	}
	return json.Marshal(out)
}
