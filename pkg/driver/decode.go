package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nexepic/metrix-studio/pkg/native"
)

const (
	defaultNodeLabel = "Node"
	defaultEdgeLabel = "Edge"
)

type decoder struct {
	cursor   native.Cursor
	observer Observer
	path     string
	query    string
	result   *QueryResult
}

// decode drains the cursor into a QueryResult. The cursor is closed when
// decode returns, including when a cell cannot be decoded.
func (d *decoder) decode() (*QueryResult, error) {
	defer d.cursor.Close()

	n := d.cursor.ColumnCount()
	if n < 0 {
		n = 0
	}
	d.result = newQueryResult(n)
	for i := 0; i < n; i++ {
		name, ok := d.cursor.ColumnName(i)
		if !ok {
			name = fmt.Sprintf("col_%d", i)
		}
		d.result.Columns = append(d.result.Columns, name)
	}

	for row := 0; d.cursor.Next(); row++ {
		values := make([]Value, n)
		for col := 0; col < n; col++ {
			v, err := d.cell(row, col)
			if err != nil {
				return nil, err
			}
			values[col] = v
		}
		d.result.Rows = append(d.result.Rows, values)
	}
	return d.result, nil
}

// cell decodes one cell. Every native.ValueType must have its own case; the
// default arm only catches tags the engine sends outside that range.
func (d *decoder) cell(row, col int) (Value, error) {
	//exhaustive:enforce
	switch t := d.cursor.Type(col); t {
	case native.TypeNull:
		return Null{}, nil
	case native.TypeBool:
		return Bool(d.cursor.Bool(col)), nil
	case native.TypeInt:
		return Int(d.cursor.Int(col)), nil
	case native.TypeDouble:
		return Double(d.cursor.Double(col)), nil
	case native.TypeString:
		s, _ := d.cursor.String(col)
		return String(s), nil
	case native.TypeNode:
		return d.node(row, col), nil
	case native.TypeEdge:
		return d.edge(row, col), nil
	default:
		return nil, newError(ErrSystemFailure,
			fmt.Sprintf("unsupported native value type %d at row %d, column %d", int(t), row, col))
	}
}

func (d *decoder) node(row, col int) Value {
	info, ok := d.cursor.Node(col)
	if !ok {
		emit(d.observer, Event{Type: EventNodeExtractFailed, Path: d.path, Query: d.query, Row: row, Column: col})
		return Null{}
	}
	d.result.Nodes = append(d.result.Nodes, GraphNode{
		ID:         info.ID,
		Label:      labelOr(info.Label, defaultNodeLabel),
		Properties: decodeProperties(d.cursor.PropsJSON(col)),
	})
	return NodeRef{ID: info.ID}
}

func (d *decoder) edge(row, col int) Value {
	info, ok := d.cursor.Edge(col)
	if !ok {
		emit(d.observer, Event{Type: EventEdgeExtractFailed, Path: d.path, Query: d.query, Row: row, Column: col})
		return Null{}
	}
	d.result.Edges = append(d.result.Edges, GraphEdge{
		ID:         info.ID,
		Source:     info.SourceID,
		Target:     info.TargetID,
		Label:      labelOr(info.Label, defaultEdgeLabel),
		Properties: decodeProperties(d.cursor.PropsJSON(col)),
	})
	return EdgeRef{ID: info.ID}
}

func labelOr(label *string, fallback string) string {
	if label == nil {
		return fallback
	}
	return *label
}

// decodeProperties parses a properties document. Anything that is not a
// single JSON object (null pointer, malformed text, arrays, scalars, JSON
// null) yields an empty map. Numbers are kept as json.Number so integer
// properties round-trip without float conversion.
func decodeProperties(text string, ok bool) map[string]any {
	if !ok {
		return map[string]any{}
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil || props == nil {
		return map[string]any{}
	}
	if _, err := dec.Token(); err != io.EOF {
		return map[string]any{}
	}
	return props
}
