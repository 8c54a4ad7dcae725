package bolt

import (
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/nexepic/metrix-studio/pkg/convert"
	"github.com/nexepic/metrix-studio/pkg/native"
)

// cellOf classifies one record value. Nodes use their numeric id and first
// label; relationships use their type as label. Temporal and spatial values
// render through their String form.
func cellOf(v any) native.Cell {
	switch val := v.(type) {
	case dbtype.Node:
		return nodeCell(val)
	case *dbtype.Node:
		if val == nil {
			return native.NullCell()
		}
		return nodeCell(*val)
	case dbtype.Relationship:
		return edgeCell(val)
	case *dbtype.Relationship:
		if val == nil {
			return native.NullCell()
		}
		return edgeCell(*val)
	case dbtype.Path:
		return native.StringCell(pathText(val))
	case fmt.Stringer:
		return native.StringCell(val.String())
	}
	return convert.ScalarCell(v)
}

func nodeCell(n dbtype.Node) native.Cell {
	var label *string
	if len(n.Labels) > 0 {
		label = native.Str(n.Labels[0])
	}
	return native.NodeCell(n.Id, label, convert.PropsJSON(n.Props))
}

func edgeCell(r dbtype.Relationship) native.Cell {
	var label *string
	if r.Type != "" {
		label = native.Str(r.Type)
	}
	return native.EdgeCell(r.Id, r.StartId, r.EndId, label, convert.PropsJSON(r.Props))
}

// pathText renders a path as alternating node and relationship ids, e.g.
// "(1)-[7]->(2)".
func pathText(p dbtype.Path) string {
	var b strings.Builder
	for i, n := range p.Nodes {
		fmt.Fprintf(&b, "(%d)", n.Id)
		if i < len(p.Relationships) {
			fmt.Fprintf(&b, "-[%d]->", p.Relationships[i].Id)
		}
	}
	return b.String()
}
