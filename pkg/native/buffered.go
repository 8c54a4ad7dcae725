package native

// Cell is one materialized result cell of a BufferedCursor.
//
// Only the field matching Type is read. A nil Text on a TypeString cell is a
// null string pointer; a nil Node or Edge on a node/edge cell makes extraction
// fail; a nil Props is a null properties pointer.
type Cell struct {
	Type   ValueType
	Text   *string
	Int    int64
	Double float64
	Bool   bool
	Node   *NodeInfo
	Edge   *EdgeInfo
	Props  *string
}

// BufferedCursor is a Cursor over rows already held in memory.
//
// Pure-Go backends drain their driver's result into a BufferedCursor so the
// decoder sees the same accessor-per-cell surface a C engine offers.
type BufferedCursor struct {
	// Columns holds the column names; a nil entry is a null name.
	Columns []*string
	Rows    [][]Cell

	// Failed marks a logic-level failure; Err is its (nullable) message.
	Failed bool
	Err    *string

	// OnClose runs once when the cursor is closed.
	OnClose func()

	pos    int // rows advanced so far; the current row is pos-1
	closed bool
}

// NewBufferedCursor returns a successful cursor over rows.
func NewBufferedCursor(columns []string, rows [][]Cell) *BufferedCursor {
	cols := make([]*string, len(columns))
	for i := range columns {
		cols[i] = Str(columns[i])
	}
	return &BufferedCursor{Columns: cols, Rows: rows}
}

// NewFailedCursor returns a cursor whose success flag is false.
func NewFailedCursor(msg *string) *BufferedCursor {
	return &BufferedCursor{Failed: true, Err: msg}
}

func (c *BufferedCursor) IsSuccess() bool { return !c.Failed }

func (c *BufferedCursor) Error() (string, bool) {
	if c.Err == nil {
		return "", false
	}
	return *c.Err, true
}

func (c *BufferedCursor) ColumnCount() int { return len(c.Columns) }

func (c *BufferedCursor) ColumnName(i int) (string, bool) {
	if i < 0 || i >= len(c.Columns) || c.Columns[i] == nil {
		return "", false
	}
	return *c.Columns[i], true
}

func (c *BufferedCursor) Next() bool {
	if c.closed || c.Failed {
		return false
	}
	if c.pos >= len(c.Rows) {
		return false
	}
	c.pos++
	return true
}

func (c *BufferedCursor) cell(i int) Cell {
	if c.pos == 0 || c.pos > len(c.Rows) {
		return Cell{}
	}
	r := c.Rows[c.pos-1]
	if i < 0 || i >= len(r) {
		return Cell{}
	}
	return r[i]
}

func (c *BufferedCursor) Type(i int) ValueType { return c.cell(i).Type }

func (c *BufferedCursor) String(i int) (string, bool) {
	cell := c.cell(i)
	if cell.Text == nil {
		return "", false
	}
	return *cell.Text, true
}

func (c *BufferedCursor) Int(i int) int64 { return c.cell(i).Int }

func (c *BufferedCursor) Double(i int) float64 { return c.cell(i).Double }

func (c *BufferedCursor) Bool(i int) bool { return c.cell(i).Bool }

func (c *BufferedCursor) Node(i int) (NodeInfo, bool) {
	cell := c.cell(i)
	if cell.Node == nil {
		return NodeInfo{}, false
	}
	return *cell.Node, true
}

func (c *BufferedCursor) Edge(i int) (EdgeInfo, bool) {
	cell := c.cell(i)
	if cell.Edge == nil {
		return EdgeInfo{}, false
	}
	return *cell.Edge, true
}

func (c *BufferedCursor) PropsJSON(i int) (string, bool) {
	cell := c.cell(i)
	if cell.Props == nil {
		return "", false
	}
	return *cell.Props, true
}

// Close marks the cursor closed and runs OnClose the first time.
func (c *BufferedCursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.OnClose != nil {
		c.OnClose()
	}
}

// Closed reports whether Close has been called.
func (c *BufferedCursor) Closed() bool { return c.closed }

// Cell constructors for backends and tests.

// NullCell returns a Null cell.
func NullCell() Cell { return Cell{Type: TypeNull} }

// BoolCell returns a Bool cell.
func BoolCell(v bool) Cell { return Cell{Type: TypeBool, Bool: v} }

// IntCell returns an Int cell.
func IntCell(v int64) Cell { return Cell{Type: TypeInt, Int: v} }

// DoubleCell returns a Double cell.
func DoubleCell(v float64) Cell { return Cell{Type: TypeDouble, Double: v} }

// StringCell returns a String cell.
func StringCell(v string) Cell { return Cell{Type: TypeString, Text: Str(v)} }

// NodeCell returns a Node cell. props may be nil.
func NodeCell(id int64, label *string, props *string) Cell {
	return Cell{Type: TypeNode, Node: &NodeInfo{ID: id, Label: label}, Props: props}
}

// EdgeCell returns an Edge cell. props may be nil.
func EdgeCell(id, source, target int64, label *string, props *string) Cell {
	return Cell{
		Type:  TypeEdge,
		Edge:  &EdgeInfo{ID: id, SourceID: source, TargetID: target, Label: label},
		Props: props,
	}
}
