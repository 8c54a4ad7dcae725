package driver

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is one decoded result cell. The set of variants is closed:
// Null, Bool, Int, Double, String, NodeRef and EdgeRef.
//
// JSON forms:
//
//	Null     -> null
//	Bool     -> true / false
//	Int      -> 42
//	Double   -> 3.5 (NaN and ±Inf become null)
//	String   -> "text"
//	NodeRef  -> {"_type":"node","id":7}
//	EdgeRef  -> {"_type":"edge","id":9}
type Value interface {
	json.Marshaler
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean cell.
type Bool bool

// Int is a 64-bit integer cell.
type Int int64

// Double is a floating point cell.
type Double float64

// String is a text cell.
type String string

// NodeRef points at an entry of QueryResult.Nodes by id.
type NodeRef struct{ ID int64 }

// EdgeRef points at an entry of QueryResult.Edges by id.
type EdgeRef struct{ ID int64 }

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Int) isValue()     {}
func (Double) isValue()  {}
func (String) isValue()  {}
func (NodeRef) isValue() {}
func (EdgeRef) isValue() {}

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (b Bool) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

func (i Int) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(i), 10), nil
}

func (d Double) MarshalJSON() ([]byte, error) {
	f := float64(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

type refJSON struct {
	Type string `json:"_type"`
	ID   int64  `json:"id"`
}

func (r NodeRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(refJSON{Type: "node", ID: r.ID})
}

func (r EdgeRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(refJSON{Type: "edge", ID: r.ID})
}

// Interface returns v as a plain Go value: nil, bool, int64, float64,
// string, or map[string]any for references.
func Interface(v Value) any {
	switch x := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Double:
		return float64(x)
	case String:
		return string(x)
	case NodeRef:
		return map[string]any{"_type": "node", "id": x.ID}
	case EdgeRef:
		return map[string]any{"_type": "edge", "id": x.ID}
	}
	return nil
}
