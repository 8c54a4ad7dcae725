package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nexepic/metrix-studio/pkg/native"
)

// ScalarCell folds a driver value that is not a node or relationship into a
// cell:
//   - nil -> Null
//   - bool -> Bool
//   - integer kinds -> Int (unsigned overflow -> decimal String)
//   - float kinds -> Double
//   - string -> String
//   - time.Time -> RFC 3339 String; time.Duration -> String
//   - []byte -> String of the raw bytes
//   - anything else -> its JSON text as a String
func ScalarCell(v any) native.Cell {
	if v == nil {
		return native.NullCell()
	}
	if b, ok := v.(bool); ok {
		return native.BoolCell(b)
	}
	if i, ok := Int64(v); ok {
		return native.IntCell(i)
	}
	if f, ok := Float64(v); ok {
		return native.DoubleCell(f)
	}

	switch val := v.(type) {
	case string:
		return native.StringCell(val)
	case uint64:
		return native.StringCell(strconv.FormatUint(val, 10))
	case uint:
		return native.StringCell(strconv.FormatUint(uint64(val), 10))
	case time.Time:
		return native.StringCell(val.Format(time.RFC3339Nano))
	case time.Duration:
		return native.StringCell(val.String())
	case []byte:
		return native.StringCell(string(val))
	}
	return native.StringCell(Text(v))
}

// Text renders a composite value as JSON text, falling back to fmt
// formatting when it cannot be marshaled.
func Text(v any) string {
	data, err := json.Marshal(JSONSafe(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// PropsJSON marshals a property map for the props accessor. A nil map or a
// marshal failure yields nil, which the decoder reads as an empty mapping.
func PropsJSON(props map[string]any) *string {
	if props == nil {
		return nil
	}
	data, err := json.Marshal(JSONSafe(props))
	if err != nil {
		return nil
	}
	return native.Str(string(data))
}

// JSONSafe rewrites values encoding/json rejects or renders poorly: NaN and
// infinities become nil, times become RFC 3339 strings, durations become
// their String form. Maps and slices are walked recursively.
func JSONSafe(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = JSONSafe(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = JSONSafe(x)
		}
		return out
	}
	return v
}
