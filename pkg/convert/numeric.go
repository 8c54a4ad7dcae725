// Package convert turns values produced by Go graph-database drivers into
// native result cells.
//
// Pure-Go backends (Kùzu, Bolt) hand back plain Go values: int8 through
// uint64, float32, time.Time, nested maps and slices. The decoder only knows
// seven cell kinds, so everything is folded into one of them here, in one
// place, with the same rules for every backend.
//
// Key Functions:
//   - Int64: exact integer kinds to int64
//   - Float64: float kinds to float64
//   - ScalarCell: any non-graph value to a native.Cell
//   - PropsJSON: a property map to JSON text for the props accessor
//
// Example:
//
//	cell := convert.ScalarCell(row[i])
//	switch cell.Type {
//	case native.TypeInt:
//		// cell.Int holds the value
//	}
//
// ELI12:
//
// Different databases speak slightly different "number languages": one says
// int32, another says uint16. This package is the interpreter that makes them
// all say the same few words so the rest of the app only has to learn those.
package convert

import (
	"math"
)

// Int64 converts any Go integer kind to int64.
// Returns (value, true) on success, (0, false) otherwise.
//
// Floats and strings are NOT accepted: a driver that hands back 3.0 meant a
// double, and the cell must say so. Unsigned values above math.MaxInt64 do
// not fit and report false.
//
// Example:
//
//	i, ok := Int64(int16(7))               // Returns (7, true)
//	i, ok := Int64(uint64(math.MaxUint64)) // Returns (0, false)
//	i, ok := Int64(3.0)                    // Returns (0, false)
func Int64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}

// Float64 converts float32 and float64 to float64.
// Returns (value, true) on success, (0, false) otherwise.
func Float64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}
	return 0, false
}
