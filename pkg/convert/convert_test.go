package convert

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexepic/metrix-studio/pkg/native"
)

func TestInt64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
		ok       bool
	}{
		{"int64", int64(99), 99, true},
		{"int", 42, 42, true},
		{"int32", int32(-50), -50, true},
		{"int16", int16(7), 7, true},
		{"int8", int8(-8), -8, true},
		{"uint8", uint8(255), 255, true},
		{"uint16", uint16(65535), 65535, true},
		{"uint32", uint32(25), 25, true},
		{"uint", uint(10), 10, true},
		{"uint64", uint64(100), 100, true},
		{"uint64 max int", uint64(math.MaxInt64), math.MaxInt64, true},

		// Rejected
		{"uint64 overflow", uint64(math.MaxUint64), 0, false},
		{"float64", 3.0, 0, false},
		{"string", "42", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int64(tt.input)
			assert.Equal(t, tt.ok, ok, "ok mismatch")
			assert.Equal(t, tt.expected, got, "value mismatch")
		})
	}
}

func TestFloat64(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected float64
		ok       bool
	}{
		{"float64", 3.14, 3.14, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 42, 0, false},
		{"string", "3.14", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Float64(tt.input)
			assert.Equal(t, tt.ok, ok, "ok mismatch")
			assert.InDelta(t, tt.expected, got, 0.0001, "value mismatch")
		})
	}
}

func TestScalarCell(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    any
		expected native.Cell
	}{
		{"nil", nil, native.NullCell()},
		{"bool", false, native.BoolCell(false)},
		{"int16", int16(3), native.IntCell(3)},
		{"uint64 overflow", uint64(math.MaxUint64), native.StringCell("18446744073709551615")},
		{"float32", float32(0.5), native.DoubleCell(0.5)},
		{"string", "abc", native.StringCell("abc")},
		{"time", ts, native.StringCell("2024-03-01T12:30:00Z")},
		{"duration", 90 * time.Second, native.StringCell("1m30s")},
		{"bytes", []byte("raw"), native.StringCell("raw")},
		{"list", []any{int64(1), "two"}, native.StringCell(`[1,"two"]`)},
		{"map", map[string]any{"k": true}, native.StringCell(`{"k":true}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ScalarCell(tt.input))
		})
	}
}

func TestPropsJSON(t *testing.T) {
	assert.Nil(t, PropsJSON(nil))

	got := PropsJSON(map[string]any{
		"name":  "alice",
		"score": math.NaN(),
		"seen":  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"tags":  []any{"a", math.Inf(1)},
	})
	require.NotNil(t, got)
	assert.JSONEq(t, `{"name":"alice","score":null,"seen":"2024-01-02T03:04:05Z","tags":["a",null]}`, *got)

	// Channels cannot be marshaled.
	assert.Nil(t, PropsJSON(map[string]any{"ch": make(chan int)}))
}

func TestText(t *testing.T) {
	assert.Equal(t, `{"a":1}`, Text(map[string]any{"a": 1}))
	ch := make(chan int)
	assert.NotEmpty(t, Text(ch))
}

func BenchmarkScalarCell_Int(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ScalarCell(int32(i))
	}
}
