// Package kuzudb adapts the embedded Kùzu graph engine to the native engine
// contract and registers it as "kuzu".
//
// Kùzu links a C++ library through cgo, so the real binding is only compiled
// with the kuzu build tag:
//
//	go build -tags kuzu ./cmd/metrix-studio
//
// Without the tag a stub engine registers under the same name and every open
// fails with an explanatory last error.
//
// Results are drained from Kùzu's FlatTuple stream into a
// native.BufferedCursor, and the Kùzu result is closed before Execute
// returns. Node and relationship ids are Kùzu internal ids {table, offset},
// packed into one int64 by PackID.
package kuzudb

// Options tunes the embedded engine. Zero values keep Kùzu's defaults.
type Options struct {
	// BufferPoolSize in bytes.
	BufferPoolSize uint64
	// MaxNumThreads for query execution.
	MaxNumThreads uint64
	// ReadOnly opens every database read-only.
	ReadOnly bool
}

// DefaultOptions returns options that keep Kùzu's own defaults.
func DefaultOptions() Options {
	return Options{}
}

const offsetBits = 40

// PackID folds a Kùzu internal id into one int64: the table id in the high
// bits and the offset in the low 40 bits.
func PackID(table, offset uint64) int64 {
	return int64(table<<offsetBits | offset&(1<<offsetBits-1))
}

// UnpackID reverses PackID.
func UnpackID(id int64) (table, offset uint64) {
	u := uint64(id)
	return u >> offsetBits, u & (1<<offsetBits - 1)
}

func labelOf(label string) *string {
	if label == "" {
		return nil
	}
	return &label
}
