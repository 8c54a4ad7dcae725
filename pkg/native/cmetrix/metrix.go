//go:build cgo && metrix

// Package cmetrix binds the Metrix C API and registers it as the "metrix"
// native engine.
//
// The shared library and headers are expected under lib/metrix:
//
//	lib/metrix/include/metrix/metrix_c_api.h
//	lib/metrix/lib/libmetrix.{so,dylib}
//
// Build with:
//
//	CGO_ENABLED=1 go build -tags metrix ./cmd/metrix-studio
//
// Every C string is copied into Go memory before the next native call, so no
// Go value ever aliases engine-owned memory.
package cmetrix

/*
#cgo CFLAGS: -I${SRCDIR}/../../../lib/metrix/include
#cgo linux LDFLAGS: -L${SRCDIR}/../../../lib/metrix/lib -lmetrix -Wl,-rpath,${SRCDIR}/../../../lib/metrix/lib
#cgo darwin LDFLAGS: -L${SRCDIR}/../../../lib/metrix/lib -lmetrix -Wl,-rpath,${SRCDIR}/../../../lib/metrix/lib
#cgo windows LDFLAGS: -L${SRCDIR}/../../../lib/metrix/lib -lmetrix

#include <stdlib.h>
#include <stdbool.h>
#include <stdint.h>
#include "metrix/metrix_c_api.h"
*/
import "C"

import (
	"unsafe"

	"github.com/nexepic/metrix-studio/pkg/native"
)

// Available reports whether this binary was built with the C engine.
const Available = true

func init() {
	native.Register("metrix", New())
}

// Engine is the Metrix C engine. The C library keeps one process-wide last
// error, so Engine carries no state.
type Engine struct{}

// New returns the engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Open(path string) native.DB {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ptr := C.metrix_open(cPath)
	if ptr == nil {
		return nil
	}
	return &db{ptr: ptr}
}

func (e *Engine) OpenIfExists(path string) native.DB {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ptr := C.metrix_open_if_exists(cPath)
	if ptr == nil {
		return nil
	}
	return &db{ptr: ptr}
}

func (e *Engine) LastError() (string, bool) {
	return goString(C.metrix_get_last_error())
}

type db struct {
	ptr *C.MetrixDB_T
}

func (d *db) Execute(query string) native.Cursor {
	cQuery := C.CString(query)
	defer C.free(unsafe.Pointer(cQuery))

	res := C.metrix_execute(d.ptr, cQuery)
	if res == nil {
		return nil
	}
	return &cursor{ptr: res}
}

func (d *db) Close() {
	if d.ptr == nil {
		return
	}
	C.metrix_close(d.ptr)
	d.ptr = nil
}

type cursor struct {
	ptr *C.MetrixResult_T
}

func (c *cursor) IsSuccess() bool { return bool(C.metrix_result_is_success(c.ptr)) }

func (c *cursor) Error() (string, bool) { return goString(C.metrix_result_get_error(c.ptr)) }

func (c *cursor) ColumnCount() int { return int(C.metrix_result_column_count(c.ptr)) }

func (c *cursor) ColumnName(i int) (string, bool) {
	return goString(C.metrix_result_column_name(c.ptr, C.int(i)))
}

func (c *cursor) Next() bool { return bool(C.metrix_result_next(c.ptr)) }

func (c *cursor) Type(i int) native.ValueType {
	switch C.metrix_result_get_type(c.ptr, C.int(i)) {
	case C.MX_NULL:
		return native.TypeNull
	case C.MX_BOOL:
		return native.TypeBool
	case C.MX_INT:
		return native.TypeInt
	case C.MX_DOUBLE:
		return native.TypeDouble
	case C.MX_STRING:
		return native.TypeString
	case C.MX_NODE:
		return native.TypeNode
	case C.MX_EDGE:
		return native.TypeEdge
	}
	return native.ValueType(-1)
}

func (c *cursor) String(i int) (string, bool) {
	return goString(C.metrix_result_get_string(c.ptr, C.int(i)))
}

func (c *cursor) Int(i int) int64 { return int64(C.metrix_result_get_int(c.ptr, C.int(i))) }

func (c *cursor) Double(i int) float64 { return float64(C.metrix_result_get_double(c.ptr, C.int(i))) }

func (c *cursor) Bool(i int) bool { return bool(C.metrix_result_get_bool(c.ptr, C.int(i))) }

func (c *cursor) Node(i int) (native.NodeInfo, bool) {
	var raw C.MetrixNode
	if !bool(C.metrix_result_get_node(c.ptr, C.int(i), &raw)) {
		return native.NodeInfo{}, false
	}
	return native.NodeInfo{ID: int64(raw.id), Label: optString(raw.label)}, true
}

func (c *cursor) Edge(i int) (native.EdgeInfo, bool) {
	var raw C.MetrixEdge
	if !bool(C.metrix_result_get_edge(c.ptr, C.int(i), &raw)) {
		return native.EdgeInfo{}, false
	}
	return native.EdgeInfo{
		ID:       int64(raw.id),
		SourceID: int64(raw.source_id),
		TargetID: int64(raw.target_id),
		Label:    optString(raw._type),
	}, true
}

func (c *cursor) PropsJSON(i int) (string, bool) {
	return goString(C.metrix_result_get_props_json(c.ptr, C.int(i)))
}

func (c *cursor) Close() {
	if c.ptr == nil {
		return
	}
	C.metrix_result_close(c.ptr)
	c.ptr = nil
}

func goString(p *C.char) (string, bool) {
	if p == nil {
		return "", false
	}
	return C.GoString(p), true
}

func optString(p *C.char) *string {
	if p == nil {
		return nil
	}
	s := C.GoString(p)
	return &s
}
