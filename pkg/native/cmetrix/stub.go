//go:build !cgo || !metrix

// Package cmetrix binds the Metrix C API and registers it as the "metrix"
// native engine.
//
// This is a stub for builds without CGO or without the metrix build tag. The
// engine still registers so configuration naming "metrix" resolves, but every
// open fails with errNotAvailable as the last error.
package cmetrix

import (
	"github.com/nexepic/metrix-studio/pkg/native"
)

const errNotAvailable = "metrix engine not available: build with CGO_ENABLED=1 and -tags metrix"

// Available reports whether this binary was built with the C engine.
const Available = false

func init() {
	native.Register("metrix", New())
}

// Engine is a stub that never opens a database.
type Engine struct{}

// New returns the stub engine.
func New() *Engine { return &Engine{} }

// Open always fails.
func (e *Engine) Open(path string) native.DB { return nil }

// OpenIfExists always fails.
func (e *Engine) OpenIfExists(path string) native.DB { return nil }

// LastError explains why opens fail.
func (e *Engine) LastError() (string, bool) { return errNotAvailable, true }
