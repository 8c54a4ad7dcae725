//go:build !kuzu

package kuzudb

import (
	"github.com/nexepic/metrix-studio/pkg/native"
)

const errNotAvailable = "kuzu engine not available: build with -tags kuzu"

// Available reports whether this binary was built with Kùzu.
const Available = false

func init() {
	native.Register("kuzu", New(DefaultOptions()))
}

// Engine is a stub that never opens a database.
type Engine struct{}

// New returns the stub engine; opts are ignored.
func New(opts Options) *Engine { return &Engine{} }

func (e *Engine) Open(path string) native.DB { return nil }

func (e *Engine) OpenIfExists(path string) native.DB { return nil }

func (e *Engine) LastError() (string, bool) { return errNotAvailable, true }
