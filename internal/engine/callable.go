package engine

import (
	"context"
	"io"

	"github.com/funvibe/fxhost/internal/ast"
)

// NativeFunc implements a function in Go. Args are plain values.
type NativeFunc func(c *CallContext, args []any) (any, error)

type native struct {
	arity    int // -1 for variadic
	loopOnly bool
	fn       NativeFunc
}

// CallContext is handed to native functions.
type CallContext struct {
	Context context.Context
	Out     io.Writer
	Threads int

	// engine is nil when the call runs off the runtime thread.
	engine *Engine
}

// Engine returns the engine when running on the runtime thread.
func (c *CallContext) Engine() (*Engine, bool) {
	return c.engine, c.engine != nil
}

// Function is a callable defined in source or registered as a native.
type Function struct {
	name   string
	module string
	params []string
	body   *ast.BlockStatement
	native *native
}

func (f *Function) Name() string   { return f.name }
func (f *Function) Module() string { return f.module }
func (f *Function) String() string { return f.module + "." + f.name }

// Arity returns the parameter count, or -1 for variadic natives.
func (f *Function) Arity() int {
	if f.native != nil {
		return f.native.arity
	}
	return len(f.params)
}

// IsNative reports whether f is implemented in Go.
func (f *Function) IsNative() bool { return f.native != nil }

// LoopOnly reports whether f must run on the runtime thread.
func (f *Function) LoopOnly() bool { return f.native != nil && f.native.loopOnly }

// RegisterNative defines a Go function in m. A loopOnly native refuses to
// run on offload workers.
func (m *Module) RegisterNative(name string, arity int, loopOnly bool, fn NativeFunc) error {
	if err := m.engine.check(); err != nil {
		return err
	}
	return m.engine.assignGlobal(m.path, name, &Function{
		name:   name,
		module: m.path,
		native: &native{arity: arity, loopOnly: loopOnly, fn: fn},
	}, false)
}
