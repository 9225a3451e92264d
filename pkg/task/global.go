package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/funvibe/fxhost/internal/engine"
	"github.com/funvibe/fxhost/pkg/rooting"
)

// Global is the process-wide engine state available to a running task:
// the module tree, the event queue and the collector. None of it is
// collected, so it needs no frame slots. A Global is only usable on the
// runtime thread.
type Global struct {
	e *engine.Engine
}

// NewGlobal wraps e.
func NewGlobal(e *engine.Engine) Global {
	return Global{e: e}
}

func (g Global) Main() Module { return Module{m: g.e.Main()} }
func (g Global) Base() Module { return Module{m: g.e.Base()} }
func (g Global) Core() Module { return Module{m: g.e.Core()} }

// Threads returns the engine parallelism.
func (g Global) Threads() int { return g.e.Threads() }

// After schedules fn on the runtime thread once d has elapsed.
func (g Global) After(d time.Duration, fn func()) error {
	return g.e.After(d, fn)
}

// Collect runs a full collection.
func (g Global) Collect() (engine.GCStats, error) {
	return g.e.Collect()
}

// Module is a handle to an engine module.
type Module struct {
	m *engine.Module
}

func (m Module) Name() string { return m.m.Name() }
func (m Module) Path() string { return m.m.Path() }

// Submodule returns the submodule called name.
func (m Module) Submodule(name string) (Module, error) {
	sub, err := m.m.Submodule(name)
	if err != nil {
		return Module{}, err
	}
	return Module{m: sub}, nil
}

// Function returns the function called name.
func (m Module) Function(name string) (Function, error) {
	fn, err := m.m.Function(name)
	if err != nil {
		return Function{}, err
	}
	return Function{fn: fn, e: m.m}, nil
}

// Global roots the current value of the global called name in s.
func (m Module) Global(s *rooting.Scope, name string) (rooting.Value, error) {
	r, err := m.m.Global(name)
	if err != nil {
		return rooting.Value{}, err
	}
	return s.Root(r)
}

// SetGlobal assigns v to the global called name.
func (m Module) SetGlobal(name string, v rooting.Value) error {
	r, err := v.Ref()
	if err != nil {
		return err
	}
	return m.m.SetGlobal(name, r)
}

// Function is a handle to an engine function.
type Function struct {
	fn *engine.Function
	e  *engine.Module
}

func (f Function) Name() string   { return f.fn.Name() }
func (f Function) String() string { return f.fn.String() }

// Call runs the function on the runtime thread and roots the result in s.
func (f Function) Call(s *rooting.Scope, args ...rooting.Value) (rooting.Value, error) {
	refs, err := refsOf(args)
	if err != nil {
		return rooting.Value{}, err
	}
	r, err := f.e.Engine().Call(f.fn, refs...)
	if err != nil {
		return rooting.Value{}, err
	}
	return s.Root(r)
}

// CallAsync prepares a call to run on an offload worker. Await the
// returned Offload to get the result.
func (f Function) CallAsync(args ...rooting.Value) (*Offload, error) {
	refs, err := refsOf(args)
	if err != nil {
		return nil, err
	}
	pc, err := f.e.Engine().Prepare(f.fn, refs...)
	if err != nil {
		return nil, err
	}
	return &Offload{ID: uuid.New(), call: pc}, nil
}

func refsOf(args []rooting.Value) ([]engine.Ref, error) {
	refs := make([]engine.Ref, len(args))
	for i, a := range args {
		r, err := a.Ref()
		if err != nil {
			return nil, err
		}
		refs[i] = r
	}
	return refs, nil
}

// Offload is a prepared call waiting for a worker.
type Offload struct {
	ID   uuid.UUID
	call *engine.PreparedCall
}

// Function names the called function.
func (o *Offload) Function() string { return o.call.Function().String() }

// Run executes the call. It is safe to call from any goroutine.
func (o *Offload) Run(ctx context.Context) (any, error) {
	return o.call.Run(ctx)
}
