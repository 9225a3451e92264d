// Package engine is the embedded interpreter driven by the runtime loop.
//
// An Engine owns a garbage-collected heap, a tree of modules (Main, Base,
// Core and whatever included source defines), a queue of timed events, and
// an evaluator for .fx source. It is single-threaded: every method that
// touches engine state must be called from the goroutine that created the
// Engine, and returns ErrForeignThread otherwise. The runtime loop pins that
// goroutine to one OS thread.
//
// The one exception is PreparedCall.Run. A prepared call carries plain Go
// arguments and an immutable snapshot of the definitions, so it can run on a
// worker goroutine without touching the heap.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/petermattis/goid"

	"github.com/funvibe/fxhost/internal/config"
)

// Config configures an Engine.
type Config struct {
	// Threads is the engine parallelism reported by Core.nthreads.
	Threads int
	// GCThreshold is the number of allocations between safepoint collections.
	GCThreshold int
	// Stdout receives println output. Defaults to os.Stdout.
	Stdout io.Writer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type Engine struct {
	owner       int64
	threads     int
	gcThreshold int
	logger      *slog.Logger
	out         *lockedWriter

	heap     slab
	stats    GCStats
	scanners []RootScanner

	// defs holds every module member keyed by qualified name. Only the
	// owner writes it; prepared calls capture the current root.
	defs *PersistentMap

	main, base, core *Module

	events eventQueue
	seq    uint64

	torn bool
}

// binding is a module member.
type binding struct {
	value    any
	constant bool
}

// New creates an engine owned by the calling goroutine.
func New(cfg Config) *Engine {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.GCThreshold < 1 {
		cfg.GCThreshold = config.DefaultGCThreshold
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		owner:       goid.Get(),
		threads:     cfg.Threads,
		gcThreshold: cfg.GCThreshold,
		logger:      cfg.Logger.With("component", "engine"),
		out:         &lockedWriter{w: cfg.Stdout},
		defs:        EmptyMap(),
	}
	e.main = e.newRootModule(config.MainModuleName)
	e.base = e.newRootModule(config.BaseModuleName)
	e.core = e.newRootModule(config.CoreModuleName)
	registerBuiltins(e)
	return e
}

func (e *Engine) newRootModule(name string) *Module {
	m := &Module{engine: e, name: name, path: name}
	e.defs = e.defs.Put(name, &binding{value: m, constant: true})
	return m
}

// check guards every owner-only entry point.
func (e *Engine) check() error {
	if e.torn {
		return ErrTornDown
	}
	if goid.Get() != e.owner {
		return ErrForeignThread
	}
	return nil
}

func (e *Engine) Main() *Module { return e.main }
func (e *Engine) Base() *Module { return e.base }
func (e *Engine) Core() *Module { return e.core }

// Threads returns the configured engine parallelism.
func (e *Engine) Threads() int { return e.threads }

// Alloc boxes a Go value in a new heap cell. The cell is collectible until
// something roots it.
func (e *Engine) Alloc(x any) (Ref, error) {
	if err := e.check(); err != nil {
		return Ref{}, err
	}
	v, err := Normalize(x)
	if err != nil {
		return Ref{}, err
	}
	return e.heap.alloc(v), nil
}

// Load returns the plain value stored in a cell.
func (e *Engine) Load(r Ref) (any, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	c, err := e.heap.get(r)
	if err != nil {
		return nil, err
	}
	return c.value, nil
}

// Kind returns the type tag of a cell.
func (e *Engine) Kind(r Ref) (Kind, error) {
	v, err := e.Load(r)
	if err != nil {
		return KindNothing, err
	}
	return KindOf(v), nil
}

// Call runs fn synchronously on the owner thread and boxes the result.
func (e *Engine) Call(fn *Function, args ...Ref) (Ref, error) {
	if err := e.check(); err != nil {
		return Ref{}, err
	}
	vals, err := e.unbox(args)
	if err != nil {
		return Ref{}, err
	}
	ev := e.newEvaluator(context.Background())
	v, err := ev.call(fn, vals)
	if err != nil {
		return Ref{}, err
	}
	return e.heap.alloc(v), nil
}

// Prepare captures fn and its arguments for a call that runs off the owner
// thread. The arguments are copied out of the heap, so the refs need not
// stay rooted while the call runs.
func (e *Engine) Prepare(fn *Function, args ...Ref) (*PreparedCall, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if fn.LoopOnly() {
		return nil, fmt.Errorf("%s: %w", fn, ErrNotOffloadable)
	}
	vals, err := e.unbox(args)
	if err != nil {
		return nil, err
	}
	return &PreparedCall{
		fn:      fn,
		args:    vals,
		defs:    e.defs,
		out:     e.out,
		threads: e.threads,
	}, nil
}

func (e *Engine) unbox(args []Ref) ([]any, error) {
	vals := make([]any, len(args))
	for i, r := range args {
		c, err := e.heap.get(r)
		if err != nil {
			return nil, err
		}
		vals[i] = c.value
	}
	return vals, nil
}

// Teardown releases the heap and drops pending events. Every later call
// fails with ErrTornDown.
func (e *Engine) Teardown() error {
	if err := e.check(); err != nil {
		return err
	}
	if n := len(e.events); n > 0 {
		e.logger.Warn("dropping pending events", "count", n)
	}
	e.events = nil
	e.scanners = nil
	e.heap.reset()
	e.torn = true
	return nil
}

// PreparedCall is a function call detached from the heap.
type PreparedCall struct {
	fn      *Function
	args    []any
	defs    *PersistentMap
	out     io.Writer
	threads int
}

// Function returns the prepared function.
func (pc *PreparedCall) Function() *Function { return pc.fn }

// Run evaluates the call. It is safe to call from any goroutine and honors
// ctx cancellation inside loops.
func (pc *PreparedCall) Run(ctx context.Context) (any, error) {
	ev := &evaluator{
		ctx:     ctx,
		defs:    pc.defs,
		out:     pc.out,
		threads: pc.threads,
	}
	return ev.call(pc.fn, pc.args)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
