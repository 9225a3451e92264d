// Package host is the public entry point for driving the embedded engine
// from any goroutine.
//
//	cfg := config.Default("bootstrap.fx")
//	h, join, err := host.Init(cfg)
//	if err != nil {
//		return err
//	}
//	results := make(chan task.Result[float64], 1)
//	err = host.Submit(h, &MyTask{out: task.NewChanSink(results)})
//	...
//	h.Close()
//	err = join.Join()
//
// Only one runtime can be live per process.
package host

import (
	"io"
	"log/slog"
	"reflect"

	"github.com/funvibe/fxhost/internal/config"
	"github.com/funvibe/fxhost/internal/engine"
	"github.com/funvibe/fxhost/internal/runtime"
	"github.com/funvibe/fxhost/pkg/task"
)

type (
	// Handle submits work to the runtime. See runtime.Handle.
	Handle = runtime.Handle
	// JoinHandle waits for the runtime to stop.
	JoinHandle = runtime.JoinHandle
	// Config is the runtime configuration.
	Config = config.Config
	// State is the runtime loop state.
	State = runtime.State
	// BootstrapError reports a failed bootstrap script.
	BootstrapError = runtime.BootstrapError
	// FatalError is returned by Join after the runtime thread died.
	FatalError = runtime.FatalError
)

// ErrAlreadyInitialized is returned by Init while another runtime is live.
var ErrAlreadyInitialized = runtime.ErrAlreadyInitialized

// Option configures Init.
type Option func(*options)

type options struct {
	stdout   io.Writer
	logger   *slog.Logger
	bindings []binding
}

// WithStdout redirects script println output.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithLogger sets the logger of the runtime.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Bind exposes the Go function fn to scripts as name in Base. Bound
// functions may run on offload workers, so fn must be safe for concurrent
// use.
func Bind(name string, fn any) Option {
	return func(o *options) {
		o.bindings = append(o.bindings, binding{name: name, fn: reflect.ValueOf(fn)})
	}
}

// BindLoopOnly is like Bind for functions that must run on the runtime
// thread. Offloading a call to one fails with engine.ErrNotOffloadable.
func BindLoopOnly(name string, fn any) Option {
	return func(o *options) {
		o.bindings = append(o.bindings, binding{name: name, fn: reflect.ValueOf(fn), loopOnly: true})
	}
}

// Init validates cfg, starts the runtime thread and loads the bootstrap
// script, which must define module Host.
func Init(cfg *Config, opts ...Option) (*Handle, *JoinHandle, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return runtime.Start(cfg, runtime.Options{
		Stdout: o.stdout,
		Logger: o.logger,
		Setup: func(e *engine.Engine) error {
			for _, b := range o.bindings {
				arity, fn, err := b.native()
				if err != nil {
					return err
				}
				if err := e.Base().RegisterNative(b.name, arity, b.loopOnly, fn); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// Submit queues t without blocking. It fails with mailbox.ErrFull when the
// backlog is full.
func Submit[T any](h *Handle, t task.Task[T]) error {
	_, err := h.TrySubmit(task.Erase(t))
	return err
}
