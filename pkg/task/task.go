// Package task defines the units of work the runtime executes.
//
// A Task runs on the runtime thread against live engine values. Its Run
// method returns a Step: either a final result, or a suspension waiting for
// an offloaded call. The runtime keeps running other tasks while a call is
// in flight and resumes the continuation when it completes.
package task

import (
	"fmt"
	"log/slog"

	"github.com/funvibe/fxhost/pkg/rooting"
)

// Task is a typed unit of work.
type Task[T any] interface {
	Run(g Global, s *rooting.Scope) Step[T]
}

// Sinker is implemented by tasks whose result is sent back to the caller.
type Sinker[T any] interface {
	Sink() Sink[T]
}

// Budgeted is implemented by tasks that declare their frame capacity.
type Budgeted interface {
	Slots() int
}

// Namer is implemented by tasks with a display name for logs.
type Namer interface {
	Name() string
}

// Result is what a sink receives.
type Result[T any] struct {
	Value T
	Err   error
}

// Sink receives the result of a task exactly once.
type Sink[T any] interface {
	Deliver(Result[T])
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(Result[T])

func (f SinkFunc[T]) Deliver(r Result[T]) { f(r) }

// ChanSink sends results on a channel without blocking the runtime. When
// the channel has no room the send is finished by a separate goroutine, so
// the result still arrives once the receiver reads.
type ChanSink[T any] struct {
	C      chan<- Result[T]
	Logger *slog.Logger
}

// NewChanSink returns a sink writing to ch.
func NewChanSink[T any](ch chan<- Result[T]) *ChanSink[T] {
	return &ChanSink[T]{C: ch}
}

func (s *ChanSink[T]) Deliver(r Result[T]) {
	select {
	case s.C <- r:
	default:
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Debug("sink channel full, sending in background", "err", r.Err, "value", fmt.Sprint(r.Value))
		go func() { s.C <- r }()
	}
}
