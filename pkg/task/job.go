package task

import (
	"fmt"

	"github.com/funvibe/fxhost/pkg/rooting"
)

// Job is a type-erased task as scheduled by the runtime.
type Job interface {
	// Name is used in logs and the journal.
	Name() string
	// Slots is the frame capacity the job needs, or 0 for the default.
	Slots() int
	// Run starts the job.
	Run(g Global, s *rooting.Scope) Progress
	// Abort finishes a job that could not be started with err.
	Abort(err error) Progress
}

// Progress is an erased Step.
type Progress struct {
	offload *Offload
	resume  func(rooting.Value, error) Progress

	value     any
	err       error
	deliver   func() bool
	delivered *bool
}

// Suspended reports whether the job waits on an offload.
func (p Progress) Suspended() bool { return p.offload != nil }

// Offload returns the call a suspended job waits on.
func (p Progress) Offload() *Offload { return p.offload }

// Resume feeds the offload result back into the job.
func (p Progress) Resume(v rooting.Value, err error) Progress {
	if p.resume == nil {
		return p
	}
	return p.resume(v, err)
}

// Value returns the final value of a finished job.
func (p Progress) Value() any { return p.value }

// Err returns the final error of a finished job.
func (p Progress) Err() error { return p.err }

// Deliver sends the result to the job's sink. It reports false if the job
// has no sink. Only the first call delivers.
func (p Progress) Deliver() bool {
	if p.deliver == nil {
		return false
	}
	if *p.delivered {
		return true
	}
	*p.delivered = true
	return p.deliver()
}

// Erase wraps t as a Job.
func Erase[T any](t Task[T]) Job {
	return &erased[T]{task: t}
}

type erased[T any] struct {
	task Task[T]
}

func (j *erased[T]) Name() string {
	if n, ok := j.task.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", j.task)
}

func (j *erased[T]) Slots() int {
	if b, ok := j.task.(Budgeted); ok {
		return b.Slots()
	}
	return 0
}

func (j *erased[T]) Run(g Global, s *rooting.Scope) Progress {
	var sink Sink[T]
	if sk, ok := j.task.(Sinker[T]); ok {
		sink = sk.Sink()
	}
	return progressOf(sink, j.task.Run(g, s))
}

func (j *erased[T]) Abort(err error) Progress {
	var sink Sink[T]
	if sk, ok := j.task.(Sinker[T]); ok {
		sink = sk.Sink()
	}
	return progressOf(sink, Fail[T](err))
}

func progressOf[T any](sink Sink[T], step Step[T]) Progress {
	if step.Suspended() {
		return Progress{
			offload: step.Offload(),
			resume: func(v rooting.Value, err error) Progress {
				return progressOf(sink, step.Resume(v, err))
			},
		}
	}
	v, err := step.Result()
	p := Progress{value: v, err: err, delivered: new(bool)}
	if sink != nil {
		p.deliver = func() bool {
			sink.Deliver(Result[T]{Value: v, Err: err})
			return true
		}
	}
	return p
}

// Func is a Task built from a function.
type Func[T any] struct {
	Label  string
	Budget int
	Body   func(Global, *rooting.Scope) Step[T]
	Out    Sink[T]
}

func (f *Func[T]) Run(g Global, s *rooting.Scope) Step[T] { return f.Body(g, s) }
func (f *Func[T]) Name() string                           { return f.Label }
func (f *Func[T]) Slots() int                             { return f.Budget }
func (f *Func[T]) Sink() Sink[T]                          { return f.Out }
