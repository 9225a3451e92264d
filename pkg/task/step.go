package task

import (
	"errors"

	"github.com/funvibe/fxhost/pkg/rooting"
)

// Step is the outcome of running a task so far: finished with a value or
// an error, or suspended on an offloaded call.
type Step[T any] struct {
	value T
	err   error

	offload *Offload
	then    func(rooting.Value, error) Step[T]
}

// Done finishes with v.
func Done[T any](v T) Step[T] {
	return Step[T]{value: v}
}

// Fail finishes with err.
func Fail[T any](err error) Step[T] {
	if err == nil {
		err = errors.New("task: failed with a nil error")
	}
	return Step[T]{err: err}
}

// Await suspends until o completes. then runs on the runtime thread with
// the call result rooted in the innermost open scope of the task frame, or
// with the call error.
func Await[T any](o *Offload, then func(rooting.Value, error) Step[T]) Step[T] {
	if o == nil {
		return Fail[T](errors.New("task: await on a nil offload"))
	}
	if then == nil {
		return Fail[T](errors.New("task: await without a continuation"))
	}
	return Step[T]{offload: o, then: then}
}

// Suspended reports whether the step waits on an offload.
func (s Step[T]) Suspended() bool { return s.offload != nil }

// Offload returns the call a suspended step waits on.
func (s Step[T]) Offload() *Offload { return s.offload }

// Resume feeds the offload result to the continuation.
func (s Step[T]) Resume(v rooting.Value, err error) Step[T] {
	if s.then == nil {
		return s
	}
	return s.then(v, err)
}

// Result returns the final value and error of a finished step.
func (s Step[T]) Result() (T, error) { return s.value, s.err }

// Nested runs body in a child scope of s that can root n values. The child
// stays open while body is suspended and closes once body finishes.
func Nested[T any](s *rooting.Scope, n int, body func(*rooting.Scope) Step[T]) Step[T] {
	child, err := s.Reserve(n)
	if err != nil {
		return Fail[T](err)
	}
	return closeWhenDone(child, body(child))
}

func closeWhenDone[T any](child *rooting.Scope, step Step[T]) Step[T] {
	if !step.Suspended() {
		child.Close()
		return step
	}
	then := step.then
	return Step[T]{
		offload: step.offload,
		then: func(v rooting.Value, err error) Step[T] {
			return closeWhenDone(child, then(v, err))
		},
	}
}
