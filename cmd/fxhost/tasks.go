package main

import (
	"github.com/funvibe/fxhost/pkg/rooting"
	"github.com/funvibe/fxhost/pkg/task"
)

// complexTask calls MyModule.complexfunc(dims, iters) on an offload worker
// and sends the Float64 result back on its channel.
type complexTask struct {
	dims  int
	iters int
	sink  task.Sink[float64]
}

func newComplexTask(dims, iters int, ch chan<- task.Result[float64]) *complexTask {
	return &complexTask{dims: dims, iters: iters, sink: task.NewChanSink(ch)}
}

func (t *complexTask) Name() string             { return "complexfunc" }
func (t *complexTask) Slots() int               { return 4 }
func (t *complexTask) Sink() task.Sink[float64] { return t.sink }

func (t *complexTask) Run(g task.Global, s *rooting.Scope) task.Step[float64] {
	dims, err := s.NewValue(t.dims)
	if err != nil {
		return task.Fail[float64](err)
	}
	iters, err := s.NewValue(t.iters)
	if err != nil {
		return task.Fail[float64](err)
	}

	mod, err := g.Main().Submodule("MyModule")
	if err != nil {
		return task.Fail[float64](err)
	}
	fn, err := mod.Function("complexfunc")
	if err != nil {
		return task.Fail[float64](err)
	}
	call, err := fn.CallAsync(dims, iters)
	if err != nil {
		return task.Fail[float64](err)
	}
	return task.Await(call, func(v rooting.Value, err error) task.Step[float64] {
		if err != nil {
			return task.Fail[float64](err)
		}
		x, err := task.Cast[float64](v)
		if err != nil {
			return task.Fail[float64](err)
		}
		return task.Done(x)
	})
}
