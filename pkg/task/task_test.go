package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/funvibe/fxhost/internal/engine"
	"github.com/funvibe/fxhost/pkg/rooting"
)

const source = `
module Sums {
    fun add(a, b) { a + b }

    fun square(x) { x * x }

    fun boom() { error("boom") }
}
`

type fixture struct {
	e     *engine.Engine
	arena *rooting.Arena
	g     Global
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	e := engine.New(engine.Config{Threads: 2})
	if err := e.EvalString("sums.fx", source); err != nil {
		t.Fatalf("eval: %v", err)
	}
	a := rooting.NewArena(e, 64)
	if err := e.AddRootScanner(a); err != nil {
		t.Fatal(err)
	}
	return &fixture{e: e, arena: a, g: NewGlobal(e)}
}

func (f *fixture) scope(t *testing.T, n int) *rooting.Scope {
	t.Helper()
	fr, err := f.arena.Open(n)
	if err != nil {
		t.Fatal(err)
	}
	s, err := fr.Scope()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (f *fixture) function(t *testing.T, name string) Function {
	t.Helper()
	mod, err := f.g.Main().Submodule("Sums")
	if err != nil {
		t.Fatal(err)
	}
	fn, err := mod.Function(name)
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

// drive runs p to completion, executing offloads inline and rooting their
// results in the innermost open scope, the way the runtime does.
func (f *fixture) drive(t *testing.T, fr *rooting.Frame, p Progress) Progress {
	t.Helper()
	for p.Suspended() {
		x, err := p.Offload().Run(context.Background())
		var v rooting.Value
		if err == nil {
			var r engine.Ref
			r, err = f.e.Alloc(x)
			if err == nil {
				v, err = fr.Current().Root(r)
			}
		}
		p = p.Resume(v, err)
	}
	return p
}

func TestCallSync(t *testing.T) {
	f := newFixture(t)
	s := f.scope(t, 4)
	defer s.Close()

	a, err := s.NewValue(2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NewValue(40)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.function(t, "add").Call(s, a, b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Cast[int](v)
	if err != nil || got != 42 {
		t.Fatalf("add(2, 40) = %v, %v; want 42", got, err)
	}
	if s.Available() != 1 {
		t.Errorf("available = %d, want 1", s.Available())
	}
}

func TestCallExpiredArgument(t *testing.T) {
	f := newFixture(t)
	s := f.scope(t, 4)
	defer s.Close()

	child, err := s.Reserve(1)
	if err != nil {
		t.Fatal(err)
	}
	x, err := child.NewValue(3)
	if err != nil {
		t.Fatal(err)
	}
	child.Close()

	if _, err := f.function(t, "square").Call(s, x); !errors.Is(err, rooting.ErrValueExpired) {
		t.Fatalf("expected ErrValueExpired, got %v", err)
	}
}

func TestAwaitNestedScope(t *testing.T) {
	f := newFixture(t)
	fr, err := f.arena.Open(4)
	if err != nil {
		t.Fatal(err)
	}
	s, err := fr.Scope()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var inner *rooting.Scope
	square := f.function(t, "square")
	tk := &Func[float64]{
		Label: "square",
		Body: func(g Global, s *rooting.Scope) Step[float64] {
			return Nested(s, 2, func(c *rooting.Scope) Step[float64] {
				inner = c
				x, err := c.NewValue(7)
				if err != nil {
					return Fail[float64](err)
				}
				o, err := square.CallAsync(x)
				if err != nil {
					return Fail[float64](err)
				}
				return Await(o, func(v rooting.Value, err error) Step[float64] {
					if err != nil {
						return Fail[float64](err)
					}
					if v.Scope() != c {
						return Fail[float64](errors.New("result rooted outside the nested scope"))
					}
					n, err := Cast[int](v)
					if err != nil {
						return Fail[float64](err)
					}
					return Done(float64(n))
				})
			})
		},
	}

	job := Erase[float64](tk)
	if job.Name() != "square" {
		t.Errorf("name = %q", job.Name())
	}
	p := job.Run(f.g, s)
	if !p.Suspended() {
		t.Fatal("expected the job to suspend")
	}
	if inner.Closed() {
		t.Fatal("nested scope closed while suspended")
	}
	p = f.drive(t, fr, p)
	if p.Err() != nil {
		t.Fatal(p.Err())
	}
	if p.Value() != 49.0 {
		t.Errorf("value = %v, want 49", p.Value())
	}
	if !inner.Closed() {
		t.Error("nested scope still open after the job finished")
	}
	if fr.Len() != 0 {
		t.Errorf("frame holds %d slots after the nested scope closed", fr.Len())
	}
}

func TestDeliverOnce(t *testing.T) {
	f := newFixture(t)
	s := f.scope(t, 2)
	defer s.Close()

	var got []Result[int]
	tk := &Func[int]{
		Body: func(Global, *rooting.Scope) Step[int] { return Done(5) },
		Out:  SinkFunc[int](func(r Result[int]) { got = append(got, r) }),
	}
	p := Erase[int](tk).Run(f.g, s)
	if !p.Deliver() || !p.Deliver() {
		t.Fatal("Deliver reported no sink")
	}
	if len(got) != 1 || got[0].Value != 5 {
		t.Fatalf("deliveries = %+v, want exactly one with value 5", got)
	}

	noSink := &Func[int]{Body: func(Global, *rooting.Scope) Step[int] { return Done(1) }}
	if Erase[int](noSink).Run(f.g, s).Deliver() {
		t.Error("Deliver reported a sink for a task without one")
	}
}

func TestExceptionFromOffload(t *testing.T) {
	f := newFixture(t)
	fr, err := f.arena.Open(2)
	if err != nil {
		t.Fatal(err)
	}
	s, err := fr.Scope()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	boom := f.function(t, "boom")
	tk := &Func[int]{
		Body: func(Global, *rooting.Scope) Step[int] {
			o, err := boom.CallAsync()
			if err != nil {
				return Fail[int](err)
			}
			return Await(o, func(_ rooting.Value, err error) Step[int] {
				if err != nil {
					return Fail[int](err)
				}
				return Done(0)
			})
		},
	}
	p := f.drive(t, fr, Erase[int](tk).Run(f.g, s))
	var exc *engine.Exception
	if !errors.As(p.Err(), &exc) || exc.Type != "ErrorException" {
		t.Fatalf("expected ErrorException, got %v", p.Err())
	}
}

func TestAwaitValidation(t *testing.T) {
	if _, err := Await[int](nil, func(rooting.Value, error) Step[int] { return Done(1) }).Result(); err == nil {
		t.Error("await on nil offload succeeded")
	}
	if _, err := Fail[int](nil).Result(); err == nil {
		t.Error("Fail(nil) produced no error")
	}
}

func TestCastWrongType(t *testing.T) {
	f := newFixture(t)
	s := f.scope(t, 2)
	defer s.Close()

	v, err := s.NewValue("text")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Cast[int](v)
	var wt *engine.WrongTypeError
	if !errors.As(err, &wt) {
		t.Fatalf("expected WrongTypeError, got %v", err)
	}
	if wt.Got != "String" || wt.Expected != "int" {
		t.Errorf("error = %+v", wt)
	}

	str, err := Cast[string](v)
	if err != nil || str != "text" {
		t.Errorf("Cast[string] = %q, %v", str, err)
	}
}

func TestModuleGlobals(t *testing.T) {
	f := newFixture(t)
	s := f.scope(t, 4)
	defer s.Close()

	v, err := s.NewValue(1.5)
	if err != nil {
		t.Fatal(err)
	}
	main := f.g.Main()
	if err := main.SetGlobal("ratio", v); err != nil {
		t.Fatal(err)
	}
	got, err := main.Global(s, "ratio")
	if err != nil {
		t.Fatal(err)
	}
	if x, err := Cast[float64](got); err != nil || x != 1.5 {
		t.Errorf("ratio = %v, %v", x, err)
	}

	var nf *engine.NotFoundError
	if _, err := main.Function("missing"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestChanSinkFullChannel(t *testing.T) {
	ch := make(chan Result[int])
	sink := NewChanSink(ch)

	returned := make(chan struct{})
	go func() {
		sink.Deliver(Result[int]{Value: 7})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Deliver blocked on an unbuffered channel")
	}

	select {
	case r := <-ch:
		if r.Value != 7 || r.Err != nil {
			t.Errorf("result = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("result was dropped")
	}
}
