package host

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/funvibe/fxhost/internal/config"
	"github.com/funvibe/fxhost/internal/engine"
	"github.com/funvibe/fxhost/pkg/rooting"
	"github.com/funvibe/fxhost/pkg/task"
)

const bootstrap = `
module Host {
    fun scale(x) { x * factor() }

    fun greet(name) {
        println(shout(name))
        return length(name)
    }
}
`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// callTask calls Main.Host.<fn>(arg) on an offload worker.
type callTask struct {
	fn  string
	arg any
	out task.Sink[any]
}

func (c *callTask) Sink() task.Sink[any] { return c.out }

func (c *callTask) Run(g task.Global, s *rooting.Scope) task.Step[any] {
	mod, err := g.Main().Submodule("Host")
	if err != nil {
		return task.Fail[any](err)
	}
	fn, err := mod.Function(c.fn)
	if err != nil {
		return task.Fail[any](err)
	}
	arg, err := s.NewValue(c.arg)
	if err != nil {
		return task.Fail[any](err)
	}
	o, err := fn.CallAsync(arg)
	if err != nil {
		return task.Fail[any](err)
	}
	return task.Await(o, func(v rooting.Value, err error) task.Step[any] {
		if err != nil {
			return task.Fail[any](err)
		}
		x, err := v.Load()
		if err != nil {
			return task.Fail[any](err)
		}
		return task.Done(x)
	})
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.fx")
	if err := os.WriteFile(path, []byte(bootstrap), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default(path)
	cfg.Engine.Threads = 2
	cfg.Workers = 2

	var out syncBuffer
	h, join, err := Init(cfg,
		WithStdout(&out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		Bind("factor", func() int { return 3 }),
		Bind("shout", func(ctx context.Context, s string) (string, error) {
			if ctx == nil {
				return "", errors.New("no context")
			}
			return strings.ToUpper(s) + "!", nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	results := make(chan task.Result[any], 2)
	if err := Submit[any](h, &callTask{fn: "scale", arg: 14, out: task.NewChanSink(results)}); err != nil {
		t.Fatal(err)
	}
	if err := Submit[any](h, &callTask{fn: "greet", arg: "fx", out: task.NewChanSink(results)}); err != nil {
		t.Fatal(err)
	}
	h.Close()
	if err := join.Join(); err != nil {
		t.Fatal(err)
	}

	got := map[any]bool{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.Err != nil {
				t.Fatal(r.Err)
			}
			got[r.Value] = true
		case <-time.After(5 * time.Second):
			t.Fatal("missing result")
		}
	}
	if !got[int64(42)] || !got[int64(2)] {
		t.Errorf("results = %v, want 42 and 2", got)
	}
	if out.String() != "FX!\n" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestInitErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.fx")
	if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default(path)
	cfg.Engine.Threads = 2

	var be *BootstrapError
	if _, _, err := Init(cfg); !errors.As(err, &be) {
		t.Fatalf("expected BootstrapError, got %v", err)
	}
	if _, _, err := Init(cfg, Bind("bad", 42)); err == nil {
		t.Fatal("binding a non-function succeeded")
	}

	cfg.Workers = 8
	if _, _, err := Init(cfg); err == nil || !strings.Contains(err.Error(), "exceeds engine.threads") {
		t.Fatalf("expected a worker count error, got %v", err)
	}
}

func TestFromEngine(t *testing.T) {
	tests := []struct {
		in      any
		target  reflect.Type
		want    any
		wantErr bool
	}{
		{int64(7), reflect.TypeOf(int(0)), 7, false},
		{int64(300), reflect.TypeOf(int8(0)), nil, true},
		{int64(2), reflect.TypeOf(float64(0)), 2.0, false},
		{1.5, reflect.TypeOf(float32(0)), float32(1.5), false},
		{"s", reflect.TypeOf(""), "s", false},
		{true, reflect.TypeOf(false), true, false},
		{"s", reflect.TypeOf(0), nil, true},
		{nil, reflect.TypeOf((*any)(nil)).Elem(), nil, false},
		{nil, reflect.TypeOf(0), nil, true},
	}
	for _, tt := range tests {
		v, err := fromEngine(tt.in, tt.target)
		if (err != nil) != tt.wantErr {
			t.Errorf("fromEngine(%v, %s) error = %v, wantErr %v", tt.in, tt.target, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if got := v.Interface(); got != tt.want {
			t.Errorf("fromEngine(%v, %s) = %v (%T), want %v", tt.in, tt.target, got, got, tt.want)
		}
	}

	var wt *engine.WrongTypeError
	if _, err := fromEngine("s", reflect.TypeOf(0)); !errors.As(err, &wt) || wt.Got != "String" {
		t.Errorf("expected WrongTypeError, got %v", err)
	}
}

func TestBindingErrorResult(t *testing.T) {
	b := binding{name: "fail", fn: reflect.ValueOf(func(n int) (int, error) {
		if n < 0 {
			return 0, errors.New("negative")
		}
		return n * 2, nil
	})}
	arity, fn, err := b.native()
	if err != nil || arity != 1 {
		t.Fatalf("native() = %d, %v", arity, err)
	}
	c := &engine.CallContext{Context: context.Background()}
	if v, err := fn(c, []any{int64(4)}); err != nil || v != int64(8) {
		t.Errorf("fail(4) = %v, %v", v, err)
	}
	if _, err := fn(c, []any{int64(-1)}); err == nil || err.Error() != "negative" {
		t.Errorf("fail(-1) error = %v", err)
	}

	if _, _, err := (binding{name: "v", fn: reflect.ValueOf(func(...int) {})}).native(); err == nil {
		t.Error("variadic binding accepted")
	}
	if _, _, err := (binding{name: "r", fn: reflect.ValueOf(func() (int, int) { return 0, 0 })}).native(); err == nil {
		t.Error("non-error second result accepted")
	}
}

func TestBindNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.fx")
	if err := os.WriteFile(path, []byte("module Host {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default(path)
	cfg.Engine.Threads = 2

	var nilFunc func(int) int
	for _, fn := range []any{nil, nilFunc} {
		if _, _, err := Init(cfg, Bind("f", fn)); err == nil || !strings.Contains(err.Error(), "nil function") {
			t.Errorf("Bind(%#v): expected a nil function error, got %v", fn, err)
		}
	}

	h, join, err := Init(cfg)
	if err != nil {
		t.Fatalf("init after failed binds: %v", err)
	}
	h.Close()
	if err := join.Join(); err != nil {
		t.Fatal(err)
	}
}
