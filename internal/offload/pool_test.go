package offload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type callFunc func(ctx context.Context) (any, error)

func (f callFunc) Run(ctx context.Context) (any, error) { return f(ctx) }

func TestPoolBound(t *testing.T) {
	const size, calls = 3, 20
	p := New(size, nil)

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	ids := make(map[uuid.UUID]bool)
	for i := 0; i < calls; i++ {
		id := uuid.New()
		ids[id] = true
		err := p.Submit(id, callFunc(func(context.Context) (any, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return int64(1), nil
		}))
		if err != nil {
			t.Fatal(err)
		}
	}
	p.Close()

	got := 0
	for c := range p.Completions() {
		if !ids[c.ID] {
			t.Fatalf("unknown completion id %s", c.ID)
		}
		delete(ids, c.ID)
		if c.Err != nil || c.Value != int64(1) {
			t.Fatalf("completion = %+v", c)
		}
		got++
	}
	if got != calls {
		t.Fatalf("got %d completions, want %d", got, calls)
	}
	if peak > size || p.MaxInFlight() > size {
		t.Fatalf("peak concurrency %d (pool saw %d), bound %d", peak, p.MaxInFlight(), size)
	}
	if p.Pending() != 0 || p.InFlight() != 0 {
		t.Errorf("pending = %d, in flight = %d after close", p.Pending(), p.InFlight())
	}
}

func TestPoolPanic(t *testing.T) {
	p := New(1, nil)
	if err := p.Submit(uuid.New(), callFunc(func(context.Context) (any, error) { panic("kaboom") })); err != nil {
		t.Fatal(err)
	}
	c := <-p.Completions()
	if c.Err == nil {
		t.Fatal("panic was not reported")
	}
	p.Close()
	if err := p.Submit(uuid.New(), callFunc(func(context.Context) (any, error) { return nil, nil })); err == nil {
		t.Error("submit after close succeeded")
	}
}

func TestPoolAbort(t *testing.T) {
	p := New(1, nil)
	block := callFunc(func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	for i := 0; i < 3; i++ {
		if err := p.Submit(uuid.New(), block); err != nil {
			t.Fatal(err)
		}
	}
	p.Abort()
	p.Close()
	n := 0
	for c := range p.Completions() {
		if !errors.Is(c.Err, context.Canceled) {
			t.Errorf("completion error = %v, want context.Canceled", c.Err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("got %d completions, want 3", n)
	}
}

func TestPoolStartsInSubmissionOrder(t *testing.T) {
	const calls = 10
	p := New(1, nil)
	gate := make(chan struct{})

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < calls; i++ {
		i := i
		err := p.Submit(uuid.New(), callFunc(func(context.Context) (any, error) {
			if i == 0 {
				<-gate
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}))
		if err != nil {
			t.Fatal(err)
		}
	}
	close(gate)
	p.Close()
	for range p.Completions() {
	}

	if len(order) != calls {
		t.Fatalf("ran %d calls, want %d", len(order), calls)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("start order = %v, want submission order", order)
		}
	}
}
