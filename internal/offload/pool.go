// Package offload runs prepared calls on a bounded set of workers and
// reports their completions back to the runtime loop.
package offload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Call is work that is safe to run off the runtime thread.
type Call interface {
	Run(ctx context.Context) (any, error)
}

// Completion reports the outcome of one call.
type Completion struct {
	ID       uuid.UUID
	Value    any
	Err      error
	Finished time.Time
}

// Pool bounds the number of calls running at once. Calls beyond the bound
// wait in a queue and start in submission order.
type Pool struct {
	size   int64
	sem    *semaphore.Weighted
	done   chan Completion
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu    sync.Mutex
	queue []queued
	wake  chan struct{}

	pending     atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	closed      atomic.Bool
}

type queued struct {
	id   uuid.UUID
	call Call
}

// New creates a pool of size workers.
func New(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		size:   int64(size),
		sem:    semaphore.NewWeighted(int64(size)),
		done:   make(chan Completion, size),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "offload"),
		wake:   make(chan struct{}, 1),
	}
	go p.dispatch()
	return p
}

// Size returns the worker bound.
func (p *Pool) Size() int { return int(p.size) }

// Completions delivers one Completion per submitted call. The channel is
// closed by Close once every call has reported.
func (p *Pool) Completions() <-chan Completion { return p.done }

// Pending returns the number of submitted calls that have not reported yet.
func (p *Pool) Pending() int { return int(p.pending.Load()) }

// InFlight returns the number of calls running right now.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// MaxInFlight returns the highest concurrency observed so far.
func (p *Pool) MaxInFlight() int { return int(p.maxInFlight.Load()) }

// Submit queues c. The completion carries id.
func (p *Pool) Submit(id uuid.UUID, c Call) error {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return fmt.Errorf("offload: pool closed")
	}
	p.queue = append(p.queue, queued{id: id, call: c})
	p.pending.Add(1)
	p.wg.Add(1)
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued call. ok is false once the pool is closed and
// the queue is empty.
func (p *Pool) next() (q queued, ok bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			q = p.queue[0]
			p.queue[0] = queued{}
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return q, true
		}
		closed := p.closed.Load()
		p.mu.Unlock()
		if closed {
			return queued{}, false
		}
		<-p.wake
	}
}

// dispatch hands queued calls to workers one at a time, so a call only
// takes a worker after every call submitted before it has.
func (p *Pool) dispatch() {
	for {
		q, ok := p.next()
		if !ok {
			return
		}
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.report(Completion{ID: q.id, Err: err})
			continue
		}
		go p.worker(q)
	}
}

func (p *Pool) worker(q queued) {
	n := p.inFlight.Add(1)
	for {
		peak := p.maxInFlight.Load()
		if n <= peak || p.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	comp := Completion{ID: q.id}
	comp.Value, comp.Err = p.safeRun(q.call)
	p.inFlight.Add(-1)
	p.sem.Release(1)
	p.report(comp)
}

func (p *Pool) report(c Completion) {
	c.Finished = time.Now()
	p.done <- c
	p.pending.Add(-1)
	p.wg.Done()
}

func (p *Pool) safeRun(c Call) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("offloaded call panicked", "panic", r)
			err = fmt.Errorf("offload: panic: %v", r)
		}
	}()
	return c.Run(p.ctx)
}

// Close stops accepting calls, waits for the outstanding ones and closes
// the completion channel. The caller must keep draining Completions until
// it is closed. Abort cancels calls that are still running.
func (p *Pool) Close() {
	p.mu.Lock()
	already := p.closed.Swap(true)
	p.mu.Unlock()
	if already {
		return
	}
	p.signal()
	go func() {
		p.wg.Wait()
		p.cancel()
		close(p.done)
	}()
}

// Abort cancels every queued and running call. Their completions still
// arrive, carrying the cancellation error.
func (p *Pool) Abort() {
	p.cancel()
}
