package engine

import (
	"container/heap"
	"time"
)

type event struct {
	due time.Time
	seq uint64
	fn  func()
}

// eventQueue orders events by due time, then by scheduling order.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// After schedules fn to run on the runtime thread once d has elapsed. It
// runs during the first ProcessEvents call after that.
func (e *Engine) After(d time.Duration, fn func()) error {
	if err := e.check(); err != nil {
		return err
	}
	e.seq++
	heap.Push(&e.events, &event{due: time.Now().Add(d), seq: e.seq, fn: fn})
	return nil
}

// Defer schedules fn for the next ProcessEvents call.
func (e *Engine) Defer(fn func()) error {
	return e.After(0, fn)
}

// ProcessEvents runs every event that is due and returns how many ran.
// Events scheduled by a running event wait for the next call.
func (e *Engine) ProcessEvents() (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	now := time.Now()
	var due []*event
	for e.events.Len() > 0 && !e.events[0].due.After(now) {
		due = append(due, heap.Pop(&e.events).(*event))
	}
	for _, ev := range due {
		ev.fn()
	}
	return len(due), nil
}

// PendingEvents returns the number of scheduled events.
func (e *Engine) PendingEvents() int {
	return len(e.events)
}

// NextEvent returns the due time of the earliest event.
func (e *Engine) NextEvent() (time.Time, bool) {
	if len(e.events) == 0 {
		return time.Time{}, false
	}
	return e.events[0].due, true
}
