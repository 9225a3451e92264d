// Package rooting keeps engine values alive while host code uses them.
//
// An Arena owns a fixed budget of root slots. A task opens a Frame carved
// from that budget, then works inside Scopes borrowed from the frame:
//
//	frame, err := arena.Open(16)
//	s, err := frame.Scope()
//	defer s.Close()
//	v, err := s.NewValue(int64(4))
//
// Every slot of every open frame is a root for the engine collector, so a
// value cannot be reclaimed while its slot is live. Closing a scope clears
// the slots it used and invalidates every Value it handed out; a later use
// returns ErrValueExpired instead of touching freed memory.
//
// Frames never grow. Running out of room is an *AllocError, never a panic.
// Arenas, frames and scopes belong to the runtime thread and are not safe
// for concurrent use.
package rooting

import (
	"fmt"

	"github.com/funvibe/fxhost/internal/engine"
)

// Heap is the part of the engine rooting needs.
type Heap interface {
	Alloc(x any) (engine.Ref, error)
	Load(r engine.Ref) (any, error)
}

// Arena is the shared slot budget of all live frames.
type Arena struct {
	heap     Heap
	capacity int
	inUse    int
	nextID   uint64
	frames   map[uint64]*Frame
}

// NewArena creates an arena with capacity slots over heap.
func NewArena(heap Heap, capacity int) *Arena {
	return &Arena{
		heap:     heap,
		capacity: capacity,
		frames:   make(map[uint64]*Frame),
	}
}

// Capacity returns the total slot budget.
func (a *Arena) Capacity() int { return a.capacity }

// InUse returns the slots reserved by open frames.
func (a *Arena) InUse() int { return a.inUse }

// Frames returns the number of open frames.
func (a *Arena) Frames() int { return len(a.frames) }

// Open reserves a frame of capacity slots.
func (a *Arena) Open(capacity int) (*Frame, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("rooting: frame capacity must be positive, got %d", capacity)
	}
	if available := a.capacity - a.inUse; capacity > available {
		return nil, &AllocError{Kind: StackOverflow, Requested: capacity, Available: available}
	}
	a.nextID++
	f := &Frame{
		arena:    a,
		id:       a.nextID,
		capacity: capacity,
		slots:    make([]engine.Ref, 0, capacity),
	}
	a.inUse += capacity
	a.frames[f.id] = f
	return f, nil
}

func (a *Arena) release(f *Frame) {
	if _, ok := a.frames[f.id]; !ok {
		return
	}
	delete(a.frames, f.id)
	a.inUse -= f.capacity
}

// ScanRoots marks every occupied slot of every open frame.
func (a *Arena) ScanRoots(mark func(engine.Ref)) {
	for _, f := range a.frames {
		for _, r := range f.slots {
			mark(r)
		}
	}
}

var _ engine.RootScanner = (*Arena)(nil)
