package rooting

import "github.com/funvibe/fxhost/internal/engine"

// Frame is a fixed-capacity run of root slots.
type Frame struct {
	arena    *Arena
	id       uint64
	capacity int
	slots    []engine.Ref

	// scopes is the stack of open scopes, root first.
	scopes     []*Scope
	rootOpened bool
	closed     bool
}

// Capacity returns the number of slots in the frame.
func (f *Frame) Capacity() int { return f.capacity }

// Len returns the number of occupied slots.
func (f *Frame) Len() int { return len(f.slots) }

// Closed reports whether the frame has been released.
func (f *Frame) Closed() bool { return f.closed }

// Scope opens the root scope of f. A frame has exactly one root scope;
// closing it closes the frame.
func (f *Frame) Scope() (*Scope, error) {
	if f.closed {
		return nil, ErrScopeClosed
	}
	if f.rootOpened {
		return nil, ErrRootScopeOpened
	}
	f.rootOpened = true
	s := &Scope{frame: f, base: 0, limit: f.capacity}
	f.scopes = append(f.scopes, s)
	return s, nil
}

// Close closes every open scope and returns the slots to the arena.
func (f *Frame) Close() {
	if f.closed {
		return
	}
	if len(f.scopes) > 0 {
		f.scopes[0].Close()
		return
	}
	f.release()
}

func (f *Frame) release() {
	for i := range f.slots {
		f.slots[i] = engine.Ref{}
	}
	f.slots = f.slots[:0]
	f.closed = true
	f.arena.release(f)
}

// Current returns the innermost open scope, or nil once the frame is closed.
func (f *Frame) Current() *Scope { return f.top() }

func (f *Frame) top() *Scope {
	if len(f.scopes) == 0 {
		return nil
	}
	return f.scopes[len(f.scopes)-1]
}

// Scope is a nested borrow of a Frame. Values it creates live until it
// closes.
type Scope struct {
	frame  *Frame
	parent *Scope
	depth  int
	base   int // first slot owned by this scope
	limit  int // slots at or past limit belong to no one
	closed bool
}

// Frame returns the frame s borrows.
func (s *Scope) Frame() *Frame { return s.frame }

// Depth is 0 for the root scope.
func (s *Scope) Depth() int { return s.depth }

// Closed reports whether s has been closed.
func (s *Scope) Closed() bool { return s.closed }

// Available returns how many more values s can root.
func (s *Scope) Available() int {
	if s.closed {
		return 0
	}
	return s.limit - len(s.frame.slots)
}

func (s *Scope) active() error {
	if s.closed || s.frame.closed {
		return ErrScopeClosed
	}
	if s.frame.top() != s {
		return ErrScopeNotActive
	}
	return nil
}

// Reserve opens a child scope that can root exactly n more values. The
// child shares the frame storage and must close before s is used again.
func (s *Scope) Reserve(n int) (*Scope, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	if available := s.Available(); n < 0 || n > available {
		return nil, &AllocError{Kind: FrameOverflow, Requested: n, Available: available}
	}
	base := len(s.frame.slots)
	child := &Scope{
		frame:  s.frame,
		parent: s,
		depth:  s.depth + 1,
		base:   base,
		limit:  base + n,
	}
	s.frame.scopes = append(s.frame.scopes, child)
	return child, nil
}

// NewValue boxes x in the engine heap and roots it in s.
func (s *Scope) NewValue(x any) (Value, error) {
	if err := s.active(); err != nil {
		return Value{}, err
	}
	if s.Available() < 1 {
		return Value{}, &AllocError{Kind: FrameOverflow, Requested: 1, Available: 0}
	}
	r, err := s.frame.arena.heap.Alloc(x)
	if err != nil {
		return Value{}, err
	}
	return s.push(r), nil
}

// Root roots an existing reference in s, typically the result of a call.
func (s *Scope) Root(r engine.Ref) (Value, error) {
	if err := s.active(); err != nil {
		return Value{}, err
	}
	if s.Available() < 1 {
		return Value{}, &AllocError{Kind: FrameOverflow, Requested: 1, Available: 0}
	}
	if _, err := s.frame.arena.heap.Load(r); err != nil {
		return Value{}, err
	}
	return s.push(r), nil
}

func (s *Scope) push(r engine.Ref) Value {
	s.frame.slots = append(s.frame.slots, r)
	return Value{scope: s, ref: r}
}

// Close releases every slot rooted since s opened. Open children close
// first. Closing the root scope closes the frame. Close is idempotent.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	f := s.frame
	for top := f.top(); top != nil && top != s; top = f.top() {
		top.Close()
	}
	for i := s.base; i < len(f.slots); i++ {
		f.slots[i] = engine.Ref{}
	}
	f.slots = f.slots[:s.base]
	f.scopes = f.scopes[:len(f.scopes)-1]
	s.closed = true

	if s.parent == nil {
		f.release()
	}
}
