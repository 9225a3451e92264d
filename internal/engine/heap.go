package engine

import "fmt"

// Ref addresses a heap cell. The generation guards against reuse of a freed
// index. The zero Ref is never valid.
type Ref struct {
	index uint32
	gen   uint32
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r.gen == 0 }

func (r Ref) String() string {
	if r.IsZero() {
		return "ref(nil)"
	}
	return fmt.Sprintf("ref(%d@%d)", r.index, r.gen)
}

type cell struct {
	gen    uint32
	live   bool
	marked bool
	value  any
}

// slab is the cell storage of the heap, with a free list.
type slab struct {
	cells []cell
	free  []uint32

	live        int
	sinceGC     int
	allocations uint64
}

func (h *slab) alloc(v any) Ref {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.cells = append(h.cells, cell{})
		idx = uint32(len(h.cells) - 1)
	}
	c := &h.cells[idx]
	c.gen++
	if c.gen == 0 {
		c.gen = 1
	}
	c.live = true
	c.marked = false
	c.value = v

	h.live++
	h.sinceGC++
	h.allocations++
	return Ref{index: idx, gen: c.gen}
}

func (h *slab) get(r Ref) (*cell, error) {
	if r.IsZero() || int(r.index) >= len(h.cells) {
		return nil, fmt.Errorf("%w: %s", ErrDanglingRef, r)
	}
	c := &h.cells[r.index]
	if !c.live || c.gen != r.gen {
		return nil, fmt.Errorf("%w: %s", ErrDanglingRef, r)
	}
	return c, nil
}

func (h *slab) release(idx uint32) {
	c := &h.cells[idx]
	c.live = false
	c.marked = false
	c.value = nil
	h.free = append(h.free, idx)
	h.live--
}

func (h *slab) reset() {
	h.cells = nil
	h.free = nil
	h.live = 0
	h.sinceGC = 0
}
