package engine

import "time"

// RootScanner reports the references it keeps alive. The collector calls
// ScanRoots during the mark phase, on the runtime thread.
type RootScanner interface {
	ScanRoots(mark func(Ref))
}

// GCStats describes the heap after the last collection.
type GCStats struct {
	Live        int
	Freed       int
	Collections int
	Allocations uint64
	Pause       time.Duration
}

// AddRootScanner registers s as a source of roots.
func (e *Engine) AddRootScanner(s RootScanner) error {
	if err := e.check(); err != nil {
		return err
	}
	e.scanners = append(e.scanners, s)
	return nil
}

// Collect runs a full mark-and-sweep collection.
func (e *Engine) Collect() (GCStats, error) {
	if err := e.check(); err != nil {
		return GCStats{}, err
	}
	return e.collect(), nil
}

// Safepoint collects if enough allocations happened since the last
// collection. It reports whether a collection ran.
func (e *Engine) Safepoint() (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	if e.heap.sinceGC < e.gcThreshold {
		return false, nil
	}
	e.collect()
	return true, nil
}

// Stats returns the statistics of the last collection with the current
// live count.
func (e *Engine) Stats() GCStats {
	s := e.stats
	s.Live = e.heap.live
	s.Allocations = e.heap.allocations
	return s
}

func (e *Engine) collect() GCStats {
	start := time.Now()
	h := &e.heap

	mark := func(r Ref) {
		if c, err := h.get(r); err == nil {
			c.marked = true
		}
	}
	for _, s := range e.scanners {
		s.ScanRoots(mark)
	}

	freed := 0
	for i := range h.cells {
		c := &h.cells[i]
		if !c.live {
			continue
		}
		if c.marked {
			c.marked = false
			continue
		}
		h.release(uint32(i))
		freed++
	}
	h.sinceGC = 0

	e.stats.Freed = freed
	e.stats.Collections++
	e.stats.Pause = time.Since(start)
	e.stats.Live = h.live
	e.stats.Allocations = h.allocations

	e.logger.Debug("gc", "live", h.live, "freed", freed, "pause", e.stats.Pause)
	return e.stats
}
