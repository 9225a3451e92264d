package rooting

import (
	"fmt"

	"github.com/funvibe/fxhost/internal/engine"
)

// Value is a rooted engine value. It is only usable while the scope that
// created it is open.
type Value struct {
	scope *Scope
	ref   engine.Ref
}

// Valid reports whether v can still be used.
func (v Value) Valid() bool {
	return v.scope != nil && !v.scope.closed && !v.scope.frame.closed
}

// Ref returns the engine reference held by v.
func (v Value) Ref() (engine.Ref, error) {
	if !v.Valid() {
		return engine.Ref{}, ErrValueExpired
	}
	return v.ref, nil
}

// Load returns the plain Go value stored in the engine.
func (v Value) Load() (any, error) {
	if !v.Valid() {
		return nil, ErrValueExpired
	}
	return v.scope.frame.arena.heap.Load(v.ref)
}

// Kind returns the engine type tag of v.
func (v Value) Kind() (engine.Kind, error) {
	x, err := v.Load()
	if err != nil {
		return engine.KindNothing, err
	}
	return engine.KindOf(x), nil
}

// Scope returns the scope v is rooted in.
func (v Value) Scope() *Scope { return v.scope }

func (v Value) String() string {
	x, err := v.Load()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return engine.Show(x)
}
