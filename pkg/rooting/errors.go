package rooting

import (
	"errors"
	"fmt"
)

var (
	// ErrScopeClosed is returned when a closed scope is used.
	ErrScopeClosed = errors.New("rooting: scope is closed")

	// ErrScopeNotActive is returned when a scope with an open child is used
	// to create values. Only the innermost open scope of a frame may root.
	ErrScopeNotActive = errors.New("rooting: scope is not the innermost open scope")

	// ErrValueExpired is returned when a value outlives its scope.
	ErrValueExpired = errors.New("rooting: value used after its scope closed")

	// ErrRootScopeOpened is returned by Frame.Scope on its second call.
	ErrRootScopeOpened = errors.New("rooting: frame root scope already opened")
)

// AllocKind distinguishes the two capacity failures.
type AllocKind int

const (
	// StackOverflow: the arena cannot supply a new frame.
	StackOverflow AllocKind = iota
	// FrameOverflow: a frame or scope has no room for more slots.
	FrameOverflow
)

func (k AllocKind) String() string {
	switch k {
	case StackOverflow:
		return "stack overflow"
	case FrameOverflow:
		return "frame overflow"
	}
	return fmt.Sprintf("AllocKind(%d)", int(k))
}

// AllocError reports a capacity violation.
type AllocError struct {
	Kind      AllocKind
	Requested int
	Available int
}

func (e *AllocError) Error() string {
	switch e.Kind {
	case StackOverflow:
		return fmt.Sprintf("rooting: stack overflow: requested %d slots, %d available in the arena", e.Requested, e.Available)
	default:
		return fmt.Sprintf("rooting: frame overflow: cannot root %d more values, %d slots available", e.Requested, e.Available)
	}
}

// IsCapacity reports whether err is an AllocError.
func IsCapacity(err error) bool {
	var ae *AllocError
	return errors.As(err, &ae)
}
