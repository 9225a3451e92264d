package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrForeignThread is returned when the engine is used from a goroutine
	// other than the one that created it.
	ErrForeignThread = errors.New("engine: called from a foreign thread")

	// ErrNotOffloadable is returned when a loop-only native would run on a
	// worker.
	ErrNotOffloadable = errors.New("engine: function can only run on the runtime thread")

	// ErrTornDown is returned by every operation after Teardown.
	ErrTornDown = errors.New("engine: torn down")

	// ErrDanglingRef is returned when a reference outlived its cell.
	ErrDanglingRef = errors.New("engine: dangling reference")
)

// Exception is an error raised by engine code.
type Exception struct {
	Type    string
	Message string
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

func newException(typ, format string, args ...interface{}) *Exception {
	return &Exception{Type: typ, Message: fmt.Sprintf(format, args...)}
}

// NotFoundKind says what a failed lookup was looking for.
type NotFoundKind int

const (
	NotFoundModule NotFoundKind = iota
	NotFoundGlobal
	NotFoundFunction
)

func (k NotFoundKind) String() string {
	switch k {
	case NotFoundModule:
		return "module"
	case NotFoundGlobal:
		return "global"
	case NotFoundFunction:
		return "function"
	}
	return "name"
}

// NotFoundError reports a missing module, global or function.
type NotFoundError struct {
	Kind NotFoundKind
	Name string
	In   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found in %s", e.Kind, e.Name, e.In)
}

// NotAModuleError reports that a name exists but is not a module.
type NotAModuleError struct {
	Name string
	In   string
}

func (e *NotAModuleError) Error() string {
	return fmt.Sprintf("%s in %s is not a module", e.Name, e.In)
}

// WrongTypeError reports a value whose type tag differs from the expected one.
type WrongTypeError struct {
	Expected string
	Got      string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("wrong type: expected %s, got %s", e.Expected, e.Got)
}

// IncludeNotFoundError is returned when an included file does not exist.
type IncludeNotFoundError struct {
	Path string
}

func (e *IncludeNotFoundError) Error() string {
	return fmt.Sprintf("include: file %s not found", e.Path)
}

// IncludeError is returned when an included file fails to load.
type IncludeError struct {
	Path  string
	Cause error
}

func (e *IncludeError) Error() string {
	return fmt.Sprintf("include %s: %v", e.Path, e.Cause)
}

func (e *IncludeError) Unwrap() error { return e.Cause }
