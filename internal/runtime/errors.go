package runtime

import (
	"errors"
	"fmt"
)

// ErrAlreadyInitialized is returned by Start while another runtime is live.
var ErrAlreadyInitialized = errors.New("runtime: already initialized")

// BootstrapError reports a support script that failed to load or did not
// define the Host module.
type BootstrapError struct {
	Path  string
	Cause error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Path, e.Cause)
}

func (e *BootstrapError) Unwrap() error { return e.Cause }

// FatalError is returned by Join when the runtime thread died. Results of
// tasks that were still running are lost.
type FatalError struct {
	Value any
	Stack []byte
	// Lost is the number of tasks abandoned without delivering a result.
	Lost int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("runtime: fatal: %v (%d tasks lost)", e.Value, e.Lost)
}

// Unwrap exposes a panic value that is itself an error.
func (e *FatalError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
