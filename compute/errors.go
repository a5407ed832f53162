package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGPU is returned when no device backend can be created.
	ErrNoGPU = errors.New("gpu unavailable")
	// ErrUnknownKernel is returned by the host backend for an entry point
	// with no registered implementation.
	ErrUnknownKernel = errors.New("unknown kernel entry point")
)

// CompileError means a kernel could not be built. The program is unusable;
// callers fall back to CPU inference.
type CompileError struct {
	Kernel string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile kernel %q: %v", e.Kernel, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// DispatchError reports buffers or metadata that do not agree at dispatch
// time. It signals a programming error, never a transient condition.
type DispatchError struct {
	Reason string
}

func (e *DispatchError) Error() string {
	return "dispatch: " + e.Reason
}

// Dispatchf builds a *DispatchError.
func Dispatchf(format string, args ...any) error {
	return &DispatchError{Reason: fmt.Sprintf(format, args...)}
}
