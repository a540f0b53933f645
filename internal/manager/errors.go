package manager

import (
	"errors"
	"fmt"
)

// unavailableError means no usable pipeline exists (503).
type unavailableError struct{ reason string }

func (e unavailableError) Error() string { return "pipeline unavailable: " + e.reason }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(reason string) error { return unavailableError{reason: reason} }

// IsUnavailable reports whether err means the pipeline cannot serve requests.
func IsUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e) || IsDependencyUnavailable(err)
}

// badInputError signals a client error (400).
type badInputError struct{ err error }

func (e badInputError) Error() string { return e.err.Error() }
func (e badInputError) Unwrap() error { return e.err }

// ErrBadInput wraps err as a client input error.
func ErrBadInput(err error) error {
	if err == nil {
		return nil
	}
	return badInputError{err: err}
}

// IsBadInput reports whether err was caused by the request itself.
func IsBadInput(err error) bool {
	var e badInputError
	return errors.As(err, &e)
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// ErrTooBusy constructs a tooBusyError for modelID.
func ErrTooBusy(modelID string) error { return tooBusyError{modelID: modelID} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// inferenceError wraps a failure inside the pipeline invocation (500).
type inferenceError struct{ err error }

func (e inferenceError) Error() string { return e.err.Error() }
func (e inferenceError) Unwrap() error { return e.err }

// IsInferenceFailed reports whether err came from the pipeline invocation.
func IsInferenceFailed(err error) bool {
	var e inferenceError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g. the
// pipeline worker) so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// AssemblyError records which assembly step failed.
type AssemblyError struct {
	Step Step
	Err  error
}

func (e *AssemblyError) Error() string { return fmt.Sprintf("assembly step %q failed: %v", e.Step, e.Err) }
func (e *AssemblyError) Unwrap() error { return e.Err }
