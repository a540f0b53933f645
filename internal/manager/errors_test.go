package manager

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	if !IsUnavailable(ErrUnavailable("x")) || IsUnavailable(errBoom) {
		t.Fatalf("IsUnavailable mismatch")
	}
	if !IsUnavailable(fmt.Errorf("wrap: %w", ErrDependencyUnavailable("worker"))) {
		t.Fatalf("dependency errors should count as unavailable")
	}
	if !IsBadInput(ErrBadInput(errBoom)) || ErrBadInput(nil) != nil {
		t.Fatalf("IsBadInput mismatch")
	}
	if !errors.Is(ErrBadInput(errBoom), errBoom) {
		t.Fatalf("bad input should unwrap")
	}
	if !IsTooBusy(fmt.Errorf("wrap: %w", ErrTooBusy("m"))) {
		t.Fatalf("IsTooBusy mismatch")
	}
	if !IsInferenceFailed(inferenceError{err: errBoom}) || !errors.Is(inferenceError{err: errBoom}, errBoom) {
		t.Fatalf("IsInferenceFailed mismatch")
	}
}

func TestAssemblyErrorMessage(t *testing.T) {
	err := fmt.Errorf("load: %w", &AssemblyError{Step: StepWeights, Err: errBoom})
	var ae *AssemblyError
	if !errors.As(err, &ae) || ae.Step != StepWeights || !errors.Is(err, errBoom) {
		t.Fatalf("unexpected AssemblyError chain: %v", err)
	}
	if want := `load: assembly step "weights" failed: boom`; err.Error() != want {
		t.Fatalf("message=%q want %q", err.Error(), want)
	}
}
