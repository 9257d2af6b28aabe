package services

import (
	"fmt"
)

// GenerationError means no usable script came back from the text-generation
// service. It is fatal to a workflow.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("script generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// PersistenceError means the generated script could not be written to disk.
// It is fatal to a workflow.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist script %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ExecutionError describes a script run that did not exit cleanly. ExitCode
// is -1 when the process never started or was killed.
type ExecutionError struct {
	TimedOut bool
	ExitCode int
	Err      error
}

func (e *ExecutionError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("script timed out: %v", e.Err)
	case e.ExitCode >= 0:
		return fmt.Sprintf("script exited with code %d: %v", e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("script failed to run: %v", e.Err)
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ValidationError reports a failed warehouse check. Unreachable is set when
// the warehouse could not be contacted at all.
type ValidationError struct {
	Table       string
	Unreachable bool
	Err         error
}

func (e *ValidationError) Error() string {
	if e.Unreachable {
		return fmt.Sprintf("warehouse unreachable: %v", e.Err)
	}
	if e.Table != "" {
		return fmt.Sprintf("validate table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("ingestion validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
