package profiler

import "fmt"

// ProfilingError reports structurally invalid input. Malformed cell values
// never produce one.
type ProfilingError struct {
	Reason string
	Column string
	Err    error
}

func (e *ProfilingError) Error() string {
	msg := "profiling failed: " + e.Reason
	if e.Column != "" {
		msg = fmt.Sprintf("%s (column %q)", msg, e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProfilingError) Unwrap() error {
	return e.Err
}

// NewProfilingError wraps a source or structural failure.
func NewProfilingError(reason string, err error) *ProfilingError {
	return &ProfilingError{Reason: reason, Err: err}
}
