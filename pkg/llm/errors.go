package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies a text-generation failure.
type ErrorType string

const (
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeCancelled ErrorType = "cancelled"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a structured text-generation error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Endpoint != "" {
		// Host only; paths and query strings may carry credentials.
		host := e.Endpoint
		if u, err := url.Parse(e.Endpoint); err == nil && u.Host != "" {
			host = u.Host
		}
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable lets the retry package check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a structured error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a structured error carrying model and endpoint.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// statusCodeOf extracts an HTTP status from typed SDK errors, falling back to
// scanning the message.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	msg := err.Error()
	for _, code := range []int{400, 401, 403, 404, 408, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(msg, fmt.Sprintf("%d", code)) {
			return code
		}
	}
	return 0
}

// ClassifyError categorizes an error into a structured Error. Caller
// cancellation is never retryable; provider timeouts, rate limits and 5xx
// responses are.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	status := statusCodeOf(err)
	lower := strings.ToLower(err.Error())

	classified := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = status
		return e
	}

	switch {
	case errors.Is(err, context.Canceled):
		return classified(ErrorTypeCancelled, "request cancelled", false)
	case status == 401 || status == 403 ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication_error"):
		return classified(ErrorTypeAuth, "authentication failed", false)
	case strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return classified(ErrorTypeModel, "model not found", false)
	case status == 404:
		return classified(ErrorTypeEndpoint, "endpoint not found", false)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset"):
		return classified(ErrorTypeEndpoint, "connection failed", true)
	case errors.Is(err, context.DeadlineExceeded) || status == 408 ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classified(ErrorTypeEndpoint, "request timeout", true)
	case status == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		return classified(ErrorTypeRateLimit, "rate limited", true)
	case status >= 500 || strings.Contains(lower, "overloaded"):
		return classified(ErrorTypeEndpoint, "server error", true)
	default:
		return classified(ErrorTypeUnknown, "llm error", false)
	}
}

// IsRetryable returns true if the error is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
