package llm

import (
	"context"
	"net/http"
)

type contextKey string

const workflowIDKey contextKey = "workflow_id"

// requestIDHeader carries the workflow id to the provider so requests can be
// correlated with workflow records.
const requestIDHeader = "X-Request-Id"

// WithWorkflowID tags ctx with the workflow a request belongs to.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, workflowIDKey, workflowID)
}

// WorkflowIDFrom returns the workflow id attached to ctx, if any.
func WorkflowIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(workflowIDKey).(string)
	return id
}

// contextAwareTransport copies the workflow id from the request context into
// the X-Request-Id header.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := WorkflowIDFrom(req.Context()); id != "" && req.Header.Get(requestIDHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(requestIDHeader, id)
	}
	return t.base.RoundTrip(req)
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: &contextAwareTransport{base: http.DefaultTransport}}
}
