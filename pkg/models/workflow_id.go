package models

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// WorkflowIDPrefix is prepended to every generated workflow id.
const WorkflowIDPrefix = "etl_"

// WorkflowIDGenerator produces unique, lexicographically increasing workflow
// ids derived from the supplied time. Safe for concurrent use.
type WorkflowIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewWorkflowIDGenerator seeds a monotonic ULID source.
func NewWorkflowIDGenerator(seed time.Time) *WorkflowIDGenerator {
	return &WorkflowIDGenerator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed.UnixNano())), 0),
	}
}

// Next returns a new id for the given instant.
func (g *WorkflowIDGenerator) Next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return WorkflowIDPrefix + strings.ToLower(ulid.MustNew(ulid.Timestamp(t), g.entropy).String())
}

// IsWorkflowID reports whether id has the shape produced by Next.
func IsWorkflowID(id string) bool {
	if !strings.HasPrefix(id, WorkflowIDPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimPrefix(id, WorkflowIDPrefix)))
	return err == nil
}
