package repositories

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-etl/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

type memoryWorkflowStore struct {
	locks *keyedMutex

	mu      sync.RWMutex
	latest  map[string]*models.WorkflowRecord
	history map[string][]*models.WorkflowRecord
}

// NewMemoryWorkflowStore creates a process-local store. Used by tests and
// one-shot CLI runs that do not need durability.
func NewMemoryWorkflowStore() WorkflowStore {
	return &memoryWorkflowStore{
		locks:   newKeyedMutex(),
		latest:  make(map[string]*models.WorkflowRecord),
		history: make(map[string][]*models.WorkflowRecord),
	}
}

var _ WorkflowStore = (*memoryWorkflowStore)(nil)

func (s *memoryWorkflowStore) Put(ctx context.Context, record *models.WorkflowRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	unlock := s.locks.Lock(record.WorkflowID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	current := s.latest[record.WorkflowID]
	s.mu.RUnlock()
	if current.IsTerminal() {
		return apperrors.ErrRecordFinalized
	}

	snapshot := record.Clone()
	s.mu.Lock()
	s.latest[record.WorkflowID] = snapshot
	s.history[record.WorkflowID] = append(s.history[record.WorkflowID], snapshot)
	s.mu.Unlock()
	return nil
}

func (s *memoryWorkflowStore) Get(_ context.Context, workflowID string) (*models.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.latest[workflowID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *memoryWorkflowStore) List(_ context.Context, limit int) ([]*models.WorkflowRecord, error) {
	s.mu.RLock()
	records := make([]*models.WorkflowRecord, 0, len(s.latest))
	for _, r := range s.latest {
		records = append(records, r.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(records)
	return applyLimit(records, limit), nil
}

func (s *memoryWorkflowStore) History(_ context.Context, workflowID string) ([]*models.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots, ok := s.history[workflowID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := make([]*models.WorkflowRecord, len(snapshots))
	for i, r := range snapshots {
		out[i] = r.Clone()
	}
	return out, nil
}
