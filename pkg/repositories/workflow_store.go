package repositories

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-etl/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// WorkflowStore is the durable record store. Writes for one workflow id are
// serialized; once the stored record is terminal, Put returns
// apperrors.ErrRecordFinalized. Records are never deleted.
type WorkflowStore interface {
	// Put writes a snapshot of the record and appends it to its history.
	Put(ctx context.Context, record *models.WorkflowRecord) error

	// Get returns the latest snapshot or apperrors.ErrNotFound.
	Get(ctx context.Context, workflowID string) (*models.WorkflowRecord, error)

	// List returns the latest snapshots, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*models.WorkflowRecord, error)

	// History returns every snapshot written for the id, oldest first.
	History(ctx context.Context, workflowID string) ([]*models.WorkflowRecord, error)
}

// Store backends selectable by configuration.
const (
	StoreTypeMemory   = "memory"
	StoreTypeFile     = "file"
	StoreTypePostgres = "postgres"
)

var workflowIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validateWorkflowID(id string) error {
	if !workflowIDPattern.MatchString(id) {
		return fmt.Errorf("%w: workflow id %q", apperrors.ErrInvalidInput, id)
	}
	return nil
}

func validateRecord(record *models.WorkflowRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", apperrors.ErrInvalidInput)
	}
	if err := validateWorkflowID(record.WorkflowID); err != nil {
		return err
	}
	if !models.IsValidWorkflowStatus(record.Status) {
		return fmt.Errorf("%w: status %q", apperrors.ErrInvalidInput, record.Status)
	}
	return nil
}

// sortNewestFirst orders by creation time, then id. Ids are time-ordered so
// the tie-break keeps records created in the same instant stable.
func sortNewestFirst(records []*models.WorkflowRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.WorkflowID > b.WorkflowID
	})
}

func applyLimit(records []*models.WorkflowRecord, limit int) []*models.WorkflowRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

// keyedMutex hands out one mutex per workflow id and forgets it once no
// writer holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until the id is free and returns the matching unlock.
func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
