package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"k8s.io/utils/clock"

	"github.com/ekaya-inc/ekaya-etl/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-etl/pkg/database"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

type postgresWorkflowStore struct {
	db    *database.DB
	clock clock.PassiveClock
}

// NewPostgresWorkflowStore stores records as JSONB. Schema comes from
// migrations/001_workflow_records.
func NewPostgresWorkflowStore(db *database.DB, clk clock.PassiveClock) WorkflowStore {
	return &postgresWorkflowStore{db: db, clock: clk}
}

var _ WorkflowStore = (*postgresWorkflowStore)(nil)

// Put serializes writers for the same id with SELECT ... FOR UPDATE. A
// first insert has no row to lock; concurrent first inserts are resolved by
// the upsert and the history (workflow_id, seq) constraint.
func (s *postgresWorkflowStore) Put(ctx context.Context, record *models.WorkflowRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal workflow record: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var terminal bool
	err = tx.QueryRow(ctx,
		`SELECT is_terminal FROM etl_workflow_records WHERE workflow_id = $1 FOR UPDATE`,
		record.WorkflowID).Scan(&terminal)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock workflow record: %w", err)
	}
	if terminal {
		return apperrors.ErrRecordFinalized
	}

	upsert := `
		INSERT INTO etl_workflow_records (
			workflow_id, status, current_stage, is_terminal, record,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workflow_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_stage = EXCLUDED.current_stage,
			is_terminal = EXCLUDED.is_terminal,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`

	_, err = tx.Exec(ctx, upsert,
		record.WorkflowID, record.Status, record.CurrentStage, record.IsTerminal(), body,
		record.CreatedAt, record.UpdatedAt, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store workflow record: %w", err)
	}

	history := `
		INSERT INTO etl_workflow_history (id, workflow_id, seq, status, record, recorded_at)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5
		FROM etl_workflow_history WHERE workflow_id = $2`

	_, err = tx.Exec(ctx, history,
		uuid.New(), record.WorkflowID, record.Status, body, s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append workflow history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit workflow record: %w", err)
	}
	return nil
}

func (s *postgresWorkflowStore) Get(ctx context.Context, workflowID string) (*models.WorkflowRecord, error) {
	var body []byte
	err := s.db.QueryRow(ctx,
		`SELECT record FROM etl_workflow_records WHERE workflow_id = $1`,
		workflowID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow record: %w", err)
	}
	return decodeRecord(body)
}

func (s *postgresWorkflowStore) List(ctx context.Context, limit int) ([]*models.WorkflowRecord, error) {
	query := `SELECT record FROM etl_workflow_records ORDER BY created_at DESC, workflow_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow records: %w", err)
	}
	return scanRecords(rows)
}

func (s *postgresWorkflowStore) History(ctx context.Context, workflowID string) ([]*models.WorkflowRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record FROM etl_workflow_history WHERE workflow_id = $1 ORDER BY seq`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow history: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return records, nil
}

func scanRecords(rows pgx.Rows) ([]*models.WorkflowRecord, error) {
	defer rows.Close()

	var out []*models.WorkflowRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan workflow record: %w", err)
		}
		record, err := decodeRecord(body)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow records: %w", err)
	}
	return out, nil
}

func decodeRecord(body []byte) (*models.WorkflowRecord, error) {
	var record models.WorkflowRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode workflow record: %w", err)
	}
	return &record, nil
}
