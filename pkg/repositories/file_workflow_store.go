package repositories

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/ekaya-inc/ekaya-etl/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

const (
	workflowLogSuffix = "_workflow_log.json"
	historySuffix     = "_history.jsonl"
)

// historyEntry is one line of the append-only history file.
type historyEntry struct {
	RecordedAt time.Time              `json:"recorded_at"`
	Record     *models.WorkflowRecord `json:"record"`
}

type fileWorkflowStore struct {
	dir    string
	clock  clock.PassiveClock
	logger *zap.Logger
	locks  *keyedMutex
}

// NewFileWorkflowStore keeps one <id>_workflow_log.json per workflow holding
// the latest snapshot, plus an <id>_history.jsonl with every snapshot.
func NewFileWorkflowStore(dir string, clk clock.PassiveClock, logger *zap.Logger) (WorkflowStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workflow log directory: %w", err)
	}
	return &fileWorkflowStore{
		dir:    dir,
		clock:  clk,
		logger: logger.Named("file-workflow-store"),
		locks:  newKeyedMutex(),
	}, nil
}

var _ WorkflowStore = (*fileWorkflowStore)(nil)

func (s *fileWorkflowStore) logPath(id string) string {
	return filepath.Join(s.dir, id+workflowLogSuffix)
}

func (s *fileWorkflowStore) historyPath(id string) string {
	return filepath.Join(s.dir, id+historySuffix)
}

func (s *fileWorkflowStore) Put(ctx context.Context, record *models.WorkflowRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	unlock := s.locks.Lock(record.WorkflowID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := s.read(record.WorkflowID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if current.IsTerminal() {
		return apperrors.ErrRecordFinalized
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflow record: %w", err)
	}
	if err := writeFileAtomic(s.logPath(record.WorkflowID), body); err != nil {
		return fmt.Errorf("write workflow log: %w", err)
	}

	line, err := json.Marshal(historyEntry{RecordedAt: s.clock.Now().UTC(), Record: record})
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	if err := appendLine(s.historyPath(record.WorkflowID), line); err != nil {
		return fmt.Errorf("append workflow history: %w", err)
	}

	s.logger.Debug("Stored workflow record",
		zap.String("workflow_id", record.WorkflowID),
		zap.String("status", string(record.Status)))
	return nil
}

func (s *fileWorkflowStore) Get(_ context.Context, workflowID string) (*models.WorkflowRecord, error) {
	if err := validateWorkflowID(workflowID); err != nil {
		return nil, err
	}
	return s.read(workflowID)
}

func (s *fileWorkflowStore) read(workflowID string) (*models.WorkflowRecord, error) {
	body, err := os.ReadFile(s.logPath(workflowID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow log: %w", err)
	}

	var record models.WorkflowRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode workflow log %s: %w", workflowID, err)
	}
	return &record, nil
}

func (s *fileWorkflowStore) List(_ context.Context, limit int) ([]*models.WorkflowRecord, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+workflowLogSuffix))
	if err != nil {
		return nil, fmt.Errorf("list workflow logs: %w", err)
	}

	records := make([]*models.WorkflowRecord, 0, len(matches))
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), workflowLogSuffix)
		record, err := s.read(id)
		if err != nil {
			s.logger.Warn("Skipping unreadable workflow log",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	sortNewestFirst(records)
	return applyLimit(records, limit), nil
}

func (s *fileWorkflowStore) History(_ context.Context, workflowID string) ([]*models.WorkflowRecord, error) {
	if err := validateWorkflowID(workflowID); err != nil {
		return nil, err
	}

	f, err := os.Open(s.historyPath(workflowID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open workflow history: %w", err)
	}
	defer f.Close()

	var out []*models.WorkflowRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry historyEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decode history line %d: %w", lineNo, err)
		}
		out = append(out, entry.Record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read workflow history: %w", err)
	}
	return out, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
