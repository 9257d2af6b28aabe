package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ScriptStore writes generated scripts to durable storage.
type ScriptStore interface {
	// Save writes the script for a workflow and returns its path. Errors are
	// *PersistenceError.
	Save(ctx context.Context, workflowID, script string) (string, error)
}

type fileScriptStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileScriptStore stores scripts as <dir>/<workflow_id>_etl_script.py.
func NewFileScriptStore(dir string, logger *zap.Logger) ScriptStore {
	return &fileScriptStore{
		dir:    dir,
		logger: logger.Named("script-store"),
	}
}

var _ ScriptStore = (*fileScriptStore)(nil)

// ScriptFileName returns the file name used for a workflow's script.
func ScriptFileName(workflowID string) string {
	return workflowID + "_etl_script.py"
}

func (s *fileScriptStore) Save(ctx context.Context, workflowID, script string) (string, error) {
	path := filepath.Join(s.dir, ScriptFileName(workflowID))
	if err := ctx.Err(); err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &PersistenceError{Path: abs, Err: fmt.Errorf("create scripts dir: %w", err)}
	}

	tmp, err := os.CreateTemp(s.dir, "."+workflowID+"-*.tmp")
	if err != nil {
		return "", &PersistenceError{Path: abs, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(script); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", &PersistenceError{Path: abs, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", &PersistenceError{Path: abs, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", &PersistenceError{Path: abs, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", &PersistenceError{Path: abs, Err: err}
	}
	if err := os.Rename(tmpName, abs); err != nil {
		cleanup()
		return "", &PersistenceError{Path: abs, Err: err}
	}

	s.logger.Info("Script saved",
		zap.String("workflow_id", workflowID),
		zap.String("path", abs))
	return abs, nil
}
