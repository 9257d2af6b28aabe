package stages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/profiler"
)

// ============================================================================
// Mocks
// ============================================================================

type mockLoader struct {
	ds  *models.Dataset
	err error
}

func (m *mockLoader) Load(ctx context.Context, locator string) (*models.Dataset, error) {
	return m.ds, m.err
}

type mockAnnotator struct {
	text string
	err  error
}

func (m *mockAnnotator) Annotate(ctx context.Context, file models.FileRef, p *models.DatasetProfile) (*models.DatasetProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return p.WithInsight(m.text), nil
}

type mockGenerator struct {
	script      string
	err         error
	gotProfile  *models.DatasetProfile
	gotTarget   string
	calledTimes int
}

func (m *mockGenerator) GenerateScript(ctx context.Context, file models.FileRef, requirements string, profile *models.DatasetProfile, targetTable string) (string, error) {
	m.calledTimes++
	m.gotProfile = profile
	m.gotTarget = targetTable
	return m.script, m.err
}

type mockRunner struct {
	run    *ScriptRun
	err    error
	gotEnv []string
}

func (m *mockRunner) RunScript(ctx context.Context, scriptPath string, env []string) (*ScriptRun, error) {
	m.gotEnv = env
	return m.run, m.err
}

type mockChecker struct {
	check     *IngestionCheck
	err       error
	gotTables []string
	gotMin    int64
}

func (m *mockChecker) CheckIngestion(ctx context.Context, tables []string, expectedMinRows int64) (*IngestionCheck, error) {
	m.gotTables = tables
	m.gotMin = expectedMinRows
	return m.check, m.err
}

func newRecord() *models.WorkflowRecord {
	return models.NewWorkflowRecord("etl_test", models.FileRef{
		Locator:  "/data/customers.csv",
		Filename: "customers.csv",
	}, "load everything", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func customers() *models.Dataset {
	return &models.Dataset{
		Name: "customers.csv",
		Columns: []models.Column{
			{Name: "id", Values: []any{"1", "2", "3"}},
			{Name: "name", Values: []any{"Ada", "Grace", "Linus"}},
		},
	}
}

// ============================================================================
// ProfileStage
// ============================================================================

func TestProfileStage_ProfilesAndAnnotates(t *testing.T) {
	stage := NewProfileStage(
		&mockLoader{ds: customers()},
		profiler.New(profiler.DefaultOptions(), zap.NewNop()),
		&mockAnnotator{text: "Consider a unique index on id."},
		zap.NewNop(),
	)

	rec, err := stage.Execute(context.Background(), newRecord())

	require.NoError(t, err)
	require.NotNil(t, rec.Profile)
	assert.Equal(t, 3, rec.Profile.TotalRows)
	assert.Equal(t, "Consider a unique index on id.", rec.Profile.InsightText)
	assert.Empty(t, rec.InsightError)
	assert.Equal(t, models.WorkflowStatusProfiling, stage.Name())
}

func TestProfileStage_AnnotationFailureKeepsProfile(t *testing.T) {
	stage := NewProfileStage(
		&mockLoader{ds: customers()},
		profiler.New(profiler.DefaultOptions(), zap.NewNop()),
		&mockAnnotator{err: errors.New("rate limited")},
		zap.NewNop(),
	)

	rec, err := stage.Execute(context.Background(), newRecord())

	require.NoError(t, err)
	require.NotNil(t, rec.Profile)
	assert.Empty(t, rec.Profile.InsightText)
	assert.Contains(t, rec.InsightError, "rate limited")
}

func TestProfileStage_LoadFailureIsProfilingError(t *testing.T) {
	stage := NewProfileStage(&mockLoader{err: errors.New("no such file")},
		profiler.New(profiler.DefaultOptions(), zap.NewNop()), nil, zap.NewNop())

	rec, err := stage.Execute(context.Background(), newRecord())

	assert.Nil(t, rec)
	var pe *profiler.ProfilingError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "no such file")
}

func TestProfileStage_RaggedDatasetFails(t *testing.T) {
	ragged := &models.Dataset{Columns: []models.Column{
		{Name: "a", Values: []any{1, 2}},
		{Name: "b", Values: []any{1}},
	}}
	stage := NewProfileStage(&mockLoader{ds: ragged},
		profiler.New(profiler.DefaultOptions(), zap.NewNop()), nil, zap.NewNop())

	_, err := stage.Execute(context.Background(), newRecord())

	var pe *profiler.ProfilingError
	assert.ErrorAs(t, err, &pe)
}

// ============================================================================
// GenerateStage / PersistStage
// ============================================================================

func TestGenerateStage_PassesTargetTableAndProfile(t *testing.T) {
	gen := &mockGenerator{script: "print('hi')\n"}
	stage := NewGenerateStage(gen, zap.NewNop())
	in := newRecord()
	in.Profile = &models.DatasetProfile{TotalRows: 3}

	rec, err := stage.Execute(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", rec.GeneratedScript)
	assert.Equal(t, "ETL_CUSTOMERS", gen.gotTarget)
	assert.Same(t, in.Profile, gen.gotProfile)
}

func TestGenerateStage_DegradedModeSendsNilProfile(t *testing.T) {
	gen := &mockGenerator{script: "x = 1\n"}
	stage := NewGenerateStage(gen, zap.NewNop())

	_, err := stage.Execute(context.Background(), newRecord())

	require.NoError(t, err)
	assert.Nil(t, gen.gotProfile)
}

func TestGenerateStage_Failure(t *testing.T) {
	stage := NewGenerateStage(&mockGenerator{err: errors.New("model offline")}, zap.NewNop())

	rec, err := stage.Execute(context.Background(), newRecord())

	assert.Nil(t, rec)
	assert.EqualError(t, err, "model offline")
}

type mockSaver struct {
	path string
	err  error
}

func (m *mockSaver) Save(ctx context.Context, workflowID, script string) (string, error) {
	return m.path, m.err
}

func TestPersistStage(t *testing.T) {
	stage := NewPersistStage(&mockSaver{path: "/scripts/etl_test_etl_script.py"}, zap.NewNop())
	in := newRecord()
	in.GeneratedScript = "x = 1\n"

	rec, err := stage.Execute(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "/scripts/etl_test_etl_script.py", rec.ScriptPath)
}

func TestPersistStage_NoScript(t *testing.T) {
	stage := NewPersistStage(&mockSaver{}, zap.NewNop())

	_, err := stage.Execute(context.Background(), newRecord())

	assert.Error(t, err)
}

// ============================================================================
// ExecuteStage
// ============================================================================

func TestExecuteStage_Success(t *testing.T) {
	runner := &mockRunner{run: &ScriptRun{ExitCode: 0, Output: "Successfully inserted 3 rows", Duration: 1500 * time.Millisecond}}
	stage := NewExecuteStage(runner, zap.NewNop())
	in := newRecord()
	in.ScriptPath = "/scripts/s.py"

	rec, err := stage.Execute(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, rec.ExecutionSuccess)
	assert.Equal(t, int64(1500), rec.ExecutionDurationMs)
	require.NotNil(t, rec.ExecutionExitCode)
	assert.Equal(t, 0, *rec.ExecutionExitCode)
	assert.Contains(t, runner.gotEnv, "TARGET_TABLE=ETL_CUSTOMERS")
	assert.Contains(t, runner.gotEnv, "SOURCE_URL=/data/customers.csv")
	assert.Contains(t, runner.gotEnv, "WORKFLOW_ID=etl_test")
}

func TestExecuteStage_FailureKeepsOutput(t *testing.T) {
	runner := &mockRunner{
		run: &ScriptRun{ExitCode: 2, Output: "Traceback...\nKeyError: 'id'"},
		err: errors.New("script exited with code 2"),
	}
	stage := NewExecuteStage(runner, zap.NewNop())
	in := newRecord()
	in.ScriptPath = "/scripts/s.py"

	rec, err := stage.Execute(context.Background(), in)

	require.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeFailed, rec.ExecutionSuccess)
	assert.Contains(t, rec.ExecutionOutput, "KeyError")
	assert.Equal(t, 2, *rec.ExecutionExitCode)
}

func TestExecuteStage_NonZeroExitWithoutError(t *testing.T) {
	stage := NewExecuteStage(&mockRunner{run: &ScriptRun{ExitCode: 1}}, zap.NewNop())
	in := newRecord()
	in.ScriptPath = "/scripts/s.py"

	rec, err := stage.Execute(context.Background(), in)

	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, rec.ExecutionSuccess)
}

func TestExecuteStage_StartFailure(t *testing.T) {
	stage := NewExecuteStage(&mockRunner{err: errors.New("python3 not found")}, zap.NewNop())
	in := newRecord()
	in.ScriptPath = "/scripts/s.py"

	rec, err := stage.Execute(context.Background(), in)

	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, rec.ExecutionSuccess)
	assert.Nil(t, rec.ExecutionExitCode)
}

// ============================================================================
// ValidateStage
// ============================================================================

func TestValidateStage_Success(t *testing.T) {
	checker := &mockChecker{check: &IngestionCheck{Table: "ETL_CUSTOMERS", TableExists: true, RowCount: 3, Success: true, Reachable: true}}
	stage := NewValidateStage(checker, 1, zap.NewNop())
	in := newRecord()
	in.Profile = &models.DatasetProfile{TotalRows: 3}
	in.ExecutionOutput = "Successfully loaded 3 rows from local file"

	rec, err := stage.Execute(context.Background(), in)

	require.NoError(t, err)
	require.NotNil(t, rec.IngestionResult)
	assert.Equal(t, models.OutcomeSucceeded, rec.IngestionResult.Success)
	assert.Equal(t, int64(3), rec.IngestionResult.RowCount)
	assert.Equal(t, int64(3), rec.IngestionResult.RowsInserted)
	require.NotNil(t, rec.IngestionResult.RowsProcessed)
	assert.Equal(t, int64(3), *rec.IngestionResult.RowsProcessed)
	require.NotNil(t, rec.RecordValidation)
	assert.Equal(t, models.RecordValidationSuccess, rec.RecordValidation.Status)
	assert.Equal(t, []string{"ETL_CUSTOMERS", "ETL_CUSTOMER"}, checker.gotTables)
	assert.Equal(t, int64(1), checker.gotMin)
}

func TestValidateStage_EmptySourceExpectsZeroRows(t *testing.T) {
	checker := &mockChecker{check: &IngestionCheck{Table: "ETL_CUSTOMERS", TableExists: true, Success: true, Reachable: true}}
	stage := NewValidateStage(checker, 1, zap.NewNop())
	in := newRecord()
	in.Profile = &models.DatasetProfile{TotalRows: 0}

	_, err := stage.Execute(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, int64(0), checker.gotMin)
}

func TestValidateStage_ZeroRowsFails(t *testing.T) {
	checker := &mockChecker{
		check: &IngestionCheck{Table: "ETL_CUSTOMERS", TableExists: true, RowCount: 0, Reachable: true},
		err:   errors.New("found 0 rows, expected at least 1"),
	}
	stage := NewValidateStage(checker, 1, zap.NewNop())
	in := newRecord()
	in.Profile = &models.DatasetProfile{TotalRows: 3}

	rec, err := stage.Execute(context.Background(), in)

	require.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeFailed, rec.IngestionResult.Success)
	assert.True(t, rec.IngestionResult.TableCreated)
	assert.Equal(t, models.RecordValidationFailed, rec.RecordValidation.Status)
}

func TestValidateStage_Unreachable(t *testing.T) {
	checker := &mockChecker{
		check: &IngestionCheck{Table: "ETL_CUSTOMERS", RowCount: -1},
		err:   errors.New("connection refused"),
	}
	stage := NewValidateStage(checker, 1, zap.NewNop())

	rec, err := stage.Execute(context.Background(), newRecord())

	require.Error(t, err)
	assert.False(t, rec.IngestionResult.Reachable)
	assert.Equal(t, int64(-1), rec.IngestionResult.RowCount)
	assert.Nil(t, rec.RecordValidation)
}

func TestValidateStage_UnsuccessfulCheckWithoutErrorFails(t *testing.T) {
	checker := &mockChecker{check: &IngestionCheck{Table: "ETL_CUSTOMERS", TableExists: true, Reachable: true}}
	stage := NewValidateStage(checker, 5, zap.NewNop())

	rec, err := stage.Execute(context.Background(), newRecord())

	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, rec.IngestionResult.Success)
}
