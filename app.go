package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-etl/pkg/config"
	"github.com/ekaya-inc/ekaya-etl/pkg/database"
	"github.com/ekaya-inc/ekaya-etl/pkg/llm"
	"github.com/ekaya-inc/ekaya-etl/pkg/logging"
	"github.com/ekaya-inc/ekaya-etl/pkg/metrics"
	"github.com/ekaya-inc/ekaya-etl/pkg/metrics/datadog"
	"github.com/ekaya-inc/ekaya-etl/pkg/profiler"
	"github.com/ekaya-inc/ekaya-etl/pkg/repositories"
	"github.com/ekaya-inc/ekaya-etl/pkg/services"
	"github.com/ekaya-inc/ekaya-etl/pkg/services/stages"
	"github.com/ekaya-inc/ekaya-etl/pkg/source"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	ctx     context.Context
	cfg     *config.Config
	logger  *zap.Logger
	store   repositories.WorkflowStore
	metrics metrics.Recorder
	closers []func()

	generator llm.TextGenerator
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, Version)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{ctx: ctx, cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	logger.Debug("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("store", cfg.Store.Type),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("warehouse", cfg.Warehouse.Type),
		zap.String("metrics", cfg.Metrics.Backend))

	if err := a.openStore(); err != nil {
		a.close()
		return nil, err
	}
	a.openMetrics()
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openStore() error {
	switch a.cfg.Store.Type {
	case "memory":
		a.store = repositories.NewMemoryWorkflowStore()
	case "file":
		store, err := repositories.NewFileWorkflowStore(a.cfg.Store.Dir, clock.RealClock{}, a.logger)
		if err != nil {
			return fmt.Errorf("open file store: %w", err)
		}
		a.store = store
	case "postgres":
		connStr := a.cfg.Database.ConnectionString()
		db, err := database.NewConnection(a.ctx, &database.Config{
			URL:            connStr,
			MaxConnections: a.cfg.Database.MaxConnections,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("connect to workflow database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		// golang-migrate needs a database/sql handle
		sqlDB, err := sql.Open("pgx", connStr)
		if err != nil {
			return fmt.Errorf("open migration connection: %w", err)
		}
		defer sqlDB.Close()
		if err := database.RunMigrations(sqlDB, a.logger); err != nil {
			return err
		}
		a.store = repositories.NewPostgresWorkflowStore(db, clock.RealClock{})
	default:
		return fmt.Errorf("unsupported store type %q", a.cfg.Store.Type)
	}
	return nil
}

func (a *app) openMetrics() {
	if a.cfg.Metrics.Backend != "datadog" {
		a.metrics = metrics.Noop{}
		return
	}
	backend := datadog.New(a.ctx, datadog.Options{
		Tags:       append(datadog.ParseTags(a.cfg.Metrics.Tags), "env:"+a.cfg.Env),
		FlushEvery: a.cfg.Metrics.FlushInterval,
	}, a.logger)
	a.metrics = backend
	a.closers = append(a.closers, func() {
		if err := backend.Close(); err != nil {
			a.logger.Warn("Failed to flush metrics", zap.Error(err))
		}
	})
}

func (a *app) textGenerator() (llm.TextGenerator, error) {
	if a.generator != nil {
		return a.generator, nil
	}
	generator, err := llm.New(a.cfg.LLM.LLMClientConfig(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("create text generator: %w", err)
	}
	a.generator = generator
	return generator, nil
}

func (a *app) loader() *source.Loader {
	return source.NewLoader(source.Config{
		MaxBytes:    a.cfg.Source.MaxBytes,
		HTTPTimeout: a.cfg.Source.HTTPTimeout,
	}, nil, a.logger)
}

func (a *app) profiler() *profiler.Profiler {
	return profiler.New(a.cfg.Profiler.Options(), a.logger)
}

func (a *app) annotator() (services.InsightAnnotator, error) {
	generator, err := a.textGenerator()
	if err != nil {
		return nil, err
	}
	return services.NewInsightAnnotator(generator, a.logger), nil
}

// scriptEnvNames lists every variable a generated script may read.
func scriptEnvNames() []string {
	names := append([]string(nil), warehouse.EnvNames...)
	return append(names, stages.EnvTargetTable, stages.EnvSourceURL, stages.EnvWorkflowID)
}

func (a *app) orchestrator() (services.PipelineOrchestrator, error) {
	generator, err := a.textGenerator()
	if err != nil {
		return nil, err
	}

	var annotator services.InsightAnnotator
	if a.cfg.Pipeline.EnableInsights {
		annotator = services.NewInsightAnnotator(generator, a.logger)
	}

	pipeline := services.NewPipelineStages(services.StageDependencies{
		Loader:    a.loader(),
		Profiler:  a.profiler(),
		Annotator: annotator,
		Generator: services.NewScriptGenerator(generator, a.cfg.Warehouse.Type, scriptEnvNames(), a.logger),
		Scripts:   services.NewFileScriptStore(a.cfg.Executor.ScriptsDir, a.logger),
		Executor: services.NewProcessExecutor(services.ExecutorConfig{
			Python:         a.cfg.Executor.Python,
			Timeout:        a.cfg.Executor.Timeout,
			MaxOutputBytes: a.cfg.Executor.MaxOutputBytes,
		}, clock.RealClock{}, a.logger),
		Validator:       services.NewIngestionValidator(a.cfg.Warehouse, nil, a.logger),
		Warehouse:       a.cfg.Warehouse,
		ExecTimeout:     a.cfg.Executor.Timeout,
		MinExpectedRows: a.cfg.Pipeline.MinExpectedRows,
	}, a.logger)

	return services.NewPipelineOrchestrator(services.PipelineConfig{
		AutoExecute:                  a.cfg.Pipeline.AutoExecute,
		ValidateAfterFailedExecution: a.cfg.Pipeline.ValidateAfterFailedExecution,
	}, a.store, pipeline, a.metrics, clock.RealClock{}, a.logger), nil
}
