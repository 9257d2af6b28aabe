package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
	_ "github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse/postgres"
	_ "github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
env: "test"
store:
  type: "memory"
llm:
  provider: "anthropic"
  model: "claude-x"
warehouse:
  type: "sqlite"
  path: "/tmp/dw.db"
executor:
  timeout: "90s"
pipeline:
  auto_execute: false
`)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("WAREHOUSE_PASSWORD", "hunter2")

	cfg, err := Load(path, "test-version")

	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env, "env overrides yaml")
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sqlite", cfg.Warehouse.Type)
	assert.Equal(t, "/tmp/dw.db", cfg.Warehouse.Path)
	assert.Equal(t, "hunter2", cfg.Warehouse.Password)
	assert.Equal(t, 90*time.Second, cfg.Executor.Timeout)
	assert.False(t, cfg.Pipeline.AutoExecute)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "env: test\n")

	cfg, err := Load(path, "v1")

	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, "workflow_logs", cfg.Store.Dir)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, 300*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, "generated_scripts", cfg.Executor.ScriptsDir)
	assert.Equal(t, 1<<20, cfg.Executor.MaxOutputBytes)
	assert.True(t, cfg.Pipeline.AutoExecute)
	assert.True(t, cfg.Pipeline.EnableInsights)
	assert.Equal(t, int64(1), cfg.Pipeline.MinExpectedRows)
	assert.Equal(t, "noop", cfg.Metrics.Backend)
}

func TestLoad_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("WAREHOUSE_TYPE", "SQLite")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "v1")

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "sqlite", cfg.Warehouse.Type, "types are normalized")
	assert.Equal(t, DefaultPipelineConfig(), cfg.Pipeline)
}

func TestLoad_PipelineZeroValuesFromYAML(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  auto_execute: false
  enable_insights: false
  min_expected_rows: 0
`)

	cfg, err := Load(path, "v1")

	require.NoError(t, err)
	assert.False(t, cfg.Pipeline.AutoExecute)
	assert.False(t, cfg.Pipeline.EnableInsights)
	assert.Equal(t, int64(0), cfg.Pipeline.MinExpectedRows)
}

func TestLoad_PipelineDefaultsWhenSectionPartial(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  validate_after_failed_execution: true
`)

	cfg, err := Load(path, "v1")

	require.NoError(t, err)
	assert.True(t, cfg.Pipeline.AutoExecute)
	assert.True(t, cfg.Pipeline.EnableInsights)
	assert.True(t, cfg.Pipeline.ValidateAfterFailedExecution)
	assert.Equal(t, int64(1), cfg.Pipeline.MinExpectedRows)
}

func TestLoad_PipelineEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  auto_execute: true
  min_expected_rows: 5
`)
	t.Setenv("PIPELINE_AUTO_EXECUTE", "false")
	t.Setenv("PIPELINE_MIN_EXPECTED_ROWS", "0")

	cfg, err := Load(path, "v1")

	require.NoError(t, err)
	assert.False(t, cfg.Pipeline.AutoExecute)
	assert.Equal(t, int64(0), cfg.Pipeline.MinExpectedRows)
}

func TestLoad_SecretsIgnoredInYAML(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key: "from-yaml"
database:
  password: "from-yaml"
`)

	cfg, err := Load(path, "v1")

	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Empty(t, cfg.Database.Password)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "store: [unclosed")

	_, err := Load(path, "v1")

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:     StoreConfig{Type: "file", Dir: "logs"},
			LLM:       LLMConfig{Provider: "openai", Model: "gpt-4o"},
			Executor:  ExecutorConfig{Timeout: time.Minute, ScriptsDir: "scripts", MaxOutputBytes: 1024},
			Pipeline:  PipelineConfig{MinExpectedRows: 1},
			Metrics:   MetricsConfig{Backend: "noop"},
			Warehouse: warehouse.Config{Type: "sqlite"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "redis" }, wantErr: "store.type"},
		{name: "file store without dir", mutate: func(c *Config) { c.Store.Dir = "" }, wantErr: "store.dir"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "bard" }, wantErr: "llm.provider"},
		{name: "missing model", mutate: func(c *Config) { c.LLM.Model = "" }, wantErr: "llm.model"},
		{name: "unknown warehouse", mutate: func(c *Config) { c.Warehouse.Type = "oracle" }, wantErr: "warehouse.type"},
		{name: "zero timeout", mutate: func(c *Config) { c.Executor.Timeout = 0 }, wantErr: "executor.timeout"},
		{name: "zero output cap", mutate: func(c *Config) { c.Executor.MaxOutputBytes = 0 }, wantErr: "max_output_bytes"},
		{name: "negative min rows", mutate: func(c *Config) { c.Pipeline.MinExpectedRows = -1 }, wantErr: "min_expected_rows"},
		{name: "datadog without key", mutate: func(c *Config) { c.Metrics.Backend = "datadog" }, wantErr: "DD_API_KEY"},
		{name: "unknown metrics backend", mutate: func(c *Config) { c.Metrics.Backend = "statsd" }, wantErr: "metrics.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestProfilerConfig_Options(t *testing.T) {
	opts := ProfilerConfig{MinUniqueness: 0.8, MaxConcurrent: 2}.Options()

	assert.Equal(t, 0.8, opts.MinUniqueness)
	assert.Equal(t, 2, opts.MaxConcurrent)
	assert.Equal(t, 0.05, opts.MaxNullRate, "unset values keep defaults")
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "etl", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=etl sslmode=disable", c.ConnectionString())
}
