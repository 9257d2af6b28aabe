package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-etl/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-etl/pkg/llm"
	"github.com/ekaya-inc/ekaya-etl/pkg/profiler"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-etl.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Workflow record storage
	Store StoreConfig `yaml:"store"`

	// Database configuration (PostgreSQL), used when store.type is "postgres"
	Database DatabaseConfig `yaml:"database"`

	LLM       LLMConfig        `yaml:"llm"`
	Warehouse warehouse.Config `yaml:"warehouse"`
	Executor  ExecutorConfig   `yaml:"executor"`
	Source    SourceConfig     `yaml:"source"`
	Profiler  ProfilerConfig   `yaml:"profiler"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// StoreConfig selects the workflow store backend.
type StoreConfig struct {
	// Type is one of "memory", "file" or "postgres".
	Type string `yaml:"type" env:"STORE_TYPE" env-default:"file"`
	// Dir holds workflow logs for the file backend.
	Dir string `yaml:"dir" env:"STORE_DIR" env-default:"workflow_logs"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_etl"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LLMConfig selects the text-generation provider.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider  string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint  string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model     string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey    string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxTokens int    `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
}

// ExecutorConfig controls how generated scripts run.
type ExecutorConfig struct {
	Timeout        time.Duration `yaml:"timeout" env:"EXECUTOR_TIMEOUT" env-default:"300s"`
	ScriptsDir     string        `yaml:"scripts_dir" env:"EXECUTOR_SCRIPTS_DIR" env-default:"generated_scripts"`
	Python         string        `yaml:"python" env:"EXECUTOR_PYTHON" env-default:"python3"`
	MaxOutputBytes int           `yaml:"max_output_bytes" env:"EXECUTOR_MAX_OUTPUT_BYTES" env-default:"1048576"`
}

// SourceConfig bounds source reads.
type SourceConfig struct {
	MaxBytes    int64         `yaml:"max_bytes" env:"SOURCE_MAX_BYTES" env-default:"104857600"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"SOURCE_HTTP_TIMEOUT" env-default:"60s"`
}

// ProfilerConfig overrides profiling thresholds. Zero values keep the
// profiler defaults.
type ProfilerConfig struct {
	MinUniqueness  float64 `yaml:"min_uniqueness" env:"PROFILER_MIN_UNIQUENESS"`
	MaxNullRate    float64 `yaml:"max_null_rate" env:"PROFILER_MAX_NULL_RATE"`
	TypeAgreement  float64 `yaml:"type_agreement" env:"PROFILER_TYPE_AGREEMENT"`
	DateSampleSize int     `yaml:"date_sample_size" env:"PROFILER_DATE_SAMPLE_SIZE"`
	MaxConcurrent  int     `yaml:"max_concurrent" env:"PROFILER_MAX_CONCURRENT"`
}

// PipelineConfig toggles optional pipeline behavior. Its fields carry no
// env-default tags: cleanenv treats false and 0 as unset. Defaults are seeded
// from DefaultPipelineConfig instead.
type PipelineConfig struct {
	AutoExecute                  bool  `yaml:"auto_execute" env:"PIPELINE_AUTO_EXECUTE"`
	ValidateAfterFailedExecution bool  `yaml:"validate_after_failed_execution" env:"PIPELINE_VALIDATE_AFTER_FAILED_EXECUTION"`
	EnableInsights               bool  `yaml:"enable_insights" env:"PIPELINE_ENABLE_INSIGHTS"`
	MinExpectedRows              int64 `yaml:"min_expected_rows" env:"PIPELINE_MIN_EXPECTED_ROWS"`
}

// DefaultPipelineConfig returns the pipeline settings used when neither the
// config file nor the environment sets them.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AutoExecute:     true,
		EnableInsights:  true,
		MinExpectedRows: 1,
	}
}

// MetricsConfig selects where stage metrics go.
type MetricsConfig struct {
	// Backend is "noop" or "datadog".
	Backend       string        `yaml:"backend" env:"METRICS_BACKEND" env-default:"noop"`
	Tags          string        `yaml:"tags" env:"METRICS_TAGS" env-default:""` // "env:prod,team:data"
	FlushInterval time.Duration `yaml:"flush_interval" env:"METRICS_FLUSH_INTERVAL" env-default:"60s"`
	// APIKey is read by the Datadog client itself; it is held here so a
	// missing key fails at load time.
	APIKey string `yaml:"-" env:"DD_API_KEY"` // Secret - not in YAML
}

// Load reads configuration from path with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// When path does not exist, configuration comes from the environment alone.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	// cleanenv decodes into the existing struct, so seeded values survive
	// unless the file or the environment sets them.
	cfg := &Config{
		Version:  version,
		Pipeline: DefaultPipelineConfig(),
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Warehouse.Type = strings.ToLower(strings.TrimSpace(c.Warehouse.Type))
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
}

// Validate checks enums, timeouts and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Type {
	case "memory", "postgres":
	case "file":
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type %q must be memory, file or postgres", c.Store.Type))
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q must be openai or anthropic", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if !warehouse.IsRegistered(c.Warehouse.Type) {
		errs = append(errs, fmt.Errorf("warehouse.type %q is not supported", c.Warehouse.Type))
	}

	if c.Executor.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("executor.timeout must be positive, got %s", c.Executor.Timeout))
	}
	if c.Executor.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("executor.max_output_bytes must be positive"))
	}
	if c.Executor.ScriptsDir == "" {
		errs = append(errs, errors.New("executor.scripts_dir is required"))
	}
	if c.Pipeline.MinExpectedRows < 0 {
		errs = append(errs, errors.New("pipeline.min_expected_rows must not be negative"))
	}

	switch c.Metrics.Backend {
	case "noop":
	case "datadog":
		if c.Metrics.APIKey == "" {
			errs = append(errs, errors.New("DD_API_KEY is required for the datadog metrics backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("metrics.backend %q must be noop or datadog", c.Metrics.Backend))
	}

	return errors.Join(errs...)
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LLMClientConfig converts the section into the client factory's config.
func (c *LLMConfig) LLMClientConfig() *llm.Config {
	return &llm.Config{
		Provider:  c.Provider,
		Endpoint:  c.Endpoint,
		Model:     c.Model,
		APIKey:    c.APIKey,
		MaxTokens: c.MaxTokens,
	}
}

// Options overlays the configured thresholds on the profiler defaults.
func (c ProfilerConfig) Options() profiler.Options {
	opts := profiler.DefaultOptions()
	if c.MinUniqueness > 0 {
		opts.MinUniqueness = c.MinUniqueness
	}
	if c.MaxNullRate > 0 {
		opts.MaxNullRate = c.MaxNullRate
	}
	if c.TypeAgreement > 0 {
		opts.TypeAgreement = c.TypeAgreement
	}
	if c.DateSampleSize > 0 {
		opts.DateSampleSize = c.DateSampleSize
	}
	if c.MaxConcurrent > 0 {
		opts.MaxConcurrent = c.MaxConcurrent
	}
	return opts
}
