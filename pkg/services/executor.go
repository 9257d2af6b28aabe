package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/ekaya-inc/ekaya-etl/pkg/logging"
)

// Defaults for script execution.
const (
	DefaultExecutionTimeout = 300 * time.Second
	DefaultMaxOutputBytes   = 1 << 20
	DefaultPython           = "python3"
)

// ExecutionRequest is a single script run.
type ExecutionRequest struct {
	ScriptPath string
	Env        []string // Added on top of the process environment
	Timeout    time.Duration
	Secrets    []string // Values redacted from captured output
}

// ExecutionResult is what a script run produced. Output is stdout followed
// by stderr.
type ExecutionResult struct {
	ExitCode int
	Output   string
	Duration time.Duration
	TimedOut bool
}

// Executor runs a persisted script in a child process.
type Executor interface {
	// Execute blocks until the script exits or times out. A non-nil result
	// is returned whenever the process started; err is an *ExecutionError
	// for any run that did not exit 0.
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// ExecutorConfig controls how scripts are launched.
type ExecutorConfig struct {
	Python         string
	Timeout        time.Duration
	MaxOutputBytes int
	WorkDir        string
}

type processExecutor struct {
	cfg    ExecutorConfig
	clock  clock.PassiveClock
	logger *zap.Logger
}

// NewProcessExecutor creates an executor that runs scripts with the
// configured interpreter.
func NewProcessExecutor(cfg ExecutorConfig, clk clock.PassiveClock, logger *zap.Logger) Executor {
	if cfg.Python == "" {
		cfg.Python = DefaultPython
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutionTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &processExecutor{
		cfg:    cfg,
		clock:  clk,
		logger: logger.Named("executor"),
	}
}

var _ Executor = (*processExecutor)(nil)

func (e *processExecutor) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	// Cancelling the workflow never interrupts a running script; only the
	// timeout does.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.Python, req.ScriptPath)
	cmd.Dir = e.cfg.WorkDir
	cmd.Env = append(os.Environ(), req.Env...)
	configureProcessGroup(cmd)

	stdout := newCappedBuffer(e.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(e.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.logger.Info("Executing script",
		zap.String("script", req.ScriptPath),
		zap.Duration("timeout", timeout),
		zap.Strings("env", logging.SanitizeEnv(req.Env)))

	start := e.clock.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExecutionError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", e.cfg.Python, err)}
	}
	waitErr := cmd.Wait()
	duration := e.clock.Since(start)

	result := &ExecutionResult{
		ExitCode: -1,
		Output:   e.combineOutput(stdout, stderr, req.Secrets),
		Duration: duration,
		TimedOut: waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case result.TimedOut:
		e.logger.Warn("Script timed out",
			zap.String("script", req.ScriptPath),
			zap.Duration("timeout", timeout))
		return result, &ExecutionError{TimedOut: true, ExitCode: -1, Err: fmt.Errorf("exceeded %s", timeout)}
	case waitErr != nil:
		e.logger.Warn("Script failed",
			zap.String("script", req.ScriptPath),
			zap.Int("exit_code", result.ExitCode),
			zap.Duration("duration", duration))
		return result, &ExecutionError{ExitCode: result.ExitCode, Err: errors.New(lastLine(stderr.String()))}
	}

	e.logger.Info("Script finished",
		zap.String("script", req.ScriptPath),
		zap.Duration("duration", duration))
	return result, nil
}

func (e *processExecutor) combineOutput(stdout, stderr *cappedBuffer, secrets []string) string {
	out := stdout.String()
	if errOut := stderr.String(); errOut != "" {
		out += "\n" + errOut
	}
	if stdout.Truncated() || stderr.Truncated() {
		out += fmt.Sprintf("\n[output truncated at %d bytes per stream]", e.cfg.MaxOutputBytes)
	}
	return logging.SanitizeText(logging.RedactValues(out, secrets...))
}

// lastLine returns the final non-empty line, which for a Python traceback is
// the exception itself.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return logging.TruncateString(logging.SanitizeText(l), 500)
		}
	}
	return "non-zero exit status"
}

// cappedBuffer keeps at most limit bytes and discards the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
