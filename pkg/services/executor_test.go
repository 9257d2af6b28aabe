package services

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// shellExecutor runs scripts with /bin/sh so tests do not need Python.
func shellExecutor(t *testing.T, cfg ExecutorConfig) Executor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	cfg.Python = "/bin/sh"
	return NewProcessExecutor(cfg, clock.RealClock{}, zap.NewNop())
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestProcessExecutor_Success(t *testing.T) {
	exec := shellExecutor(t, ExecutorConfig{})
	script := writeScript(t, `echo "Successfully loaded 3 rows from $SOURCE_URL"
echo "warning: slow" >&2
`)

	res, err := exec.Execute(context.Background(), ExecutionRequest{
		ScriptPath: script,
		Env:        []string{"SOURCE_URL=/data/x.csv"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "Successfully loaded 3 rows from /data/x.csv\n\nwarning: slow\n", res.Output)
}

func TestProcessExecutor_NonZeroExit(t *testing.T) {
	exec := shellExecutor(t, ExecutorConfig{})
	script := writeScript(t, "echo started\necho 'KeyError: id' >&2\nexit 3\n")

	res, err := exec.Execute(context.Background(), ExecutionRequest{ScriptPath: script})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.False(t, execErr.TimedOut)
	assert.Contains(t, execErr.Error(), "KeyError: id")
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "started")
}

func TestProcessExecutor_TimeoutKillsProcessGroup(t *testing.T) {
	exec := shellExecutor(t, ExecutorConfig{})
	script := writeScript(t, "sleep 30 &\nsleep 30\n")

	start := time.Now()
	res, err := exec.Execute(context.Background(), ExecutionRequest{
		ScriptPath: script,
		Timeout:    200 * time.Millisecond,
	})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.TimedOut)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessExecutor_IgnoresWorkflowCancellation(t *testing.T) {
	exec := shellExecutor(t, ExecutorConfig{})
	script := writeScript(t, "sleep 0.3\necho done\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := exec.Execute(ctx, ExecutionRequest{ScriptPath: script})

	require.NoError(t, err)
	assert.Contains(t, res.Output, "done")
}

func TestProcessExecutor_CapsOutput(t *testing.T) {
	exec := shellExecutor(t, ExecutorConfig{MaxOutputBytes: 64})
	script := writeScript(t, "i=0\nwhile [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done\n")

	res, err := exec.Execute(context.Background(), ExecutionRequest{ScriptPath: script})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Output, "0123456789\n"))
	assert.Contains(t, res.Output, "[output truncated at 64 bytes per stream]")
	assert.Less(t, len(res.Output), 200)
}

func TestProcessExecutor_RedactsSecrets(t *testing.T) {
	exec := shellExecutor(t, ExecutorConfig{})
	script := writeScript(t, `echo "connecting with $WAREHOUSE_PASSWORD"`)

	res, err := exec.Execute(context.Background(), ExecutionRequest{
		ScriptPath: script,
		Env:        []string{"WAREHOUSE_PASSWORD=hunter2secret"},
		Secrets:    []string{"hunter2secret"},
	})

	require.NoError(t, err)
	assert.NotContains(t, res.Output, "hunter2secret")
}

func TestProcessExecutor_MissingInterpreter(t *testing.T) {
	exec := NewProcessExecutor(ExecutorConfig{Python: "/nonexistent/python"}, nil, zap.NewNop())

	res, err := exec.Execute(context.Background(), ExecutionRequest{ScriptPath: "x.py"})

	assert.Nil(t, res)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, -1, execErr.ExitCode)
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n, "writes report full length so the child never blocks")

	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.Truncated())
}
