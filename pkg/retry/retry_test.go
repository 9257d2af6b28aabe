package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type flaggedErr struct{ retryable bool }

func (e flaggedErr) Error() string     { return "flagged" }
func (e flaggedErr) IsRetryable() bool { return e.retryable }

func TestDefaultConfigs(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 || cfg.InitialDelay != 100*time.Millisecond || cfg.MaxDelay != 5*time.Second {
		t.Errorf("unexpected default config: %+v", cfg)
	}
	if OnceConfig().MaxRetries != 1 {
		t.Errorf("expected OnceConfig to allow exactly one retry, got %d", OnceConfig().MaxRetries)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	want := errors.New("always")
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoWithResult_KeepsLastResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(1), func() (int, error) {
		calls++
		return calls * 10, errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != 20 {
		t.Errorf("expected last result 20, got %d", got)
	}
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoIfRetryable(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		return "", flaggedErr{retryable: false}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for a permanent error, got %d", calls)
	}
}

func TestDoIfRetryable_RetriesTransientErrorOnce(t *testing.T) {
	calls := 0
	out, err := DoIfRetryable(context.Background(), fastConfig(1), func() (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("generate: %w", flaggedErr{retryable: true})
		}
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Errorf("expected ok after one retry, got %q, %v", out, err)
	}

	calls = 0
	_, err = DoIfRetryable(context.Background(), fastConfig(1), func() (string, error) {
		calls++
		return "", flaggedErr{retryable: true}
	})
	if err == nil || calls != 2 {
		t.Errorf("expected 2 calls and an error, got %d calls, err=%v", calls, err)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("HTTP 503 service unavailable"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("syntax error at or near"), false},
		{fmt.Errorf("wrapped: %w", flaggedErr{retryable: false}), false},
		{fmt.Errorf("wrapped timeout: %w", flaggedErr{retryable: false}), false},
		{fmt.Errorf("wrapped: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
