package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/kbukum/tokenkeeper/errors"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), DefaultRetryConfig(), func(int) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Errorf("expected ok, got %q (%v)", result, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RetriesRetryableErrors(t *testing.T) {
	var attempts []int
	result, err := Retry(context.Background(), fastConfig(3), func(attempt int) (string, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return "", errors.Provider("token refresh", 503, "busy")
		}
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("expected ok, got %q (%v)", result, err)
	}
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Errorf("expected attempts 1..3, got %v", attempts)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastConfig(5), func(int) (string, error) {
		calls++
		return "", errors.Provider("token refresh", 400, "invalid_grant")
	})
	if calls != 1 {
		t.Errorf("expected a single call for 4xx, got %d", calls)
	}
	if appErr, ok := errors.AsAppError(err); !ok || appErr.HTTPStatus != 400 {
		t.Errorf("expected the provider error back unchanged, got %v", err)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), fastConfig(3), func(int) error {
		calls++
		return errors.Transport("token refresh", stderrors.New("connection reset"))
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.IsKind(err, errors.ErrCodeTransport) {
		t.Errorf("expected last TRANSPORT error, got %v", err)
	}
}

func TestRetry_SingleAttemptByDefault(t *testing.T) {
	calls := 0
	_ = RetryFunc(context.Background(), RetryConfig{}, func(int) error {
		calls++
		return errors.Transport("x", nil)
	})
	if calls != 1 {
		t.Errorf("expected zero config to mean one attempt, got %d", calls)
	}
	if (RetryConfig{}).Enabled() || !DefaultRetryConfig().Enabled() {
		t.Error("unexpected Enabled result")
	}
}

func TestRetry_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	calls := 0
	err := RetryFunc(ctx, cfg, func(int) error {
		calls++
		return errors.Transport("x", nil)
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.IsKind(err, errors.ErrCodeTransport) {
		t.Errorf("expected the last attempt's error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", stderrors.New("x"), false},
		{"transport", errors.Transport("op", nil), true},
		{"429", errors.Provider("op", 429, ""), true},
		{"500", errors.Provider("op", 500, ""), true},
		{"401", errors.Provider("op", 401, ""), false},
		{"validation", errors.Validation("bad", nil), false},
		{"canceled transport", errors.Transport("op", context.Canceled), false},
		{"request timeout", errors.Timeout("op", fmt.Errorf("Client.Timeout exceeded: %w", context.DeadlineExceeded)), true},
		{"bare deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := Backoff(i+1, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}
