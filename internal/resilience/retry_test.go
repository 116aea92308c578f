package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	v, err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" || calls != 1 {
		t.Errorf("expected ok after 1 call, got %q after %d", v, calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	v, err := Do(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("temporary"), 503)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 || calls != 3 {
		t.Errorf("expected 42 after 3 calls, got %d after %d", v, calls)
	}
}

func TestDo_NonTransientStops(t *testing.T) {
	var calls int
	perm := errors.New("bad request")
	_, err := Do(context.Background(), fastRetry(5), func(_ context.Context) (int, error) {
		calls++
		return 0, perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := Do(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("overloaded"), 529)
	})
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if te.StatusCode != 529 {
		t.Errorf("expected status 529, got %d", te.StatusCode)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(2)
	cfg.ShouldRetry = func(error) bool { return true }
	_, _ = Do(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetries(t *testing.T) {
	if got := Retries(2).MaxAttempts; got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if got := Retries(-1).MaxAttempts; got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}
