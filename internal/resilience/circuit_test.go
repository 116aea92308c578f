package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(_ context.Context) (int, error) { return 0, errors.New("fail") }

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "vision"})

	v, err := Call(context.Background(), cb, func(_ context.Context) (int, error) { return 7, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "vision", FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), cb, failing)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	_, err := Call(context.Background(), cb, func(_ context.Context) (int, error) {
		t.Error("should not be called when circuit is open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	_, _ = Call(context.Background(), cb, failing)
	_, _ = Call(context.Background(), cb, func(_ context.Context) (int, error) { return 1, nil })
	_, _ = Call(context.Background(), cb, failing)

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	cb.now = func() time.Time { return now }

	_, _ = Call(context.Background(), cb, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	now = now.Add(31 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open state, got %s", cb.State())
	}

	// A failed probe reopens the circuit.
	_, _ = Call(context.Background(), cb, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after failed probe, got %s", cb.State())
	}

	now = now.Add(31 * time.Second)
	if _, err := Call(context.Background(), cb, func(_ context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1})

	_, _ = Call(context.Background(), cb, func(_ context.Context) (int, error) { return 0, context.Canceled })
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d: expected %q, got %q", int(s), want, s.String())
		}
	}
}
