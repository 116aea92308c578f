package resilience

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// RetryConfig controls retries with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps any single delay.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of the random delay added to each backoff.
	MaxJitter time.Duration
	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool
	// Name labels retry log lines.
	Name string
}

// DefaultRetryConfig returns the retry policy used for model and HTTP calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		MaxJitter:      250 * time.Millisecond,
	}
}

// Retries returns a config allowing n retries after the first attempt.
func Retries(n int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = max(n, 0) + 1
	return cfg
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx ends. The last error is returned unwrapped.
func Do[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(cfg.MaxAttempts)),
		retry.Delay(cfg.InitialBackoff),
		retry.RetryIf(shouldRetry),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zap.L().Debug("retrying after transient error",
				zap.String("call", cfg.Name),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	}
	if cfg.MaxBackoff > 0 {
		opts = append(opts, retry.MaxDelay(cfg.MaxBackoff))
	}
	if cfg.MaxJitter > 0 {
		opts = append(opts,
			retry.MaxJitter(cfg.MaxJitter),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		)
	} else {
		opts = append(opts, retry.DelayType(retry.BackOffDelay))
	}

	return retry.DoWithData(func() (T, error) { return fn(ctx) }, opts...)
}
