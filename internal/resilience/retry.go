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
	// InitialBackoff is the base delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration
	// MaxJitter adds up to this much random delay to every backoff.
	MaxJitter time.Duration
	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns the settings used for directory calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		MaxJitter:      250 * time.Millisecond,
	}
}

func (c RetryConfig) options(ctx context.Context, op string) []retry.Option {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	shouldRetry := c.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(c.MaxAttempts)),
		retry.Delay(c.InitialBackoff),
		retry.MaxDelay(c.MaxBackoff),
		retry.RetryIf(shouldRetry),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zap.L().Warn("retrying after transient failure",
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	}
	if c.MaxJitter > 0 {
		opts = append(opts,
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
			retry.MaxJitter(c.MaxJitter),
		)
	} else {
		opts = append(opts, retry.DelayType(retry.BackOffDelay))
	}
	return opts
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) error) error {
	return retry.Do(func() error {
		return fn(ctx)
	}, cfg.options(ctx, op)...)
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.DoWithData(func() (T, error) {
		return fn(ctx)
	}, cfg.options(ctx, op)...)
}
