// Package resilience provides the retry wrapper used for outbound provider calls.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// StatusCoder is implemented by responses whose HTTP status drives retries.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryConfig controls retry behavior with linear backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first call, so at most
	// MaxRetries+1 calls are made. Default: 3.
	MaxRetries int

	// BaseDelay is multiplied by the retry number (1, 2, 3, ...) to get the
	// delay before that retry. Default: 1s.
	BaseDelay time.Duration

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = ±50%). Default: 0.
	JitterFraction float64

	// ShouldRetryStatus optionally overrides IsRetryableStatus.
	ShouldRetryStatus func(status int) bool

	// ShouldRetry optionally overrides the transport-error check. If nil,
	// IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the retry number, the
	// last status (0 when the call errored) and the last error.
	OnRetry func(attempt, status int, err error)
}

// DefaultRetryConfig returns the retry configuration used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// DoStatus calls fn until it yields a response whose status is not retryable,
// returns a non-transient error, or retries are exhausted. After exhaustion the
// last response is returned when the last call produced one, otherwise the last
// error. Context cancellation stops the wait between attempts.
func DoStatus[T StatusCoder](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	shouldRetryStatus := cfg.ShouldRetryStatus
	if shouldRetryStatus == nil {
		shouldRetryStatus = IsRetryableStatus
	}

	var (
		val T
		err error
	)
	for attempt := 0; ; attempt++ {
		val, err = fn(ctx)

		status := 0
		if err != nil {
			if !shouldRetry(err) {
				return val, err
			}
		} else {
			status = val.HTTPStatus()
			if !shouldRetryStatus(status) {
				return val, nil
			}
		}

		if attempt >= cfg.MaxRetries || ctx.Err() != nil {
			return val, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, status, err)
		}

		timer := time.NewTimer(computeBackoff(attempt+1, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return val, err
		case <-timer.C:
		}
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// computeBackoff returns BaseDelay * retry, retry starting at 1.
func computeBackoff(retry int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * float64(retry)

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, int, error) {
	return func(attempt, status int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
}
