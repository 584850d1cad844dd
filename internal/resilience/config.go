package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Negative values
// keep the defaults.
func FromRetryConfig(maxRetries, baseDelayMs int, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxRetries >= 0 {
		cfg.MaxRetries = maxRetries
	}
	if baseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}
