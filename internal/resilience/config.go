package resilience

import (
	"time"

	"github.com/sells-group/enrich-cli/internal/config"
)

// FromSearchConfig builds the retry policy for search calls.
func FromSearchConfig(cfg config.SearchConfig) RetryConfig {
	return fromMillis(cfg.MaxAttempts, cfg.InitialBackoffMs, cfg.MaxBackoffMs, cfg.JitterFraction)
}

// FromLLMConfig builds the retry policy for model calls.
func FromLLMConfig(cfg config.LLMConfig) RetryConfig {
	return fromMillis(cfg.MaxAttempts, cfg.InitialBackoffMs, cfg.MaxBackoffMs, DefaultRetryConfig().JitterFraction)
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

func fromMillis(maxAttempts, initialBackoffMs, maxBackoffMs int, jitter float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if jitter >= 0 {
		cfg.JitterFraction = jitter
	}
	return cfg
}
