package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/config"
)

func TestFromSearchConfig(t *testing.T) {
	rc := FromSearchConfig(config.SearchConfig{
		MaxAttempts:      4,
		InitialBackoffMs: 4000,
		MaxBackoffMs:     10000,
		JitterFraction:   0.1,
	})
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.Equal(t, 4*time.Second, rc.InitialBackoff)
	assert.Equal(t, 10*time.Second, rc.MaxBackoff)
	assert.InDelta(t, 0.1, rc.JitterFraction, 1e-9)
}

func TestFromLLMConfigDefaults(t *testing.T) {
	rc := FromLLMConfig(config.LLMConfig{})
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, rc.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().InitialBackoff, rc.InitialBackoff)
}

func TestFromCircuitConfig(t *testing.T) {
	cc := FromCircuitConfig(2, 15)
	assert.Equal(t, 2, cc.FailureThreshold)
	assert.Equal(t, 15*time.Second, cc.ResetTimeout)

	def := FromCircuitConfig(0, 0)
	assert.Equal(t, DefaultCircuitBreakerConfig().FailureThreshold, def.FailureThreshold)
}
