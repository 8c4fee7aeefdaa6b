package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_GrowsExponentially(t *testing.T) {
	cfg := BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Minute, Multiplier: 2.0}

	assert.Equal(t, 100*time.Millisecond, cfg.Delay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.Delay(2))
}

func TestDelay_CappedAtMax(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2.0}
	assert.Equal(t, 5*time.Second, cfg.Delay(10))
}

func TestDelay_JitterStaysInRange(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2.0, JitterFraction: 0.25}
	for i := 0; i < 100; i++ {
		d := cfg.Delay(0)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestDelay_ZeroConfigUsesDefaults(t *testing.T) {
	var cfg BackoffConfig
	d := cfg.Delay(0)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 30*time.Second)
}

func TestDefaultBackoff(t *testing.T) {
	cfg := DefaultBackoff()
	assert.Equal(t, 500*time.Millisecond, cfg.Initial)
	assert.Equal(t, 30*time.Second, cfg.Max)
}
