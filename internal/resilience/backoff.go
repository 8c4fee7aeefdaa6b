package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig controls exponential backoff with jitter.
type BackoffConfig struct {
	// Initial is the base delay before the first retry. Default: 500ms.
	Initial time.Duration

	// Max caps the computed delay. Default: 30s.
	Max time.Duration

	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = none, 0.5 = ±50%). Default: 0.25.
	JitterFraction float64
}

// DefaultBackoff returns a backoff configuration suitable for API calls.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:        500 * time.Millisecond,
		Max:            30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Delay computes the sleep before retry number attempt (0-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	cfg := c
	if cfg.Initial <= 0 {
		cfg.Initial = 500 * time.Millisecond
	}
	if cfg.Max <= 0 {
		cfg.Max = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}

	delay := float64(cfg.Initial) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.Max) {
		delay = float64(cfg.Max)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
