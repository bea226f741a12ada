package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackOff returns an exponential backoff doubling from initial up to max.
// jitter is the randomization factor applied to every interval; 0 keeps it deterministic.
// It never stops on its own: callers bound it with retries or a context.
func NewBackOff(initial, max time.Duration, jitter float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = JitterFactor(jitter)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// JitterFraction expresses an absolute jitter as a fraction of d
func JitterFraction(d, jitter time.Duration) float64 {
	if d <= 0 || jitter <= 0 {
		return 0
	}
	return JitterFactor(float64(jitter) / float64(d))
}

// JitterFactor clamps a randomization factor to [0, 1]
func JitterFactor(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
