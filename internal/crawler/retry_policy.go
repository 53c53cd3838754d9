package crawler

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// RetryPolicy controls how often a provider is retried and how long the
// orchestrator waits between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Exponential bool
}

// DefaultRetryPolicy returns two attempts with a 2s exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
		Exponential: true,
	}
}

// Attempts returns MaxAttempts, never less than one.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the wait before the attempt following the given one
// (attempt is 1-based). Exponential policies grow base*2^(attempt-1), linear
// ones base*attempt. The upper half of the delay is jittered.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	var delay float64
	if p.Exponential {
		delay = float64(p.BaseBackoff) * math.Pow(2, float64(attempt-1))
	} else {
		delay = float64(p.BaseBackoff) * float64(attempt)
	}
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(time.Duration(delay)-half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
