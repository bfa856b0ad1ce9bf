package session

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Delay returns the retry delay for attempt N (1-based).
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || b.InitialDelay <= 0 {
		return max(b.InitialDelay, 0)
	}
	mult := math.Max(b.Multiplier, 1.0)
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

func sleepBackoff(ctx context.Context, b BackoffConfig, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(b.Delay(attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
