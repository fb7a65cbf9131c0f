package session

import (
	"math/rand"
	"time"
)

// GenerationDelay is how long a session waits before building its next
// connection generation after failed consecutive generations never reached
// connect. With no failures the next generation starts at once.
func GenerationDelay(cfg BackoffConfig, failed int, rng *rand.Rand) time.Duration {
	if failed <= 0 || cfg.InitialDelay <= 0 {
		return 0
	}
	growth := max(cfg.Multiplier, 1.0)
	delay := cfg.InitialDelay
	for i := 1; i < failed; i++ {
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			break
		}
		delay = time.Duration(float64(delay) * growth)
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && rng != nil {
		// Uniform over [delay/2, delay].
		half := delay / 2
		delay = half + time.Duration(rng.Int63n(int64(delay-half)+1))
	}
	return delay
}
