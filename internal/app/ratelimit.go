package app

import (
	"sync"
	"time"
)

// JoinRateLimiter bounds how often one caller (keyed by client token or
// address) may join a waiting list within a sliding window.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[key] = fresh
	return true
}
