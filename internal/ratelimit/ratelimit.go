// Package ratelimit keeps one token bucket per caller key.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Keyed hands out a rate.Limiter per key, each allowing perMin requests per
// minute with a burst of perMin.
type Keyed struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewKeyed(perMin int) *Keyed {
	if perMin <= 0 {
		perMin = 60
	}
	return &Keyed{
		limit:    rate.Limit(float64(perMin) / 60.0),
		burst:    perMin,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}
	if key == "" {
		key = "default"
	}

	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}
