package linking

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterStore hands out one token bucket per Discord user
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	r        rate.Limit
	b        int
	ttl      time.Duration
}

type userLimiter struct {
	lim     *rate.Limiter
	lastHit time.Time
}

func newLimiterStore(r rate.Limit, burst int, ttl time.Duration) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*userLimiter),
		r:        r,
		b:        burst,
		ttl:      ttl,
	}
}

func (s *limiterStore) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// lazy cleanup
	for k, v := range s.limiters {
		if now.Sub(v.lastHit) > s.ttl {
			delete(s.limiters, k)
		}
	}

	ul, ok := s.limiters[key]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(s.r, s.b)}
		s.limiters[key] = ul
	}
	ul.lastHit = now
	return ul.lim.AllowN(now, 1)
}
