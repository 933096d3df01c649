package auth

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter throttles repeated authentication attempts per identifier
// (typically a lower-cased email). It is in-process and best-effort: the
// authoritative credential checks still run for every admitted attempt.
type AttemptLimiter struct {
	mu      sync.Mutex
	buckets map[string]*attemptBucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

type attemptBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter allows burst immediate attempts per identifier and then
// refills at perMinute attempts per minute. Idle buckets are pruned lazily
// on access; no background sweeper runs.
func NewAttemptLimiter(burst, perMinute int) *AttemptLimiter {
	return &AttemptLimiter{
		buckets: make(map[string]*attemptBucket),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		ttl:     15 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether another attempt for the identifier is admitted.
func (l *AttemptLimiter) Allow(identifier string) bool {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[identifier]
	if !ok {
		b = &attemptBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identifier] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *AttemptLimiter) prune(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, k)
		}
	}
}
