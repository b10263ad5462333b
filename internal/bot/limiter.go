package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

// idleTTL is how long an identity's bucket survives without traffic.
const idleTTL = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter is a per-identity token bucket. A nil *Limiter allows everything.
type Limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[identity.ID]*bucket
	lastGC  time.Time
	now     func() time.Time
}

// NewLimiter allows perMinute commands per identity with the given burst.
// perMinute <= 0 disables limiting.
func NewLimiter(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		every:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		buckets: make(map[identity.ID]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token from id's bucket.
func (l *Limiter) Allow(id identity.ID) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[id] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
