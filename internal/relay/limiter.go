package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiter hands out one token bucket per conversation. Buckets idle for
// longer than idle are dropped on the next sweep.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// newLimiter allows maxMessages per window for each key. Zero
// disables limiting.
func newLimiter(maxMessages int, window time.Duration) *limiter {
	if maxMessages <= 0 || window <= 0 {
		return nil
	}
	return &limiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(maxMessages)),
		burst:   maxMessages,
		idle:    2 * window,
		now:     time.Now,
	}
}

// Allow reports whether key may send now. A nil limiter allows all.
func (l *limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
