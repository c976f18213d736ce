package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start int64
	count int
}

// MemoryLimiter has the same fixed-window semantics as RedisLimiter but
// keeps counters in process. Suitable for single-instance deployments and
// tests.
type MemoryLimiter struct {
	ceilings func() Ceilings
	now      func() time.Time

	mu      sync.Mutex
	windows map[string]*window // provider:granularity
}

func NewMemoryLimiter(ceilings func() Ceilings) *MemoryLimiter {
	return &MemoryLimiter{
		ceilings: ceilings,
		now:      time.Now,
		windows:  make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, provider string) (bool, error) {
	c := l.ceilings()
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	type admitted struct{ w *window }
	var taken []admitted

	for _, g := range granularities {
		ceiling := ceilingFor(c, g.name)
		if ceiling <= 0 {
			continue
		}

		key := provider + ":" + g.name
		start := windowStart(now, g.size)

		w := l.windows[key]
		if w == nil || w.start != start {
			w = &window{start: start}
			l.windows[key] = w
		}
		if w.count >= ceiling {
			for _, a := range taken {
				a.w.count--
			}
			return false, nil
		}
		w.count++
		taken = append(taken, admitted{w})
	}
	return true, nil
}
