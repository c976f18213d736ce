// Package ratelimit enforces per-provider throughput ceilings at minute,
// hour and day granularity. The three ceilings are independent fixed
// windows; the tightest one wins. A denial is never an error condition for
// the caller: the engine queues the message instead of dropping it.
package ratelimit

import (
	"context"
	"time"
)

// Ceilings are the window limits for one provider. Zero means unlimited at
// that granularity.
type Ceilings struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Limiter admits or defers a send for a provider.
type Limiter interface {
	Allow(ctx context.Context, provider string) (bool, error)
}

type granularity struct {
	name string
	size time.Duration
}

var granularities = []granularity{
	{"minute", time.Minute},
	{"hour", time.Hour},
	{"day", 24 * time.Hour},
}

func ceilingFor(c Ceilings, name string) int {
	switch name {
	case "minute":
		return c.PerMinute
	case "hour":
		return c.PerHour
	case "day":
		return c.PerDay
	}
	return 0
}

func windowStart(now time.Time, size time.Duration) int64 {
	return now.UnixNano() / int64(size)
}
