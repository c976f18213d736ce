// Package retry decides whether and when a failed send is attempted again.
package retry

import (
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/settings"
)

type Policy struct {
	Enabled    bool
	MaxRetries int
	Backoff    []time.Duration
	Retryable  map[string]struct{}
}

func FromSettings(rs settings.Retry) Policy {
	p := Policy{
		Enabled:    rs.Enabled,
		MaxRetries: rs.MaxRetries,
		Backoff:    make([]time.Duration, 0, len(rs.BackoffSeconds)),
		Retryable:  make(map[string]struct{}, len(rs.RetryableErrors)),
	}
	for _, s := range rs.BackoffSeconds {
		p.Backoff = append(p.Backoff, time.Duration(s)*time.Second)
	}
	for _, code := range rs.RetryableErrors {
		p.Retryable[code] = struct{}{}
	}
	return p
}

// ShouldRetry reports whether a failed message gets another attempt. An
// error code outside the retryable set is terminal; a failure without any
// code (transport-level) is retried.
func (p Policy) ShouldRetry(m *model.Message) bool {
	if !p.Enabled {
		return false
	}
	if m.RetryCount >= m.MaxRetries {
		return false
	}
	if m.ErrorCode != nil && *m.ErrorCode != "" {
		if _, ok := p.Retryable[*m.ErrorCode]; !ok {
			return false
		}
	}
	return true
}

// NextDelay returns the backoff before the attempt following retryCount
// prior retries, clamped to the last table entry.
func (p Policy) NextDelay(retryCount int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := retryCount
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	if i < 0 {
		i = 0
	}
	return p.Backoff[i]
}
