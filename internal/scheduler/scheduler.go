// Package scheduler runs the periodic queue drain. Scheduled sends,
// rate-limited sends and retries all re-enter delivery through the same
// drain path.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DrainFunc resubmits due queued messages and reports what happened.
type DrainFunc func(ctx context.Context) (drained, sent, failed int, err error)

type Scheduler struct {
	interval time.Duration
	drain    DrainFunc

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, drain DrainFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if drain == nil {
		return nil, errors.New("drain must not be nil")
	}
	return &Scheduler{
		interval: interval,
		drain:    drain,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("drain scheduler started", "interval", s.interval.String())

		s.safeDrain(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("drain scheduler stopping")
				return
			case <-ticker.C:
				s.safeDrain(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("drain scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) safeDrain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("drain cycle panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	drained, sent, failed, err := s.drain(ctx)
	if err != nil {
		slog.Error("drain cycle failed", "error", err)
		return
	}
	slog.Info("drain cycle completed",
		"drained", drained,
		"sent", sent,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
