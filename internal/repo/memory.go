package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

// MemoryMessageStore keeps messages in process. It backs tests and
// storeless deployments; clones on every boundary so callers never alias
// internal state.
type MemoryMessageStore struct {
	mu   sync.Mutex
	byID map[string]*model.Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{byID: make(map[string]*model.Message)}
}

func (s *MemoryMessageStore) Upsert(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.ID] = m.Clone()
	return nil
}

func (s *MemoryMessageStore) Get(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryMessageStore) List(_ context.Context, f Filter) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*model.Message
	for _, m := range s.byID {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Provider != "" && m.Provider != f.Provider {
			continue
		}
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	out := make([]model.Message, 0, end-offset)
	for _, m := range all[offset:end] {
		out = append(out, *m.Clone())
	}
	return out, nil
}

func (s *MemoryMessageStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*model.Message
	for _, m := range s.byID {
		if m.Status != model.StatusQueued || m.ProcessedAt != nil {
			continue
		}
		if m.ScheduledFor != nil && m.ScheduledFor.After(now) {
			continue
		}
		due = append(due, m)
	}
	sort.Slice(due, func(i, j int) bool {
		if pi, pj := priorityRank(due[i].Priority), priorityRank(due[j].Priority); pi != pj {
			return pi < pj
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := now.UTC()
	out := make([]model.Message, 0, len(due))
	for _, m := range due {
		t := claimed
		m.ProcessedAt = &t
		m.UpdatedAt = claimed
		out = append(out, *m.Clone())
	}
	return out, nil
}

func (s *MemoryMessageStore) CountQueued(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.byID {
		if m.Status == model.StatusQueued {
			n++
		}
	}
	return n, nil
}

func priorityRank(p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 0
	case model.PriorityNormal:
		return 1
	default:
		return 2
	}
}

// MemoryEventLog is the in-process audit trail counterpart.
type MemoryEventLog struct {
	mu        sync.Mutex
	byMessage map[string][]model.EventLogEntry
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{byMessage: make(map[string][]model.EventLogEntry)}
}

func (l *MemoryEventLog) Append(_ context.Context, e *model.EventLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byMessage[e.MessageID] = append(l.byMessage[e.MessageID], *e)
	return nil
}

func (l *MemoryEventLog) ListByMessage(_ context.Context, messageID string) ([]model.EventLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.byMessage[messageID]
	out := make([]model.EventLogEntry, len(src))
	copy(out, src)
	return out, nil
}
