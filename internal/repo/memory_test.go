package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

func TestMemoryMessageStore_UpsertGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryMessageStore()
	ctx := context.Background()

	m := model.NewMessage("test", "+66812345678", "hello")
	if err := s.Upsert(ctx, m); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := s.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Destination != "+66812345678" {
		t.Fatalf("unexpected destination %q", got.Destination)
	}

	// Upsert with the same id overwrites.
	m.Status = model.StatusQueued
	if err := s.Upsert(ctx, m); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	got, _ = s.Get(ctx, m.ID)
	if got.Status != model.StatusQueued {
		t.Fatalf("expected queued after upsert, got %s", got.Status)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryMessageStore_ClaimDue(t *testing.T) {
	t.Parallel()

	s := NewMemoryMessageStore()
	ctx := context.Background()
	now := time.Now().UTC()

	due := model.NewMessage("test", "+66811111111", "due")
	due.Status = model.StatusQueued

	future := model.NewMessage("test", "+66822222222", "future")
	future.Status = model.StatusQueued
	later := now.Add(time.Hour)
	future.ScheduledFor = &later

	pending := model.NewMessage("test", "+66833333333", "pending")

	for _, m := range []*model.Message{due, future, pending} {
		if err := s.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	claimed, err := s.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDue error: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due message, got %+v", claimed)
	}
	if claimed[0].ProcessedAt == nil {
		t.Fatalf("expected claim to set ProcessedAt")
	}

	// A second claim must not hand the same message out again.
	claimed, err = s.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDue error: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no messages on second claim, got %+v", claimed)
	}
}

func TestMemoryMessageStore_ClaimDue_PriorityOrder(t *testing.T) {
	t.Parallel()

	s := NewMemoryMessageStore()
	ctx := context.Background()
	now := time.Now().UTC()

	low := model.NewMessage("test", "+66811111111", "low")
	low.Status = model.StatusQueued
	low.Priority = model.PriorityLow

	high := model.NewMessage("test", "+66822222222", "high")
	high.Status = model.StatusQueued
	high.Priority = model.PriorityHigh

	for _, m := range []*model.Message{low, high} {
		if err := s.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	claimed, err := s.ClaimDue(ctx, now, 1)
	if err != nil {
		t.Fatalf("ClaimDue error: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != high.ID {
		t.Fatalf("expected high priority first, got %+v", claimed)
	}
}

func TestMemoryMessageStore_List(t *testing.T) {
	t.Parallel()

	s := NewMemoryMessageStore()
	ctx := context.Background()

	a := model.NewMessage("sms1", "+66811111111", "a")
	a.Status = model.StatusSent
	b := model.NewMessage("sms2", "+66822222222", "b")
	b.Status = model.StatusFailed

	for _, m := range []*model.Message{a, b} {
		if err := s.Upsert(ctx, m); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	items, err := s.List(ctx, Filter{Status: model.StatusSent})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("expected only sent message, got %+v", items)
	}

	items, err = s.List(ctx, Filter{Provider: "sms2"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(items) != 1 || items[0].ID != b.ID {
		t.Fatalf("expected only sms2 message, got %+v", items)
	}
}

func TestMemoryEventLog_AppendOrder(t *testing.T) {
	t.Parallel()

	l := NewMemoryEventLog()
	ctx := context.Background()

	for _, kind := range []model.EventKind{model.EventQueued, model.EventSent} {
		if err := l.Append(ctx, model.NewEvent("m1", kind, "", nil)); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	events, err := l.ListByMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("ListByMessage error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != model.EventQueued || events[1].Kind != model.EventSent {
		t.Fatalf("expected append order preserved, got %+v", events)
	}
}
