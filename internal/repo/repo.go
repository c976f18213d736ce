// Package repo persists messages and their audit trail. Both stores are
// keyed by message id; the message store supports idempotent upsert, the
// event log is append-only.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

var ErrNotFound = errors.New("message not found")

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status   model.Status
	Provider string
	Limit    int
	Offset   int
}

type MessageStore interface {
	// Upsert writes the full row for m.ID, creating it when absent.
	Upsert(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	List(ctx context.Context, f Filter) ([]model.Message, error)
	// ClaimDue picks up to limit queued messages whose scheduled_for is due
	// (or absent) and marks them claimed so concurrent drains do not pick
	// the same message twice. A retry re-queue clears the claim mark.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	// CountQueued reports the current queue depth.
	CountQueued(ctx context.Context) (int, error)
}

type EventLog interface {
	Append(ctx context.Context, e *model.EventLogEntry) error
	ListByMessage(ctx context.Context, messageID string) ([]model.EventLogEntry, error)
}
