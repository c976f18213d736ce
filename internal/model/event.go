package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventSent      EventKind = "sent"
	EventFailed    EventKind = "failed"
	EventRetry     EventKind = "retry"
	EventDelivered EventKind = "delivered"
	EventCancelled EventKind = "cancelled"
)

// EventLogEntry is one row of the append-only audit trail. Entries are never
// mutated after being written.
type EventLogEntry struct {
	ID        string            `json:"id"`
	MessageID string            `json:"message_id"`
	At        time.Time         `json:"at"`
	Kind      EventKind         `json:"kind"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewEvent(messageID string, kind EventKind, detail string, metadata map[string]string) *EventLogEntry {
	return &EventLogEntry{
		ID:        uuid.NewString(),
		MessageID: messageID,
		At:        time.Now().UTC(),
		Kind:      kind,
		Detail:    detail,
		Metadata:  metadata,
	}
}
