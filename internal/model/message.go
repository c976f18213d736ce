package model

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible. A failed
// message is not terminal here: retry re-entry moves it back to queued.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// transitions is the allowed edge set of the lifecycle. queued -> queued
// covers drain re-entry of an already queued message.
var transitions = map[Status][]Status{
	StatusPending: {StatusQueued, StatusFailed, StatusCancelled},
	StatusQueued:  {StatusQueued, StatusSent, StatusFailed, StatusCancelled},
	StatusSent:    {StatusDelivered, StatusFailed},
	StatusFailed:  {StatusQueued},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// SegmentSize is the carrier billing unit for a single text message part.
const SegmentSize = 160

func SegmentCount(body string) int {
	n := utf8.RuneCountInString(body)
	if n == 0 {
		return 0
	}
	return (n + SegmentSize - 1) / SegmentSize
}

// Message is the unit of work of the dispatch engine. It is created once,
// mutated only through status transitions and never deleted.
type Message struct {
	ID          string   `json:"id"`
	Provider    string   `json:"provider"`
	Destination string   `json:"destination"`
	Body        string   `json:"body"`
	Length      int      `json:"length"`
	Segments    int      `json:"segments"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`

	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	BookingID *string           `json:"booking_id,omitempty"`
	UserID    *string           `json:"user_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Currency  string            `json:"currency,omitempty"`

	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	ErrorCode         *string `json:"error_code,omitempty"`
	ErrorMessage      *string `json:"error_message,omitempty"`

	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewMessage(provider, destination, body string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:          uuid.NewString(),
		Provider:    provider,
		Destination: destination,
		Body:        body,
		Length:      utf8.RuneCountInString(body),
		Segments:    SegmentCount(body),
		Status:      StatusPending,
		Priority:    PriorityNormal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so stores can hand out messages without
// aliasing their internal state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.ScheduledFor = cloneTime(m.ScheduledFor)
	c.QueuedAt = cloneTime(m.QueuedAt)
	c.SentAt = cloneTime(m.SentAt)
	c.FailedAt = cloneTime(m.FailedAt)
	c.ProcessedAt = cloneTime(m.ProcessedAt)
	c.BookingID = cloneString(m.BookingID)
	c.UserID = cloneString(m.UserID)
	c.ProviderMessageID = cloneString(m.ProviderMessageID)
	c.ErrorCode = cloneString(m.ErrorCode)
	c.ErrorMessage = cloneString(m.ErrorMessage)
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
