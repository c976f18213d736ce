package model

import (
	"strings"
	"testing"
)

func TestSegmentCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"empty", "", 0},
		{"single char", "a", 1},
		{"exactly one segment", strings.Repeat("a", 160), 1},
		{"one over", strings.Repeat("a", 161), 2},
		{"three segments", strings.Repeat("a", 400), 3},
		{"thai runes count as one", strings.Repeat("ก", 160), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SegmentCount(tc.body); got != tc.want {
				t.Fatalf("SegmentCount(%d chars) = %d, want %d", len(tc.body), got, tc.want)
			}
		})
	}
}

func TestNewMessage_ComputesLengthAndSegments(t *testing.T) {
	t.Parallel()

	m := NewMessage("test", "+66812345678", strings.Repeat("x", 170))
	if m.Length != 170 {
		t.Fatalf("expected length 170, got %d", m.Length)
	}
	if m.Segments != 2 {
		t.Fatalf("expected 2 segments, got %d", m.Segments)
	}
	if m.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", m.Status)
	}
	if m.ID == "" {
		t.Fatalf("expected a message id")
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{StatusPending, StatusQueued},
		{StatusPending, StatusCancelled},
		{StatusQueued, StatusQueued},
		{StatusQueued, StatusSent},
		{StatusQueued, StatusFailed},
		{StatusQueued, StatusCancelled},
		{StatusSent, StatusDelivered},
		{StatusSent, StatusFailed},
		{StatusFailed, StatusQueued},
	}
	for _, e := range allowed {
		if !CanTransition(e.from, e.to) {
			t.Errorf("expected %s -> %s to be allowed", e.from, e.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusSent, StatusQueued},
		{StatusDelivered, StatusQueued},
		{StatusDelivered, StatusFailed},
		{StatusCancelled, StatusQueued},
		{StatusFailed, StatusSent},
		{StatusQueued, StatusPending},
	}
	for _, e := range denied {
		if CanTransition(e.from, e.to) {
			t.Errorf("expected %s -> %s to be denied", e.from, e.to)
		}
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	t.Parallel()

	pid := "prov-1"
	m := NewMessage("test", "+66812345678", "hello")
	m.ProviderMessageID = &pid
	m.Metadata = map[string]string{"k": "v"}

	c := m.Clone()
	*c.ProviderMessageID = "changed"
	c.Metadata["k"] = "changed"

	if *m.ProviderMessageID != "prov-1" {
		t.Fatalf("clone aliased ProviderMessageID")
	}
	if m.Metadata["k"] != "v" {
		t.Fatalf("clone aliased Metadata")
	}
}
