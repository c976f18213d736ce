package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

// TestSend is one call recorded by the test adapter.
type TestSend struct {
	Destination string
	Body        string
}

// TestAdapter delivers nowhere. It backs environments without carrier
// credentials and is the registry fallback; tests use its failure injection
// and call recording.
type TestAdapter struct {
	name string

	mu       sync.Mutex
	seq      int
	sent     []TestSend
	failures map[string]*SendError
	statuses map[string]model.Status
	cost     float64
}

func NewTestAdapter(name string) *TestAdapter {
	return &TestAdapter{
		name:     name,
		failures: make(map[string]*SendError),
		statuses: make(map[string]model.Status),
	}
}

func (a *TestAdapter) Name() string { return a.name }

// FailDestination makes every Send to destination fail with the given code
// until ClearFailures is called.
func (a *TestAdapter) FailDestination(destination, code, message string) {
	a.mu.Lock()
	a.failures[destination] = &SendError{Code: code, Message: message}
	a.mu.Unlock()
}

func (a *TestAdapter) ClearFailures() {
	a.mu.Lock()
	a.failures = make(map[string]*SendError)
	a.mu.Unlock()
}

// SetCostPerSegment makes the adapter report per-message cost.
func (a *TestAdapter) SetCostPerSegment(cost float64) {
	a.mu.Lock()
	a.cost = cost
	a.mu.Unlock()
}

func (a *TestAdapter) Send(_ context.Context, destination, body string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if se, ok := a.failures[destination]; ok {
		return "", se
	}

	a.seq++
	id := fmt.Sprintf("%s-%d", a.name, a.seq)
	a.sent = append(a.sent, TestSend{Destination: destination, Body: body})
	a.statuses[id] = model.StatusDelivered
	return id, nil
}

func (a *TestAdapter) DeliveryStatus(_ context.Context, providerMessageID string) (model.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.statuses[providerMessageID]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown message id %q", providerMessageID)
}

func (a *TestAdapter) Balance(context.Context) (float64, error) {
	return 0, nil
}

func (a *TestAdapter) EstimateCost(segments int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cost * float64(segments)
}

// Sent returns a copy of the recorded sends.
func (a *TestAdapter) Sent() []TestSend {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TestSend, len(a.sent))
	copy(out, a.sent)
	return out
}
