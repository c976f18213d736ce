// Package provider isolates carrier differences behind the Adapter
// contract. The registry always resolves to some adapter: a misconfigured
// provider name degrades to the built-in test adapter instead of losing the
// notification.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/settings"
)

// Adapter is the provider-specific delivery port.
type Adapter interface {
	Name() string
	Send(ctx context.Context, destination, body string) (providerMessageID string, err error)
	DeliveryStatus(ctx context.Context, providerMessageID string) (model.Status, error)
}

// BalanceReporter is implemented by adapters whose carrier exposes an
// account balance query.
type BalanceReporter interface {
	Balance(ctx context.Context) (float64, error)
}

// CostEstimator is implemented by adapters that know their per-segment
// price, used for bulk cost aggregation.
type CostEstimator interface {
	EstimateCost(segments int) float64
}

// SendError is a provider-reported delivery failure. Code feeds the
// retryable-error matching in the retry policy.
type SendError struct {
	Code    string
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// Registry holds the active adapters. Resolve never returns nil.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	fallback Adapter
}

func NewRegistry() *Registry {
	fb := NewTestAdapter("test")
	return &Registry{
		adapters: map[string]Adapter{fb.Name(): fb},
		fallback: fb,
	}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

// Resolve returns the adapter for name, or the test fallback when the name
// is unknown. The platform must never silently lose a notification because
// of a misconfiguration.
func (r *Registry) Resolve(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[name]; ok {
		return a
	}
	slog.Warn("provider not registered, falling back to test adapter", "provider", name)
	return r.fallback
}

// Rebuild replaces the registered adapters from configuration. Inactive or
// malformed entries are skipped with a warning rather than failing startup.
func (r *Registry) Rebuild(cfgs []settings.ProviderConfig) {
	adapters := make(map[string]Adapter)
	adapters[r.fallback.Name()] = r.fallback

	for _, pc := range cfgs {
		if !pc.Active {
			continue
		}
		a, err := buildAdapter(pc)
		if err != nil {
			slog.Warn("skipping malformed provider config", "provider", pc.Name, "error", err)
			continue
		}
		adapters[a.Name()] = a
	}

	r.mu.Lock()
	r.adapters = adapters
	r.mu.Unlock()
}

func buildAdapter(pc settings.ProviderConfig) (Adapter, error) {
	if pc.Name == "" {
		return nil, fmt.Errorf("provider name is empty")
	}
	switch pc.Kind {
	case "test":
		return NewTestAdapter(pc.Name), nil
	case "http":
		if pc.URL == "" {
			return nil, fmt.Errorf("http provider requires a url")
		}
		return NewWebhookAdapter(pc.Name, pc.URL, pc.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}
