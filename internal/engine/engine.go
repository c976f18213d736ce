// Package engine orchestrates the outbound message pipeline: normalize,
// gate, render, rate-limit, dispatch, and the lifecycle bookkeeping around
// it. Every state transition writes the message row and exactly one event
// log entry; if either write fails the operation surfaces an error instead
// of leaving half-recorded state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/compliance"
	"github.com/banyanstay/notify-dispatch/internal/metrics"
	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/phone"
	"github.com/banyanstay/notify-dispatch/internal/provider"
	"github.com/banyanstay/notify-dispatch/internal/ratelimit"
	"github.com/banyanstay/notify-dispatch/internal/repo"
	"github.com/banyanstay/notify-dispatch/internal/retry"
	"github.com/banyanstay/notify-dispatch/internal/settings"
	"github.com/banyanstay/notify-dispatch/internal/template"
)

// Result codes of the error taxonomy. Failures reach callers as structured
// results, never as panics.
const (
	CodeDisabled           = "DISABLED"
	CodeInvalidDestination = "INVALID_DESTINATION"
	CodeBlocked            = "BLOCKED"
	CodeTemplateNotFound   = "TEMPLATE_NOT_FOUND"
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeSendFailed         = "SEND_FAILED"
)

type SendRequest struct {
	Destinations []string
	TemplateID   string
	Body         string
	Variables    map[string]string
	Provider     string
	Priority     model.Priority
	ScheduledFor *time.Time
	BookingID    string
	UserID       string
	Metadata     map[string]string
}

type SendResult struct {
	Success   bool         `json:"success"`
	MessageID string       `json:"message_id,omitempty"`
	Status    model.Status `json:"status,omitempty"`
	Code      string       `json:"code,omitempty"`
	Error     string       `json:"error,omitempty"`
	Bulk      *BulkResult  `json:"bulk,omitempty"`
}

func failure(code, msg string) *SendResult {
	return &SendResult{Success: false, Code: code, Error: msg}
}

type Deps struct {
	Settings  *settings.Store
	Messages  repo.MessageStore
	Events    repo.EventLog
	Templates template.Store
	Registry  *provider.Registry
	Limiter   ratelimit.Limiter
	Gate      *compliance.Gate
	Phones    *phone.Normalizer
}

type Engine struct {
	settings  *settings.Store
	messages  repo.MessageStore
	events    repo.EventLog
	renderer  *template.Renderer
	registry  *provider.Registry
	limiter   ratelimit.Limiter
	gate      *compliance.Gate
	phones    *phone.Normalizer

	locks keyedMutex
	now   func() time.Time
}

func New(d Deps) *Engine {
	return &Engine{
		settings: d.Settings,
		messages: d.Messages,
		events:   d.Events,
		renderer: template.NewRenderer(d.Templates),
		registry: d.Registry,
		limiter:  d.Limiter,
		gate:     d.Gate,
		phones:   d.Phones,
		now:      time.Now,
	}
}

// Send runs one logical send request through the pipeline. More than one
// destination delegates to the bulk coordinator; the aggregate is attached
// to the returned result. The returned error covers infrastructure faults
// only (storage writes); domain failures come back inside the result.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	switch len(req.Destinations) {
	case 0:
		return failure(CodeInvalidDestination, "No destination supplied"), nil
	case 1:
		_, res, err := e.sendOne(ctx, req)
		return res, err
	}

	bulkReq := BulkRequest{
		TemplateID:   req.TemplateID,
		Body:         req.Body,
		Provider:     req.Provider,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
	}
	for _, dest := range req.Destinations {
		bulkReq.Recipients = append(bulkReq.Recipients, BulkRecipient{
			Destination: dest,
			Variables:   req.Variables,
			Metadata:    req.Metadata,
		})
	}
	bulk, err := e.SendBulk(ctx, bulkReq)
	if err != nil {
		return nil, err
	}
	res := &SendResult{Success: bulk.Failed == 0, Bulk: bulk}
	if bulk.Failed > 0 {
		res.Code = CodeSendFailed
		res.Error = fmt.Sprintf("%d of %d recipients failed", bulk.Failed, bulk.Total)
	}
	return res, nil
}

// sendOne is the single-destination pipeline. It returns the created
// message (nil when the request was rejected before creation) alongside the
// caller-facing result.
func (e *Engine) sendOne(ctx context.Context, req SendRequest) (*model.Message, *SendResult, error) {
	cfg := e.settings.Current()
	if !cfg.Enabled {
		return nil, failure(CodeDisabled, "Message dispatch is disabled"), nil
	}

	dest, err := e.phones.Normalize(req.Destinations[0])
	if err != nil {
		return nil, failure(CodeInvalidDestination, "Invalid phone number"), nil
	}

	// Blacklist and opt-out reject before any record is created. Quiet
	// hours need the template category and are checked after rendering.
	if veto := e.gate.Check(dest, "", e.now()); veto != nil {
		return nil, failure(CodeBlocked, veto.Message), nil
	}

	body := req.Body
	category := model.TemplateCategory("")
	if req.TemplateID != "" {
		suffix := ""
		if cfg.Compliance.RequireOptOutSuffix {
			suffix = cfg.Compliance.OptOutSuffix
		}
		body, category, err = e.renderer.RenderTemplate(ctx, req.TemplateID, req.Variables, suffix)
		if err != nil {
			if errors.Is(err, template.ErrNotFound) {
				return nil, failure(CodeTemplateNotFound, "Template not found"), nil
			}
			return nil, nil, fmt.Errorf("render template: %w", err)
		}
	}
	if strings.TrimSpace(body) == "" {
		return nil, failure(CodeEmptyMessage, "Message body is empty"), nil
	}

	if veto := e.gate.Check(dest, category, e.now()); veto != nil {
		return nil, failure(CodeBlocked, veto.Message), nil
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	if cfg.TestMode.Enabled && !allowedInTestMode(cfg.TestMode, dest) {
		providerName = "test"
	}

	m := model.NewMessage(providerName, dest, body)
	m.MaxRetries = cfg.Retry.MaxRetries
	m.Currency = cfg.Currency
	if req.Priority.Valid() {
		m.Priority = req.Priority
	}
	if req.ScheduledFor != nil {
		t := req.ScheduledFor.UTC()
		m.ScheduledFor = &t
	}
	if req.BookingID != "" {
		m.BookingID = &req.BookingID
	}
	if req.UserID != "" {
		m.UserID = &req.UserID
	}
	m.Metadata = req.Metadata

	if err := e.messages.Upsert(ctx, m); err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}

	now := e.now()
	if m.ScheduledFor != nil && m.ScheduledFor.After(now) {
		if err := e.transition(ctx, m, model.StatusQueued, model.EventQueued,
			fmt.Sprintf("scheduled for %s", m.ScheduledFor.Format(time.RFC3339)), nil); err != nil {
			return m, nil, err
		}
		metrics.Queued()
		e.warnQueueDepth(ctx, cfg)
		return m, &SendResult{Success: true, MessageID: m.ID, Status: m.Status}, nil
	}

	allowed, err := e.limiter.Allow(ctx, providerName)
	if err != nil {
		// The limiter failing open beats dropping or stalling sends.
		slog.Error("rate limiter unavailable, admitting send", "provider", providerName, "error", err)
		allowed = true
	}
	if !allowed {
		if err := e.transition(ctx, m, model.StatusQueued, model.EventQueued, "rate limited", nil); err != nil {
			return m, nil, err
		}
		metrics.Queued()
		e.warnQueueDepth(ctx, cfg)
		return m, &SendResult{Success: true, MessageID: m.ID, Status: m.Status}, nil
	}

	if err := e.sendNow(ctx, m); err != nil {
		return m, nil, err
	}
	return m, resultFor(m), nil
}

func resultFor(m *model.Message) *SendResult {
	res := &SendResult{MessageID: m.ID, Status: m.Status}
	switch {
	case m.Status == model.StatusSent:
		res.Success = true
	case m.ErrorMessage != nil:
		res.Code = CodeSendFailed
		res.Error = *m.ErrorMessage
	default:
		res.Success = true
	}
	return res
}

// sendNow hands the message to its provider adapter and applies the
// resulting transitions. Per-message mutation is serialized on the id so a
// concurrent status webhook cannot interleave with a retry being scheduled.
func (e *Engine) sendNow(ctx context.Context, m *model.Message) error {
	unlock := e.locks.lock(m.ID)
	defer unlock()

	cfg := e.settings.Current()
	adapter := e.registry.Resolve(m.Provider)

	if err := e.transition(ctx, m, model.StatusQueued, model.EventQueued, "dispatching via "+adapter.Name(), nil); err != nil {
		return err
	}

	start := e.now()
	providerMessageID, sendErr := adapter.Send(ctx, m.Destination, m.Body)
	metrics.ObserveSendDuration(adapter.Name(), e.now().Sub(start))

	if sendErr == nil {
		m.ProviderMessageID = &providerMessageID
		if err := e.transition(ctx, m, model.StatusSent, model.EventSent,
			"provider message id "+providerMessageID, nil); err != nil {
			return err
		}
		metrics.SendSucceeded(adapter.Name())
		return nil
	}

	code, msg := classifySendError(sendErr)
	m.ErrorCode = &code
	m.ErrorMessage = &msg
	if err := e.transition(ctx, m, model.StatusFailed, model.EventFailed, msg,
		map[string]string{"code": code}); err != nil {
		return err
	}
	metrics.SendFailed(adapter.Name(), code)

	policy := retry.FromSettings(cfg.Retry)
	if !policy.ShouldRetry(m) {
		return nil
	}

	delay := policy.NextDelay(m.RetryCount)
	m.RetryCount++
	next := e.now().Add(delay).UTC()
	m.ScheduledFor = &next
	m.ProcessedAt = nil
	if err := e.transition(ctx, m, model.StatusQueued, model.EventRetry,
		fmt.Sprintf("retry %d/%d in %s", m.RetryCount, m.MaxRetries, delay), nil); err != nil {
		return err
	}
	metrics.RetryScheduled()
	return nil
}

func classifySendError(err error) (code, msg string) {
	var se *provider.SendError
	if errors.As(err, &se) {
		return se.Code, se.Message
	}
	return CodeSendFailed, err.Error()
}

// DrainDue claims queued messages whose schedule is due and resubmits them.
// Invoked by the periodic drain scheduler; safe to run concurrently because
// claiming marks each message before it is handed out.
func (e *Engine) DrainDue(ctx context.Context, limit int) (drained, sent, failed int, err error) {
	if limit <= 0 {
		limit = e.settings.Current().Queue.BatchSize
	}

	msgs, err := e.messages.ClaimDue(ctx, e.now(), limit)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("claim due messages: %w", err)
	}
	drained = len(msgs)
	metrics.Drained(drained)

	for i := range msgs {
		m := &msgs[i]

		allowed, lerr := e.limiter.Allow(ctx, m.Provider)
		if lerr != nil {
			slog.Error("rate limiter unavailable, admitting drain", "provider", m.Provider, "error", lerr)
			allowed = true
		}
		if !allowed {
			// Release the claim; the next cycle picks the message up again.
			m.ProcessedAt = nil
			if err := e.messages.Upsert(ctx, m); err != nil {
				slog.Error("release rate limited message", "message_id", m.ID, "error", err)
			}
			drained--
			continue
		}

		if err := e.sendNow(ctx, m); err != nil {
			slog.Error("drain send failed", "message_id", m.ID, "error", err)
			failed++
			continue
		}
		if m.Status == model.StatusSent {
			sent++
		} else {
			failed++
		}
	}
	return drained, sent, failed, nil
}

// Cancel transitions a not-yet-dispatched message to the terminal cancelled
// state. In-flight provider calls cannot be interrupted.
func (e *Engine) Cancel(ctx context.Context, messageID string) error {
	unlock := e.locks.lock(messageID)
	defer unlock()

	m, err := e.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if m.Status != model.StatusPending && m.Status != model.StatusQueued {
		return fmt.Errorf("cannot cancel message in status %s", m.Status)
	}
	return e.transition(ctx, m, model.StatusCancelled, model.EventCancelled, "cancelled before dispatch", nil)
}

// RefreshDeliveryStatus asks the provider for the delivery outcome of a
// sent message and applies it. Callers must not assume sent means
// delivered; this is the separate confirmation path.
func (e *Engine) RefreshDeliveryStatus(ctx context.Context, messageID string) (model.Status, error) {
	unlock := e.locks.lock(messageID)
	defer unlock()

	m, err := e.messages.Get(ctx, messageID)
	if err != nil {
		return "", err
	}
	if m.Status != model.StatusSent || m.ProviderMessageID == nil {
		return m.Status, nil
	}

	adapter := e.registry.Resolve(m.Provider)
	status, err := adapter.DeliveryStatus(ctx, *m.ProviderMessageID)
	if err != nil {
		return m.Status, fmt.Errorf("delivery status query: %w", err)
	}

	switch status {
	case model.StatusDelivered:
		if err := e.transition(ctx, m, model.StatusDelivered, model.EventDelivered, "delivery confirmed", nil); err != nil {
			return m.Status, err
		}
	case model.StatusFailed:
		code := "DELIVERY_FAILED"
		m.ErrorCode = &code
		m.ErrorMessage = &code
		if err := e.transition(ctx, m, model.StatusFailed, model.EventFailed, "delivery failed", nil); err != nil {
			return m.Status, err
		}
	}
	return m.Status, nil
}

// RegisterOptOut is the external inbound hook: called when a destination
// replied with an opt-out keyword. Returns the configured auto-reply text.
func (e *Engine) RegisterOptOut(_ context.Context, rawDestination string) (string, error) {
	dest, err := e.phones.Normalize(rawDestination)
	if err != nil {
		return "", err
	}
	e.gate.RegisterOptOut(dest)
	metrics.OptOutRegistered()
	slog.Info("opt-out registered", "destination", dest)
	return e.settings.Current().Compliance.OptOutReply, nil
}

// ReloadSettings re-reads the settings source and rebuilds everything
// derived from it: blacklist regexes and the provider registry.
func (e *Engine) ReloadSettings() error {
	if err := e.settings.Reload(); err != nil {
		return err
	}
	cfg := e.settings.Current()
	if err := e.gate.Apply(cfg.Compliance); err != nil {
		return fmt.Errorf("apply compliance settings: %w", err)
	}
	e.registry.Rebuild(cfg.Providers)
	slog.Info("dispatch settings reloaded")
	return nil
}

func (e *Engine) Message(ctx context.Context, id string) (*model.Message, error) {
	return e.messages.Get(ctx, id)
}

func (e *Engine) Events(ctx context.Context, messageID string) ([]model.EventLogEntry, error) {
	return e.events.ListByMessage(ctx, messageID)
}

// transition applies one lifecycle step: validate the edge, stamp the
// status timestamps, persist the row and append the audit entry.
func (e *Engine) transition(ctx context.Context, m *model.Message, to model.Status, kind model.EventKind, detail string, meta map[string]string) error {
	if !model.CanTransition(m.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for message %s", m.Status, to, m.ID)
	}

	now := e.now().UTC()
	from := m.Status
	m.Status = to
	m.UpdatedAt = now
	switch to {
	case model.StatusQueued:
		m.QueuedAt = &now
	case model.StatusSent:
		m.SentAt = &now
	case model.StatusFailed:
		m.FailedAt = &now
	}

	if err := e.messages.Upsert(ctx, m); err != nil {
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	if err := e.events.Append(ctx, model.NewEvent(m.ID, kind, detail, meta)); err != nil {
		return fmt.Errorf("log transition %s -> %s: %w", from, to, err)
	}

	slog.Info("message transition",
		"message_id", m.ID,
		"from", from,
		"to", to,
		"provider", m.Provider,
	)
	return nil
}

func (e *Engine) warnQueueDepth(ctx context.Context, cfg *settings.Settings) {
	if cfg.Queue.MaxDepth <= 0 {
		return
	}
	n, err := e.messages.CountQueued(ctx)
	if err != nil {
		return
	}
	if n > cfg.Queue.MaxDepth {
		slog.Warn("queue depth above configured maximum", "depth", n, "max_depth", cfg.Queue.MaxDepth)
	}
}

func allowedInTestMode(tm settings.TestMode, dest string) bool {
	for _, n := range tm.AllowNumbers {
		if n == dest {
			return true
		}
	}
	return false
}
