package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/banyanstay/notify-dispatch/internal/engine"
	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/repo"
	"github.com/banyanstay/notify-dispatch/internal/scheduler"
)

type Handler struct {
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	store    repo.MessageStore
	validate *validator.Validate
}

func NewHandler(e *engine.Engine, s *scheduler.Scheduler, store repo.MessageStore) *Handler {
	return &Handler{
		engine:   e,
		sched:    s,
		store:    store,
		validate: validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type sendPayload struct {
	Destinations []string          `json:"destinations" validate:"required,min=1,dive,required"`
	TemplateID   string            `json:"template_id"`
	Body         string            `json:"body"`
	Variables    map[string]string `json:"variables"`
	Provider     string            `json:"provider"`
	Priority     string            `json:"priority" validate:"omitempty,oneof=low normal high"`
	ScheduledFor *time.Time        `json:"scheduled_for"`
	BookingID    string            `json:"booking_id"`
	UserID       string            `json:"user_id"`
	Metadata     map[string]string `json:"metadata"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var p sendPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.engine.Send(r.Context(), engine.SendRequest{
		Destinations: p.Destinations,
		TemplateID:   p.TemplateID,
		Body:         p.Body,
		Variables:    p.Variables,
		Provider:     p.Provider,
		Priority:     model.Priority(p.Priority),
		ScheduledFor: p.ScheduledFor,
		BookingID:    p.BookingID,
		UserID:       p.UserID,
		Metadata:     p.Metadata,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type bulkRecipientPayload struct {
	Destination string            `json:"destination" validate:"required"`
	Variables   map[string]string `json:"variables"`
	Metadata    map[string]string `json:"metadata"`
}

type bulkPayload struct {
	TemplateID   string                 `json:"template_id"`
	Body         string                 `json:"body"`
	Recipients   []bulkRecipientPayload `json:"recipients" validate:"required,min=1,dive"`
	Provider     string                 `json:"provider"`
	Priority     string                 `json:"priority" validate:"omitempty,oneof=low normal high"`
	ScheduledFor *time.Time             `json:"scheduled_for"`
}

func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	var p bulkPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := engine.BulkRequest{
		TemplateID:   p.TemplateID,
		Body:         p.Body,
		Provider:     p.Provider,
		Priority:     model.Priority(p.Priority),
		ScheduledFor: p.ScheduledFor,
	}
	for _, rcpt := range p.Recipients {
		req.Recipients = append(req.Recipients, engine.BulkRecipient{
			Destination: rcpt.Destination,
			Variables:   rcpt.Variables,
			Metadata:    rcpt.Metadata,
		})
	}

	res, err := h.engine.SendBulk(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	f := repo.Filter{
		Status:   model.Status(r.URL.Query().Get("status")),
		Provider: r.URL.Query().Get("provider"),
		Limit:    parseInt(r.URL.Query().Get("limit"), 50),
		Offset:   parseInt(r.URL.Query().Get("offset"), 0),
	}
	if f.Status != "" && !f.Status.Valid() {
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}

	items, err := h.store.List(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Message(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	events, err := h.engine.Events(r.Context(), m.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": m, "events": events})
}

func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *Handler) RefreshMessage(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.RefreshDeliveryStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type optOutPayload struct {
	Destination string `json:"destination" validate:"required"`
}

func (h *Handler) RegisterOptOut(w http.ResponseWriter, r *http.Request) {
	var p optOutPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := h.engine.RegisterOptOut(r.Context(), p.Destination)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registered": true, "reply": reply})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) ReloadSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ReloadSettings(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
