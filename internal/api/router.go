package api

import (
	"net/http"

	"github.com/banyanstay/notify-dispatch/internal/metrics"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /v1/messages", h.Send)
	mux.HandleFunc("POST /v1/messages/bulk", h.SendBulk)
	mux.HandleFunc("GET /v1/messages", h.ListMessages)
	mux.HandleFunc("GET /v1/messages/{id}", h.GetMessage)
	mux.HandleFunc("POST /v1/messages/{id}/cancel", h.CancelMessage)
	mux.HandleFunc("POST /v1/messages/{id}/refresh", h.RefreshMessage)

	mux.HandleFunc("POST /v1/optout", h.RegisterOptOut)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/settings/reload", h.ReloadSettings)

	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("notify-dispatch"))
	})

	return mux
}
