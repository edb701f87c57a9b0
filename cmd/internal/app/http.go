package app

import (
	"net/http"
	"time"

	"united/cmd/internal/api"
)

func (a *App) registerHTTP(mux *http.ServeMux, h *api.Handler) {
	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /healthz", health)

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Storage.ReadinessRequireDB && !a.back.persistent() {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if err := a.back.ping(r.Context(), 2*time.Second); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("GET /metrics", a.metrics.Handler())

	h.Register(mux)
}
