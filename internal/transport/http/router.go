package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const LivenessMessage = "Appointment Agent is live!"

type RouterConfig struct {
	Logger         *slog.Logger
	Appointments   *AppointmentsHandler
	MetricsHandler http.Handler
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready          func(ctx context.Context) error
	RequestTimeout time.Duration
	RateLimiter    *RateLimiter

	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For / X-Real-IP
	// before logging and rate limiting.
	TrustProxyHeaders bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(log.With(slog.String("component", "http"))))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(LivenessMessage))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				log.WarnContext(r.Context(), "readiness check failed", slog.Any("err", err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Appointments != nil {
		r.Group(func(api chi.Router) {
			api.Use(RateLimit(cfg.RateLimiter))
			api.Use(middleware.Timeout(timeout))
			api.Mount("/api/appointments", cfg.Appointments.Routes())
		})
	}
	return r
}
