package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/appointment"
	"github.com/hackgods/doctor-availability-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service        *appointment.Service
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Env            string
	Version        string
	RequestTimeout time.Duration
	RateLimitRPS   int // per IP on mutating routes, 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	h := &handlers{svc: cfg.Service, log: log}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(CallerMiddleware)

		r.Get("/doctors/{doctorID}/availability", h.getAvailability)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{id}", h.getAppointment)

		r.Group(func(r chi.Router) {
			if cfg.RateLimitRPS > 0 {
				r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
			}
			r.Use(RequireCaller(log))

			r.Put("/doctors/{doctorID}/availability", h.setAvailability)
			r.Post("/appointments", h.createAppointment)
			r.Patch("/appointments/{id}", h.updateAppointment)
			r.Post("/appointments/{id}/cancel", h.transition(cfg.Service.CancelAppointment))
			r.Post("/appointments/{id}/confirm", h.transition(cfg.Service.ConfirmAppointment))
			r.Post("/appointments/{id}/complete", h.transition(cfg.Service.CompleteAppointment))
		})
	})

	return r
}
