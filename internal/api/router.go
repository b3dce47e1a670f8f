package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-appointment-client/internal/booking"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
)

type RouterConfig struct {
	Sessions Sessions
	Booking  *booking.Service
	Doctors  Doctors
	Backend  Backend
	Store    Pinger
	Tokens   *TokenIssuer
	Metrics  *Metrics
	Gatherer prometheus.Gatherer
	Logger   *logrus.Entry
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Store, cfg.Backend, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/auth/signin", signInHandler(cfg.Sessions, cfg.Tokens, cfg.Metrics))
	r.Post("/auth/signup", signUpHandler(cfg.Sessions, cfg.Tokens, cfg.Metrics))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Sessions))

		r.Post("/auth/signout", signOutHandler(cfg.Sessions))

		r.Get("/view", viewHandler)
		r.Post("/view/tab", selectTabHandler(cfg.Sessions))
		r.Post("/view/date", selectDateHandler(cfg.Sessions))
		r.Put("/view/appointments/{id}/status", updateStatusHandler(cfg.Sessions))
		r.Post("/view/appointments", createAppointmentHandler(cfg.Sessions, cfg.Booking))

		r.Get("/doctors", listDoctorsHandler(cfg.Doctors))
		r.Get("/dashboard", dashboardHandler)
	})

	return r
}
