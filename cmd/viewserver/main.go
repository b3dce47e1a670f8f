package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackgods/clinic-appointment-client/internal/api"
	"github.com/hackgods/clinic-appointment-client/internal/booking"
	"github.com/hackgods/clinic-appointment-client/internal/config"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
	redisclient "github.com/hackgods/clinic-appointment-client/internal/redis"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
	"github.com/hackgods/clinic-appointment-client/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").WithError(err).Fatal("config load error")
	}

	base := logger.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.Component(base, "viewserver")
	log.WithField("env", cfg.Env).WithField("http_port", cfg.HTTPPort).Info("viewserver starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := remote.New(cfg.APIBaseURL, cfg.HTTPClientTimeout,
		remote.WithLogger(logger.Component(base, "remote")),
		remote.WithMetrics(remote.NewMetrics(reg)),
	)

	// Connect Redis
	rdb, err := redisclient.NewClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.WithError(err).Fatal("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("error closing redis")
		}
	}()
	log.WithField("addr", cfg.RedisAddr).Info("connected to Redis")
	store := redisclient.NewSessionStore(rdb)

	cacheOpts := []reconcile.Option{
		reconcile.WithLogger(logger.Component(base, "reconcile")),
		reconcile.WithRetry(reconcile.RetryPolicy{
			Attempts: cfg.ReadRetryAttempts,
			Initial:  cfg.ReadRetryInitialInterval,
		}),
	}
	if cfg.RollbackOnFailure {
		cacheOpts = append(cacheOpts, reconcile.WithRollbackOnFailure())
	}

	manager, err := session.NewManager(client, store,
		session.WithTTL(cfg.SessionTTL),
		session.WithCacheSize(cfg.SessionCacheSize),
		session.WithCacheOptions(cacheOpts...),
		session.WithLogger(logger.Component(base, "session")),
	)
	if err != nil {
		log.WithError(err).Fatal("session manager error")
	}
	defer manager.Close()

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.Env == "prod" {
			log.Fatal("JWT_SECRET is required in prod")
		}
		secret = uuid.NewString()
		log.Warn("JWT_SECRET not set, tokens will not survive a restart")
	}

	handler := api.NewRouter(api.RouterConfig{
		Sessions: manager,
		Booking:  booking.NewService(client, logger.Component(base, "booking")),
		Doctors:  client,
		Backend:  client,
		Store:    store,
		Tokens:   api.NewTokenIssuer(secret, cfg.SessionTTL),
		Metrics:  api.NewMetrics(reg),
		Gatherer: reg,
		Logger:   logger.Component(base, "http"),
		Env:      cfg.Env,
		Version:  cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go manager.RunRefresher(rootCtx, cfg.RefreshInterval)

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down viewserver")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}
}
