package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/api"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/audit"
	"github.com/hackgods/dental-clinic-portal/internal/config"
	"github.com/hackgods/dental-clinic-portal/internal/db"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/metrics"
	"github.com/hackgods/dental-clinic-portal/internal/session"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "store", cfg.StoreDriver)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := db.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("backend connection error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	m := metrics.NewPortalMetrics(prometheus.DefaultRegisterer)
	events := audit.NewLog(backend.Docs, logger)

	dir, err := account.NewDirectory(backend.Docs, account.NewSecretIssuer(cfg.AdminSecret), logger,
		account.WithAudit(events), account.WithMetrics(m))
	if err != nil {
		logger.Error("directory init error", "error", err)
		os.Exit(1)
	}

	registry := appointment.NewRegistry(appointment.Deps{
		Repo:     appointment.NewDocRepository(backend.Docs, logger),
		Accounts: dir,
		Policy: appointment.NewPolicy(appointment.PolicyConfig{
			Location:       cfg.Location,
			CancelLeadTime: cfg.CancelLeadTime,
		}),
		Locker:  backend.Locker,
		Events:  events,
		Metrics: m,
		Logger:  logger,
	}, appointment.Config{ClaimRetries: cfg.ClaimRetries})

	router := api.NewRouter(api.RouterConfig{
		Directory:    dir,
		Registry:     registry,
		Docs:         backend.Docs,
		Session:      session.Config{Secret: []byte(cfg.SessionSecret), TTL: cfg.SessionTTL},
		Gatherer:     prometheus.DefaultGatherer,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
		BookingDelay: cfg.BookingDelay,
		LoginRate:    cfg.LoginRate,
		LoginBurst:   cfg.LoginBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
