package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/audit"
	"github.com/hackgods/dental-clinic-portal/internal/config"
	"github.com/hackgods/dental-clinic-portal/internal/db"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("component", "expiry-worker")
	logger.Info("expiry worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := db.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("backend connection error", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	dir, err := account.NewDirectory(backend.Docs, account.DenyAll{}, logger)
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
		Locker: backend.Locker,
		Events: audit.NewLog(backend.Docs, logger),
		Logger: logger,
	}, appointment.Config{ClaimRetries: cfg.ClaimRetries})

	// Run once at startup
	runOnce(rootCtx, registry, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, registry, logger)
		}
	}
}

func runOnce(ctx context.Context, registry *appointment.Registry, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := registry.CancelLapsedPending(runCtx)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		return
	}
	logger.Info("sweep complete", "canceled", n, "duration", time.Since(start))
}
