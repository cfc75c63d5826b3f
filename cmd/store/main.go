// The store is the stateful half of the webhook service. It persists
// captured requests, serves endpoint and quota lookups to the
// receiver, and runs the cleanup and billing-period maintenance jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"webhooks.cc/backend/internal/database"
	"webhooks.cc/backend/internal/jobs"
	"webhooks.cc/backend/internal/logging"
	"webhooks.cc/backend/internal/server"
	"webhooks.cc/backend/internal/store"
	"webhooks.cc/backend/internal/usage"
)

const (
	defaultPort            = "3210"
	defaultDBPath          = "store.db"
	defaultFreeLimit       = 500
	defaultEphemeralTTLMS  = 10 * 60 * 1000
	defaultBillingPeriodMS = 30 * 24 * 60 * 60 * 1000
)

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	logger := logging.Setup(os.Getenv("LOG_LEVEL"))

	port := os.Getenv("STORE_PORT")
	if port == "" {
		port = defaultPort
	}
	dbPath := os.Getenv("STORE_DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	secret := os.Getenv("CAPTURE_SHARED_SECRET")
	if secret == "" {
		logger.Warn("CAPTURE_SHARED_SECRET not set, all authenticated routes will fail closed")
	}

	freeLimit := envInt64("FREE_REQUEST_LIMIT", defaultFreeLimit)
	ephemeralTTLMS := envInt64("EPHEMERAL_TTL_MS", defaultEphemeralTTLMS)
	billingPeriodMS := envInt64("BILLING_PERIOD_MS", defaultBillingPeriodMS)

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	endpoints := store.NewEndpointStore(db)
	requests := store.NewRequestStore(db)
	users := store.NewUserStore(db)

	sched := usage.NewScheduler(users, billingPeriodMS, logger.With("component", "usage"))

	srv := server.New(endpoints, requests, users, sched, server.Config{
		Secret:           secret,
		FreeRequestLimit: freeLimit,
		EphemeralTTLMS:   ephemeralTTLMS,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleaner := jobs.NewCleaner(endpoints, requests, logger.With("component", "cleanup"))
	go cleaner.RunForever(ctx)

	periodReset := jobs.NewPeriodReset(users, billingPeriodMS, freeLimit, logger.With("component", "period-reset"))
	go periodReset.RunForever(ctx)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}

		// Apply the increments still queued before the process exits.
		sched.Close()
	}()

	logger.Info("store starting", "port", port, "db", dbPath)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("store stopped")
}
