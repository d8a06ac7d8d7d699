// Command server wires the registration engine together: postgres storage,
// the task orchestrator and its periodic jobs, the payment gateway client,
// the notifier, and the HTTP boundary.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"eventsignup/config"
	"eventsignup/internal/adapters/notify"
	"eventsignup/internal/adapters/paygate"
	delivery "eventsignup/internal/delivery/http"
	"eventsignup/internal/delivery/http/middleware"
	"eventsignup/internal/repository/postgres"
	"eventsignup/internal/services"
	"eventsignup/internal/worker"
)

func main() {
	logger := config.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("ping database", "error", err)
		os.Exit(1)
	}

	// Storage
	eventRepo := postgres.NewEventRepository(db)
	regRepo := postgres.NewRegistrationRepository(db)
	penaltyRepo := postgres.NewPenaltyRepository(db)
	groupDir := postgres.NewGroupDirectory(db)
	store := postgres.NewEnrollmentStore(db)
	queue := postgres.NewTaskQueue(db)
	users := postgres.NewUserDirectory(db)

	// Collaborator adapters
	notifier := notify.NewNotifier(notify.Config{
		Provider:    cfg.Mailer.Provider,
		FromAddress: cfg.Mailer.FromAddress,
		FromName:    cfg.Mailer.FromName,
		SES: notify.SESConfig{
			Region:          cfg.Mailer.Region,
			AccessKeyID:     cfg.Mailer.AccessKeyID,
			SecretAccessKey: cfg.Mailer.SecretAccessKey,
		},
	}, users, logger)
	gateway := paygate.NewHTTPGateway(&http.Client{Timeout: 15 * time.Second}, cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	verifier := paygate.NewWebhookVerifier(cfg.Gateway.WebhookSecret)

	// Engine
	clock := services.NewPenaltyClock(penaltyRepo, cfg.PenaltyExpiry, cfg.FreezeWindows)
	resolver := services.NewEligibilityResolver(groupDir, clock)
	enrollment := services.NewEnrollmentService(store, regRepo, resolver, groupDir, notifier, queue, logger)
	payments := services.NewPaymentService(regRepo, eventRepo, gateway, notifier, cfg.Gateway.Currency, logger)

	// Orchestration
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator := worker.NewOrchestrator(queue, regRepo, enrollment, payments, notifier, logger,
		cfg.WorkerCount, cfg.TaskPollInterval, cfg.MaxTaskAttempts, cfg.RetryBackoff)
	go func() {
		if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("orchestrator stopped", "error", err)
		}
	}()

	scheduler, err := worker.NewScheduler(eventRepo, regRepo, queue, logger, cfg.AuditInterval, cfg.PromoteInterval)
	if err != nil {
		logger.Error("create scheduler", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("start scheduler", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			logger.Error("stop scheduler", "error", err)
		}
	}()

	// HTTP boundary
	signupController := delivery.NewSignupController(enrollment, logger)
	webhookController := delivery.NewWebhookController(verifier, payments, logger)
	router := delivery.NewRouter(signupController, webhookController)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.LoggingMiddleware(logger, router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
