package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockTradeBot/config"
	"stockTradeBot/internal/adapters/alpacaclient"
	"stockTradeBot/internal/adapters/logger"
	"stockTradeBot/internal/adapters/notifier"
	"stockTradeBot/internal/adapters/sqlite"
	"stockTradeBot/internal/app"
	"stockTradeBot/internal/execution"
	"stockTradeBot/internal/metrics"
	"stockTradeBot/internal/reconcile"
	"stockTradeBot/internal/recovery"
	"stockTradeBot/internal/risk"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Starting trading engine", map[string]interface{}{
		"baseURL": cfg.BaseURL,
		"dbPath":  cfg.DBPath,
	})

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	broker, err := alpacaclient.NewClient(alpacaclient.Config{
		APIKey:               cfg.APIKey,
		APISecret:            cfg.APISecret,
		BaseURL:              cfg.BaseURL,
		DataURL:              cfg.DataURL,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Logger:               appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}
	if err := broker.Connect(ctx); err != nil {
		// Recovery still runs with reconciliation skipped; the sweep
		// loop keeps retrying the connection.
		appLogger.Error(ctx, err, "Initial broker connection failed, continuing disconnected")
	}
	defer broker.Disconnect(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	notify := notifier.NewLogNotifier(appLogger)

	sizer := risk.NewSizer(broker, appLogger)
	validator := risk.NewValidator(broker, repo, appLogger)
	lossGuard := risk.NewLossLimitGuard(repo, repo, notify, appLogger)

	tracker := execution.NewTracker(broker, repo, repo, appLogger)
	engine := execution.NewEngine(execution.EngineConfig{
		Broker:           broker,
		Sizer:            sizer,
		Validator:        validator,
		Tracker:          tracker,
		Strategies:       repo,
		Instruments:      repo,
		Trades:           repo,
		Logger:           appLogger,
		FillPollTimeout:  cfg.FillPollTimeout,
		FillPollInterval: cfg.FillPollInterval,
	})

	reconciler := reconcile.NewReconciler(broker, repo, repo, appLogger)
	orchestrator := recovery.NewOrchestrator(recovery.Config{
		System:         repo,
		Trades:         repo,
		Orders:         repo,
		Broker:         broker,
		Reconciler:     reconciler,
		Notifier:       notify,
		Logger:         appLogger,
		CrashTimeout:   cfg.CrashTimeout,
		MajorThreshold: cfg.MajorDiscrepancyThreshold,
	})

	service := app.NewTradingService(app.Config{
		Engine:            engine,
		Tracker:           tracker,
		Reconciler:        reconciler,
		Recovery:          orchestrator,
		LossGuard:         lossGuard,
		Broker:            broker,
		Trades:            repo,
		Logger:            appLogger,
		Metrics:           m,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SweepInterval:     cfg.SweepInterval,
	})

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(ctx, err, "Metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	return service.Run(ctx)
}
