package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/config"
	"github.com/devrev/cryptgate/internal/crypto"
	"github.com/devrev/cryptgate/internal/handler"
	"github.com/devrev/cryptgate/internal/health"
	"github.com/devrev/cryptgate/internal/metrics"
	"github.com/devrev/cryptgate/internal/scheduler"
	"github.com/devrev/cryptgate/internal/service"
	"github.com/devrev/cryptgate/internal/snapshot"
	"github.com/devrev/cryptgate/internal/util/workerpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting cryptgate")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("service_id", cfg.Service.ID),
		zap.String("service_role", string(cfg.Service.Role)),
		zap.String("strategy", string(cfg.Backend.Strategy)),
		zap.Int("instances", len(cfg.Backend.Instances)),
		zap.Int("port", cfg.Server.Port))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize per-instance backend stores
	stores := make(map[string]backend.Store, len(cfg.Backend.Instances))
	for _, inst := range cfg.Backend.Instances {
		stores[inst.ID] = backend.NewHTTPStore(inst, logger)
	}
	logger.Info("Backend stores initialized")

	// Initialize health monitor
	monitor := health.NewMonitor(cfg.Backend.Instances, stores, cfg.Backend.HealthCheckInterval, logger)
	monitor.Start()
	defer monitor.Stop()

	// Initialize snapshot cache
	snapshots, err := snapshot.NewCache(cfg.Snapshot.Dir, cfg.Snapshot.Interval, cfg.Snapshot.Retention, logger)
	if err != nil {
		logger.Fatal("Failed to initialize snapshot cache", zap.Error(err))
	}
	snapshots.Start()
	defer snapshots.Stop()

	// Initialize emergency manager and scheduler
	alerter := scheduler.NewAlerter(cfg.Alert.WebhookURL, 0, logger)
	emergency := scheduler.NewEmergencyManager(snapshots, alerter, cfg.Alert.Threshold, cfg.Alert.CheckInterval, m, logger)
	emergency.Start()
	defer emergency.Stop()

	sched := scheduler.NewScheduler(cfg.Backend.Strategy, cfg.Backend.Instances, stores, monitor, emergency, m, logger)
	logger.Info("Scheduler initialized")

	// Initialize crypto service
	pool := workerpool.New(&workerpool.Config{
		Name:       "batch",
		MaxWorkers: cfg.Batch.MaxWorkers,
		Logger:     logger,
	})
	encryptor := crypto.NewEncryptor(cfg.Encryption.Salt)
	svc := service.NewCryptoService(cfg.Service.Role, encryptor, sched, snapshots, pool, m, logger)
	logger.Info("Crypto service initialized")

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Start health check server
	checker := handler.NewHealthChecker(sched, logger)
	go func() {
		if err := handler.StartHealthServer(checker, cfg.Server.HealthPort, logger); err != nil {
			logger.Error("Health check server failed", zap.Error(err))
		}
	}()

	// Start API server
	mux := http.NewServeMux()
	handler.New(svc, logger).Register(mux)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", zap.String("address", apiServer.Addr))
		serverErrors <- apiServer.ListenAndServe()
	}()

	// Wait for shutdown signal or server failure
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("API server failed", zap.Error(err))
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		apiServer.Close()
	}

	// Flush the in-memory record set before exit
	if err := snapshots.Capture(); err != nil {
		logger.Error("Final snapshot capture failed", zap.Error(err))
	}

	logger.Info("cryptgate stopped")
}
