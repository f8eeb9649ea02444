package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"fraudguard/internal/api"
	"fraudguard/internal/config"
	"fraudguard/internal/domain"
	"fraudguard/internal/engine"
	"fraudguard/internal/profile"
	"fraudguard/internal/repository"
	"fraudguard/internal/repository/memory"
	"fraudguard/internal/repository/postgres"
	"fraudguard/internal/repository/redis"
	"fraudguard/pkg/crypto"
	"fraudguard/pkg/metrics"
)

const (
	appName = "fraudguard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("env", cfg.Env))

	profileStore, alertStore, closeDB := setupStores(cfg, logger)
	defer closeDB()
	velocity := setupVelocity(cfg, logger)

	collector := metrics.NewCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)

	accessor := profile.NewAccessor(profileStore, logger)
	scoringEngine := engine.NewEngine(accessor, velocity, alertStore, collector, cfg.AlertThreshold, logger)

	apiHandler, err := api.NewAPIHandler(scoringEngine, alertStore, signer,
		func() ([]domain.FraudRule, error) { return config.LoadRules(cfg.RulesPath) }, logger)
	if err != nil {
		logger.Error("Failed to initialize API handler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsServer := collector.StartMetricsServer(":" + cfg.MetricsPort)
	httpServer := startHTTPServer(apiHandler, cfg.Port, logger)
	waitForShutdown(logger, httpServer, metricsServer)
	logger.Info("Application shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	return slog.New(handler)
}

func setupStores(cfg *config.Config, logger *slog.Logger) (repository.ProfileStore, repository.AlertStore, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("No DATABASE_URL set, using in-memory stores")
		return memory.NewProfileRepository(), memory.NewAlertRepository(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profileStore := postgres.NewProfileStore(db)
	alertStore := postgres.NewAlertStore(db)
	if err := profileStore.Migrate(ctx); err != nil {
		logger.Error("Profile store migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := alertStore.Migrate(ctx); err != nil {
		logger.Error("Alert store migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Using PostgreSQL stores")
	return profileStore, alertStore, func() { db.Close() }
}

func setupVelocity(cfg *config.Config, logger *slog.Logger) repository.RecentTransactionLookup {
	if cfg.RedisAddr == "" {
		logger.Info("No REDIS_ADDR set, using in-memory velocity window")
		return memory.NewVelocityRepository()
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	logger.Info("Using Redis velocity window", slog.String("addr", cfg.RedisAddr))
	return redis.NewVelocityLookup(client)
}

func startHTTPServer(apiHandler *api.APIHandler, port string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(logger *slog.Logger, httpServer, metricsServer *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
