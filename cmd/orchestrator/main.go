package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/activity"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/compliance"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/dashboard"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/handlers"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/probes"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/store"
)

const version = "1.0.0"

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting leasing orchestrator", "version", version)

	// Connect to PostgreSQL
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pg := store.NewPostgres(db)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := pg.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	migrationPath := getEnv("MIGRATIONS_FILE", "migrations/001_initial_schema.sql")
	if err := pg.Migrate(migrationPath); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations completed")

	// Create configuration
	config := &orchestrator.Config{
		BatchSize:         getEnvInt("BATCH_SIZE", 20),
		DispatchInterval:  getEnvDuration("DISPATCH_INTERVAL", 15*time.Second),
		HandlerTimeout:    getEnvDuration("HANDLER_TIMEOUT", 60*time.Second),
		ComplianceTimeout: getEnvDuration("COMPLIANCE_TIMEOUT", 10*time.Second),
		HealthInterval:    getEnvDuration("HEALTH_INTERVAL", 1*time.Minute),
		ProbeTimeout:      getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
		ProbeParallelism:  getEnvInt("PROBE_PARALLELISM", 4),
	}

	// Audit trail: Postgres is the durable sink, Kafka fans events out to
	// downstream consumers when brokers are configured, and debug runs mirror
	// every event into the structured log.
	sinks := []orchestrator.ActivityLogger{pg}
	var kafkaLog *activity.KafkaLogger
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := getEnv("KAFKA_AUDIT_TOPIC", "leasing.audit-events")
		kafkaLog = activity.NewKafkaLogger(strings.Split(brokers, ","), topic)
		sinks = append(sinks, kafkaLog)
		slog.Info("kafka audit sink enabled", "topic", topic)
	}
	if logLevel == slog.LevelDebug {
		sinks = append(sinks, activity.SlogLogger{})
	}
	var auditLog orchestrator.ActivityLogger = sinks[0]
	if len(sinks) > 1 {
		auditLog = activity.NewMulti(sinks...)
	}
	defer func() {
		if kafkaLog != nil {
			if err := kafkaLog.Close(); err != nil {
				slog.Warn("failed to close kafka writer", "error", err)
			}
		}
	}()

	// Compliance gate
	var gate orchestrator.ComplianceGate = compliance.AllowAll{}
	if endpoint := os.Getenv("COMPLIANCE_URL"); endpoint != "" {
		gate = compliance.NewHTTPGate(endpoint, nil)
		slog.Info("compliance gate enabled", "endpoint", endpoint)
	} else {
		slog.Warn("COMPLIANCE_URL not set, regulated actions pass unscreened")
	}

	// Action handlers by agent key
	registry := orchestrator.HandlerRegistry{}
	if endpoint := os.Getenv("ACTION_WEBHOOK_URL"); endpoint != "" {
		webhook := handlers.NewWebhookHandler(endpoint, nil)
		for _, key := range splitList(getEnv("WEBHOOK_AGENT_KEYS", "leasing_assistant,followup_bot")) {
			registry[key] = webhook
		}
	}
	for _, key := range splitList(os.Getenv("LOG_AGENT_KEYS")) {
		registry[key] = handlers.LogHandler{}
	}
	if key := os.Getenv("FAILING_AGENT_KEY"); key != "" {
		registry[key] = handlers.FailingHandler{}
	}
	if len(registry) == 0 {
		registry["leasing_assistant"] = handlers.LogHandler{}
	}
	slog.Info("action handlers registered", "agent_keys", registryKeys(registry))

	// One HTTP probe serves every provider, each org's credential set
	// supplies the health URL and key.
	probe := probes.NewHTTPProbe(nil)
	providerProbes := map[string]orchestrator.ProviderProbe{}
	for _, provider := range splitList(getEnv("PROVIDERS", "telephony,messaging,screening")) {
		providerProbes[provider] = probe
	}

	metrics := orchestrator.NewMetrics(prometheus.DefaultRegisterer)

	dispatcher := orchestrator.NewDispatcher(pg, pg, pg, gate, registry, auditLog, metrics, config)
	monitor := orchestrator.NewHealthMonitor(pg, pg, pg, providerProbes, auditLog, metrics, config)

	// Start Prometheus metrics server and Dashboard
	metricsPort := getEnv("METRICS_PORT", "9090")
	go func() {
		mux := http.NewServeMux()

		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "healthy",
				"service": "leasing-orchestrator",
				"version": version,
			})
		})

		dashboardService := dashboard.NewService(pg.DB(), registryKeysFunc(registry))
		dashboardHandler := dashboard.NewHandler(dashboardService)
		dashboardHandler.RegisterRoutes(mux)

		addr := ":" + metricsPort
		slog.Info("dashboard and metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("server failed", "error", err)
		}
	}()

	// Schedule dispatch and health cadences. SkipIfStillRunning keeps a slow
	// batch or probe run from stacking up behind itself.
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	_, err = scheduler.AddFunc(everySpec(config.DispatchInterval), func() {
		result, err := dispatcher.RunOnce(ctx)
		if err != nil {
			slog.Error("dispatch run failed", "error", err)
			return
		}
		slog.Debug("dispatch run finished",
			"dispatched", result.Dispatched,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"human_controlled", result.HumanControlled)
	})
	if err != nil {
		slog.Error("failed to schedule dispatcher", "error", err)
		os.Exit(1)
	}

	_, err = scheduler.AddFunc(everySpec(config.HealthInterval), func() {
		orgs, err := pg.ListActiveOrganizations(ctx)
		if err != nil {
			slog.Error("failed to list organizations", "error", err)
			return
		}
		for _, org := range orgs {
			if _, err := monitor.CheckAll(ctx, org.ID); err != nil {
				slog.Error("health check failed", "org_id", org.ID, "error", err)
			}
		}
	})
	if err != nil {
		slog.Error("failed to schedule health monitor", "error", err)
		os.Exit(1)
	}

	scheduler.Start()
	slog.Info("scheduler started",
		"dispatch_interval", config.DispatchInterval.String(),
		"health_interval", config.HealthInterval.String())

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Let an in-flight run finish before exiting
	stopCtx := scheduler.Stop()
	shutdownTimeout := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	select {
	case <-stopCtx.Done():
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown timeout elapsed with runs still in flight")
	}

	slog.Info("shutdown complete")
}

// everySpec renders a duration as a cron @every spec.
func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func registryKeys(registry orchestrator.HandlerRegistry) []string {
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	return keys
}

func registryKeysFunc(registry orchestrator.HandlerRegistry) func() []string {
	return func() []string {
		return registryKeys(registry)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
