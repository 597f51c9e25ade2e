// Command counter-bridge runs the counter bridge consumer engine as a
// standalone process: it reads counter mutation events from a Kafka
// topic, folds them in memory, and flushes net deltas to a
// persistence provider on a time/size window.
//
// This binary ships only with the in-memory reference provider
// (internal/provider/memstore); a real deployment embeds
// internal/bridge as a library and supplies its own
// provider.Provider, since concrete storage backends are out of
// scope for this repository (see DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/injest-ai/countero/internal/bridge"
	"github.com/injest-ai/countero/internal/config"
	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/events"
	"github.com/injest-ai/countero/internal/eventlog/kafka"
	"github.com/injest-ai/countero/internal/observability"
	"github.com/injest-ai/countero/internal/provider/memstore"
	"github.com/injest-ai/countero/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", envOr("COUNTER_BRIDGE_CONFIG", "/etc/counter-bridge/config.yaml"), "path to the bridge configuration file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error); overrides COUNTER_BRIDGE_LOG_LEVEL")
	flag.Parse()

	logger := observability.NewLogger("counter-bridge", observability.GetLogLevel(*logLevel))

	loader := config.NewLoader(*configPath, logger)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	consumerID := cfg.ConsumerID
	if consumerID == "" {
		consumerID = uuid.New().String()
	}
	logger = logger.With("consumerGroup", cfg.ConsumerGroup, "consumerId", consumerID)
	logger.Info("malformed events are dropped without acknowledgement and will be redelivered by recovery until the log trims them (see DESIGN.md)")

	tracingCfg := tracing.GetConfig("counter-bridge")
	tracer, shutdownTracing, err := tracing.Initialize(tracingCfg, logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	log, err := kafka.New(kafka.Config{
		Cluster:       &cfg.Kafka,
		Topic:         cfg.StreamKey,
		ConsumerGroup: cfg.ConsumerGroup,
	})
	if err != nil {
		return fmt.Errorf("connect to kafka: %w", err)
	}

	var filter *counter.EventFilter
	if cfg.Filter != "" {
		filter, err = counter.NewEventFilter(cfg.Filter)
		if err != nil {
			return fmt.Errorf("compile filter: %w", err)
		}
	}

	engine := bridge.New(bridge.Config{
		Log:         log,
		Provider:    memstore.New(),
		Filter:      filter,
		Tracer:      tracer,
		Logger:      logger,
		MaxWait:     cfg.MaxWait(),
		MaxMessages: cfg.MaxMessages,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)
	health := observability.NewHealthServer()
	health.SetStatsFunc(func() map[string]any {
		stats := engine.GetStats()
		return map[string]any{
			"eventsProcessed": stats.EventsProcessed,
			"flushCount":      stats.FlushCount,
			"pendingMessages": stats.PendingMessages,
			"errorCount":      stats.ErrorCount,
		}
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /healthz", health.Handler())
	mux.Handle("GET /readyz", health.Handler())

	httpServer := &http.Server{Addr: cfg.HealthAddr, Handler: otelhttp.NewHandler(mux, "counter-bridge")}
	go func() {
		logger.Info("health/metrics server starting", "addr", cfg.HealthAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health/metrics server error", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watchDone := make(chan struct{})
	go func() {
		if err := loader.Watch(watchDone); err != nil {
			logger.Error("config watcher error", "error", err)
		}
	}()

	recordCtx, stopRecord := context.WithCancel(context.Background())
	defer stopRecord()
	go observability.Record(recordCtx, engine, func() observability.Snapshot {
		stats := engine.GetStats()
		return observability.Snapshot{EventsProcessed: stats.EventsProcessed, PendingMessages: stats.PendingMessages}
	}, metrics)

	if cfg.CloudEventsWebhook != "" {
		forwarder := events.NewForwarder(cfg.CloudEventsWebhook, logger)
		for _, kind := range []events.Kind{events.Started, events.Stopped, events.Flush, events.Recovery, events.Warn, events.Error} {
			go forwarder.Run(recordCtx, engine.Subscribe(kind))
		}
		logger.Info("forwarding observability events as CloudEvents", "url", cfg.CloudEventsWebhook)
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	health.SetReady(true)
	logger.Info("counter bridge started", "streamKey", cfg.StreamKey)

	<-ctx.Done()

	health.SetReady(false)
	close(watchDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var errs []error
	if err := engine.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop engine: %w", err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shut down http server: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shut down tracing: %w", err))
	}

	logger.Info("shutdown complete")
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
