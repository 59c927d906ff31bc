package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/odin-collab/canvas-ws-hub/internal/aiintake"
	"github.com/odin-collab/canvas-ws-hub/internal/cache"
	"github.com/odin-collab/canvas-ws-hub/internal/events"
	"github.com/odin-collab/canvas-ws-hub/internal/hub"
	"github.com/odin-collab/canvas-ws-hub/internal/identity"
	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
	"github.com/odin-collab/canvas-ws-hub/internal/resource"
	"github.com/odin-collab/canvas-ws-hub/internal/store"
	"github.com/odin-collab/canvas-ws-hub/internal/store/memstore"
	"github.com/odin-collab/canvas-ws-hub/internal/store/pg"
)

// splitBrokers splits a comma-separated broker list, trimming whitespace and
// dropping empty entries.
func splitBrokers(brokers string) []string {
	result := []string{}
	for _, b := range strings.Split(brokers, ",") {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// openStore picks the canvas store backend: an in-memory store in dev mode
// (no external dependencies needed to iterate locally), pgx against
// HUB_DATABASE_URL otherwise.
func openStore(ctx context.Context, cfg *Config, logger zerolog.Logger) (store.CanvasStore, error) {
	if cfg.DevMode {
		logger.Info().Msg("dev mode: using in-memory canvas store")
		return memstore.New(), nil
	}
	return pg.Open(ctx, cfg.DatabaseURL, logger)
}

func main() {
	var (
		debugFlag = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("runtime initialized")

	cfg, err := LoadConfig(&logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debugFlag {
		cfg.LogLevel = "debug"
	}

	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	cfg.LogConfig(logger)

	ctx, cancelCtx := context.WithCancel(context.Background())

	canvasStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open canvas store")
	}
	cachedStore := cache.New(canvasStore)

	verifier := identity.NewVerifier(cfg.JWTSecret)
	resolver := identity.NewResolver(verifier, cachedStore, cfg.DevMode)

	var eventPublisher hub.EventPublisher
	if cfg.NATSUrl != "" {
		publisher, err := events.Connect(events.DefaultConfig(cfg.NATSUrl), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, shape events will not be published")
		} else {
			eventPublisher = publisher
			defer publisher.Close()
		}
	}

	h := hub.New(hub.Config{
		HeartbeatInterval:       cfg.HeartbeatInterval,
		PresenceTTL:             cfg.PresenceTTL,
		CursorThrottle:          cfg.CursorThrottle,
		ShapeThrottle:           cfg.ShapeThrottle,
		BatchInterval:           cfg.BatchInterval,
		PresenceCleanupInterval: cfg.PresenceCleanupInterval,
		LockSweepInterval:       cfg.LockSweepInterval,
		MaxBatchSize:            cfg.MaxBatchSize,
		DevMode:                 cfg.DevMode,
	}, logger, cachedStore, resolver, eventPublisher)

	h.SetGuard(resource.Config{
		MaxConnections:      cfg.MaxConnections,
		CPURejectThreshold:  cfg.CPURejectThreshold,
		MemoryLimitBytes:    cfg.MemoryLimit,
		MaxGoroutines:       cfg.MaxGoroutines,
		MaxBroadcastsPerSec: cfg.MaxBroadcastRate,
	})

	h.Start(ctx)

	metrics.ConnectionsMax.Set(float64(cfg.MaxConnections))
	collector := metrics.NewCollector(cfg.MetricsInterval, h.LiveConnections, h.Guard().CPUPercent, h.BroadcastQueueStats)
	collector.Start()

	var aiConsumer *aiintake.Consumer
	if cfg.KafkaBrokers != "" {
		aiConsumer, err = aiintake.NewConsumer(aiintake.Config{
			Brokers:       splitBrokers(cfg.KafkaBrokers),
			ConsumerGroup: cfg.KafkaConsumerGrp,
			Topic:         cfg.KafkaTopic,
		}, h.BroadcastAIGenerationComplete, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("ai intake consumer unavailable")
		} else {
			aiConsumer.Start()
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("canvas hub listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancelCtx()
	collector.Stop()
	if aiConsumer != nil {
		aiConsumer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainGrace)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	h.Shutdown(cfg.ShutdownDrainGrace)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
