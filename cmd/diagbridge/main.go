package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openhms/diagbridge/internal/adapter/demo"
	"github.com/openhms/diagbridge/internal/adapter/hmsrest"
	dbhttp "github.com/openhms/diagbridge/internal/adapter/http"
	"github.com/openhms/diagbridge/internal/adapter/litellm"
	"github.com/openhms/diagbridge/internal/adapter/localfs"
	dbnats "github.com/openhms/diagbridge/internal/adapter/nats"
	dbotel "github.com/openhms/diagbridge/internal/adapter/otel"
	"github.com/openhms/diagbridge/internal/adapter/postgres"
	"github.com/openhms/diagbridge/internal/adapter/ristretto"
	"github.com/openhms/diagbridge/internal/adapter/ws"
	"github.com/openhms/diagbridge/internal/config"
	"github.com/openhms/diagbridge/internal/logger"
	"github.com/openhms/diagbridge/internal/middleware"
	"github.com/openhms/diagbridge/internal/port/analyzer"
	"github.com/openhms/diagbridge/internal/port/connector"
	"github.com/openhms/diagbridge/internal/port/messagequeue"
	"github.com/openhms/diagbridge/internal/resilience"
	"github.com/openhms/diagbridge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"connector", cfg.Connector.Driver,
		"analyzer", cfg.Analyzer.Provider,
		"poll_interval", cfg.Poller.Interval,
	)

	ctx := context.Background()

	// --- Telemetry ---

	otelShutdown, err := dbotel.Setup(ctx, cfg.Telemetry, "diagbridge")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := dbotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Record system connector ---

	conn, cleanup, err := buildConnector(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// --- Analyzer ---

	an, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	// --- Findings event queue ---

	var queue messagequeue.Queue
	if cfg.NATS.Enabled {
		q, err := dbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = q.Drain() }()
		queue = q
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	// --- Artifact storage ---

	store, err := localfs.New(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	// --- Orchestrator ---

	hub := ws.NewHub()

	orch := service.NewOrchestrator(conn, an, cfg.Poller)
	orch.SetHub(hub)
	orch.SetMetrics(metrics)
	if queue != nil {
		orch.SetQueue(queue)
	}
	if cfg.Poller.Dedup.Enabled {
		dedup, err := ristretto.New(cfg.Poller.Dedup.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("dedup cache: %w", err)
		}
		defer dedup.Close()
		orch.SetDedupCache(dedup)
	}

	life := service.NewLifecycle(orch)
	if err := life.Start(ctx); err != nil {
		return fmt.Errorf("poll loop: %w", err)
	}

	// --- HTTP ---

	handlers := dbhttp.NewHandlers(orch, life, store, queue, hub)

	r := chi.NewRouter()
	r.Use(dbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(dbhttp.Logger)
	r.Use(dbhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(3 * time.Minute))
	r.Use(middleware.APIKey(cfg.Server.APIKeyHash))
	if cfg.Telemetry.Enabled {
		r.Use(dbotel.HTTPMiddleware("diagbridge"))
	}

	dbhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      4 * time.Minute, // must outlive the analysis timeout
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the poll loop first so no new dispatches start, then drain HTTP.
	if err := life.Stop(shutdownCtx); err != nil {
		slog.Warn("poll loop stop", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// buildConnector selects the record-system connector by configured driver.
// The returned cleanup func releases driver resources and may be nil.
func buildConnector(ctx context.Context, cfg *config.Config) (connector.Connector, func(), error) {
	switch cfg.Connector.Driver {
	case config.DriverDemo:
		return demo.NewConnector(), nil, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected")
		return postgres.NewConnector(pool, cfg.Connector.BatchSize), pool.Close, nil

	case config.DriverHMSRest:
		c := hmsrest.NewConnector(cfg.HMSRest.BaseURL, cfg.HMSRest.Token, cfg.Connector.BatchSize, cfg.HMSRest.Timeout)
		c.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		return c, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown connector driver %q", cfg.Connector.Driver)
	}
}

// buildAnalyzer selects the analysis backend by configured provider.
func buildAnalyzer(cfg *config.Config) (analyzer.Analyzer, error) {
	switch cfg.Analyzer.Provider {
	case config.ProviderDemo:
		return demo.NewAnalyzer(), nil

	case config.ProviderLiteLLM:
		a := litellm.NewAnalyzer(cfg.LiteLLM.URL, cfg.LiteLLM.APIKey, cfg.LiteLLM.Model, cfg.LiteLLM.MaxTokens, cfg.LiteLLM.Timeout)
		a.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		return a, nil

	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", cfg.Analyzer.Provider)
	}
}
