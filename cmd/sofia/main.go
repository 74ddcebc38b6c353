package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/Sofia/internal/adapter/email"
	cfhttp "github.com/Strob0t/Sofia/internal/adapter/http"
	"github.com/Strob0t/Sofia/internal/adapter/litellm"
	cfmcp "github.com/Strob0t/Sofia/internal/adapter/mcp"
	cfnats "github.com/Strob0t/Sofia/internal/adapter/nats"
	"github.com/Strob0t/Sofia/internal/adapter/natskv"
	cfotel "github.com/Strob0t/Sofia/internal/adapter/otel"
	"github.com/Strob0t/Sofia/internal/adapter/postgres"
	"github.com/Strob0t/Sofia/internal/adapter/ristretto"
	"github.com/Strob0t/Sofia/internal/adapter/slack"
	"github.com/Strob0t/Sofia/internal/adapter/tiered"
	"github.com/Strob0t/Sofia/internal/adapter/webhook"
	"github.com/Strob0t/Sofia/internal/adapter/ws"
	"github.com/Strob0t/Sofia/internal/config"
	"github.com/Strob0t/Sofia/internal/logger"
	"github.com/Strob0t/Sofia/internal/middleware"
	"github.com/Strob0t/Sofia/internal/port/notifier"
	"github.com/Strob0t/Sofia/internal/resilience"
	"github.com/Strob0t/Sofia/internal/secrets"
	"github.com/Strob0t/Sofia/internal/service"
)

const (
	version           = "0.1.0"
	idempotencyBucket = "SOFIA_IDEMPOTENCY"
	idempotencyTTL    = 24 * time.Hour
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

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

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"async_workers", cfg.Orchestrator.AsyncWorkers,
	)

	ctx := context.Background()

	// --- Observability ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	store := postgres.NewStore(pool)

	// NATS
	queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Cache: ristretto L1 in front of a JetStream KV L2
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	cacheKV, err := natskv.OpenBucket(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache: %w", err)
	}
	agentCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.AgentTTL)

	idempotencyKV, err := natskv.OpenBucket(ctx, queue.JetStream(), idempotencyBucket, idempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	// LiteLLM
	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.Timeout)
	llmClient.SetTransport(cfotel.Transport(nil))
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailureFilter(litellm.CountsAsOutage)))

	// --- Outputs ---

	// Signing secrets reload on SIGHUP; config values are the fallback.
	vault, err := secrets.NewVault(secrets.EnvLoader(map[string]string{
		secrets.DispatchSigningKey:   cfg.Dispatch.SigningSecret,
		secrets.InboundWebhookSecret: cfg.Webhook.InboundSecret,
	}))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	stopWatch := vault.WatchSIGHUP(ctx)
	defer stopWatch()

	webhookNotifier := webhook.NewNotifier(cfg.Dispatch.SigningSecret)
	webhookNotifier.SetSecretSource(vault.Source(secrets.DispatchSigningKey))

	registry := notifier.NewRegistry(
		webhookNotifier,
		slack.NewNotifier(),
		email.NewNotifier(email.Config{
			APIKey: cfg.Dispatch.Email.APIKey,
			APIURL: cfg.Dispatch.Email.APIURL,
			From:   cfg.Dispatch.Email.From,
		}),
	)

	// --- Services ---

	hub := ws.NewHub(cfg.Server.CORSOrigin)
	lookup := service.NewAgentLookup(store, agentCache, cfg.Cache.AgentTTL)
	agentSvc := service.NewAgentService(store, lookup)
	orchSvc := service.NewOrchestrationService(store)
	executor := service.NewStrategyExecutor(llmClient, lookup, cfg.Orchestrator.MaxOutputTokens)

	dispatchSvc := service.NewDispatchService(registry, cfg.Dispatch.Timeout)
	dispatchSvc.SetQueue(queue)
	dispatchSvc.SetMetrics(metrics)

	execSvc := service.NewExecutionService(store, executor, dispatchSvc, hub)
	execSvc.SetQueue(queue, cfg.Orchestrator.AsyncWorkers)
	execSvc.SetMetrics(metrics)

	cancelRequests, err := execSvc.StartRequestSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("execution request subscriber: %w", err)
	}
	defer cancelRequests()

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst).
		WithKey(middleware.KeyByTenantAndIP)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Agents:         agentSvc,
		Orchestrations: orchSvc,
		Executions:     execSvc,
		Idempotency:    idempotencyKV,
		ExecuteLimiter: limiter,
		InboundSecret:  vault.Source(secrets.InboundWebhookSecret),
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(middleware.TenantID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", cfhttp.HealthHandler(
		cfhttp.HealthCheck{Name: "postgres", Check: store.Ping},
		cfhttp.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
		cfhttp.HealthCheck{Name: "litellm", Check: func(ctx context.Context) error {
			ok, err := llmClient.Health(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("unhealthy")
			}
			return nil
		}},
	))

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWS)

	// API routes
	cfhttp.MountRoutes(r, handlers, cfg.Webhook)

	// --- MCP ---

	var mcpSrv *cfmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = cfmcp.NewServer(cfmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "sofia",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, cfmcp.ServerDeps{
			Orchestrations: orchSvc,
			Executions:     execSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
