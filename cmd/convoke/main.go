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

	cvhttp "github.com/convoke-ai/convoke/internal/adapter/http"
	"github.com/convoke-ai/convoke/internal/adapter/keyword"
	"github.com/convoke-ai/convoke/internal/adapter/litellm"
	cvnats "github.com/convoke-ai/convoke/internal/adapter/nats"
	"github.com/convoke-ai/convoke/internal/adapter/natsnotify"
	cvotel "github.com/convoke-ai/convoke/internal/adapter/otel"
	"github.com/convoke-ai/convoke/internal/adapter/postgres"
	cvresponder "github.com/convoke-ai/convoke/internal/adapter/responder"
	"github.com/convoke-ai/convoke/internal/adapter/ristretto"
	"github.com/convoke-ai/convoke/internal/adapter/slack"
	"github.com/convoke-ai/convoke/internal/adapter/ws"
	"github.com/convoke-ai/convoke/internal/config"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/logger"
	"github.com/convoke-ai/convoke/internal/port/notifier"
	"github.com/convoke-ai/convoke/internal/port/responder"
	"github.com/convoke-ai/convoke/internal/resilience"
	"github.com/convoke-ai/convoke/internal/service"
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

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"consensus_sources", len(cfg.Consensus.Sources),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownTracer, err := cvotel.InitTracer(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	queue, err := cvnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	intentCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llm.SetDefaultModel(cfg.LiteLLM.Model)

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	risks := risk.NewEngine(cfg.Risk)
	risks.SetThresholds(cfg.Consensus.ApproveThreshold, cfg.Consensus.RejectThreshold)
	sources := litellm.Sources(llm, cfg.Consensus.Sources)

	consensusSvc := service.NewConsensusService(sources,
		resilience.NewPool(cfg.Consensus.MaxConcurrent), hub, risks,
		cfg.Consensus.CallTimeout, log)

	var slackNotify notifier.Notifier
	if cfg.Notify.SlackWebhook != "" {
		slackNotify = slack.NewNotifier(cfg.Notify.SlackWebhook)
	}
	notify := notifier.NewMulti(natsnotify.New(queue), slackNotify)

	approvalSvc := service.NewApprovalService(store, consensusSvc,
		notify, hub,
		cfg.Approval.DefaultTTL, cfg.Approval.CommandTTL, log)
	go approvalSvc.RunSweeper(ctx, cfg.Approval.SweepInterval)

	// The primary consensus source doubles as the conversational model.
	primary := sources[0]

	registry := responder.NewRegistry()
	registry.Register(cvresponder.NewPersona("coordinator", cvresponder.CoordinatorPrompt, primary, risks, log))
	registry.Register(cvresponder.NewPersona("archivist", cvresponder.ArchivistPrompt, primary, risks, log))
	registry.Register(cvresponder.NewPersona("analyst", cvresponder.AnalystPrompt, primary, risks, log))
	registry.Register(cvresponder.NewSysOps(cfg.Commands, primary, log))
	registry.Register(cvresponder.NewValidator(consensusSvc, log))

	classify := keyword.New(intentCache, cfg.Cache.TTL, log)

	pipeline := service.NewPipeline(classify, registry, cfg.Routing,
		store, approvalSvc, consensusSvc, hub,
		service.PipelineConfig{
			DefaultResponder:    cfg.Pipeline.DefaultResponder,
			HistoryWindow:       cfg.Pipeline.HistoryWindow,
			DisclosureThreshold: cfg.Pipeline.DisclosureThreshold,
			StageTimeout:        cfg.Pipeline.StageTimeout,
		}, log)

	// --- HTTP ---

	handlers := &cvhttp.Handlers{
		Pipeline:   pipeline,
		Approvals:  approvalSvc,
		Responders: registry,
		Sessions:   store,
		Store:      store,
		Queue:      queue,
		LiteLLM:    llm,
	}

	r := chi.NewRouter()
	r.Use(cvhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cvotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(cvhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)
	cvhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
