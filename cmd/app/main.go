package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"juliabot/internal/actions"
	"juliabot/internal/agent"
	"juliabot/internal/cache"
	"juliabot/internal/config"
	"juliabot/internal/httpserver"
	"juliabot/internal/llm"
	"juliabot/internal/logging"
	"juliabot/internal/metrics"
	"juliabot/internal/repo"
	"juliabot/internal/tools"
	"juliabot/internal/transcribe"
	"juliabot/internal/wa"
	"juliabot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting juliabot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.New(ctx, cfg.DatabaseURL, cfg.DBSchema, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	llmClient := llm.New(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}, logger, metricRegistry)

	// The concrete client is nil when transcription is not configured; keep
	// the interface nil too so the engine sees it as disabled.
	var transcriber transcribe.Transcriber
	if t := transcribe.New(transcribe.Config{
		BaseURL: cfg.TranscribeBaseURL,
		APIKey:  cfg.TranscribeAPIKey,
		Timeout: cfg.TranscribeTimeout,
	}, logger); t != nil {
		transcriber = t
	}

	waClient, err := wa.New(ctx, wa.Config{
		StorePath: cfg.WhatsAppStorePath,
		Instance:  cfg.WhatsAppInstance,
		LogLevel:  cfg.WhatsAppLogLevel,
		Metrics:   metricRegistry,
	}, logger)
	if err != nil {
		return fmt.Errorf("init whatsapp client: %w", err)
	}
	defer waClient.Close()

	registry := tools.NewRegistry(repository, waClient, llmClient, logger, metricRegistry)
	router := agent.NewRouter(repository, logger, metricRegistry)
	handoff := agent.NewHandoffDetector(llmClient, logger)
	loop := agent.NewLoop(repository, llmClient, registry, handoff, logger, metricRegistry, cfg.MaxToolRounds)
	composer := agent.NewLLMComposer(llmClient, logger)

	detector := actions.NewDetector(llmClient, logger, cfg.ActionWindow, cfg.ActionThreshold)
	executor := actions.NewExecutor(repository, waClient, logger, metricRegistry)
	runner := actions.NewRunner(repository, detector, executor, logger)

	engine := agent.NewEngine(repository, router, loop, waClient, redisClient, transcriber, composer, runner, logger, metricRegistry, agent.EngineConfig{
		SessionLockTTL: cfg.SessionLockTTL,
		HandoffPause:   cfg.HandoffPause,
	})
	waClient.SetMessageProcessor(engine)

	webhookHandler := wa.NewWebhookHandler(logger, metricRegistry, cfg.GatewayToken, engine)

	waCtx, waCancel := context.WithCancel(ctx)
	defer waCancel()
	go func() {
		if err := waClient.Start(waCtx); err != nil {
			logger.Error("whatsapp client stopped", "error", err)
			stop()
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Handlers{
		Webhook: webhookHandler,
	}, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Gateway:    waClient,
		Executor:   executor,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
