package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/sqlsafety"
	"github.com/askdb/askdb/internal/store"
)

func main() {
	// Local development keeps credentials in a .env file; a missing file is
	// not an error.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	appStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open application store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = appStore.Close() }()

	var historyRepo *history.Repository
	if cfg.History.DSN != "" {
		historyDB, err := history.Open(context.Background(), history.DBConfig{
			DSN:             cfg.History.DSN,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxIdleTime: cfg.History.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open history db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = historyDB.Close() }()

		historyRepo = history.NewRepository(historyDB)
		if err := historyRepo.EnsureSchema(context.Background()); err != nil {
			logger.Error("failed to ensure history schema", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("history dsn not configured, conversation memory disabled")
	}

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}
	invoker := llm.NewInvoker(client, llm.InvokerConfig{
		MaxConcurrentCalls: cfg.LLM.MaxConcurrentCalls,
		MaxRetries:         cfg.LLM.MaxRetries,
		BaseDelay:          cfg.LLM.BaseDelay,
		MaxBackoff:         cfg.LLM.MaxBackoff,
		Jitter:             cfg.LLM.Jitter,
		PermitTimeout:      cfg.LLM.PermitTimeout,
	}, logger)

	policy, err := sqlsafety.ParsePolicy(cfg.SQL.AllowedStatements)
	if err != nil {
		logger.Error("invalid allowed statement list", slog.Any("error", err))
		os.Exit(1)
	}
	classifier := intent.NewClassifier(invoker, cfg.Intent.LLMConfirm, logger)

	var historyStore assistant.HistoryStore
	var historyReader api.HistoryReader
	if historyRepo != nil {
		historyStore = historyRepo
		historyReader = historyRepo
	}
	asker := assistant.New(appStore, appStore, historyStore, classifier, invoker, policy, assistant.Config{
		HistoryLimit:  cfg.History.Limit,
		MaxResultRows: cfg.SQL.MaxResultRows,
	}, logger)

	deps := api.Dependencies{
		Logger:            logger,
		Assistant:         asker,
		Executor:          appStore,
		SchemaSource:      appStore,
		History:           historyReader,
		PreviewPolicy:     policy,
		HistoryLimit:      cfg.History.Limit,
		PreviewRowLimit:   cfg.SQL.MaxResultRows,
		Readiness:         api.CheckStore(appStore),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
