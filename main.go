package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msf-usa/chatd/internal/adapter/agentapi"
	"github.com/msf-usa/chatd/internal/adapter/blob"
	"github.com/msf-usa/chatd/internal/adapter/docqa"
	"github.com/msf-usa/chatd/internal/adapter/media"
	"github.com/msf-usa/chatd/internal/adapter/transcribe"
	"github.com/msf-usa/chatd/internal/config"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/enrich"
	"github.com/msf-usa/chatd/internal/execute"
	"github.com/msf-usa/chatd/internal/identity"
	"github.com/msf-usa/chatd/internal/modelhandler"
	"github.com/msf-usa/chatd/internal/pipeline"
	"github.com/msf-usa/chatd/internal/policy"
	"github.com/msf-usa/chatd/internal/process"
	"github.com/msf-usa/chatd/internal/ratelimit"
	"github.com/msf-usa/chatd/internal/repository"
	"github.com/msf-usa/chatd/internal/tokenizer"
	"github.com/msf-usa/chatd/internal/tools"
	handler "github.com/msf-usa/chatd/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting chatd",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL))

	catalog, err := config.LoadCatalog(cfg.ModelCatalogPath)
	if err != nil {
		logger.Fatal("failed to load model catalog", zap.Error(err))
	}

	store, err := repository.NewStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize usage ledger", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	limiter := ratelimit.New(cfg.RateLimitPerMinute, cfg.RateLimitBurst, cfg.RateLimitSweep)
	defer limiter.Close()

	tokens := tokenizer.New()

	// Collaborator adapters
	blobStore := blob.NewHTTPStore(cfg.BlobBaseURL, cfg.BlobToken)
	transcriber := transcribe.NewClient(cfg.TranscribeBaseURL, cfg.TranscribeKey)
	summarizer := docqa.NewClient(cfg.DocQABaseURL, cfg.DocQAKey)
	extractor := media.NewFFmpegExtractor(cfg.FFmpegPath)
	agentClient := agentapi.NewClient(cfg.AgentAPIBaseURL, cfg.AgentAPIKey)

	mhCfg := modelhandler.Config{
		ResponsesEndpoint: cfg.ResponsesEndpoint,
		ResponsesKey:      cfg.ResponsesKey,
		ChatEndpoint:      cfg.ChatEndpoint,
		ChatKey:           cfg.ChatKey,
		AnthropicEndpoint: cfg.AnthropicEndpoint,
		AnthropicKey:      cfg.AnthropicKey,
		AnthropicVersion:  cfg.AnthropicVersion,
		Timeout:           cfg.ProviderTimeout,
		MaxOutputTokens:   cfg.MaxCompletionSize,
	}

	// Tool routing: classification goes through a small chat model.
	webSearch := tools.NewWebSearch(cfg.SearchBaseURL, cfg.SearchKey, cfg.SearchResultCount)
	router := tools.NewRouter(newClassifier(mhCfg, cfg.RouterModel))

	stages := []pipeline.Stage{
		process.NewFileProcessor(blobStore, transcriber, summarizer, extractor,
			cfg.MaxFileBytes, cfg.SyncTranscribeBytes, cfg.RawHeadBytes),
		process.NewImageProcessor(),
		enrich.NewRetrieval(cfg.RetrievalEndpoint, cfg.RetrievalTopN, cfg.SemanticConfig),
		enrich.NewAgentMode(),
		enrich.NewToolRouter(router, []tools.Tool{webSearch}, policyEngine, tokens),
		execute.NewStandard(mhCfg),
		execute.NewAgent(agentClient),
	}
	orch := pipeline.NewOrchestrator(stages...)

	builder := pipeline.NewBuilder(identity.NewHeaderProvider(), limiter, policyEngine, catalog, cfg, logger)
	h := handler.NewHandler(builder, orch, store, transcriber, catalog, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("10M"))
	h.Register(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.Int("port", cfg.HTTPPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// newClassifier adapts the chat-completions strategy into the routing
// classifier.
func newClassifier(cfg modelhandler.Config, model string) tools.ClassifyFunc {
	h := modelhandler.NewChatHandler(cfg)
	return func(ctx context.Context, system, user string) (string, error) {
		req := &modelhandler.Request{
			Model:        domain.ModelInfo{ID: model, Provider: domain.ProviderChat},
			Messages:     []domain.Message{domain.TextMessage(domain.RoleUser, user)},
			SystemPrompt: system,
			MaxTokens:    200,
		}
		result, err := h.Execute(ctx, req, nil)
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}
