package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/murshid-ai/murshid/internal/api"
	"github.com/murshid-ai/murshid/internal/config"
	"github.com/murshid-ai/murshid/internal/core"
	"github.com/murshid-ai/murshid/internal/llm"
	"github.com/murshid-ai/murshid/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	// Structured logging to stderr; request logs go through chi middleware
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Select the completion/embedding provider
	var completion core.CompletionClient
	var embedder core.EmbeddingClient
	switch cfg.LLMProvider {
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatModel)
		if err != nil {
			log.Fatalf("Failed to initialize OpenAI client: %v", err)
		}
		completion, embedder = client, client
	case "gemini":
		client, err := llm.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.ChatModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini client: %v", err)
		}
		defer client.Close()
		completion, embedder = client, client
	default:
		log.Fatalf("LLM_PROVIDER must be 'openai' or 'gemini', got %q", cfg.LLMProvider)
	}

	// Core services
	gateway := core.NewEmbeddingGateway(embedder)
	indexer := core.NewIndexer(dbStore, gateway, cfg.ChunkSize, cfg.ChunkOverlap, cfg.EmbedDelay)
	retriever := core.NewRetriever(dbStore, gateway, cfg.TopK, float32(cfg.MinScore))
	enforcer := core.NewUsageEnforcer(dbStore, core.UsageLimits{
		Messages: cfg.MessagesLimit,
		Tokens:   cfg.TokensLimit,
	})
	chatService := core.NewChatService(dbStore, retriever, completion, enforcer, cfg.CompletionTimeout)

	// API handler and router
	apiHandler := api.NewAPIHandler(dbStore, chatService, indexer, enforcer)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		slog.Info("starting server", "addr", serverAddr, "provider", cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("server exited gracefully")
}

func logLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
