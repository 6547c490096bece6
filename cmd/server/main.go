// supportd - customer support session router
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/supportd/internal/api"
	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/config"
	"github.com/ashureev/supportd/internal/kv"
	"github.com/ashureev/supportd/internal/middleware"
	"github.com/ashureev/supportd/internal/orchestrator"
	"github.com/ashureev/supportd/internal/routing"
	"github.com/ashureev/supportd/internal/session"
	"github.com/ashureev/supportd/internal/source"
	"github.com/ashureev/supportd/internal/specialist"
)

// warmupQueries are the FAQ searches preloaded at startup so the first
// customers hit a warm cache.
var warmupQueries = []string{
	"return policy", "shipping policy", "track order",
	"payment methods", "contact support", "warranty",
	"cancel order", "account issues", "business hours",
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize the key/value store.
	store, err := kv.OpenSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Wire the domain layers.
	sessions := session.NewStore(store, cfg.SessionTTL, cfg.MaxConversationLength)
	sharedCache := cache.New(store)
	mock := source.NewMock()
	orders := cache.NewOrderCache(sharedCache, mock, cfg.Cache.OrderTTL, cfg.Cache.EmailSearchTTL)
	faq := cache.NewFAQCache(sharedCache, mock, cfg.Cache.FAQSearchTTL, cfg.Cache.FAQSearchLimit)
	states := cache.NewAgentStateCache(sharedCache, cfg.Cache.AgentStateTTL)

	var answer *specialist.AnswerClient
	if cfg.AnswerServiceURL != "" {
		answer = specialist.NewAnswerClient(cfg.AnswerServiceURL, cfg.AnswerServiceTimeout)
		slog.Info("Answer service enabled", "url", cfg.AnswerServiceURL)
	}

	engine := routing.NewEngine(sessions, routing.Config{
		OrderThreshold:     cfg.Routing.OrderThreshold,
		FAQThreshold:       cfg.Routing.FAQThreshold,
		FallbackConfidence: cfg.Routing.FallbackConfidence,
	})
	orch := orchestrator.New(sessions, engine, states,
		specialist.NewOrderLookup(orders, states, answer),
		specialist.NewFAQ(faq, states, answer),
	)

	// Warm the FAQ cache so first lookups skip the slow source.
	warmupCtx, cancelWarmup := context.WithTimeout(context.Background(), 30*time.Second)
	if loaded, err := faq.Preload(warmupCtx, warmupQueries); err != nil {
		slog.Warn("FAQ warmup incomplete", "loaded", loaded, "error", err)
	} else {
		slog.Info("FAQ cache warmed", "loaded", loaded)
	}
	cancelWarmup()

	// Setup router.
	handler := api.NewHandler(orch, sessions, store, cfg.FrontendURL)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)
	r.Get("/ws/chat", handler.ServeChat)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket chats stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	// Start the expired-entry sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv.StartSweeper(ctx, store, cfg.SweepInterval, sessions.Reap, orch.Reap)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
