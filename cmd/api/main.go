// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nimbus-im/nimbus/internal/auth"
	"github.com/nimbus-im/nimbus/internal/bootstrap"
	"github.com/nimbus-im/nimbus/internal/config"
	"github.com/nimbus-im/nimbus/internal/delivery"
	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/handler"
	"github.com/nimbus-im/nimbus/internal/llm"
	"github.com/nimbus-im/nimbus/internal/middleware"
	"github.com/nimbus-im/nimbus/internal/sim"
	"github.com/nimbus-im/nimbus/internal/transport"
	"github.com/nimbus-im/nimbus/pkg/logger"
	"github.com/nimbus-im/nimbus/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "nimbus", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// The engine instance owns all conversation state.
	eng := engine.New(log)

	authenticator := auth.New(cfg.JWTSecret, cfg.JWTExpiration)
	sessions := auth.NewSessionStore(cfg.SessionFile)
	seeder := bootstrap.New(eng, log)

	// Restore the persisted session, if any. Everything except the identity
	// is rebuilt from scratch.
	if state, err := sessions.Load(); err != nil {
		log.Warn("failed to load persisted session", zap.Error(err))
	} else if state.Authenticated && state.Identity != nil {
		if err := eng.Login(*state.Identity); err != nil {
			log.Warn("failed to restore session", zap.Error(err))
		} else if err := seeder.Run(); err != nil {
			log.Warn("failed to seed restored session", zap.Error(err))
		}
	}

	// Pick the delivery agent: local simulation or a NATS-backed transport.
	var agent delivery.Agent
	var ready handler.ReadyChecker
	switch cfg.DeliveryMode {
	case "nats":
		natsAgent, err := transport.Connect(transport.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, eng, log)
		if err != nil {
			log.Error("failed to connect delivery transport", zap.Error(err))
			os.Exit(1)
		}
		agent = natsAgent
		ready = natsAgent

	default:
		var replies sim.ReplyGenerator
		if cfg.ReplyProvider == "openai" && cfg.OpenAIAPIKey != "" {
			client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
			if err != nil {
				log.Warn("failed to create reply client, using canned replies", zap.Error(err))
			} else {
				replies = llm.NewResponder(client, cfg.ReplyModel)
			}
		}
		agent = sim.New(eng, sim.TimerScheduler{}, sim.DelayPolicy{
			Deliver:     cfg.DeliverDelay,
			Read:        cfg.ReadDelay,
			ReplyBase:   cfg.ReplyDelayBase,
			ReplyJitter: cfg.ReplyDelayJitter,
			TypingLead:  time.Second,
		}, replies, log)
	}
	defer agent.Shutdown()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(ready)
	authHandler := handler.NewAuthHandler(authenticator, eng, seeder, sessions, agent, log)
	conversationHandler := handler.NewConversationHandler(eng, log)
	messageHandler := handler.NewMessageHandler(eng, agent, log)
	streamHandler := handler.NewStreamHandler(eng, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authenticator))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Get("/users", conversationHandler.ListUsers)
			r.Put("/users/{id}/presence", conversationHandler.SetPresence)

			r.Get("/conversations", conversationHandler.List)
			r.Put("/conversations/active", conversationHandler.Activate)
			r.Route("/conversations/{peerID}", func(r chi.Router) {
				r.Post("/read", conversationHandler.MarkRead)
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})

			r.Put("/typing", conversationHandler.SetTyping)
			r.Get("/stream", streamHandler.Stream)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
