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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	orchestration "github.com/team-rrr/voice-multi-agent-accelerator/core"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents/caregiver"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents/openai"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}
	config := Load()

	registry := orchestration.NewRegistry()
	handler := &voiceHandler{
		config:   config,
		registry: registry,
		stages:   stageClient(config),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/ws/voice", handler)

	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "port", config.Port, "voice_live_configured", config.HasVoiceLive())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	registry.CloseAll()
}

// stageClient picks the reasoning backend: the OpenAI-compatible client
// when credentials are configured, the deterministic caregiver client
// otherwise.
func stageClient(config Config) agents.Client {
	if config.OpenAIAPIKey != "" {
		slog.Info("using openai stage client", "model", config.OpenAIModel)
		return openai.New(config.OpenAIAPIKey,
			openai.WithBaseURL(config.OpenAIBaseURL),
			openai.WithModel(config.OpenAIModel),
		)
	}
	slog.Info("using deterministic caregiver stage client")
	return caregiver.New()
}
