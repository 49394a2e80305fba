package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speaklevel/interview-gateway/internal/assess"
	"github.com/speaklevel/interview-gateway/internal/prompts"
	"github.com/speaklevel/interview-gateway/internal/session"
	"github.com/speaklevel/interview-gateway/internal/store"
	"github.com/speaklevel/interview-gateway/internal/trace"
	"github.com/speaklevel/interview-gateway/internal/upstream"
	"github.com/speaklevel/interview-gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	if cfg.openaiAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	reports, err := store.NewReports(cfg.reportsDir)
	if err != nil {
		slog.Error("reports store init failed", "dir", cfg.reportsDir, "error", err)
		os.Exit(1)
	}

	var traceStore *trace.Store
	if cfg.traceDBURL != "" {
		traceStore, err = trace.Open(cfg.traceDBURL)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer traceStore.Close()
			slog.Info("tracing enabled")
		}
	}

	generator := assess.NewGenerator(cfg.assessModel, cfg.assessMaxTokens, prompts.AssessmentRubric())
	registry := session.NewRegistry()

	handler := ws.NewHandler(ws.HandlerConfig{
		Registry:   registry,
		Reporter:   generator,
		Records:    reports,
		TraceStore: traceStore,
		Upstream: upstream.Config{
			URL:    cfg.realtimeURL,
			Model:  cfg.realtimeModel,
			APIKey: cfg.openaiAPIKey,
			Voice:  cfg.voice,
		},
		MaxConcurrent:   cfg.maxConcurrentSessions,
		MinUtterance:    cfg.minUtterance,
		MaxUtterance:    cfg.maxUtterance,
		DrainTimeout:    cfg.drainTimeout,
		KeepalivePeriod: cfg.keepalivePeriod,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		registry:   registry,
		reports:    reports,
		traceStore: traceStore,
		wsHandler:  handler,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go registry.RunSweeper(sweepCtx, cfg.sweepInterval, cfg.maxSessionIdle)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancelSweep()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		registry.ShutdownAll(ctx)
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "max_concurrent", cfg.maxConcurrentSessions, "model", cfg.realtimeModel)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
