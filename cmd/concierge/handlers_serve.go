package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	slackchannel "github.com/haasonsaas/concierge/internal/channels/slack"
	"github.com/haasonsaas/concierge/internal/sessions"
)

const shutdownTimeout = 30 * time.Second

// runServe wires the pipeline and runs the Slack adapter, the metrics
// endpoint and the memory sweeper until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg, debug)
	slog.SetDefault(logger)

	logger.Info("starting concierge",
		"version", version,
		"commit", commit,
		"config", configPath,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{connectKnowledge: true})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer closeApp(a)

	for _, status := range a.knowledge.Status() {
		logger.Info("knowledge server", "id", status.ID, "connected", status.Connected, "tools", status.Tools)
	}

	sweeper, err := sessions.NewSweeper(a.memory, cfg.Pipeline.SweepSchedule,
		sessions.WithSweepLogger(logger),
		sessions.WithSweepCallback(func(removed int) {
			a.metrics.AddMemoryEvictions(removed)
			a.metrics.SetMemoryThreads(a.memory.Len())
		}),
	)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Observability.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Observability.Metrics.Addr,
			Handler:           metricsMux(a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Slack.Enabled {
		adapter, err := slackchannel.New(slackchannel.Config{
			BotToken:  cfg.Slack.BotToken,
			AppToken:  cfg.Slack.AppToken,
			Command:   cfg.Slack.Command,
			RateLimit: cfg.Slack.RateLimit,
			RateBurst: cfg.Slack.RateBurst,
			Logger:    logger,
		}, a.controller, a.memory, slackchannel.WithMessageRecorder(a.metrics))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return adapter.Run(gctx)
		})
	} else {
		logger.Warn("slack is disabled; serving metrics and memory sweeps only")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, initiating graceful shutdown")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("concierge stopped gracefully")
	return nil
}

func metricsMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{Registry: a.promRegistry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
