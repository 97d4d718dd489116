// Package main provides the clipvault ingestion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/clipvault/internal/config"
	"github.com/raphaelgruber/clipvault/internal/llm"
	"github.com/raphaelgruber/clipvault/internal/media"
	"github.com/raphaelgruber/clipvault/internal/metrics"
	"github.com/raphaelgruber/clipvault/internal/moderation"
	"github.com/raphaelgruber/clipvault/internal/notify"
	"github.com/raphaelgruber/clipvault/internal/server"
	"github.com/raphaelgruber/clipvault/internal/service"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from the store on startup (testing only)")
	flag.Parse()

	if err := run(*wipeDB || os.Getenv("CLIPVAULT_WIPE_DB") == "true"); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(wipe bool) error {
	cfg := config.Load()
	if err := config.ApplyPolicyFile(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog := config.SetupLogger("clipvault-server", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()

	logger.Info("starting clipvault-server",
		"port", cfg.ServerPort,
		"store", cfg.Store,
		"provider", cfg.VisionProvider,
		"policy", cfg.Policy,
	)

	collector := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStore(ctx, cfg, collector, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	if wipe {
		w, ok := st.(wiper)
		if !ok {
			return fmt.Errorf("store %s does not support wiping", cfg.Store)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.WipeData(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("wipe store: %w", err)
		}
		logger.Warn("store wiped")
	}

	sampler := media.NewSampler(cfg.FFmpegPath, cfg.FFprobePath, cfg.MinSourceBytes, media.WithMetrics(collector))
	if err := sampler.CheckTools(); err != nil {
		// Runs will fail with a user-safe message until the tools are installed.
		logger.Warn("frame sampling unavailable", "error", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	model, err := llm.NewModel(ctx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("init vision model: %w", err)
	}
	classifier := llm.NewClassifier(model,
		llm.WithPrompt(cfg.Prompt),
		llm.WithMaxDimension(cfg.FrameMaxDimSize),
		llm.WithTimeout(cfg.ClassifyTimeout),
		llm.WithPacer(llm.NewPacer(cfg.ClassifyInterval)),
		llm.WithClassifierMetrics(collector),
	)

	policy, err := moderation.NewPolicy(cfg.Policy, cfg.PolicyThreshold)
	if err != nil {
		return fmt.Errorf("moderation policy: %w", err)
	}

	hub := notify.NewHub()
	pipeline := service.NewPipeline(st, sampler, classifier, hub, service.PipelineConfig{
		WorkDir:    cfg.WorkDir,
		FrameCount: cfg.FrameCount,
		Policy:     policy,
	})
	pipeline.SetMetrics(collector)

	jobs := service.NewJobManager(pipeline, st, cfg.JobConcurrency, cfg.JobTimeout)
	videos := service.NewVideoService(st, jobs, cfg.UploadDir)

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	resumed, err := jobs.ResumeIncomplete(ctx)
	cancel()
	if err != nil {
		logger.Error("failed to resume interrupted videos", "error", err)
	} else if resumed > 0 {
		logger.Info("resumed interrupted videos", "count", resumed)
	}

	api := server.New(videos, jobs, hub, collector, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/api/videos", cfg.ServerPort))
		logger.Info("push channel available", "url", fmt.Sprintf("ws://localhost:%s/ws", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Interrupted runs stay in processing and are resumed on the next start.
	if err := jobs.Shutdown(ctx); err != nil {
		logger.Warn("jobs still running at shutdown", "error", err)
	}
	hub.Close()

	logger.Info("server stopped")
	return nil
}
