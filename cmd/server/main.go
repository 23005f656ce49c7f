package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/api"
	"github.com/dgallion1/docmark/internal/cache"
	"github.com/dgallion1/docmark/internal/config"
	"github.com/dgallion1/docmark/internal/describe"
	"github.com/dgallion1/docmark/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("invalid configuration", "error", err, "hint", errors.FlattenHints(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := cache.New(cfg.CacheEntries)
	if err != nil {
		log.Error("init cache", "error", err)
		os.Exit(1)
	}

	// Image descriptions are optional.
	var claude *describe.ClaudeClient
	if cfg.DescribeEnabled() {
		claude = describe.NewClaudeClient(cfg.AnthropicAPIKey, describe.Options{
			Model:   cfg.AnthropicModel,
			Timeout: cfg.DescribeTimeout,
			RPS:     cfg.DescribeRPS,
			Logger:  log,
		})
	}

	orch := pipeline.NewOrchestrator(cfg, results, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, results, claude, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}

		orch.Stop()
		if claude != nil {
			claude.Close()
		}
	}()

	log.Info("starting docmark",
		"port", cfg.Port,
		"workers", cfg.WorkerCount,
		"cache_entries", cfg.CacheEntries,
		"describe", claude != nil)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
