package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lysyi3m/tradewire/app/api"
	"github.com/lysyi3m/tradewire/app/cfg"
	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/dedup"
	"github.com/lysyi3m/tradewire/app/extract"
	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/llm"
	"github.com/lysyi3m/tradewire/app/pipeline"
	"github.com/lysyi3m/tradewire/app/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tradewire: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg, err := cfg.Load()
	if err != nil {
		return err
	}
	if appCfg == nil {
		// Help was shown
		return nil
	}

	logger, err := newLogger(appCfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	zap.L().Info("Starting Tradewire",
		zap.String("version", appCfg.Version),
		zap.String("db_driver", appCfg.DBDriver),
		zap.String("feeds_dir", appCfg.FeedsDir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := feed.NewSourceCatalog(appCfg.FeedsDir)
	if err := catalog.Run(); err != nil {
		return err
	}
	zap.L().Info("Sources loaded",
		zap.Int("count", catalog.Count()),
		zap.Int("enabled", len(catalog.Enabled())))

	store, err := database.Open(ctx, appCfg.DBDriver, appCfg.DBPath, appCfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	fetcher := feed.NewFetcher(catalog, httpClient, appCfg.UserAgent)

	client := llm.NewRateLimited(
		llm.NewClient(appCfg.AnthropicAPIKey, appCfg.ModelTimeoutDuration()),
		appCfg.ModelRPM)

	runner := pipeline.NewRunner(
		fetcher,
		store,
		extract.New(client, appCfg.ExtractModel, int64(appCfg.ExtractMaxTokens)),
		dedup.New(store, client, appCfg.DedupModel, int64(appCfg.DedupMaxTokens)),
		pipeline.WithEnricher(fetcher),
		pipeline.WithPendingRecovery(store, 0),
	)
	pipelineRun := tasks.NewPipelineRun(runner, store, appCfg.LockFile)

	if appCfg.Once {
		return runOnce(ctx, pipelineRun)
	}

	return serve(ctx, appCfg, pipelineRun, store, catalog)
}

func runOnce(ctx context.Context, pipelineRun *tasks.PipelineRun) error {
	result, err := pipelineRun.Run(ctx)
	if err != nil {
		return err
	}
	if err := printResult(os.Stdout, result); err != nil {
		return err
	}
	if result.Aborted() {
		return errors.New("run aborted")
	}
	return nil
}

func serve(ctx context.Context, appCfg *cfg.Cfg, pipelineRun *tasks.PipelineRun, store database.Store, catalog *feed.SourceCatalog) error {
	scheduler := tasks.NewScheduler(func() tasks.TaskInterface {
		return tasks.NewRunPipelineTask(pipelineRun)
	}, appCfg.SchedulerIntervalDuration())
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(pipelineRun, store, catalog, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	// Runs triggered over HTTP are synchronous, so writes get a long timeout.
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		zap.L().Info("Starting HTTP server", zap.String("port", appCfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		zap.L().Info("Shutdown signal received")
	case serveErr = <-serverErrChan:
		zap.L().Error("Server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP server shutdown error", zap.Error(err))
	} else {
		zap.L().Info("HTTP server stopped")
	}

	return serveErr
}
