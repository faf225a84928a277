package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logsieve/logsieve/internal/config"
	"github.com/logsieve/logsieve/internal/detect"
	"github.com/logsieve/logsieve/internal/observability"
	"github.com/logsieve/logsieve/internal/patterns"
	"github.com/logsieve/logsieve/internal/registry"
	"github.com/logsieve/logsieve/internal/server"
	"github.com/logsieve/logsieve/internal/store"
	"github.com/logsieve/logsieve/internal/stream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the detection API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := server.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	reg := registry.New(cfg.ModelDir, logger)
	if _, err := reg.Latest(); err != nil {
		logger.Warn("starting without a model, all traffic reported benign", "model_dir", cfg.ModelDir, "err", err)
	}

	pipeline, metrics, err := buildPipeline(cfg, table, reg, logger)
	if err != nil {
		return err
	}

	hub := stream.NewHub(logger)

	var auditStore *store.Store
	if cfg.DatabaseURL != "" {
		auditStore, err = store.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer auditStore.Close()
	} else {
		logger.Info("no DATABASE_URL set, audit persistence disabled")
	}

	// Pick up freshly trained bundles without a restart.
	go server.RunWithRecovery(ctx, logger, metrics, "model-rescan", func(ctx context.Context) {
		rescanModels(ctx, reg, logger)
	})

	api := server.NewAPI(pipeline, auditStore, hub, metrics, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	return server.Run(ctx, cfg.Addr, api.Router(), logger)
}

func loadTable(cfg *config.Config) (*patterns.Table, error) {
	if cfg.PatternFile != "" {
		return patterns.Load(cfg.PatternFile)
	}
	return patterns.Default(), nil
}

func buildPipeline(cfg *config.Config, table *patterns.Table, reg *registry.Registry, logger *slog.Logger) (*detect.Pipeline, *observability.Metrics, error) {
	var pipeline *detect.Pipeline
	metrics := observability.New(
		func() float64 {
			if pipeline == nil {
				return 0
			}
			hits, _ := pipeline.Engine().CacheStats()
			return float64(hits)
		},
		func() float64 {
			if pipeline == nil {
				return 0
			}
			_, misses := pipeline.Engine().CacheStats()
			return float64(misses)
		},
	)

	pipeline, err := detect.New(detect.Options{
		Registry:   reg,
		Table:      table,
		Thresholds: cfg.Thresholds,
		Flags:      cfg.Flags,
		Factors:    cfg.Factors,
		CacheSize:  cfg.CacheSize,
		Workers:    cfg.Workers,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	return pipeline, metrics, nil
}

// rescanModels drops the bundle cache periodically so a newer model version
// in the directory becomes active without a restart.
func rescanModels(ctx context.Context, reg *registry.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	last, _ := reg.Latest()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latest, err := reg.Latest()
			if err != nil || latest == last {
				continue
			}
			logger.Info("new model version found", "version", latest, "previous", last)
			reg.ClearCache()
			last = latest
		}
	}
}
