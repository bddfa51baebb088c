package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveVolume/internal/config"
)

func runSweep(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSweep(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	at, err := config.ParseTimestamp(cfg.At)
	if err != nil {
		return fmt.Errorf("parse at: %w", err)
	}
	if at != 0 && cfg.Schedule != "" {
		return fmt.Errorf("at and schedule are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg.Chain, cfg.Store, cfg.Kafka, cfg.Book, cfg.MetricsAddr, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Schedule == "" {
		return sweepOnce(ctx, rt, cfg, at)
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := sweepOnce(ctx, rt, cfg, 0); err != nil {
			logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("parse schedule: %w", err)
	}
	c.Start()
	logger.Info("sweep scheduled", zap.String("schedule", cfg.Schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// sweepOnce snapshots every tracked pool from head-block state, then flushes
// and publishes. A non-zero ts overrides the day being snapshotted. Each run
// gets a fresh session so it sees what the processor has written since.
func sweepOnce(ctx context.Context, rt *runtime, cfg config.SweepConfig, ts uint64) error {
	comps, err := rt.newComponents(cfg.Book, cfg.Concurrency)
	if err != nil {
		return err
	}

	block, err := rt.client.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if ts == 0 {
		ts, err = rt.client.BlockTimestamp(ctx, block)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", block, err)
		}
	}

	start := time.Now()
	if err := comps.engine.TakeSnapshots(ctx, ts, block); err != nil {
		return fmt.Errorf("take snapshots: %w", err)
	}
	docs, err := comps.session.Flush(ctx)
	if err != nil {
		return err
	}
	rt.metrics.Flushed(len(docs))
	if rt.publisher != nil && len(docs) > 0 {
		if err := rt.publisher.Publish(ctx, docs); err != nil {
			return err
		}
	}
	rt.trackPools(ctx, comps)

	rt.logger.Info("sweep complete",
		zap.Uint64("block", block),
		zap.Uint64("timestamp", ts),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
