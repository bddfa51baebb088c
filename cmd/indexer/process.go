package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveVolume/internal/config"
	"curveVolume/internal/replay"
)

func runProcess(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProcess(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	from, err := config.ParsePosition(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg.Chain, cfg.Store, cfg.Kafka, cfg.Book, cfg.MetricsAddr, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	comps, err := rt.newComponents(cfg.Book, cfg.Concurrency)
	if err != nil {
		return err
	}

	var state replay.StateStore
	switch {
	case cfg.StateFile != "":
		state = &replay.FileStateStore{Path: cfg.StateFile}
	case rt.pg != nil:
		state = &replay.DBStateStore{Store: rt.pg, Name: cfg.StateName}
	default:
		logger.Info("no progress state configured, resuming from the store cursor")
	}

	replayer := replay.New(replay.Config{
		Input:     cfg.Input,
		Name:      cfg.StateName,
		BatchSize: cfg.BatchSize,
		From:      from,
	}, comps.processor, state, rt.publisher, logger, rt.metrics)

	logger.Info("process start",
		zap.String("in", cfg.Input),
		zap.String("store", cfg.Store.Backend),
		zap.Int("batch_size", cfg.BatchSize),
		zap.String("state_file", cfg.StateFile),
		zap.String("recompute_from", cfg.RecomputeFrom),
		zap.Bool("kafka", rt.publisher != nil),
	)

	stats, err := replayer.Run(ctx)
	if err != nil {
		return err
	}
	rt.trackPools(ctx, comps)

	logger.Info("process complete",
		zap.Int("applied", stats.Applied),
		zap.Uint64("block", stats.Position.Block),
	)
	return nil
}
