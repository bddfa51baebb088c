package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Curve volume and yield indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch raw Curve logs into JSONL",
		RunE:  runFetch,
	}

	fetchCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	fetchCmd.Flags().Float64("rpc-rps", 0, "RPC requests per second, 0 disables the limiter")
	fetchCmd.Flags().Int("rpc-burst", 0, "RPC limiter burst")
	fetchCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	fetchCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	fetchCmd.Flags().StringSlice("address", nil, "restrict to emitters (comma-separated), empty matches all")
	fetchCmd.Flags().StringSlice("topic0", nil, "topic0 signatures (comma-separated), empty uses the decoder's events")
	fetchCmd.Flags().StringSlice("events", nil, "restrict the default topics to these event names")
	fetchCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	fetchCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	fetchCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	fetchCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	fetchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	fetchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fetchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(fetchCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().StringSlice("events", nil, "restrict to event names (comma-separated)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Apply typed events to pools, volumes and snapshots",
		RunE:  runProcess,
	}

	addChainFlags(processCmd)
	addStoreFlags(processCmd)
	processCmd.Flags().String("in", "", "input typed events JSONL")
	processCmd.Flags().Int("batch-size", 500, "events per store flush")
	processCmd.Flags().String("state-file", "", "local progress file, defaults to the store's state table")
	processCmd.Flags().String("state-name", "processor", "progress key in the state table")
	processCmd.Flags().String("recompute-from", "", "resume after this position (block or block:tx:log)")
	processCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(processCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Take daily pool snapshots at the chain head",
		RunE:  runSweep,
	}

	addChainFlags(sweepCmd)
	addStoreFlags(sweepCmd)
	sweepCmd.Flags().String("schedule", "", "cron schedule with seconds (e.g. \"0 5 0 * * *\"), empty sweeps once")
	sweepCmd.Flags().String("at", "", "snapshot timestamp (unix seconds or RFC3339), defaults to the head block time")
	sweepCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(sweepCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().Bool("down", false, "revert the last migration")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Ethereum archive RPC URL")
	cmd.Flags().Float64("rpc-rps", 0, "RPC requests per second, 0 disables the limiter")
	cmd.Flags().Int("rpc-burst", 0, "RPC limiter burst")
	cmd.Flags().Duration("rpc-timeout", 10*time.Second, "per-call RPC timeout")
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "postgres", "entity store (memory, postgres, redis)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("redis-addr", "", "Redis address")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("redis-prefix", "curve", "Redis key prefix")
	cmd.Flags().StringSlice("kafka-brokers", nil, "publish flushed records to these brokers")
	cmd.Flags().String("kafka-topic", "curve-records", "Kafka topic")
	cmd.Flags().Int("concurrency", 8, "parallel pool reads during snapshot sweeps")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
