package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
	"curveVolume/internal/config"
	"curveVolume/internal/dex"
	"curveVolume/internal/metrics"
	"curveVolume/internal/pricing"
	"curveVolume/internal/processor"
	"curveVolume/internal/rebase"
	"curveVolume/internal/registry"
	"curveVolume/internal/replay"
	"curveVolume/internal/sink"
	"curveVolume/internal/snapshot"
	"curveVolume/internal/storage"
	"curveVolume/internal/storage/memory"
	"curveVolume/internal/storage/postgres"
	"curveVolume/internal/storage/redis"
	"curveVolume/internal/valuation"
)

// runtime holds the long-lived connections shared by every session.
type runtime struct {
	client    *chain.Client
	reader    *chain.Reader
	multicall *chain.Multicall
	meta      *dex.Metadata
	backend   storage.Backend
	pg        *postgres.Store
	publisher replay.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	closers []func()
}

func openRuntime(ctx context.Context, chainCfg config.ChainConfig, storeCfg config.StoreConfig, kafkaCfg config.KafkaConfig, book config.AddressBook, metricsAddr string, logger *zap.Logger) (*runtime, error) {
	if chainCfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if book.Multicall == (common.Address{}) {
		return nil, fmt.Errorf("addresses.multicall is required")
	}

	rt := &runtime{logger: logger}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(reg)
	if metricsAddr != "" {
		rt.serveMetrics(metricsAddr, reg)
	}

	client, err := chain.NewClient(ctx, chainCfg.RPCURL, chain.Options{
		RequestsPerSecond: chainCfg.RequestsPerSecond,
		Burst:             chainCfg.Burst,
		CallTimeout:       chainCfg.CallTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	rt.client = client
	rt.closers = append(rt.closers, client.Close)

	rt.reader = chain.NewReader(client, logger, rt.metrics)
	rt.multicall = chain.NewMulticall(client, book.Multicall, logger, rt.metrics)
	rt.meta, err = dex.NewMetadata(rt.reader, 0, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if err := rt.openBackend(ctx, storeCfg); err != nil {
		rt.Close()
		return nil, err
	}

	if len(kafkaCfg.Brokers) > 0 {
		k, err := sink.NewKafka(sink.Config{Brokers: kafkaCfg.Brokers, Topic: kafkaCfg.Topic}, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.publisher = k
		rt.closers = append(rt.closers, func() {
			if err := k.Close(); err != nil {
				logger.Warn("close kafka writer", zap.Error(err))
			}
		})
	}
	return rt, nil
}

func (rt *runtime) openBackend(ctx context.Context, cfg config.StoreConfig) error {
	switch cfg.Backend {
	case config.StoreMemory:
		rt.logger.Warn("memory store selected, entities are lost on exit")
		rt.backend = memory.NewStore()
	case config.StorePostgres, "":
		if cfg.PGDSN == "" {
			return fmt.Errorf("pg dsn is required")
		}
		if err := postgres.Migrate(cfg.PGDSN); err != nil {
			return err
		}
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.pg = store
		rt.backend = store
		rt.closers = append(rt.closers, store.Close)
	case config.StoreRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("redis addr is required")
		}
		store, err := redis.NewStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rt.backend = store
		rt.closers = append(rt.closers, func() { _ = store.Close() })
	default:
		return fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
	return nil
}

func (rt *runtime) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server", zap.Error(err))
		}
	}()
	rt.closers = append(rt.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	rt.logger.Info("metrics listening", zap.String("addr", addr))
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// components is one entity session and everything bound to it.
type components struct {
	session   *storage.Session
	registry  *registry.Registry
	engine    *snapshot.Engine
	processor *processor.Processor
}

func (rt *runtime) newComponents(book config.AddressBook, concurrency int) (*components, error) {
	session := storage.NewSession(rt.backend)

	resolver, err := pricing.NewResolver(book.Pricing, rt.reader, rt.meta, rt.logger, rt.metrics)
	if err != nil {
		return nil, err
	}
	snaps := pricing.NewSnapshots(session, resolver)

	reg, err := registry.New(book.Registry, rt.reader, rt.meta, session, rt.logger, rt.metrics)
	if err != nil {
		return nil, err
	}
	valuer := valuation.NewValuer(book.Valuation, session, snaps, rt.logger)
	deducer, err := rebase.NewDeducer(book.Rebase, rt.reader, session, snaps, rt.logger)
	if err != nil {
		return nil, err
	}
	handlers, err := rebase.NewHandlers(rt.reader, session, rt.logger)
	if err != nil {
		return nil, err
	}

	snapCfg := book.Snapshot
	snapCfg.Concurrency = concurrency
	engine, err := snapshot.New(snapCfg, rt.reader, rt.multicall, reg, valuer, deducer, session, rt.logger, rt.metrics)
	if err != nil {
		return nil, err
	}
	proc := processor.New(book.Processor, reg, engine, valuer, handlers, session, rt.logger, rt.metrics)

	return &components{session: session, registry: reg, engine: engine, processor: proc}, nil
}

// trackPools publishes the tracked pool count.
func (rt *runtime) trackPools(ctx context.Context, c *components) {
	platform, err := c.registry.Platform(ctx)
	if err != nil {
		rt.logger.Warn("read platform", zap.Error(err))
		return
	}
	rt.metrics.PoolsTracked.Set(float64(len(platform.PoolAddresses)))
}
