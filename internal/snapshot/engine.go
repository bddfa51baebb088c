// Package snapshot takes the daily pool snapshots: reserves, TVL, base and
// rebase APR, and the fee split derived from them.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"curveVolume/internal/chain"
	"curveVolume/internal/dex"
	"curveVolume/internal/metrics"
	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
	"curveVolume/internal/rebase"
	"curveVolume/internal/registry"
	"curveVolume/internal/storage"
	"curveVolume/internal/valuation"
)

// DefaultAprCeiling is the largest daily base APR persisted as computed.
var DefaultAprCeiling = decimal.RequireFromString("0.0005")

const defaultConcurrency = 8

// FeeSplit names how total fees are divided between LPs and the admin.
type FeeSplit string

const (
	// FeeSplitOnchain backs the total out of the pool's admin_fee.
	FeeSplitOnchain FeeSplit = "onchain"
	// FeeSplitFixedHalf burns half of the fees regardless of admin_fee.
	FeeSplitFixedHalf FeeSplit = "fixed-half"
)

// Config holds the sweep policies.
type Config struct {
	AprCeiling decimal.Decimal
	// FeeSplits overrides FeeSplitOnchain per pool.
	FeeSplits map[common.Address]FeeSplit
	// DeprecatedPools maps a pool to the timestamp after which only its
	// virtual price is recorded.
	DeprecatedPools map[common.Address]uint64
	// CTokens are coins whose pool balance is read with balanceOf.
	CTokens     map[common.Address]bool
	Concurrency int
}

// Engine runs snapshot sweeps.
type Engine struct {
	cfg      Config
	reader   *chain.Reader
	mc       *chain.Multicall
	abis     *dex.ABIs
	registry *registry.Registry
	valuer   *valuation.Valuer
	deducer  *rebase.Deducer
	session  *storage.Session
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config, reader *chain.Reader, mc *chain.Multicall, reg *registry.Registry, valuer *valuation.Valuer, deducer *rebase.Deducer, session *storage.Session, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abis, err := dex.LoadABIs()
	if err != nil {
		return nil, err
	}
	if cfg.AprCeiling.IsZero() {
		cfg.AprCeiling = DefaultAprCeiling
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Engine{
		cfg:      cfg,
		reader:   reader,
		mc:       mc,
		abis:     abis,
		registry: reg,
		valuer:   valuer,
		deducer:  deducer,
		session:  session,
		logger:   logger,
		metrics:  m,
	}, nil
}

func (e *Engine) deprecated(pool *model.Pool, ts uint64) bool {
	cutoff, ok := e.cfg.DeprecatedPools[common.HexToAddress(pool.Address)]
	return ok && ts > cutoff
}

// TakeSnapshots writes one DailyPoolSnapshot per tracked pool for the day
// of ts. Chain reads fan out across pools; everything that touches
// entities runs serially afterwards. A day is swept once: later calls for
// the same day return immediately, and pools that already have a
// snapshot are skipped.
func (e *Engine) TakeSnapshots(ctx context.Context, ts uint64, block uint64) error {
	day := model.IntervalStart(ts, model.Day)
	platform, err := e.registry.Platform(ctx)
	if err != nil {
		return err
	}
	if platform.LatestPoolSnapshot == day && day != 0 {
		return nil
	}
	start := time.Now()

	var pools []*model.Pool
	for _, addr := range platform.PoolAddresses {
		exists, err := e.session.Exists(ctx, model.KindDailyPoolSnapshot, model.DailyPoolSnapshotID(addr, ts))
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		pool, found, err := e.registry.Pool(ctx, addr)
		if err != nil {
			return err
		}
		if !found {
			e.logger.Warn("platform lists untracked pool", zap.String("pool", addr))
			continue
		}
		pools = append(pools, pool)
	}

	blockNumber := model.EventMeta{Block: block}.BlockNumber()
	reads := make([]poolReads, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, pool := range pools {
		i, pool := i, pool
		g.Go(func() error {
			reads[i] = e.read(gctx, pool, e.deprecated(pool, ts), blockNumber)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var platformSnap model.DailyPlatformSnapshot
	found, err := e.session.Load(ctx, model.KindDailyPlatformSnapshot, model.DailyPlatformSnapshotID(ts), &platformSnap)
	if err != nil {
		return err
	}
	if !found {
		platformSnap = model.DailyPlatformSnapshot{
			ID:                model.DailyPlatformSnapshotID(ts),
			AdminFeesUSD:      numeric.Zero,
			LpFeesUSD:         numeric.Zero,
			TotalDailyFeesUSD: numeric.Zero,
		}
	}
	platformSnap.Timestamp = ts

	for i, pool := range pools {
		snap, err := e.build(ctx, pool, reads[i], ts, blockNumber)
		if err != nil {
			return fmt.Errorf("snapshot pool %s: %w", pool.ID, err)
		}
		if err := e.session.Save(snap); err != nil {
			return err
		}
		pool.CumulativeFeesUSD = pool.CumulativeFeesUSD.Add(snap.TotalDailyFeesUSD)
		pool.VirtualPrice = snap.VirtualPrice
		pool.BaseApr = snap.BaseApr
		if err := e.session.Save(pool); err != nil {
			return err
		}
		platformSnap.AdminFeesUSD = platformSnap.AdminFeesUSD.Add(snap.AdminFeesUSD)
		platformSnap.LpFeesUSD = platformSnap.LpFeesUSD.Add(snap.LpFeesUSD)
		platformSnap.TotalDailyFeesUSD = platformSnap.TotalDailyFeesUSD.Add(snap.TotalDailyFeesUSD)
		e.metrics.Snapshot()
	}

	if err := e.session.Save(&platformSnap); err != nil {
		return err
	}
	// reload: pool creation during this call may have appended addresses
	if platform, err = e.registry.Platform(ctx); err != nil {
		return err
	}
	platform.LatestPoolSnapshot = day
	if err := e.session.Save(platform); err != nil {
		return err
	}

	elapsed := time.Since(start)
	e.metrics.Sweep(elapsed.Seconds())
	e.logger.Info("pool snapshots taken",
		zap.Uint64("day", day),
		zap.Int("pools", len(pools)),
		zap.String("total_fees_usd", platformSnap.TotalDailyFeesUSD.StringFixed(2)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
