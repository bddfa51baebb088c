// Package rebase computes how much of a pool's apparent yield comes from
// collateral that accrues value on its own, and records the event-driven
// snapshots some of those computations need.
package rebase

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
	"curveVolume/internal/dex"
	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
	"curveVolume/internal/pricing"
	"curveVolume/internal/storage"
)

// DefaultLidoFee is the protocol fee taken from staking rewards.
var DefaultLidoFee = decimal.RequireFromString("0.1")

// LidoConfig describes the liquid-staking pools. Before Cutover the APR
// comes from the oracle's last report, after it from the daily snapshots
// written by HandleLidoRebase.
type LidoConfig struct {
	Pools   map[common.Address]bool
	Token   common.Address
	Oracle  common.Address
	Cutover uint64
	Fee     decimal.Decimal
}

// SingleAsset is a pool with one rebasing coin tracked by events.
type SingleAsset struct {
	Pool  common.Address
	Token common.Address
}

// Config is the rebase allow-list.
type Config struct {
	Lido      LidoConfig
	AavePools map[common.Address]bool
	YCPools   map[common.Address]bool
	Usdn      SingleAsset
	Aeth      SingleAsset
}

// Deducer computes deductible APRs. All rates are daily.
type Deducer struct {
	cfg     Config
	reader  *chain.Reader
	abis    *dex.ABIs
	session *storage.Session
	snaps   *pricing.Snapshots
	logger  *zap.Logger
}

func NewDeducer(cfg Config, reader *chain.Reader, session *storage.Session, snaps *pricing.Snapshots, logger *zap.Logger) (*Deducer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abis, err := dex.LoadABIs()
	if err != nil {
		return nil, err
	}
	if cfg.Lido.Fee.IsZero() {
		cfg.Lido.Fee = DefaultLidoFee
	}
	return &Deducer{cfg: cfg, reader: reader, abis: abis, session: session, snaps: snaps, logger: logger}, nil
}

// Applies reports whether pool is on any rebase allow-list.
func (d *Deducer) Applies(pool common.Address) bool {
	switch {
	case d.cfg.Lido.Pools[pool], d.cfg.AavePools[pool], d.cfg.YCPools[pool]:
		return true
	case pool != (common.Address{}) && (pool == d.cfg.Usdn.Pool || pool == d.cfg.Aeth.Pool):
		return true
	}
	return false
}

// DeductibleAPR sums each rebasing coin's daily rate weighted by its share
// of pool TVL. It is zero for pools off the allow-lists, when the reserve
// count does not match the coin count, or when TVL is not positive.
func (d *Deducer) DeductibleAPR(ctx context.Context, pool *model.Pool, reservesUSD []decimal.Decimal, ts uint64, block *big.Int) (decimal.Decimal, error) {
	addr := common.HexToAddress(pool.ID)
	if !d.Applies(addr) || len(reservesUSD) != len(pool.Coins) {
		return numeric.Zero, nil
	}
	tvl := numeric.Zero
	for _, r := range reservesUSD {
		tvl = tvl.Add(r)
	}
	if !tvl.IsPositive() {
		return numeric.Zero, nil
	}

	switch {
	case d.cfg.Lido.Pools[addr]:
		return d.lido(ctx, pool, reservesUSD, tvl, ts, block)
	case d.cfg.AavePools[addr]:
		return d.weighted(ctx, pool, reservesUSD, tvl, func(token common.Address) (decimal.Decimal, error) {
			return d.aTokenDailyRate(ctx, token, ts, block)
		})
	case d.cfg.YCPools[addr]:
		return d.weighted(ctx, pool, reservesUSD, tvl, func(token common.Address) (decimal.Decimal, error) {
			return d.priceGrowth(ctx, token, ts, block)
		})
	case addr == d.cfg.Usdn.Pool:
		// the reward for today may not be distributed yet
		rate, err := d.rebaseValue(ctx, d.cfg.Usdn.Token, ts-model.Day)
		if err != nil {
			return numeric.Zero, err
		}
		return d.share(pool, d.cfg.Usdn.Token, 0, reservesUSD, tvl).Mul(rate), nil
	case addr == d.cfg.Aeth.Pool:
		return d.aeth(ctx, pool, reservesUSD, tvl, ts)
	}
	return numeric.Zero, nil
}

// share is the TVL fraction of token, at fallback when it is not a coin.
func (d *Deducer) share(pool *model.Pool, token common.Address, fallback int, reservesUSD []decimal.Decimal, tvl decimal.Decimal) decimal.Decimal {
	idx := pool.CoinIndex(pricing.Hex(token))
	if idx < 0 {
		idx = fallback
	}
	if idx >= len(reservesUSD) {
		return numeric.Zero
	}
	return numeric.Div(reservesUSD[idx], tvl)
}

func (d *Deducer) weighted(ctx context.Context, pool *model.Pool, reservesUSD []decimal.Decimal, tvl decimal.Decimal, rate func(common.Address) (decimal.Decimal, error)) (decimal.Decimal, error) {
	total := numeric.Zero
	for i, coin := range pool.Coins {
		r, err := rate(common.HexToAddress(coin))
		if err != nil {
			return numeric.Zero, err
		}
		ratio := numeric.Div(reservesUSD[i], tvl)
		d.logger.Debug("rebasing coin",
			zap.String("pool", pool.ID),
			zap.String("coin", coin),
			zap.String("rate", r.String()),
			zap.String("ratio", ratio.String()),
		)
		total = total.Add(r.Mul(ratio))
	}
	return total, nil
}

func (d *Deducer) lido(ctx context.Context, pool *model.Pool, reservesUSD []decimal.Decimal, tvl decimal.Decimal, ts uint64, block *big.Int) (decimal.Decimal, error) {
	var rate decimal.Decimal
	if ts < d.cfg.Lido.Cutover {
		rate = d.lidoOracleRate(ctx, block)
	} else {
		var err error
		rate, err = d.rebaseValue(ctx, d.cfg.Lido.Token, ts)
		if err != nil {
			return numeric.Zero, err
		}
		if rate.IsZero() {
			// today's report may not have landed yet
			if rate, err = d.rebaseValue(ctx, d.cfg.Lido.Token, ts-model.Day); err != nil {
				return numeric.Zero, err
			}
		}
	}
	ratio := d.share(pool, d.cfg.Lido.Token, 1, reservesUSD, tvl)
	d.logger.Info("lido deductible apr",
		zap.String("pool", pool.ID),
		zap.String("rate", rate.String()),
		zap.String("ratio", ratio.String()),
	)
	return rate.Mul(ratio), nil
}

// lidoOracleRate is the last report's pooled ether growth net of fees,
// normalized to one day.
func (d *Deducer) lidoOracleRate(ctx context.Context, block *big.Int) decimal.Decimal {
	res := d.reader.Call(ctx, &d.abis.LidoOracle, d.cfg.Lido.Oracle, "getLastCompletedReportDelta", block)
	if !res.Ok() {
		d.logger.Warn("lido oracle call reverted", zap.Error(res.Err))
		return numeric.Zero
	}
	post, pre, elapsed := numeric.FromBig(res.BigInt(0)), numeric.FromBig(res.BigInt(1)), res.BigInt(2)
	rate := numeric.GrowthRate(post, pre)
	if elapsed.Sign() > 0 {
		rate = numeric.Div(rate.Mul(decimal.NewFromInt(int64(model.Day))), numeric.FromBig(elapsed))
	}
	return rate.Mul(numeric.One.Sub(d.cfg.Lido.Fee))
}

func (d *Deducer) aeth(ctx context.Context, pool *model.Pool, reservesUSD []decimal.Decimal, tvl decimal.Decimal, ts uint64) (decimal.Decimal, error) {
	// the ratio falls as aETH accrues; the two previous days are complete
	prev, err := d.rebaseValue(ctx, d.cfg.Aeth.Token, ts-2*model.Day)
	if err != nil {
		return numeric.Zero, err
	}
	last, err := d.rebaseValue(ctx, d.cfg.Aeth.Token, ts-model.Day)
	if err != nil {
		return numeric.Zero, err
	}
	if last.IsZero() || prev.IsZero() {
		return numeric.Zero, nil
	}
	rate := numeric.Div(prev.Sub(last), last)
	return rate.Mul(d.share(pool, d.cfg.Aeth.Token, 0, reservesUSD, tvl)), nil
}

// aTokenDailyRate is the growth of totalSupply/scaledTotalSupply since the
// previous day. Each day's scale is read once.
func (d *Deducer) aTokenDailyRate(ctx context.Context, token common.Address, ts uint64, block *big.Int) (decimal.Decimal, error) {
	previous, err := d.aTokenScale(ctx, token, ts-model.Day, block)
	if err != nil {
		return numeric.Zero, err
	}
	current, err := d.aTokenScale(ctx, token, ts, block)
	if err != nil {
		return numeric.Zero, err
	}
	return numeric.GrowthRate(current, previous), nil
}

func (d *Deducer) aTokenScale(ctx context.Context, token common.Address, ts uint64, block *big.Int) (decimal.Decimal, error) {
	key := pricing.Hex(token)
	return d.snaps.Memo(ctx, model.RebaseSnapshotID(key, ts), key, model.IntervalStart(ts, model.Day), func() decimal.Decimal {
		supply := d.reader.Call(ctx, &d.abis.AToken, token, "totalSupply", block)
		scaled := d.reader.Call(ctx, &d.abis.AToken, token, "scaledTotalSupply", block)
		if !supply.Ok() || !scaled.Ok() {
			d.logger.Warn("aToken supply call reverted", zap.String("token", key))
			return numeric.Zero
		}
		return numeric.Div(numeric.FromBig(supply.BigInt(0)), numeric.FromBig(scaled.BigInt(0)))
	})
}

// priceGrowth is the growth of an accruing token's hourly USD snapshot over
// one day. A missing previous snapshot gives zero.
func (d *Deducer) priceGrowth(ctx context.Context, token common.Address, ts uint64, block *big.Int) (decimal.Decimal, error) {
	prev, found, err := d.snaps.Lookup(ctx, model.TokenSnapshotID(pricing.Hex(token), ts-model.Day))
	if err != nil || !found {
		return numeric.Zero, err
	}
	current, err := d.snaps.Token(ctx, token, ts, block)
	if err != nil {
		return numeric.Zero, err
	}
	return numeric.GrowthRate(current, prev.Price), nil
}

// rebaseValue loads the event-driven rebase snapshot of token for the day
// containing ts, zero when absent.
func (d *Deducer) rebaseValue(ctx context.Context, token common.Address, ts uint64) (decimal.Decimal, error) {
	snap, found, err := d.snaps.Lookup(ctx, model.RebaseSnapshotID(pricing.Hex(token), ts))
	if err != nil || !found {
		return numeric.Zero, err
	}
	return snap.Price, nil
}
