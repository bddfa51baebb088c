// Package valuation prices pool coins the way each pool kind needs them:
// stable pools through their asset type with a depeg correction, crypto
// pools through per-token hourly snapshots.
package valuation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
	"curveVolume/internal/pricing"
	"curveVolume/internal/storage"
)

// DefaultPriceFeedCeiling bounds swap-implied prices used for depegs.
var DefaultPriceFeedCeiling = decimal.NewFromInt(10_000_000)

// Config lists the tokens and pools that do not follow the default rules.
type Config struct {
	ScamPools map[common.Address]bool
	// YCLendingTokens are priced from their own snapshot without depeg.
	YCLendingTokens map[common.Address]bool
	// Metatokens maps a metapool LP token to its metapool.
	Metatokens       map[common.Address]common.Address
	BenchmarkStables map[common.Address]bool
	PriceFeedCeiling decimal.Decimal
}

// Valuer resolves the USD price of a coin inside a pool.
type Valuer struct {
	cfg     Config
	session *storage.Session
	snaps   *pricing.Snapshots
	logger  *zap.Logger
}

func NewValuer(cfg Config, session *storage.Session, snaps *pricing.Snapshots, logger *zap.Logger) *Valuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PriceFeedCeiling.IsZero() {
		cfg.PriceFeedCeiling = DefaultPriceFeedCeiling
	}
	return &Valuer{cfg: cfg, session: session, snaps: snaps, logger: logger}
}

// Snapshots exposes the hourly price memo.
func (v *Valuer) Snapshots() *pricing.Snapshots { return v.snaps }

// IsScam reports whether pool is priced at zero.
func (v *Valuer) IsScam(pool *model.Pool) bool {
	return v.cfg.ScamPools[common.HexToAddress(pool.ID)]
}

// TokenPrice dispatches on the pool's invariant.
func (v *Valuer) TokenPrice(ctx context.Context, pool *model.Pool, token string, ts uint64, block *big.Int) (decimal.Decimal, error) {
	if pool.IsV2 {
		return v.CryptoTokenPrice(ctx, pool, token, ts, block)
	}
	return v.StableTokenPrice(ctx, pool, token, ts, block)
}

// CryptoTokenPrice is the hourly price of token. Tokens that only trade on
// Curve fall back to the pool's own price oracle.
func (v *Valuer) CryptoTokenPrice(ctx context.Context, pool *model.Pool, token string, ts uint64, block *big.Int) (decimal.Decimal, error) {
	if v.IsScam(pool) {
		return numeric.Zero, nil
	}
	asset := common.HexToAddress(token)
	resolver := v.snaps.Resolver()
	key := pricing.Hex(asset)
	return v.snaps.Memo(ctx, model.TokenSnapshotID(key, ts), key, model.IntervalStart(ts, model.Hour), func() decimal.Decimal {
		var price decimal.Decimal
		if resolver.IsForex(asset) {
			price = resolver.ForexUSD(ctx, asset, block)
		} else {
			price = resolver.MarketUSD(ctx, asset, block)
		}
		if price.IsZero() && resolver.IsCurveOnly(asset) {
			v.logger.Warn("no market price, using pool oracle",
				zap.String("token", key),
				zap.String("pool", pool.ID),
			)
			price = resolver.CurveOnlyPrice(ctx, asset, common.HexToAddress(pool.ID), block)
		}
		return price
	})
}

// AssetTypePrice is the hourly price of the pool's peg: its forex oracle,
// WETH, WBTC, USDT, or the first priceable coin.
func (v *Valuer) AssetTypePrice(ctx context.Context, pool *model.Pool, ts uint64, block *big.Int) (decimal.Decimal, error) {
	resolver := v.snaps.Resolver()
	cfg := resolver.Config()
	addr := common.HexToAddress(pool.ID)
	switch {
	case resolver.IsForex(addr):
		return v.snaps.Forex(ctx, addr, ts, block)
	case pool.AssetType == model.AssetTypeETH:
		return v.snaps.Token(ctx, cfg.WETH, ts, block)
	case pool.AssetType == model.AssetTypeBTC:
		return v.snaps.Token(ctx, cfg.WBTC, ts, block)
	case pool.AssetType == model.AssetTypeUSD:
		return v.snaps.Token(ctx, cfg.USDT, ts, block)
	default:
		return v.StableCryptoPrice(ctx, pool, ts, block)
	}
}

// StableCryptoPrice prices a pool whose peg is unknown by the first coin
// with a USD price. The snapshot is keyed by the pool.
func (v *Valuer) StableCryptoPrice(ctx context.Context, pool *model.Pool, ts uint64, block *big.Int) (decimal.Decimal, error) {
	id := model.TokenSnapshotID(pool.ID, ts)
	snap, found, err := v.snaps.Lookup(ctx, id)
	if err != nil {
		return numeric.Zero, err
	}
	if found {
		return snap.Price, nil
	}

	price := numeric.Zero
	token := pricing.Hex(common.Address{})
	for _, coin := range pool.Coins {
		price = v.snaps.Resolver().USD(ctx, common.HexToAddress(coin), block)
		if !price.IsZero() {
			token = coin
			break
		}
	}
	snapshot := &model.TokenSnapshot{ID: id, Token: token, Timestamp: model.IntervalStart(ts, model.Hour), Price: price}
	if err := v.snaps.Save(snapshot); err != nil {
		return numeric.Zero, err
	}
	return price, nil
}

// StableTokenPrice prices a stable pool coin at the pool's peg, scaled by
// virtual price for metatokens and corrected for depeg through same-pool
// price feeds.
func (v *Valuer) StableTokenPrice(ctx context.Context, pool *model.Pool, token string, ts uint64, block *big.Int) (decimal.Decimal, error) {
	if v.IsScam(pool) {
		return numeric.Zero, nil
	}
	asset := common.HexToAddress(token)
	if v.cfg.YCLendingTokens[asset] {
		return v.snaps.Token(ctx, asset, ts, block)
	}

	price, err := v.AssetTypePrice(ctx, pool, ts, block)
	if err != nil {
		return numeric.Zero, err
	}

	if metapoolAddr, ok := v.cfg.Metatokens[asset]; ok {
		var metapool model.Pool
		found, err := v.session.Load(ctx, model.KindPool, pricing.Hex(metapoolAddr), &metapool)
		if err != nil {
			return numeric.Zero, err
		}
		if found {
			price = price.Mul(metapool.VirtualPrice).Shift(-18)
		}
		return price, nil
	}
	if v.cfg.BenchmarkStables[asset] {
		return price, nil
	}

	relative, ok, err := v.depeg(ctx, pool.ID, pool.Coins, token)
	if err != nil {
		return numeric.Zero, err
	}
	if ok {
		return price.Mul(relative), nil
	}
	if pool.Metapool && pool.BasePool != "" {
		var base model.BasePool
		found, err := v.session.Load(ctx, model.KindBasePool, pool.BasePool, &base)
		if err != nil {
			return numeric.Zero, err
		}
		if found {
			relative, ok, err = v.depeg(ctx, pool.ID, base.Coins, token)
			if err != nil {
				return numeric.Zero, err
			}
			if ok {
				return price.Mul(relative), nil
			}
		}
	}
	return price, nil
}

// depeg returns the first usable price of token against another coin of
// the pool. Feeds outside (0, ceiling] are skipped.
func (v *Valuer) depeg(ctx context.Context, poolID string, coins []string, token string) (decimal.Decimal, bool, error) {
	for _, coin := range coins {
		if coin == token {
			continue
		}
		var feed model.PriceFeed
		found, err := v.session.Load(ctx, model.KindPriceFeed, model.PriceFeedID(poolID, token, coin), &feed)
		if err != nil {
			return numeric.Zero, false, err
		}
		if !found {
			continue
		}
		if !feed.Price.IsPositive() || feed.Price.GreaterThan(v.cfg.PriceFeedCeiling) {
			v.logger.Debug("ignoring implausible price feed",
				zap.String("feed", feed.ID),
				zap.String("price", feed.Price.String()),
			)
			continue
		}
		return feed.Price, true, nil
	}
	return numeric.Zero, false, nil
}
