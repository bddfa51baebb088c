package processor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
)

// coinRef is a resolved swap side.
type coinRef struct {
	token    string
	decimals int
}

// resolveCoin maps an event index onto a token. Underlying swaps on lending
// pools index the underlying list directly; on metapools index 0 is the
// pool's own coin and index i >= 1 is base pool coin i-1.
func (p *Processor) resolveCoin(ctx context.Context, pool *model.Pool, index int, underlying bool, meta model.EventMeta) (coinRef, error) {
	var coins []string
	var decimals []int
	switch {
	case underlying && pool.PoolType == model.PoolTypeLending:
		base, err := p.registry.LendingBasePool(ctx, common.HexToAddress(pool.BasePool), meta.BlockNumber())
		if err != nil {
			return coinRef{}, err
		}
		coins, decimals = base.Coins, base.CoinDecimals
	case underlying && index != 0:
		base, err := p.registry.BasePool(ctx, common.HexToAddress(pool.BasePool), meta.BlockNumber())
		if err != nil {
			return coinRef{}, err
		}
		coins, decimals = base.Coins, base.CoinDecimals
		index--
	default:
		coins, decimals = pool.Coins, pool.CoinDecimals
	}
	if index < 0 || index >= len(coins) || index >= len(decimals) {
		return coinRef{}, fmt.Errorf("pool %s coin index %d of %d: %w", pool.ID, index, len(coins), model.ErrMissingEntity)
	}
	if common.HexToAddress(coins[index]) == (common.Address{}) {
		return coinRef{}, fmt.Errorf("pool %s coin %d is the zero address: %w", pool.ID, index, model.ErrMissingEntity)
	}
	return coinRef{token: coins[index], decimals: decimals[index]}, nil
}

// overwritesDx reports whether the pool emits the base pool LP amount
// instead of the sold underlying amount on underlying swaps into coin 0.
func overwritesDx(pool *model.Pool) bool {
	if pool.IsRebasing {
		return false
	}
	factory := pool.PoolType == model.PoolTypeStableFactory || pool.PoolType == model.PoolTypeMetapoolFactory
	return (pool.AssetType == model.AssetTypeBTC && factory) ||
		(pool.AssetType == model.AssetTypeUSD && pool.PoolType == model.PoolTypeStableFactory)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: coin index %q", errDecode, s)
	}
	return i, nil
}

// HandleExchange records a swap: the SwapEvent, pool and interval volume,
// the pool's price feed and candles.
func (p *Processor) HandleExchange(ctx context.Context, addr common.Address, data model.TokenExchangeEventData, meta model.EventMeta) error {
	pool, err := p.trackedPool(ctx, addr)
	if err != nil {
		return err
	}
	if err := p.ensureNew(ctx, model.KindSwapEvent, meta); err != nil {
		return err
	}
	if err := p.engine.TakeSnapshots(ctx, meta.Timestamp, meta.Block); err != nil {
		return err
	}
	soldID, err := parseIndex(data.SoldID)
	if err != nil {
		return err
	}
	boughtID, err := parseIndex(data.BoughtID)
	if err != nil {
		return err
	}

	sold, err := p.resolveCoin(ctx, pool, soldID, data.Underlying, meta)
	if err != nil {
		return err
	}
	bought, err := p.resolveCoin(ctx, pool, boughtID, data.Underlying, meta)
	if err != nil {
		return err
	}

	rawSold := numeric.ParseDecimal(data.TokensSold)
	if data.Underlying && pool.PoolType != model.PoolTypeLending && soldID != 0 && boughtID == 0 && overwritesDx(pool) {
		rawSold, err = p.reconstructDx(ctx, pool, soldID-1, meta)
		if err != nil {
			return err
		}
	}
	amountSold := numeric.Unscale(rawSold, sold.decimals)
	amountBought := numeric.Unscale(numeric.ParseDecimal(data.TokensBought), bought.decimals)

	block := meta.BlockNumber()
	soldPrice, err := p.valuer.TokenPrice(ctx, pool, sold.token, meta.Timestamp, block)
	if err != nil {
		return err
	}
	boughtPrice, err := p.valuer.TokenPrice(ctx, pool, bought.token, meta.Timestamp, block)
	if err != nil {
		return err
	}

	swap := &model.SwapEvent{
		ID:              model.EventID(meta.Tx, meta.LogIndex),
		Pool:            pool.ID,
		Block:           meta.Block,
		Timestamp:       meta.Timestamp,
		Tx:              meta.Tx,
		LogIndex:        meta.LogIndex,
		Buyer:           model.NormalizeAddress(data.Buyer),
		TokenSold:       sold.token,
		TokenBought:     bought.token,
		AmountSold:      amountSold,
		AmountBought:    amountBought,
		AmountSoldUSD:   amountSold.Mul(soldPrice),
		AmountBoughtUSD: amountBought.Mul(boughtPrice),
		IsUnderlying:    data.Underlying,
	}
	volume := numeric.Div(amountSold.Add(amountBought), numeric.Two)
	volumeUSD := numeric.Div(swap.AmountSoldUSD.Add(swap.AmountBoughtUSD), numeric.Two)
	if volumeUSD.GreaterThan(p.cfg.VolumeCeiling) {
		p.logger.Warn("swap usd volume above ceiling zeroed",
			zap.String("pool", pool.ID),
			zap.String("tx", meta.Tx),
			zap.String("volume_usd", volumeUSD.String()),
		)
		p.metrics.Reject("volume_usd")
		swap.AmountSoldUSD, swap.AmountBoughtUSD, volumeUSD = numeric.Zero, numeric.Zero, numeric.Zero
	}
	if err := p.session.Save(swap); err != nil {
		return err
	}

	pool.CumulativeVolume = pool.CumulativeVolume.Add(volume)
	pool.CumulativeVolumeUSD = pool.CumulativeVolumeUSD.Add(volumeUSD)
	if err := p.session.Save(pool); err != nil {
		return err
	}
	if err := p.updateSwapVolume(ctx, pool, swap, volume, volumeUSD); err != nil {
		return err
	}
	if err := p.UpdatePriceFeed(ctx, pool, sold.token, bought.token, amountSold, amountBought, soldID, boughtID, data.Underlying, meta); err != nil {
		return err
	}
	return p.UpdateCandles(ctx, pool, meta, sold.token, amountSold, bought.token, amountBought)
}

// reconstructDx recovers the underlying amount a metapool sold into its
// base pool from the base pool's AddLiquidity a few log indices earlier in
// the same transaction. No match yields zero.
func (p *Processor) reconstructDx(ctx context.Context, pool *model.Pool, underlyingIndex int, meta model.EventMeta) (decimal.Decimal, error) {
	for i := 1; i < p.cfg.LookbackWindow && uint64(i) <= meta.LogIndex; i++ {
		var ev model.LiquidityEvent
		found, err := p.session.Load(ctx, model.KindLiquidityEvent, model.EventID(meta.Tx, meta.LogIndex-uint64(i)), &ev)
		if err != nil {
			return decimal.Zero, err
		}
		if !found {
			continue
		}
		if ev.Pool == pool.BasePool && !ev.Removal && ev.LiquidityProvider == pool.ID && underlyingIndex < len(ev.TokenAmounts) {
			return ev.TokenAmounts[underlyingIndex], nil
		}
		p.logger.Debug("liquidity event does not match swap",
			zap.String("event", ev.ID),
			zap.String("event_pool", ev.Pool),
			zap.Bool("removal", ev.Removal),
			zap.String("provider", ev.LiquidityProvider),
		)
	}
	p.metrics.Reject("dx_reconstruction")
	p.logger.Warn("no base pool deposit matches underlying swap, amount sold is zero",
		zap.String("pool", pool.ID),
		zap.String("tx", meta.Tx),
		zap.Uint64("log_index", meta.LogIndex),
		zap.Error(model.ErrAmbiguousReconstruction),
	)
	return decimal.Zero, nil
}

// UpdatePriceFeed stores the swap-implied price of tokenSold in
// tokenBought. Empty trades and prices above the ceiling are skipped.
func (p *Processor) UpdatePriceFeed(ctx context.Context, pool *model.Pool, tokenSold, tokenBought string, amountSold, amountBought decimal.Decimal, soldID, boughtID int, underlying bool, meta model.EventMeta) error {
	if amountSold.IsZero() || amountBought.IsZero() {
		return nil
	}
	price := numeric.Div(amountBought, amountSold)
	if price.GreaterThan(p.cfg.PriceFeedCeiling) {
		p.metrics.Reject("price_feed")
		p.logger.Warn("price feed above ceiling skipped",
			zap.String("pool", pool.ID),
			zap.String("price", price.String()),
		)
		return nil
	}
	id := model.PriceFeedID(pool.ID, tokenSold, tokenBought)
	var feed model.PriceFeed
	found, err := p.session.Load(ctx, model.KindPriceFeed, id, &feed)
	if err != nil {
		return err
	}
	if !found {
		feed = model.PriceFeed{
			ID:           id,
			Pool:         pool.ID,
			Token0:       tokenSold,
			Token1:       tokenBought,
			FromIndex:    soldID,
			ToIndex:      boughtID,
			IsUnderlying: underlying,
		}
	}
	feed.Price = price
	feed.LastUpdated = meta.Timestamp
	feed.LastBlock = meta.Block
	return p.session.Save(&feed)
}
