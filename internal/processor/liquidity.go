package processor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
)

// HandleLiquidity records a deposit or withdrawal and its interval volume.
// Amounts are in pool coin order.
func (p *Processor) HandleLiquidity(ctx context.Context, addr common.Address, data model.LiquidityEventData, meta model.EventMeta) error {
	pool, err := p.trackedPool(ctx, addr)
	if err != nil {
		return err
	}
	if err := p.ensureNew(ctx, model.KindLiquidityEvent, meta); err != nil {
		return err
	}
	if err := p.engine.TakeSnapshots(ctx, meta.Timestamp, meta.Block); err != nil {
		return err
	}

	raw := make([]decimal.Decimal, len(data.TokenAmounts))
	for i, a := range data.TokenAmounts {
		raw[i] = numeric.ParseDecimal(a)
	}
	if len(raw) != len(pool.Coins) {
		p.logger.Warn("liquidity amounts do not match pool coins",
			zap.String("pool", pool.ID),
			zap.Int("amounts", len(raw)),
			zap.Int("coins", len(pool.Coins)),
		)
	}

	block := meta.BlockNumber()
	units := make([]decimal.Decimal, len(pool.Coins))
	volumeUSD := numeric.Zero
	for i := range pool.Coins {
		units[i] = numeric.Zero
		if i >= len(raw) {
			continue
		}
		decimals := 18
		if i < len(pool.CoinDecimals) {
			decimals = pool.CoinDecimals[i]
		}
		units[i] = numeric.Unscale(raw[i], decimals)
		if !raw[i].IsPositive() {
			continue
		}
		price, err := p.liquidityPrice(ctx, pool, pool.Coins[i], meta.Timestamp, block)
		if err != nil {
			return err
		}
		volumeUSD = volumeUSD.Add(units[i].Mul(price))
	}

	if err := p.session.Save(&model.LiquidityEvent{
		ID:                model.EventID(meta.Tx, meta.LogIndex),
		Pool:              pool.ID,
		Block:             meta.Block,
		Timestamp:         meta.Timestamp,
		Tx:                meta.Tx,
		LogIndex:          meta.LogIndex,
		LiquidityProvider: model.NormalizeAddress(data.Provider),
		TokenAmounts:      raw,
		Removal:           data.Removal,
		VolumeUSD:         volumeUSD,
	}); err != nil {
		return err
	}
	return p.updateLiquidityVolume(ctx, pool, meta.Timestamp, units, data.Removal, volumeUSD)
}

// liquidityPrice values a deposited coin: crypto pools per token, cTokens
// through the market, stable pools at their peg.
func (p *Processor) liquidityPrice(ctx context.Context, pool *model.Pool, coin string, ts uint64, block *big.Int) (decimal.Decimal, error) {
	switch {
	case pool.IsV2:
		return p.valuer.CryptoTokenPrice(ctx, pool, coin, ts, block)
	case p.cfg.CTokens[common.HexToAddress(coin)]:
		return p.valuer.Snapshots().Token(ctx, common.HexToAddress(coin), ts, block)
	}
	return p.valuer.AssetTypePrice(ctx, pool, ts, block)
}

// handleRemoveOne spreads a single-coin withdrawal over the pool's coin
// list. Events without a coin index cannot be attributed and are dropped.
func (p *Processor) handleRemoveOne(ctx context.Context, addr common.Address, data model.RemoveLiquidityOneEventData, meta model.EventMeta) error {
	if data.CoinIndex < 0 {
		return fmt.Errorf("%w: remove_liquidity_one_coin without coin index", errIgnored)
	}
	pool, err := p.trackedPool(ctx, addr)
	if err != nil {
		return err
	}
	if data.CoinIndex >= len(pool.Coins) {
		return fmt.Errorf("pool %s coin index %d: %w", pool.ID, data.CoinIndex, model.ErrMissingEntity)
	}
	amounts := make([]string, len(pool.Coins))
	for i := range amounts {
		amounts[i] = "0"
	}
	amounts[data.CoinIndex] = data.CoinAmount
	return p.HandleLiquidity(ctx, addr, model.LiquidityEventData{
		Provider:     data.Provider,
		TokenAmounts: amounts,
		TokenSupply:  data.TokenAmount,
		Removal:      true,
	}, meta)
}
