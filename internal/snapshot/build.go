package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
)

func (e *Engine) previous(ctx context.Context, pool *model.Pool, ts uint64) (*model.DailyPoolSnapshot, bool, error) {
	var prev model.DailyPoolSnapshot
	found, err := e.session.Load(ctx, model.KindDailyPoolSnapshot, model.DailyPoolSnapshotID(pool.ID, ts-model.Day), &prev)
	if err != nil || !found {
		return nil, false, err
	}
	return &prev, true, nil
}

func (e *Engine) build(ctx context.Context, pool *model.Pool, reads poolReads, ts uint64, block *big.Int) (*model.DailyPoolSnapshot, error) {
	snap := &model.DailyPoolSnapshot{
		ID:                  model.DailyPoolSnapshotID(pool.ID, ts),
		Pool:                pool.ID,
		Timestamp:           model.IntervalStart(ts, model.Day),
		VirtualPrice:        numeric.FromBig(reads.virtualPrice),
		LpPriceUSD:          numeric.Zero,
		TVL:                 numeric.Zero,
		A:                   numeric.FromBig(reads.a),
		Fee:                 numeric.Zero,
		AdminFee:            numeric.Zero,
		OffPegFeeMultiplier: numeric.Zero,
		XcpProfit:           numeric.FromBig(reads.xcpProfit),
		XcpProfitA:          numeric.FromBig(reads.xcpProfitA),
		BaseApr:             numeric.Zero,
		RebaseApr:           numeric.Zero,
		AdminFeesUSD:        numeric.Zero,
		LpFeesUSD:           numeric.Zero,
		TotalDailyFeesUSD:   numeric.Zero,
	}
	if e.deprecated(pool, ts) {
		return snap, nil
	}

	// reserves
	var reserves, normalized, reservesUSD []decimal.Decimal
	tvl := numeric.Zero
	for i, coin := range pool.Coins {
		balance := new(big.Int)
		if i < len(reads.balances) && reads.balances[i] != nil {
			balance = reads.balances[i]
		}
		decimals := 18
		if i < len(pool.CoinDecimals) {
			decimals = pool.CoinDecimals[i]
		}
		price, err := e.valuer.TokenPrice(ctx, pool, coin, ts, block)
		if err != nil {
			return nil, err
		}
		units := numeric.Scaled(balance, decimals)
		reserveUSD := units.Mul(price)
		norm := units
		if e.cfg.CTokens[common.HexToAddress(coin)] {
			norm = reserveUSD
		}
		reserves = append(reserves, numeric.FromBig(balance))
		normalized = append(normalized, numeric.Truncate(norm.Mul(numeric.E18)))
		reservesUSD = append(reservesUSD, reserveUSD)
		tvl = tvl.Add(reserveUSD)
	}
	snap.Reserves = reserves
	snap.NormalizedReserves = normalized
	snap.ReservesUSD = reservesUSD
	snap.TVL = tvl
	snap.LpPriceUSD = numeric.Div(tvl, numeric.Scaled(reads.supply, 18))

	snap.Fee = numeric.Div(numeric.FromBig(reads.fee), numeric.FeePrecision)
	snap.AdminFee = numeric.Div(numeric.FromBig(reads.adminFee), numeric.FeePrecision)
	snap.OffPegFeeMultiplier = numeric.Div(numeric.FromBig(reads.offpeg), numeric.FeePrecision)
	if pool.IsV2 {
		snap.V2Params = v2Params(reads.v2)
	}

	prev, hasPrev, err := e.previous(ctx, pool, ts)
	if err != nil {
		return nil, err
	}

	baseApr := numeric.Zero
	switch {
	case !hasPrev:
	case pool.IsV2:
		baseApr = xcpApr(snap.XcpProfit, snap.XcpProfitA, prev.XcpProfit, prev.XcpProfitA)
	default:
		baseApr = numeric.GrowthRate(snap.VirtualPrice, prev.VirtualPrice)
	}
	if baseApr.GreaterThan(e.cfg.AprCeiling) {
		fallback := numeric.Zero
		if hasPrev {
			fallback = prev.BaseApr
		}
		e.logger.Warn("base apr above ceiling replaced",
			zap.String("pool", pool.ID),
			zap.String("apr", baseApr.String()),
			zap.String("fallback", fallback.String()),
		)
		e.metrics.Reject("apr")
		baseApr = fallback
	}
	snap.BaseApr = baseApr

	deductible, err := e.deducer.DeductibleAPR(ctx, pool, reservesUSD, ts, block)
	if err != nil {
		return nil, err
	}
	snap.RebaseApr = deductible
	lpApr := decimal.Max(baseApr.Sub(deductible), numeric.Zero)

	prevTvl := numeric.Zero
	if hasPrev {
		prevTvl = prev.TVL
	}
	switch e.cfg.FeeSplits[common.HexToAddress(pool.Address)] {
	case FeeSplitFixedHalf:
		total := lpApr.Mul(prevTvl)
		half := numeric.Div(total, numeric.Two)
		snap.TotalDailyFeesUSD, snap.LpFeesUSD, snap.AdminFeesUSD = total, half, half
	default:
		lp := lpApr.Mul(prevTvl)
		total := numeric.Zero
		if !snap.AdminFee.Equal(numeric.One) {
			total = numeric.Div(lp, numeric.One.Sub(snap.AdminFee))
		}
		snap.TotalDailyFeesUSD, snap.LpFeesUSD, snap.AdminFeesUSD = total, lp, total.Sub(lp)
	}
	return snap, nil
}

// xcpApr compares the blended profit counters of two days. A zero previous
// profit means the pool was just born and yields zero.
func xcpApr(profit, profitA, prevProfit, prevProfitA decimal.Decimal) decimal.Decimal {
	if prevProfit.IsZero() {
		return numeric.Zero
	}
	return numeric.GrowthRate(blend(profit, profitA), blend(prevProfit, prevProfitA))
}

func blend(profit, profitA decimal.Decimal) decimal.Decimal {
	return profit.Div(numeric.Two).Add(profitA.Div(numeric.Two)).Add(numeric.E18).Div(numeric.Two)
}

func v2Params(values []*big.Int) *model.V2PoolParams {
	at := func(i int) decimal.Decimal {
		if i < len(values) {
			return numeric.FromBig(values[i])
		}
		return numeric.Zero
	}
	return &model.V2PoolParams{
		Gamma:               at(0),
		MidFee:              at(1),
		OutFee:              at(2),
		AllowedExtraProfit:  at(3),
		FeeGamma:            at(4),
		AdjustmentStep:      at(5),
		MaHalfTime:          at(6),
		PriceScale:          at(7),
		PriceOracle:         at(8),
		LastPrices:          at(9),
		LastPricesTimestamp: at(10),
	}
}
