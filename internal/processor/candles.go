package processor

import (
	"context"

	"github.com/shopspring/decimal"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
)

// CandlePeriods are the OHLC bucket lengths in seconds.
var CandlePeriods = []uint64{15 * 60, model.Hour, model.Day, model.Week}

// UpdateCandles folds a trade into every candle period. The pair is
// ordered so that the same two tokens always share a candle, and the price
// is token0 per token1.
func (p *Processor) UpdateCandles(ctx context.Context, pool *model.Pool, meta model.EventMeta, tokenA string, amountA decimal.Decimal, tokenB string, amountB decimal.Decimal) error {
	if amountA.IsZero() || amountB.IsZero() {
		return nil
	}
	token0, amount0, token1, amount1 := tokenA, amountA, tokenB, amountB
	if token1 < token0 {
		token0, amount0, token1, amount1 = token1, amount1, token0, amount0
	}
	price := numeric.Div(amount0, amount1)

	for _, period := range CandlePeriods {
		id := model.CandleID(pool.ID, token0, token1, meta.Timestamp, period)
		var c model.Candle
		found, err := p.session.Load(ctx, model.KindCandle, id, &c)
		if err != nil {
			return err
		}
		if !found {
			c = model.Candle{
				ID:                id,
				Pool:              pool.ID,
				Timestamp:         model.IntervalStart(meta.Timestamp, period),
				Period:            period,
				Token0:            token0,
				Token1:            token1,
				Open:              price,
				High:              price,
				Low:               price,
				Token0TotalAmount: numeric.Zero,
				Token1TotalAmount: numeric.Zero,
			}
		}
		c.High = decimal.Max(c.High, price)
		c.Low = decimal.Min(c.Low, price)
		c.Close = price
		c.Token0TotalAmount = c.Token0TotalAmount.Add(amount0)
		c.Token1TotalAmount = c.Token1TotalAmount.Add(amount1)
		c.Txs++
		c.LastBlock = meta.Block
		if err := p.session.Save(&c); err != nil {
			return err
		}
	}
	return nil
}
