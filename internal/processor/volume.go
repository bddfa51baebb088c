package processor

import (
	"context"

	"github.com/shopspring/decimal"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
)

// VolumePeriods are the swap and liquidity volume intervals.
var VolumePeriods = []uint64{model.Hour, model.Day, model.Week}

func (p *Processor) updateSwapVolume(ctx context.Context, pool *model.Pool, swap *model.SwapEvent, volume, volumeUSD decimal.Decimal) error {
	for _, period := range VolumePeriods {
		id := model.VolumeSnapshotID(pool.ID, period, swap.Timestamp)
		var snap model.SwapVolumeSnapshot
		found, err := p.session.Load(ctx, model.KindSwapVolumeSnapshot, id, &snap)
		if err != nil {
			return err
		}
		if !found {
			snap = model.SwapVolumeSnapshot{
				ID:              id,
				Pool:            pool.ID,
				Period:          period,
				Timestamp:       model.IntervalStart(swap.Timestamp, period),
				AmountSold:      numeric.Zero,
				AmountBought:    numeric.Zero,
				AmountSoldUSD:   numeric.Zero,
				AmountBoughtUSD: numeric.Zero,
				Volume:          numeric.Zero,
				VolumeUSD:       numeric.Zero,
			}
		}
		snap.AmountSold = snap.AmountSold.Add(swap.AmountSold)
		snap.AmountBought = snap.AmountBought.Add(swap.AmountBought)
		snap.AmountSoldUSD = snap.AmountSoldUSD.Add(swap.AmountSoldUSD)
		snap.AmountBoughtUSD = snap.AmountBoughtUSD.Add(swap.AmountBoughtUSD)
		snap.Volume = snap.Volume.Add(volume)
		snap.VolumeUSD = snap.VolumeUSD.Add(volumeUSD)
		snap.Count++
		if err := p.session.Save(&snap); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) updateLiquidityVolume(ctx context.Context, pool *model.Pool, ts uint64, amounts []decimal.Decimal, removal bool, volumeUSD decimal.Decimal) error {
	for _, period := range VolumePeriods {
		id := model.VolumeSnapshotID(pool.ID, period, ts)
		var snap model.LiquidityVolumeSnapshot
		found, err := p.session.Load(ctx, model.KindLiquidityVolumeSnapshot, id, &snap)
		if err != nil {
			return err
		}
		if !found {
			snap = model.LiquidityVolumeSnapshot{
				ID:            id,
				Pool:          pool.ID,
				Period:        period,
				Timestamp:     model.IntervalStart(ts, period),
				AmountAdded:   zeros(len(pool.Coins)),
				AmountRemoved: zeros(len(pool.Coins)),
				VolumeUSD:     numeric.Zero,
			}
		}
		target := snap.AmountAdded
		if removal {
			target = snap.AmountRemoved
			snap.RemoveCount++
		} else {
			snap.AddCount++
		}
		for i := range amounts {
			if i < len(target) {
				target[i] = target[i].Add(amounts[i])
			}
		}
		snap.VolumeUSD = snap.VolumeUSD.Add(volumeUSD)
		if err := p.session.Save(&snap); err != nil {
			return err
		}
	}
	return nil
}

func zeros(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = numeric.Zero
	}
	return out
}
