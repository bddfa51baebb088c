package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
)

// CatchUp registers every pool a registry or factory already lists at the
// event block. Pools deployed before the contract was announced by the
// address provider would otherwise never be seen. For factories the
// counter is advanced once per listed entry, tracked, unreadable or not.
func (r *Registry) CatchUp(ctx context.Context, addr common.Address, ev model.EventMeta) error {
	block := ev.BlockNumber()
	key := pricing.Hex(addr)

	var (
		reg *model.Registry
		f   *model.Factory
		err error
	)
	isFactory, err := r.session.Exists(ctx, model.KindFactory, key)
	if err != nil {
		return err
	}
	if isFactory {
		if f, err = r.factory(ctx, addr); err != nil {
			return err
		}
	} else if reg, err = r.registry(ctx, addr); err != nil {
		return err
	}

	count, ok := r.poolCount(ctx, addr, block)
	if !ok {
		return nil
	}
	r.logger.Info("catching up pools", zap.String("contract", key), zap.Uint64("pool_count", count), zap.Uint64("block", ev.Block))

	start := uint64(0)
	if f != nil {
		start = f.PoolCount
	}
	for i := start; i < count; i++ {
		// the counter follows the chain's list even past unreadable entries
		if f != nil {
			f.PoolCount++
		}
		res := r.reader.Call(ctx, &r.abis.Registry, addr, "pool_list", block, new(big.Int).SetUint64(i))
		if !res.Ok() {
			r.logger.Error("pool_list reverted, entry skipped", zap.String("contract", key), zap.Uint64("index", i))
			continue
		}
		pool := res.Address(0)
		tracked, err := r.IsTracked(ctx, pool)
		if err != nil {
			return err
		}
		if tracked || pool == (common.Address{}) {
			continue
		}

		switch {
		case reg != nil:
			err = r.addRegistryPool(ctx, reg, addr, pool, ev)
		case f.Version == model.FactoryCrypto:
			lpToken := r.reader.Call(ctx, &r.abis.Registry, addr, "get_token", block, pool).Address(0)
			_, err = r.createCryptoFactoryPool(ctx, pool, lpToken, ev)
		default:
			base, metapool := r.metapoolBase(ctx, pool, block)
			_, err = r.createStableFactoryPool(ctx, addr, pool, metapool, base, ev)
		}
		if err != nil {
			return err
		}
	}
	if f != nil {
		return r.session.Save(f)
	}
	return nil
}

// CatchUpTricrypto registers the pools of a tricrypto factory. Each pool
// is its own LP token.
func (r *Registry) CatchUpTricrypto(ctx context.Context, factory common.Address, ev model.EventMeta) error {
	block := ev.BlockNumber()
	f, err := r.factory(ctx, factory)
	if err != nil {
		return err
	}
	count, ok := r.poolCount(ctx, factory, block)
	if !ok {
		return nil
	}
	for i := f.PoolCount; i < count; i++ {
		f.PoolCount++
		res := r.reader.Call(ctx, &r.abis.Registry, factory, "pool_list", block, new(big.Int).SetUint64(i))
		if !res.Ok() {
			r.logger.Error("pool_list reverted, entry skipped", zap.String("factory", f.ID), zap.Uint64("index", i))
			continue
		}
		pool := res.Address(0)
		tracked, err := r.IsTracked(ctx, pool)
		if err != nil {
			return err
		}
		if tracked || pool == (common.Address{}) {
			continue
		}
		meta := r.meta.Token(ctx, pool)
		if _, err := r.createPool(ctx, poolSpec{
			address:  pool,
			lpToken:  pool,
			name:     meta.Name,
			symbol:   meta.Symbol,
			poolType: model.PoolTypeTricryptoFactory,
			isV2:     true,
		}, ev); err != nil {
			return err
		}
	}
	return r.session.Save(f)
}

func (r *Registry) poolCount(ctx context.Context, addr common.Address, block *big.Int) (uint64, bool) {
	res := r.reader.Call(ctx, &r.abis.Registry, addr, "pool_count", block)
	if !res.Ok() {
		r.logger.Error("pool_count reverted", zap.String("contract", pricing.Hex(addr)))
		return 0, false
	}
	return res.BigInt(0).Uint64(), true
}
