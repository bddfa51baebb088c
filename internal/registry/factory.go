package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
)

// Factory deployment events do not carry the pool address. The address is
// read from pool_list at the factory's running counter, so the counter
// must advance exactly once per pool the factory lists.

// HandleFactoryPoolDeployed registers a stable factory pool. basePool is
// zero for plain pools.
func (r *Registry) HandleFactoryPoolDeployed(ctx context.Context, factory common.Address, metapool bool, basePool common.Address, ev model.EventMeta) error {
	f, err := r.factory(ctx, factory)
	if err != nil {
		return err
	}
	pool, ok, err := r.nextPool(ctx, factory, f, ev.BlockNumber())
	if err != nil || !ok {
		return err
	}
	if _, err := r.createStableFactoryPool(ctx, factory, pool, metapool, basePool, ev); err != nil {
		return err
	}
	return r.session.Save(f)
}

// HandleCryptoPoolDeployed registers a crypto factory pool with its
// separate LP token.
func (r *Registry) HandleCryptoPoolDeployed(ctx context.Context, factory, lpToken common.Address, ev model.EventMeta) error {
	f, err := r.factory(ctx, factory)
	if err != nil {
		return err
	}
	pool, ok, err := r.nextPool(ctx, factory, f, ev.BlockNumber())
	if err != nil || !ok {
		return err
	}
	if _, err := r.createCryptoFactoryPool(ctx, pool, lpToken, ev); err != nil {
		return err
	}
	return r.session.Save(f)
}

// HandleTricryptoPoolDeployed registers a tricrypto factory pool. The
// event names the pool, which is its own LP token. The counter advances
// even when a registry already tracks the pool.
func (r *Registry) HandleTricryptoPoolDeployed(ctx context.Context, factory common.Address, data model.TricryptoPoolDeployedEventData, ev model.EventMeta) error {
	f, err := r.factory(ctx, factory)
	if err != nil {
		return err
	}
	pool := common.HexToAddress(data.Pool)
	f.PoolCount++
	tracked, err := r.IsTracked(ctx, pool)
	if err != nil {
		return err
	}
	if tracked {
		return r.session.Save(f)
	}
	spec := poolSpec{
		address:  pool,
		lpToken:  pool,
		name:     data.Name,
		symbol:   data.Symbol,
		poolType: model.PoolTypeTricryptoFactory,
		isV2:     true,
	}
	if spec.name == "" || spec.symbol == "" {
		meta := r.meta.Token(ctx, pool)
		spec.name, spec.symbol = meta.Name, meta.Symbol
	}
	if _, err := r.createPool(ctx, spec, ev); err != nil {
		return err
	}
	return r.session.Save(f)
}

// AddExistingPools advances a factory's counter for pools appended to its
// list without deployment events. The list ends at the first zero address.
func (r *Registry) AddExistingPools(ctx context.Context, factory common.Address, pools []string, ev model.EventMeta) error {
	f, err := r.factory(ctx, factory)
	if err != nil {
		return err
	}
	added := 0
	for _, p := range pools {
		if common.HexToAddress(p) == (common.Address{}) {
			break
		}
		f.PoolCount++
		added++
	}
	r.logger.Info("existing pools added to factory",
		zap.String("factory", f.ID),
		zap.Int("pools", added),
		zap.Uint64("pool_count", f.PoolCount),
		zap.String("tx", ev.Tx),
	)
	return r.session.Save(f)
}

// nextPool reads pool_list at the factory counter and advances it. Entries
// already tracked (registered by catch-up or a registry) are skipped so
// the counter converges on the chain's list. ok is false when the list
// has no untracked entry at the counter.
func (r *Registry) nextPool(ctx context.Context, factory common.Address, f *model.Factory, block *big.Int) (common.Address, bool, error) {
	for {
		res := r.reader.Call(ctx, &r.abis.Registry, factory, "pool_list", block, new(big.Int).SetUint64(f.PoolCount))
		if !res.Ok() || res.Address(0) == (common.Address{}) {
			r.logger.Warn("factory pool_list has no entry at counter",
				zap.String("factory", f.ID),
				zap.Uint64("pool_count", f.PoolCount),
			)
			return common.Address{}, false, nil
		}
		pool := res.Address(0)
		f.PoolCount++
		tracked, err := r.IsTracked(ctx, pool)
		if err != nil {
			return common.Address{}, false, err
		}
		if !tracked {
			return pool, true, nil
		}
		r.logger.Debug("factory counter skipped tracked pool",
			zap.String("factory", f.ID),
			zap.String("pool", pricing.Hex(pool)),
		)
	}
}

func (r *Registry) createStableFactoryPool(ctx context.Context, factory, pool common.Address, metapool bool, basePool common.Address, ev model.EventMeta) (*model.Pool, error) {
	block := ev.BlockNumber()
	spec := poolSpec{
		address:  pool,
		lpToken:  pool,
		poolType: model.PoolTypeStableFactory,
		metapool: metapool,
		basePool: basePool,
	}
	if factory == r.cfg.MetapoolFactory {
		spec.poolType = model.PoolTypeMetapoolFactory
	}
	if res := r.reader.Call(ctx, &r.abis.Registry, factory, "get_implementation_address", block, pool); res.Ok() {
		spec.isRebasing = r.cfg.RebasingImplementations[res.Address(0)]
	}
	spec.name = r.reader.Call(ctx, &r.abis.Pool, pool, "name", block).String(0)
	spec.symbol = r.reader.Call(ctx, &r.abis.Pool, pool, "symbol", block).String(0)
	return r.createPool(ctx, spec, ev)
}

func (r *Registry) createCryptoFactoryPool(ctx context.Context, pool, lpToken common.Address, ev model.EventMeta) (*model.Pool, error) {
	if lpToken == (common.Address{}) {
		lpToken = pool
	}
	lp := r.meta.Token(ctx, lpToken)
	return r.createPool(ctx, poolSpec{
		address:  pool,
		lpToken:  lpToken,
		name:     lp.Name,
		symbol:   lp.Symbol,
		poolType: model.PoolTypeCryptoFactory,
		isV2:     true,
	}, ev)
}
