package registry

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
	"curveVolume/internal/pricing"
)

type poolSpec struct {
	address    common.Address
	lpToken    common.Address
	name       string
	symbol     string
	poolType   model.PoolType
	metapool   bool
	isV2       bool
	isRebasing bool
	basePool   common.Address
}

// HandlePoolAdded registers a pool announced by a tracked registry. Stable
// registry pools are probed for lending and metapool interfaces; crypto
// registry pools are always v2.
func (r *Registry) HandlePoolAdded(ctx context.Context, registry, pool common.Address, ev model.EventMeta) error {
	reg, err := r.registry(ctx, registry)
	if err != nil {
		return err
	}
	return r.addRegistryPool(ctx, reg, registry, pool, ev)
}

func (r *Registry) addRegistryPool(ctx context.Context, reg *model.Registry, registry, pool common.Address, ev model.EventMeta) error {
	tracked, err := r.IsTracked(ctx, pool)
	if err != nil {
		return err
	}
	if tracked {
		r.logger.Debug("pool already tracked", zap.String("pool", pricing.Hex(pool)), zap.String("tx", ev.Tx))
		return nil
	}
	block := ev.BlockNumber()

	lpToken := pool
	if res := r.reader.Call(ctx, &r.abis.Registry, registry, "get_lp_token", block, pool); res.Ok() && res.Address(0) != (common.Address{}) {
		lpToken = res.Address(0)
	}
	lp := r.meta.Token(ctx, lpToken)
	spec := poolSpec{address: pool, lpToken: lpToken, name: lp.Name, symbol: lp.Symbol}

	if reg.Kind == model.RegistryCrypto {
		spec.poolType = model.PoolTypeRegistryV2
		spec.isV2 = true
		_, err := r.createPool(ctx, spec, ev)
		return err
	}

	spec.poolType = model.PoolTypeRegistryV1
	spec.isV2 = r.cfg.EarlyV2Pools[pool]
	if r.isLending(ctx, pool, block) {
		spec.poolType = model.PoolTypeLending
		spec.isV2 = false
		spec.basePool = pool
	} else if base, ok := r.metapoolBase(ctx, pool, block); ok {
		spec.metapool = true
		spec.basePool = base
	}
	_, err = r.createPool(ctx, spec, ev)
	return err
}

func (r *Registry) isLending(ctx context.Context, pool common.Address, block *big.Int) bool {
	if r.cfg.LendingPools[pool] {
		return true
	}
	return r.reader.Call(ctx, &r.abis.Pool, pool, "offpeg_fee_multiplier", block).Ok()
}

// metapoolBase probes base_pool(), then the curated table.
func (r *Registry) metapoolBase(ctx context.Context, pool common.Address, block *big.Int) (common.Address, bool) {
	if base, ok := r.cfg.UnknownMetapools[pool]; ok {
		return base, true
	}
	res := r.reader.Call(ctx, &r.abis.Pool, pool, "base_pool", block)
	if !res.Ok() {
		return common.Address{}, false
	}
	return res.Address(0), true
}

// createPool reads the coin set, classifies the pool and adds it to the
// platform.
func (r *Registry) createPool(ctx context.Context, spec poolSpec, ev model.EventMeta) (*model.Pool, error) {
	key := pricing.Hex(spec.address)
	block := ev.BlockNumber()
	if spec.lpToken == (common.Address{}) {
		spec.lpToken = spec.address
	}

	pool := &model.Pool{
		ID:                  key,
		Address:             key,
		Name:                spec.name,
		Symbol:              spec.symbol,
		LPToken:             pricing.Hex(spec.lpToken),
		IsV2:                spec.isV2,
		Metapool:            spec.metapool,
		IsRebasing:          spec.isRebasing,
		PoolType:            spec.poolType,
		CreationBlock:       ev.Block,
		CreationTimestamp:   ev.Timestamp,
		CreationTx:          ev.Tx,
		CumulativeVolume:    numeric.Zero,
		CumulativeVolumeUSD: numeric.Zero,
		CumulativeFeesUSD:   numeric.Zero,
		VirtualPrice:        numeric.Zero,
		BaseApr:             numeric.Zero,
	}
	if spec.basePool != (common.Address{}) {
		pool.BasePool = pricing.Hex(spec.basePool)
	}

	coins := r.enumerate(ctx, spec.address, "coins", block)
	pool.Coins = make([]string, 0, len(coins))
	pool.CoinDecimals = make([]int, 0, len(coins))
	pool.CoinNames = make([]string, 0, len(coins))
	for _, coin := range coins {
		meta := r.meta.Token(ctx, coin)
		pool.Coins = append(pool.Coins, pricing.Hex(coin))
		pool.CoinDecimals = append(pool.CoinDecimals, meta.Decimals)
		pool.CoinNames = append(pool.CoinNames, meta.Symbol)
	}
	if spec.isV2 {
		pool.AssetType = model.AssetTypeCrypto
	} else {
		pool.AssetType = InferAssetType(pool.Name, pool.Symbol, pool.CoinNames)
	}

	if err := r.session.Save(pool); err != nil {
		return nil, err
	}
	platform, err := r.Platform(ctx)
	if err != nil {
		return nil, err
	}
	platform.PoolAddresses = append(platform.PoolAddresses, key)
	if err := r.session.Save(platform); err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.PoolsTracked.Set(float64(len(platform.PoolAddresses)))
	}

	switch {
	case spec.poolType == model.PoolTypeLending:
		if _, err := r.LendingBasePool(ctx, spec.address, block); err != nil {
			return nil, err
		}
	case spec.metapool && pool.BasePool != "":
		if _, err := r.BasePool(ctx, spec.basePool, block); err != nil {
			return nil, err
		}
	}

	r.logger.Info("pool created",
		zap.String("pool", key),
		zap.String("type", string(pool.PoolType)),
		zap.Int("coins", len(pool.Coins)),
		zap.Bool("metapool", pool.Metapool),
		zap.Bool("v2", pool.IsV2),
		zap.Int("asset_type", int(pool.AssetType)),
	)
	return pool, nil
}

// enumerate calls method(i) until it reverts. Pools whose first call
// reverts are retried with the int128 index encoding.
func (r *Registry) enumerate(ctx context.Context, addr common.Address, method string, block *big.Int) []common.Address {
	for i, contract := range []*abi.ABI{&r.abis.Pool, &r.abis.PoolInt128} {
		var coins []common.Address
		for j := 0; j < r.cfg.MaxCoins; j++ {
			res := r.reader.Call(ctx, contract, addr, method, block, big.NewInt(int64(j)))
			if !res.Ok() {
				break
			}
			coins = append(coins, res.Address(0))
		}
		if len(coins) > 0 {
			return coins
		}
		if i == 0 {
			r.logger.Debug("coin getter reverted, retrying with int128 index",
				zap.String("pool", pricing.Hex(addr)),
				zap.String("method", method),
			)
		}
	}
	r.logger.Warn("no coins found", zap.String("pool", pricing.Hex(addr)), zap.String("method", method))
	return nil
}

// BasePool returns the cached coin set of a metapool's base pool, reading
// it on first use. Nothing is stored until a read succeeds.
func (r *Registry) BasePool(ctx context.Context, addr common.Address, block *big.Int) (*model.BasePool, error) {
	return r.basePool(ctx, addr, pricing.Hex(addr), "coins", block)
}

// LendingBasePool is BasePool over a lending pool's underlying coins.
func (r *Registry) LendingBasePool(ctx context.Context, addr common.Address, block *big.Int) (*model.BasePool, error) {
	return r.basePool(ctx, addr, model.UnderlyingBasePoolID(pricing.Hex(addr)), "underlying_coins", block)
}

func (r *Registry) basePool(ctx context.Context, addr common.Address, key, method string, block *big.Int) (*model.BasePool, error) {
	var base model.BasePool
	found, err := r.session.Load(ctx, model.KindBasePool, key, &base)
	if err != nil {
		return nil, err
	}
	if found {
		return &base, nil
	}

	base = model.BasePool{ID: key}
	for _, coin := range r.enumerate(ctx, addr, method, block) {
		base.Coins = append(base.Coins, pricing.Hex(coin))
		base.CoinDecimals = append(base.CoinDecimals, r.meta.Decimals(ctx, coin))
	}
	if len(base.Coins) == 0 {
		return &base, nil
	}
	r.logger.Info("base pool cached", zap.String("pool", pricing.Hex(addr)), zap.String("method", method))
	if err := r.session.Save(&base); err != nil {
		return nil, err
	}
	return &base, nil
}

var stableMarkers = []string{"USD", "DAI", "MIM", "TETHER"}

func assetTypeOf(desc string) (model.AssetType, bool) {
	for _, m := range stableMarkers {
		if strings.Contains(desc, m) {
			return model.AssetTypeUSD, true
		}
	}
	switch {
	case strings.Contains(desc, "BTC"):
		return model.AssetTypeBTC, true
	case strings.Contains(desc, "ETH"):
		return model.AssetTypeETH, true
	}
	return model.AssetTypeOther, false
}

// InferAssetType guesses a stable pool's peg from its name and symbol,
// then from its coin symbols in order.
func InferAssetType(name, symbol string, coinNames []string) model.AssetType {
	if t, ok := assetTypeOf(strings.ToUpper(name) + "-" + strings.ToUpper(symbol)); ok {
		return t
	}
	for _, coin := range coinNames {
		if t, ok := assetTypeOf(strings.ToUpper(coin)); ok {
			return t
		}
	}
	return model.AssetTypeOther
}
