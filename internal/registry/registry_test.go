package registry_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveVolume/internal/chain"
	"curveVolume/internal/chain/chaintest"
	"curveVolume/internal/dex"
	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
	"curveVolume/internal/registry"
	"curveVolume/internal/storage"
	"curveVolume/internal/storage/memory"
)

var (
	mainRegistry = common.HexToAddress("0x90e00ace148ca3b23ac1bc8c240c2a7dd9c2d7f5")
	stableFac    = common.HexToAddress("0xb9fc157394af804a3578134a6585c0dc9cc990d4")
	cryptoFac    = common.HexToAddress("0xf18056bbd320e96a48e3fbf8bc061322531aac99")
	tricryptoFac = common.HexToAddress("0x0c0e5f2ff0ff18a3be9b835635039256dc4b4963")

	usdc = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	dai  = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	usdt = common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")
	weth = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	mim  = common.HexToAddress("0x99d8a9c45b2eca8864373a26d1459e3dff1e17f3")
	lp3  = common.HexToAddress("0x6c3f90f043a72fa612cbac8115ee7e52bde6e490")

	pool3     = common.HexToAddress("0xbebc44782c7db0a1a60cb6fe97d0b483032ff1c7")
	mimPool   = common.HexToAddress("0x5a6a4d54456819380173272a5e8e9b9904bdf41b")
	plainPool = common.HexToAddress("0x1000000000000000000000000000000000000001")
	oldPool   = common.HexToAddress("0x1000000000000000000000000000000000000002")
	aavePool  = common.HexToAddress("0xdebf20617708857ebe4f679508e7b7863a8a8eee")
	cryptoP   = common.HexToAddress("0x1000000000000000000000000000000000000003")
	cryptoLP  = common.HexToAddress("0x1000000000000000000000000000000000000004")
	triPool   = common.HexToAddress("0x1000000000000000000000000000000000000005")
)

var ev = model.EventMeta{Block: 15_000_000, Timestamp: 1_700_000_000, Tx: "0xabc"}

type fixture struct {
	fake    *chaintest.Fake
	abis    *dex.ABIs
	store   *memory.Store
	session *storage.Session
	reg     *registry.Registry
}

func newFixture(t *testing.T, cfg registry.Config) *fixture {
	t.Helper()
	fake := chaintest.New(common.Address{})
	reader := chain.NewReader(fake, nil, nil)
	meta, err := dex.NewMetadata(reader, 64, nil)
	require.NoError(t, err)
	store := memory.NewStore()
	session := storage.NewSession(store)
	reg, err := registry.New(cfg, reader, meta, session, nil, nil)
	require.NoError(t, err)
	f := &fixture{fake: fake, abis: dex.MustLoadABIs(), store: store, session: session, reg: reg}
	f.token(usdc, 6, "USDC")
	f.token(dai, 18, "DAI")
	f.token(usdt, 6, "USDT")
	f.token(weth, 18, "WETH")
	f.token(mim, 18, "MIM")
	f.token(lp3, 18, "3Crv")
	return f
}

func (f *fixture) token(addr common.Address, decimals int, symbol string) {
	f.fake.Stub(&f.abis.ERC20, addr, "decimals").Returns(uint8(decimals))
	f.fake.Stub(&f.abis.ERC20, addr, "symbol").Returns(symbol)
	f.fake.Stub(&f.abis.ERC20, addr, "name").Returns(symbol)
}

func (f *fixture) coins(pool common.Address, int128 bool, method string, coins ...common.Address) {
	contract := &f.abis.Pool
	if int128 {
		contract = &f.abis.PoolInt128
	}
	for i, c := range coins {
		f.fake.Stub(contract, pool, method, big.NewInt(int64(i))).Returns(c)
	}
}

func (f *fixture) list(contract common.Address, pools ...common.Address) {
	f.fake.Stub(&f.abis.Registry, contract, "pool_count").Returns(big.NewInt(int64(len(pools))))
	for i, p := range pools {
		f.fake.Stub(&f.abis.Registry, contract, "pool_list", big.NewInt(int64(i))).Returns(p)
	}
}

func (f *fixture) named(pool common.Address, name, symbol string) {
	f.fake.Stub(&f.abis.Pool, pool, "name").Returns(name)
	f.fake.Stub(&f.abis.Pool, pool, "symbol").Returns(symbol)
}

func (f *fixture) pool(t *testing.T, addr common.Address) *model.Pool {
	t.Helper()
	p, found, err := f.reg.Pool(context.Background(), pricing.Hex(addr))
	require.NoError(t, err)
	require.True(t, found, "pool %s not tracked", addr.Hex())
	assert.Len(t, p.CoinDecimals, len(p.Coins))
	assert.Len(t, p.CoinNames, len(p.Coins))
	return p
}

func (f *fixture) factoryCount(t *testing.T, addr common.Address) uint64 {
	t.Helper()
	fac, err := f.reg.Factory(context.Background(), addr)
	require.NoError(t, err)
	return fac.PoolCount
}

func TestInferAssetType(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		coins  []string
		want   model.AssetType
	}{
		{"Curve.fi DAI/USDC/USDT", "3Crv", nil, model.AssetTypeUSD},
		{"Curve.fi renBTC/wBTC", "crvRenWBTC", nil, model.AssetTypeBTC},
		{"Curve.fi ETH/stETH", "steCRV", nil, model.AssetTypeETH},
		{"Curve.fi Factory Plain Pool: eur", "eurCRV", []string{"EURS", "sEUR"}, model.AssetTypeOther},
		{"Factory pool", "f", []string{"agEUR", "DAI"}, model.AssetTypeUSD},
		{"Factory pool", "f", []string{"WBTC", "sBTC"}, model.AssetTypeBTC},
		{"tether pool", "x", nil, model.AssetTypeUSD},
		// stable markers win over BTC in the same description
		{"BTC/USD", "x", nil, model.AssetTypeUSD},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, registry.InferAssetType(tt.name, tt.symbol, tt.coins))
		})
	}
}

func TestCatchUpRegistersFactoryPoolsInLockStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})

	f.coins(plainPool, false, "coins", usdc, dai)
	f.named(plainPool, "Factory Plain Pool: usd", "usdf")
	f.coins(mimPool, false, "coins", mim, lp3)
	f.named(mimPool, "Factory USD Metapool: MIM", "MIM3CRV-f")
	f.fake.Stub(&f.abis.Pool, mimPool, "base_pool").Returns(pool3)
	f.coins(pool3, false, "coins", dai, usdc, usdt)
	f.list(stableFac, plainPool, mimPool)

	require.NoError(t, f.reg.AddAddress(ctx, registry.IDStableFactory, stableFac, ev))
	assert.Equal(t, uint64(2), f.factoryCount(t, stableFac))

	plain := f.pool(t, plainPool)
	assert.Equal(t, model.PoolTypeStableFactory, plain.PoolType)
	assert.False(t, plain.Metapool)
	assert.Equal(t, []int{6, 18}, plain.CoinDecimals)
	assert.Equal(t, []string{"USDC", "DAI"}, plain.CoinNames)
	assert.Equal(t, model.AssetTypeUSD, plain.AssetType)
	assert.Equal(t, plain.Address, plain.LPToken)

	meta := f.pool(t, mimPool)
	assert.True(t, meta.Metapool)
	assert.Equal(t, pricing.Hex(pool3), meta.BasePool)

	var base model.BasePool
	found, err := f.session.Load(ctx, model.KindBasePool, pricing.Hex(pool3), &base)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{pricing.Hex(dai), pricing.Hex(usdc), pricing.Hex(usdt)}, base.Coins)
	assert.Equal(t, []int{18, 6, 6}, base.CoinDecimals)

	// the next deployment is read at the counter
	newPool := common.HexToAddress("0x1000000000000000000000000000000000000009")
	f.fake.Stub(&f.abis.Registry, stableFac, "pool_list", big.NewInt(2)).Returns(newPool)
	f.coins(newPool, false, "coins", usdt, dai)
	require.NoError(t, f.reg.HandleFactoryPoolDeployed(ctx, stableFac, false, common.Address{}, ev))
	assert.Equal(t, uint64(3), f.factoryCount(t, stableFac))
	f.pool(t, newPool)

	platform, err := f.reg.Platform(ctx)
	require.NoError(t, err)
	assert.Len(t, platform.PoolAddresses, 3)
}

func TestCatchUpIsNotRepeated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(plainPool, false, "coins", usdc, dai)
	f.list(stableFac, plainPool)

	require.NoError(t, f.reg.AddAddress(ctx, registry.IDStableFactory, stableFac, ev))
	require.NoError(t, f.reg.AddAddress(ctx, registry.IDStableFactory, stableFac, ev))
	assert.Equal(t, uint64(1), f.factoryCount(t, stableFac))

	platform, err := f.reg.Platform(ctx)
	require.NoError(t, err)
	assert.Len(t, platform.PoolAddresses, 1)
}

func TestInt128CoinFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(oldPool, true, "coins", dai, usdc)
	f.token(oldPool, 18, "cDAI+cUSDC")
	require.NoError(t, f.session.Save(&model.Registry{ID: pricing.Hex(mainRegistry), Kind: model.RegistryStable}))

	require.NoError(t, f.reg.HandlePoolAdded(ctx, mainRegistry, oldPool, ev))
	p := f.pool(t, oldPool)
	assert.Equal(t, []string{pricing.Hex(dai), pricing.Hex(usdc)}, p.Coins)
	assert.Equal(t, model.PoolTypeRegistryV1, p.PoolType)
	assert.Equal(t, model.AssetTypeUSD, p.AssetType)
}

func TestRegistryLendingPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	aDai := common.HexToAddress("0x028171bca77440897b824ca71d1c56cac55b68a3")
	aUsdc := common.HexToAddress("0xbcca60bb61934080951369a648fb03df4f96263c")
	aLP := common.HexToAddress("0xfd2a8fa60abd58efe3eee34dd494cd491dc14900")
	f.token(aLP, 18, "a3CRV")
	f.coins(aavePool, false, "coins", aDai, aUsdc)
	f.coins(aavePool, false, "underlying_coins", dai, usdc)
	f.fake.Stub(&f.abis.Pool, aavePool, "offpeg_fee_multiplier").Returns(big.NewInt(20000000000))
	f.fake.Stub(&f.abis.Registry, mainRegistry, "get_lp_token", aavePool).Returns(aLP)
	require.NoError(t, f.session.Save(&model.Registry{ID: pricing.Hex(mainRegistry), Kind: model.RegistryStable}))

	require.NoError(t, f.reg.HandlePoolAdded(ctx, mainRegistry, aavePool, ev))
	p := f.pool(t, aavePool)
	assert.Equal(t, model.PoolTypeLending, p.PoolType)
	assert.Equal(t, pricing.Hex(aavePool), p.BasePool)
	assert.Equal(t, pricing.Hex(aLP), p.LPToken)
	assert.Equal(t, "a3CRV", p.Symbol)

	base, err := f.reg.LendingBasePool(ctx, aavePool, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{pricing.Hex(dai), pricing.Hex(usdc)}, base.Coins)

	// the plain coin set is cached separately from the underlying one
	plain, err := f.reg.BasePool(ctx, aavePool, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{pricing.Hex(aDai), pricing.Hex(aUsdc)}, plain.Coins)
	base, err = f.reg.LendingBasePool(ctx, aavePool, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{pricing.Hex(dai), pricing.Hex(usdc)}, base.Coins)
}

func TestUnknownMetapoolTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{
		UnknownMetapools: map[common.Address]common.Address{mimPool: pool3},
	})
	f.coins(mimPool, false, "coins", mim, lp3)
	f.coins(pool3, false, "coins", dai, usdc, usdt)
	f.token(mimPool, 18, "MIM3CRV")
	require.NoError(t, f.session.Save(&model.Registry{ID: pricing.Hex(mainRegistry), Kind: model.RegistryStable}))

	require.NoError(t, f.reg.HandlePoolAdded(ctx, mainRegistry, mimPool, ev))
	p := f.pool(t, mimPool)
	assert.True(t, p.Metapool)
	assert.Equal(t, pricing.Hex(pool3), p.BasePool)
}

func TestCryptoFactoryCatchUpUsesToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(cryptoP, false, "coins", weth, usdt)
	f.token(cryptoLP, 18, "crvETHUSDT")
	f.list(cryptoFac, cryptoP)
	f.fake.Stub(&f.abis.Registry, cryptoFac, "get_token", cryptoP).Returns(cryptoLP)

	require.NoError(t, f.reg.AddAddress(ctx, registry.IDCryptoFactory, cryptoFac, ev))
	p := f.pool(t, cryptoP)
	assert.True(t, p.IsV2)
	assert.Equal(t, model.PoolTypeCryptoFactory, p.PoolType)
	assert.Equal(t, model.AssetTypeCrypto, p.AssetType)
	assert.Equal(t, pricing.Hex(cryptoLP), p.LPToken)
	assert.Equal(t, "crvETHUSDT", p.Symbol)
}

func TestTricryptoCatchUpAndDeploy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(triPool, false, "coins", usdt, weth)
	f.token(triPool, 18, "TricryptoUSDT")
	f.list(tricryptoFac, triPool)

	require.NoError(t, f.reg.AddAddress(ctx, 8, tricryptoFac, ev))
	p := f.pool(t, triPool)
	assert.Equal(t, model.PoolTypeTricryptoFactory, p.PoolType)
	assert.Equal(t, p.Address, p.LPToken)
	assert.Equal(t, uint64(1), f.factoryCount(t, tricryptoFac))

	// a pool a registry already tracks still takes a factory slot
	listed := common.HexToAddress("0x1000000000000000000000000000000000000006")
	f.coins(listed, false, "coins", usdc, weth)
	f.token(listed, 18, "TricryptoUSDC")
	require.NoError(t, f.session.Save(&model.Registry{ID: pricing.Hex(mainRegistry), Kind: model.RegistryStable}))
	require.NoError(t, f.reg.HandlePoolAdded(ctx, mainRegistry, listed, ev))
	require.NoError(t, f.reg.HandleTricryptoPoolDeployed(ctx, tricryptoFac,
		model.TricryptoPoolDeployedEventData{Pool: pricing.Hex(listed)}, ev))
	assert.Equal(t, uint64(2), f.factoryCount(t, tricryptoFac))
	assert.Equal(t, model.PoolTypeRegistryV1, f.pool(t, listed).PoolType)
}

func TestCatchUpCountsRevertedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(oldPool, false, "coins", usdc, dai)
	// pool_list(1) has no fixture and reverts
	f.fake.Stub(&f.abis.Registry, stableFac, "pool_count").Returns(big.NewInt(2))
	f.fake.Stub(&f.abis.Registry, stableFac, "pool_list", big.NewInt(0)).Returns(oldPool)

	require.NoError(t, f.reg.AddAddress(ctx, registry.IDStableFactory, stableFac, ev))
	assert.Equal(t, uint64(2), f.factoryCount(t, stableFac))
	f.pool(t, oldPool)

	f.fake.Stub(&f.abis.Registry, stableFac, "pool_list", big.NewInt(2)).Returns(plainPool)
	f.coins(plainPool, false, "coins", usdt, dai)
	require.NoError(t, f.reg.HandleFactoryPoolDeployed(ctx, stableFac, false, common.Address{}, ev))
	assert.Equal(t, uint64(3), f.factoryCount(t, stableFac))
	f.pool(t, plainPool)
}

func TestTricryptoCatchUpCountsRevertedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(triPool, false, "coins", usdt, weth)
	f.token(triPool, 18, "TricryptoUSDT")
	f.fake.Stub(&f.abis.Registry, tricryptoFac, "pool_count").Returns(big.NewInt(2))
	f.fake.Stub(&f.abis.Registry, tricryptoFac, "pool_list", big.NewInt(1)).Returns(triPool)

	require.NoError(t, f.reg.AddAddress(ctx, 8, tricryptoFac, ev))
	assert.Equal(t, uint64(2), f.factoryCount(t, tricryptoFac))
	f.pool(t, triPool)
}

func TestFactoryCounterSkipsTrackedPools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	f.coins(plainPool, false, "coins", usdc, dai)
	f.coins(mimPool, false, "coins", mim, lp3)
	require.NoError(t, f.session.Save(&model.Factory{ID: pricing.Hex(stableFac), Version: model.FactoryStable}))
	require.NoError(t, f.session.Save(&model.Registry{ID: pricing.Hex(mainRegistry), Kind: model.RegistryStable}))
	f.token(plainPool, 18, "PLAIN")
	require.NoError(t, f.reg.HandlePoolAdded(ctx, mainRegistry, plainPool, ev))

	f.fake.Stub(&f.abis.Registry, stableFac, "pool_list", big.NewInt(0)).Returns(plainPool)
	f.fake.Stub(&f.abis.Registry, stableFac, "pool_list", big.NewInt(1)).Returns(mimPool)
	require.NoError(t, f.reg.HandleFactoryPoolDeployed(ctx, stableFac, true, pool3, ev))
	assert.Equal(t, uint64(2), f.factoryCount(t, stableFac))
	assert.True(t, f.pool(t, mimPool).Metapool)

	// nothing listed at the counter: no pool, no advance
	require.NoError(t, f.reg.HandleFactoryPoolDeployed(ctx, stableFac, false, common.Address{}, ev))
	assert.Equal(t, uint64(2), f.factoryCount(t, stableFac))
}

func TestAddExistingPoolsStopsAtZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, registry.Config{})
	require.NoError(t, f.session.Save(&model.Factory{ID: pricing.Hex(stableFac), Version: model.FactoryStable, PoolCount: 4}))

	zero := pricing.Hex(common.Address{})
	require.NoError(t, f.reg.AddExistingPools(ctx, stableFac,
		[]string{pricing.Hex(plainPool), pricing.Hex(mimPool), zero, pricing.Hex(oldPool)}, ev))
	assert.Equal(t, uint64(6), f.factoryCount(t, stableFac))
}

func TestUnknownAddressIDIgnored(t *testing.T) {
	f := newFixture(t, registry.Config{})
	require.NoError(t, f.reg.AddAddress(context.Background(), 2, stableFac, ev))
	assert.Equal(t, 0, f.session.Pending())
}
