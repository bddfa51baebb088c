package processor_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
	"curveVolume/internal/pricing/pricingtest"
	"curveVolume/internal/processor"
	"curveVolume/internal/rebase"
	"curveVolume/internal/registry"
	"curveVolume/internal/snapshot"
	"curveVolume/internal/storage"
	"curveVolume/internal/storage/memory"
	"curveVolume/internal/valuation"
)

const ts uint64 = 1_700_000_000

var (
	provider = common.HexToAddress("0x0000000022d53366457f9d5e68ec105046fc4383")
	factory  = common.HexToAddress("0xb9fc157394af804a3578134a6585c0dc9cc990d4")
	steth    = common.HexToAddress("0xae7ab96520de3a18e5e111b5eaab095312d7fe84")

	usdc = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	dai  = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	mim  = common.HexToAddress("0x99d8a9c45b2eca8864373a26d1459e3dff1e17f3")
	lp3  = common.HexToAddress("0x6c3f90f043a72fa612cbac8115ee7e52bde6e490")

	pool3    = common.HexToAddress("0xbebc44782c7db0a1a60cb6fe97d0b483032ff1c7")
	mimPool  = common.HexToAddress("0x5a6a4d54456819380173272a5e8e9b9904bdf41b")
	usdPool  = common.HexToAddress("0x3000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0x3000000000000000000000000000000000000099")
)

const tx = "0x00000000000000000000000000000000000000000000000000000000000000aa"

type fixture struct {
	market  *pricingtest.Market
	session *storage.Session
	proc    *processor.Processor
}

func newFixture(t *testing.T, mutate func(*processor.Config)) *fixture {
	t.Helper()
	m := pricingtest.NewMarket()
	m.Token(usdc, 6, "USDC")
	m.Token(dai, 18, "DAI")
	m.Token(mim, 18, "MIM")
	m.Token(lp3, 18, "3Crv")

	session := storage.NewSession(memory.NewStore())
	reader := m.Reader()
	snaps := pricing.NewSnapshots(session, m.Resolver(m.Config()))
	reg, err := registry.New(registry.Config{}, reader, m.Metadata(), session, nil, nil)
	require.NoError(t, err)
	valuer := valuation.NewValuer(valuation.Config{}, session, snaps, nil)
	rcfg := rebase.Config{Lido: rebase.LidoConfig{Token: steth}}
	deducer, err := rebase.NewDeducer(rcfg, reader, session, snaps, nil)
	require.NoError(t, err)
	handlers, err := rebase.NewHandlers(reader, session, nil)
	require.NoError(t, err)
	engine, err := snapshot.New(snapshot.Config{}, reader, m.Multicall(), reg, valuer, deducer, session, nil, nil)
	require.NoError(t, err)

	cfg := processor.Config{AddressProvider: provider, Rebase: rcfg}
	if mutate != nil {
		mutate(&cfg)
	}
	return &fixture{
		market:  m,
		session: session,
		proc:    processor.New(cfg, reg, engine, valuer, handlers, session, nil, nil),
	}
}

func record(t *testing.T, name string, emitter common.Address, logIndex uint64, data interface{}) model.TypedEventRecord {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return model.TypedEventRecord{
		BlockNumber: 15_000_000,
		TxHash:      tx,
		LogIndex:    logIndex,
		Address:     emitter.Hex(),
		EventName:   name,
		Timestamp:   ts,
		Decoded:     raw,
	}
}

func (f *fixture) handle(t *testing.T, r model.TypedEventRecord) {
	t.Helper()
	require.NoError(t, f.proc.Handle(context.Background(), r))
}

func (f *fixture) savePool(t *testing.T, p *model.Pool) {
	t.Helper()
	p.ID = model.NormalizeAddress(p.ID)
	p.Address = p.ID
	p.CumulativeVolume = decimal.Zero
	p.CumulativeVolumeUSD = decimal.Zero
	p.CumulativeFeesUSD = decimal.Zero
	require.NoError(t, f.session.Save(p))

	var platform model.Platform
	_, err := f.session.Load(context.Background(), model.KindPlatform, model.PlatformID, &platform)
	require.NoError(t, err)
	platform.ID = model.PlatformID
	platform.PoolAddresses = append(platform.PoolAddresses, p.ID)
	require.NoError(t, f.session.Save(&platform))
}

func (f *fixture) saveMetapool(t *testing.T, poolType model.PoolType) {
	t.Helper()
	f.savePool(t, &model.Pool{
		ID:           pricing.Hex(pool3),
		LPToken:      pricing.Hex(lp3),
		Coins:        []string{pricing.Hex(dai), pricing.Hex(usdc)},
		CoinDecimals: []int{18, 6},
		AssetType:    model.AssetTypeUSD,
		PoolType:     model.PoolTypeRegistryV1,
	})
	f.savePool(t, &model.Pool{
		ID:           pricing.Hex(mimPool),
		Coins:        []string{pricing.Hex(mim), pricing.Hex(lp3)},
		CoinDecimals: []int{18, 18},
		Metapool:     true,
		BasePool:     pricing.Hex(pool3),
		AssetType:    model.AssetTypeUSD,
		PoolType:     poolType,
	})
	require.NoError(t, f.session.Save(&model.BasePool{
		ID:           pricing.Hex(pool3),
		Coins:        []string{pricing.Hex(dai), pricing.Hex(usdc)},
		CoinDecimals: []int{18, 6},
	}))
}

func (f *fixture) load(t *testing.T, kind model.Kind, id string, dst interface{}) {
	t.Helper()
	found, err := f.session.Load(context.Background(), kind, id, dst)
	require.NoError(t, err)
	require.True(t, found, "%s %s not found", kind, id)
}

func (f *fixture) swap(t *testing.T, logIndex uint64) *model.SwapEvent {
	t.Helper()
	var s model.SwapEvent
	f.load(t, model.KindSwapEvent, model.EventID(tx, logIndex), &s)
	return &s
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	w := decimal.RequireFromString(want)
	assert.True(t, got.Sub(w).Abs().LessThan(decimal.New(1, -9)), "want %s got %s", want, got)
}

func TestFactoryPoolSwap(t *testing.T) {
	f := newFixture(t, nil)
	abis := f.market.ABIs
	f.market.Fake.Stub(&abis.Registry, factory, "pool_count").Returns(big.NewInt(0))
	f.market.Fake.Stub(&abis.Registry, factory, "pool_list", big.NewInt(0)).Returns(usdPool)
	f.market.Fake.Stub(&abis.Pool, usdPool, "coins", big.NewInt(0)).Returns(usdc)
	f.market.Fake.Stub(&abis.Pool, usdPool, "coins", big.NewInt(1)).Returns(dai)
	f.market.Fake.Stub(&abis.Pool, usdPool, "name").Returns("Curve.fi Factory Plain Pool: usd")
	f.market.Fake.Stub(&abis.Pool, usdPool, "symbol").Returns("usd-f")

	f.handle(t, record(t, model.EventNewAddressIdentifier, provider, 1,
		model.AddressProviderEventData{ID: "3", Address: factory.Hex()}))
	f.handle(t, record(t, model.EventPlainPoolDeployed, factory, 2,
		model.PlainPoolDeployedEventData{Coins: []string{usdc.Hex(), dai.Hex()}}))
	f.handle(t, record(t, model.EventTokenExchange, usdPool, 3, model.TokenExchangeEventData{
		Buyer:        stranger.Hex(),
		SoldID:       "0",
		TokensSold:   "1000000",
		BoughtID:     "1",
		TokensBought: "999000000000000000",
	}))

	s := f.swap(t, 3)
	assert.Equal(t, pricing.Hex(usdc), s.TokenSold)
	assert.Equal(t, pricing.Hex(dai), s.TokenBought)
	assertDec(t, "1", s.AmountSold)
	assertDec(t, "0.999", s.AmountBought)
	assertDec(t, "1", s.AmountSoldUSD)
	assertDec(t, "0.999", s.AmountBoughtUSD)

	var pool model.Pool
	f.load(t, model.KindPool, pricing.Hex(usdPool), &pool)
	assertDec(t, "0.9995", pool.CumulativeVolume)
	assertDec(t, "0.9995", pool.CumulativeVolumeUSD)

	var daily model.SwapVolumeSnapshot
	f.load(t, model.KindSwapVolumeSnapshot, model.VolumeSnapshotID(pool.ID, model.Day, ts), &daily)
	assert.Equal(t, uint64(1), daily.Count)
	assertDec(t, "0.9995", daily.VolumeUSD)

	var feed model.PriceFeed
	f.load(t, model.KindPriceFeed, model.PriceFeedID(pool.ID, pricing.Hex(usdc), pricing.Hex(dai)), &feed)
	assertDec(t, "0.999", feed.Price)
	assert.Equal(t, ts, feed.LastUpdated)

	// the swap also triggered the day's sweep
	var snap model.DailyPoolSnapshot
	f.load(t, model.KindDailyPoolSnapshot, model.DailyPoolSnapshotID(pool.ID, ts), &snap)
}

func TestMetapoolUnderlyingIndexResolvesToBaseCoin(t *testing.T) {
	f := newFixture(t, nil)
	f.saveMetapool(t, model.PoolTypeRegistryV1)

	f.handle(t, record(t, model.EventTokenExchangeUnderlying, mimPool, 4, model.TokenExchangeEventData{
		SoldID:       "1",
		TokensSold:   "5000000000000000000",
		BoughtID:     "2",
		TokensBought: "4990000",
	}))
	s := f.swap(t, 4)
	assert.True(t, s.IsUnderlying)
	assert.Equal(t, pricing.Hex(dai), s.TokenSold)
	assert.Equal(t, pricing.Hex(usdc), s.TokenBought)
	assertDec(t, "5", s.AmountSold)
	assertDec(t, "4.99", s.AmountBought)
}

func TestMetapoolDxReconstruction(t *testing.T) {
	f := newFixture(t, nil)
	f.saveMetapool(t, model.PoolTypeStableFactory)

	// the metapool deposits 7 DAI into the base pool two logs earlier
	f.handle(t, record(t, model.EventAddLiquidity, pool3, 5, model.LiquidityEventData{
		Provider:     mimPool.Hex(),
		TokenAmounts: []string{"7000000000000000000", "0"},
	}))
	f.handle(t, record(t, model.EventTokenExchangeUnderlying, mimPool, 7, model.TokenExchangeEventData{
		SoldID:       "1",
		TokensSold:   "6900000000000000000",
		BoughtID:     "0",
		TokensBought: "7010000000000000000",
	}))
	assertDec(t, "7", f.swap(t, 7).AmountSold)
}

func TestMetapoolDxReconstructionWithoutMatchIsZero(t *testing.T) {
	f := newFixture(t, nil)
	f.saveMetapool(t, model.PoolTypeStableFactory)

	// a deposit by someone else does not match
	f.handle(t, record(t, model.EventAddLiquidity, pool3, 5, model.LiquidityEventData{
		Provider:     stranger.Hex(),
		TokenAmounts: []string{"7000000000000000000", "0"},
	}))
	f.handle(t, record(t, model.EventTokenExchangeUnderlying, mimPool, 7, model.TokenExchangeEventData{
		SoldID:       "1",
		TokensSold:   "6900000000000000000",
		BoughtID:     "0",
		TokensBought: "7010000000000000000",
	}))
	s := f.swap(t, 7)
	assertDec(t, "0", s.AmountSold)
	assertDec(t, "7.01", s.AmountBought)

	// no price feed from an empty side
	found, err := f.session.Exists(context.Background(), model.KindPriceFeed,
		model.PriceFeedID(pricing.Hex(mimPool), pricing.Hex(dai), pricing.Hex(mim)))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUntrackedPoolIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.handle(t, record(t, model.EventTokenExchange, stranger, 1, model.TokenExchangeEventData{
		SoldID: "0", TokensSold: "1", BoughtID: "1", TokensBought: "1",
	}))
	found, err := f.session.Exists(context.Background(), model.KindSwapEvent, model.EventID(tx, 1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOutOfRangeIndexIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.saveMetapool(t, model.PoolTypeRegistryV1)
	f.handle(t, record(t, model.EventTokenExchange, mimPool, 1, model.TokenExchangeEventData{
		SoldID: "0", TokensSold: "1", BoughtID: "5", TokensBought: "1",
	}))
	found, err := f.session.Exists(context.Background(), model.KindSwapEvent, model.EventID(tx, 1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVolumeCeilingZeroesUSD(t *testing.T) {
	f := newFixture(t, func(c *processor.Config) { c.VolumeCeiling = decimal.RequireFromString("0.5") })
	f.saveMetapool(t, model.PoolTypeRegistryV1)
	f.handle(t, record(t, model.EventTokenExchange, mimPool, 2, model.TokenExchangeEventData{
		SoldID: "0", TokensSold: "1000000000000000000", BoughtID: "1", TokensBought: "990000000000000000",
	}))
	s := f.swap(t, 2)
	assertDec(t, "0", s.AmountSoldUSD)
	assertDec(t, "0", s.AmountBoughtUSD)

	var hourly model.SwapVolumeSnapshot
	f.load(t, model.KindSwapVolumeSnapshot, model.VolumeSnapshotID(pricing.Hex(mimPool), model.Hour, ts), &hourly)
	assert.Equal(t, uint64(1), hourly.Count)
	assertDec(t, "0", hourly.VolumeUSD)
	assertDec(t, "0.995", hourly.Volume)
}

func TestPriceFeedCeiling(t *testing.T) {
	f := newFixture(t, nil)
	pool := &model.Pool{ID: pricing.Hex(usdPool)}
	meta := model.EventMeta{Block: 1, Timestamp: ts}
	require.NoError(t, f.proc.UpdatePriceFeed(context.Background(), pool, "a", "b",
		decimal.RequireFromString("0.000001"), decimal.RequireFromString("100"), 0, 1, false, meta))
	found, err := f.session.Exists(context.Background(), model.KindPriceFeed, model.PriceFeedID(pool.ID, "a", "b"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCandlesStayOrdered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	pool := &model.Pool{ID: pricing.Hex(usdPool)}
	a, b := pricing.Hex(usdc), pricing.Hex(dai)

	trades := []struct {
		sold, bought   string
		amountSold     string
		amountBought   string
		offset, logIdx uint64
	}{
		{a, b, "100", "99", 0, 1},
		{b, a, "50", "51", 20, 2},
		{a, b, "10", "9.5", 40, 3},
		{b, a, "20", "19", 60, 4},
	}
	for _, tr := range trades {
		meta := model.EventMeta{Block: 1 + tr.logIdx, Timestamp: ts + tr.offset, LogIndex: tr.logIdx}
		require.NoError(t, f.proc.UpdateCandles(ctx, pool, meta,
			tr.sold, decimal.RequireFromString(tr.amountSold),
			tr.bought, decimal.RequireFromString(tr.amountBought)))
	}

	token0, token1 := b, a
	if a < b {
		token0, token1 = a, b
	}
	for _, period := range processor.CandlePeriods {
		var c model.Candle
		f.load(t, model.KindCandle, model.CandleID(pool.ID, token0, token1, ts, period), &c)
		assert.Equal(t, uint64(4), c.Txs, "period %d", period)
		assert.True(t, c.Low.LessThanOrEqual(c.Open))
		assert.True(t, c.Low.LessThanOrEqual(c.Close))
		assert.True(t, c.Open.LessThanOrEqual(c.High))
		assert.True(t, c.Close.LessThanOrEqual(c.High))
		assert.Equal(t, model.IntervalStart(ts, period), c.Timestamp)
		assert.Equal(t, uint64(5), c.LastBlock)
	}
}

func TestLiquidityVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.saveMetapool(t, model.PoolTypeRegistryV1)

	f.handle(t, record(t, model.EventAddLiquidity, pool3, 1, model.LiquidityEventData{
		Provider:     stranger.Hex(),
		TokenAmounts: []string{"2000000000000000000", "1000000"},
	}))
	f.handle(t, record(t, model.EventRemoveLiquidityOne, pool3, 2, model.RemoveLiquidityOneEventData{
		Provider:   stranger.Hex(),
		CoinIndex:  1,
		CoinAmount: "500000",
	}))
	// without a coin index the withdrawal cannot be attributed
	f.handle(t, record(t, model.EventRemoveLiquidityOne, pool3, 3, model.RemoveLiquidityOneEventData{
		Provider:   stranger.Hex(),
		CoinIndex:  -1,
		CoinAmount: "500000",
	}))

	var ev model.LiquidityEvent
	f.load(t, model.KindLiquidityEvent, model.EventID(tx, 1), &ev)
	assertDec(t, "3", ev.VolumeUSD)
	assert.False(t, ev.Removal)

	var daily model.LiquidityVolumeSnapshot
	f.load(t, model.KindLiquidityVolumeSnapshot, model.VolumeSnapshotID(pricing.Hex(pool3), model.Day, ts), &daily)
	assert.Equal(t, uint64(1), daily.AddCount)
	assert.Equal(t, uint64(1), daily.RemoveCount)
	require.Len(t, daily.AmountAdded, 2)
	assertDec(t, "2", daily.AmountAdded[0])
	assertDec(t, "1", daily.AmountAdded[1])
	assertDec(t, "0", daily.AmountRemoved[0])
	assertDec(t, "0.5", daily.AmountRemoved[1])
	assertDec(t, "3.5", daily.VolumeUSD)
}

func TestRebaseEventsAreFilteredByEmitter(t *testing.T) {
	f := newFixture(t, nil)
	data := model.TokenRebasedEventData{
		TimeElapsed:     "86400",
		PreTotalShares:  "1000000000000000000000",
		PreTotalEther:   "1000000000000000000000",
		PostTotalShares: "1000000000000000000000",
		PostTotalEther:  "1000100000000000000000",
	}
	f.handle(t, record(t, model.EventTokenRebased, stranger, 1, data))
	found, err := f.session.Exists(context.Background(), model.KindTokenSnapshot, model.RebaseSnapshotID(pricing.Hex(stranger), ts))
	require.NoError(t, err)
	assert.False(t, found)

	f.handle(t, record(t, model.EventTokenRebased, steth, 2, data))
	var snap model.TokenSnapshot
	f.load(t, model.KindTokenSnapshot, model.RebaseSnapshotID(pricing.Hex(steth), ts), &snap)
	assertDec(t, "0.0001", snap.Price)
}

func TestAddressProviderFromOtherEmitterIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.handle(t, record(t, model.EventNewAddressIdentifier, stranger, 1,
		model.AddressProviderEventData{ID: "3", Address: factory.Hex()}))
	found, err := f.session.Exists(context.Background(), model.KindFactory, pricing.Hex(factory))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRepeatedEventIsAppliedOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.saveMetapool(t, model.PoolTypeRegistryV1)

	swap := record(t, model.EventTokenExchange, mimPool, 5, model.TokenExchangeEventData{
		SoldID: "0", TokensSold: "1000000000000000000", BoughtID: "1", TokensBought: "990000000000000000",
	})
	deposit := record(t, model.EventAddLiquidity, pool3, 6, model.LiquidityEventData{
		Provider:     stranger.Hex(),
		TokenAmounts: []string{"2000000000000000000", "1000000"},
	})
	for i := 0; i < 2; i++ {
		f.handle(t, swap)
		f.handle(t, deposit)
	}
	// a later store session sees the flushed records too
	_, err := f.session.Flush(context.Background())
	require.NoError(t, err)
	f.handle(t, swap)

	var pool model.Pool
	f.load(t, model.KindPool, pricing.Hex(mimPool), &pool)
	assertDec(t, "0.995", pool.CumulativeVolume)

	var hourly model.SwapVolumeSnapshot
	f.load(t, model.KindSwapVolumeSnapshot, model.VolumeSnapshotID(pricing.Hex(mimPool), model.Hour, ts), &hourly)
	assert.Equal(t, uint64(1), hourly.Count)

	var daily model.LiquidityVolumeSnapshot
	f.load(t, model.KindLiquidityVolumeSnapshot, model.VolumeSnapshotID(pricing.Hex(pool3), model.Day, ts), &daily)
	assert.Equal(t, uint64(1), daily.AddCount)
	assertDec(t, "3", daily.VolumeUSD)
}
