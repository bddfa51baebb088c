package pricing_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
	"curveVolume/internal/pricing/pricingtest"
	"curveVolume/internal/storage"
	"curveVolume/internal/storage/memory"
)

var (
	tokenX   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdc     = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	cUSDC    = common.HexToAddress("0x39aa39c021dfbae8fac545936693ac917d5e7563")
	eurs     = common.HexToAddress("0xdb25f211ab05b1c97d595516f45794528a807ad8")
	eurOracl = common.HexToAddress("0xb49f677943bc038e9857d61e7d053caa2c1734c1")
	threeCRV = common.HexToAddress("0x6c3f90f043a72fa612cbac8115ee7e52bde6e490")
	curveOne = common.HexToAddress("0x2000000000000000000000000000000000000002")
	oraclePl = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func assertPrice(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	w := decimal.RequireFromString(want)
	assert.True(t, got.Sub(w).Abs().LessThan(decimal.New(1, -9)), "want %s got %s", want, got)
}

func TestUSDThroughETHPairs(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(tokenX, 18, "X")
	m.SetUSDPrice(tokenX, 18, "4")
	r := m.Resolver(m.Config())

	ctx := context.Background()
	assertPrice(t, "4", r.USD(ctx, tokenX, nil))
	assertPrice(t, "2000", r.USD(ctx, pricingtest.WETH, nil))
	assertPrice(t, "0.002", r.ETH(ctx, tokenX, nil))
}

func TestUSDNumerairesArePar(t *testing.T) {
	m := pricingtest.NewMarket()
	cfg := m.Config()
	cfg.USDNumeraires = []common.Address{threeCRV}
	r := m.Resolver(cfg)

	assert.True(t, r.USD(context.Background(), pricingtest.USDT, nil).Equal(decimal.NewFromInt(1)))
	assert.True(t, r.USD(context.Background(), threeCRV, nil).Equal(decimal.NewFromInt(1)))
}

func TestLaterFactoryIsTried(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(usdc, 6, "USDC")
	// 1000 USDC against 0.5 ETH on the second factory only
	m.Pair(pricingtest.FactoryB, usdc, pricingtest.WETH, big.NewInt(1_000_000_000), new(big.Int).Mul(big.NewInt(5), big.NewInt(1e17)))
	r := m.Resolver(m.Config())

	assertPrice(t, "1", r.USD(context.Background(), usdc, nil))
}

func TestDustPairIsIgnored(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(tokenX, 18, "X")
	m.Pair(pricingtest.FactoryAddress, tokenX, pricingtest.WETH, big.NewInt(10), big.NewInt(10))
	r := m.Resolver(m.Config())

	assert.True(t, r.USD(context.Background(), tokenX, nil).IsZero())
}

func TestQuoterFallback(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(usdc, 6, "USDC")
	pool := common.HexToAddress("0x00000000000000000000000000000000000000b3")
	m.Fake.Stub(&m.ABIs.V3Factory, pricingtest.V3Factory, "getPool", usdc, pricingtest.WETH, big.NewInt(10000)).Returns(pool)
	m.Fake.Stub(&m.ABIs.Quoter, pricingtest.Quoter, "quoteExactInputSingle",
		usdc, pricingtest.WETH, big.NewInt(10000), big.NewInt(1_000_000), new(big.Int)).
		Returns(big.NewInt(1e15))
	r := m.Resolver(m.Config())

	assertPrice(t, "2", r.USD(context.Background(), usdc, nil))
}

func TestQuoterRevertGivesZero(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(usdc, 6, "USDC")
	pool := common.HexToAddress("0x00000000000000000000000000000000000000b3")
	m.Fake.Stub(&m.ABIs.V3Factory, pricingtest.V3Factory, "getPool", usdc, pricingtest.WETH, big.NewInt(3000)).Returns(pool)
	m.Fake.Stub(&m.ABIs.V3Factory, pricingtest.V3Factory, "getPool", usdc, pricingtest.WETH, big.NewInt(10000)).Returns(pool)
	// the 1% tier would quote, but a revert on the 0.3% pool ends the lookup
	m.Fake.Stub(&m.ABIs.Quoter, pricingtest.Quoter, "quoteExactInputSingle",
		usdc, pricingtest.WETH, big.NewInt(10000), big.NewInt(1_000_000), new(big.Int)).
		Returns(big.NewInt(1e15))
	r := m.Resolver(m.Config())

	assert.True(t, r.EthRate(context.Background(), usdc, nil).IsZero())
}

func TestDustPairSkipsQuoter(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(usdc, 6, "USDC")
	m.Pair(pricingtest.FactoryAddress, usdc, pricingtest.WETH, big.NewInt(10), big.NewInt(10))
	pool := common.HexToAddress("0x00000000000000000000000000000000000000b3")
	m.Fake.Stub(&m.ABIs.V3Factory, pricingtest.V3Factory, "getPool", usdc, pricingtest.WETH, big.NewInt(3000)).Returns(pool)
	m.Fake.Stub(&m.ABIs.Quoter, pricingtest.Quoter, "quoteExactInputSingle",
		usdc, pricingtest.WETH, big.NewInt(3000), big.NewInt(1_000_000), new(big.Int)).
		Returns(big.NewInt(1e15))
	r := m.Resolver(m.Config())

	assert.True(t, r.EthRate(context.Background(), usdc, nil).IsZero())
	assert.True(t, r.USD(context.Background(), usdc, nil).IsZero())
}

func TestCTokenUsesExchangeRateOrDefault(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(usdc, 6, "USDC")
	m.Token(cUSDC, 8, "cUSDC")
	m.SetUSDPrice(usdc, 6, "1")
	cfg := m.Config()
	cfg.CTokens = map[common.Address]common.Address{cUSDC: usdc}
	r := m.Resolver(cfg)

	ctx := context.Background()
	assertPrice(t, "0.02", r.USD(ctx, cUSDC, nil))

	// 0.0215 scaled by 10^(10+6)
	m.Fake.Stub(&m.ABIs.CToken, cUSDC, "exchangeRateStored").Returns(big.NewInt(215_000_000_000_000))
	assertPrice(t, "0.0215", r.USD(ctx, cUSDC, nil))
}

func TestForexOracle(t *testing.T) {
	m := pricingtest.NewMarket()
	cfg := m.Config()
	cfg.ForexOracles = map[common.Address]common.Address{eurs: eurOracl}
	r := m.Resolver(cfg)
	ctx := context.Background()

	assertPrice(t, "1", r.USD(ctx, eurs, nil))

	m.Fake.Stub(&m.ABIs.Chainlink, eurOracl, "latestAnswer").Returns(big.NewInt(108_000_000))
	assertPrice(t, "1.08", r.USD(ctx, eurs, nil))
	assert.True(t, r.IsForex(eurs))
}

func TestCurveOnlyOracleInversion(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(curveOne, 18, "C1")
	cfg := m.Config()
	cfg.CurveOnly = map[common.Address]pricing.CurveOnlyToken{
		curveOne: {Pricing: pricingtest.WETH, Pool: oraclePl, Index: 0},
	}
	ctx := context.Background()

	r := m.Resolver(cfg)
	// oracle reverts: 1
	assertPrice(t, "2000", r.USD(ctx, curveOne, nil))

	m.Fake.Stub(&m.ABIs.Pool, oraclePl, "price_oracle").Returns(new(big.Int).Mul(big.NewInt(5), big.NewInt(1e17)))
	assertPrice(t, "4000", r.USD(ctx, curveOne, nil))

	cfg.CurveOnly[curveOne] = pricing.CurveOnlyToken{Pricing: pricingtest.WETH, Pool: oraclePl, Index: 1}
	r = m.Resolver(cfg)
	assertPrice(t, "1000", r.USD(ctx, curveOne, nil))
}

func TestSubstituteIsPricedAsCanonical(t *testing.T) {
	m := pricingtest.NewMarket()
	bridged := common.HexToAddress("0x4000000000000000000000000000000000000004")
	cfg := m.Config()
	cfg.Substitutes = map[common.Address]common.Address{bridged: pricingtest.USDT}
	r := m.Resolver(cfg)

	assertPrice(t, "1", r.USD(context.Background(), bridged, nil))
}

func TestPairAddressIsCached(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(tokenX, 18, "X")
	m.SetUSDPrice(tokenX, 18, "4")
	r := m.Resolver(m.Config())
	ctx := context.Background()

	require.False(t, r.USD(ctx, tokenX, nil).IsZero())
	m.Fake.Remove(&m.ABIs.PairFactory, pricingtest.FactoryAddress, "getPair", tokenX, pricingtest.WETH)
	assertPrice(t, "4", r.USD(ctx, tokenX, nil))
}

func TestSnapshotIsComputedOncePerHour(t *testing.T) {
	m := pricingtest.NewMarket()
	m.Token(tokenX, 18, "X")
	m.SetUSDPrice(tokenX, 18, "4")
	store := memory.NewStore()
	snaps := pricing.NewSnapshots(storage.NewSession(store), m.Resolver(m.Config()))
	ctx := context.Background()

	const ts = 1_700_000_123
	first, err := snaps.Token(ctx, tokenX, ts, nil)
	require.NoError(t, err)
	assertPrice(t, "4", first)

	calls := m.Fake.Calls()
	again, err := snaps.Token(ctx, tokenX, ts+60, nil)
	require.NoError(t, err)
	assert.True(t, first.Equal(again))
	assert.Equal(t, calls, m.Fake.Calls())

	snap, found, err := snaps.Lookup(ctx, model.TokenSnapshotID(pricing.Hex(tokenX), ts))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.IntervalStart(ts, model.Hour), snap.Timestamp)

	_, err = snaps.Token(ctx, tokenX, ts+model.Hour, nil)
	require.NoError(t, err)
	assert.Greater(t, m.Fake.Calls(), calls)
}
