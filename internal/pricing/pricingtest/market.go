// Package pricingtest builds fake on-chain markets for price resolution
// tests.
package pricingtest

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"curveVolume/internal/chain"
	"curveVolume/internal/chain/chaintest"
	"curveVolume/internal/dex"
	"curveVolume/internal/pricing"
)

// Well-known fixture addresses.
var (
	MulticallAddress = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	FactoryAddress   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	FactoryB         = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	V3Factory        = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	Quoter           = common.HexToAddress("0x00000000000000000000000000000000000000f4")

	WETH = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	USDT = common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")
	WBTC = common.HexToAddress("0x2260fac5e5542a773aa44fbcfedf7c193bc2c599")
)

// EthUSD is the ETH price every market is built with.
var EthUSD = decimal.NewFromInt(2000)

// Market is a chaintest fake preloaded with a WETH-quoted pair factory.
type Market struct {
	Fake *chaintest.Fake
	ABIs *dex.ABIs

	pairs uint64
}

// NewMarket returns a market where ETH trades at EthUSD against USDT.
func NewMarket() *Market {
	m := &Market{Fake: chaintest.New(MulticallAddress), ABIs: dex.MustLoadABIs()}
	m.Token(WETH, 18, "WETH")
	m.Token(USDT, 6, "USDT")
	m.Token(WBTC, 8, "WBTC")
	m.SetUSDPrice(USDT, 6, "1")
	return m
}

// Reader wraps the fake.
func (m *Market) Reader() *chain.Reader {
	return chain.NewReader(m.Fake, nil, nil)
}

// Multicall wraps the fake's multicall.
func (m *Market) Multicall() *chain.Multicall {
	return chain.NewMulticall(m.Fake, MulticallAddress, nil, nil)
}

// Config is a resolver config pointing at the fixture contracts.
func (m *Market) Config() pricing.Config {
	return pricing.Config{
		WETH:          WETH,
		USDT:          USDT,
		WBTC:          WBTC,
		PairFactories: []common.Address{FactoryAddress, FactoryB},
		V3Factory:     V3Factory,
		Quoter:        Quoter,
		DustReserve:   big.NewInt(1000),
	}
}

// Metadata builds an uncached-per-test metadata reader.
func (m *Market) Metadata() *dex.Metadata {
	meta, err := dex.NewMetadata(m.Reader(), 256, nil)
	if err != nil {
		panic(err)
	}
	return meta
}

// Resolver builds a resolver with cfg over the market.
func (m *Market) Resolver(cfg pricing.Config) *pricing.Resolver {
	r, err := pricing.NewResolver(cfg, m.Reader(), m.Metadata(), nil, nil)
	if err != nil {
		panic(err)
	}
	return r
}

// Token registers ERC20 metadata.
func (m *Market) Token(addr common.Address, decimals int, symbol string) {
	m.Fake.Stub(&m.ABIs.ERC20, addr, "decimals").Returns(uint8(decimals))
	m.Fake.Stub(&m.ABIs.ERC20, addr, "symbol").Returns(symbol)
	m.Fake.Stub(&m.ABIs.ERC20, addr, "name").Returns(symbol)
}

// Pair creates a classic pair on factory holding the given raw reserves.
func (m *Market) Pair(factory, token, other common.Address, reserveToken, reserveOther *big.Int) common.Address {
	m.pairs++
	pair := common.BigToAddress(new(big.Int).SetUint64(0xa000 + m.pairs))
	m.Fake.Stub(&m.ABIs.PairFactory, factory, "getPair", token, other).Returns(pair)

	token0, r0, r1 := token, reserveToken, reserveOther
	if bytes.Compare(other.Bytes(), token.Bytes()) < 0 {
		token0, r0, r1 = other, reserveOther, reserveToken
	}
	m.Fake.Stub(&m.ABIs.Pair, pair, "token0").Returns(token0)
	m.Fake.Stub(&m.ABIs.Pair, pair, "getReserves").Returns(r0, r1, uint32(0))
	return pair
}

// SetETHPrice lists token against WETH on the primary factory at
// ethPerToken.
func (m *Market) SetETHPrice(token common.Address, decimals int, ethPerToken string) {
	if token == WETH {
		return
	}
	price := decimal.RequireFromString(ethPerToken)
	reserveToken := decimal.NewFromInt(1000).Shift(int32(decimals))
	reserveWETH := decimal.NewFromInt(1000).Mul(price).Shift(18)
	if !reserveWETH.Equal(reserveWETH.Truncate(0)) {
		panic(fmt.Sprintf("pricingtest: %s ETH is not representable", ethPerToken))
	}
	m.Pair(FactoryAddress, token, WETH, reserveToken.BigInt(), reserveWETH.BigInt())
}

// SetUSDPrice lists token so that it resolves to usd.
func (m *Market) SetUSDPrice(token common.Address, decimals int, usd string) {
	eth := decimal.RequireFromString(usd).DivRound(EthUSD, 30)
	m.SetETHPrice(token, decimals, eth.String())
}
