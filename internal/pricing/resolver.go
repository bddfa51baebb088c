// Package pricing resolves token prices in USD, ETH and BTC from on-chain
// liquidity and oracles, and memoizes them per hour.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
	"curveVolume/internal/dex"
	"curveVolume/internal/metrics"
	"curveVolume/internal/numeric"
)

var (
	defaultCTokenRate = decimal.RequireFromString("0.02")
	defaultV3Fees     = []int64{3000, 10000}
)

// CurveOnlyToken prices a token that only trades on Curve through another
// token and the pool's price_oracle. Index is the token's position in Pool.
type CurveOnlyToken struct {
	Pricing common.Address
	Pool    common.Address
	Index   int
}

// LPWrapper prices an LP token as virtual price times its pricing token.
type LPWrapper struct {
	Pool    common.Address
	Pricing common.Address
}

// Config holds the per-deployment address tables the resolver reads.
type Config struct {
	WETH common.Address
	USDT common.Address
	WBTC common.Address
	// USDNumeraires are priced at exactly 1 USD besides USDT (e.g. 3CRV).
	USDNumeraires []common.Address
	// PairFactories are constant-product factories in priority order.
	PairFactories []common.Address
	V3Factory     common.Address
	Quoter        common.Address
	V3Fees        []int64
	// DustReserve is the raw reserve below which a pair is ignored.
	DustReserve *big.Int

	Substitutes  map[common.Address]common.Address
	CTokens      map[common.Address]common.Address
	YTokens      map[common.Address]common.Address
	LPWrappers   map[common.Address]LPWrapper
	ForexOracles map[common.Address]common.Address
	CurveOnly    map[common.Address]CurveOnlyToken

	PairCacheSize int
}

type pairKey struct {
	factory common.Address
	a, b    common.Address
}

// Resolver walks the price source chain. It never fails: a price it cannot
// find is zero, which callers treat as unpriced.
type Resolver struct {
	cfg     Config
	reader  *chain.Reader
	meta    *dex.Metadata
	abis    *dex.ABIs
	pairs   *lru.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewResolver builds a resolver over reader.
func NewResolver(cfg Config, reader *chain.Reader, meta *dex.Metadata, logger *zap.Logger, m *metrics.Metrics) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meta == nil {
		return nil, fmt.Errorf("token metadata is required")
	}
	abis, err := dex.LoadABIs()
	if err != nil {
		return nil, err
	}
	if len(cfg.V3Fees) == 0 {
		cfg.V3Fees = defaultV3Fees
	}
	if cfg.DustReserve == nil {
		cfg.DustReserve = new(big.Int)
	}
	size := cfg.PairCacheSize
	if size <= 0 {
		size = 8192
	}
	pairs, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, reader: reader, meta: meta, abis: abis, pairs: pairs, logger: logger, metrics: m}, nil
}

// Config returns the resolver's address tables.
func (r *Resolver) Config() Config { return r.cfg }

// Substitute maps a bridged or synthetic address to its canonical token.
func (r *Resolver) Substitute(token common.Address) common.Address {
	if s, ok := r.cfg.Substitutes[token]; ok {
		return s
	}
	return token
}

func (r *Resolver) isUSDNumeraire(token common.Address) bool {
	if token == r.cfg.USDT {
		return true
	}
	for _, n := range r.cfg.USDNumeraires {
		if n == token {
			return true
		}
	}
	return false
}

// USD returns the USD value of one unit of token.
func (r *Resolver) USD(ctx context.Context, token common.Address, block *big.Int) decimal.Decimal {
	token = r.Substitute(token)
	price := r.MarketUSD(ctx, token, block)
	if price.IsZero() && r.IsCurveOnly(token) {
		price = r.CurveOnlyPrice(ctx, token, common.Address{}, block)
	}
	if price.IsZero() {
		r.metrics.Unpriced()
		r.logger.Debug("token unpriced", zap.String("token", token.Hex()))
	}
	return price
}

// MarketUSD is USD without the Curve-only oracle fallback.
func (r *Resolver) MarketUSD(ctx context.Context, token common.Address, block *big.Int) decimal.Decimal {
	token = r.Substitute(token)
	if r.isUSDNumeraire(token) {
		return numeric.One
	}
	if price, ok := r.special(ctx, token, block); ok {
		return price
	}
	price := r.TokenAInTokenB(ctx, token, r.cfg.USDT, block)
	if price.IsZero() {
		price = r.direct(ctx, token, r.cfg.USDT, block)
	}
	return price
}

// ETH returns the value of one unit of token in ETH.
func (r *Resolver) ETH(ctx context.Context, token common.Address, block *big.Int) decimal.Decimal {
	return r.TokenAInTokenB(ctx, r.Substitute(token), r.cfg.WETH, block)
}

// BTC returns the value of one unit of token in BTC.
func (r *Resolver) BTC(ctx context.Context, token common.Address, block *big.Int) decimal.Decimal {
	token = r.Substitute(token)
	if token == r.cfg.WBTC {
		return numeric.One
	}
	return r.TokenAInTokenB(ctx, token, r.cfg.WBTC, block)
}

// TokenAInTokenB prices one unit of a in units of b through their ETH
// rates.
func (r *Resolver) TokenAInTokenB(ctx context.Context, a, b common.Address, block *big.Int) decimal.Decimal {
	if a == b {
		return numeric.One
	}
	ethA := r.EthRate(ctx, a, block)
	if ethA.IsZero() {
		return numeric.Zero
	}
	ethB := r.EthRate(ctx, b, block)
	decA := r.meta.Decimals(ctx, a)
	decB := r.meta.Decimals(ctx, b)
	return numeric.Div(ethA, ethB).Shift(int32(decA - decB))
}

// EthRate is the raw WETH/token exchange ratio: classic pairs in factory
// order first, then the concentrated-liquidity quoter when no classic pair
// exists at all. Dust-only pairs give zero.
func (r *Resolver) EthRate(ctx context.Context, token common.Address, block *big.Int) decimal.Decimal {
	if token == r.cfg.WETH {
		return numeric.One
	}
	paired := false
	for _, factory := range r.cfg.PairFactories {
		pair := r.pairAddress(ctx, factory, token, r.cfg.WETH, block)
		if pair == (common.Address{}) {
			continue
		}
		paired = true
		if rate, ok := r.pairRate(ctx, pair, r.cfg.WETH, block); ok {
			return rate
		}
	}
	// the quoter only stands in for tokens without any classic pair
	if paired {
		return numeric.Zero
	}
	return r.quoterRate(ctx, token, r.cfg.WETH, block)
}

// direct prices token straight against numeraire without the ETH hop.
func (r *Resolver) direct(ctx context.Context, token, numeraire common.Address, block *big.Int) decimal.Decimal {
	rate := numeric.Zero
	paired := false
	for _, factory := range r.cfg.PairFactories {
		pair := r.pairAddress(ctx, factory, token, numeraire, block)
		if pair == (common.Address{}) {
			continue
		}
		paired = true
		if v, ok := r.pairRate(ctx, pair, numeraire, block); ok {
			rate = v
			break
		}
	}
	if !paired {
		rate = r.quoterRate(ctx, token, numeraire, block)
	}
	if rate.IsZero() {
		return numeric.Zero
	}
	decT := r.meta.Decimals(ctx, token)
	decN := r.meta.Decimals(ctx, numeraire)
	return rate.Shift(int32(decT - decN))
}

func (r *Resolver) pairAddress(ctx context.Context, factory, a, b common.Address, block *big.Int) common.Address {
	if factory == (common.Address{}) {
		return common.Address{}
	}
	key := pairKey{factory: factory, a: a, b: b}
	if v, ok := r.pairs.Get(key); ok {
		return v.(common.Address)
	}
	pair := r.reader.Call(ctx, &r.abis.PairFactory, factory, "getPair", block, a, b).Address(0)
	// pairs never move once created; misses are retried later
	if pair != (common.Address{}) {
		r.pairs.Add(key, pair)
	}
	return pair
}

// pairRate is reserve(numeraire)/reserve(other), rejected below the dust
// threshold.
func (r *Resolver) pairRate(ctx context.Context, pair, numeraire common.Address, block *big.Int) (decimal.Decimal, bool) {
	reserves := r.reader.Call(ctx, &r.abis.Pair, pair, "getReserves", block)
	token0 := r.reader.Call(ctx, &r.abis.Pair, pair, "token0", block)
	if !reserves.Ok() || !token0.Ok() {
		return numeric.Zero, false
	}
	r0, r1 := reserves.BigInt(0), reserves.BigInt(1)
	if r0.Cmp(r.cfg.DustReserve) < 0 || r1.Cmp(r.cfg.DustReserve) < 0 || r0.Sign() == 0 || r1.Sign() == 0 {
		r.logger.Debug("pair below dust threshold", zap.String("pair", pair.Hex()))
		return numeric.Zero, false
	}
	if token0.Address(0) == numeraire {
		return numeric.Div(numeric.FromBig(r0), numeric.FromBig(r1)), true
	}
	return numeric.Div(numeric.FromBig(r1), numeric.FromBig(r0)), true
}

// quoterRate quotes one whole token against numeraire at the first fee tier
// with a pool. The result is a raw ratio like pairRate.
func (r *Resolver) quoterRate(ctx context.Context, token, numeraire common.Address, block *big.Int) decimal.Decimal {
	if r.cfg.V3Factory == (common.Address{}) || r.cfg.Quoter == (common.Address{}) {
		return numeric.Zero
	}
	for _, fee := range r.cfg.V3Fees {
		feeArg := big.NewInt(fee)
		pool := r.reader.Call(ctx, &r.abis.V3Factory, r.cfg.V3Factory, "getPool", block, token, numeraire, feeArg).Address(0)
		if pool == (common.Address{}) {
			continue
		}
		decimals := r.meta.Decimals(ctx, token)
		amountIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		quote := r.reader.Call(ctx, &r.abis.Quoter, r.cfg.Quoter, "quoteExactInputSingle", block,
			token, numeraire, feeArg, amountIn, new(big.Int))
		// a reverted quote on an existing pool ends the lookup; the next
		// tier is only tried when this one has no pool
		if !quote.Ok() {
			r.logger.Warn("quoter reverted",
				zap.String("token", token.Hex()),
				zap.Int64("fee", fee),
			)
			return numeric.Zero
		}
		return numeric.Div(numeric.FromBig(quote.BigInt(0)), numeric.FromBig(amountIn))
	}
	return numeric.Zero
}

// special prices tokens whose value is an exchange rate over another token.
func (r *Resolver) special(ctx context.Context, token common.Address, block *big.Int) (decimal.Decimal, bool) {
	if underlying, ok := r.cfg.CTokens[token]; ok && underlying != token {
		rate := defaultCTokenRate
		if res := r.reader.Call(ctx, &r.abis.CToken, token, "exchangeRateStored", block); res.Ok() {
			dec := r.meta.Decimals(ctx, underlying)
			rate = numeric.Scaled(res.BigInt(0), 10+dec)
		}
		return rate.Mul(r.USD(ctx, underlying, block)), true
	}
	if underlying, ok := r.cfg.YTokens[token]; ok && underlying != token {
		pps := numeric.One
		if res := r.reader.Call(ctx, &r.abis.YToken, token, "getPricePerFullShare", block); res.Ok() {
			pps = numeric.Scaled(res.BigInt(0), 18)
		}
		return pps.Mul(r.USD(ctx, underlying, block)), true
	}
	if w, ok := r.cfg.LPWrappers[token]; ok && w.Pricing != token {
		vp := numeric.One
		if res := r.reader.Call(ctx, &r.abis.Pool, w.Pool, "get_virtual_price", block); res.Ok() {
			vp = numeric.Scaled(res.BigInt(0), 18)
		}
		return vp.Mul(r.USD(ctx, w.Pricing, block)), true
	}
	if _, ok := r.cfg.ForexOracles[token]; ok {
		return r.ForexUSD(ctx, token, block), true
	}
	return numeric.Zero, false
}

// ForexUSD reads the Chainlink aggregator configured for key (a token or a
// pool). Missing oracles and reverts give 1.
func (r *Resolver) ForexUSD(ctx context.Context, key common.Address, block *big.Int) decimal.Decimal {
	oracle, ok := r.cfg.ForexOracles[key]
	if !ok {
		return numeric.One
	}
	res := r.reader.Call(ctx, &r.abis.Chainlink, oracle, "latestAnswer", block)
	if !res.Ok() {
		r.logger.Warn("forex oracle reverted", zap.String("key", key.Hex()), zap.String("oracle", oracle.Hex()))
		return numeric.One
	}
	return numeric.Scaled(res.BigInt(0), 8)
}

// IsForex reports whether key has a forex oracle.
func (r *Resolver) IsForex(key common.Address) bool {
	_, ok := r.cfg.ForexOracles[key]
	return ok
}

// IsCurveOnly reports whether token is priced through a Curve oracle.
func (r *Resolver) IsCurveOnly(token common.Address) bool {
	_, ok := r.cfg.CurveOnly[token]
	return ok
}

// CurveOnlyPrice prices a Curve-only token from its pricing token and the
// price_oracle of pool (the configured pool when zero).
func (r *Resolver) CurveOnlyPrice(ctx context.Context, token, pool common.Address, block *big.Int) decimal.Decimal {
	info, ok := r.cfg.CurveOnly[token]
	if !ok || info.Pricing == token {
		return numeric.Zero
	}
	if pool == (common.Address{}) {
		pool = info.Pool
	}
	price := r.USD(ctx, info.Pricing, block)

	oracle := numeric.One
	if res := r.reader.Call(ctx, &r.abis.Pool, pool, "price_oracle", block); res.Ok() {
		oracle = numeric.Scaled(res.BigInt(0), 18)
	}
	if !(info.Index == 1 && !oracle.IsZero()) {
		oracle = numeric.Div(numeric.One, oracle)
	}
	return price.Mul(oracle)
}

// Hex is the id form of an address.
func Hex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
