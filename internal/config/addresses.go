package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"curveVolume/internal/pricing"
	"curveVolume/internal/processor"
	"curveVolume/internal/rebase"
	"curveVolume/internal/registry"
	"curveVolume/internal/snapshot"
	"curveVolume/internal/valuation"
)

// AddressBook is the per-deployment address tables and numeric policies,
// read from the "addresses" and "policy" sections of the config file.
type AddressBook struct {
	Multicall       common.Address
	AddressProvider common.Address

	Pricing   pricing.Config
	Registry  registry.Config
	Valuation valuation.Config
	Rebase    rebase.Config
	Snapshot  snapshot.Config
	Processor processor.Config
}

type rawLPWrapper struct {
	Pool    string `mapstructure:"pool"`
	Pricing string `mapstructure:"pricing"`
}

type rawCurveOnly struct {
	Pricing string `mapstructure:"pricing"`
	Pool    string `mapstructure:"pool"`
	Index   int    `mapstructure:"index"`
}

type rawSingleAsset struct {
	Pool  string `mapstructure:"pool"`
	Token string `mapstructure:"token"`
}

type rawLido struct {
	Pools   []string `mapstructure:"pools"`
	Token   string   `mapstructure:"token"`
	Oracle  string   `mapstructure:"oracle"`
	Cutover uint64   `mapstructure:"cutover"`
	Fee     string   `mapstructure:"fee"`
}

type rawRebase struct {
	Lido      rawLido        `mapstructure:"lido"`
	AavePools []string       `mapstructure:"aave_pools"`
	YCPools   []string       `mapstructure:"yc_pools"`
	Usdn      rawSingleAsset `mapstructure:"usdn"`
	Aeth      rawSingleAsset `mapstructure:"aeth"`
}

type rawAddresses struct {
	Multicall       string `mapstructure:"multicall"`
	AddressProvider string `mapstructure:"address_provider"`

	WETH          string   `mapstructure:"weth"`
	USDT          string   `mapstructure:"usdt"`
	WBTC          string   `mapstructure:"wbtc"`
	USDNumeraires []string `mapstructure:"usd_numeraires"`
	PairFactories []string `mapstructure:"pair_factories"`
	V3Factory     string   `mapstructure:"v3_factory"`
	Quoter        string   `mapstructure:"quoter"`
	V3Fees        []int64  `mapstructure:"v3_fees"`

	Substitutes  map[string]string       `mapstructure:"substitutes"`
	CTokens      map[string]string       `mapstructure:"ctokens"`
	YTokens      map[string]string       `mapstructure:"ytokens"`
	LPWrappers   map[string]rawLPWrapper `mapstructure:"lp_wrappers"`
	ForexOracles map[string]string       `mapstructure:"forex_oracles"`
	CurveOnly    map[string]rawCurveOnly `mapstructure:"curve_only"`

	UnknownMetapools        map[string]string `mapstructure:"unknown_metapools"`
	LendingPools            []string          `mapstructure:"lending_pools"`
	EarlyV2Pools            []string          `mapstructure:"early_v2_pools"`
	RebasingImplementations []string          `mapstructure:"rebasing_implementations"`
	MetapoolFactory         string            `mapstructure:"metapool_factory"`
	TricryptoIDs            []uint64          `mapstructure:"tricrypto_ids"`

	ScamPools        []string          `mapstructure:"scam_pools"`
	DeprecatedPools  map[string]uint64 `mapstructure:"deprecated_pools"`
	YCLendingTokens  []string          `mapstructure:"yc_lending_tokens"`
	Metatokens       map[string]string `mapstructure:"metatokens"`
	BenchmarkStables []string          `mapstructure:"benchmark_stables"`

	Rebase rawRebase `mapstructure:"rebase"`
}

type rawPolicy struct {
	AprCeiling       string            `mapstructure:"apr_ceiling"`
	VolumeUSDCeiling string            `mapstructure:"volume_usd_ceiling"`
	PriceFeedCeiling string            `mapstructure:"price_feed_ceiling"`
	DustReserve      string            `mapstructure:"dust_reserve"`
	LookbackWindow   int               `mapstructure:"lookback_window"`
	PairCacheSize    int               `mapstructure:"pair_cache_size"`
	MaxCoins         int               `mapstructure:"max_coins"`
	FeeSplit         map[string]string `mapstructure:"fee_split"`
}

// addrParser collects the first malformed address instead of failing on
// every call site.
type addrParser struct {
	err error
}

func (p *addrParser) one(field, value string) common.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		if p.err == nil {
			p.err = fmt.Errorf("addresses.%s: invalid address %q", field, value)
		}
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *addrParser) list(field string, values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for _, value := range values {
		if addr := p.one(field, value); addr != (common.Address{}) {
			out = append(out, addr)
		}
	}
	return out
}

func (p *addrParser) set(field string, values []string) map[common.Address]bool {
	out := make(map[common.Address]bool, len(values))
	for _, addr := range p.list(field, values) {
		out[addr] = true
	}
	return out
}

func (p *addrParser) pairs(field string, values map[string]string) map[common.Address]common.Address {
	out := make(map[common.Address]common.Address, len(values))
	for k, v := range values {
		out[p.one(field, k)] = p.one(field, v)
	}
	return out
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("policy.%s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("policy.%s: must not be negative", field)
	}
	return d, nil
}

// LoadAddressBook reads the address tables and policies from v. Zero-valued
// policies fall back to each component's default.
func LoadAddressBook(v *viper.Viper) (AddressBook, error) {
	var raw rawAddresses
	if err := v.UnmarshalKey("addresses", &raw); err != nil {
		return AddressBook{}, fmt.Errorf("decode addresses: %w", err)
	}
	var pol rawPolicy
	if err := v.UnmarshalKey("policy", &pol); err != nil {
		return AddressBook{}, fmt.Errorf("decode policy: %w", err)
	}

	p := &addrParser{}
	book := AddressBook{
		Multicall:       p.one("multicall", raw.Multicall),
		AddressProvider: p.one("address_provider", raw.AddressProvider),
	}

	cTokens := p.pairs("ctokens", raw.CTokens)
	cTokenSet := make(map[common.Address]bool, len(cTokens))
	for token := range cTokens {
		cTokenSet[token] = true
	}

	book.Pricing = pricing.Config{
		WETH:          p.one("weth", raw.WETH),
		USDT:          p.one("usdt", raw.USDT),
		WBTC:          p.one("wbtc", raw.WBTC),
		USDNumeraires: p.list("usd_numeraires", raw.USDNumeraires),
		PairFactories: p.list("pair_factories", raw.PairFactories),
		V3Factory:     p.one("v3_factory", raw.V3Factory),
		Quoter:        p.one("quoter", raw.Quoter),
		V3Fees:        raw.V3Fees,
		Substitutes:   p.pairs("substitutes", raw.Substitutes),
		CTokens:       cTokens,
		YTokens:       p.pairs("ytokens", raw.YTokens),
		ForexOracles:  p.pairs("forex_oracles", raw.ForexOracles),
		LPWrappers:    make(map[common.Address]pricing.LPWrapper, len(raw.LPWrappers)),
		CurveOnly:     make(map[common.Address]pricing.CurveOnlyToken, len(raw.CurveOnly)),
		PairCacheSize: pol.PairCacheSize,
	}
	for token, w := range raw.LPWrappers {
		book.Pricing.LPWrappers[p.one("lp_wrappers", token)] = pricing.LPWrapper{
			Pool:    p.one("lp_wrappers.pool", w.Pool),
			Pricing: p.one("lp_wrappers.pricing", w.Pricing),
		}
	}
	for token, c := range raw.CurveOnly {
		book.Pricing.CurveOnly[p.one("curve_only", token)] = pricing.CurveOnlyToken{
			Pricing: p.one("curve_only.pricing", c.Pricing),
			Pool:    p.one("curve_only.pool", c.Pool),
			Index:   c.Index,
		}
	}
	if pol.DustReserve != "" {
		dust, ok := new(big.Int).SetString(strings.TrimSpace(pol.DustReserve), 10)
		if !ok || dust.Sign() < 0 {
			return AddressBook{}, fmt.Errorf("policy.dust_reserve: invalid integer %q", pol.DustReserve)
		}
		book.Pricing.DustReserve = dust
	}

	book.Registry = registry.Config{
		UnknownMetapools:        p.pairs("unknown_metapools", raw.UnknownMetapools),
		LendingPools:            p.set("lending_pools", raw.LendingPools),
		EarlyV2Pools:            p.set("early_v2_pools", raw.EarlyV2Pools),
		RebasingImplementations: p.set("rebasing_implementations", raw.RebasingImplementations),
		MetapoolFactory:         p.one("metapool_factory", raw.MetapoolFactory),
		TricryptoIDs:            raw.TricryptoIDs,
		MaxCoins:                pol.MaxCoins,
	}

	priceCeiling, err := parseDecimal("price_feed_ceiling", pol.PriceFeedCeiling)
	if err != nil {
		return AddressBook{}, err
	}
	book.Valuation = valuation.Config{
		ScamPools:        p.set("scam_pools", raw.ScamPools),
		YCLendingTokens:  p.set("yc_lending_tokens", raw.YCLendingTokens),
		Metatokens:       p.pairs("metatokens", raw.Metatokens),
		BenchmarkStables: p.set("benchmark_stables", raw.BenchmarkStables),
		PriceFeedCeiling: priceCeiling,
	}

	lidoFee, err := parseDecimal("rebase.lido.fee", raw.Rebase.Lido.Fee)
	if err != nil {
		return AddressBook{}, err
	}
	book.Rebase = rebase.Config{
		Lido: rebase.LidoConfig{
			Pools:   p.set("rebase.lido.pools", raw.Rebase.Lido.Pools),
			Token:   p.one("rebase.lido.token", raw.Rebase.Lido.Token),
			Oracle:  p.one("rebase.lido.oracle", raw.Rebase.Lido.Oracle),
			Cutover: raw.Rebase.Lido.Cutover,
			Fee:     lidoFee,
		},
		AavePools: p.set("rebase.aave_pools", raw.Rebase.AavePools),
		YCPools:   p.set("rebase.yc_pools", raw.Rebase.YCPools),
		Usdn: rebase.SingleAsset{
			Pool:  p.one("rebase.usdn.pool", raw.Rebase.Usdn.Pool),
			Token: p.one("rebase.usdn.token", raw.Rebase.Usdn.Token),
		},
		Aeth: rebase.SingleAsset{
			Pool:  p.one("rebase.aeth.pool", raw.Rebase.Aeth.Pool),
			Token: p.one("rebase.aeth.token", raw.Rebase.Aeth.Token),
		},
	}

	aprCeiling, err := parseDecimal("apr_ceiling", pol.AprCeiling)
	if err != nil {
		return AddressBook{}, err
	}
	book.Snapshot = snapshot.Config{
		AprCeiling:      aprCeiling,
		FeeSplits:       make(map[common.Address]snapshot.FeeSplit, len(pol.FeeSplit)),
		DeprecatedPools: make(map[common.Address]uint64, len(raw.DeprecatedPools)),
		CTokens:         cTokenSet,
	}
	for pool, mode := range pol.FeeSplit {
		split := snapshot.FeeSplit(strings.ToLower(strings.TrimSpace(mode)))
		if split != snapshot.FeeSplitOnchain && split != snapshot.FeeSplitFixedHalf {
			return AddressBook{}, fmt.Errorf("policy.fee_split: unknown mode %q for %s", mode, pool)
		}
		book.Snapshot.FeeSplits[p.one("fee_split", pool)] = split
	}
	for pool, ts := range raw.DeprecatedPools {
		book.Snapshot.DeprecatedPools[p.one("deprecated_pools", pool)] = ts
	}

	volumeCeiling, err := parseDecimal("volume_usd_ceiling", pol.VolumeUSDCeiling)
	if err != nil {
		return AddressBook{}, err
	}
	book.Processor = processor.Config{
		AddressProvider:  book.AddressProvider,
		LookbackWindow:   pol.LookbackWindow,
		VolumeCeiling:    volumeCeiling,
		PriceFeedCeiling: priceCeiling,
		CTokens:          cTokenSet,
		Rebase:           book.Rebase,
	}

	if p.err != nil {
		return AddressBook{}, p.err
	}
	return book, nil
}
