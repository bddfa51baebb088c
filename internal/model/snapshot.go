package model

import "github.com/shopspring/decimal"

// DailyPoolSnapshot holds the reconciled state of a pool for one day.
// Reserves and NormalizedReserves are raw integers kept as decimals.
type DailyPoolSnapshot struct {
	ID        string `json:"id"`
	Pool      string `json:"pool"`
	Timestamp uint64 `json:"timestamp"`

	VirtualPrice       decimal.Decimal   `json:"virtual_price"`
	LpPriceUSD         decimal.Decimal   `json:"lp_price_usd"`
	TVL                decimal.Decimal   `json:"tvl"`
	Reserves           []decimal.Decimal `json:"reserves"`
	NormalizedReserves []decimal.Decimal `json:"normalized_reserves"`
	ReservesUSD        []decimal.Decimal `json:"reserves_usd"`

	A                   decimal.Decimal `json:"a"`
	Fee                 decimal.Decimal `json:"fee"`
	AdminFee            decimal.Decimal `json:"admin_fee"`
	OffPegFeeMultiplier decimal.Decimal `json:"off_peg_fee_multiplier"`
	XcpProfit           decimal.Decimal `json:"xcp_profit"`
	XcpProfitA          decimal.Decimal `json:"xcp_profit_a"`
	BaseApr             decimal.Decimal `json:"base_apr"`
	RebaseApr           decimal.Decimal `json:"rebase_apr"`

	AdminFeesUSD      decimal.Decimal `json:"admin_fees_usd"`
	LpFeesUSD         decimal.Decimal `json:"lp_fees_usd"`
	TotalDailyFeesUSD decimal.Decimal `json:"total_daily_fees_usd"`

	V2Params *V2PoolParams `json:"v2_params,omitempty"`
}

func (s *DailyPoolSnapshot) EntityKind() Kind { return KindDailyPoolSnapshot }
func (s *DailyPoolSnapshot) EntityID() string  { return s.ID }

// V2PoolParams are the crypto pool parameters read in one multicall.
type V2PoolParams struct {
	Gamma               decimal.Decimal `json:"gamma"`
	MidFee              decimal.Decimal `json:"mid_fee"`
	OutFee              decimal.Decimal `json:"out_fee"`
	AllowedExtraProfit  decimal.Decimal `json:"allowed_extra_profit"`
	FeeGamma            decimal.Decimal `json:"fee_gamma"`
	AdjustmentStep      decimal.Decimal `json:"adjustment_step"`
	MaHalfTime          decimal.Decimal `json:"ma_half_time"`
	PriceScale          decimal.Decimal `json:"price_scale"`
	PriceOracle         decimal.Decimal `json:"price_oracle"`
	LastPrices          decimal.Decimal `json:"last_prices"`
	LastPricesTimestamp decimal.Decimal `json:"last_prices_timestamp"`
}

// TokenSnapshot memoizes a token (or pool) USD price for one hour. Rebase
// snapshots reuse the type with a day bucket and a "-rebase" id suffix.
type TokenSnapshot struct {
	ID        string          `json:"id"`
	Token     string          `json:"token"`
	Timestamp uint64          `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

func (s *TokenSnapshot) EntityKind() Kind { return KindTokenSnapshot }
func (s *TokenSnapshot) EntityID() string  { return s.ID }

// PriceFeed is the last swap-implied price of Token0 in Token1 on a pool.
type PriceFeed struct {
	ID           string          `json:"id"`
	Pool         string          `json:"pool"`
	Token0       string          `json:"token0"`
	Token1       string          `json:"token1"`
	FromIndex    int             `json:"from_index"`
	ToIndex      int             `json:"to_index"`
	IsUnderlying bool            `json:"is_underlying"`
	Price        decimal.Decimal `json:"price"`
	LastUpdated  uint64          `json:"last_updated"`
	LastBlock    uint64          `json:"last_block"`
}

func (f *PriceFeed) EntityKind() Kind { return KindPriceFeed }
func (f *PriceFeed) EntityID() string  { return f.ID }
