package model

import "github.com/shopspring/decimal"

// SwapEvent is an append-only trade record.
type SwapEvent struct {
	ID              string          `json:"id"`
	Pool            string          `json:"pool"`
	Block           uint64          `json:"block"`
	Timestamp       uint64          `json:"timestamp"`
	Tx              string          `json:"tx"`
	LogIndex        uint64          `json:"log_index"`
	Buyer           string          `json:"buyer"`
	TokenSold       string          `json:"token_sold"`
	TokenBought     string          `json:"token_bought"`
	AmountSold      decimal.Decimal `json:"amount_sold"`
	AmountBought    decimal.Decimal `json:"amount_bought"`
	AmountSoldUSD   decimal.Decimal `json:"amount_sold_usd"`
	AmountBoughtUSD decimal.Decimal `json:"amount_bought_usd"`
	IsUnderlying    bool            `json:"is_underlying"`
}

func (e *SwapEvent) EntityKind() Kind { return KindSwapEvent }
func (e *SwapEvent) EntityID() string  { return e.ID }

// LiquidityEvent is an append-only deposit or withdrawal record.
// TokenAmounts are raw integers in pool coin order.
type LiquidityEvent struct {
	ID                string            `json:"id"`
	Pool              string            `json:"pool"`
	Block             uint64            `json:"block"`
	Timestamp         uint64            `json:"timestamp"`
	Tx                string            `json:"tx"`
	LogIndex          uint64            `json:"log_index"`
	LiquidityProvider string            `json:"liquidity_provider"`
	TokenAmounts      []decimal.Decimal `json:"token_amounts"`
	Removal           bool              `json:"removal"`
	VolumeUSD         decimal.Decimal   `json:"volume_usd"`
}

func (e *LiquidityEvent) EntityKind() Kind { return KindLiquidityEvent }
func (e *LiquidityEvent) EntityID() string  { return e.ID }

// Candle is an OHLC bucket for an order-normalized token pair. Price is
// always Token0 per Token1 with Token0 < Token1.
type Candle struct {
	ID                string          `json:"id"`
	Pool              string          `json:"pool"`
	Timestamp         uint64          `json:"timestamp"`
	Period            uint64          `json:"period"`
	Token0            string          `json:"token0"`
	Token1            string          `json:"token1"`
	Open              decimal.Decimal `json:"open"`
	High              decimal.Decimal `json:"high"`
	Low               decimal.Decimal `json:"low"`
	Close             decimal.Decimal `json:"close"`
	Token0TotalAmount decimal.Decimal `json:"token0_total_amount"`
	Token1TotalAmount decimal.Decimal `json:"token1_total_amount"`
	Txs               uint64          `json:"txs"`
	LastBlock         uint64          `json:"last_block"`
}

func (c *Candle) EntityKind() Kind { return KindCandle }
func (c *Candle) EntityID() string  { return c.ID }

// SwapVolumeSnapshot accumulates swap volume for one pool and period.
type SwapVolumeSnapshot struct {
	ID              string          `json:"id"`
	Pool            string          `json:"pool"`
	Period          uint64          `json:"period"`
	Timestamp       uint64          `json:"timestamp"`
	AmountSold      decimal.Decimal `json:"amount_sold"`
	AmountBought    decimal.Decimal `json:"amount_bought"`
	AmountSoldUSD   decimal.Decimal `json:"amount_sold_usd"`
	AmountBoughtUSD decimal.Decimal `json:"amount_bought_usd"`
	Volume          decimal.Decimal `json:"volume"`
	VolumeUSD       decimal.Decimal `json:"volume_usd"`
	Count           uint64          `json:"count"`
}

func (s *SwapVolumeSnapshot) EntityKind() Kind { return KindSwapVolumeSnapshot }
func (s *SwapVolumeSnapshot) EntityID() string  { return s.ID }

// LiquidityVolumeSnapshot accumulates liquidity changes for one pool and
// period. Amounts are decimal-normalized per coin.
type LiquidityVolumeSnapshot struct {
	ID            string            `json:"id"`
	Pool          string            `json:"pool"`
	Period        uint64            `json:"period"`
	Timestamp     uint64            `json:"timestamp"`
	AmountAdded   []decimal.Decimal `json:"amount_added"`
	AmountRemoved []decimal.Decimal `json:"amount_removed"`
	AddCount      uint64            `json:"add_count"`
	RemoveCount   uint64            `json:"remove_count"`
	VolumeUSD     decimal.Decimal   `json:"volume_usd"`
}

func (s *LiquidityVolumeSnapshot) EntityKind() Kind { return KindLiquidityVolumeSnapshot }
func (s *LiquidityVolumeSnapshot) EntityID() string  { return s.ID }
