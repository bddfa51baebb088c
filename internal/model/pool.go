package model

import "github.com/shopspring/decimal"

// PoolType identifies where a pool was discovered.
type PoolType string

const (
	PoolTypeRegistryV1       PoolType = "REGISTRY_V1"
	PoolTypeRegistryV2       PoolType = "REGISTRY_V2"
	PoolTypeStableFactory    PoolType = "STABLE_FACTORY"
	PoolTypeMetapoolFactory  PoolType = "METAPOOL_FACTORY"
	PoolTypeCryptoFactory    PoolType = "CRYPTO_FACTORY"
	PoolTypeTricryptoFactory PoolType = "TRICRYPTO_FACTORY"
	PoolTypeLending          PoolType = "LENDING"
)

// AssetType is the inferred peg category of a pool.
type AssetType int

const (
	AssetTypeUSD    AssetType = 0
	AssetTypeETH    AssetType = 1
	AssetTypeBTC    AssetType = 2
	AssetTypeOther  AssetType = 3
	AssetTypeCrypto AssetType = 4
)

// Pool is a tracked liquidity pool.
//
// Coins, CoinDecimals and CoinNames are parallel and fixed once the pool is
// classified.
type Pool struct {
	ID                string    `json:"id"`
	Address           string    `json:"address"`
	Name              string    `json:"name"`
	Symbol            string    `json:"symbol"`
	LPToken           string    `json:"lp_token"`
	Coins             []string  `json:"coins"`
	CoinDecimals      []int     `json:"coin_decimals"`
	CoinNames         []string  `json:"coin_names"`
	IsV2              bool      `json:"is_v2"`
	Metapool          bool      `json:"metapool"`
	IsRebasing        bool      `json:"is_rebasing"`
	BasePool          string    `json:"base_pool"`
	PoolType          PoolType  `json:"pool_type"`
	AssetType         AssetType `json:"asset_type"`
	CreationBlock     uint64    `json:"creation_block"`
	CreationTimestamp uint64    `json:"creation_timestamp"`
	CreationTx        string    `json:"creation_tx"`

	CumulativeVolume    decimal.Decimal `json:"cumulative_volume"`
	CumulativeVolumeUSD decimal.Decimal `json:"cumulative_volume_usd"`
	CumulativeFeesUSD   decimal.Decimal `json:"cumulative_fees_usd"`
	VirtualPrice        decimal.Decimal `json:"virtual_price"`
	BaseApr             decimal.Decimal `json:"base_apr"`
}

func (p *Pool) EntityKind() Kind { return KindPool }
func (p *Pool) EntityID() string  { return p.ID }

// CoinIndex returns the position of token in the pool's coin list or -1.
func (p *Pool) CoinIndex(token string) int {
	for i, c := range p.Coins {
		if c == token {
			return i
		}
	}
	return -1
}

// BasePool caches the underlying coin set of a metapool's base pool or of a
// lending pool. It is written once after the first successful read.
type BasePool struct {
	ID           string   `json:"id"`
	Coins        []string `json:"coins"`
	CoinDecimals []int    `json:"coin_decimals"`
}

func (b *BasePool) EntityKind() Kind { return KindBasePool }
func (b *BasePool) EntityID() string  { return b.ID }
