package model

// Event names carried by TypedEvent.EventName.
const (
	EventNewAddressIdentifier     = "NewAddressIdentifier"
	EventAddressModified          = "AddressModified"
	EventPoolAdded                = "PoolAdded"
	EventPlainPoolDeployed        = "PlainPoolDeployed"
	EventMetaPoolDeployed         = "MetaPoolDeployed"
	EventCryptoPoolDeployed       = "CryptoPoolDeployed"
	EventTricryptoPoolDeployed    = "TricryptoPoolDeployed"
	EventTokenExchange            = "TokenExchange"
	EventTokenExchangeUnderlying  = "TokenExchangeUnderlying"
	EventAddLiquidity             = "AddLiquidity"
	EventRemoveLiquidity          = "RemoveLiquidity"
	EventRemoveLiquidityImbalance = "RemoveLiquidityImbalance"
	EventRemoveLiquidityOne       = "RemoveLiquidityOne"
	EventTokenRebased             = "TokenRebased"
	EventReward                   = "Reward"
	EventRatioUpdate              = "RatioUpdate"
	EventAddExistingMetaPools     = "AddExistingMetaPools"
)

// AddressProviderEventData covers NewAddressIdentifier and AddressModified.
type AddressProviderEventData struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// PoolAddedEventData is a registry PoolAdded payload.
type PoolAddedEventData struct {
	Pool string `json:"pool"`
}

// PlainPoolDeployedEventData is a stable factory plain pool deployment.
type PlainPoolDeployedEventData struct {
	Coins    []string `json:"coins"`
	A        string   `json:"a"`
	Fee      string   `json:"fee"`
	Deployer string   `json:"deployer"`
}

// MetaPoolDeployedEventData is a stable factory metapool deployment.
type MetaPoolDeployedEventData struct {
	Coin     string `json:"coin"`
	BasePool string `json:"base_pool"`
	A        string `json:"a"`
	Fee      string `json:"fee"`
	Deployer string `json:"deployer"`
}

// CryptoPoolDeployedEventData is a crypto factory deployment. Token is the
// LP token; the pool address is recovered from the factory.
type CryptoPoolDeployedEventData struct {
	Token    string   `json:"token"`
	Coins    []string `json:"coins"`
	Deployer string   `json:"deployer"`
}

// TricryptoPoolDeployedEventData carries the deployed pool directly.
type TricryptoPoolDeployedEventData struct {
	Pool   string   `json:"pool"`
	Name   string   `json:"name"`
	Symbol string   `json:"symbol"`
	Coins  []string `json:"coins"`
}

// TokenExchangeEventData is a swap payload. Indices and amounts are decimal
// strings.
type TokenExchangeEventData struct {
	Buyer        string `json:"buyer"`
	SoldID       string `json:"sold_id"`
	TokensSold   string `json:"tokens_sold"`
	BoughtID     string `json:"bought_id"`
	TokensBought string `json:"tokens_bought"`
	Underlying   bool   `json:"underlying"`
}

// LiquidityEventData covers AddLiquidity, RemoveLiquidity and
// RemoveLiquidityImbalance.
type LiquidityEventData struct {
	Provider     string   `json:"provider"`
	TokenAmounts []string `json:"token_amounts"`
	TokenSupply  string   `json:"token_supply"`
	Removal      bool     `json:"removal"`
}

// RemoveLiquidityOneEventData is a single-coin withdrawal. CoinIndex is -1
// when the pool's event does not carry it.
type RemoveLiquidityOneEventData struct {
	Provider    string `json:"provider"`
	TokenAmount string `json:"token_amount"`
	CoinIndex   int    `json:"coin_index"`
	CoinAmount  string `json:"coin_amount"`
}

// TokenRebasedEventData is the Lido share-rate report.
type TokenRebasedEventData struct {
	ReportTimestamp string `json:"report_timestamp"`
	TimeElapsed     string `json:"time_elapsed"`
	PreTotalShares  string `json:"pre_total_shares"`
	PreTotalEther   string `json:"pre_total_ether"`
	PostTotalShares string `json:"post_total_shares"`
	PostTotalEther  string `json:"post_total_ether"`
}

// RewardEventData is a USDN reward distribution.
type RewardEventData struct {
	Amount string `json:"amount"`
}

// RatioUpdateEventData is an AETH ratio update.
type RatioUpdateEventData struct {
	NewRatio string `json:"new_ratio"`
}

// AddExistingMetaPoolsData lists pools bulk-added to a factory without
// deployment events.
type AddExistingMetaPoolsData struct {
	Pools []string `json:"pools"`
}
