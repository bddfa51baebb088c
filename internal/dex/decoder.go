package dex

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"curveVolume/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Events restricts decoding to these event names. Empty decodes all.
	Events []string
}

// Decoder turns raw Curve logs into typed events. It is stateless and safe
// for concurrent use.
type Decoder struct {
	byTopic map[common.Hash]eventSpec
}

// NewDecoder builds a decoder for every known Curve signature.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	specs, err := buildEventSpecs()
	if err != nil {
		return nil, err
	}
	var only map[string]bool
	if len(cfg.Events) > 0 {
		known := make(map[string]bool, len(specs))
		for _, s := range specs {
			known[s.name] = true
		}
		only = make(map[string]bool, len(cfg.Events))
		for _, name := range cfg.Events {
			name = strings.TrimSpace(name)
			if !known[name] {
				return nil, fmt.Errorf("unsupported event name: %s", name)
			}
			only[name] = true
		}
	}

	byTopic := make(map[common.Hash]eventSpec, len(specs))
	for _, s := range specs {
		if only != nil && !only[s.name] {
			continue
		}
		byTopic[s.event.ID] = s
	}
	return &Decoder{byTopic: byTopic}, nil
}

// Topics returns every topic0 the decoder accepts, for log filters.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.byTopic))
	for topic := range d.byTopic {
		out = append(out, topic)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.byTopic[common.HexToHash(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	spec, ok := d.byTopic[common.HexToHash(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}

	values, err := unpackAll(spec.event, log.Topics, log.Data)
	if err != nil {
		return nil, err
	}
	decoded, err := spec.payload(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.name, err)
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      strings.ToLower(log.TxHash),
		TxIndex:     log.TxIndex,
		LogIndex:    log.LogIndex,
		Address:     model.NormalizeAddress(log.Address),
		EventName:   spec.name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func unpackAll(event abi.Event, topics []string, dataHex string) (map[string]interface{}, error) {
	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(event.Inputs))
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexed, hashes); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
	}
	data, err := hexutil.Decode(normalizeHex(dataHex))
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func normalizeHex(s string) string {
	if s == "" {
		return "0x"
	}
	return s
}

func (s eventSpec) payload(v map[string]interface{}) (interface{}, error) {
	switch s.layout {
	case layoutAddressProvider:
		addr, ok := v["addr"]
		if !ok {
			addr = v["new_address"]
		}
		return model.AddressProviderEventData{
			ID:      bigString(v["id"]),
			Address: addressString(addr),
		}, nil
	case layoutPoolAdded:
		return model.PoolAddedEventData{Pool: addressString(v["pool"])}, nil
	case layoutPlainPoolDeployed:
		coins, err := addressList(v["coins"])
		if err != nil {
			return nil, err
		}
		return model.PlainPoolDeployedEventData{
			Coins:    coins,
			A:        bigString(v["A"]),
			Fee:      bigString(v["fee"]),
			Deployer: addressString(v["deployer"]),
		}, nil
	case layoutMetaPoolDeployed:
		return model.MetaPoolDeployedEventData{
			Coin:     addressString(v["coin"]),
			BasePool: addressString(v["base_pool"]),
			A:        bigString(v["A"]),
			Fee:      bigString(v["fee"]),
			Deployer: addressString(v["deployer"]),
		}, nil
	case layoutCryptoPoolDeployed:
		coins, err := addressList(v["coins"])
		if err != nil {
			return nil, err
		}
		return model.CryptoPoolDeployedEventData{
			Token:    addressString(v["token"]),
			Coins:    coins,
			Deployer: addressString(v["deployer"]),
		}, nil
	case layoutTricryptoPoolDeployed:
		coins, err := addressList(v["coins"])
		if err != nil {
			return nil, err
		}
		name, _ := v["name"].(string)
		symbol, _ := v["symbol"].(string)
		return model.TricryptoPoolDeployedEventData{
			Pool:   addressString(v["pool"]),
			Name:   name,
			Symbol: symbol,
			Coins:  coins,
		}, nil
	case layoutExchange:
		return model.TokenExchangeEventData{
			Buyer:        addressString(v["buyer"]),
			SoldID:       bigString(v["sold_id"]),
			TokensSold:   bigString(v["tokens_sold"]),
			BoughtID:     bigString(v["bought_id"]),
			TokensBought: bigString(v["tokens_bought"]),
			Underlying:   s.underlying,
		}, nil
	case layoutLiquidity:
		amounts, err := bigList(v["token_amounts"])
		if err != nil {
			return nil, err
		}
		return model.LiquidityEventData{
			Provider:     addressString(v["provider"]),
			TokenAmounts: amounts,
			TokenSupply:  bigString(v["token_supply"]),
			Removal:      s.removal,
		}, nil
	case layoutRemoveOne:
		index := -1
		if raw, ok := v["coin_index"]; ok {
			b, _ := raw.(*big.Int)
			if b == nil || !b.IsInt64() || b.Int64() > 255 {
				return nil, fmt.Errorf("coin index out of range: %v", raw)
			}
			index = int(b.Int64())
		}
		return model.RemoveLiquidityOneEventData{
			Provider:    addressString(v["provider"]),
			TokenAmount: bigString(v["token_amount"]),
			CoinIndex:   index,
			CoinAmount:  bigString(v["coin_amount"]),
		}, nil
	case layoutTokenRebased:
		return model.TokenRebasedEventData{
			ReportTimestamp: bigString(v["reportTimestamp"]),
			TimeElapsed:     bigString(v["timeElapsed"]),
			PreTotalShares:  bigString(v["preTotalShares"]),
			PreTotalEther:   bigString(v["preTotalEther"]),
			PostTotalShares: bigString(v["postTotalShares"]),
			PostTotalEther:  bigString(v["postTotalEther"]),
		}, nil
	case layoutReward:
		return model.RewardEventData{Amount: bigString(v["amount"])}, nil
	case layoutRatioUpdate:
		return model.RatioUpdateEventData{NewRatio: bigString(v["newRatio"])}, nil
	default:
		return nil, fmt.Errorf("unsupported layout %d", s.layout)
	}
}

func bigString(v interface{}) string {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return "0"
		}
		return t.String()
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprintf("%d", t)
	default:
		return "0"
	}
}

func addressString(v interface{}) string {
	switch t := v.(type) {
	case common.Address:
		return strings.ToLower(t.Hex())
	case *common.Address:
		if t == nil {
			return ""
		}
		return strings.ToLower(t.Hex())
	default:
		return ""
	}
}

// addressList flattens a fixed address array, dropping zero padding.
func addressList(v interface{}) ([]string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array && rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("unsupported address list type %T", v)
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		addr, ok := rv.Index(i).Interface().(common.Address)
		if !ok {
			return nil, fmt.Errorf("unsupported address type %T", rv.Index(i).Interface())
		}
		if addr == (common.Address{}) {
			continue
		}
		out = append(out, strings.ToLower(addr.Hex()))
	}
	return out, nil
}

func bigList(v interface{}) ([]string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array && rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("unsupported amount list type %T", v)
	}
	out := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = bigString(rv.Index(i).Interface())
	}
	return out, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
