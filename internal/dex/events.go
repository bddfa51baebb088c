package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"curveVolume/internal/model"
)

// eventLayout tells the decoder how to map an event's arguments onto a
// typed payload.
type eventLayout int

const (
	layoutAddressProvider eventLayout = iota
	layoutPoolAdded
	layoutPlainPoolDeployed
	layoutMetaPoolDeployed
	layoutCryptoPoolDeployed
	layoutTricryptoPoolDeployed
	layoutExchange
	layoutLiquidity
	layoutRemoveOne
	layoutTokenRebased
	layoutReward
	layoutRatioUpdate
)

// eventSpec is one concrete event signature. Curve emits the same event
// name with different argument types per pool family, so several specs can
// share a name.
type eventSpec struct {
	name       string
	event      abi.Event
	layout     eventLayout
	underlying bool
	removal    bool
}

type argDef struct {
	name    string
	typ     string
	indexed bool
}

func newEvent(name string, defs ...argDef) (abi.Event, error) {
	args := make(abi.Arguments, 0, len(defs))
	for _, d := range defs {
		t, err := abi.NewType(d.typ, "", nil)
		if err != nil {
			return abi.Event{}, fmt.Errorf("event %s arg %s: %w", name, d.name, err)
		}
		args = append(args, abi.Argument{Name: d.name, Type: t, Indexed: d.indexed})
	}
	return abi.NewEvent(name, name, false, args), nil
}

func arrayOf(n int) string {
	return fmt.Sprintf("uint256[%d]", n)
}

// buildEventSpecs lists every signature the decoder understands.
func buildEventSpecs() ([]eventSpec, error) {
	var specs []eventSpec
	add := func(name string, layout eventLayout, underlying, removal bool, defs ...argDef) error {
		ev, err := newEvent(name, defs...)
		if err != nil {
			return err
		}
		specs = append(specs, eventSpec{name: name, event: ev, layout: layout, underlying: underlying, removal: removal})
		return nil
	}

	steps := []func() error{
		func() error {
			return add(model.EventNewAddressIdentifier, layoutAddressProvider, false, false,
				argDef{"id", "uint256", true}, argDef{"addr", "address", false}, argDef{"description", "string", false})
		},
		func() error {
			return add(model.EventAddressModified, layoutAddressProvider, false, false,
				argDef{"id", "uint256", true}, argDef{"new_address", "address", false}, argDef{"version", "uint256", false})
		},
		func() error {
			return add(model.EventPoolAdded, layoutPoolAdded, false, false,
				argDef{"pool", "address", true}, argDef{"rate_method_id", "bytes", false})
		},
		func() error {
			return add(model.EventPoolAdded, layoutPoolAdded, false, false, argDef{"pool", "address", true})
		},
		func() error {
			return add(model.EventPlainPoolDeployed, layoutPlainPoolDeployed, false, false,
				argDef{"coins", "address[4]", false}, argDef{"A", "uint256", false},
				argDef{"fee", "uint256", false}, argDef{"deployer", "address", false})
		},
		func() error {
			return add(model.EventMetaPoolDeployed, layoutMetaPoolDeployed, false, false,
				argDef{"coin", "address", false}, argDef{"base_pool", "address", false},
				argDef{"A", "uint256", false}, argDef{"fee", "uint256", false}, argDef{"deployer", "address", false})
		},
		func() error {
			return add(model.EventCryptoPoolDeployed, layoutCryptoPoolDeployed, false, false,
				argDef{"token", "address", false}, argDef{"coins", "address[2]", false},
				argDef{"A", "uint256", false}, argDef{"gamma", "uint256", false},
				argDef{"mid_fee", "uint256", false}, argDef{"out_fee", "uint256", false},
				argDef{"allowed_extra_profit", "uint256", false}, argDef{"fee_gamma", "uint256", false},
				argDef{"adjustment_step", "uint256", false}, argDef{"admin_fee", "uint256", false},
				argDef{"ma_half_time", "uint256", false}, argDef{"initial_price", "uint256", false},
				argDef{"deployer", "address", false})
		},
		func() error {
			return add(model.EventTricryptoPoolDeployed, layoutTricryptoPoolDeployed, false, false,
				argDef{"pool", "address", false}, argDef{"name", "string", false},
				argDef{"symbol", "string", false}, argDef{"weth", "address", false},
				argDef{"coins", "address[3]", false}, argDef{"math", "address", false},
				argDef{"salt", "bytes32", false}, argDef{"packed_precisions", "uint256", false},
				argDef{"packed_A_gamma", "uint256", false}, argDef{"packed_fee_params", "uint256", false},
				argDef{"packed_rebalancing_params", "uint256", false}, argDef{"packed_prices", "uint256", false},
				argDef{"deployer", "address", false})
		},
		func() error {
			return add(model.EventTokenExchange, layoutExchange, false, false,
				argDef{"buyer", "address", true}, argDef{"sold_id", "int128", false},
				argDef{"tokens_sold", "uint256", false}, argDef{"bought_id", "int128", false},
				argDef{"tokens_bought", "uint256", false})
		},
		func() error {
			return add(model.EventTokenExchange, layoutExchange, false, false,
				argDef{"buyer", "address", true}, argDef{"sold_id", "uint256", false},
				argDef{"tokens_sold", "uint256", false}, argDef{"bought_id", "uint256", false},
				argDef{"tokens_bought", "uint256", false})
		},
		func() error {
			return add(model.EventTokenExchangeUnderlying, layoutExchange, true, false,
				argDef{"buyer", "address", true}, argDef{"sold_id", "int128", false},
				argDef{"tokens_sold", "uint256", false}, argDef{"bought_id", "int128", false},
				argDef{"tokens_bought", "uint256", false})
		},
		func() error {
			return add(model.EventRemoveLiquidityOne, layoutRemoveOne, false, true,
				argDef{"provider", "address", true}, argDef{"token_amount", "uint256", false},
				argDef{"coin_index", "uint256", false}, argDef{"coin_amount", "uint256", false})
		},
		func() error {
			return add(model.EventRemoveLiquidityOne, layoutRemoveOne, false, true,
				argDef{"provider", "address", true}, argDef{"token_amount", "uint256", false},
				argDef{"coin_amount", "uint256", false})
		},
		func() error {
			return add(model.EventTokenRebased, layoutTokenRebased, false, false,
				argDef{"reportTimestamp", "uint256", true}, argDef{"timeElapsed", "uint256", false},
				argDef{"preTotalShares", "uint256", false}, argDef{"preTotalEther", "uint256", false},
				argDef{"postTotalShares", "uint256", false}, argDef{"postTotalEther", "uint256", false},
				argDef{"sharesMintedAsFees", "uint256", false})
		},
		func() error {
			return add(model.EventReward, layoutReward, false, false, argDef{"amount", "uint256", false})
		},
		func() error {
			return add(model.EventRatioUpdate, layoutRatioUpdate, false, false, argDef{"newRatio", "uint256", false})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	for _, n := range []int{2, 3, 4} {
		amounts := arrayOf(n)
		liquidity := []struct {
			name    string
			removal bool
			defs    []argDef
		}{
			// stableswap
			{model.EventAddLiquidity, false, []argDef{{"provider", "address", true}, {"token_amounts", amounts, false},
				{"fees", amounts, false}, {"invariant", "uint256", false}, {"token_supply", "uint256", false}}},
			{model.EventRemoveLiquidity, true, []argDef{{"provider", "address", true}, {"token_amounts", amounts, false},
				{"fees", amounts, false}, {"token_supply", "uint256", false}}},
			{model.EventRemoveLiquidityImbalance, true, []argDef{{"provider", "address", true}, {"token_amounts", amounts, false},
				{"fees", amounts, false}, {"invariant", "uint256", false}, {"token_supply", "uint256", false}}},
			// cryptoswap
			{model.EventAddLiquidity, false, []argDef{{"provider", "address", true}, {"token_amounts", amounts, false},
				{"fee", "uint256", false}, {"token_supply", "uint256", false}}},
			{model.EventRemoveLiquidity, true, []argDef{{"provider", "address", true}, {"token_amounts", amounts, false},
				{"token_supply", "uint256", false}}},
		}
		for _, l := range liquidity {
			if err := add(l.name, layoutLiquidity, false, l.removal, l.defs...); err != nil {
				return nil, err
			}
		}
	}
	return specs, nil
}
