package dex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func view(name, inputs, output string) string {
	in := ""
	if inputs != "" {
		in = fmt.Sprintf(`{"name":"arg0","type":%q}`, inputs)
	}
	return fmt.Sprintf(`{"inputs":[%s],"name":%q,"outputs":[{"name":"","type":%q}],"stateMutability":"view","type":"function"}`,
		in, name, output)
}

func abiJSON(entries ...string) string {
	return "[" + strings.Join(entries, ",") + "]"
}

// v2ParamMethods are read in one batch for crypto pool snapshots, in
// snapshot field order.
var v2ParamMethods = []string{
	"gamma",
	"mid_fee",
	"out_fee",
	"allowed_extra_profit",
	"fee_gamma",
	"adjustment_step",
	"ma_half_time",
	"price_scale",
	"price_oracle",
	"last_prices",
	"last_prices_timestamp",
}

// V2ParamMethods returns the crypto pool parameter getters.
func V2ParamMethods() []string {
	return append([]string(nil), v2ParamMethods...)
}

func poolABIJSON(index string) string {
	entries := []string{
		view("coins", index, "address"),
		view("underlying_coins", index, "address"),
		view("balances", index, "uint256"),
		view("get_virtual_price", "", "uint256"),
		view("fee", "", "uint256"),
		view("admin_fee", "", "uint256"),
		view("A", "", "uint256"),
		view("offpeg_fee_multiplier", "", "uint256"),
		view("xcp_profit", "", "uint256"),
		view("xcp_profit_a", "", "uint256"),
		view("base_pool", "", "address"),
		view("lp_token", "", "address"),
		view("token", "", "address"),
		view("name", "", "string"),
		view("symbol", "", "string"),
		view("totalSupply", "", "uint256"),
	}
	for _, m := range v2ParamMethods {
		entries = append(entries, view(m, "", "uint256"))
	}
	return abiJSON(entries...)
}

var (
	erc20ABIJSON = abiJSON(
		view("decimals", "", "uint8"),
		view("symbol", "", "string"),
		view("name", "", "string"),
		view("totalSupply", "", "uint256"),
		view("balanceOf", "address", "uint256"),
	)
	erc20Bytes32ABIJSON = abiJSON(
		view("symbol", "", "bytes32"),
		view("name", "", "bytes32"),
	)
	registryABIJSON = abiJSON(
		view("pool_count", "", "uint256"),
		view("pool_list", "uint256", "address"),
		view("get_lp_token", "address", "address"),
		view("get_implementation_address", "address", "address"),
		view("get_token", "address", "address"),
	)
	pairFactoryABIJSON = `[{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	pairABIJSON        = `[
  {"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`
	v3FactoryABIJSON = `[{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	quoterABIJSON    = `[{"inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`
	cTokenABIJSON    = abiJSON(
		view("exchangeRateStored", "", "uint256"),
		view("underlying", "", "address"),
	)
	yTokenABIJSON = abiJSON(
		view("getPricePerFullShare", "", "uint256"),
		view("token", "", "address"),
	)
	chainlinkABIJSON  = abiJSON(view("latestAnswer", "", "int256"))
	lidoOracleABIJSON = `[{"inputs":[],"name":"getLastCompletedReportDelta","outputs":[{"name":"postTotalPooledEther","type":"uint256"},{"name":"preTotalPooledEther","type":"uint256"},{"name":"timeElapsed","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	aTokenABIJSON     = abiJSON(
		view("totalSupply", "", "uint256"),
		view("scaledTotalSupply", "", "uint256"),
	)
)

// ABIs groups every contract interface the indexer reads.
type ABIs struct {
	// Pool uses uint256 indices; PoolInt128 is the older int128 encoding.
	Pool         abi.ABI
	PoolInt128   abi.ABI
	ERC20        abi.ABI
	ERC20Bytes32 abi.ABI
	// Registry also covers the factories: both expose pool_count/pool_list.
	Registry    abi.ABI
	PairFactory abi.ABI
	Pair        abi.ABI
	V3Factory   abi.ABI
	Quoter      abi.ABI
	CToken      abi.ABI
	YToken      abi.ABI
	Chainlink   abi.ABI
	LidoOracle  abi.ABI
	AToken      abi.ABI
}

var (
	abisOnce sync.Once
	abis     *ABIs
	abisErr  error
)

// LoadABIs parses the contract interfaces once.
func LoadABIs() (*ABIs, error) {
	abisOnce.Do(func() {
		abis, abisErr = parseABIs()
	})
	return abis, abisErr
}

func parseABIs() (*ABIs, error) {
	out := &ABIs{}
	sources := []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"pool", poolABIJSON("uint256"), &out.Pool},
		{"pool int128", poolABIJSON("int128"), &out.PoolInt128},
		{"erc20", erc20ABIJSON, &out.ERC20},
		{"erc20 bytes32", erc20Bytes32ABIJSON, &out.ERC20Bytes32},
		{"registry", registryABIJSON, &out.Registry},
		{"pair factory", pairFactoryABIJSON, &out.PairFactory},
		{"pair", pairABIJSON, &out.Pair},
		{"v3 factory", v3FactoryABIJSON, &out.V3Factory},
		{"quoter", quoterABIJSON, &out.Quoter},
		{"ctoken", cTokenABIJSON, &out.CToken},
		{"ytoken", yTokenABIJSON, &out.YToken},
		{"chainlink", chainlinkABIJSON, &out.Chainlink},
		{"lido oracle", lidoOracleABIJSON, &out.LidoOracle},
		{"atoken", aTokenABIJSON, &out.AToken},
	}
	for _, src := range sources {
		parsed, err := abi.JSON(strings.NewReader(src.json))
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", src.name, err)
		}
		*src.dst = parsed
	}
	return out, nil
}

// MustLoadABIs is LoadABIs for tests and wiring that cannot continue
// without the interfaces.
func MustLoadABIs() *ABIs {
	parsed, err := LoadABIs()
	if err != nil {
		panic(err)
	}
	return parsed
}
