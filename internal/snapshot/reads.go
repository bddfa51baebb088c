package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
	"curveVolume/internal/dex"
	"curveVolume/internal/model"
)

// poolReads is everything a snapshot needs from the chain. Missing values
// are zero.
type poolReads struct {
	virtualPrice *big.Int
	a            *big.Int
	fee          *big.Int
	adminFee     *big.Int
	offpeg       *big.Int
	supply       *big.Int
	xcpProfit    *big.Int
	xcpProfitA   *big.Int
	balances     []*big.Int
	v2           []*big.Int
}

func pack(contract *abi.ABI, target common.Address, method string, args ...interface{}) chain.Call {
	data, err := contract.Pack(method, args...)
	if err != nil {
		// an unpackable call reverts in the batch and defaults to zero
		data = nil
	}
	return chain.Call{Target: target, Data: data}
}

func (e *Engine) read(ctx context.Context, pool *model.Pool, deprecated bool, block *big.Int) poolReads {
	addr := common.HexToAddress(pool.Address)
	lp := common.HexToAddress(pool.LPToken)
	if pool.LPToken == "" {
		lp = addr
	}

	if deprecated {
		rets := e.mc.AggregateOrEach(ctx, []chain.Call{pack(&e.abis.Pool, addr, "get_virtual_price")}, block)
		return poolReads{virtualPrice: rets[0].Uint256()}
	}

	core := []chain.Call{
		pack(&e.abis.Pool, addr, "get_virtual_price"),
		pack(&e.abis.Pool, addr, "A"),
		pack(&e.abis.Pool, addr, "fee"),
		pack(&e.abis.Pool, addr, "admin_fee"),
		pack(&e.abis.ERC20, lp, "totalSupply"),
	}
	rets := e.mc.AggregateOrEach(ctx, core, block)
	out := poolReads{
		virtualPrice: rets[0].Uint256(),
		a:            rets[1].Uint256(),
		fee:          rets[2].Uint256(),
		adminFee:     rets[3].Uint256(),
		supply:       rets[4].Uint256(),
	}
	for i, name := range []string{"get_virtual_price", "A", "fee", "admin_fee", "totalSupply"} {
		if rets[i].Err != nil {
			e.logger.Warn("snapshot read defaulted to zero",
				zap.String("pool", pool.ID),
				zap.String("method", name),
			)
		}
	}

	// only lending pools implement it; a revert is the common case
	out.offpeg = e.reader.Call(ctx, &e.abis.Pool, addr, "offpeg_fee_multiplier", block).BigInt(0)

	if pool.IsV2 {
		methods := append([]string{"xcp_profit", "xcp_profit_a"}, dex.V2ParamMethods()...)
		calls := make([]chain.Call, len(methods))
		for i, m := range methods {
			calls[i] = pack(&e.abis.Pool, addr, m)
		}
		rets := e.mc.AggregateOrEach(ctx, calls, block)
		out.xcpProfit = rets[0].Uint256()
		out.xcpProfitA = rets[1].Uint256()
		for _, r := range rets[2:] {
			out.v2 = append(out.v2, r.Uint256())
		}
	}

	out.balances = e.balances(ctx, pool, addr, block)
	return out
}

// balances reads each coin's pool balance. cToken-style coins are read
// with balanceOf since the pool's own bookkeeping diverges from it; other
// coins fall back to the int128 getter when balances(i) reverts.
func (e *Engine) balances(ctx context.Context, pool *model.Pool, addr common.Address, block *big.Int) []*big.Int {
	calls := make([]chain.Call, len(pool.Coins))
	for i, coin := range pool.Coins {
		token := common.HexToAddress(coin)
		if e.cfg.CTokens[token] {
			calls[i] = pack(&e.abis.ERC20, token, "balanceOf", addr)
			continue
		}
		calls[i] = pack(&e.abis.Pool, addr, "balances", big.NewInt(int64(i)))
	}
	rets := e.mc.AggregateOrEach(ctx, calls, block)

	out := make([]*big.Int, len(rets))
	for i, r := range rets {
		if r.Err == nil {
			out[i] = r.Uint256()
			continue
		}
		res := e.reader.Call(ctx, &e.abis.PoolInt128, addr, "balances", block, big.NewInt(int64(i)))
		if !res.Ok() {
			e.logger.Warn("balance read defaulted to zero", zap.String("pool", pool.ID), zap.Int("coin", i))
		}
		out[i] = res.BigInt(0)
	}
	return out
}
