package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/metrics"
)

const multicallABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall.Call[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate",
    "outputs": [
      {"internalType": "uint256", "name": "blockNumber", "type": "uint256"},
      {"internalType": "bytes[]", "name": "returnData", "type": "bytes[]"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	multicallOnce sync.Once
	multicallABI  abi.ABI
	multicallErr  error

	uint256Args abi.Arguments
)

func init() {
	uint256Args = abi.Arguments{{Type: mustType("uint256")}}
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// MulticallABI returns the parsed aggregate ABI.
func MulticallABI() (abi.ABI, error) {
	multicallOnce.Do(func() {
		multicallABI, multicallErr = abi.JSON(strings.NewReader(multicallABIJSON))
	})
	return multicallABI, multicallErr
}

// Call is one (target, calldata) pair. Data is a 4-byte selector followed
// by ABI-encoded arguments.
type Call struct {
	Target common.Address
	Data   []byte
}

type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

// Return is the raw outcome of one slot.
type Return struct {
	Data []byte
	Err  error
}

// Multicall batches reads through an aggregate contract.
type Multicall struct {
	caller  Caller
	address common.Address
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewMulticall binds the aggregate contract at address.
func NewMulticall(caller Caller, address common.Address, logger *zap.Logger, m *metrics.Metrics) *Multicall {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multicall{caller: caller, address: address, logger: logger, metrics: m}
}

// Aggregate issues every call in one eth_call and returns the results in
// input order. It returns nil when the aggregate call itself fails; callers
// fall back to defaults.
func (m *Multicall) Aggregate(ctx context.Context, calls []Call, block *big.Int) [][]byte {
	if len(calls) == 0 {
		return [][]byte{}
	}
	out, err := m.aggregate(ctx, calls, block)
	m.metrics.Batch(err != nil)
	if err != nil {
		m.logger.Warn("multicall aggregate failed",
			zap.Int("calls", len(calls)),
			zap.Error(err),
		)
		return nil
	}
	return out
}

func (m *Multicall) aggregate(ctx context.Context, calls []Call, block *big.Int) ([][]byte, error) {
	parsed, err := MulticallABI()
	if err != nil {
		return nil, err
	}
	input := make([]aggregateCall, len(calls))
	for i, c := range calls {
		input[i] = aggregateCall{Target: c.Target, CallData: c.Data}
	}
	data, err := parsed.Pack("aggregate", input)
	if err != nil {
		return nil, err
	}
	to := m.address
	raw, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("aggregate", raw)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, errors.New("unexpected aggregate output")
	}
	results, ok := values[1].([][]byte)
	if !ok || len(results) != len(calls) {
		return nil, errors.New("aggregate result count mismatch")
	}
	return results, nil
}

// AggregateOrEach runs the batch through Aggregate and, if the batch as a
// whole fails, issues each call on its own so one failing slot only
// defaults itself.
func (m *Multicall) AggregateOrEach(ctx context.Context, calls []Call, block *big.Int) []Return {
	out := make([]Return, len(calls))
	if results := m.Aggregate(ctx, calls, block); results != nil {
		for i, r := range results {
			out[i] = Return{Data: r}
		}
		return out
	}
	for i, c := range calls {
		target := c.Target
		data, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: c.Data}, block)
		if err == nil && len(data) == 0 {
			err = errors.New("empty return data")
		}
		if err != nil {
			m.metrics.Reverted(selectorName(c.Data))
		}
		out[i] = Return{Data: data, Err: err}
	}
	return out
}

// DecodeUint256 decodes a single uint256 slot. Any slot that does not
// decode is zero.
func DecodeUint256(ret []byte) *big.Int {
	if len(ret) < 32 {
		return new(big.Int)
	}
	values, err := uint256Args.Unpack(ret[:32])
	if err != nil || len(values) != 1 {
		return new(big.Int)
	}
	if v := AsBigInt(values[0]); v != nil {
		return v
	}
	return new(big.Int)
}

// Uint256 decodes a Return, zero on failure.
func (r Return) Uint256() *big.Int {
	if r.Err != nil {
		return new(big.Int)
	}
	return DecodeUint256(r.Data)
}

func selectorName(data []byte) string {
	if len(data) < 4 {
		return "unknown"
	}
	return common.Bytes2Hex(data[:4])
}
