package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/metrics"
)

// Caller is the single-call read surface of the RPC client.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ErrReverted matches every failed contract read: an actual revert, an
// empty return from a non-contract, or output that does not fit the ABI.
var ErrReverted = errors.New("call reverted")

// CallError describes a failed contract read.
type CallError struct {
	Target common.Address
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s on %s: %v", e.Method, e.Target.Hex(), e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrReverted }

// Result is the outcome of one contract read.
type Result struct {
	Values []interface{}
	Err    error
}

// Ok reports whether the read succeeded with at least one value.
func (r Result) Ok() bool {
	return r.Err == nil && len(r.Values) > 0
}

// BigInt returns output i as an integer, zero when missing.
func (r Result) BigInt(i int) *big.Int {
	if !r.Ok() || i >= len(r.Values) {
		return new(big.Int)
	}
	if v := AsBigInt(r.Values[i]); v != nil {
		return v
	}
	return new(big.Int)
}

// Address returns output i as an address, zero address when missing.
func (r Result) Address(i int) common.Address {
	if !r.Ok() || i >= len(r.Values) {
		return common.Address{}
	}
	if v, ok := r.Values[i].(common.Address); ok {
		return v
	}
	return common.Address{}
}

// String returns output i as a string, empty when missing.
func (r Result) String(i int) string {
	if !r.Ok() || i >= len(r.Values) {
		return ""
	}
	if v, ok := r.Values[i].(string); ok {
		return v
	}
	return ""
}

// Reader performs ABI-typed reads and records failures.
type Reader struct {
	caller  Caller
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewReader wraps a Caller. logger and m may be nil.
func NewReader(caller Caller, logger *zap.Logger, m *metrics.Metrics) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, logger: logger, metrics: m}
}

// Caller exposes the underlying raw caller.
func (r *Reader) Caller() Caller { return r.caller }

// Call packs method with args, performs eth_call at block (nil = latest)
// and unpacks the outputs.
func (r *Reader) Call(
	ctx context.Context,
	contract *abi.ABI,
	target common.Address,
	method string,
	block *big.Int,
	args ...interface{},
) Result {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return Result{Err: fmt.Errorf("pack %s: %w", method, err)}
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, block)
	if err == nil && len(out) == 0 {
		err = errors.New("empty return data")
	}
	if err != nil {
		return r.fail(target, method, err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return r.fail(target, method, err)
	}
	return Result{Values: values}
}

func (r *Reader) fail(target common.Address, method string, err error) Result {
	r.metrics.Reverted(method)
	r.logger.Debug("contract call failed",
		zap.String("target", target.Hex()),
		zap.String("method", method),
		zap.Error(err),
	)
	return Result{Err: &CallError{Target: target, Method: method, Err: err}}
}

// AsBigInt converts the integer shapes go-ethereum unpacks into *big.Int.
func AsBigInt(v interface{}) *big.Int {
	switch t := v.(type) {
	case *big.Int:
		return t
	case big.Int:
		return &t
	case uint8:
		return new(big.Int).SetUint64(uint64(t))
	case uint16:
		return new(big.Int).SetUint64(uint64(t))
	case uint32:
		return new(big.Int).SetUint64(uint64(t))
	case uint64:
		return new(big.Int).SetUint64(t)
	case int8:
		return big.NewInt(int64(t))
	case int16:
		return big.NewInt(int64(t))
	case int32:
		return big.NewInt(int64(t))
	case int64:
		return big.NewInt(t)
	default:
		return nil
	}
}
