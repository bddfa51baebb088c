// Package chaintest provides an in-memory contract backend for tests.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"curveVolume/internal/chain"
)

// ErrExecutionReverted is returned for any call without a fixture.
var ErrExecutionReverted = errors.New("execution reverted")

// Fake answers eth_call by (target, calldata). Calls without a fixture
// revert. Calls to the configured multicall address are unpacked and each
// inner call is answered from the same fixtures; one unknown inner call
// reverts the whole batch, like the on-chain aggregate.
type Fake struct {
	Multicall common.Address

	mu        sync.Mutex
	responses map[string][]byte
	calls     int
}

// New returns an empty fake whose multicall lives at multicall.
func New(multicall common.Address) *Fake {
	return &Fake{Multicall: multicall, responses: make(map[string][]byte)}
}

func key(target common.Address, data []byte) string {
	return target.Hex() + ":" + common.Bytes2Hex(data)
}

// SetRaw registers raw return data for a call.
func (f *Fake) SetRaw(target common.Address, data, ret []byte) {
	f.mu.Lock()
	f.responses[key(target, data)] = ret
	f.mu.Unlock()
}

// Remove drops a fixture so the call reverts again.
func (f *Fake) Remove(contract *abi.ABI, target common.Address, method string, args ...interface{}) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack %s: %v", method, err))
	}
	f.mu.Lock()
	delete(f.responses, key(target, data))
	f.mu.Unlock()
}

// Stub starts a fixture for method on target.
func (f *Fake) Stub(contract *abi.ABI, target common.Address, method string, args ...interface{}) *Stub {
	return &Stub{fake: f, contract: contract, target: target, method: method, args: args}
}

// Calls reports how many eth_calls reached the fake.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Stub is a pending fixture.
type Stub struct {
	fake     *Fake
	contract *abi.ABI
	target   common.Address
	method   string
	args     []interface{}
}

// Returns packs outputs with the method's ABI and registers them.
func (s *Stub) Returns(outputs ...interface{}) {
	data, err := s.contract.Pack(s.method, s.args...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack %s: %v", s.method, err))
	}
	m, ok := s.contract.Methods[s.method]
	if !ok {
		panic(fmt.Sprintf("chaintest: unknown method %s", s.method))
	}
	ret, err := m.Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack outputs of %s: %v", s.method, err))
	}
	s.fake.SetRaw(s.target, data, ret)
}

// CallContract implements chain.Caller.
func (f *Fake) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, ErrExecutionReverted
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if *msg.To == f.Multicall && f.Multicall != (common.Address{}) {
		return f.aggregate(msg.Data)
	}
	return f.lookup(*msg.To, msg.Data)
}

func (f *Fake) lookup(target common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret, ok := f.responses[key(target, data)]
	if !ok {
		return nil, ErrExecutionReverted
	}
	return bytes.Clone(ret), nil
}

func (f *Fake) aggregate(data []byte) ([]byte, error) {
	parsed, err := chain.MulticallABI()
	if err != nil {
		return nil, err
	}
	method := parsed.Methods["aggregate"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, ErrExecutionReverted
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(values) != 1 {
		return nil, ErrExecutionReverted
	}

	list := reflect.ValueOf(values[0])
	results := make([][]byte, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		item := list.Index(i)
		target := item.FieldByName("Target").Interface().(common.Address)
		callData := item.FieldByName("CallData").Interface().([]byte)
		ret, err := f.lookup(target, callData)
		if err != nil {
			return nil, err
		}
		results = append(results, ret)
	}
	return method.Outputs.Pack(big.NewInt(1), results)
}
