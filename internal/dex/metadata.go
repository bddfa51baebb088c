package dex

import (
	"bytes"
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
)

// DefaultDecimals is assumed for tokens whose decimals() reverts.
const DefaultDecimals = 18

// TokenMeta is the immutable ERC20 metadata of a token.
type TokenMeta struct {
	Address  string
	Decimals int
	Symbol   string
	Name     string
}

// Metadata reads token metadata through a bounded cache. Metadata never
// changes, so entries are only evicted for size.
type Metadata struct {
	reader *chain.Reader
	abis   *ABIs
	cache  *lru.Cache
	logger *zap.Logger
}

// NewMetadata builds a metadata reader caching up to size tokens.
func NewMetadata(reader *chain.Reader, size int, logger *zap.Logger) (*Metadata, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abis, err := LoadABIs()
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Metadata{reader: reader, abis: abis, cache: cache, logger: logger}, nil
}

// Token returns metadata for token, reading the chain on a cache miss.
// Reverted reads fall back to 18 decimals and a truncated-address symbol.
func (m *Metadata) Token(ctx context.Context, token common.Address) TokenMeta {
	if v, ok := m.cache.Get(token); ok {
		return v.(TokenMeta)
	}
	meta := m.fetch(ctx, token)
	m.cache.Add(token, meta)
	return meta
}

// Decimals is a shortcut for Token(...).Decimals.
func (m *Metadata) Decimals(ctx context.Context, token common.Address) int {
	return m.Token(ctx, token).Decimals
}

// Symbol is a shortcut for Token(...).Symbol.
func (m *Metadata) Symbol(ctx context.Context, token common.Address) string {
	return m.Token(ctx, token).Symbol
}

func (m *Metadata) fetch(ctx context.Context, token common.Address) TokenMeta {
	meta := TokenMeta{Address: strings.ToLower(token.Hex()), Decimals: DefaultDecimals}

	if res := m.reader.Call(ctx, &m.abis.ERC20, token, "decimals", nil); res.Ok() {
		if d := res.BigInt(0); d.Cmp(big.NewInt(255)) <= 0 {
			meta.Decimals = int(d.Int64())
		}
	}

	meta.Symbol = m.text(ctx, token, "symbol")
	if meta.Symbol == "" {
		meta.Symbol = meta.Address[:6]
	}
	meta.Name = m.text(ctx, token, "name")
	return meta
}

// text reads a string getter, retrying with the bytes32 variant some older
// tokens use.
func (m *Metadata) text(ctx context.Context, token common.Address, method string) string {
	if res := m.reader.Call(ctx, &m.abis.ERC20, token, method, nil); res.Ok() {
		return res.String(0)
	}
	res := m.reader.Call(ctx, &m.abis.ERC20Bytes32, token, method, nil)
	if !res.Ok() {
		m.logger.Debug("token text call failed", zap.String("token", token.Hex()), zap.String("method", method))
		return ""
	}
	if s, ok := bytes32ToString(res.Values[0]); ok {
		return s
	}
	return ""
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
