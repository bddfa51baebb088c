package pricing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"curveVolume/internal/model"
	"curveVolume/internal/storage"
)

// Snapshots memoizes prices as TokenSnapshot entities. A snapshot is
// computed on the first read of its bucket and never recomputed.
type Snapshots struct {
	session  *storage.Session
	resolver *Resolver
}

func NewSnapshots(session *storage.Session, resolver *Resolver) *Snapshots {
	return &Snapshots{session: session, resolver: resolver}
}

// Resolver exposes the underlying resolver.
func (s *Snapshots) Resolver() *Resolver { return s.resolver }

// Memo returns the stored price for id, or computes, stores and returns it.
// ts is recorded as the snapshot's bucket start.
func (s *Snapshots) Memo(ctx context.Context, id, token string, ts uint64, compute func() decimal.Decimal) (decimal.Decimal, error) {
	snap, found, err := s.Lookup(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if found {
		return snap.Price, nil
	}
	price := compute()
	if err := s.session.Save(&model.TokenSnapshot{ID: id, Token: token, Timestamp: ts, Price: price}); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// Save stores a snapshot computed outside Memo.
func (s *Snapshots) Save(snap *model.TokenSnapshot) error {
	return s.session.Save(snap)
}

// Lookup loads a snapshot without computing it.
func (s *Snapshots) Lookup(ctx context.Context, id string) (*model.TokenSnapshot, bool, error) {
	var snap model.TokenSnapshot
	found, err := s.session.Load(ctx, model.KindTokenSnapshot, id, &snap)
	if err != nil || !found {
		return nil, false, err
	}
	return &snap, true, nil
}

// Token is the hourly USD price of token.
func (s *Snapshots) Token(ctx context.Context, token common.Address, ts uint64, block *big.Int) (decimal.Decimal, error) {
	key := Hex(token)
	return s.Memo(ctx, model.TokenSnapshotID(key, ts), key, model.IntervalStart(ts, model.Hour), func() decimal.Decimal {
		return s.resolver.USD(ctx, token, block)
	})
}

// Forex is the hourly Chainlink USD price for a token or pool with a
// forex oracle.
func (s *Snapshots) Forex(ctx context.Context, key common.Address, ts uint64, block *big.Int) (decimal.Decimal, error) {
	id := Hex(key)
	return s.Memo(ctx, model.TokenSnapshotID(id, ts), id, model.IntervalStart(ts, model.Hour), func() decimal.Decimal {
		return s.resolver.ForexUSD(ctx, key, block)
	})
}
