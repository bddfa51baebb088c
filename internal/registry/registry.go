// Package registry discovers pools from the address provider, registries
// and factories, classifies them and keeps factory counters in step with
// the chain.
package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
	"curveVolume/internal/dex"
	"curveVolume/internal/metrics"
	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
	"curveVolume/internal/storage"
)

// Address provider identifiers.
const (
	IDMainRegistry   = 0
	IDStableFactory  = 3
	IDCryptoRegistry = 5
	IDCryptoFactory  = 6
)

const defaultMaxCoins = 8

var defaultTricryptoIDs = []uint64{8, 11}

// Config holds the curated tables for pools the chain cannot describe.
type Config struct {
	// UnknownMetapools maps metapools without base_pool() to their base.
	UnknownMetapools map[common.Address]common.Address
	LendingPools     map[common.Address]bool
	// EarlyV2Pools are crypto pools listed in the stable registry.
	EarlyV2Pools            map[common.Address]bool
	RebasingImplementations map[common.Address]bool
	MetapoolFactory         common.Address
	TricryptoIDs            []uint64
	MaxCoins                int
}

// Registry owns Pool, BasePool, Registry, Factory and Platform entities.
type Registry struct {
	cfg     Config
	reader  *chain.Reader
	meta    *dex.Metadata
	abis    *dex.ABIs
	session *storage.Session
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, reader *chain.Reader, meta *dex.Metadata, session *storage.Session, logger *zap.Logger, m *metrics.Metrics) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abis, err := dex.LoadABIs()
	if err != nil {
		return nil, err
	}
	if cfg.MaxCoins <= 0 {
		cfg.MaxCoins = defaultMaxCoins
	}
	if len(cfg.TricryptoIDs) == 0 {
		cfg.TricryptoIDs = defaultTricryptoIDs
	}
	return &Registry{cfg: cfg, reader: reader, meta: meta, abis: abis, session: session, logger: logger, metrics: m}, nil
}

func (r *Registry) isTricryptoID(id uint64) bool {
	for _, t := range r.cfg.TricryptoIDs {
		if t == id {
			return true
		}
	}
	return false
}

// AddAddress handles NewAddressIdentifier and AddressModified. A newly seen
// registry or factory is stored and immediately caught up. Other ids are
// ignored.
func (r *Registry) AddAddress(ctx context.Context, id uint64, addr common.Address, ev model.EventMeta) error {
	key := pricing.Hex(addr)
	switch {
	case id == IDMainRegistry || id == IDCryptoRegistry:
		kind := model.RegistryStable
		if id == IDCryptoRegistry {
			kind = model.RegistryCrypto
		}
		found, err := r.session.Exists(ctx, model.KindRegistry, key)
		if err != nil || found {
			return err
		}
		r.logger.Info("new registry", zap.String("registry", key), zap.String("kind", string(kind)))
		if err := r.session.Save(&model.Registry{ID: key, Kind: kind}); err != nil {
			return err
		}
		return r.CatchUp(ctx, addr, ev)
	case id == IDStableFactory || id == IDCryptoFactory || r.isTricryptoID(id):
		version := model.FactoryStable
		switch {
		case id == IDCryptoFactory:
			version = model.FactoryCrypto
		case r.isTricryptoID(id):
			version = model.FactoryTricrypto
		}
		found, err := r.session.Exists(ctx, model.KindFactory, key)
		if err != nil || found {
			return err
		}
		r.logger.Info("new factory", zap.String("factory", key), zap.Int("version", int(version)))
		if err := r.session.Save(&model.Factory{ID: key, Version: version}); err != nil {
			return err
		}
		if version == model.FactoryTricrypto {
			return r.CatchUpTricrypto(ctx, addr, ev)
		}
		return r.CatchUp(ctx, addr, ev)
	}
	return nil
}

// Pool loads a tracked pool.
func (r *Registry) Pool(ctx context.Context, addr string) (*model.Pool, bool, error) {
	var pool model.Pool
	found, err := r.session.Load(ctx, model.KindPool, model.NormalizeAddress(addr), &pool)
	if err != nil || !found {
		return nil, false, err
	}
	return &pool, true, nil
}

// Platform loads the platform entity, creating it empty.
func (r *Registry) Platform(ctx context.Context) (*model.Platform, error) {
	var platform model.Platform
	found, err := r.session.Load(ctx, model.KindPlatform, model.PlatformID, &platform)
	if err != nil {
		return nil, err
	}
	if !found {
		platform = model.Platform{ID: model.PlatformID}
	}
	return &platform, nil
}

func (r *Registry) registry(ctx context.Context, addr common.Address) (*model.Registry, error) {
	var reg model.Registry
	found, err := r.session.Load(ctx, model.KindRegistry, pricing.Hex(addr), &reg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("registry %s: %w", pricing.Hex(addr), model.ErrMissingEntity)
	}
	return &reg, nil
}

func (r *Registry) factory(ctx context.Context, addr common.Address) (*model.Factory, error) {
	var f model.Factory
	found, err := r.session.Load(ctx, model.KindFactory, pricing.Hex(addr), &f)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("factory %s: %w", pricing.Hex(addr), model.ErrMissingEntity)
	}
	return &f, nil
}

// Factory loads a tracked factory.
func (r *Registry) Factory(ctx context.Context, addr common.Address) (*model.Factory, error) {
	return r.factory(ctx, addr)
}

// IsTracked reports whether addr is a known pool.
func (r *Registry) IsTracked(ctx context.Context, addr common.Address) (bool, error) {
	return r.session.Exists(ctx, model.KindPool, pricing.Hex(addr))
}
