// Package processor applies typed Curve events to the entity store in
// chain order: pool discovery, swaps, liquidity changes and the rebase
// reports the APR deduction reads.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/metrics"
	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
	"curveVolume/internal/rebase"
	"curveVolume/internal/registry"
	"curveVolume/internal/snapshot"
	"curveVolume/internal/storage"
	"curveVolume/internal/valuation"
)

// Defaults for the named policies.
var (
	DefaultVolumeCeiling    = decimal.New(1, 11)
	DefaultPriceFeedCeiling = decimal.New(1, 7)
)

const DefaultLookbackWindow = 10

// Config holds the processing policies and the contracts whose events are
// accepted outside the pool set.
type Config struct {
	AddressProvider common.Address
	// LookbackWindow bounds the backward scan for metapool dx
	// reconstruction, in log indices.
	LookbackWindow   int
	VolumeCeiling    decimal.Decimal
	PriceFeedCeiling decimal.Decimal
	// CTokens are priced directly in liquidity volume instead of by the
	// pool's asset type.
	CTokens map[common.Address]bool
	Rebase  rebase.Config
}

// Processor dispatches typed events. It is not safe for concurrent use:
// events must be applied one at a time in chain order.
type Processor struct {
	cfg      Config
	registry *registry.Registry
	engine   *snapshot.Engine
	valuer   *valuation.Valuer
	handlers *rebase.Handlers
	session  *storage.Session
	logger   *zap.Logger
	metrics  *metrics.Metrics

	lidoToken, usdnToken, aethToken string
}

func New(cfg Config, reg *registry.Registry, engine *snapshot.Engine, valuer *valuation.Valuer, handlers *rebase.Handlers, session *storage.Session, logger *zap.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = DefaultLookbackWindow
	}
	if cfg.VolumeCeiling.IsZero() {
		cfg.VolumeCeiling = DefaultVolumeCeiling
	}
	if cfg.PriceFeedCeiling.IsZero() {
		cfg.PriceFeedCeiling = DefaultPriceFeedCeiling
	}
	p := &Processor{
		cfg:      cfg,
		registry: reg,
		engine:   engine,
		valuer:   valuer,
		handlers: handlers,
		session:  session,
		logger:   logger,
		metrics:  m,
	}
	p.lidoToken, p.usdnToken, p.aethToken = cfg.Rebase.Tokens()
	return p
}

// Session is the store session events are applied to.
func (p *Processor) Session() *storage.Session { return p.session }

// Handle applies one record. Contained failures (unknown emitter, missing
// entity, undecodable payload) are logged and counted; only store errors
// are returned.
func (p *Processor) Handle(ctx context.Context, record model.TypedEventRecord) error {
	err := p.dispatch(ctx, record)
	switch {
	case err == nil:
		p.metrics.Processed(record.EventName, record.BlockNumber)
		return nil
	case errors.Is(err, model.ErrMissingEntity):
		p.drop(record, "missing_entity", err)
		return nil
	case errors.Is(err, errDecode):
		p.drop(record, "decode", err)
		return nil
	case errors.Is(err, errIgnored):
		p.metrics.Dropped("ignored")
		return nil
	case errors.Is(err, errDuplicate):
		p.drop(record, "duplicate", err)
		return nil
	}
	return fmt.Errorf("%s at %s-%d: %w", record.EventName, record.TxHash, record.LogIndex, err)
}

var (
	errDecode    = errors.New("decode payload")
	errIgnored   = errors.New("ignored")
	errDuplicate = errors.New("already applied")
)

func (p *Processor) drop(record model.TypedEventRecord, reason string, err error) {
	p.metrics.Dropped(reason)
	p.logger.Warn("event dropped",
		zap.String("event", record.EventName),
		zap.String("address", record.Address),
		zap.String("tx", record.TxHash),
		zap.Uint64("log_index", record.LogIndex),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func decode(record model.TypedEventRecord, dst interface{}) error {
	if err := record.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}
	return nil
}

func (p *Processor) dispatch(ctx context.Context, record model.TypedEventRecord) error {
	meta := record.Meta()
	emitter := common.HexToAddress(record.Address)
	key := pricing.Hex(emitter)

	switch record.EventName {
	case model.EventNewAddressIdentifier, model.EventAddressModified:
		if emitter != p.cfg.AddressProvider {
			return errIgnored
		}
		var data model.AddressProviderEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		id, err := strconv.ParseUint(data.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: address id %q", errDecode, data.ID)
		}
		return p.registry.AddAddress(ctx, id, common.HexToAddress(data.Address), meta)

	case model.EventPoolAdded:
		var data model.PoolAddedEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.registry.HandlePoolAdded(ctx, emitter, common.HexToAddress(data.Pool), meta)

	case model.EventPlainPoolDeployed:
		return p.registry.HandleFactoryPoolDeployed(ctx, emitter, false, common.Address{}, meta)

	case model.EventMetaPoolDeployed:
		var data model.MetaPoolDeployedEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.registry.HandleFactoryPoolDeployed(ctx, emitter, true, common.HexToAddress(data.BasePool), meta)

	case model.EventCryptoPoolDeployed:
		var data model.CryptoPoolDeployedEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.registry.HandleCryptoPoolDeployed(ctx, emitter, common.HexToAddress(data.Token), meta)

	case model.EventTricryptoPoolDeployed:
		var data model.TricryptoPoolDeployedEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.registry.HandleTricryptoPoolDeployed(ctx, emitter, data, meta)

	case model.EventAddExistingMetaPools:
		var data model.AddExistingMetaPoolsData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.registry.AddExistingPools(ctx, emitter, data.Pools, meta)

	case model.EventTokenExchange, model.EventTokenExchangeUnderlying:
		var data model.TokenExchangeEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		data.Underlying = data.Underlying || record.EventName == model.EventTokenExchangeUnderlying
		return p.HandleExchange(ctx, emitter, data, meta)

	case model.EventAddLiquidity, model.EventRemoveLiquidity, model.EventRemoveLiquidityImbalance:
		var data model.LiquidityEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		data.Removal = record.EventName != model.EventAddLiquidity
		return p.HandleLiquidity(ctx, emitter, data, meta)

	case model.EventRemoveLiquidityOne:
		var data model.RemoveLiquidityOneEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.handleRemoveOne(ctx, emitter, data, meta)

	case model.EventTokenRebased:
		if key != p.lidoToken {
			return errIgnored
		}
		var data model.TokenRebasedEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.handlers.HandleLidoRebase(ctx, key, meta.Timestamp, data)

	case model.EventReward:
		if key != p.usdnToken {
			return errIgnored
		}
		var data model.RewardEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.handlers.HandleUsdnReward(ctx, key, meta.Timestamp, meta.BlockNumber(), data)

	case model.EventRatioUpdate:
		if key != p.aethToken {
			return errIgnored
		}
		var data model.RatioUpdateEventData
		if err := decode(record, &data); err != nil {
			return err
		}
		return p.handlers.HandleAethRatio(ctx, key, meta.Timestamp, data)
	}
	return errIgnored
}

// ensureNew fails with errDuplicate when the event's record already
// exists, which keeps volumes from counting a replayed event twice.
func (p *Processor) ensureNew(ctx context.Context, kind model.Kind, meta model.EventMeta) error {
	id := model.EventID(meta.Tx, meta.LogIndex)
	exists, err := p.session.Exists(ctx, kind, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s %s", errDuplicate, kind, id)
	}
	return nil
}

// trackedPool loads the emitting pool or reports ErrMissingEntity.
func (p *Processor) trackedPool(ctx context.Context, addr common.Address) (*model.Pool, error) {
	pool, found, err := p.registry.Pool(ctx, pricing.Hex(addr))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("pool %s: %w", pricing.Hex(addr), model.ErrMissingEntity)
	}
	return pool, nil
}
