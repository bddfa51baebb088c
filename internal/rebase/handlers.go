package rebase

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveVolume/internal/chain"
	"curveVolume/internal/dex"
	"curveVolume/internal/model"
	"curveVolume/internal/numeric"
	"curveVolume/internal/pricing"
	"curveVolume/internal/storage"
)

// shareRateScale keeps share rates integral at 27 decimals.
var shareRateScale = decimal.New(1, 27)

// Handlers turn rebase events into daily rebase snapshots. A later event on
// the same day replaces the earlier value.
type Handlers struct {
	reader  *chain.Reader
	abis    *dex.ABIs
	session *storage.Session
	logger  *zap.Logger
}

func NewHandlers(reader *chain.Reader, session *storage.Session, logger *zap.Logger) (*Handlers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abis, err := dex.LoadABIs()
	if err != nil {
		return nil, err
	}
	return &Handlers{reader: reader, abis: abis, session: session, logger: logger}, nil
}

func (h *Handlers) save(token string, ts uint64, value decimal.Decimal) error {
	token = model.NormalizeAddress(token)
	return h.session.Save(&model.TokenSnapshot{
		ID:        model.RebaseSnapshotID(token, ts),
		Token:     token,
		Timestamp: model.IntervalStart(ts, model.Day),
		Price:     value,
	})
}

// HandleLidoRebase stores the share rate growth of a TokenRebased report,
// normalized to one day.
func (h *Handlers) HandleLidoRebase(ctx context.Context, token string, ts uint64, data model.TokenRebasedEventData) error {
	pre := shareRate(data.PreTotalEther, data.PreTotalShares)
	post := shareRate(data.PostTotalEther, data.PostTotalShares)
	growth := numeric.GrowthRate(post, pre)
	elapsed := numeric.ParseDecimal(data.TimeElapsed)
	daily := numeric.Div(growth.Mul(decimal.NewFromInt(int64(model.Day))), elapsed)
	h.logger.Debug("lido rebase",
		zap.String("token", token),
		zap.String("daily_rate", daily.String()),
	)
	return h.save(token, ts, daily)
}

func shareRate(ether, shares string) decimal.Decimal {
	return numeric.Div(numeric.ParseDecimal(ether).Mul(shareRateScale), numeric.ParseDecimal(shares))
}

// HandleUsdnReward stores reward/(supply-reward), the supply read after the
// reward was minted.
func (h *Handlers) HandleUsdnReward(ctx context.Context, token string, ts uint64, block *big.Int, data model.RewardEventData) error {
	amount := numeric.ParseBig(data.Amount)
	supply := h.reader.Call(ctx, &h.abis.ERC20, common.HexToAddress(token), "totalSupply", block).BigInt(0)

	rate := numeric.Zero
	if supply.Cmp(amount) > 0 {
		pre := new(big.Int).Sub(supply, amount)
		rate = numeric.Div(numeric.FromBig(amount), numeric.FromBig(pre))
	}
	return h.save(token, ts, rate)
}

// HandleAethRatio stores the raw ratio; the deducer compares two days.
func (h *Handlers) HandleAethRatio(ctx context.Context, token string, ts uint64, data model.RatioUpdateEventData) error {
	return h.save(token, ts, numeric.ParseDecimal(data.NewRatio))
}

// Tokens reports which emitters the handlers accept.
func (c Config) Tokens() (lido, usdn, aeth string) {
	return pricing.Hex(c.Lido.Token), pricing.Hex(c.Usdn.Token), pricing.Hex(c.Aeth.Token)
}
