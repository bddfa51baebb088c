package replay_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveVolume/internal/model"
	"curveVolume/internal/pricing"
	"curveVolume/internal/pricing/pricingtest"
	"curveVolume/internal/processor"
	"curveVolume/internal/rebase"
	"curveVolume/internal/registry"
	"curveVolume/internal/replay"
	"curveVolume/internal/snapshot"
	"curveVolume/internal/storage"
	"curveVolume/internal/storage/memory"
	"curveVolume/internal/valuation"
)

var (
	steth = common.HexToAddress("0xae7ab96520de3a18e5e111b5eaab095312d7fe84")
	dai   = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	usdc  = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	pool  = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

const day0 uint64 = 1_700_006_400 // a day start

type recorder struct {
	docs []storage.Document
}

func (r *recorder) Publish(_ context.Context, docs []storage.Document) error {
	r.docs = append(r.docs, docs...)
	return nil
}

func newProcessor(t *testing.T, store *memory.Store) *processor.Processor {
	t.Helper()
	m := pricingtest.NewMarket()
	m.Token(dai, 18, "DAI")
	m.Token(usdc, 6, "USDC")
	session := storage.NewSession(store)
	reader := m.Reader()
	snaps := pricing.NewSnapshots(session, m.Resolver(m.Config()))
	reg, err := registry.New(registry.Config{}, reader, m.Metadata(), session, nil, nil)
	require.NoError(t, err)
	valuer := valuation.NewValuer(valuation.Config{}, session, snaps, nil)
	rcfg := rebase.Config{Lido: rebase.LidoConfig{Token: steth}}
	deducer, err := rebase.NewDeducer(rcfg, reader, session, snaps, nil)
	require.NoError(t, err)
	handlers, err := rebase.NewHandlers(reader, session, nil)
	require.NoError(t, err)
	engine, err := snapshot.New(snapshot.Config{}, reader, m.Multicall(), reg, valuer, deducer, session, nil, nil)
	require.NoError(t, err)
	return processor.New(processor.Config{Rebase: rcfg}, reg, engine, valuer, handlers, session, nil, nil)
}

func line(t *testing.T, block, logIndex, ts uint64) string {
	t.Helper()
	decoded, err := json.Marshal(model.TokenRebasedEventData{
		TimeElapsed:     "86400",
		PreTotalShares:  "1000",
		PreTotalEther:   "1000",
		PostTotalShares: "1000",
		PostTotalEther:  "1001",
	})
	require.NoError(t, err)
	out, err := json.Marshal(model.TypedEventRecord{
		BlockNumber: block,
		TxHash:      "0xaa",
		LogIndex:    logIndex,
		Address:     steth.Hex(),
		EventName:   model.EventTokenRebased,
		Timestamp:   ts,
		Decoded:     decoded,
	})
	require.NoError(t, err)
	return string(out)
}

func input(t *testing.T) string {
	return strings.Join([]string{
		line(t, 100, 1, day0),
		"",
		"{not json",
		line(t, 200, 1, day0+model.Day),
		line(t, 100, 1, day0), // overlap from a re-fetched range
		line(t, 300, 4, day0+2*model.Day),
	}, "\n")
}

func TestReplayAppliesInOrderAndSkipsReplays(t *testing.T) {
	store := memory.NewStore()
	state := &replay.FileStateStore{Path: filepath.Join(t.TempDir(), "replay.json")}
	pub := &recorder{}
	r := replay.New(replay.Config{BatchSize: 2}, newProcessor(t, store), state, pub, nil, nil)

	stats, err := r.Replay(context.Background(), strings.NewReader(input(t)))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Applied)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, model.Position{Block: 300, LogIndex: 4}, stats.Position)

	assert.Equal(t, 3, store.Count(model.KindTokenSnapshot))
	assert.Len(t, pub.docs, 3)

	pos, found, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(300), pos.Block)
}

func TestReplayResumesAfterSavedPosition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	state := &replay.FileStateStore{Path: filepath.Join(t.TempDir(), "replay.json")}
	require.NoError(t, state.Save(ctx, model.Position{Block: 200, LogIndex: 1}))

	r := replay.New(replay.Config{}, newProcessor(t, store), state, nil, nil, nil)
	stats, err := r.Replay(ctx, strings.NewReader(input(t)))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, []string{model.RebaseSnapshotID(pricing.Hex(steth), day0+2*model.Day)}, store.IDs(model.KindTokenSnapshot))
}

func TestReplayFromOverridesState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	state := &replay.FileStateStore{Path: filepath.Join(t.TempDir(), "replay.json")}
	require.NoError(t, state.Save(ctx, model.Position{Block: 300, LogIndex: 4}))

	r := replay.New(replay.Config{From: &model.Position{}}, newProcessor(t, store), state, nil, nil, nil)
	stats, err := r.Replay(ctx, strings.NewReader(input(t)))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Applied)
}

func TestFileStateStoreMissingFile(t *testing.T) {
	state := &replay.FileStateStore{Path: filepath.Join(t.TempDir(), "none.json")}
	_, found, err := state.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

type flakyPublisher struct {
	failures int
	docs     []storage.Document
}

func (p *flakyPublisher) Publish(_ context.Context, docs []storage.Document) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.docs = append(p.docs, docs...)
	return nil
}

type flakyState struct {
	replay.FileStateStore
	failures int
}

func (s *flakyState) Save(ctx context.Context, pos model.Position) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	return s.FileStateStore.Save(ctx, pos)
}

func seedPool(t *testing.T, store *memory.Store) {
	t.Helper()
	session := storage.NewSession(store)
	id := pricing.Hex(pool)
	require.NoError(t, session.Save(&model.Pool{
		ID:                  id,
		Address:             id,
		Coins:               []string{pricing.Hex(dai), pricing.Hex(usdc)},
		CoinDecimals:        []int{18, 6},
		AssetType:           model.AssetTypeUSD,
		PoolType:            model.PoolTypeRegistryV1,
		CumulativeVolume:    decimal.Zero,
		CumulativeVolumeUSD: decimal.Zero,
		CumulativeFeesUSD:   decimal.Zero,
	}))
	require.NoError(t, session.Save(&model.Platform{ID: model.PlatformID, PoolAddresses: []string{id}}))
	_, err := session.Flush(context.Background())
	require.NoError(t, err)
}

func swapLine(t *testing.T) string {
	t.Helper()
	decoded, err := json.Marshal(model.TokenExchangeEventData{
		Buyer:        steth.Hex(),
		SoldID:       "0",
		TokensSold:   "1000000000000000000",
		BoughtID:     "1",
		TokensBought: "1000000",
	})
	require.NoError(t, err)
	out, err := json.Marshal(model.TypedEventRecord{
		BlockNumber: 500,
		TxHash:      "0xbb",
		LogIndex:    2,
		Address:     pool.Hex(),
		EventName:   model.EventTokenExchange,
		Timestamp:   day0 + 60,
		Decoded:     decoded,
	})
	require.NoError(t, err)
	return string(out)
}

func assertSwapCountedOnce(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	session := storage.NewSession(store)

	var p model.Pool
	found, err := session.Load(ctx, model.KindPool, pricing.Hex(pool), &p)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, p.CumulativeVolume.Equal(decimal.NewFromInt(1)), "cumulative volume %s", p.CumulativeVolume)

	var daily model.SwapVolumeSnapshot
	found, err = session.Load(ctx, model.KindSwapVolumeSnapshot, model.VolumeSnapshotID(p.ID, model.Day, day0), &daily)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(1), daily.Count)
}

func TestReplayAfterFailedPublishAppliesBatchOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedPool(t, store)
	pub := &flakyPublisher{failures: 1}
	r := replay.New(replay.Config{}, newProcessor(t, store), nil, pub, nil, nil)

	_, err := r.Replay(ctx, strings.NewReader(swapLine(t)))
	require.Error(t, err)
	assert.Equal(t, 0, store.Count(model.KindSwapEvent))

	stats, err := r.Replay(ctx, strings.NewReader(swapLine(t)))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.NotEmpty(t, pub.docs)
	assertSwapCountedOnce(t, store)

	stats, err = r.Replay(ctx, strings.NewReader(swapLine(t)))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Applied)
	assert.Equal(t, 1, stats.Skipped)
	assertSwapCountedOnce(t, store)
}

func TestReplayResumesFromCursorWhenStateSaveFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedPool(t, store)
	state := &flakyState{
		FileStateStore: replay.FileStateStore{Path: filepath.Join(t.TempDir(), "replay.json")},
		failures:       1,
	}

	_, err := replay.New(replay.Config{}, newProcessor(t, store), state, nil, nil, nil).
		Replay(ctx, strings.NewReader(swapLine(t)))
	require.Error(t, err)
	assert.Equal(t, 1, store.Count(model.KindReplayCursor))

	// a restarted process with a fresh session
	stats, err := replay.New(replay.Config{}, newProcessor(t, store), state, nil, nil, nil).
		Replay(ctx, strings.NewReader(swapLine(t)))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Applied)
	assert.Equal(t, 1, stats.Skipped)
	assertSwapCountedOnce(t, store)
}
