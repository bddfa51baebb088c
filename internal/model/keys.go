package model

import (
	"strconv"
	"strings"
)

// Kind names an entity collection in the store.
type Kind string

const (
	KindPool                    Kind = "pool"
	KindBasePool                Kind = "base_pool"
	KindPlatform                Kind = "platform"
	KindRegistry                Kind = "registry"
	KindFactory                 Kind = "factory"
	KindDailyPoolSnapshot       Kind = "daily_pool_snapshot"
	KindDailyPlatformSnapshot   Kind = "daily_platform_snapshot"
	KindTokenSnapshot           Kind = "token_snapshot"
	KindPriceFeed               Kind = "price_feed"
	KindSwapEvent               Kind = "swap_event"
	KindLiquidityEvent          Kind = "liquidity_event"
	KindCandle                  Kind = "candle"
	KindSwapVolumeSnapshot      Kind = "swap_volume_snapshot"
	KindLiquidityVolumeSnapshot Kind = "liquidity_volume_snapshot"
	KindReplayCursor            Kind = "replay_cursor"
)

// Entity is anything the store can persist.
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

// Interval lengths in seconds.
const (
	Hour uint64 = 60 * 60
	Day         = 24 * Hour
	Week        = 7 * Day
	Year        = 365 * Day
)

// IntervalStart floors ts to a multiple of period.
func IntervalStart(ts, period uint64) uint64 {
	if period == 0 {
		return ts
	}
	return ts - ts%period
}

// NormalizeAddress lowercases a hex address so ids are stable.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func join(parts ...string) string {
	return strings.Join(parts, "-")
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// DailyPoolSnapshotID is pool-dayStart.
func DailyPoolSnapshotID(pool string, ts uint64) string {
	return join(pool, u64(IntervalStart(ts, Day)))
}

// DailyPlatformSnapshotID is the day start.
func DailyPlatformSnapshotID(ts uint64) string {
	return u64(IntervalStart(ts, Day))
}

// TokenSnapshotID is token-hourStart. Pools use the same scheme.
func TokenSnapshotID(token string, ts uint64) string {
	return join(token, u64(IntervalStart(ts, Hour)))
}

// RebaseSnapshotID is token-dayStart-rebase.
func RebaseSnapshotID(token string, ts uint64) string {
	return join(token, u64(IntervalStart(ts, Day)), "rebase")
}

// UnderlyingBasePoolID is pool-underlying, keeping a lending pool's
// underlying coins apart from its plain coin set.
func UnderlyingBasePoolID(pool string) string {
	return join(pool, "underlying")
}

// PriceFeedID is pool-token0-token1.
func PriceFeedID(pool, token0, token1 string) string {
	return join(pool, token0, token1)
}

// EventID is txHash-logIndex.
func EventID(txHash string, logIndex uint64) string {
	return join(strings.ToLower(txHash), u64(logIndex))
}

// CandleID is pool-token0-token1-bucket-period.
func CandleID(pool, token0, token1 string, ts, period uint64) string {
	return join(pool, token0, token1, u64(ts/period), u64(period))
}

// VolumeSnapshotID is pool-period-intervalStart.
func VolumeSnapshotID(pool string, period, ts uint64) string {
	return join(pool, u64(period), u64(IntervalStart(ts, period)))
}
