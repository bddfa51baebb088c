package model

import "github.com/shopspring/decimal"

// PlatformID is the id of the single Platform entity.
const PlatformID = "curve"

// Platform tracks every known pool and the last daily sweep.
type Platform struct {
	ID                 string   `json:"id"`
	PoolAddresses      []string `json:"pool_addresses"`
	LatestPoolSnapshot uint64   `json:"latest_pool_snapshot"`
}

func (p *Platform) EntityKind() Kind { return KindPlatform }
func (p *Platform) EntityID() string  { return p.ID }

// RegistryKind distinguishes stable and crypto registries.
type RegistryKind string

const (
	RegistryStable RegistryKind = "stable"
	RegistryCrypto RegistryKind = "crypto"
)

// Registry is a pool registry announced by the address provider.
type Registry struct {
	ID   string       `json:"id"`
	Kind RegistryKind `json:"kind"`
}

func (r *Registry) EntityKind() Kind { return KindRegistry }
func (r *Registry) EntityID() string  { return r.ID }

// FactoryVersion distinguishes factory ABIs.
type FactoryVersion int

const (
	FactoryStable    FactoryVersion = 12
	FactoryCrypto    FactoryVersion = 20
	FactoryTricrypto FactoryVersion = 30
)

// Factory keeps a running count of pools recovered from pool_list. The
// counter only moves forward.
type Factory struct {
	ID        string         `json:"id"`
	Version   FactoryVersion `json:"version"`
	PoolCount uint64         `json:"pool_count"`
}

func (f *Factory) EntityKind() Kind { return KindFactory }
func (f *Factory) EntityID() string  { return f.ID }

// DailyPlatformSnapshot sums fees over every pool for one day.
type DailyPlatformSnapshot struct {
	ID                string          `json:"id"`
	Timestamp         uint64          `json:"timestamp"`
	AdminFeesUSD      decimal.Decimal `json:"admin_fees_usd"`
	LpFeesUSD         decimal.Decimal `json:"lp_fees_usd"`
	TotalDailyFeesUSD decimal.Decimal `json:"total_daily_fees_usd"`
}

func (s *DailyPlatformSnapshot) EntityKind() Kind { return KindDailyPlatformSnapshot }
func (s *DailyPlatformSnapshot) EntityID() string  { return s.ID }
