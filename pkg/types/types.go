// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the radar — the tracked Token
// record, tx-window metrics, price stream frames, and view-mode enums. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Source identifies how a token entered the pipeline.
type Source string

const (
	SourceDegen    Source = "degen"     // discovered via the public listings feed
	SourceHolder   Source = "holder"    // adopted from the trusted holder list
	SourceExHolder Source = "ex-holder" // dropped from the holder list, baselines retained
)

// Mode selects which side of the pipeline the UI is focused on.
type Mode string

const (
	ModeDegen  Mode = "degen"
	ModeHolder Mode = "holder"
)

// ViewMode is the time-window filter applied to leaderboard projections.
type ViewMode string

const (
	View5m  ViewMode = "5m"
	View30m ViewMode = "30m"
	View1h  ViewMode = "1h"
	View4h  ViewMode = "4h"
	ViewAll ViewMode = "all-time"
)

// Window returns the lookback duration for a view mode, or 0 for all-time.
func (v ViewMode) Window() time.Duration {
	switch v {
	case View5m:
		return 5 * time.Minute
	case View30m:
		return 30 * time.Minute
	case View1h:
		return time.Hour
	case View4h:
		return 4 * time.Hour
	default:
		return 0
	}
}

// ParseViewMode maps a query-string value to a ViewMode.
// Unknown values fall back to all-time.
func ParseViewMode(s string) ViewMode {
	switch ViewMode(s) {
	case View5m, View30m, View1h, View4h, ViewAll:
		return ViewMode(s)
	default:
		return ViewAll
	}
}

// ————————————————————————————————————————————————————————————————————————
// Token record
// ————————————————————————————————————————————————————————————————————————

// TxWindow holds the transaction statistics for one aggregation window
// (buys/sells counts and USD flow) as reported by the metrics endpoint.
type TxWindow struct {
	Buys           int     `json:"buys"`
	Sells          int     `json:"sells"`
	BuyUSD         float64 `json:"buy_usd"`
	SellUSD        float64 `json:"sell_usd"`
	VolumeUSD      float64 `json:"volume_usd"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// Token is the authoritative in-memory record for one tracked contract.
//
// Optional numerics are pointers: nil means "never observed" and persists as
// NULL, which is distinct from an observed zero. The holder_* fields are only
// meaningful while Source is holder or ex-holder.
type Token struct {
	ID              string `json:"id"`
	ContractAddress string `json:"contract_address"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	ChainShort      string `json:"chain_short"`
	LogoURL         string `json:"logo_url"`

	SpottedAt      time.Time `json:"spotted_at"`
	SpottedMC      *float64  `json:"spotted_mc"`
	CurrentMC      *float64  `json:"current_mc"`
	PreviousMC     *float64  `json:"previous_mc"`
	PeakMC         *float64  `json:"peak_mc"`
	PeakMultiplier float64   `json:"peak_multiplier"`

	Volume24h         *float64 `json:"volume_24h"`
	PreviousVolume24h *float64 `json:"previous_volume_24h"`
	PriceUSD          *float64 `json:"price_usd"`
	TotalSupply       *float64 `json:"total_supply"`

	// TxMetrics is the most recent 5-minute window; fresh iff
	// now - LastMetricsUpdate <= 30s.
	TxMetrics         *TxWindow `json:"tx_metrics"`
	LastMetricsUpdate time.Time `json:"last_metrics_update"`

	// Rolling baselines for UI delta arrows.
	MC10sAgo  *float64  `json:"mc_10s_ago"`
	Vol10sAgo *float64  `json:"vol_10s_ago"`
	Snap10sAt time.Time `json:"-"`
	MC10mAgo  *float64  `json:"mc_10m_ago"`
	Snap10mAt time.Time `json:"-"`

	Source     Source `json:"source"`
	HolderRank int    `json:"holder_rank,omitempty"`

	HolderSpottedAt      time.Time `json:"holder_spotted_at,omitempty"`
	HolderSpottedMC      *float64  `json:"holder_spotted_mc,omitempty"`
	HolderPeakMC         *float64  `json:"holder_peak_mc,omitempty"`
	HolderPeakMultiplier float64   `json:"holder_peak_multiplier,omitempty"`

	// Announced latches once the peak multiplier crosses tier 3; it is never
	// cleared for the lifetime of the entry, even if the alert sink is off.
	Announced      bool `json:"announced"`
	NeedsDataFetch bool `json:"needs_data_fetch,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
	LastDBSave  time.Time `json:"-"`
}

// Multiplier returns current_mc / spotted_mc, or 0 when either is unknown.
func (t *Token) Multiplier() float64 {
	if t.SpottedMC == nil || *t.SpottedMC <= 0 || t.CurrentMC == nil {
		return 0
	}
	return *t.CurrentMC / *t.SpottedMC
}

// HolderMultiplier is the holder-baseline analog of Multiplier.
func (t *Token) HolderMultiplier() float64 {
	if t.HolderSpottedMC == nil || *t.HolderSpottedMC <= 0 || t.CurrentMC == nil {
		return 0
	}
	return *t.CurrentMC / *t.HolderSpottedMC
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 { return &v }

// FloatVal dereferences p, returning 0 for nil.
func FloatVal(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// ————————————————————————————————————————————————————————————————————————
// Provider payloads
// ————————————————————————————————————————————————————————————————————————

// Listing is one entry from the public listings feed, already normalized
// from the upstream's field-name variants.
type Listing struct {
	ContractAddress string `json:"contract_address"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Chain           string `json:"chain"`
	LogoURL         string `json:"logo_url"`
	Paid            bool   `json:"paid"`
}

// TokenMetrics is the per-address result of a batch metrics fetch, reduced
// to the best pool by the (liquidity>0, liquidity, mc>0, mc) ranking.
type TokenMetrics struct {
	Address     string              `json:"address"`
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol"`
	PriceUSD    float64             `json:"price_usd"`
	MarketCap   float64             `json:"market_cap"` // upstream FDV
	Volume24h   float64             `json:"volume_24h"`
	Liquidity   float64             `json:"liquidity"`
	TotalSupply float64             `json:"total_supply"`
	LogoURL     string              `json:"logo_url"`
	Windows     map[string]TxWindow `json:"windows"` // keyed "5m", "15m", ...
}

// PriceFrame is one decoded event from the SSE price stream.
type PriceFrame struct {
	Address        string  `json:"a"`
	Chain          string  `json:"c"`
	Price          float64 `json:"p"`
	Timestamp      int64   `json:"t"`
	PriceTimestamp int64   `json:"t_p"`
}

// ————————————————————————————————————————————————————————————————————————
// Alert tiers & blacklist
// ————————————————————————————————————————————————————————————————————————

// AlertTiers are the three multiplier thresholds; crossing tier 3 triggers
// the outbound announcement.
type AlertTiers struct {
	Tier1 float64 `json:"tier1"`
	Tier2 float64 `json:"tier2"`
	Tier3 float64 `json:"tier3"`
}

// DefaultTiers returns the stock thresholds.
func DefaultTiers() AlertTiers {
	return AlertTiers{Tier1: 1.1, Tier2: 1.2, Tier3: 1.3}
}

// Valid reports whether the tiers are positive and strictly increasing.
func (a AlertTiers) Valid() bool {
	return a.Tier1 > 1 && a.Tier2 > a.Tier1 && a.Tier3 > a.Tier2
}

// BlacklistEntry is one banned contract. Blacklisted addresses are skipped
// by discovery, rejected by holder adoption, and survive purges.
type BlacklistEntry struct {
	ContractAddress string    `json:"contract_address"`
	Name            string    `json:"name"`
	BlacklistedAt   time.Time `json:"blacklisted_at"`
}
