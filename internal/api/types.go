// Package api exposes the radar's read and control surface over HTTP, plus a
// websocket hub that pushes pipeline events (discoveries, tier crossings,
// MVP changes) to dashboard clients.
//
// Handlers are thin projections of the tracker's in-memory state; the
// tracker is consumed through the Tracker interface so tests can substitute
// a fake.
package api

import (
	"context"
	"time"

	"dex-radar/internal/stream"
	"dex-radar/pkg/types"
)

// Tracker is the read/control surface the handlers need from the pipeline.
type Tracker interface {
	Top10(view types.ViewMode) []*types.Token
	HolderList() []*types.Token
	All() []*types.Token
	Counts() Counts
	MVP() *MVPStatus
	Stats() Stats

	Mode() types.Mode
	SetMode(m types.Mode)
	ViewMode() types.ViewMode
	SetViewMode(v types.ViewMode)

	Tiers() types.AlertTiers
	SetTiers(t types.AlertTiers) error

	AddHolderToken(addr string, rank int) error
	RemoveHolderToken(addr string) error

	Blacklist() ([]types.BlacklistEntry, error)
	BlacklistAdd(addr, name string) error
	BlacklistRemove(addr string) error

	Purge() error
	CheckMC(ctx context.Context, addr string) (*types.TokenMetrics, error)
}

// Counts breaks down the tracked set by source.
type Counts struct {
	Degen       int `json:"degen"`
	Holder      int `json:"holder"`
	ExHolder    int `json:"ex_holder"`
	Total       int `json:"total"`
	Blacklisted int `json:"blacklisted"`
}

// MVPStatus is the current top-scoring token, if any.
type MVPStatus struct {
	Token    *types.Token `json:"token"`
	Score    float64      `json:"score"`
	MVPSince time.Time    `json:"mvp_since"`
}

// Stats is the snapshot returned by /stats.
type Stats struct {
	UptimeSeconds   float64          `json:"uptime_seconds"`
	Counts          Counts           `json:"counts"`
	Stream          stream.Stats     `json:"stream"`
	DiscoveryFailed int              `json:"discovery_failed"`
	Discovered      int              `json:"discovered"`
	Mode            types.Mode       `json:"mode"`
	ViewMode        types.ViewMode   `json:"view_mode"`
	Tiers           types.AlertTiers `json:"tiers"`
}

// Event is one pipeline event pushed to dashboard clients.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Event type tags.
const (
	EventDiscovered  = "discovered"
	EventTierCross   = "tier_cross"
	EventMVPChanged  = "mvp_changed"
	EventPurged      = "purged"
	EventBlacklisted = "blacklisted"
)

// NewTierCrossEvent builds the payload for a multiplier-tier crossing.
func NewTierCrossEvent(tok *types.Token, tier int, multiplier float64) Event {
	return Event{
		Type:      EventTierCross,
		Timestamp: time.Now(),
		Data: map[string]any{
			"contract_address": tok.ContractAddress,
			"symbol":           tok.Symbol,
			"tier":             tier,
			"multiplier":       multiplier,
		},
	}
}

// NewMVPChangedEvent builds the payload for a change of momentum leader.
func NewMVPChangedEvent(tok *types.Token, score float64) Event {
	return Event{
		Type:      EventMVPChanged,
		Timestamp: time.Now(),
		Data: map[string]any{
			"contract_address": tok.ContractAddress,
			"symbol":           tok.Symbol,
			"score":            score,
		},
	}
}

// NewDiscoveredEvent builds the payload for a freshly tracked token.
func NewDiscoveredEvent(tok *types.Token) Event {
	return Event{
		Type:      EventDiscovered,
		Timestamp: time.Now(),
		Data: map[string]any{
			"contract_address": tok.ContractAddress,
			"symbol":           tok.Symbol,
			"spotted_mc":       types.FloatVal(tok.SpottedMC),
		},
	}
}
