package track

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dex-radar/internal/api"
	"dex-radar/internal/score"
	"dex-radar/pkg/types"
)

// Top10 returns up to 10 tokens past the tier-1 threshold inside the view
// window, highest peak multiplier first.
func (t *Tracker) Top10(view types.ViewMode) []*types.Token {
	now := time.Now()
	window := view.Window()

	t.mu.RLock()
	tier1 := t.tiers.Tier1
	out := make([]*types.Token, 0, 10)
	for _, tok := range t.tokens {
		if tok.PeakMultiplier < tier1 {
			continue
		}
		if window > 0 && now.Sub(tok.SpottedAt) > window {
			continue
		}
		c := *tok
		out = append(out, &c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PeakMultiplier != out[j].PeakMultiplier {
			return out[i].PeakMultiplier > out[j].PeakMultiplier
		}
		return out[i].ContractAddress < out[j].ContractAddress
	})
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// HolderList returns the holder tokens ordered by rank.
func (t *Tracker) HolderList() []*types.Token {
	t.mu.RLock()
	out := make([]*types.Token, 0, 8)
	for _, tok := range t.tokens {
		if tok.Source != types.SourceHolder {
			continue
		}
		c := *tok
		out = append(out, &c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].HolderRank < out[j].HolderRank })
	return out
}

// All returns every tracked token, highest peak multiplier first.
func (t *Tracker) All() []*types.Token {
	t.mu.RLock()
	out := make([]*types.Token, 0, len(t.tokens))
	for _, tok := range t.tokens {
		c := *tok
		out = append(out, &c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PeakMultiplier != out[j].PeakMultiplier {
			return out[i].PeakMultiplier > out[j].PeakMultiplier
		}
		return out[i].ContractAddress < out[j].ContractAddress
	})
	return out
}

// Counts breaks the tracked set down by source.
func (t *Tracker) Counts() api.Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var c api.Counts
	for _, tok := range t.tokens {
		switch tok.Source {
		case types.SourceHolder:
			c.Holder++
		case types.SourceExHolder:
			c.ExHolder++
		default:
			c.Degen++
		}
	}
	c.Total = len(t.tokens)
	c.Blacklisted = len(t.blacklist)
	return c
}

// MVP returns the current top performer: the momentum winner among the
// Top10 in degen mode, or the holder-formula winner in holder mode.
func (t *Tracker) MVP() *api.MVPStatus {
	now := time.Now()
	view := t.ViewMode()

	if t.Mode() == types.ModeHolder {
		holders := t.HolderList()
		best := score.HolderMVP(holders)
		if best == nil {
			return nil
		}
		return &api.MVPStatus{
			Token:    best,
			Score:    score.HolderScore(best),
			MVPSince: best.HolderSpottedAt,
		}
	}

	candidates := t.Top10(view)
	best, since := t.scorer.SelectMVP(candidates, view, now)
	if best == nil {
		return nil
	}
	return &api.MVPStatus{
		Token:    best,
		Score:    t.scorer.Score(best, view, now).Value,
		MVPSince: since,
	}
}

// Stats snapshots the pipeline counters for /stats.
func (t *Tracker) Stats() api.Stats {
	counts := t.Counts()

	t.mu.RLock()
	failed := len(t.failed)
	discovered := t.discovered
	mode := t.mode
	view := t.viewMode
	tiers := t.tiers
	started := t.startedAt
	t.mu.RUnlock()

	return api.Stats{
		UptimeSeconds:   time.Since(started).Seconds(),
		Counts:          counts,
		Stream:          t.streams.GetStats(),
		DiscoveryFailed: failed,
		Discovered:      discovered,
		Mode:            mode,
		ViewMode:        view,
		Tiers:           tiers,
	}
}

// Mode returns the current pipeline mode.
func (t *Tracker) Mode() types.Mode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mode
}

// SetMode switches between degen and holder focus.
func (t *Tracker) SetMode(m types.Mode) {
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
	t.logger.Info("mode changed", "mode", m)
}

// ViewMode returns the current leaderboard window.
func (t *Tracker) ViewMode() types.ViewMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewMode
}

// SetViewMode switches the leaderboard window; the next reconcile pass picks
// up the new leader set.
func (t *Tracker) SetViewMode(v types.ViewMode) {
	t.mu.Lock()
	t.viewMode = v
	t.mu.Unlock()
	t.logger.Info("view mode changed", "view_mode", v)
}

// Tiers returns the active alert thresholds.
func (t *Tracker) Tiers() types.AlertTiers {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tiers
}

// SetTiers persists and applies new alert thresholds.
func (t *Tracker) SetTiers(tiers types.AlertTiers) error {
	if !tiers.Valid() {
		return fmt.Errorf("tiers must be > 1 and strictly increasing")
	}
	if err := t.store.SaveTiers(tiers); err != nil {
		return err
	}
	t.mu.Lock()
	t.tiers = tiers
	t.mu.Unlock()
	t.logger.Info("tiers updated", "tier1", tiers.Tier1, "tier2", tiers.Tier2, "tier3", tiers.Tier3)
	return nil
}

// Blacklist lists the banned addresses.
func (t *Tracker) Blacklist() ([]types.BlacklistEntry, error) {
	return t.store.BlacklistList()
}

// BlacklistAdd bans an address and drops it from tracking immediately.
func (t *Tracker) BlacklistAdd(addr, name string) error {
	if err := t.store.BlacklistAdd(addr, name); err != nil {
		return err
	}

	t.mu.Lock()
	t.blacklist[addr] = true
	_, tracked := t.tokens[addr]
	delete(t.tokens, addr)
	t.mu.Unlock()

	if tracked {
		t.scorer.Remove(addr)
		t.streams.Disconnect(addr)
	}
	t.emit(api.Event{Type: api.EventBlacklisted, Timestamp: time.Now(), Data: map[string]string{"contract_address": addr}})
	t.logger.Info("address blacklisted", "address", addr, "name", name)
	return nil
}

// BlacklistRemove lifts a ban; the address becomes discoverable again.
func (t *Tracker) BlacklistRemove(addr string) error {
	if err := t.store.BlacklistRemove(addr); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.blacklist, addr)
	t.mu.Unlock()
	t.logger.Info("address unblacklisted", "address", addr)
	return nil
}

// Purge wipes all degen state and restarts the loops. Holder tokens and the
// blacklist survive; surviving rows are re-persisted because the embedded
// backend resets its file wholesale.
func (t *Tracker) Purge() error {
	t.stopLoops()
	t.streams.UpdateLeaders(nil)

	t.mu.Lock()
	var dropped []string
	for addr, tok := range t.tokens {
		if tok.Source == types.SourceDegen {
			delete(t.tokens, addr)
			dropped = append(dropped, addr)
		}
	}
	survivors := make([]types.Token, 0, len(t.tokens))
	for _, tok := range t.tokens {
		survivors = append(survivors, *tok)
	}
	t.failed = make(map[string]failedDiscovery)
	t.discovered = 0
	t.lastLeaders = nil
	t.lastMVP = ""
	tiers := t.tiers
	t.mu.Unlock()

	for _, addr := range dropped {
		t.scorer.Remove(addr)
	}

	if err := t.store.PurgeDegen(); err != nil {
		t.startLoops()
		return fmt.Errorf("purge: %w", err)
	}
	for i := range survivors {
		t.persistCopy(survivors[i])
	}
	if err := t.store.SaveTiers(tiers); err != nil {
		t.logger.Error("re-save tiers after purge failed", "error", err)
	}

	t.emit(api.Event{Type: api.EventPurged, Timestamp: time.Now(), Data: map[string]int{"dropped": len(dropped)}})
	t.logger.Info("purged", "dropped", len(dropped), "survivors", len(survivors))

	t.startLoops()
	return nil
}

// CheckMC runs a one-off metrics lookup for a single address.
func (t *Tracker) CheckMC(ctx context.Context, addr string) (*types.TokenMetrics, error) {
	metrics, err := t.provider.BatchMetrics(ctx, []string{addr})
	if err != nil {
		return nil, err
	}
	return metrics[addr], nil
}
