package track

import (
	"context"
	"fmt"
	"time"

	"dex-radar/internal/api"
	"dex-radar/pkg/types"
)

// AddHolderToken adopts addr into the holder list at the given rank.
// Already-tracked tokens are promoted in place; unknown ones are fetched,
// and when the upstream has nothing yet the entry is created without data
// and flagged for the background loop to initialise.
func (t *Tracker) AddHolderToken(addr string, rank int) error {
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	if rank <= 0 {
		return fmt.Errorf("rank must be >= 1")
	}

	t.mu.Lock()
	if t.blacklist[addr] {
		t.mu.Unlock()
		return fmt.Errorf("address %s is blacklisted", addr)
	}
	if tok, ok := t.tokens[addr]; ok {
		now := time.Now()
		tok.Source = types.SourceHolder
		tok.HolderRank = rank
		if tok.HolderSpottedAt.IsZero() {
			tok.HolderSpottedAt = now
		}
		if tok.HolderSpottedMC == nil && tok.CurrentMC != nil {
			tok.HolderSpottedMC = tok.CurrentMC
			tok.HolderPeakMC = tok.CurrentMC
			tok.HolderPeakMultiplier = 1.0
			tok.MC10mAgo = tok.CurrentMC
			tok.Snap10mAt = now
		}
		tok.LastUpdated = now
		c := *tok
		t.mu.Unlock()
		t.persistCopy(c)
		t.logger.Info("holder token promoted", "address", addr, "rank", rank)
		return nil
	}
	t.mu.Unlock()

	now := time.Now()
	tok := &types.Token{
		ID:              addr,
		ContractAddress: addr,
		SpottedAt:       now,
		PeakMultiplier:  1.0,
		Source:          types.SourceHolder,
		HolderRank:      rank,
		HolderSpottedAt: now,
		LastUpdated:     now,
	}

	ctx, cancel := context.WithTimeout(t.runCtx, t.cfg.API.DetailsTimeout)
	metrics, err := t.provider.BatchMetrics(ctx, []string{addr})
	cancel()

	if m := metrics[addr]; err == nil && m != nil && m.MarketCap > 0 {
		tok.Name = m.Name
		tok.Symbol = m.Symbol
		tok.LogoURL = m.LogoURL
		tok.SpottedMC = types.Float(m.MarketCap)
		tok.CurrentMC = types.Float(m.MarketCap)
		tok.PeakMC = types.Float(m.MarketCap)
		tok.Volume24h = types.Float(m.Volume24h)
		tok.PriceUSD = types.Float(m.PriceUSD)
		if m.TotalSupply > 0 {
			tok.TotalSupply = types.Float(m.TotalSupply)
		}
		tok.HolderSpottedMC = types.Float(m.MarketCap)
		tok.HolderPeakMC = types.Float(m.MarketCap)
		tok.HolderPeakMultiplier = 1.0
		tok.MC10sAgo = types.Float(m.MarketCap)
		tok.Vol10sAgo = types.Float(m.Volume24h)
		tok.Snap10sAt = now
		tok.MC10mAgo = types.Float(m.MarketCap)
		tok.Snap10mAt = now
	} else {
		// No data yet; the background loop initialises baselines later.
		tok.NeedsDataFetch = true
		t.logger.Warn("holder token adopted without data", "address", addr, "rank", rank)
	}

	t.mu.Lock()
	if _, tracked := t.tokens[addr]; tracked {
		t.mu.Unlock()
		// Lost the race with discovery; re-run as a promotion.
		return t.AddHolderToken(addr, rank)
	}
	t.tokens[addr] = tok
	c := *tok
	t.mu.Unlock()

	if tok.SpottedMC != nil {
		t.scorer.RecordSnapshot(addr, *tok.SpottedMC, types.FloatVal(tok.Volume24h), now)
	}
	t.persistCopy(c)
	t.emit(api.NewDiscoveredEvent(&c))
	t.logger.Info("holder token adopted", "address", addr, "rank", rank)
	return nil
}

// RemoveHolderToken demotes addr to ex-holder. Baselines stay; the normal
// TTL applies again from the original spotted time.
func (t *Tracker) RemoveHolderToken(addr string) error {
	t.mu.Lock()
	tok, ok := t.tokens[addr]
	if !ok || tok.Source != types.SourceHolder {
		t.mu.Unlock()
		return fmt.Errorf("address %s is not a holder token", addr)
	}
	tok.Source = types.SourceExHolder
	tok.LastUpdated = time.Now()
	c := *tok
	t.mu.Unlock()

	t.persistCopy(c)
	t.logger.Info("holder token demoted", "address", addr)
	return nil
}
