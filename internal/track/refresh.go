package track

import (
	"context"
	"time"

	"dex-radar/pkg/types"
)

// refreshLoop drives the background REST refresh and the eviction pass.
// SSE leaders are excluded; their data arrives on the stream path.
func (t *Tracker) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Discovery.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh(ctx)
			t.evict()
		}
	}
}

func (t *Tracker) refresh(ctx context.Context) {
	now := time.Now()

	active := make(map[string]bool)
	for _, addr := range t.streams.ActiveAddresses() {
		active[addr] = true
	}

	t.mu.RLock()
	var addrs []string
	for addr, tok := range t.tokens {
		if active[addr] {
			continue
		}
		if now.Sub(tok.SpottedAt) <= t.cfg.Discovery.MonitorWindow || isHolderSource(tok.Source) {
			addrs = append(addrs, addr)
		}
	}
	t.mu.RUnlock()

	if len(addrs) == 0 {
		return
	}

	for start := 0; start < len(addrs); start += t.cfg.Discovery.BatchSize {
		end := min(start+t.cfg.Discovery.BatchSize, len(addrs))
		batch := addrs[start:end]

		if start > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.cfg.Discovery.InterBatchPause):
			}
		}

		metrics, err := t.provider.BatchMetrics(ctx, batch)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("refresh batch failed", "batch", len(batch), "error", err)
			}
			continue
		}

		for _, addr := range batch {
			if m := metrics[addr]; m != nil {
				t.applyMetrics(addr, m)
			}
		}
	}
}

// applyMetrics folds one REST metrics result into the token: baselines,
// current values, first-data initialisation for holder-adopted tokens, peak
// update and debounced persistence.
func (t *Tracker) applyMetrics(addr string, m *types.TokenMetrics) {
	now := time.Now()

	t.mu.Lock()
	tok, ok := t.tokens[addr]
	if !ok {
		t.mu.Unlock()
		return
	}

	refresh10sBaselineLocked(tok, now)
	if isHolderSource(tok.Source) {
		refresh10mBaselineLocked(tok, now)
	}

	tok.PreviousMC = tok.CurrentMC
	tok.CurrentMC = types.Float(m.MarketCap)
	tok.PreviousVolume24h = tok.Volume24h
	tok.Volume24h = types.Float(m.Volume24h)
	tok.PriceUSD = types.Float(m.PriceUSD)
	if m.TotalSupply > 0 {
		tok.TotalSupply = types.Float(m.TotalSupply)
	}
	if w, ok := m.Windows["5m"]; ok {
		cp := w
		tok.TxMetrics = &cp
	}
	tok.LastMetricsUpdate = now

	if tok.Name == "" && m.Name != "" {
		tok.Name = m.Name
	}
	if tok.Symbol == "" && m.Symbol != "" {
		tok.Symbol = m.Symbol
	}
	// One-shot lazy logo refetch.
	if tok.LogoURL == "" && m.LogoURL != "" {
		tok.LogoURL = m.LogoURL
	}

	// First non-zero observation for a token adopted without data: all
	// baselines initialise together so multipliers start at exactly 1.
	if tok.SpottedMC == nil && m.MarketCap > 0 {
		tok.SpottedMC = types.Float(m.MarketCap)
		tok.PeakMC = types.Float(m.MarketCap)
		tok.PeakMultiplier = 1.0
		if isHolderSource(tok.Source) {
			if tok.HolderSpottedMC == nil {
				tok.HolderSpottedMC = types.Float(m.MarketCap)
			}
			if tok.HolderPeakMC == nil {
				tok.HolderPeakMC = types.Float(m.MarketCap)
				tok.HolderPeakMultiplier = 1.0
			}
			tok.MC10mAgo = types.Float(m.MarketCap)
			tok.Snap10mAt = now
		}
		tok.NeedsDataFetch = false
		t.logger.Info("baselines initialised", "address", addr, "mc", m.MarketCap)
	}

	cross := t.updatePeakLocked(tok)
	tok.LastUpdated = now

	persist := t.markForPersistLocked(tok, now)
	c := *tok
	t.mu.Unlock()

	t.scorer.RecordSnapshot(addr, m.MarketCap, m.Volume24h, now)
	if cross != nil {
		t.dispatchCross(c, cross)
	}
	if persist {
		t.persistCopy(c)
		if err := t.store.AppendPriceHistory(c.ID, m.MarketCap, m.Volume24h); err != nil {
			t.logger.Error("append price history failed", "address", addr, "error", err)
		}
	}
}

// evict drops tokens past the tracking TTL. Holder tokens never expire.
func (t *Tracker) evict() {
	now := time.Now()

	t.mu.Lock()
	var evicted []string
	for addr, tok := range t.tokens {
		if tok.Source == types.SourceHolder {
			continue
		}
		if now.Sub(tok.SpottedAt) > t.cfg.Discovery.TokenTTL {
			delete(t.tokens, addr)
			evicted = append(evicted, addr)
		}
	}
	t.mu.Unlock()

	for _, addr := range evicted {
		t.scorer.Remove(addr)
		t.streams.Disconnect(addr)
	}
	if len(evicted) > 0 {
		t.logger.Info("tokens evicted", "count", len(evicted))
	}
}
