package track

import (
	"context"
	"time"

	"dex-radar/internal/api"
	"dex-radar/pkg/types"
)

// discoveryLoop polls the listings feed and adopts unknown contracts that
// come back with usable market data.
func (t *Tracker) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Discovery.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.discover(ctx)
		}
	}
}

func (t *Tracker) discover(ctx context.Context) {
	listings, err := t.provider.Listings(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("listings poll failed", "error", err)
		}
		return
	}

	now := time.Now()
	candidates := make(map[string]types.Listing)

	t.mu.Lock()
	for _, l := range listings {
		addr := l.ContractAddress
		if _, tracked := t.tokens[addr]; tracked {
			continue
		}
		if t.blacklist[addr] {
			continue
		}
		if f, ok := t.failed[addr]; ok {
			if now.Sub(f.at) < t.cfg.Discovery.FailedRetry {
				continue
			}
			delete(t.failed, addr)
		}
		candidates[addr] = l
	}
	t.mu.Unlock()

	if len(candidates) == 0 {
		return
	}

	addrs := make([]string, 0, len(candidates))
	for addr := range candidates {
		addrs = append(addrs, addr)
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
				t.logger.Warn("discovery metrics batch failed", "batch", len(batch), "error", err)
			}
			continue
		}

		for _, addr := range batch {
			m := metrics[addr]
			if m == nil || m.MarketCap <= 0 {
				t.markFailed(addr, "no usable market data")
				continue
			}
			t.adopt(candidates[addr], m)
		}
	}
}

func (t *Tracker) markFailed(addr, reason string) {
	t.mu.Lock()
	t.failed[addr] = failedDiscovery{at: time.Now(), reason: reason}
	t.mu.Unlock()
	t.logger.Debug("discovery failed", "address", addr, "reason", reason)
}

// adopt creates and persists a freshly discovered degen token.
func (t *Tracker) adopt(l types.Listing, m *types.TokenMetrics) {
	now := time.Now()

	name, symbol := l.Name, l.Symbol
	if m.Name != "" {
		name = m.Name
	}
	if m.Symbol != "" {
		symbol = m.Symbol
	}
	logo := l.LogoURL
	if logo == "" {
		logo = m.LogoURL
	}

	tok := &types.Token{
		ID:              l.ContractAddress,
		ContractAddress: l.ContractAddress,
		Name:            name,
		Symbol:          symbol,
		ChainShort:      l.Chain,
		LogoURL:         logo,
		SpottedAt:       now,
		SpottedMC:       types.Float(m.MarketCap),
		CurrentMC:       types.Float(m.MarketCap),
		PeakMC:          types.Float(m.MarketCap),
		PeakMultiplier:  1.0,
		Volume24h:       types.Float(m.Volume24h),
		PriceUSD:        types.Float(m.PriceUSD),
		MC10sAgo:        types.Float(m.MarketCap),
		Vol10sAgo:       types.Float(m.Volume24h),
		Snap10sAt:       now,
		Source:          types.SourceDegen,
		LastUpdated:     now,
		LastDBSave:      now,
	}
	if m.TotalSupply > 0 {
		tok.TotalSupply = types.Float(m.TotalSupply)
	}
	if w, ok := m.Windows["5m"]; ok {
		cp := w
		tok.TxMetrics = &cp
		tok.LastMetricsUpdate = now
	}

	t.mu.Lock()
	if _, tracked := t.tokens[tok.ContractAddress]; tracked {
		t.mu.Unlock()
		return
	}
	t.tokens[tok.ContractAddress] = tok
	t.discovered++
	c := *tok
	t.mu.Unlock()

	t.scorer.RecordSnapshot(tok.ContractAddress, m.MarketCap, m.Volume24h, now)
	t.persistCopy(c)
	t.emit(api.NewDiscoveredEvent(&c))

	t.logger.Info("token discovered",
		"address", tok.ContractAddress,
		"symbol", tok.Symbol,
		"spotted_mc", m.MarketCap,
	)
}
