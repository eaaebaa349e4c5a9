package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"dex-radar/pkg/types"
)

// maxBatch is the hard cap on addresses per BatchMetrics call.
const maxBatch = 30

// sanityVolumeRatio rejects a result whose 24h volume exceeds this many
// multiples of its market cap — an upstream data glitch, not a real token.
const sanityVolumeRatio = 1000.0

// metricsResponse mirrors the upstream per-address payload. Fields absent in
// the response decode to zero.
type metricsResponse struct {
	Name        string        `json:"name"`
	Symbol      string        `json:"symbol"`
	TotalSupply float64       `json:"total_supply"`
	LastUpdated int64         `json:"last_updated"`
	Summary     metricSummary `json:"summary"`
}

type metricSummary struct {
	PriceUSD     float64      `json:"price_usd"`
	FDV          float64      `json:"fdv"`
	LiquidityUSD float64      `json:"liquidity_usd"`
	ImageURL     string       `json:"image_url"`
	Pools        []poolRecord `json:"pools"`

	M5  txWindowRecord `json:"5m"`
	M15 txWindowRecord `json:"15m"`
	M30 txWindowRecord `json:"30m"`
	H1  txWindowRecord `json:"1h"`
	H6  txWindowRecord `json:"6h"`
	H24 txWindowRecord `json:"24h"`
}

type poolRecord struct {
	PriceUSD     float64 `json:"price_usd"`
	FDV          float64 `json:"fdv"`
	LiquidityUSD float64 `json:"liquidity_usd"`
}

type txWindowRecord struct {
	Buys               int     `json:"buys"`
	Sells              int     `json:"sells"`
	Txns               int     `json:"txns"`
	BuyUSD             float64 `json:"buy_usd"`
	SellUSD            float64 `json:"sell_usd"`
	LastPriceUSDChange float64 `json:"last_price_usd_change"`
	VolumeUSD          float64 `json:"volume_usd"`
}

func (w txWindowRecord) toWindow() types.TxWindow {
	return types.TxWindow{
		Buys:           w.Buys,
		Sells:          w.Sells,
		BuyUSD:         w.BuyUSD,
		SellUSD:        w.SellUSD,
		VolumeUSD:      w.VolumeUSD,
		PriceChangePct: w.LastPriceUSDChange,
	}
}

// BatchMetrics fetches up to maxBatch addresses in parallel, bounded by the
// configured fan-out. Each request is individually rate-limited. Addresses
// with no usable data map to nil.
func (p *HTTPProvider) BatchMetrics(ctx context.Context, addrs []string) (map[string]*types.TokenMetrics, error) {
	if len(addrs) > maxBatch {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(addrs), maxBatch)
	}

	results := make(map[string]*types.TokenMetrics, len(addrs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, p.fanOut)
	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			m := p.fetchOne(ctx, addr)
			mu.Lock()
			results[addr] = m
			mu.Unlock()
		}(addr)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchOne fetches and reduces metrics for a single address. Returns nil on
// any transient failure or semantic rejection; the caller treats nil as
// "no data this round".
func (p *HTTPProvider) fetchOne(ctx context.Context, addr string) *types.TokenMetrics {
	if err := p.limits.WaitMetrics(ctx); err != nil {
		return nil
	}

	var body metricsResponse
	resp, err := p.metrics.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/tokens/" + addr)
	if err != nil {
		p.logger.Debug("metrics fetch failed", "address", addr, "error", err)
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode() != http.StatusOK {
		p.logger.Debug("metrics fetch status", "address", addr, "status", resp.StatusCode())
		return nil
	}

	best, ok := bestPool(body.Summary)
	if !ok {
		return nil
	}

	volume24h := body.Summary.H24.VolumeUSD

	// Garbage guard: volume orders of magnitude above MC is an upstream glitch.
	if best.FDV > 0 && volume24h > sanityVolumeRatio*best.FDV {
		p.logger.Warn("rejecting insane metrics",
			"address", addr,
			"market_cap", best.FDV,
			"volume_24h", volume24h,
		)
		return nil
	}

	windows := map[string]types.TxWindow{
		"5m":  body.Summary.M5.toWindow(),
		"15m": body.Summary.M15.toWindow(),
		"30m": body.Summary.M30.toWindow(),
		"1h":  body.Summary.H1.toWindow(),
		"6h":  body.Summary.H6.toWindow(),
		"24h": body.Summary.H24.toWindow(),
	}

	return &types.TokenMetrics{
		Address:     addr,
		Name:        body.Name,
		Symbol:      body.Symbol,
		PriceUSD:    best.PriceUSD,
		MarketCap:   best.FDV,
		Volume24h:   volume24h,
		Liquidity:   best.LiquidityUSD,
		TotalSupply: body.TotalSupply,
		LogoURL:     body.Summary.ImageURL,
		Windows:     windows,
	}
}

// bestPool picks the pool to trust, ranking lexicographically by
// (liquidity>0, liquidity, mc>0, mc) descending. With no pool list the
// summary-level figures stand in as a single candidate. Returns false when
// no candidate carries a market cap at all.
func bestPool(s metricSummary) (poolRecord, bool) {
	candidates := s.Pools
	if len(candidates) == 0 {
		candidates = []poolRecord{{PriceUSD: s.PriceUSD, FDV: s.FDV, LiquidityUSD: s.LiquidityUSD}}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if poolLess(best, c) {
			best = c
		}
	}

	if best.FDV <= 0 {
		return poolRecord{}, false
	}
	return best, true
}

// poolLess reports whether b outranks a.
func poolLess(a, b poolRecord) bool {
	aLiq, bLiq := a.LiquidityUSD > 0, b.LiquidityUSD > 0
	if aLiq != bLiq {
		return bLiq
	}
	if a.LiquidityUSD != b.LiquidityUSD {
		return b.LiquidityUSD > a.LiquidityUSD
	}
	aMC, bMC := a.FDV > 0, b.FDV > 0
	if aMC != bMC {
		return bMC
	}
	return b.FDV > a.FDV
}
