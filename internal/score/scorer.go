// Package score derives the per-token momentum score.
//
// Two signal layers feed the score: a short rolling buffer of market-cap
// snapshots (populated from SSE frames and REST refreshes) and the latest
// 5-minute transaction window from the metrics endpoint. Five component
// sub-scores are blended under view-mode-dependent weights; each component
// is shaped to land roughly in ±10.
package score

import (
	"math"
	"sync"
	"time"

	"dex-radar/pkg/types"
)

const (
	// bufferSize bounds the rolling snapshot buffer per token.
	bufferSize = 12
	// slopeSamples is how many of the most recent snapshots feed the
	// short-window momentum blend.
	slopeSamples = 6
	// metricsFreshness is how long a 5m tx window stays usable.
	metricsFreshness = 30 * time.Second
)

// Weights blends the five component sub-scores.
type Weights struct {
	BuyPressure   float64
	NetBuyVolume  float64
	TxnsVelocity  float64
	PriceMomentum float64
	SSEMomentum   float64
}

// defaultWeights applies when a view mode has no override.
var defaultWeights = Weights{0.35, 0.20, 0.15, 0.20, 0.10}

// viewWeights are the per-view-mode overrides. Shorter windows lean harder
// on the SSE-derived short momentum.
var viewWeights = map[types.ViewMode]Weights{
	types.View5m:  {0.25, 0.15, 0.15, 0.25, 0.20},
	types.View30m: {0.30, 0.20, 0.15, 0.20, 0.15},
	types.View1h:  {0.35, 0.20, 0.15, 0.20, 0.10},
	types.View4h:  {0.40, 0.25, 0.15, 0.15, 0.05},
	types.ViewAll: {0.45, 0.30, 0.10, 0.10, 0.05},
}

// WeightsFor returns the blend weights for a view mode.
func WeightsFor(view types.ViewMode) Weights {
	if w, ok := viewWeights[view]; ok {
		return w
	}
	return defaultWeights
}

// Result is one computed score with its components exposed for the UI.
type Result struct {
	Value   float64 `json:"value"`
	HasData bool    `json:"has_data"`

	BuyPressure   float64 `json:"buy_pressure"`
	NetBuyVolume  float64 `json:"net_buy_volume"`
	TxnsVelocity  float64 `json:"txns_velocity"`
	PriceMomentum float64 `json:"price_momentum"`
	SSEMomentum   float64 `json:"sse_momentum"`
}

type snapshot struct {
	at  time.Time
	mc  float64
	vol float64
}

// Scorer keeps the rolling snapshot buffers and the current MVP selection.
// Buffers are mutated only by the tracker's write path (RecordSnapshot) and
// the cleanup path (Remove).
type Scorer struct {
	mu      sync.RWMutex
	buffers map[string][]snapshot

	mvpAddr  string
	mvpSince time.Time
}

// New creates an empty scorer.
func New() *Scorer {
	return &Scorer{buffers: make(map[string][]snapshot)}
}

// RecordSnapshot appends an (mc, vol) observation for addr, evicting the
// oldest entry once the buffer is full.
func (s *Scorer) RecordSnapshot(addr string, mc, vol float64, at time.Time) {
	if mc <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.buffers[addr], snapshot{at: at, mc: mc, vol: vol})
	if len(buf) > bufferSize {
		buf = buf[len(buf)-bufferSize:]
	}
	s.buffers[addr] = buf
}

// Remove drops the buffer for an evicted token.
func (s *Scorer) Remove(addr string) {
	s.mu.Lock()
	delete(s.buffers, addr)
	s.mu.Unlock()
}

// shortMomentum blends the per-step MC slope over the most recent samples,
// weighting newer steps more. Returns false with fewer than 2 samples.
func (s *Scorer) shortMomentum(addr string) (float64, bool) {
	s.mu.RLock()
	buf := s.buffers[addr]
	s.mu.RUnlock()

	if len(buf) < 2 {
		return 0, false
	}
	if len(buf) > slopeSamples {
		buf = buf[len(buf)-slopeSamples:]
	}

	var sum, weightSum float64
	for i := 1; i < len(buf); i++ {
		prev, cur := buf[i-1].mc, buf[i].mc
		if prev <= 0 {
			continue
		}
		w := float64(i) // newer steps weigh more
		sum += w * (cur - prev) / prev
		weightSum += w
	}
	if weightSum == 0 {
		return 0, false
	}
	return sum / weightSum, true
}

// Score computes the blended momentum score for a token under a view mode.
// Stale tx metrics zero the four REST components; the SSE component still
// contributes. HasData is false only when neither layer has anything.
func (s *Scorer) Score(tok *types.Token, view types.ViewMode, now time.Time) Result {
	w := WeightsFor(view)
	var r Result

	sseRaw, sseOK := s.shortMomentum(tok.ContractAddress)
	if sseOK {
		r.SSEMomentum = sseRaw * 100
	}

	metricsFresh := tok.TxMetrics != nil && now.Sub(tok.LastMetricsUpdate) <= metricsFreshness
	if metricsFresh {
		tx := tok.TxMetrics
		total := tx.Buys + tx.Sells

		buyPressure := 0.5
		if total > 0 {
			buyPressure = float64(tx.Buys) / float64(total)
		}
		r.BuyPressure = (buyPressure - 0.5) * 20

		net := tx.BuyUSD - tx.SellUSD
		if net != 0 {
			sign := 1.0
			if net < 0 {
				sign = -1.0
			}
			r.NetBuyVolume = sign * math.Log10(math.Max(math.Abs(net), 1)) * 2
		}

		r.TxnsVelocity = math.Min(float64(total)/10, 10)
		r.PriceMomentum = tx.PriceChangePct * 2
	}

	r.HasData = metricsFresh || sseOK
	r.Value = w.BuyPressure*r.BuyPressure +
		w.NetBuyVolume*r.NetBuyVolume +
		w.TxnsVelocity*r.TxnsVelocity +
		w.PriceMomentum*r.PriceMomentum +
		w.SSEMomentum*r.SSEMomentum
	return r
}

// SelectMVP picks the top-scoring token among the candidates, breaking ties
// by the higher multiplier. mvp_since is preserved while the same winner
// stays selected and resets when the winner changes. Returns nil with no
// candidates.
func (s *Scorer) SelectMVP(candidates []*types.Token, view types.ViewMode, now time.Time) (*types.Token, time.Time) {
	var best *types.Token
	var bestScore float64

	for _, tok := range candidates {
		sc := s.Score(tok, view, now).Value
		if best == nil || sc > bestScore ||
			(sc == bestScore && tok.Multiplier() > best.Multiplier()) {
			best = tok
			bestScore = sc
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if best == nil {
		s.mvpAddr = ""
		s.mvpSince = time.Time{}
		return nil, time.Time{}
	}
	if best.ContractAddress != s.mvpAddr {
		s.mvpAddr = best.ContractAddress
		s.mvpSince = now
	}
	return best, s.mvpSince
}

// HolderMVP scores the holder list on its own formula, built from the
// holder-specific baselines:
//
//	0.40·min(mult/10,1)·100 + 0.30·(current/peak)·100 +
//	0.20·min(vol/100000,1)·100 + 0.10·max(0, 110-10·rank)
func HolderMVP(holders []*types.Token) *types.Token {
	var best *types.Token
	var bestScore float64

	for _, tok := range holders {
		sc := HolderScore(tok)
		if best == nil || sc > bestScore {
			best = tok
			bestScore = sc
		}
	}
	return best
}

// HolderScore computes the holder-list score for a single token.
func HolderScore(tok *types.Token) float64 {
	mult := tok.HolderMultiplier()

	var drawdown float64
	if tok.HolderPeakMC != nil && *tok.HolderPeakMC > 0 && tok.CurrentMC != nil {
		drawdown = *tok.CurrentMC / *tok.HolderPeakMC
	}

	vol := types.FloatVal(tok.Volume24h)

	return 0.40*math.Min(mult/10, 1)*100 +
		0.30*drawdown*100 +
		0.20*math.Min(vol/100000, 1)*100 +
		0.10*math.Max(0, 110-10*float64(tok.HolderRank))
}
