package track

import (
	"context"
	"slices"
	"time"

	"dex-radar/internal/api"
	"dex-radar/pkg/types"
)

// reconcileLoop keeps the SSE connection pool pointed at the current
// leaderboard. Leaders only change when the ordered top-10 address list
// changes, so an unchanged board causes no connection churn.
func (t *Tracker) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Discovery.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.reconcileLeaders()
			t.checkMVP()
		}
	}
}

func (t *Tracker) reconcileLeaders() {
	top := t.Top10(t.ViewMode())
	leaders := make([]string, len(top))
	for i, tok := range top {
		leaders[i] = tok.ContractAddress
	}

	t.mu.Lock()
	changed := !slices.Equal(leaders, t.lastLeaders)
	if changed {
		t.lastLeaders = leaders
	}
	t.mu.Unlock()

	if changed {
		t.logger.Debug("leader set changed", "leaders", len(leaders))
		t.streams.UpdateLeaders(leaders)
	}
}

// checkMVP pushes a dashboard event when the momentum winner changes. Runs on
// the reconcile cadence so the leaderboard and the MVP move together.
func (t *Tracker) checkMVP() {
	mvp := t.MVP()
	var addr string
	if mvp != nil && mvp.Token != nil {
		addr = mvp.Token.ContractAddress
	}

	t.mu.Lock()
	changed := addr != t.lastMVP
	t.lastMVP = addr
	t.mu.Unlock()

	if !changed || addr == "" {
		return
	}
	t.logger.Info("mvp changed", "address", addr, "score", mvp.Score)
	t.emit(api.NewMVPChangedEvent(mvp.Token, mvp.Score))
}

// handleFrame applies one SSE price frame: derive the market cap from the
// known supply, roll baselines, update peaks and persist under the per-token
// debounce. Runs on the stream read-loop goroutine.
func (t *Tracker) handleFrame(frame types.PriceFrame) {
	now := time.Now()

	t.mu.Lock()
	tok, ok := t.tokens[frame.Address]
	if !ok {
		t.mu.Unlock()
		return
	}

	refresh10sBaselineLocked(tok, now)
	tok.PriceUSD = types.Float(frame.Price)

	var cross *tierCross
	var mc float64
	if tok.TotalSupply != nil && *tok.TotalSupply > 0 {
		mc = frame.Price * *tok.TotalSupply
		tok.PreviousMC = tok.CurrentMC
		tok.CurrentMC = types.Float(mc)
		cross = t.updatePeakLocked(tok)
	}
	tok.LastUpdated = now

	persist := t.markForPersistLocked(tok, now)
	c := *tok
	t.mu.Unlock()

	if mc > 0 {
		t.scorer.RecordSnapshot(frame.Address, mc, types.FloatVal(c.Volume24h), now)
	}
	if cross != nil {
		t.dispatchCross(c, cross)
	}
	if persist {
		t.persistCopy(c)
	}
}
