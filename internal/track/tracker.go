// Package track is the orchestrator: it owns the in-memory token map and
// runs the three pipeline loops (discovery, SSE reconciliation, background
// REST refresh) plus the SSE frame handler.
//
// All token mutation happens under the tracker's mutex; read projections for
// the HTTP surface return shallow copies. Copies are safe to share because
// optional numeric fields are only ever replaced, never written through.
package track

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dex-radar/internal/alert"
	"dex-radar/internal/api"
	"dex-radar/internal/config"
	"dex-radar/internal/provider"
	"dex-radar/internal/score"
	"dex-radar/internal/stream"
	"dex-radar/internal/store"
	"dex-radar/pkg/types"
)

// EventSink receives pipeline events for dashboard push. The websocket hub
// satisfies this; a nil sink disables push.
type EventSink interface {
	BroadcastEvent(evt api.Event)
}

type failedDiscovery struct {
	at     time.Time
	reason string
}

// Tracker implements api.Tracker and runs the pipeline loops.
type Tracker struct {
	cfg      *config.Config
	provider provider.Provider
	streams  *stream.Manager
	scorer   *score.Scorer
	store    *store.Store
	notifier *alert.Notifier
	sink     EventSink
	logger   *slog.Logger

	mu          sync.RWMutex
	tokens      map[string]*types.Token
	blacklist   map[string]bool
	failed      map[string]failedDiscovery
	mode        types.Mode
	viewMode    types.ViewMode
	tiers       types.AlertTiers
	lastLeaders []string
	lastMVP     string
	discovered  int
	startedAt   time.Time

	runCtx    context.Context
	runCancel context.CancelFunc

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopWG     *sync.WaitGroup
}

// New wires the tracker. Call Start to load persisted state and begin the
// loops.
func New(cfg *config.Config, prov provider.Provider, streams *stream.Manager,
	scorer *score.Scorer, st *store.Store, notifier *alert.Notifier,
	sink EventSink, logger *slog.Logger) *Tracker {

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		cfg:       cfg,
		provider:  prov,
		streams:   streams,
		scorer:    scorer,
		store:     st,
		notifier:  notifier,
		sink:      sink,
		logger:    logger.With("component", "tracker"),
		tokens:    make(map[string]*types.Token),
		blacklist: make(map[string]bool),
		failed:    make(map[string]failedDiscovery),
		mode:      types.ModeDegen,
		viewMode:  types.ViewAll,
		tiers:     types.DefaultTiers(),
		startedAt: time.Now(),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Start loads the persisted state, registers the SSE frame handler and
// launches the pipeline loops.
func (t *Tracker) Start() error {
	tiers, err := t.store.LoadTiers()
	if err != nil {
		t.logger.Warn("load tiers failed, using defaults", "error", err)
	}

	entries, err := t.store.BlacklistList()
	if err != nil {
		t.logger.Warn("load blacklist failed", "error", err)
	}

	cutoff := time.Now().Add(-t.cfg.Discovery.TokenTTL)
	toks, err := t.store.TokensSince(cutoff)
	if err != nil {
		t.logger.Warn("load tokens failed, starting empty", "error", err)
	}

	t.mu.Lock()
	t.tiers = tiers
	for _, e := range entries {
		t.blacklist[e.ContractAddress] = true
	}
	for _, tok := range toks {
		if t.blacklist[tok.ContractAddress] {
			continue
		}
		t.tokens[tok.ContractAddress] = tok
	}
	loaded := len(t.tokens)
	t.mu.Unlock()

	t.logger.Info("state loaded", "tokens", loaded, "blacklisted", len(entries), "tiers", tiers)

	t.streams.OnPriceUpdate(t.handleFrame)
	t.startLoops()
	return nil
}

// Stop halts the loops, closes every price stream and flushes all tokens.
func (t *Tracker) Stop() {
	t.stopLoops()
	t.runCancel()
	t.streams.DisconnectAll()

	t.mu.RLock()
	copies := make([]types.Token, 0, len(t.tokens))
	for _, tok := range t.tokens {
		copies = append(copies, *tok)
	}
	t.mu.RUnlock()

	for i := range copies {
		t.persistCopy(copies[i])
	}
	t.logger.Info("tracker stopped", "flushed", len(copies))
}

func (t *Tracker) startLoops() {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()

	ctx, cancel := context.WithCancel(t.runCtx)
	wg := &sync.WaitGroup{}
	t.loopCancel = cancel
	t.loopWG = wg

	wg.Add(3)
	go func() { defer wg.Done(); t.discoveryLoop(ctx) }()
	go func() { defer wg.Done(); t.reconcileLoop(ctx) }()
	go func() { defer wg.Done(); t.refreshLoop(ctx) }()
}

func (t *Tracker) stopLoops() {
	t.loopMu.Lock()
	cancel, wg := t.loopCancel, t.loopWG
	t.loopCancel, t.loopWG = nil, nil
	t.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wg != nil {
		wg.Wait()
	}
}

func (t *Tracker) emit(evt api.Event) {
	if t.sink != nil {
		t.sink.BroadcastEvent(evt)
	}
}

// persistCopy writes one token snapshot; failures are logged, the in-memory
// state stays authoritative.
func (t *Tracker) persistCopy(c types.Token) {
	if err := t.store.UpsertToken(&c); err != nil {
		t.logger.Error("persist token failed", "address", c.ContractAddress, "error", err)
	}
}

// markForPersistLocked applies the per-token write debounce. Caller holds
// t.mu; returns true when the token should be written now.
func (t *Tracker) markForPersistLocked(tok *types.Token, now time.Time) bool {
	if now.Sub(tok.LastDBSave) < t.cfg.Discovery.SaveDebounce {
		return false
	}
	tok.LastDBSave = now
	return true
}

// refresh10sBaselineLocked rolls the 10-second delta baseline forward once
// the window elapsed. Caller holds t.mu.
func refresh10sBaselineLocked(tok *types.Token, now time.Time) {
	if tok.Snap10sAt.IsZero() || now.Sub(tok.Snap10sAt) >= 10*time.Second {
		tok.MC10sAgo = tok.CurrentMC
		tok.Vol10sAgo = tok.Volume24h
		tok.Snap10sAt = now
	}
}

// refresh10mBaselineLocked rolls the 10-minute baseline used by the holder
// view. Caller holds t.mu.
func refresh10mBaselineLocked(tok *types.Token, now time.Time) {
	if tok.Snap10mAt.IsZero() || now.Sub(tok.Snap10mAt) >= 10*time.Minute {
		tok.MC10mAgo = tok.CurrentMC
		tok.Snap10mAt = now
	}
}

func isHolderSource(s types.Source) bool {
	return s == types.SourceHolder || s == types.SourceExHolder
}

// tierCross describes one detected multiplier-tier crossing.
type tierCross struct {
	level     int
	threshold float64
	announce  bool
}

// updatePeakLocked refreshes the degen and holder peaks after a current_mc
// mutation and detects tier crossings. Caller holds t.mu.
func (t *Tracker) updatePeakLocked(tok *types.Token) *tierCross {
	prev := tok.PeakMultiplier

	if mult := tok.Multiplier(); mult > tok.PeakMultiplier {
		tok.PeakMultiplier = mult
		tok.PeakMC = tok.CurrentMC
	}
	if isHolderSource(tok.Source) {
		if hm := tok.HolderMultiplier(); hm > tok.HolderPeakMultiplier {
			tok.HolderPeakMultiplier = hm
			tok.HolderPeakMC = tok.CurrentMC
		}
	}

	thresholds := []float64{t.tiers.Tier1, t.tiers.Tier2, t.tiers.Tier3}
	var cross *tierCross
	for i := len(thresholds) - 1; i >= 0; i-- {
		if prev < thresholds[i] && tok.PeakMultiplier >= thresholds[i] {
			cross = &tierCross{level: i + 1, threshold: thresholds[i]}
			break
		}
	}
	if cross == nil {
		return nil
	}

	// Tier 3 is one-shot per token lifetime. The flag latches even with the
	// alert sink disabled so a later enable never replays old crossings.
	if cross.level == 3 && tok.Source == types.SourceDegen && !tok.Announced {
		tok.Announced = true
		cross.announce = true
	}
	return cross
}

// dispatchCross pushes the dashboard event and, for a fresh tier-3 on a
// degen token, fires the outbound announcement.
func (t *Tracker) dispatchCross(c types.Token, cross *tierCross) {
	t.emit(api.NewTierCrossEvent(&c, cross.level, c.PeakMultiplier))
	t.logger.Info("tier crossed",
		"address", c.ContractAddress,
		"symbol", c.Symbol,
		"tier", cross.level,
		"multiplier", c.PeakMultiplier,
	)

	if !cross.announce {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(t.runCtx, 15*time.Second)
		defer cancel()
		if err := t.notifier.Notify(ctx, &c, cross.threshold); err != nil {
			t.logger.Error("announcement failed", "address", c.ContractAddress, "error", err)
		}
	}()
}
