package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
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

type fakeProvider struct {
	mu           sync.Mutex
	listings     []types.Listing
	metrics      map[string]*types.TokenMetrics
	metricsCalls map[string]int
	batchSizes   []int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		metrics:      make(map[string]*types.TokenMetrics),
		metricsCalls: make(map[string]int),
	}
}

func (p *fakeProvider) Listings(ctx context.Context) ([]types.Listing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Listing, len(p.listings))
	copy(out, p.listings)
	return out, nil
}

func (p *fakeProvider) BatchMetrics(ctx context.Context, addrs []string) (map[string]*types.TokenMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchSizes = append(p.batchSizes, len(addrs))
	out := make(map[string]*types.TokenMetrics, len(addrs))
	for _, addr := range addrs {
		p.metricsCalls[addr]++
		out[addr] = p.metrics[addr]
	}
	return out, nil
}

func (p *fakeProvider) OpenPriceStream(ctx context.Context, addr string) (provider.PriceStream, error) {
	return nil, errors.New("no stream in tests")
}

func (p *fakeProvider) setMetrics(addr string, mc, vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics[addr] = &types.TokenMetrics{
		Address:   addr,
		Name:      "Token " + addr,
		Symbol:    addr,
		PriceUSD:  mc / 1e6,
		MarketCap: mc,
		Volume24h: vol,
		Windows:   map[string]types.TxWindow{"5m": {Buys: 3, Sells: 1, BuyUSD: 300, SellUSD: 100}},
	}
}

func (p *fakeProvider) calls(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metricsCalls[addr]
}

func (p *fakeProvider) batches() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.batchSizes))
	copy(out, p.batchSizes)
	return out
}

type captureSink struct {
	mu     sync.Mutex
	events []api.Event
}

func (s *captureSink) BroadcastEvent(evt api.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *captureSink) byType(typ string) []api.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []api.Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTrackerConfig(dbPath string) *config.Config {
	return &config.Config{
		Chain: "sol",
		API:   config.APIConfig{DetailsTimeout: time.Second},
		Discovery: config.DiscoveryConfig{
			PollInterval:      time.Hour,
			RefreshInterval:   time.Hour,
			ReconcileInterval: time.Hour,
			BatchSize:         30,
			FanOut:            4,
			FailedRetry:       5 * time.Minute,
			TokenTTL:          2 * time.Hour,
			MonitorWindow:     time.Hour,
			SaveDebounce:      0,
			InterBatchPause:   time.Millisecond,
		},
		Store: config.StoreConfig{Path: dbPath},
	}
}

func newTestTracker(t *testing.T, prov *fakeProvider) *Tracker {
	t.Helper()

	cfg := testTrackerConfig(filepath.Join(t.TempDir(), "radar.db"))
	st, err := store.Open(cfg.Store, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	streams := stream.NewManager(prov, 10, time.Millisecond, time.Minute, testLogger())
	tr := New(cfg, prov, streams, score.New(), st, alert.New(config.AlertConfig{}, testLogger()), nil, testLogger())

	t.Cleanup(func() {
		tr.Stop()
		st.Close()
	})
	return tr
}

func (t *Tracker) putToken(tok *types.Token) {
	t.mu.Lock()
	t.tokens[tok.ContractAddress] = tok
	t.mu.Unlock()
}

func (t *Tracker) getToken(addr string) (types.Token, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tok, ok := t.tokens[addr]
	if !ok {
		return types.Token{}, false
	}
	return *tok, true
}

func degenToken(addr string, spottedMC, currentMC float64, spotted time.Time) *types.Token {
	return &types.Token{
		ID:              addr,
		ContractAddress: addr,
		Symbol:          addr,
		SpottedAt:       spotted,
		SpottedMC:       types.Float(spottedMC),
		CurrentMC:       types.Float(currentMC),
		PeakMC:          types.Float(currentMC),
		PeakMultiplier:  1.0,
		Source:          types.SourceDegen,
	}
}

func TestDiscoverAdoptsTokensWithData(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	prov.listings = []types.Listing{
		{ContractAddress: "GOOD", Name: "Good", Symbol: "GD", Chain: "sol"},
		{ContractAddress: "NODATA", Name: "NoData", Symbol: "ND", Chain: "sol"},
	}
	prov.setMetrics("GOOD", 5000, 1000)

	tr := newTestTracker(t, prov)
	tr.discover(context.Background())

	tok, ok := tr.getToken("GOOD")
	if !ok {
		t.Fatal("expected GOOD to be tracked")
	}
	if types.FloatVal(tok.SpottedMC) != 5000 || tok.PeakMultiplier != 1.0 {
		t.Errorf("adoption baselines wrong: %+v", tok)
	}
	if tok.Source != types.SourceDegen {
		t.Errorf("expected degen source, got %s", tok.Source)
	}

	if _, ok := tr.getToken("NODATA"); ok {
		t.Error("dataless address must not be tracked")
	}
	tr.mu.RLock()
	_, failed := tr.failed["NODATA"]
	tr.mu.RUnlock()
	if !failed {
		t.Error("dataless address should land in the failed set")
	}
}

func TestDiscoverSplitsMetricsBatches(t *testing.T) {
	t.Parallel()

	listingsFor := func(n int) []types.Listing {
		out := make([]types.Listing, n)
		for i := range out {
			out[i] = types.Listing{ContractAddress: fmt.Sprintf("B%02d", i), Chain: "sol"}
		}
		return out
	}
	seed := func(p *fakeProvider, n int) {
		p.listings = listingsFor(n)
		for _, l := range p.listings {
			p.setMetrics(l.ContractAddress, 5000, 100)
		}
	}

	prov := newFakeProvider()
	seed(prov, 31)
	tr := newTestTracker(t, prov)
	tr.discover(context.Background())

	if got := prov.batches(); len(got) != 2 || got[0] != 30 || got[1] != 1 {
		t.Errorf("31 candidates should fetch as 30+1, got %v", got)
	}
	if counts := tr.Counts(); counts.Total != 31 {
		t.Errorf("expected all 31 candidates adopted, got %d", counts.Total)
	}

	prov = newFakeProvider()
	seed(prov, 30)
	tr = newTestTracker(t, prov)
	tr.discover(context.Background())

	if got := prov.batches(); len(got) != 1 || got[0] != 30 {
		t.Errorf("exactly 30 candidates should fetch in a single batch, got %v", got)
	}
}

func TestDiscoverHonorsFailedRetryWindow(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	prov.listings = []types.Listing{{ContractAddress: "FLAKY", Chain: "sol"}}

	tr := newTestTracker(t, prov)
	tr.discover(context.Background())
	tr.discover(context.Background())

	if got := prov.calls("FLAKY"); got != 1 {
		t.Errorf("failed address should not refetch inside the retry window, got %d calls", got)
	}

	// Age the failure record past the window; the next poll retries.
	tr.mu.Lock()
	tr.failed["FLAKY"] = failedDiscovery{at: time.Now().Add(-10 * time.Minute), reason: "no usable market data"}
	tr.mu.Unlock()

	tr.discover(context.Background())
	if got := prov.calls("FLAKY"); got != 2 {
		t.Errorf("expected a retry after the window, got %d calls", got)
	}
}

func TestDiscoverSkipsBlacklisted(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	prov.listings = []types.Listing{{ContractAddress: "BANNED", Chain: "sol"}}
	prov.setMetrics("BANNED", 5000, 100)

	tr := newTestTracker(t, prov)
	tr.mu.Lock()
	tr.blacklist["BANNED"] = true
	tr.mu.Unlock()

	tr.discover(context.Background())
	if _, ok := tr.getToken("BANNED"); ok {
		t.Error("blacklisted address must never be adopted")
	}
	if prov.calls("BANNED") != 0 {
		t.Error("blacklisted address should not even be fetched")
	}
}

func TestPeakIsMonotone(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	tr.putToken(degenToken("A", 1000, 1000, time.Now()))

	prov.setMetrics("A", 1500, 100)
	tr.applyMetrics("A", prov.metrics["A"])

	tok, _ := tr.getToken("A")
	if tok.PeakMultiplier != 1.5 {
		t.Fatalf("expected peak 1.5, got %f", tok.PeakMultiplier)
	}

	prov.setMetrics("A", 800, 100)
	tr.applyMetrics("A", prov.metrics["A"])

	tok, _ = tr.getToken("A")
	if tok.PeakMultiplier != 1.5 {
		t.Errorf("peak must never decrease, got %f", tok.PeakMultiplier)
	}
	if types.FloatVal(tok.CurrentMC) != 800 || types.FloatVal(tok.PreviousMC) != 1500 {
		t.Errorf("current/previous mc wrong: %+v", tok)
	}
}

func TestTier3AnnouncedLatchesOnce(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	tr.putToken(degenToken("A", 1000, 1000, time.Now()))

	prov.setMetrics("A", 1400, 100) // crosses tier3 at 1.3
	tr.applyMetrics("A", prov.metrics["A"])

	tok, _ := tr.getToken("A")
	if !tok.Announced {
		t.Fatal("tier-3 crossing must latch announced even with the sink disabled")
	}

	// Dip below and spike again: no second crossing is detected.
	prov.setMetrics("A", 900, 100)
	tr.applyMetrics("A", prov.metrics["A"])
	prov.setMetrics("A", 2000, 100)
	tr.applyMetrics("A", prov.metrics["A"])

	tok, _ = tr.getToken("A")
	if !tok.Announced {
		t.Error("announced flag must stay latched")
	}
	if tok.PeakMultiplier != 2.0 {
		t.Errorf("peak should keep climbing, got %f", tok.PeakMultiplier)
	}
}

func TestHolderTokenWithoutDataInitsBaselinesAtomically(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	if err := tr.AddHolderToken("XYZ", 2); err != nil {
		t.Fatalf("add holder: %v", err)
	}

	tok, ok := tr.getToken("XYZ")
	if !ok {
		t.Fatal("holder token must be tracked even without data")
	}
	if !tok.NeedsDataFetch || tok.SpottedMC != nil {
		t.Fatalf("expected a dataless entry, got %+v", tok)
	}
	if len(tr.HolderList()) != 1 {
		t.Fatal("dataless holder must still appear in the holder list")
	}

	prov.setMetrics("XYZ", 4200, 300)
	tr.applyMetrics("XYZ", prov.metrics["XYZ"])

	tok, _ = tr.getToken("XYZ")
	for name, v := range map[string]*float64{
		"spotted_mc":        tok.SpottedMC,
		"peak_mc":           tok.PeakMC,
		"holder_spotted_mc": tok.HolderSpottedMC,
		"holder_peak_mc":    tok.HolderPeakMC,
		"mc_10m_ago":        tok.MC10mAgo,
	} {
		if types.FloatVal(v) != 4200 {
			t.Errorf("%s should initialise to 4200, got %v", name, v)
		}
	}
	if tok.NeedsDataFetch {
		t.Error("needs_data_fetch should clear on first data")
	}
	if tok.PeakMultiplier != 1.0 || tok.HolderPeakMultiplier != 1.0 {
		t.Errorf("multipliers should start at 1, got %f / %f", tok.PeakMultiplier, tok.HolderPeakMultiplier)
	}
}

func TestAddHolderTokenPromotesExisting(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	tr.putToken(degenToken("A", 1000, 2000, time.Now()))

	if err := tr.AddHolderToken("A", 3); err != nil {
		t.Fatalf("promote: %v", err)
	}

	tok, _ := tr.getToken("A")
	if tok.Source != types.SourceHolder || tok.HolderRank != 3 {
		t.Errorf("promotion failed: %+v", tok)
	}
	if types.FloatVal(tok.HolderSpottedMC) != 2000 {
		t.Errorf("holder baseline should seed from current mc, got %v", tok.HolderSpottedMC)
	}
}

func TestRemoveHolderTokenDemotes(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	tok := degenToken("A", 1000, 2000, time.Now())
	tok.Source = types.SourceHolder
	tok.HolderRank = 1
	tr.putToken(tok)

	if err := tr.RemoveHolderToken("A"); err != nil {
		t.Fatalf("demote: %v", err)
	}
	got, _ := tr.getToken("A")
	if got.Source != types.SourceExHolder {
		t.Errorf("expected ex-holder, got %s", got.Source)
	}

	if err := tr.RemoveHolderToken("A"); err == nil {
		t.Error("demoting a non-holder should error")
	}
}

func TestEvictionSparesHolders(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	old := time.Now().Add(-3 * time.Hour)
	tr.putToken(degenToken("OLD", 1000, 1000, old))
	tr.putToken(degenToken("FRESH", 1000, 1000, time.Now()))

	holder := degenToken("KEEPER", 1000, 1000, old)
	holder.Source = types.SourceHolder
	tr.putToken(holder)

	exHolder := degenToken("EX", 1000, 1000, old)
	exHolder.Source = types.SourceExHolder
	tr.putToken(exHolder)

	tr.evict()

	if _, ok := tr.getToken("OLD"); ok {
		t.Error("expired degen token should be evicted")
	}
	if _, ok := tr.getToken("EX"); ok {
		t.Error("expired ex-holder should be evicted")
	}
	if _, ok := tr.getToken("FRESH"); !ok {
		t.Error("fresh token must survive")
	}
	if _, ok := tr.getToken("KEEPER"); !ok {
		t.Error("holder token must never expire")
	}
}

func TestHandleFrameDerivesMarketCap(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	tok := degenToken("A", 1000, 1000, time.Now())
	tok.TotalSupply = types.Float(1000000)
	tr.putToken(tok)

	tr.handleFrame(types.PriceFrame{Address: "A", Price: 0.0012})

	got, _ := tr.getToken("A")
	if types.FloatVal(got.CurrentMC) != 1200 {
		t.Errorf("expected mc 1200 from price*supply, got %v", got.CurrentMC)
	}
	if types.FloatVal(got.PreviousMC) != 1000 {
		t.Errorf("previous mc should roll, got %v", got.PreviousMC)
	}
	if got.PeakMultiplier != 1.2 {
		t.Errorf("peak should update from the frame, got %f", got.PeakMultiplier)
	}
	if types.FloatVal(got.PriceUSD) != 0.0012 {
		t.Errorf("price should be stored, got %v", got.PriceUSD)
	}
}

func TestHandleFrameWithoutSupplyOnlySetsPrice(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	tr.putToken(degenToken("A", 1000, 1000, time.Now()))

	tr.handleFrame(types.PriceFrame{Address: "A", Price: 2.5})

	got, _ := tr.getToken("A")
	if types.FloatVal(got.CurrentMC) != 1000 {
		t.Errorf("mc must not change without a known supply, got %v", got.CurrentMC)
	}
	if types.FloatVal(got.PriceUSD) != 2.5 {
		t.Errorf("price should still update, got %v", got.PriceUSD)
	}
}

func TestTop10FiltersAndSorts(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	now := time.Now()

	for i := 0; i < 12; i++ {
		tok := degenToken(fmt.Sprintf("T%02d", i), 1000, 1000, now)
		tok.PeakMultiplier = 1.2 + 0.1*float64(i)
		tr.putToken(tok)
	}
	below := degenToken("BELOW", 1000, 1000, now)
	below.PeakMultiplier = 1.05 // under tier1
	tr.putToken(below)

	stale := degenToken("STALE", 1000, 1000, now.Add(-30*time.Minute))
	stale.PeakMultiplier = 9.9
	tr.putToken(stale)

	top := tr.Top10(types.View5m)
	if len(top) != 10 {
		t.Fatalf("expected a capped list of 10, got %d", len(top))
	}
	for _, tok := range top {
		if tok.ContractAddress == "BELOW" {
			t.Error("tokens under tier1 must not rank")
		}
		if tok.ContractAddress == "STALE" {
			t.Error("tokens outside the view window must not rank")
		}
	}
	for i := 1; i < len(top); i++ {
		if top[i].PeakMultiplier > top[i-1].PeakMultiplier {
			t.Fatal("top list must sort by peak multiplier descending")
		}
	}

	all := tr.Top10(types.ViewAll)
	found := false
	for _, tok := range all {
		if tok.ContractAddress == "STALE" {
			found = true
		}
	}
	if !found {
		t.Error("all-time view should include the old high flyer")
	}
}

func TestPurgePreservesHoldersAndBlacklist(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	tr.putToken(degenToken("D1", 1000, 1000, time.Now()))
	tr.putToken(degenToken("D2", 1000, 1000, time.Now()))
	holder := degenToken("H1", 1000, 1000, time.Now())
	holder.Source = types.SourceHolder
	holder.HolderRank = 1
	tr.putToken(holder)

	if err := tr.BlacklistAdd("BANNED", "rug"); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	if err := tr.Purge(); err != nil {
		t.Fatalf("purge: %v", err)
	}

	counts := tr.Counts()
	if counts.Degen != 0 || counts.Holder != 1 {
		t.Errorf("expected {degen:0 holder:1}, got %+v", counts)
	}
	if counts.Blacklisted != 1 {
		t.Errorf("blacklist should survive, got %d", counts.Blacklisted)
	}

	entries, err := tr.Blacklist()
	if err != nil {
		t.Fatalf("blacklist list: %v", err)
	}
	if len(entries) != 1 || entries[0].ContractAddress != "BANNED" {
		t.Errorf("stored blacklist should survive bit for bit, got %+v", entries)
	}

	stats := tr.Stats()
	if stats.Discovered != 0 || stats.DiscoveryFailed != 0 {
		t.Errorf("discovery stats should reset, got %+v", stats)
	}
}

func TestBlacklistAddDropsTrackedToken(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	tr.putToken(degenToken("A", 1000, 1000, time.Now()))

	if err := tr.BlacklistAdd("A", "scam"); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, ok := tr.getToken("A"); ok {
		t.Error("blacklisting must drop the token immediately")
	}

	if err := tr.AddHolderToken("A", 1); err == nil {
		t.Error("holder adoption of a blacklisted address must fail")
	}

	if err := tr.BlacklistRemove("A"); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}
	tr.mu.RLock()
	banned := tr.blacklist["A"]
	tr.mu.RUnlock()
	if banned {
		t.Error("cache should clear on removal")
	}
}

func TestSetTiersValidatesAndPersists(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	if err := tr.SetTiers(types.AlertTiers{Tier1: 2, Tier2: 1.5, Tier3: 3}); err == nil {
		t.Error("non-increasing tiers must be rejected")
	}

	want := types.AlertTiers{Tier1: 1.5, Tier2: 2, Tier3: 4}
	if err := tr.SetTiers(want); err != nil {
		t.Fatalf("set tiers: %v", err)
	}
	if tr.Tiers() != want {
		t.Errorf("tiers not applied: %+v", tr.Tiers())
	}

	stored, err := tr.store.LoadTiers()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored != want {
		t.Errorf("tiers not persisted: %+v", stored)
	}
}

func TestModeAndViewModeSwitches(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	if tr.Mode() != types.ModeDegen {
		t.Errorf("default mode should be degen, got %s", tr.Mode())
	}
	tr.SetMode(types.ModeHolder)
	if tr.Mode() != types.ModeHolder {
		t.Error("mode switch lost")
	}

	tr.SetViewMode(types.View5m)
	if tr.ViewMode() != types.View5m {
		t.Error("view mode switch lost")
	}
}

func TestMVPDegenMode(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	weak := degenToken("WEAK", 1000, 1200, time.Now())
	weak.PeakMultiplier = 1.2
	strong := degenToken("STRONG", 1000, 3000, time.Now())
	strong.PeakMultiplier = 3.0
	tr.putToken(weak)
	tr.putToken(strong)

	mvp := tr.MVP()
	if mvp == nil {
		t.Fatal("expected an mvp")
	}
	if mvp.Token.ContractAddress != "STRONG" {
		t.Errorf("tie on score should break by multiplier, got %s", mvp.Token.ContractAddress)
	}
}

func TestCheckMVPEmitsOnWinnerChange(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)
	sink := &captureSink{}
	tr.sink = sink

	tr.checkMVP()
	if got := sink.byType(api.EventMVPChanged); len(got) != 0 {
		t.Fatalf("empty board must not emit, got %d events", len(got))
	}

	strong := degenToken("STRONG", 1000, 3000, time.Now())
	strong.PeakMultiplier = 3.0
	tr.putToken(strong)

	tr.checkMVP()
	events := sink.byType(api.EventMVPChanged)
	if len(events) != 1 {
		t.Fatalf("expected one mvp event, got %d", len(events))
	}
	if data := events[0].Data.(map[string]any); data["contract_address"] != "STRONG" {
		t.Errorf("wrong winner in payload: %v", data)
	}

	tr.checkMVP()
	if got := sink.byType(api.EventMVPChanged); len(got) != 1 {
		t.Error("unchanged winner must not re-emit")
	}

	super := degenToken("SUPER", 1000, 9000, time.Now())
	super.PeakMultiplier = 9.0
	tr.putToken(super)

	tr.checkMVP()
	events = sink.byType(api.EventMVPChanged)
	if len(events) != 2 {
		t.Fatalf("expected a second event after the winner changed, got %d", len(events))
	}
	if data := events[1].Data.(map[string]any); data["contract_address"] != "SUPER" {
		t.Errorf("wrong new winner: %v", data)
	}
}

func TestHolderListOrdersByRank(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	for addr, rank := range map[string]int{"B": 2, "A": 1, "C": 3} {
		tok := degenToken(addr, 1000, 1000, time.Now())
		tok.Source = types.SourceHolder
		tok.HolderRank = rank
		tr.putToken(tok)
	}

	list := tr.HolderList()
	if len(list) != 3 {
		t.Fatalf("expected 3 holders, got %d", len(list))
	}
	for i, want := range []string{"A", "B", "C"} {
		if list[i].ContractAddress != want {
			t.Errorf("rank order broken at %d: got %s", i, list[i].ContractAddress)
		}
	}
}

func TestStartReloadsPersistedState(t *testing.T) {
	t.Parallel()
	prov := newFakeProvider()
	tr := newTestTracker(t, prov)

	tok := degenToken("SAVED", 1000, 2000, time.Now())
	tok.PeakMultiplier = 2.0
	tr.persistCopy(*tok)

	tr2 := New(tr.cfg, prov, stream.NewManager(prov, 10, time.Millisecond, time.Minute, testLogger()),
		score.New(), tr.store, alert.New(config.AlertConfig{}, testLogger()), nil, testLogger())
	if err := tr2.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr2.Stop()

	got, ok := tr2.getToken("SAVED")
	if !ok {
		t.Fatal("persisted token should reload on start")
	}
	if got.PeakMultiplier != 2.0 || types.FloatVal(got.CurrentMC) != 2000 {
		t.Errorf("reload lost fields: %+v", got)
	}
}
