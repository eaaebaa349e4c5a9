package types

import (
	"testing"
	"time"
)

func TestViewModeWindow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		view ViewMode
		want time.Duration
	}{
		{View5m, 5 * time.Minute},
		{View30m, 30 * time.Minute},
		{View1h, time.Hour},
		{View4h, 4 * time.Hour},
		{ViewAll, 0},
	}
	for _, tc := range cases {
		if got := tc.view.Window(); got != tc.want {
			t.Errorf("%s: want %v got %v", tc.view, tc.want, got)
		}
	}
}

func TestParseViewModeFallsBack(t *testing.T) {
	t.Parallel()

	if got := ParseViewMode("30m"); got != View30m {
		t.Errorf("want 30m, got %s", got)
	}
	if got := ParseViewMode("yesterday"); got != ViewAll {
		t.Errorf("unknown value should fall back to all-time, got %s", got)
	}
	if got := ParseViewMode(""); got != ViewAll {
		t.Errorf("empty value should fall back to all-time, got %s", got)
	}
}

func TestMultiplier(t *testing.T) {
	t.Parallel()

	tok := &Token{SpottedMC: Float(1000), CurrentMC: Float(2500)}
	if got := tok.Multiplier(); got != 2.5 {
		t.Errorf("want 2.5, got %f", got)
	}

	if got := (&Token{CurrentMC: Float(2500)}).Multiplier(); got != 0 {
		t.Errorf("unknown baseline should yield 0, got %f", got)
	}
	if got := (&Token{SpottedMC: Float(0), CurrentMC: Float(2500)}).Multiplier(); got != 0 {
		t.Errorf("zero baseline should yield 0, got %f", got)
	}
}

func TestHolderMultiplier(t *testing.T) {
	t.Parallel()

	tok := &Token{HolderSpottedMC: Float(500), CurrentMC: Float(2000)}
	if got := tok.HolderMultiplier(); got != 4.0 {
		t.Errorf("want 4.0, got %f", got)
	}
	if got := (&Token{}).HolderMultiplier(); got != 0 {
		t.Errorf("missing baselines should yield 0, got %f", got)
	}
}

func TestAlertTiersValid(t *testing.T) {
	t.Parallel()

	if !DefaultTiers().Valid() {
		t.Error("defaults must validate")
	}
	bad := []AlertTiers{
		{Tier1: 1.0, Tier2: 1.2, Tier3: 1.3}, // tier1 not above 1
		{Tier1: 1.2, Tier2: 1.1, Tier3: 1.3}, // not increasing
		{Tier1: 1.1, Tier2: 1.2, Tier3: 1.2}, // tier3 not above tier2
	}
	for i, tiers := range bad {
		if tiers.Valid() {
			t.Errorf("case %d should be invalid: %+v", i, tiers)
		}
	}
}

func TestFloatHelpers(t *testing.T) {
	t.Parallel()

	if FloatVal(nil) != 0 {
		t.Error("nil should dereference to 0")
	}
	if p := Float(3.25); *p != 3.25 {
		t.Errorf("want 3.25, got %f", *p)
	}
}
