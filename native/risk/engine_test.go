package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/OlendLabs/olend-risk/native/oracle"
)

func testPolicy() CollateralPolicy {
	return CollateralPolicy{
		BaseCapBps:   map[string]uint64{"bluechip": 9_500, "volatile": 7_000},
		TierBonusBps: map[string]uint64{"gold": 300, "platinum": 500},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(testPolicy(), PenaltyParams{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func exactPrice(asset string, price uint64) oracle.ValidatedPriceInfo {
	return oracle.ValidatedPriceInfo{
		Asset:     asset,
		Price:     price,
		Timestamp: time.Unix(1_700_000_000, 0),
		IsValid:   true,
	}
}

func TestComputeLTVMultiAsset(t *testing.T) {
	engine := newTestEngine(t)
	position := Position{
		Borrower:       "borrower-1",
		Collateral:     map[string]uint64{"BTC": 2, "USDC": 10_000},
		BorrowedAmount: 55_000,
		BorrowedAsset:  "USD",
	}
	prices := map[string]oracle.ValidatedPriceInfo{
		"BTC":  exactPrice("BTC", 50_000),
		"USDC": exactPrice("USDC", 1),
		"USD":  exactPrice("USD", 1),
	}
	ltv, err := engine.ComputeLTV(position, prices)
	if err != nil {
		t.Fatalf("compute ltv: %v", err)
	}
	// 55000 borrowed against 110000 of collateral.
	if ltv != 5_000 {
		t.Fatalf("ltv = %d bps, want 5000", ltv)
	}
}

func TestComputeLTVConservativeBounds(t *testing.T) {
	engine := newTestEngine(t)
	position := Position{
		Borrower:       "borrower-2",
		Collateral:     map[string]uint64{"ATOM": 10},
		BorrowedAmount: 5,
		BorrowedAsset:  "OSMO",
	}
	info := func(asset string) oracle.ValidatedPriceInfo {
		p := exactPrice(asset, 100)
		p.Confidence = 5
		return p
	}
	prices := map[string]oracle.ValidatedPriceInfo{"ATOM": info("ATOM"), "OSMO": info("OSMO")}
	ltv, err := engine.ComputeLTV(position, prices)
	if err != nil {
		t.Fatalf("compute ltv: %v", err)
	}
	// Collateral priced at 95, borrow at 105: 525/950.
	if ltv != 5_526 {
		t.Fatalf("ltv = %d bps, want 5526", ltv)
	}
}

func TestComputeLTVDecimals(t *testing.T) {
	engine := newTestEngine(t)
	position := Position{
		Collateral:     map[string]uint64{"ATOM": 2_000_000},
		BorrowedAmount: 5_000_000,
		BorrowedAsset:  "USD",
	}
	// 2 ATOM at $10 each against $5 borrowed, everything at 6 decimals.
	atom := exactPrice("ATOM", 10_000_000)
	atom.Decimals = 6
	usd := exactPrice("USD", 1_000_000)
	usd.Decimals = 6
	prices := map[string]oracle.ValidatedPriceInfo{
		"ATOM": atom,
		"USD":  usd,
	}
	ltv, err := engine.ComputeLTV(position, prices)
	if err != nil {
		t.Fatalf("compute ltv: %v", err)
	}
	if ltv != 2_500 {
		t.Fatalf("ltv = %d bps, want 2500", ltv)
	}
}

func TestComputeLTVErrors(t *testing.T) {
	engine := newTestEngine(t)
	position := Position{
		Collateral:     map[string]uint64{"ATOM": 10},
		BorrowedAmount: 5,
		BorrowedAsset:  "USD",
	}

	if _, err := engine.ComputeLTV(position, map[string]oracle.ValidatedPriceInfo{}); !errors.Is(err, ErrMissingPrice) {
		t.Fatalf("expected ErrMissingPrice, got %v", err)
	}

	flagged := exactPrice("ATOM", 100)
	flagged.IsValid = false
	prices := map[string]oracle.ValidatedPriceInfo{"ATOM": flagged, "USD": exactPrice("USD", 1)}
	if _, err := engine.ComputeLTV(position, prices); !errors.Is(err, ErrUntrustedPrice) {
		t.Fatalf("expected ErrUntrustedPrice, got %v", err)
	}

	swallowed := exactPrice("ATOM", 10)
	swallowed.Confidence = 10
	prices["ATOM"] = swallowed
	if _, err := engine.ComputeLTV(position, prices); !errors.Is(err, ErrUnpricedAsset) {
		t.Fatalf("expected ErrUnpricedAsset, got %v", err)
	}

	empty := Position{Collateral: map[string]uint64{}, BorrowedAmount: 5, BorrowedAsset: "USD"}
	if _, err := engine.ComputeLTV(empty, prices); !errors.Is(err, ErrNoCollateral) {
		t.Fatalf("expected ErrNoCollateral, got %v", err)
	}
}

func TestTierClassification(t *testing.T) {
	engine := newTestEngine(t)
	cases := []struct {
		ltv  uint64
		want Tier
	}{
		{0, TierHealthy},
		{7_999, TierHealthy},
		{8_000, TierWarning},
		{8_999, TierWarning},
		{9_000, TierLiquidatable},
		{12_000, TierLiquidatable},
	}
	for _, tc := range cases {
		if got := engine.TierFor(tc.ltv); got != tc.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tc.ltv, got, tc.want)
		}
	}
}

func TestMaxAllowedLTV(t *testing.T) {
	engine := newTestEngine(t)

	got, err := engine.MaxAllowedLTV("bluechip", "gold")
	if err != nil || got != 9_800 {
		t.Fatalf("bluechip/gold = %d, %v", got, err)
	}

	// The hard cap clips the tier bonus.
	got, err = engine.MaxAllowedLTV("bluechip", "platinum")
	if err != nil || got != 9_900 {
		t.Fatalf("bluechip/platinum = %d, %v", got, err)
	}

	// Unknown tiers contribute no bonus.
	got, err = engine.MaxAllowedLTV("volatile", "unknown")
	if err != nil || got != 7_000 {
		t.Fatalf("volatile/unknown = %d, %v", got, err)
	}

	if _, err := engine.MaxAllowedLTV("memecoin", "gold"); !errors.Is(err, ErrUnknownAssetClass) {
		t.Fatalf("expected ErrUnknownAssetClass, got %v", err)
	}
}

func TestCheckOrigination(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.CheckOrigination(9_700, "bluechip", "gold"); err != nil {
		t.Fatalf("origination at 9700 against a 9800 cap rejected: %v", err)
	}
	if err := engine.CheckOrigination(9_801, "bluechip", "gold"); !errors.Is(err, ErrExceedsMaxLTV) {
		t.Fatalf("expected ErrExceedsMaxLTV, got %v", err)
	}
}

func TestPenaltyRateCalmMarket(t *testing.T) {
	engine := newTestEngine(t)
	rate, err := engine.PenaltyRate("ATOM")
	if err != nil || rate != 500 {
		t.Fatalf("calm market rate = %d, %v", rate, err)
	}
}

func TestPenaltyRateMarketStress(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.SetMarketFactors(MarketConditionFactors{
		VolatilityLevel: 80,
		LiquidityFactor: 20,
		PriceStability:  60,
	})
	if err != nil {
		t.Fatalf("set market factors: %v", err)
	}
	// 500 * 1.5 volatility step * 1.25 liquidity step.
	rate, err := engine.PenaltyRate("ATOM")
	if err != nil || rate != 937 {
		t.Fatalf("stressed rate = %d, %v", rate, err)
	}
}

func TestPenaltyRateCollapsedStability(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.SetMarketFactors(MarketConditionFactors{
		LiquidityFactor: 100,
		PriceStability:  10,
	})
	if err != nil {
		t.Fatalf("set market factors: %v", err)
	}
	rate, err := engine.PenaltyRate("ATOM")
	if err != nil || rate != 2_000 {
		t.Fatalf("collapsed stability rate = %d, %v", rate, err)
	}
}

func TestPenaltyRateAssetMultiplier(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.SetPenaltyParams(PenaltyParams{
		BaseRateBps:        500,
		MinRateBps:         100,
		MaxRateBps:         2_000,
		AssetMultiplierBps: map[string]uint64{"ATOM": 20_000},
	})
	if err != nil {
		t.Fatalf("set penalty params: %v", err)
	}
	rate, err := engine.PenaltyRate("atom")
	if err != nil || rate != 1_000 {
		t.Fatalf("doubled rate = %d, %v", rate, err)
	}
}

func TestPolicyValidation(t *testing.T) {
	bad := testPolicy()
	bad.WarningThresholdBps = 9_500
	bad.LiquidationThresholdBps = 9_000
	if _, err := NewEngine(bad, PenaltyParams{}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}

	engine := newTestEngine(t)
	if err := engine.SetPenaltyParams(PenaltyParams{MinRateBps: 300, MaxRateBps: 200, BaseRateBps: 250}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	if err := engine.SetMarketFactors(MarketConditionFactors{VolatilityLevel: 150}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}
