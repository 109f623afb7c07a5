package risk

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPolicy = errors.New("risk: invalid policy")

// HardCapBps is the default global ceiling no collateral configuration may
// push the maximum loan-to-value past.
const HardCapBps = 9_900

// CollateralPolicy defines the per-asset-class borrowing caps and the
// position health thresholds. Admin-owned; the engine only reads it.
type CollateralPolicy struct {
	// BaseCapBps maps an asset class to its maximum LTV in basis points.
	BaseCapBps map[string]uint64
	// TierBonusBps maps a borrower tier to the additional LTV headroom it
	// unlocks.
	TierBonusBps map[string]uint64
	// HardCapBps is the global ceiling applied after the tier bonus.
	HardCapBps uint64
	// WarningThresholdBps marks positions approaching liquidation.
	WarningThresholdBps uint64
	// LiquidationThresholdBps marks positions eligible for liquidation.
	LiquidationThresholdBps uint64
}

// Normalise applies canonical defaults and defensive copies.
func (p CollateralPolicy) Normalise() CollateralPolicy {
	cfg := CollateralPolicy{
		BaseCapBps:              make(map[string]uint64, len(p.BaseCapBps)),
		TierBonusBps:            make(map[string]uint64, len(p.TierBonusBps)),
		HardCapBps:              p.HardCapBps,
		WarningThresholdBps:     p.WarningThresholdBps,
		LiquidationThresholdBps: p.LiquidationThresholdBps,
	}
	for class, capBps := range p.BaseCapBps {
		cfg.BaseCapBps[class] = capBps
	}
	for tier, bonus := range p.TierBonusBps {
		cfg.TierBonusBps[tier] = bonus
	}
	if cfg.HardCapBps == 0 {
		cfg.HardCapBps = HardCapBps
	}
	if cfg.WarningThresholdBps == 0 {
		cfg.WarningThresholdBps = 8_000
	}
	if cfg.LiquidationThresholdBps == 0 {
		cfg.LiquidationThresholdBps = 9_000
	}
	return cfg
}

// Validate rejects policies outside sane bounds before they are applied.
func (p CollateralPolicy) Validate() error {
	if p.HardCapBps == 0 || p.HardCapBps > 10_000 {
		return fmt.Errorf("%w: hard cap outside (0, 10000]", ErrInvalidPolicy)
	}
	if p.WarningThresholdBps >= p.LiquidationThresholdBps {
		return fmt.Errorf("%w: warning threshold must precede liquidation threshold", ErrInvalidPolicy)
	}
	if p.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("%w: liquidation threshold exceeds 10000", ErrInvalidPolicy)
	}
	for class, capBps := range p.BaseCapBps {
		if capBps == 0 || capBps > 10_000 {
			return fmt.Errorf("%w: base cap for %s outside (0, 10000]", ErrInvalidPolicy, class)
		}
	}
	for tier, bonus := range p.TierBonusBps {
		if bonus > 10_000 {
			return fmt.Errorf("%w: tier bonus for %s exceeds 10000", ErrInvalidPolicy, tier)
		}
	}
	return nil
}

// PenaltyParams selects the dynamic liquidation penalty envelope.
type PenaltyParams struct {
	BaseRateBps uint64
	MinRateBps  uint64
	MaxRateBps  uint64
	// AssetMultiplierBps overrides the default 100% multiplier per asset.
	AssetMultiplierBps map[string]uint64
}

// Normalise applies canonical defaults and defensive copies.
func (p PenaltyParams) Normalise() PenaltyParams {
	cfg := PenaltyParams{
		BaseRateBps:        p.BaseRateBps,
		MinRateBps:         p.MinRateBps,
		MaxRateBps:         p.MaxRateBps,
		AssetMultiplierBps: make(map[string]uint64, len(p.AssetMultiplierBps)),
	}
	for asset, multiplier := range p.AssetMultiplierBps {
		cfg.AssetMultiplierBps[asset] = multiplier
	}
	if cfg.BaseRateBps == 0 {
		cfg.BaseRateBps = 500
	}
	if cfg.MinRateBps == 0 {
		cfg.MinRateBps = 100
	}
	if cfg.MaxRateBps == 0 {
		cfg.MaxRateBps = 2_000
	}
	return cfg
}

// Validate rejects penalty envelopes outside sane bounds.
func (p PenaltyParams) Validate() error {
	if p.MinRateBps > p.MaxRateBps {
		return fmt.Errorf("%w: min penalty rate exceeds max", ErrInvalidPolicy)
	}
	if p.MaxRateBps > 10_000 {
		return fmt.Errorf("%w: max penalty rate exceeds 10000", ErrInvalidPolicy)
	}
	return nil
}

// MarketConditionFactors is the admin- or oracle-fed market snapshot consumed
// for dynamic penalty adjustment. Each level is 0-100.
type MarketConditionFactors struct {
	VolatilityLevel uint8
	LiquidityFactor uint8
	PriceStability  uint8
	LastUpdated     time.Time
}

// Validate rejects factors outside the 0-100 range.
func (m MarketConditionFactors) Validate() error {
	if m.VolatilityLevel > 100 || m.LiquidityFactor > 100 || m.PriceStability > 100 {
		return fmt.Errorf("%w: market factors must be within 0-100", ErrInvalidPolicy)
	}
	return nil
}

// volatilityAdjustmentBps steps the penalty rate up under market stress.
func (m MarketConditionFactors) volatilityAdjustmentBps() uint64 {
	switch {
	case m.VolatilityLevel >= 75:
		return 5_000
	case m.VolatilityLevel >= 50:
		return 2_500
	default:
		return 0
	}
}

// liquidityAdjustmentBps steps the penalty rate up when liquidity thins out.
func (m MarketConditionFactors) liquidityAdjustmentBps() uint64 {
	switch {
	case m.LiquidityFactor <= 25:
		return 2_500
	case m.LiquidityFactor <= 50:
		return 1_000
	default:
		return 0
	}
}
