package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OlendLabs/olend-risk/native/oracle"
	"github.com/OlendLabs/olend-risk/native/safemath"
)

var (
	ErrUnknownAssetClass = errors.New("risk: asset class not configured")
	ErrNoCollateral      = errors.New("risk: position has no collateral value")
	ErrMissingPrice      = errors.New("risk: validated price missing for asset")
	ErrUntrustedPrice    = errors.New("risk: validated price flagged as manipulated")
	ErrUnpricedAsset     = errors.New("risk: confidence interval swallows the price")
	ErrExceedsMaxLTV     = errors.New("risk: requested LTV exceeds the allowed maximum")
)

// Tier classifies a position by its loan-to-value ratio.
type Tier string

const (
	TierHealthy      Tier = "healthy"
	TierWarning      Tier = "warning"
	TierLiquidatable Tier = "liquidatable"
)

// Position is the borrowing layer's view of one loan: collateral amounts per
// asset, the borrowed leg, and bookkeeping timestamps. The engine only reads
// and derives from it.
type Position struct {
	Borrower       string
	Collateral     map[string]uint64
	BorrowedAmount uint64
	BorrowedAsset  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Engine computes position loan-to-value, risk tiers and dynamic liquidation
// penalty rates from admin-owned policy and market snapshots.
type Engine struct {
	mu      sync.RWMutex
	policy  CollateralPolicy
	penalty PenaltyParams
	market  MarketConditionFactors
}

// NewEngine constructs an engine with normalised, validated policy inputs.
func NewEngine(policy CollateralPolicy, penalty PenaltyParams) (*Engine, error) {
	normalisedPolicy := policy.Normalise()
	if err := normalisedPolicy.Validate(); err != nil {
		return nil, err
	}
	normalisedPenalty := penalty.Normalise()
	if err := normalisedPenalty.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		policy:  normalisedPolicy,
		penalty: normalisedPenalty,
		market:  MarketConditionFactors{VolatilityLevel: 0, LiquidityFactor: 100, PriceStability: 100},
	}, nil
}

// SetPolicy replaces the collateral policy. Rejected policies leave the
// previous one untouched.
func (e *Engine) SetPolicy(policy CollateralPolicy) error {
	normalised := policy.Normalise()
	if err := normalised.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.policy = normalised
	e.mu.Unlock()
	return nil
}

// SetPenaltyParams replaces the penalty envelope.
func (e *Engine) SetPenaltyParams(params PenaltyParams) error {
	normalised := params.Normalise()
	if err := normalised.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.penalty = normalised
	e.mu.Unlock()
	return nil
}

// SetMarketFactors replaces the market snapshot consumed by PenaltyRate.
func (e *Engine) SetMarketFactors(factors MarketConditionFactors) error {
	if err := factors.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.market = factors
	e.mu.Unlock()
	return nil
}

// Policy returns the collateral policy currently in effect.
func (e *Engine) Policy() CollateralPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy.Normalise()
}

// ComputeLTV derives the composite loan-to-value ratio in basis points.
// Collateral is priced at the lower bound of its confidence interval and the
// borrowed leg at the upper bound, so both legs bias toward overestimating
// risk. Multi-asset collateral sums per-asset values, which makes the
// composite a value-weighted average rather than an average of ratios.
func (e *Engine) ComputeLTV(position Position, prices map[string]oracle.ValidatedPriceInfo) (uint64, error) {
	var collateralValue uint64
	for asset, amount := range position.Collateral {
		if amount == 0 {
			continue
		}
		info, err := lookupPrice(prices, asset)
		if err != nil {
			return 0, err
		}
		unit, err := safemath.Sub(info.Price, info.Confidence)
		if err != nil || unit == 0 {
			return 0, fmt.Errorf("%w: %s", ErrUnpricedAsset, oracle.NormaliseAsset(asset))
		}
		value, err := assetValue(amount, unit, info.Decimals)
		if err != nil {
			return 0, err
		}
		collateralValue, err = safemath.Add(collateralValue, value)
		if err != nil {
			return 0, err
		}
	}
	if collateralValue == 0 {
		return 0, ErrNoCollateral
	}

	borrowInfo, err := lookupPrice(prices, position.BorrowedAsset)
	if err != nil {
		return 0, err
	}
	borrowUnit, err := safemath.Add(borrowInfo.Price, borrowInfo.Confidence)
	if err != nil {
		return 0, err
	}
	borrowedValue, err := assetValue(position.BorrowedAmount, borrowUnit, borrowInfo.Decimals)
	if err != nil {
		return 0, err
	}

	return safemath.MulDiv(borrowedValue, safemath.BasisPoints, collateralValue)
}

// TierFor classifies the ratio against the policy thresholds.
func (e *Engine) TierFor(ltvBps uint64) Tier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case ltvBps >= e.policy.LiquidationThresholdBps:
		return TierLiquidatable
	case ltvBps >= e.policy.WarningThresholdBps:
		return TierWarning
	default:
		return TierHealthy
	}
}

// Thresholds returns the warning and liquidation thresholds in effect.
func (e *Engine) Thresholds() (warningBps, liquidationBps uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy.WarningThresholdBps, e.policy.LiquidationThresholdBps
}

// MaxAllowedLTV resolves the borrowing cap for an asset class and borrower
// tier, clipped to the global hard ceiling.
func (e *Engine) MaxAllowedLTV(assetClass, borrowerTier string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	base, ok := e.policy.BaseCapBps[assetClass]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAssetClass, assetClass)
	}
	allowed, err := safemath.Add(base, e.policy.TierBonusBps[borrowerTier])
	if err != nil {
		return 0, err
	}
	if allowed > e.policy.HardCapBps {
		allowed = e.policy.HardCapBps
	}
	return allowed, nil
}

// CheckOrigination rejects a prospective position whose LTV would exceed the
// cap for its collateral class and borrower tier.
func (e *Engine) CheckOrigination(ltvBps uint64, assetClass, borrowerTier string) error {
	allowed, err := e.MaxAllowedLTV(assetClass, borrowerTier)
	if err != nil {
		return err
	}
	if ltvBps > allowed {
		return fmt.Errorf("%w: %d bps > %d bps", ErrExceedsMaxLTV, ltvBps, allowed)
	}
	return nil
}

// PenaltyRate selects the dynamic liquidation penalty for the asset:
// base rate scaled by the per-asset multiplier and stepped up by the
// volatility and liquidity adjustments, clamped to the configured envelope.
// Collapsed price stability forces the maximum rate outright.
func (e *Engine) PenaltyRate(asset string) (uint64, error) {
	e.mu.RLock()
	params := e.penalty
	market := e.market
	e.mu.RUnlock()

	if market.PriceStability < 25 {
		return params.MaxRateBps, nil
	}

	multiplier, ok := params.AssetMultiplierBps[oracle.NormaliseAsset(asset)]
	if !ok {
		multiplier = safemath.BasisPoints
	}
	rate, err := safemath.MulDiv(params.BaseRateBps, multiplier, safemath.BasisPoints)
	if err != nil {
		return 0, err
	}
	rate, err = safemath.MulDiv(rate, safemath.BasisPoints+market.volatilityAdjustmentBps(), safemath.BasisPoints)
	if err != nil {
		return 0, err
	}
	rate, err = safemath.MulDiv(rate, safemath.BasisPoints+market.liquidityAdjustmentBps(), safemath.BasisPoints)
	if err != nil {
		return 0, err
	}
	if rate < params.MinRateBps {
		rate = params.MinRateBps
	}
	if rate > params.MaxRateBps {
		rate = params.MaxRateBps
	}
	return rate, nil
}

func lookupPrice(prices map[string]oracle.ValidatedPriceInfo, asset string) (oracle.ValidatedPriceInfo, error) {
	symbol := oracle.NormaliseAsset(asset)
	info, ok := prices[symbol]
	if !ok {
		return oracle.ValidatedPriceInfo{}, fmt.Errorf("%w: %s", ErrMissingPrice, symbol)
	}
	if !info.IsValid {
		return oracle.ValidatedPriceInfo{}, fmt.Errorf("%w: %s", ErrUntrustedPrice, symbol)
	}
	return info, nil
}

func assetValue(amount, unitPrice uint64, decimals uint8) (uint64, error) {
	scale, err := safemath.Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return safemath.MulDiv(amount, unitPrice, scale)
}
