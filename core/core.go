package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/OlendLabs/olend-risk/config"
	"github.com/OlendLabs/olend-risk/core/events"
	"github.com/OlendLabs/olend-risk/native/breaker"
	"github.com/OlendLabs/olend-risk/native/common"
	"github.com/OlendLabs/olend-risk/native/oracle"
	"github.com/OlendLabs/olend-risk/native/penalty"
	"github.com/OlendLabs/olend-risk/native/risk"
	"github.com/OlendLabs/olend-risk/observability"
)

// Operation classes gated by the circuit breaker registry. Keys may be
// crossed with an asset via breaker.Key.
const (
	OpPriceUpdate = "price"
	OpBorrow      = "borrow"
	OpWithdraw    = "withdraw"
	OpLiquidate   = "liquidate"
)

// LiquidationOutcome is the caller-facing verdict for a position.
type LiquidationOutcome string

const (
	OutcomeNone         LiquidationOutcome = "none"
	OutcomeWarn         LiquidationOutcome = "warn"
	OutcomeLiquidatable LiquidationOutcome = "liquidatable"
)

// LiquidationDecision reports the position verdict together with the dynamic
// penalty rate selected when liquidation applies.
type LiquidationDecision struct {
	Outcome        LiquidationOutcome
	LTVBps         uint64
	PenaltyRateBps uint64
}

// RiskCore is the risk-control front door for the borrowing and liquidation
// layers. It owns the price validator, the manipulation detector, the circuit
// breaker registry, the LTV engine and the penalty distributor, and funnels
// every noteworthy outcome through the event emitter and the metrics
// registry.
type RiskCore struct {
	validator *oracle.Validator
	breakers  *breaker.Registry
	engine    *risk.Engine
	distrib   *penalty.Distributor
	feeds     *oracle.FeedRegistry
	emitter   events.Emitter
	adminCap  common.Capability
	clock     func() time.Time
}

// New assembles a risk core from the validated configuration and returns it
// together with the freshly minted admin capability. The capability is handed
// out exactly once; every subsequent configuration mutation must present it.
func New(cfg *config.Config, emitter events.Emitter) (*RiskCore, common.Capability, error) {
	if cfg == nil {
		return nil, common.Capability{}, fmt.Errorf("core: configuration required")
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, common.Capability{}, err
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	instrumented := instrumentedEmitter{next: emitter}

	adminCap := common.NewCapability()

	feeds := oracle.NewFeedRegistry()
	for asset, section := range cfg.Feeds {
		if err := feeds.Put(asset, section.FeedConfig()); err != nil {
			return nil, common.Capability{}, err
		}
	}
	validator := oracle.NewValidator(feeds, oracle.NewDetector(cfg.Detector.DetectorConfig()))
	if cfg.Detector.HistoryCapacity > 0 {
		validator.SetHistoryCapacity(cfg.Detector.HistoryCapacity)
	}

	breakers := breaker.NewRegistry(cfg.Breaker.Thresholds(), adminCap, instrumented)
	for key, section := range cfg.BreakerKeys {
		if err := breakers.SetThresholds(adminCap, key, section.Thresholds()); err != nil {
			return nil, common.Capability{}, err
		}
	}

	engine, err := risk.NewEngine(cfg.Policy.CollateralPolicy(), cfg.Penalty.PenaltyParams())
	if err != nil {
		return nil, common.Capability{}, err
	}
	if err := engine.SetMarketFactors(cfg.Market.MarketFactors()); err != nil {
		return nil, common.Capability{}, err
	}

	distrib, err := penalty.NewDistributor(cfg.Distribution.DistributionConfig())
	if err != nil {
		return nil, common.Capability{}, err
	}

	core := &RiskCore{
		validator: validator,
		breakers:  breakers,
		engine:    engine,
		distrib:   distrib,
		feeds:     feeds,
		emitter:   instrumented,
		adminCap:  adminCap,
		clock:     time.Now,
	}
	return core, adminCap, nil
}

// SetClock overrides the time source for the core and every component it
// owns. Intended for deterministic tests and host-supplied logical clocks.
func (c *RiskCore) SetClock(clock func() time.Time) {
	if c == nil || clock == nil {
		return
	}
	c.clock = clock
	c.validator.SetClock(clock)
	c.breakers.SetClock(clock)
}

// GetValidatedPrice runs a raw observation through the full validation
// pipeline. Staleness and confidence failures abort and count against the
// price breaker for the asset; a manipulation verdict additionally trips the
// breakers of every operation that depends on the price.
func (c *RiskCore) GetValidatedPrice(asset string, rawPrice, confidence uint64, observedAt time.Time) (oracle.ValidatedPriceInfo, error) {
	key := breaker.Key(OpPriceUpdate, asset)
	if !c.breakers.Allow(key) {
		return oracle.ValidatedPriceInfo{}, fmt.Errorf("%w: %s", breaker.ErrCircuitOpen, key)
	}

	info, err := c.validator.Validate(asset, rawPrice, confidence, observedAt)
	if err != nil {
		c.breakers.RecordFailure(key, 0)
		c.emitter.Emit(events.PriceRejected{
			Asset:      oracle.NormaliseAsset(asset),
			Reason:     rejectionReason(err),
			Price:      rawPrice,
			Confidence: confidence,
			ObservedAt: observedAt,
			Timestamp:  c.clock(),
		})
		return oracle.ValidatedPriceInfo{}, err
	}

	if info.ManipulationRisk >= oracle.ManipulationThreshold {
		prev := c.previousPrice(asset)
		c.emitter.Emit(events.ManipulationFlagged{
			Asset:     info.Asset,
			RiskLevel: info.ManipulationRisk,
			Price:     rawPrice,
			PrevPrice: prev,
			Timestamp: c.clock(),
		})
		for _, op := range []string{OpPriceUpdate, OpBorrow, OpWithdraw, OpLiquidate} {
			c.breakers.TripManipulation(breaker.Key(op, asset), info.ManipulationRisk)
		}
		return info, fmt.Errorf("%w: %s", oracle.ErrManipulationDetected, info.Asset)
	}

	c.breakers.RecordSuccess(key, 0)
	return info, nil
}

// IsOperationOpen reports whether the keyed operation may proceed. This is a
// non-aborting decision; callers choose their own fallback when it is false.
func (c *RiskCore) IsOperationOpen(key string) bool {
	return c.breakers.Allow(key)
}

// RecordOperation feeds an operation outcome and its volume back into the
// keyed breaker.
func (c *RiskCore) RecordOperation(key string, success bool, volume uint64) {
	if success {
		c.breakers.RecordSuccess(key, volume)
		return
	}
	c.breakers.RecordFailure(key, volume)
}

// BreakerState returns a point-in-time copy of the keyed breaker.
func (c *RiskCore) BreakerState(key string) breaker.State {
	return c.breakers.State(key)
}

// ComputePositionLTV derives the composite loan-to-value ratio and risk tier
// of a position from the cached validated prices. Crossing the warning
// threshold emits an alert without forcing any action.
func (c *RiskCore) ComputePositionLTV(position risk.Position) (uint64, risk.Tier, error) {
	prices, err := c.collectPrices(position)
	if err != nil {
		return 0, "", err
	}
	ltv, err := c.engine.ComputeLTV(position, prices)
	if err != nil {
		return 0, "", err
	}
	tier := c.engine.TierFor(ltv)
	if tier == risk.TierWarning {
		warnBps, _ := c.engine.Thresholds()
		c.emitter.Emit(events.PositionWarning{
			Borrower:  position.Borrower,
			LTVBps:    ltv,
			WarnBps:   warnBps,
			Timestamp: c.clock(),
		})
	}
	return ltv, tier, nil
}

// ApproveOrigination rejects a prospective position whose LTV would exceed
// the cap for its collateral class and borrower tier.
func (c *RiskCore) ApproveOrigination(position risk.Position, assetClass, borrowerTier string) error {
	prices, err := c.collectPrices(position)
	if err != nil {
		return err
	}
	ltv, err := c.engine.ComputeLTV(position, prices)
	if err != nil {
		return err
	}
	return c.engine.CheckOrigination(ltv, assetClass, borrowerTier)
}

// CheckLiquidation classifies the position and, when it is liquidatable,
// selects the dynamic penalty rate. The rate is the maximum across the
// position's collateral assets so mixed collateral is priced conservatively.
func (c *RiskCore) CheckLiquidation(position risk.Position) (LiquidationDecision, error) {
	ltv, tier, err := c.ComputePositionLTV(position)
	if err != nil {
		return LiquidationDecision{}, err
	}
	switch tier {
	case risk.TierLiquidatable:
		var rate uint64
		for asset := range position.Collateral {
			assetRate, err := c.engine.PenaltyRate(asset)
			if err != nil {
				return LiquidationDecision{}, err
			}
			if assetRate > rate {
				rate = assetRate
			}
		}
		c.emitter.Emit(events.LiquidationEligible{
			Borrower:       position.Borrower,
			LTVBps:         ltv,
			PenaltyRateBps: rate,
			Timestamp:      c.clock(),
		})
		return LiquidationDecision{Outcome: OutcomeLiquidatable, LTVBps: ltv, PenaltyRateBps: rate}, nil
	case risk.TierWarning:
		return LiquidationDecision{Outcome: OutcomeWarn, LTVBps: ltv}, nil
	default:
		return LiquidationDecision{Outcome: OutcomeNone, LTVBps: ltv}, nil
	}
}

// DistributePenalty splits a liquidation penalty exactly among the four
// configured buckets. The core only computes amounts; moving funds stays with
// the asset layer.
func (c *RiskCore) DistributePenalty(amount uint64) (penalty.Distribution, error) {
	dist, err := c.distrib.Distribute(amount)
	if err != nil {
		return penalty.Distribution{}, err
	}
	c.emitter.Emit(events.PenaltyDistributed{
		Total:              amount,
		Liquidator:         dist.Liquidator,
		Platform:           dist.Platform,
		Insurance:          dist.Insurance,
		BorrowerProtection: dist.BorrowerProtection,
		Timestamp:          c.clock(),
	})
	return dist, nil
}

// FeedAssets lists the configured asset symbols in sorted order.
func (c *RiskCore) FeedAssets() []string {
	return c.feeds.Assets()
}

// UpdateFeedConfig installs a new feed envelope for the asset. Admin only.
func (c *RiskCore) UpdateFeedConfig(cap common.Capability, asset string, feed oracle.FeedConfig) error {
	if err := common.Guard(c.adminCap, cap); err != nil {
		return err
	}
	return c.feeds.Put(asset, feed)
}

// UpdateThresholds installs breaker thresholds for a key. Admin only.
func (c *RiskCore) UpdateThresholds(cap common.Capability, key string, t breaker.Thresholds) error {
	return c.breakers.SetThresholds(cap, key, t)
}

// UpdateCollateralPolicy replaces the collateral policy. Admin only.
func (c *RiskCore) UpdateCollateralPolicy(cap common.Capability, policy risk.CollateralPolicy) error {
	if err := common.Guard(c.adminCap, cap); err != nil {
		return err
	}
	return c.engine.SetPolicy(policy)
}

// UpdatePenaltyParams replaces the penalty envelope. Admin only.
func (c *RiskCore) UpdatePenaltyParams(cap common.Capability, params risk.PenaltyParams) error {
	if err := common.Guard(c.adminCap, cap); err != nil {
		return err
	}
	return c.engine.SetPenaltyParams(params)
}

// UpdateDistributionConfig replaces the penalty split. Admin only.
func (c *RiskCore) UpdateDistributionConfig(cap common.Capability, cfg penalty.Config) error {
	if err := common.Guard(c.adminCap, cap); err != nil {
		return err
	}
	return c.distrib.SetConfig(cfg)
}

// UpdateMarketFactors replaces the market snapshot. Admin only.
func (c *RiskCore) UpdateMarketFactors(cap common.Capability, factors risk.MarketConditionFactors) error {
	if err := common.Guard(c.adminCap, cap); err != nil {
		return err
	}
	return c.engine.SetMarketFactors(factors)
}

// SetGlobalEmergency toggles the registry-wide halt. Admin only; never
// recovers automatically.
func (c *RiskCore) SetGlobalEmergency(cap common.Capability, enabled bool) error {
	return c.breakers.SetGlobalEmergency(cap, enabled)
}

func (c *RiskCore) collectPrices(position risk.Position) (map[string]oracle.ValidatedPriceInfo, error) {
	prices := make(map[string]oracle.ValidatedPriceInfo, len(position.Collateral)+1)
	for asset := range position.Collateral {
		info, err := c.validator.LastValidated(asset)
		if err != nil {
			return nil, err
		}
		prices[info.Asset] = info
	}
	info, err := c.validator.LastValidated(position.BorrowedAsset)
	if err != nil {
		return nil, err
	}
	prices[info.Asset] = info
	return prices, nil
}

func (c *RiskCore) previousPrice(asset string) uint64 {
	points := c.validator.HistoryPoints(asset)
	if len(points) < 2 {
		return 0
	}
	return points[len(points)-2].Price
}

// rejectionReason maps the sentinel taxonomy onto stable reason labels for
// events and metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, oracle.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, oracle.ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, oracle.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, oracle.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, oracle.ErrUnknownFeed):
		return "unknown_feed"
	default:
		return "error"
	}
}

// instrumentedEmitter forwards events to the configured sink while keeping
// the prometheus counters in step with every emission.
type instrumentedEmitter struct {
	next events.Emitter
}

func (e instrumentedEmitter) Emit(ev events.Event) {
	switch v := ev.(type) {
	case events.PriceRejected:
		observability.Metrics().RecordPriceRejection(v.Asset, v.Reason)
	case events.ManipulationFlagged:
		observability.Metrics().RecordManipulation(v.Asset, v.RiskLevel)
	case events.BreakerTransition:
		observability.Metrics().RecordTransition(v.Key, v.To)
	case events.PenaltyDistributed:
		observability.Metrics().RecordPenalty("liquidator", v.Liquidator)
		observability.Metrics().RecordPenalty("platform", v.Platform)
		observability.Metrics().RecordPenalty("insurance", v.Insurance)
		observability.Metrics().RecordPenalty("borrower_protection", v.BorrowerProtection)
	}
	e.next.Emit(ev)
}
