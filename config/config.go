package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/OlendLabs/olend-risk/native/breaker"
	"github.com/OlendLabs/olend-risk/native/oracle"
	"github.com/OlendLabs/olend-risk/native/penalty"
	"github.com/OlendLabs/olend-risk/native/risk"
)

// Config captures the runtime configuration for the risk core. Durations are
// expressed in seconds to keep the TOML surface explicit.
type Config struct {
	Feeds        map[string]FeedSection    `toml:"feeds"`
	Breaker      BreakerDefaults           `toml:"breaker"`
	BreakerKeys  map[string]BreakerSection `toml:"breakers"`
	Policy       PolicySection             `toml:"policy"`
	Penalty      PenaltySection            `toml:"penalty"`
	Distribution DistributionSection       `toml:"distribution"`
	Market       MarketSection             `toml:"market"`
	Detector     DetectorSection           `toml:"detector"`
}

// FeedSection configures one asset's price feed envelope.
type FeedSection struct {
	FeedID                string `toml:"FeedID"`
	Decimals              uint8  `toml:"Decimals"`
	HeartbeatSeconds      int64  `toml:"HeartbeatSeconds"`
	MaxDeviationBps       uint64 `toml:"MaxDeviationBps"`
	MaxConfidenceRatioBps uint64 `toml:"MaxConfidenceRatioBps"`
}

// FeedConfig converts the section into the oracle's runtime representation.
func (s FeedSection) FeedConfig() oracle.FeedConfig {
	return oracle.FeedConfig{
		FeedID:                s.FeedID,
		Decimals:              s.Decimals,
		Heartbeat:             time.Duration(s.HeartbeatSeconds) * time.Second,
		MaxDeviationBps:       s.MaxDeviationBps,
		MaxConfidenceRatioBps: s.MaxConfidenceRatioBps,
	}.Normalise()
}

// BreakerDefaults configures the registry-wide default thresholds.
type BreakerDefaults struct {
	FailureThreshold       uint32 `toml:"FailureThreshold"`
	TimeWindowSeconds      int64  `toml:"TimeWindowSeconds"`
	RecoveryTimeoutSeconds int64  `toml:"RecoveryTimeoutSeconds"`
	VolumeThreshold        uint64 `toml:"VolumeThreshold"`
}

// BreakerSection configures a per-operation-key override.
type BreakerSection struct {
	FailureThreshold       uint32 `toml:"FailureThreshold"`
	TimeWindowSeconds      int64  `toml:"TimeWindowSeconds"`
	RecoveryTimeoutSeconds int64  `toml:"RecoveryTimeoutSeconds"`
	VolumeThreshold        uint64 `toml:"VolumeThreshold"`
}

// Thresholds converts the defaults into the registry's runtime form.
func (s BreakerDefaults) Thresholds() breaker.Thresholds {
	return breaker.Thresholds{
		FailureThreshold: s.FailureThreshold,
		TimeWindow:       time.Duration(s.TimeWindowSeconds) * time.Second,
		RecoveryTimeout:  time.Duration(s.RecoveryTimeoutSeconds) * time.Second,
		VolumeThreshold:  s.VolumeThreshold,
	}.Normalise()
}

// Thresholds converts the override into the registry's runtime form.
func (s BreakerSection) Thresholds() breaker.Thresholds {
	return BreakerDefaults(s).Thresholds()
}

// PolicySection configures collateral caps and health thresholds.
type PolicySection struct {
	BaseCapBps              map[string]uint64 `toml:"BaseCapBps"`
	TierBonusBps            map[string]uint64 `toml:"TierBonusBps"`
	HardCapBps              uint64            `toml:"HardCapBps"`
	WarningThresholdBps     uint64            `toml:"WarningThresholdBps"`
	LiquidationThresholdBps uint64            `toml:"LiquidationThresholdBps"`
}

// CollateralPolicy converts the section into the engine's runtime form.
func (s PolicySection) CollateralPolicy() risk.CollateralPolicy {
	return risk.CollateralPolicy{
		BaseCapBps:              s.BaseCapBps,
		TierBonusBps:            s.TierBonusBps,
		HardCapBps:              s.HardCapBps,
		WarningThresholdBps:     s.WarningThresholdBps,
		LiquidationThresholdBps: s.LiquidationThresholdBps,
	}.Normalise()
}

// PenaltySection configures the dynamic liquidation penalty envelope.
type PenaltySection struct {
	BaseRateBps        uint64            `toml:"BaseRateBps"`
	MinRateBps         uint64            `toml:"MinRateBps"`
	MaxRateBps         uint64            `toml:"MaxRateBps"`
	AssetMultiplierBps map[string]uint64 `toml:"AssetMultiplierBps"`
}

// PenaltyParams converts the section into the engine's runtime form.
func (s PenaltySection) PenaltyParams() risk.PenaltyParams {
	return risk.PenaltyParams{
		BaseRateBps:        s.BaseRateBps,
		MinRateBps:         s.MinRateBps,
		MaxRateBps:         s.MaxRateBps,
		AssetMultiplierBps: s.AssetMultiplierBps,
	}.Normalise()
}

// DistributionSection configures the four-way penalty split.
type DistributionSection struct {
	LiquidatorBps      uint64 `toml:"LiquidatorBps"`
	PlatformBps        uint64 `toml:"PlatformBps"`
	InsuranceBps       uint64 `toml:"InsuranceBps"`
	BorrowerProtection bool   `toml:"BorrowerProtection"`
}

// DistributionConfig converts the section into the distributor's runtime form.
func (s DistributionSection) DistributionConfig() penalty.Config {
	return penalty.Config{
		LiquidatorBps:      s.LiquidatorBps,
		PlatformBps:        s.PlatformBps,
		InsuranceBps:       s.InsuranceBps,
		BorrowerProtection: s.BorrowerProtection,
	}
}

// MarketSection seeds the initial market condition snapshot.
type MarketSection struct {
	VolatilityLevel uint8 `toml:"VolatilityLevel"`
	LiquidityFactor uint8 `toml:"LiquidityFactor"`
	PriceStability  uint8 `toml:"PriceStability"`
}

// MarketFactors converts the section into the engine's runtime form. An
// entirely unset section defaults to a calm market snapshot.
func (s MarketSection) MarketFactors() risk.MarketConditionFactors {
	if s == (MarketSection{}) {
		return risk.MarketConditionFactors{LiquidityFactor: 100, PriceStability: 100}
	}
	return risk.MarketConditionFactors{
		VolatilityLevel: s.VolatilityLevel,
		LiquidityFactor: s.LiquidityFactor,
		PriceStability:  s.PriceStability,
	}
}

// DetectorSection configures the adversarial-pattern thresholds.
type DetectorSection struct {
	DriftWindow         int    `toml:"DriftWindow"`
	CumulativeDriftBps  uint64 `toml:"CumulativeDriftBps"`
	OscillationLookback int    `toml:"OscillationLookback"`
	HistoryCapacity     int    `toml:"HistoryCapacity"`
}

// DetectorConfig converts the section into the detector's runtime form.
func (s DetectorSection) DetectorConfig() oracle.DetectorConfig {
	return oracle.DetectorConfig{
		DriftWindow:         s.DriftWindow,
		CumulativeDriftBps:  s.CumulativeDriftBps,
		OscillationLookback: s.OscillationLookback,
	}.Normalise()
}

// Load reads and validates the configuration at the given path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: %s contains unknown key %s", path, undecoded[0])
	}
	if cfg.Feeds == nil {
		cfg.Feeds = map[string]FeedSection{}
	}
	if cfg.BreakerKeys == nil {
		cfg.BreakerKeys = map[string]BreakerSection{}
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
