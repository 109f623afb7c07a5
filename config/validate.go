package config

import "fmt"

// ValidateConfig checks every section against the runtime invariants before
// any of it is applied. Violations reject the whole configuration; nothing is
// partially installed.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	for asset, section := range cfg.Feeds {
		if err := section.FeedConfig().Validate(); err != nil {
			return fmt.Errorf("config: feed %s: %w", asset, err)
		}
	}
	if err := cfg.Breaker.Thresholds().Validate(); err != nil {
		return fmt.Errorf("config: breaker defaults: %w", err)
	}
	for key, section := range cfg.BreakerKeys {
		if err := section.Thresholds().Validate(); err != nil {
			return fmt.Errorf("config: breaker %s: %w", key, err)
		}
	}
	if err := cfg.Policy.CollateralPolicy().Validate(); err != nil {
		return fmt.Errorf("config: policy: %w", err)
	}
	if err := cfg.Penalty.PenaltyParams().Validate(); err != nil {
		return fmt.Errorf("config: penalty: %w", err)
	}
	if err := cfg.Distribution.DistributionConfig().Validate(); err != nil {
		return fmt.Errorf("config: distribution: %w", err)
	}
	if err := cfg.Market.MarketFactors().Validate(); err != nil {
		return fmt.Errorf("config: market: %w", err)
	}
	return nil
}
