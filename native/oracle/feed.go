package oracle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnknownFeed   = errors.New("oracle: feed not configured")
	ErrInvalidConfig = errors.New("oracle: invalid feed config")
)

// FeedConfig describes the validation envelope for a single asset's upstream
// price feed. Updated only through capability-gated admin calls.
type FeedConfig struct {
	// FeedID identifies the upstream feed the asset maps to.
	FeedID string
	// Decimals is the decimal exponent applied to raw prices.
	Decimals uint8
	// Heartbeat is the expected update interval; observations older than
	// this relative to the validation clock are rejected as stale.
	Heartbeat time.Duration
	// MaxDeviationBps bounds the acceptable single-step relative price
	// change, expressed in basis points.
	MaxDeviationBps uint64
	// MaxConfidenceRatioBps bounds confidence/price; wider intervals are
	// rejected as low confidence.
	MaxConfidenceRatioBps uint64
}

// Normalise trims identifiers and applies canonical defaults.
func (c FeedConfig) Normalise() FeedConfig {
	cfg := c
	cfg.FeedID = strings.TrimSpace(cfg.FeedID)
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 60 * time.Second
	}
	if cfg.MaxDeviationBps == 0 {
		cfg.MaxDeviationBps = 1_000
	}
	if cfg.MaxConfidenceRatioBps == 0 {
		cfg.MaxConfidenceRatioBps = 200
	}
	return cfg
}

// Validate rejects configurations outside sane bounds before they are applied.
func (c FeedConfig) Validate() error {
	if strings.TrimSpace(c.FeedID) == "" {
		return fmt.Errorf("%w: feed id required", ErrInvalidConfig)
	}
	if c.Decimals > 18 {
		return fmt.Errorf("%w: decimals exceed 18", ErrInvalidConfig)
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("%w: heartbeat must be positive", ErrInvalidConfig)
	}
	if c.MaxDeviationBps == 0 || c.MaxDeviationBps > 10_000 {
		return fmt.Errorf("%w: deviation bps outside (0, 10000]", ErrInvalidConfig)
	}
	if c.MaxConfidenceRatioBps == 0 || c.MaxConfidenceRatioBps > 10_000 {
		return fmt.Errorf("%w: confidence ratio bps outside (0, 10000]", ErrInvalidConfig)
	}
	return nil
}

// FeedRegistry holds the per-asset feed configurations keyed by canonical
// asset symbol. Lookups are O(1) on the normalised symbol.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[string]FeedConfig
}

// NewFeedRegistry constructs an empty registry.
func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[string]FeedConfig)}
}

// NormaliseAsset renders the canonical asset symbol used as registry key.
func NormaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Put validates and stores the configuration for the asset.
func (r *FeedRegistry) Put(asset string, cfg FeedConfig) error {
	symbol := NormaliseAsset(asset)
	if symbol == "" {
		return fmt.Errorf("%w: asset required", ErrInvalidConfig)
	}
	normalised := cfg.Normalise()
	if err := normalised.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.feeds[symbol] = normalised
	r.mu.Unlock()
	return nil
}

// Get returns the configuration for the asset.
func (r *FeedRegistry) Get(asset string) (FeedConfig, error) {
	r.mu.RLock()
	cfg, ok := r.feeds[NormaliseAsset(asset)]
	r.mu.RUnlock()
	if !ok {
		return FeedConfig{}, fmt.Errorf("%w: %s", ErrUnknownFeed, NormaliseAsset(asset))
	}
	return cfg, nil
}

// Assets lists the configured asset symbols in sorted order.
func (r *FeedRegistry) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assets := make([]string, 0, len(r.feeds))
	for symbol := range r.feeds {
		assets = append(assets, symbol)
	}
	sort.Strings(assets)
	return assets
}
