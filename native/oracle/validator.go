package oracle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidPrice         = errors.New("oracle: price must be positive")
	ErrStalePrice           = errors.New("oracle: stale price")
	ErrLowConfidence        = errors.New("oracle: confidence interval too wide")
	ErrManipulationDetected = errors.New("oracle: price manipulation detected")
	ErrNoValidatedPrice     = errors.New("oracle: no validated price available")
)

// ValidatedPriceInfo is the derived record handed to the risk engine. It is
// recomputed on every request; only the latest record per asset is cached.
type ValidatedPriceInfo struct {
	Asset            string
	Price            uint64
	Confidence       uint64
	Decimals         uint8
	Timestamp        time.Time
	ValidationScore  uint8
	ManipulationRisk uint8
	IsValid          bool
}

// scorePenaltyPerRisk is subtracted from the perfect score for each detector
// severity level.
const scorePenaltyPerRisk = 25

// Validator performs the per-asset staleness and confidence checks, feeds the
// manipulation detector and maintains the bounded per-asset history.
type Validator struct {
	mu        sync.Mutex
	feeds     *FeedRegistry
	detector  *Detector
	histories map[string]*History
	cache     map[string]ValidatedPriceInfo
	capacity  int
	clock     func() time.Time
}

// NewValidator wires the validator to its feed registry and detector.
func NewValidator(feeds *FeedRegistry, detector *Detector) *Validator {
	return &Validator{
		feeds:     feeds,
		detector:  detector,
		histories: make(map[string]*History),
		cache:     make(map[string]ValidatedPriceInfo),
		capacity:  DefaultHistoryCapacity,
		clock:     time.Now,
	}
}

// SetClock overrides the time source, enabling deterministic unit tests and
// host-supplied logical clocks.
func (v *Validator) SetClock(clock func() time.Time) {
	if v == nil || clock == nil {
		return
	}
	v.mu.Lock()
	v.clock = clock
	v.mu.Unlock()
}

// SetHistoryCapacity bounds the per-asset working set; existing histories keep
// their capacity. Non-positive values reset to the default.
func (v *Validator) SetHistoryCapacity(capacity int) {
	if v == nil {
		return
	}
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	v.mu.Lock()
	v.capacity = capacity
	v.mu.Unlock()
}

// Validate checks the raw observation against the asset's feed envelope, in
// order: staleness, confidence, manipulation. On a staleness or confidence
// failure the point is discarded and the operation aborts. A manipulation hit
// keeps the point in history (later passes need the adversarial sample) but
// reports the update as invalid.
func (v *Validator) Validate(asset string, rawPrice, confidence uint64, observedAt time.Time) (ValidatedPriceInfo, error) {
	if v == nil {
		return ValidatedPriceInfo{}, fmt.Errorf("oracle: validator not configured")
	}
	symbol := NormaliseAsset(asset)
	feed, err := v.feeds.Get(symbol)
	if err != nil {
		return ValidatedPriceInfo{}, err
	}
	if rawPrice == 0 {
		return ValidatedPriceInfo{}, fmt.Errorf("%w: %s", ErrInvalidPrice, symbol)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock()
	if now.Sub(observedAt) > feed.Heartbeat {
		return ValidatedPriceInfo{}, fmt.Errorf("%w: %s observed %s ago", ErrStalePrice, symbol, now.Sub(observedAt))
	}
	ratio := confidenceRatioBps(PricePoint{Price: rawPrice, Confidence: confidence})
	if ratio > feed.MaxConfidenceRatioBps {
		return ValidatedPriceInfo{}, fmt.Errorf("%w: %s ratio %d bps exceeds %d bps", ErrLowConfidence, symbol, ratio, feed.MaxConfidenceRatioBps)
	}

	history, ok := v.histories[symbol]
	if !ok {
		history = NewHistory(v.capacity)
		v.histories[symbol] = history
	}
	point := PricePoint{Price: rawPrice, Confidence: confidence, Timestamp: observedAt}
	if err := history.Append(point); err != nil {
		return ValidatedPriceInfo{}, fmt.Errorf("%w: %s", err, symbol)
	}

	verdict := v.detector.Inspect(history.Points(), feed)
	score := uint8(100)
	if penalty := verdict.RiskLevel * scorePenaltyPerRisk; penalty < score {
		score -= penalty
	} else {
		score = 0
	}

	info := ValidatedPriceInfo{
		Asset:            symbol,
		Price:            rawPrice,
		Confidence:       confidence,
		Decimals:         feed.Decimals,
		Timestamp:        observedAt,
		ValidationScore:  score,
		ManipulationRisk: verdict.RiskLevel,
		IsValid:          !verdict.Manipulation,
	}
	v.cache[symbol] = info
	return info, nil
}

// LastValidated returns the cached record from the most recent validation of
// the asset.
func (v *Validator) LastValidated(asset string) (ValidatedPriceInfo, error) {
	if v == nil {
		return ValidatedPriceInfo{}, fmt.Errorf("oracle: validator not configured")
	}
	symbol := NormaliseAsset(asset)
	v.mu.Lock()
	info, ok := v.cache[symbol]
	v.mu.Unlock()
	if !ok {
		return ValidatedPriceInfo{}, fmt.Errorf("%w: %s", ErrNoValidatedPrice, symbol)
	}
	return info, nil
}

// HistoryPoints exposes a copy of the stored sequence for an asset, oldest
// first. Used by operator tooling and tests.
func (v *Validator) HistoryPoints(asset string) []PricePoint {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	history, ok := v.histories[NormaliseAsset(asset)]
	if !ok {
		return nil
	}
	return history.Points()
}
