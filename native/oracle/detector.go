package oracle

import (
	"github.com/OlendLabs/olend-risk/native/safemath"
)

// Manipulation severity levels. Level 2 and above mark the update as
// adversarial rather than organic.
const (
	RiskNone     uint8 = 0
	RiskLow      uint8 = 1
	RiskElevated uint8 = 2
	RiskCritical uint8 = 3
)

// ManipulationThreshold is the risk level at which a price update is treated
// as manipulation.
const ManipulationThreshold = RiskElevated

// DetectorConfig exposes the adversarial pattern thresholds as configuration
// with documented safe defaults.
type DetectorConfig struct {
	// DriftWindow is the number of trailing points summed by the
	// cumulative-drift check.
	DriftWindow int
	// CumulativeDriftBps is the absolute signed drift across the window that
	// flags slow manipulation.
	CumulativeDriftBps uint64
	// OscillationLookback is the number of trailing points scanned for a
	// pump/dump round trip.
	OscillationLookback int
}

// Normalise applies the documented defaults for unset fields.
func (c DetectorConfig) Normalise() DetectorConfig {
	cfg := c
	if cfg.DriftWindow <= 1 {
		cfg.DriftWindow = 10
	}
	if cfg.CumulativeDriftBps == 0 {
		cfg.CumulativeDriftBps = 2_000
	}
	if cfg.OscillationLookback <= 2 {
		cfg.OscillationLookback = 6
	}
	return cfg
}

// Result summarises a detector pass over one asset's history.
type Result struct {
	RiskLevel    uint8
	Manipulation bool
	// Reasons names the triggered checks for events and audit logs.
	Reasons []string
}

// Detector analyses per-asset price history for adversarial patterns. It is
// stateless; the caller owns the history.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector constructs a detector with normalised thresholds.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg.Normalise()}
}

// Config returns the normalised thresholds in effect.
func (d *Detector) Config() DetectorConfig {
	return d.cfg
}

// Inspect runs the four independent checks over the sequence (oldest first,
// newest point last) and returns the maximum severity triggered.
func (d *Detector) Inspect(points []PricePoint, feed FeedConfig) Result {
	result := Result{}
	if len(points) < 2 {
		return result
	}

	raise := func(level uint8, reason string) {
		if level > result.RiskLevel {
			result.RiskLevel = level
		}
		result.Reasons = append(result.Reasons, reason)
	}

	prev := points[len(points)-2]
	last := points[len(points)-1]

	step := deviationBps(prev.Price, last.Price)
	if step > 2*feed.MaxDeviationBps {
		raise(RiskCritical, "spike")
	} else if step > feed.MaxDeviationBps {
		raise(RiskElevated, "spike")
	}

	if drift := d.cumulativeDrift(points); drift > int64(d.cfg.CumulativeDriftBps) || drift < -int64(d.cfg.CumulativeDriftBps) {
		raise(RiskElevated, "cumulative_drift")
	}

	// A tightening confidence interval while the price jerks in one
	// direction is statistically inconsistent with genuine market noise.
	if step > feed.MaxDeviationBps/2 && confidenceRatioBps(last) < confidenceRatioBps(prev) {
		raise(RiskLow, "confidence_mismatch")
	}

	if d.oscillated(points, feed.MaxDeviationBps) {
		raise(RiskCritical, "oscillation")
	}

	result.Manipulation = result.RiskLevel >= ManipulationThreshold
	return result
}

func (d *Detector) cumulativeDrift(points []PricePoint) int64 {
	window := points
	if len(window) > d.cfg.DriftWindow {
		window = window[len(window)-d.cfg.DriftWindow:]
	}
	var drift int64
	for i := 1; i < len(window); i++ {
		drift += signedChangeBps(window[i-1].Price, window[i].Price)
	}
	return drift
}

// oscillated scans the lookback window for a price that rose past the
// deviation threshold and then reversed below its pre-rise level, the
// signature of a pump/dump round trip.
func (d *Detector) oscillated(points []PricePoint, deviationBpsLimit uint64) bool {
	window := points
	if len(window) > d.cfg.OscillationLookback {
		window = window[len(window)-d.cfg.OscillationLookback:]
	}
	if len(window) < 3 {
		return false
	}
	last := window[len(window)-1].Price
	for s := 0; s < len(window)-2; s++ {
		base := window[s].Price
		if base == 0 || last >= base {
			continue
		}
		for j := s + 1; j < len(window)-1; j++ {
			if window[j].Price > base && deviationBps(base, window[j].Price) >= deviationBpsLimit {
				return true
			}
		}
	}
	return false
}

func deviationBps(prev, next uint64) uint64 {
	if prev == 0 {
		return 0
	}
	diff := next - prev
	if prev > next {
		diff = prev - next
	}
	bps, err := safemath.MulDiv(diff, safemath.BasisPoints, prev)
	if err != nil {
		// A quotient beyond 64 bits is already far past any configured
		// threshold; saturate to the maximum severity trigger.
		return ^uint64(0)
	}
	return bps
}

func signedChangeBps(prev, next uint64) int64 {
	bps := deviationBps(prev, next)
	if bps > uint64(1)<<62 {
		bps = uint64(1) << 62
	}
	if next < prev {
		return -int64(bps)
	}
	return int64(bps)
}

func confidenceRatioBps(p PricePoint) uint64 {
	if p.Price == 0 {
		return ^uint64(0)
	}
	bps, err := safemath.MulDiv(p.Confidence, safemath.BasisPoints, p.Price)
	if err != nil {
		return ^uint64(0)
	}
	return bps
}
