package observability

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type riskMetrics struct {
	priceRejections *prometheus.CounterVec
	manipulations   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	penalties       *prometheus.CounterVec
}

var (
	riskMetricsOnce sync.Once
	riskRegistry    *riskMetrics
)

// Metrics returns the registry tracking structured risk-core events.
func Metrics() *riskMetrics {
	riskMetricsOnce.Do(func() {
		riskRegistry = &riskMetrics{
			priceRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "olend",
				Subsystem: "risk",
				Name:      "price_rejections_total",
				Help:      "Count of rejected price updates segmented by asset and reason.",
			}, []string{"asset", "reason"}),
			manipulations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "olend",
				Subsystem: "risk",
				Name:      "manipulation_flags_total",
				Help:      "Count of manipulation flags segmented by asset and risk level.",
			}, []string{"asset", "level"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "olend",
				Subsystem: "risk",
				Name:      "breaker_transitions_total",
				Help:      "Count of circuit breaker phase changes segmented by key and target phase.",
			}, []string{"key", "to"}),
			penalties: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "olend",
				Subsystem: "risk",
				Name:      "penalty_distributed_total",
				Help:      "Liquidation penalty amounts distributed, segmented by bucket.",
			}, []string{"bucket"}),
		}
		prometheus.MustRegister(
			riskRegistry.priceRejections,
			riskRegistry.manipulations,
			riskRegistry.transitions,
			riskRegistry.penalties,
		)
	})
	return riskRegistry
}

// RecordPriceRejection increments the rejection counter for the asset.
func (m *riskMetrics) RecordPriceRejection(asset, reason string) {
	if m == nil {
		return
	}
	m.priceRejections.WithLabelValues(normaliseLabel(asset), normaliseLabel(reason)).Inc()
}

// RecordManipulation increments the manipulation counter for the asset.
func (m *riskMetrics) RecordManipulation(asset string, riskLevel uint8) {
	if m == nil {
		return
	}
	m.manipulations.WithLabelValues(normaliseLabel(asset), strconv.FormatUint(uint64(riskLevel), 10)).Inc()
}

// RecordTransition increments the breaker transition counter.
func (m *riskMetrics) RecordTransition(key, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normaliseLabel(key), normaliseLabel(to)).Inc()
}

// RecordPenalty adds the distributed amount to the bucket counter.
func (m *riskMetrics) RecordPenalty(bucket string, amount uint64) {
	if m == nil {
		return
	}
	m.penalties.WithLabelValues(normaliseLabel(bucket)).Add(float64(amount))
}

func normaliseLabel(value string) string {
	normalized := strings.TrimSpace(strings.ToLower(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
