package events

import (
	"strconv"
	"strings"
	"time"
)

const (
	// TypePositionWarning is emitted when a position crosses the warning
	// loan-to-value threshold without being liquidatable yet.
	TypePositionWarning = "risk.position_warning"
	// TypeLiquidationEligible is emitted when a position crosses the
	// liquidation threshold.
	TypeLiquidationEligible = "risk.liquidation_eligible"
	// TypePenaltyDistributed is emitted after a liquidation penalty has been
	// split among the configured buckets.
	TypePenaltyDistributed = "risk.penalty_distributed"
)

// PositionWarning alerts on an at-risk position. No forced action follows.
type PositionWarning struct {
	Borrower  string
	LTVBps    uint64
	WarnBps   uint64
	Timestamp time.Time
}

func (PositionWarning) EventType() string { return TypePositionWarning }

func (e PositionWarning) Attributes() map[string]string {
	return map[string]string{
		"borrower":  strings.TrimSpace(e.Borrower),
		"ltvBps":    strconv.FormatUint(e.LTVBps, 10),
		"warnBps":   strconv.FormatUint(e.WarnBps, 10),
		"timestamp": strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}

// LiquidationEligible flags a position whose LTV reached the liquidation
// threshold together with the dynamic penalty rate selected for it.
type LiquidationEligible struct {
	Borrower       string
	LTVBps         uint64
	PenaltyRateBps uint64
	Timestamp      time.Time
}

func (LiquidationEligible) EventType() string { return TypeLiquidationEligible }

func (e LiquidationEligible) Attributes() map[string]string {
	return map[string]string{
		"borrower":       strings.TrimSpace(e.Borrower),
		"ltvBps":         strconv.FormatUint(e.LTVBps, 10),
		"penaltyRateBps": strconv.FormatUint(e.PenaltyRateBps, 10),
		"timestamp":      strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}

// PenaltyDistributed records the exact four-way split of a penalty amount.
type PenaltyDistributed struct {
	Total              uint64
	Liquidator         uint64
	Platform           uint64
	Insurance          uint64
	BorrowerProtection uint64
	Timestamp          time.Time
}

func (PenaltyDistributed) EventType() string { return TypePenaltyDistributed }

func (e PenaltyDistributed) Attributes() map[string]string {
	return map[string]string{
		"total":              strconv.FormatUint(e.Total, 10),
		"liquidator":         strconv.FormatUint(e.Liquidator, 10),
		"platform":           strconv.FormatUint(e.Platform, 10),
		"insurance":          strconv.FormatUint(e.Insurance, 10),
		"borrowerProtection": strconv.FormatUint(e.BorrowerProtection, 10),
		"timestamp":          strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}
