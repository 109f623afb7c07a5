package events

import (
	"strconv"
	"strings"
	"time"
)

const (
	// TypePriceRejected is emitted when a price update fails validation.
	TypePriceRejected = "oracle.price_rejected"
	// TypeManipulationFlagged is emitted when the detector scores a price
	// update at manipulation severity.
	TypeManipulationFlagged = "oracle.manipulation_flagged"
)

// PriceRejected records a validation failure together with the offending
// submission so operators can reconstruct the rejection.
type PriceRejected struct {
	Asset      string
	Reason     string
	Price      uint64
	Confidence uint64
	ObservedAt time.Time
	Timestamp  time.Time
}

func (PriceRejected) EventType() string { return TypePriceRejected }

func (e PriceRejected) Attributes() map[string]string {
	return map[string]string{
		"asset":      strings.TrimSpace(e.Asset),
		"reason":     strings.TrimSpace(e.Reason),
		"price":      strconv.FormatUint(e.Price, 10),
		"confidence": strconv.FormatUint(e.Confidence, 10),
		"observedAt": strconv.FormatInt(e.ObservedAt.UTC().Unix(), 10),
		"timestamp":  strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}

// ManipulationFlagged captures a detector hit with the before/after prices and
// the assigned severity.
type ManipulationFlagged struct {
	Asset     string
	RiskLevel uint8
	Price     uint64
	PrevPrice uint64
	Timestamp time.Time
}

func (ManipulationFlagged) EventType() string { return TypeManipulationFlagged }

func (e ManipulationFlagged) Attributes() map[string]string {
	return map[string]string{
		"asset":     strings.TrimSpace(e.Asset),
		"riskLevel": strconv.FormatUint(uint64(e.RiskLevel), 10),
		"price":     strconv.FormatUint(e.Price, 10),
		"prevPrice": strconv.FormatUint(e.PrevPrice, 10),
		"timestamp": strconv.FormatInt(e.Timestamp.UTC().Unix(), 10),
	}
}
