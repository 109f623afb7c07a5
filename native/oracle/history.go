package oracle

import (
	"errors"
	"time"
)

// ErrOutOfOrder marks a price point older than the newest stored observation.
// The history only ever holds a timestamp-nondecreasing sequence.
var ErrOutOfOrder = errors.New("oracle: price point out of order")

// DefaultHistoryCapacity bounds the per-asset working set of the manipulation
// detector.
const DefaultHistoryCapacity = 100

// PricePoint is a single raw observation from the upstream feed.
type PricePoint struct {
	Price      uint64
	Confidence uint64
	Timestamp  time.Time
}

// History is a bounded, append-only, oldest-evicted sequence of price points
// for one asset.
type History struct {
	capacity int
	points   []PricePoint
}

// NewHistory constructs a history with the given capacity; non-positive
// capacities fall back to the default.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity, points: make([]PricePoint, 0, capacity)}
}

// Append stores the point, evicting the oldest entry at capacity. Points older
// than the newest stored observation are rejected so the sequence stays
// timestamp-nondecreasing.
func (h *History) Append(p PricePoint) error {
	if n := len(h.points); n > 0 && p.Timestamp.Before(h.points[n-1].Timestamp) {
		return ErrOutOfOrder
	}
	if len(h.points) == h.capacity {
		copy(h.points, h.points[1:])
		h.points[len(h.points)-1] = p
		return nil
	}
	h.points = append(h.points, p)
	return nil
}

// Points returns a defensive copy of the stored sequence, oldest first.
func (h *History) Points() []PricePoint {
	return append([]PricePoint{}, h.points...)
}

// Last returns the newest stored point.
func (h *History) Last() (PricePoint, bool) {
	if len(h.points) == 0 {
		return PricePoint{}, false
	}
	return h.points[len(h.points)-1], true
}

// Len reports the number of stored points.
func (h *History) Len() int {
	return len(h.points)
}
