package oracle

import (
	"errors"
	"testing"
	"time"
)

func TestHistoryAppendOrdering(t *testing.T) {
	h := NewHistory(10)
	base := time.Unix(1_700_000_000, 0)
	if err := h.Append(PricePoint{Price: 100, Timestamp: base}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.Append(PricePoint{Price: 101, Timestamp: base.Add(time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Equal timestamps are allowed; only strictly older points are rejected.
	if err := h.Append(PricePoint{Price: 102, Timestamp: base.Add(time.Second)}); err != nil {
		t.Fatalf("append equal timestamp: %v", err)
	}
	if err := h.Append(PricePoint{Price: 99, Timestamp: base}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		point := PricePoint{Price: uint64(100 + i), Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := h.Append(point); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	points := h.Points()
	if len(points) != 3 {
		t.Fatalf("len = %d, want 3", len(points))
	}
	for i, want := range []uint64{102, 103, 104} {
		if points[i].Price != want {
			t.Fatalf("points[%d].Price = %d, want %d", i, points[i].Price, want)
		}
	}
	last, ok := h.Last()
	if !ok || last.Price != 104 {
		t.Fatalf("last = %+v, ok=%v", last, ok)
	}
}

func TestHistoryPointsCopy(t *testing.T) {
	h := NewHistory(4)
	if err := h.Append(PricePoint{Price: 100, Timestamp: time.Unix(1, 0)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	points := h.Points()
	points[0].Price = 999
	fresh := h.Points()
	if fresh[0].Price != 100 {
		t.Fatalf("stored point mutated through copy: %d", fresh[0].Price)
	}
}
