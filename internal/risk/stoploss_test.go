package risk

import (
	"math"
	"testing"

	"supertrend-core/internal/state"
	"supertrend-core/internal/strategy"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStopLossFixedAtEntry(t *testing.T) {
	m := NewStopLossManager()
	pos := m.AddPosition("NIFTY", state.SideLong, 100, 10, 5)
	if !near(pos.StopLoss, 90) || !near(pos.TrailingStop, 90) {
		t.Fatalf("expected SL=TSL=90, got %+v", pos)
	}
	for _, p := range []float64{101, 120, 130, 125, 118} {
		m.UpdatePrice("NIFTY", p)
		got, _ := m.GetPosition("NIFTY")
		if !near(got.StopLoss, 90) {
			t.Fatalf("stop loss moved to %v at price %v", got.StopLoss, p)
		}
	}
}

func TestShortStopLoss(t *testing.T) {
	m := NewStopLossManager()
	pos := m.AddPosition("NIFTY", state.SideShort, 200, 10, 5)
	if !near(pos.StopLoss, 220) {
		t.Fatalf("expected 220, got %v", pos.StopLoss)
	}
	d := m.UpdatePrice("NIFTY", 221)
	if d == nil || d.Reason != strategy.ReasonStopLoss {
		t.Fatalf("expected STOP_LOSS, got %+v", d)
	}
}

func TestLongTrailingStopMonotonic(t *testing.T) {
	m := NewStopLossManager()
	m.AddPosition("NIFTY", state.SideLong, 100, 10, 5)

	prices := []float64{102, 104, 106, 110, 108, 112, 109, 115, 111, 113}
	prev := 90.0
	for _, p := range prices {
		if d := m.UpdatePrice("NIFTY", p); d != nil {
			t.Fatalf("unexpected exit at %v: %s", p, d)
		}
		got, _ := m.GetPosition("NIFTY")
		if got.TrailingStop < prev {
			t.Fatalf("trailing stop loosened from %v to %v at price %v", prev, got.TrailingStop, p)
		}
		prev = got.TrailingStop
	}
	// high-water mark 115 -> stop 109.25
	if !near(prev, 115*0.95) {
		t.Fatalf("expected trailing stop %v, got %v", 115*0.95, prev)
	}
	d := m.UpdatePrice("NIFTY", 109)
	if d == nil || d.Reason != strategy.ReasonTrailingStop {
		t.Fatalf("expected TRAILING_STOP, got %+v", d)
	}
}

func TestTrailingNotActiveBeforeThreshold(t *testing.T) {
	m := NewStopLossManager()
	m.AddPosition("NIFTY", state.SideLong, 100, 10, 5)
	m.UpdatePrice("NIFTY", 105) // exactly 5%: not more than
	got, _ := m.GetPosition("NIFTY")
	if !near(got.TrailingStop, 90) {
		t.Fatalf("trailing stop moved early: %v", got.TrailingStop)
	}
}

func TestShortTrailingStopTightensDown(t *testing.T) {
	m := NewStopLossManager()
	m.AddPosition("NIFTY", state.SideShort, 100, 10, 5)
	m.UpdatePrice("NIFTY", 90)
	got, _ := m.GetPosition("NIFTY")
	if !near(got.TrailingStop, 94.5) {
		t.Fatalf("expected 94.5, got %v", got.TrailingStop)
	}
	m.UpdatePrice("NIFTY", 93)
	got, _ = m.GetPosition("NIFTY")
	if !near(got.TrailingStop, 94.5) {
		t.Fatalf("short trailing stop loosened to %v", got.TrailingStop)
	}
	d := m.UpdatePrice("NIFTY", 95)
	if d == nil || d.Reason != strategy.ReasonTrailingStop {
		t.Fatalf("expected TRAILING_STOP, got %+v", d)
	}
}

func TestRestoreAndRemove(t *testing.T) {
	m := NewStopLossManager()
	m.Restore(state.Position{Symbol: "NIFTY", Side: state.SideLong, EntryPrice: 100, StopLoss: 90, TrailingStop: 97}, 5)
	if d := m.UpdatePrice("NIFTY", 96); d == nil || d.Reason != strategy.ReasonTrailingStop {
		t.Fatalf("restored trailing stop not enforced: %+v", d)
	}
	m.RemovePosition("NIFTY")
	if d := m.UpdatePrice("NIFTY", 1); d != nil {
		t.Fatal("removed position still tracked")
	}
}
