package indicators

import (
	"math"

	"supertrend-core/internal/market"
)

// Trend is the SuperTrend direction.
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
)

// State is a read-only snapshot of the indicator after one candle.
type State struct {
	ATR       float64 `json:"atr"`
	UpperBand float64 `json:"upper_band"`
	LowerBand float64 `json:"lower_band"`
	Trend     Trend   `json:"trend"`
	LastClose float64 `json:"last_close"`
	Warming   bool    `json:"warming"`
}

// Line is the active stop line: the lower band in an uptrend, the upper band otherwise.
func (s State) Line() float64 {
	if s.Trend == TrendUp {
		return s.LowerBand
	}
	return s.UpperBand
}

// Update is the outcome of folding one candle. Ready is false while warming up;
// Flipped is true only when an established trend reversed on this candle.
type Update struct {
	State   State
	Ready   bool
	Flipped bool
}

// SuperTrend maintains the rolling ATR and ratcheted bands. It is not safe for
// concurrent use; the engine loop owns it.
type SuperTrend struct {
	period     int
	multiplier float64

	trs       []float64
	count     int
	prevClose float64
	upper     float64
	lower     float64
	trend     Trend
	last      State
}

func NewSuperTrend(period int, multiplier float64) *SuperTrend {
	if period < 1 {
		period = 1
	}
	return &SuperTrend{
		period:     period,
		multiplier: multiplier,
		trs:        make([]float64, 0, period),
		last:       State{Warming: true},
	}
}

// Update folds one closed candle into the indicator.
func (s *SuperTrend) Update(c market.Candle) Update {
	tr := c.High - c.Low
	if s.count > 0 {
		tr = math.Max(tr, math.Max(math.Abs(c.High-s.prevClose), math.Abs(c.Low-s.prevClose)))
	}
	if len(s.trs) == s.period {
		copy(s.trs, s.trs[1:])
		s.trs = s.trs[:s.period-1]
	}
	s.trs = append(s.trs, tr)
	s.count++

	defer func() { s.prevClose = c.Close }()

	if s.count < s.period {
		s.last = State{LastClose: c.Close, Warming: true}
		return Update{State: s.last}
	}

	atr := SMA(s.trs, s.period)
	mid := (c.High + c.Low) / 2
	basicUpper := mid + s.multiplier*atr
	basicLower := mid - s.multiplier*atr

	if s.count == s.period {
		// bands exist but there is no previous band to ratchet against yet
		s.upper, s.lower = basicUpper, basicLower
		s.last = State{ATR: atr, UpperBand: s.upper, LowerBand: s.lower, LastClose: c.Close, Warming: true}
		return Update{State: s.last}
	}

	if basicUpper < s.upper || s.prevClose > s.upper {
		s.upper = basicUpper
	}
	if basicLower > s.lower || s.prevClose < s.lower {
		s.lower = basicLower
	}

	flipped := false
	switch {
	case s.trend == "":
		if c.Close > s.upper {
			s.trend = TrendUp
		} else {
			s.trend = TrendDown
		}
	case s.trend == TrendDown && c.Close > s.upper:
		s.trend = TrendUp
		flipped = true
	case s.trend == TrendUp && c.Close < s.lower:
		s.trend = TrendDown
		flipped = true
	}

	s.last = State{
		ATR:       atr,
		UpperBand: s.upper,
		LowerBand: s.lower,
		Trend:     s.trend,
		LastClose: c.Close,
	}
	return Update{State: s.last, Ready: true, Flipped: flipped}
}

// Snapshot returns the state after the most recent candle.
func (s *SuperTrend) Snapshot() State {
	return s.last
}

// Reset discards all history.
func (s *SuperTrend) Reset() {
	*s = *NewSuperTrend(s.period, s.multiplier)
}
