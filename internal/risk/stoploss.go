package risk

import (
	"fmt"
	"sync"

	"supertrend-core/internal/state"
	"supertrend-core/internal/strategy"
)

// StopLossManager tracks the fixed stop loss and trailing stop of open positions.
type StopLossManager struct {
	positions map[string]*StopLossPosition
	mu        sync.RWMutex
}

// StopLossPosition tracks stops for one position. HighWaterMark is the best
// price seen in the position's favour (the low for shorts).
type StopLossPosition struct {
	Symbol          string
	Side            state.Side
	EntryPrice      float64
	CurrentPrice    float64
	StopLoss        float64
	TrailingStop    float64
	TrailingPercent float64
	HighWaterMark   float64
}

// StopLossDecision is returned when price breaches the effective stop.
type StopLossDecision struct {
	Symbol string
	Reason string // STOP_LOSS or TRAILING_STOP
	Stop   float64
	Price  float64
}

func (d StopLossDecision) String() string {
	return fmt.Sprintf("%s %s at %.2f (stop %.2f)", d.Symbol, d.Reason, d.Price, d.Stop)
}

func NewStopLossManager() *StopLossManager {
	return &StopLossManager{
		positions: make(map[string]*StopLossPosition),
	}
}

// StopLossPrice is entry*(1-pct/100) for longs and entry*(1+pct/100) for shorts.
func StopLossPrice(side state.Side, entry, pct float64) float64 {
	if side == state.SideShort {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}

// AddPosition starts tracking a new position. The trailing stop starts at the
// stop loss.
func (m *StopLossManager) AddPosition(symbol string, side state.Side, entry, slPercent, tslPercent float64) StopLossPosition {
	sl := StopLossPrice(side, entry, slPercent)
	pos := StopLossPosition{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entry,
		CurrentPrice:    entry,
		StopLoss:        sl,
		TrailingStop:    sl,
		TrailingPercent: tslPercent,
		HighWaterMark:   entry,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = &pos
	return pos
}

// Restore re-registers a persisted position keeping its stops.
func (m *StopLossManager) Restore(p state.Position, tslPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = &StopLossPosition{
		Symbol:          p.Symbol,
		Side:            p.Side,
		EntryPrice:      p.EntryPrice,
		CurrentPrice:    p.EntryPrice,
		StopLoss:        p.StopLoss,
		TrailingStop:    p.TrailingStop,
		TrailingPercent: tslPercent,
		HighWaterMark:   p.EntryPrice,
	}
}

// UpdatePrice moves the trailing stop and reports a breach, if any.
func (m *StopLossManager) UpdatePrice(symbol string, price float64) *StopLossDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[symbol]
	if !exists {
		return nil
	}
	pos.CurrentPrice = price
	m.updateTrailingStop(pos)

	if !isBreached(pos) {
		return nil
	}
	reason := strategy.ReasonStopLoss
	if pos.TrailingStop != pos.StopLoss {
		reason = strategy.ReasonTrailingStop
	}
	return &StopLossDecision{Symbol: symbol, Reason: reason, Stop: pos.TrailingStop, Price: price}
}

// updateTrailingStop follows the high-water mark once price has moved more than
// TrailingPercent in the position's favour. The stop never loosens.
func (m *StopLossManager) updateTrailingStop(pos *StopLossPosition) {
	t := pos.TrailingPercent / 100
	if t <= 0 {
		return
	}
	if pos.Side == state.SideLong {
		if pos.CurrentPrice > pos.HighWaterMark {
			pos.HighWaterMark = pos.CurrentPrice
		}
		if pos.HighWaterMark > pos.EntryPrice*(1+t) {
			if c := pos.HighWaterMark * (1 - t); c > pos.TrailingStop {
				pos.TrailingStop = c
			}
		}
		return
	}
	if pos.CurrentPrice < pos.HighWaterMark {
		pos.HighWaterMark = pos.CurrentPrice
	}
	if pos.HighWaterMark < pos.EntryPrice*(1-t) {
		if c := pos.HighWaterMark * (1 + t); c < pos.TrailingStop {
			pos.TrailingStop = c
		}
	}
}

// The trailing stop is never looser than the stop loss, so it is the effective stop.
func isBreached(pos *StopLossPosition) bool {
	if pos.Side == state.SideLong {
		return pos.CurrentPrice <= pos.TrailingStop
	}
	return pos.CurrentPrice >= pos.TrailingStop
}

// RemovePosition removes a position from tracking
func (m *StopLossManager) RemovePosition(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

// GetPosition returns a copy of the tracked stops.
func (m *StopLossManager) GetPosition(symbol string) (StopLossPosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	if !ok {
		return StopLossPosition{}, false
	}
	return *p, true
}
