package strategy

import (
	"time"

	"supertrend-core/internal/indicators"
	"supertrend-core/internal/market"
	"supertrend-core/internal/state"
)

// Kind is the action a signal asks for.
type Kind string

const (
	EnterLong  Kind = "ENTER_LONG"
	EnterShort Kind = "ENTER_SHORT"
	Exit       Kind = "EXIT"
)

func (k Kind) IsEntry() bool { return k == EnterLong || k == EnterShort }

// Side returns the position side an entry opens.
func (k Kind) Side() state.Side {
	if k == EnterShort {
		return state.SideShort
	}
	return state.SideLong
}

// Exit and entry reasons recorded on orders and trades.
const (
	ReasonTrendFlip    = "TREND_FLIP"
	ReasonStopLoss     = "STOP_LOSS"
	ReasonTrailingStop = "TRAILING_STOP"
	ReasonSessionEnd   = "SESSION_END"
)

// Signal is a decision produced from an indicator transition or a stop breach.
type Signal struct {
	Kind   Kind      `json:"kind"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Reason string    `json:"reason"`
	At     time.Time `json:"timestamp"`
}

// Generate turns a trend flip into signals. A flip against an open position yields
// the exit first and then the new entry; the caller must only act on the entry once
// the exit has filled.
func Generate(symbol string, u indicators.Update, c market.Candle, pos *state.Position) []Signal {
	if !u.Ready || !u.Flipped {
		return nil
	}
	entry := EnterShort
	if u.State.Trend == indicators.TrendUp {
		entry = EnterLong
	}
	at := c.Timestamp
	mk := func(k Kind) Signal {
		return Signal{Kind: k, Symbol: symbol, Price: c.Close, Reason: ReasonTrendFlip, At: at}
	}
	if pos == nil {
		return []Signal{mk(entry)}
	}
	if pos.Side == entry.Side() {
		return nil
	}
	return []Signal{mk(Exit), mk(entry)}
}
