package supervisor

import (
	"errors"
	"time"

	"supertrend-core/internal/state"
)

// State is the engine lifecycle state.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
	StateHalted  State = "HALTED"
)

var ErrAlreadyRunning = errors.New("engine is already running")

// FatalError ends the loop. It is recorded in the status until the next start.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// BotStatus is the externally visible engine snapshot.
type BotStatus struct {
	Running          bool            `json:"running"`
	State            State           `json:"state"`
	PID              *int            `json:"pid"`
	StartedAt        *time.Time      `json:"started_at"`
	TotalTradesToday int             `json:"total_trades_today"`
	PnLToday         float64         `json:"pnl_today"`
	Error            *string         `json:"error"`
	TradingMode      string          `json:"trading_mode,omitempty"`
	Index            string          `json:"index_name,omitempty"`
	LastTick         *time.Time      `json:"last_tick,omitempty"`
	Position         *state.Position `json:"position,omitempty"`
}
