package db

import "time"

// Order is the persisted form of an engine order.
type Order struct {
	ID            string
	Symbol        string
	Contract      string
	Side          string
	Kind          string // ENTER_LONG, ENTER_SHORT, EXIT
	Qty           int
	Price         float64
	FillPrice     float64
	Status        string
	BrokerOrderID string
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Position is an open position row; at most one per symbol.
type Position struct {
	Symbol       string
	Side         string // LONG or SHORT
	Contract     string
	EntryPrice   float64
	Qty          int
	StopLoss     float64
	TrailingStop float64
	EntryOrderID string
	OpenedAt     time.Time
}

// Trade is a closed round trip.
type Trade struct {
	ID           string
	TradeDate    string // YYYY-MM-DD in the engine's local day
	Symbol       string
	Contract     string
	OrderType    string
	EntryTime    time.Time
	ExitTime     time.Time
	EntryPrice   float64
	ExitPrice    float64
	Qty          int
	PnL          float64
	Status       string
	ExitReason   string
	EntryOrderID string
	ExitOrderID  string
}
