// Package ledger records closed trades and derives the daily performance figures
// from them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"supertrend-core/internal/state"
	"supertrend-core/pkg/db"
)

const StatusClosed = "CLOSED"

// Trade is one closed round trip. Prices are index prices; pnl is directional on
// the index.
type Trade struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Contract     string    `json:"contract"`
	OrderType    string    `json:"order_type"` // BUY for long, SELL for short
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	Quantity     int       `json:"quantity"`
	PnL          float64   `json:"pnl"`
	Status       string    `json:"status"`
	ExitReason   string    `json:"exit_reason"`
	EntryOrderID string    `json:"entry_order_id"`
	ExitOrderID  string    `json:"exit_order_id"`
}

// Performance is derived from one day's trades.
type Performance struct {
	TotalTrades int     `json:"total_trades"`
	TotalPnL    float64 `json:"total_pnl"`
	WinRate     float64 `json:"win_rate"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
}

// PnL is (exit-entry)*qty for longs and (entry-exit)*qty for shorts.
func PnL(side state.Side, qty int, entry, exit float64) float64 {
	q := decimal.NewFromInt(int64(qty))
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if side == state.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(q).Round(2).InexactFloat64()
}

// OrderType maps a position side to the trade's order_type.
func OrderType(side state.Side) string {
	if side == state.SideShort {
		return "SELL"
	}
	return "BUY"
}

// Ledger is append-only. Trades are bucketed by exit day in loc.
type Ledger struct {
	db  *db.Database
	loc *time.Location
}

func New(database *db.Database, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{db: database, loc: loc}
}

func (l *Ledger) Location() *time.Location { return l.loc }

// Day formats t as the ledger day key.
func (l *Ledger) Day(t time.Time) string {
	return t.In(l.loc).Format("2006-01-02")
}

func (l *Ledger) row(t Trade) db.Trade {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusClosed
	}
	return db.Trade{
		ID:           t.ID,
		TradeDate:    l.Day(t.ExitTime),
		Symbol:       t.Symbol,
		Contract:     t.Contract,
		OrderType:    t.OrderType,
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		Qty:          t.Quantity,
		PnL:          t.PnL,
		Status:       t.Status,
		ExitReason:   t.ExitReason,
		EntryOrderID: t.EntryOrderID,
		ExitOrderID:  t.ExitOrderID,
	}
}

func fromRow(r db.Trade) Trade {
	return Trade{
		ID:           r.ID,
		Symbol:       r.Symbol,
		Contract:     r.Contract,
		OrderType:    r.OrderType,
		EntryTime:    r.EntryTime,
		ExitTime:     r.ExitTime,
		EntryPrice:   r.EntryPrice,
		ExitPrice:    r.ExitPrice,
		Quantity:     r.Qty,
		PnL:          r.PnL,
		Status:       r.Status,
		ExitReason:   r.ExitReason,
		EntryOrderID: r.EntryOrderID,
		ExitOrderID:  r.ExitOrderID,
	}
}

// Record appends t outside of any transaction.
func (l *Ledger) Record(ctx context.Context, t Trade) error {
	if err := l.db.InsertTrade(ctx, l.row(t)); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// RecordTx appends t as part of tx.
func (l *Ledger) RecordTx(ctx context.Context, tx *db.Tx, t Trade) error {
	if err := tx.InsertTrade(ctx, l.row(t)); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// Trades returns the trades closed on day, oldest first.
func (l *Ledger) Trades(ctx context.Context, day time.Time) ([]Trade, error) {
	rows, err := l.db.ListTradesByDate(ctx, l.Day(day))
	if err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// Performance summarises the trades closed on day.
func (l *Ledger) Performance(ctx context.Context, day time.Time) (Performance, error) {
	trades, err := l.Trades(ctx, day)
	if err != nil {
		return Performance{}, err
	}
	return Summarize(trades), nil
}

// Summarize computes the performance figures, rounded to 2 decimals. Zero-pnl
// trades count toward the total only.
func Summarize(trades []Trade) Performance {
	var (
		total, winSum, lossSum decimal.Decimal
		wins, losses           int
	)
	for _, t := range trades {
		p := decimal.NewFromFloat(t.PnL)
		total = total.Add(p)
		switch p.Sign() {
		case 1:
			wins++
			winSum = winSum.Add(p)
		case -1:
			losses++
			lossSum = lossSum.Add(p)
		}
	}

	perf := Performance{
		TotalTrades: len(trades),
		TotalPnL:    total.Round(2).InexactFloat64(),
		Wins:        wins,
		Losses:      losses,
	}
	if wins > 0 {
		perf.AvgWin = winSum.Div(decimal.NewFromInt(int64(wins))).Round(2).InexactFloat64()
	}
	if losses > 0 {
		perf.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(losses))).Round(2).InexactFloat64()
	}
	if decided := wins + losses; decided > 0 {
		perf.WinRate = decimal.NewFromInt(int64(wins)).
			Div(decimal.NewFromInt(int64(decided))).
			Mul(decimal.NewFromInt(100)).
			Round(2).InexactFloat64()
	}
	return perf
}
