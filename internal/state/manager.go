package state

import (
	"context"
	"sync"
	"time"

	"supertrend-core/pkg/db"
)

// Side is the direction of a position on the index.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is the single open position for a symbol. Contract is the option
// held (CE for long, PE for short).
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Contract     string    `json:"contract"`
	EntryPrice   float64   `json:"entry_price"`
	Qty          int       `json:"quantity"`
	StopLoss     float64   `json:"stop_loss_price"`
	TrailingStop float64   `json:"trailing_stop_price"`
	EntryOrderID string    `json:"entry_order_id"`
	OpenedAt     time.Time `json:"opened_at"`
}

func (p Position) Row() db.Position {
	return db.Position{
		Symbol:       p.Symbol,
		Side:         string(p.Side),
		Contract:     p.Contract,
		EntryPrice:   p.EntryPrice,
		Qty:          p.Qty,
		StopLoss:     p.StopLoss,
		TrailingStop: p.TrailingStop,
		EntryOrderID: p.EntryOrderID,
		OpenedAt:     p.OpenedAt,
	}
}

func fromRow(r db.Position) Position {
	return Position{
		Symbol:       r.Symbol,
		Side:         Side(r.Side),
		Contract:     r.Contract,
		EntryPrice:   r.EntryPrice,
		Qty:          r.Qty,
		StopLoss:     r.StopLoss,
		TrailingStop: r.TrailingStop,
		EntryOrderID: r.EntryOrderID,
		OpenedAt:     r.OpenedAt,
	}
}

// Manager keeps the in-memory view of open positions. Writes that must be atomic
// with an order go through the caller's transaction; Manager is updated only
// after that transaction committed.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]Position
	db        *db.Database
}

func NewManager(database *db.Database) *Manager {
	return &Manager{
		db:        database,
		positions: make(map[string]Position),
	}
}

// Load seeds in-memory state from DB on startup.
func (m *Manager) Load(ctx context.Context) ([]Position, error) {
	if m.db == nil {
		return nil, nil
	}
	rows, err := m.db.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(rows))
	for _, r := range rows {
		p := fromRow(r)
		m.positions[p.Symbol] = p
		out = append(out, p)
	}
	return out, nil
}

// Position returns a copy of the open position for symbol, or nil.
func (m *Manager) Position(symbol string) *Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	if !ok {
		return nil
	}
	return &p
}

// Positions returns a snapshot of all positions.
func (m *Manager) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		res = append(res, p)
	}
	return res
}

// Apply sets the in-memory position after it has been persisted.
func (m *Manager) Apply(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = p
}

// Remove drops the in-memory position after its deletion has been persisted.
func (m *Manager) Remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

// UpdateTrailingStop persists a tightened trailing stop and updates memory.
func (m *Manager) UpdateTrailingStop(ctx context.Context, symbol string, stop float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok || p.TrailingStop == stop {
		return nil
	}
	p.TrailingStop = stop
	if m.db != nil {
		if err := m.db.UpsertPosition(ctx, p.Row()); err != nil {
			return err
		}
	}
	m.positions[symbol] = p
	return nil
}
