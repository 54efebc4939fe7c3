package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx exposes the write helpers inside a transaction.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn in a transaction, committing on nil error. fn must only use the Tx
// it is given: the pool holds a single connection.
func (d *Database) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ----------------------------------------
// Orders
// ----------------------------------------

func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	return createOrder(ctx, d.DB, o)
}

func createOrder(ctx context.Context, q execer, o Order) error {
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (
			id, symbol, contract, side, kind, qty, price, fill_price, status,
			broker_order_id, reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.Symbol, o.Contract, o.Side, o.Kind, o.Qty, o.Price, o.FillPrice, o.Status,
		o.BrokerOrderID, o.Reason, o.CreatedAt.UTC(), now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrder records a status change with its fill price, broker id and reason.
func (d *Database) UpdateOrder(ctx context.Context, id, status string, fillPrice float64, brokerID, reason string) error {
	return updateOrder(ctx, d.DB, id, status, fillPrice, brokerID, reason)
}

func (t *Tx) UpdateOrder(ctx context.Context, id, status string, fillPrice float64, brokerID, reason string) error {
	return updateOrder(ctx, t.tx, id, status, fillPrice, brokerID, reason)
}

func updateOrder(ctx context.Context, q execer, id, status string, fillPrice float64, brokerID, reason string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, fill_price = ?, broker_order_id = COALESCE(NULLIF(?, ''), broker_order_id),
		    reason = ?, updated_at = ?
		WHERE id = ?
	`, status, fillPrice, brokerID, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, contract, side, kind, qty, price, fill_price, status,
		       broker_order_id, COALESCE(reason, ''), created_at, updated_at
		FROM orders WHERE id = ?
	`, id)
	var o Order
	err := row.Scan(&o.ID, &o.Symbol, &o.Contract, &o.Side, &o.Kind, &o.Qty, &o.Price, &o.FillPrice,
		&o.Status, &o.BrokerOrderID, &o.Reason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListUnsettledOrders returns orders still PENDING or OPEN, oldest first.
func (d *Database) ListUnsettledOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, contract, side, kind, qty, price, fill_price, status,
		       broker_order_id, COALESCE(reason, ''), created_at, updated_at
		FROM orders WHERE status IN ('PENDING', 'OPEN')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list unsettled orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Contract, &o.Side, &o.Kind, &o.Qty, &o.Price, &o.FillPrice,
			&o.Status, &o.BrokerOrderID, &o.Reason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOrders returns the number of stored orders, for diagnostics and tests.
func (d *Database) CountOrders(ctx context.Context) (int, error) {
	var n int
	if err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// ----------------------------------------
// Positions
// ----------------------------------------

func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	return upsertPosition(ctx, d.DB, p)
}

func (t *Tx) UpsertPosition(ctx context.Context, p Position) error {
	return upsertPosition(ctx, t.tx, p)
}

func upsertPosition(ctx context.Context, q execer, p Position) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO positions (
			symbol, side, contract, entry_price, qty, stop_loss, trailing_stop, entry_order_id, opened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			contract = excluded.contract,
			entry_price = excluded.entry_price,
			qty = excluded.qty,
			stop_loss = excluded.stop_loss,
			trailing_stop = excluded.trailing_stop,
			entry_order_id = excluded.entry_order_id,
			opened_at = excluded.opened_at
	`, p.Symbol, p.Side, p.Contract, p.EntryPrice, p.Qty, p.StopLoss, p.TrailingStop, p.EntryOrderID, p.OpenedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (d *Database) DeletePosition(ctx context.Context, symbol string) error {
	return deletePosition(ctx, d.DB, symbol)
}

func (t *Tx) DeletePosition(ctx context.Context, symbol string) error {
	return deletePosition(ctx, t.tx, symbol)
}

func deletePosition(ctx context.Context, q execer, symbol string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, side, contract, entry_price, qty, stop_loss, trailing_stop, entry_order_id, opened_at
		FROM positions ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Contract, &p.EntryPrice, &p.Qty, &p.StopLoss,
			&p.TrailingStop, &p.EntryOrderID, &p.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Trades
// ----------------------------------------

func (d *Database) InsertTrade(ctx context.Context, t Trade) error {
	return insertTrade(ctx, d.DB, t)
}

func (t *Tx) InsertTrade(ctx context.Context, tr Trade) error {
	return insertTrade(ctx, t.tx, tr)
}

func insertTrade(ctx context.Context, q execer, t Trade) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trades (
			id, trade_date, symbol, contract, order_type, entry_time, exit_time,
			entry_price, exit_price, qty, pnl, status, exit_reason, entry_order_id, exit_order_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.TradeDate, t.Symbol, t.Contract, t.OrderType, t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.EntryPrice, t.ExitPrice, t.Qty, t.PnL, t.Status, t.ExitReason, t.EntryOrderID, t.ExitOrderID,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTradesByDate returns the trades closed on date (YYYY-MM-DD), oldest first.
func (d *Database) ListTradesByDate(ctx context.Context, date string) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, trade_date, symbol, contract, order_type, entry_time, exit_time,
		       entry_price, exit_price, qty, pnl, status, exit_reason, entry_order_id, exit_order_id
		FROM trades
		WHERE trade_date = ?
		ORDER BY exit_time, id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.TradeDate, &t.Symbol, &t.Contract, &t.OrderType, &t.EntryTime,
			&t.ExitTime, &t.EntryPrice, &t.ExitPrice, &t.Qty, &t.PnL, &t.Status, &t.ExitReason,
			&t.EntryOrderID, &t.ExitOrderID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
