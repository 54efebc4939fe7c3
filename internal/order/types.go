package order

import (
	"errors"
	"fmt"
	"time"

	"supertrend-core/internal/strategy"
	"supertrend-core/pkg/db"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOpen      Status = "OPEN"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

var ErrTerminal = errors.New("order already in a terminal state")

// Order represents one instruction sent to the broker.
type Order struct {
	ID            string        `json:"id"`
	Symbol        string        `json:"symbol"`
	Contract      string        `json:"contract"`
	Side          string        `json:"side"` // BUY or SELL on the contract
	Kind          strategy.Kind `json:"kind"`
	Qty           int           `json:"quantity"`
	Price         float64       `json:"price"` // index price at signal time
	FillPrice     float64       `json:"fill_price"`
	Status        Status        `json:"status"`
	BrokerOrderID string        `json:"broker_order_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Transition moves the order to status to. Terminal orders are immutable and
// nothing returns to PENDING.
func (o *Order) Transition(to Status) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: %s %s -> %s", ErrTerminal, o.ID, o.Status, to)
	}
	if to == StatusPending && o.Status != "" && o.Status != StatusPending {
		return fmt.Errorf("order %s: cannot return to %s from %s", o.ID, to, o.Status)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

func (o Order) Row() db.Order {
	return db.Order{
		ID:            o.ID,
		Symbol:        o.Symbol,
		Contract:      o.Contract,
		Side:          o.Side,
		Kind:          string(o.Kind),
		Qty:           o.Qty,
		Price:         o.Price,
		FillPrice:     o.FillPrice,
		Status:        string(o.Status),
		BrokerOrderID: o.BrokerOrderID,
		Reason:        o.Reason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// ExecutionError is returned when an order could not be filled. The order has
// been marked REJECTED and no position was touched.
type ExecutionError struct {
	OrderID string
	Kind    strategy.Kind
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s order %s: %v", e.Kind, e.OrderID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
