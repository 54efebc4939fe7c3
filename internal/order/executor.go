package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"supertrend-core/internal/events"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/state"
	"supertrend-core/internal/strategy"
	"supertrend-core/pkg/db"
)

var (
	ErrFillTimeout = errors.New("fill not confirmed before timeout")
	ErrNoPosition  = errors.New("exit without an open position")
)

// Executor turns signals into broker orders and waits for the fill. It persists
// the order as PENDING/OPEN; the FILLED write happens in Settle, in the same
// transaction as the trade and position rows.
type Executor struct {
	Broker      OrderBroker
	DB          *db.Database
	Bus         *events.Bus
	Instruments InstrumentResolver // optional

	Index          string
	LotSize        int
	StrikeInterval int
	FillTimeout    time.Duration
	PollInterval   time.Duration

	now func() time.Time
}

func NewExecutor(broker OrderBroker, database *db.Database, bus *events.Bus) *Executor {
	return &Executor{
		Broker:       broker,
		DB:           database,
		Bus:          bus,
		FillTimeout:  30 * time.Second,
		PollInterval: time.Second,
		now:          time.Now,
	}
}

// Build prepares the order for sig without sending it.
func (e *Executor) Build(sig strategy.Signal, pos *state.Position) (Order, error) {
	o := Order{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Kind:      sig.Kind,
		Price:     sig.Price,
		Reason:    sig.Reason,
		Status:    StatusPending,
		CreatedAt: e.now(),
	}
	o.UpdatedAt = o.CreatedAt
	if sig.Kind.IsEntry() {
		strike := ATMStrike(sig.Price, e.StrikeInterval)
		o.Contract = ContractName(e.Index, strike, OptionFor(sig.Kind.Side()))
		o.Side = "BUY"
		o.Qty = e.LotSize
		return o, nil
	}
	if pos == nil {
		return Order{}, ErrNoPosition
	}
	o.Contract = pos.Contract
	o.Side = "SELL"
	o.Qty = pos.Qty
	return o, nil
}

// Execute submits the order for sig and blocks until the broker confirms a fill,
// rejects it, the fill timeout passes or ctx is cancelled. Any outcome other than
// a fill returns an *ExecutionError with the order marked REJECTED. A filled
// order is returned with its fill price but not yet FILLED: pass it to Settle.
func (e *Executor) Execute(ctx context.Context, sig strategy.Signal, pos *state.Position) (Order, error) {
	o, err := e.Build(sig, pos)
	if err != nil {
		return Order{}, &ExecutionError{Kind: sig.Kind, Err: err}
	}
	if e.DB != nil {
		if err := e.DB.CreateOrder(ctx, o.Row()); err != nil {
			return o, &ExecutionError{OrderID: o.ID, Kind: o.Kind, Err: fmt.Errorf("store order: %w", err)}
		}
	}
	e.Bus.Publish(events.EventOrderUpdate, o)

	req := Request{
		ClientID: o.ID,
		Contract: o.Contract,
		Side:     o.Side,
		Qty:      o.Qty,
		Price:    o.Price,
	}
	if e.Instruments != nil {
		strike, opt, err := ParseContract(o.Contract)
		if err == nil {
			req.SecurityID, err = e.Instruments.Resolve(e.Index, strike, opt)
		}
		if err != nil {
			return e.reject(o, fmt.Errorf("resolve %s: %w", o.Contract, err))
		}
	}
	res, err := e.Broker.PlaceOrder(ctx, req)
	if err != nil {
		return e.reject(o, fmt.Errorf("place order: %w", err))
	}
	o.BrokerOrderID = res.ID
	logger.Infof("order %s submitted: %s %d x %s broker_id=%s", o.ID, o.Side, o.Qty, o.Contract, res.ID)

	if !res.Status.Terminal() {
		if err := o.Transition(StatusOpen); err != nil {
			return e.reject(o, err)
		}
		e.persist(o)
		e.Bus.Publish(events.EventOrderUpdate, o)
		res, err = e.awaitFill(ctx, res.ID)
		if err != nil {
			e.cancelAtBroker(o)
			return e.reject(o, err)
		}
	}

	switch res.Status {
	case StatusFilled:
	case StatusCancelled, StatusRejected:
		msg := res.Message
		if msg == "" {
			msg = string(res.Status)
		}
		return e.reject(o, fmt.Errorf("broker: %s", msg))
	default:
		return e.reject(o, fmt.Errorf("unexpected broker status %q", res.Status))
	}

	o.FillPrice = res.FillPrice
	if o.FillPrice <= 0 {
		o.FillPrice = o.Price
	}
	return o, nil
}

// Settle marks o FILLED and runs book in the same transaction. The write is not
// tied to ctx's cancellation so a stop cannot split it; book must use the
// context it is given. When the transaction
// fails the order is marked REJECTED and an *ExecutionError is returned.
func (e *Executor) Settle(ctx context.Context, o *Order, book func(ctx context.Context, tx *db.Tx) error) error {
	if e.DB == nil {
		return &ExecutionError{OrderID: o.ID, Kind: o.Kind, Err: errors.New("executor: DB not configured")}
	}
	filled := *o
	if err := filled.Transition(StatusFilled); err != nil {
		return &ExecutionError{OrderID: o.ID, Kind: o.Kind, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := e.DB.InTx(ctx, func(tx *db.Tx) error {
		if err := tx.UpdateOrder(ctx, filled.ID, string(filled.Status), filled.FillPrice, filled.BrokerOrderID, filled.Reason); err != nil {
			return err
		}
		if book == nil {
			return nil
		}
		return book(ctx, tx)
	})
	if err != nil {
		e.MarkRejected(o, "bookkeeping failed: "+err.Error())
		return &ExecutionError{OrderID: o.ID, Kind: o.Kind, Err: err}
	}

	*o = filled
	logger.Tradef(o.Side, "%s %d x %s @ %.2f (index %.2f) order=%s", o.Kind, o.Qty, o.Contract, o.FillPrice, o.Price, o.ID)
	e.Bus.Publish(events.EventOrderFilled, *o)
	return nil
}

func (e *Executor) awaitFill(ctx context.Context, brokerID string) (BrokerOrder, error) {
	deadline := time.NewTimer(e.FillTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return BrokerOrder{}, ctx.Err()
		case <-deadline.C:
			return BrokerOrder{}, fmt.Errorf("%w (%s)", ErrFillTimeout, e.FillTimeout)
		case <-ticker.C:
			res, err := e.Broker.OrderStatus(ctx, brokerID)
			if err != nil {
				logger.Warnf("order status %s: %v", brokerID, err)
				continue
			}
			if res.Status.Terminal() {
				return res, nil
			}
		}
	}
}

// cancelAtBroker runs even when the caller's context is gone.
func (e *Executor) cancelAtBroker(o Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Broker.CancelOrder(ctx, o.BrokerOrderID); err != nil {
		logger.Warnf("cancel order %s at broker: %v", o.BrokerOrderID, err)
	}
}

func (e *Executor) reject(o Order, cause error) (Order, error) {
	e.MarkRejected(&o, cause.Error())
	return o, &ExecutionError{OrderID: o.ID, Kind: o.Kind, Err: cause}
}

// MarkRejected moves o to REJECTED and persists it.
func (e *Executor) MarkRejected(o *Order, reason string) {
	if err := o.Transition(StatusRejected); err != nil {
		logger.Errorf("reject order %s: %v", o.ID, err)
		return
	}
	o.Reason = reason
	e.persist(*o)
	logger.Errorf("order %s rejected: %s", o.ID, reason)
	e.Bus.Publish(events.EventOrderReject, *o)
}

func (e *Executor) persist(o Order) {
	if e.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.DB.UpdateOrder(ctx, o.ID, string(o.Status), o.FillPrice, o.BrokerOrderID, o.Reason); err != nil {
		logger.Errorf("persist order %s: %v", o.ID, err)
	}
}
