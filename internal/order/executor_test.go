package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supertrend-core/internal/events"
	"supertrend-core/internal/state"
	"supertrend-core/internal/strategy"
	"supertrend-core/pkg/db"
)

type fakeBroker struct {
	mu        sync.Mutex
	placeErr  error
	ack       BrokerOrder
	statuses  []BrokerOrder // returned by successive OrderStatus calls
	polls     int
	cancelled []string
	requests  []Request
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req Request) (BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.placeErr != nil {
		return BrokerOrder{}, f.placeErr
	}
	return f.ack, nil
}

func (f *fakeBroker) OrderStatus(_ context.Context, id string) (BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i < len(f.statuses) {
		return f.statuses[i], nil
	}
	return BrokerOrder{ID: id, Status: StatusOpen}, nil
}

func (f *fakeBroker) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(database))
	t.Cleanup(func() { database.Close() })
	return database
}

func newTestExecutor(t *testing.T, b OrderBroker) *Executor {
	e := NewExecutor(b, newTestDB(t), events.NewBus())
	e.Index = "NIFTY"
	e.LotSize = 10
	e.StrikeInterval = 50
	e.FillTimeout = 200 * time.Millisecond
	e.PollInterval = 10 * time.Millisecond
	return e
}

func enter(kind strategy.Kind, price float64) strategy.Signal {
	return strategy.Signal{Kind: kind, Symbol: "NIFTY", Price: price, Reason: strategy.ReasonTrendFlip, At: time.Now()}
}

func storedStatus(t *testing.T, e *Executor, id string) string {
	t.Helper()
	row, err := e.DB.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return row.Status
}

func TestPaperEntryFillsImmediately(t *testing.T) {
	e := newTestExecutor(t, NewPaperBroker())
	o, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24512), nil)
	require.NoError(t, err)

	assert.Equal(t, "NIFTY 24500 CE", o.Contract)
	assert.Equal(t, "BUY", o.Side)
	assert.Equal(t, 10, o.Qty)
	assert.Equal(t, 24512.0, o.FillPrice)
	assert.True(t, strings.HasPrefix(o.BrokerOrderID, "PAPER_"))
	assert.Equal(t, "PENDING", storedStatus(t, e, o.ID))

	require.NoError(t, e.Settle(context.Background(), &o, nil))
	assert.Equal(t, StatusFilled, o.Status)
	assert.Equal(t, "FILLED", storedStatus(t, e, o.ID))
}

func TestShortEntryBuysPut(t *testing.T) {
	e := newTestExecutor(t, NewPaperBroker())
	o, err := e.Execute(context.Background(), enter(strategy.EnterShort, 24538), nil)
	require.NoError(t, err)
	assert.Equal(t, "NIFTY 24550 PE", o.Contract)
	assert.Equal(t, "BUY", o.Side)
}

func TestExitSellsHeldContract(t *testing.T) {
	e := newTestExecutor(t, NewPaperBroker())
	pos := &state.Position{Symbol: "NIFTY", Side: state.SideShort, Contract: "NIFTY 24550 PE", Qty: 20}
	o, err := e.Execute(context.Background(), strategy.Signal{Kind: strategy.Exit, Symbol: "NIFTY", Price: 24400}, pos)
	require.NoError(t, err)
	assert.Equal(t, "SELL", o.Side)
	assert.Equal(t, "NIFTY 24550 PE", o.Contract)
	assert.Equal(t, 20, o.Qty)

	_, err = e.Execute(context.Background(), strategy.Signal{Kind: strategy.Exit, Symbol: "NIFTY"}, nil)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestLiveFillAfterPolling(t *testing.T) {
	b := &fakeBroker{
		ack: BrokerOrder{ID: "B1", Status: StatusPending},
		statuses: []BrokerOrder{
			{ID: "B1", Status: StatusOpen},
			{ID: "B1", Status: StatusFilled, FillPrice: 112.5},
		},
	}
	e := newTestExecutor(t, b)
	o, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24500), nil)
	require.NoError(t, err)
	assert.Equal(t, 112.5, o.FillPrice)
	assert.Equal(t, StatusOpen, o.Status)
	assert.Equal(t, "OPEN", storedStatus(t, e, o.ID))
	assert.Empty(t, b.cancelled)
	require.Len(t, b.requests, 1)
	assert.Equal(t, o.ID, b.requests[0].ClientID)
}

func TestLiveTimeoutCancelsAndRejects(t *testing.T) {
	b := &fakeBroker{ack: BrokerOrder{ID: "B2", Status: StatusOpen}}
	e := newTestExecutor(t, b)
	e.FillTimeout = 50 * time.Millisecond

	o, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24500), nil)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrFillTimeout)
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "REJECTED", storedStatus(t, e, o.ID))
	assert.Equal(t, []string{"B2"}, b.cancelled)
}

func TestCancellationDuringFillWait(t *testing.T) {
	b := &fakeBroker{ack: BrokerOrder{ID: "B3", Status: StatusOpen}}
	e := newTestExecutor(t, b)
	e.FillTimeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	o, err := e.Execute(ctx, enter(strategy.EnterShort, 24500), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, []string{"B3"}, b.cancelled)
}

func TestBrokerRejection(t *testing.T) {
	e := newTestExecutor(t, &fakeBroker{ack: BrokerOrder{ID: "B4", Status: StatusRejected, Message: "margin"}})
	o, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24500), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "margin")
	assert.Equal(t, StatusRejected, o.Status)

	e = newTestExecutor(t, &fakeBroker{placeErr: errors.New("connection refused")})
	o, err = e.Execute(context.Background(), enter(strategy.EnterLong, 24500), nil)
	require.Error(t, err)
	assert.Equal(t, "REJECTED", storedStatus(t, e, o.ID))
}

func TestSettleFailureRejectsOrder(t *testing.T) {
	e := newTestExecutor(t, NewPaperBroker())
	o, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24500), nil)
	require.NoError(t, err)

	err = e.Settle(context.Background(), &o, func(ctx context.Context, tx *db.Tx) error {
		if err := tx.UpsertPosition(ctx, db.Position{Symbol: "NIFTY", Side: "LONG", EntryPrice: 1, Qty: 1, EntryOrderID: o.ID, OpenedAt: time.Now()}); err != nil {
			return err
		}
		return errors.New("disk full")
	})
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "REJECTED", storedStatus(t, e, o.ID))

	positions, err := e.DB.ListPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "position write must roll back with the order")
}

func TestSettleSurvivesCancelledContext(t *testing.T) {
	e := newTestExecutor(t, NewPaperBroker())
	o, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24500), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Settle(ctx, &o, nil))
	assert.Equal(t, "FILLED", storedStatus(t, e, o.ID))
}

type mapResolver map[string]string

func (m mapResolver) Resolve(index string, strike int, opt OptionType) (string, error) {
	id, ok := m[ContractName(index, strike, opt)]
	if !ok {
		return "", errors.New("not listed")
	}
	return id, nil
}

func TestInstrumentResolution(t *testing.T) {
	b := &fakeBroker{ack: BrokerOrder{ID: "B5", Status: StatusFilled, FillPrice: 95}}
	e := newTestExecutor(t, b)
	e.Instruments = mapResolver{"NIFTY 24500 CE": "43210"}

	_, err := e.Execute(context.Background(), enter(strategy.EnterLong, 24490), nil)
	require.NoError(t, err)
	require.Len(t, b.requests, 1)
	assert.Equal(t, "43210", b.requests[0].SecurityID)

	o, err := e.Execute(context.Background(), enter(strategy.EnterShort, 24490), nil)
	require.Error(t, err)
	assert.Equal(t, StatusRejected, o.Status)
	assert.Len(t, b.requests, 1, "unresolvable contract must not reach the broker")
}
