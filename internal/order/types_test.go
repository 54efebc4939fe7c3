package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTerminalIsImmutable(t *testing.T) {
	for _, terminal := range []Status{StatusFilled, StatusCancelled, StatusRejected} {
		o := Order{ID: "x", Status: StatusOpen}
		require.NoError(t, o.Transition(terminal))
		for _, next := range []Status{StatusPending, StatusOpen, StatusFilled, StatusCancelled, StatusRejected} {
			assert.ErrorIs(t, o.Transition(next), ErrTerminal)
			assert.Equal(t, terminal, o.Status)
		}
	}
}

func TestTransitionNoReturnToPending(t *testing.T) {
	o := Order{ID: "x", Status: StatusPending}
	require.NoError(t, o.Transition(StatusOpen))
	assert.Error(t, o.Transition(StatusPending))
	assert.Equal(t, StatusOpen, o.Status)
}

func TestATMStrike(t *testing.T) {
	tests := []struct {
		ltp      float64
		interval int
		want     int
	}{
		{24512, 50, 24500},
		{24525, 50, 24550},
		{24574.9, 50, 24550},
		{51230, 100, 51200},
		{51250, 100, 51300},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ATMStrike(tt.ltp, tt.interval), "ltp %v", tt.ltp)
	}
	assert.Equal(t, "BANKNIFTY 51200 PE", ContractName("BANKNIFTY", 51200, Put))
}

func TestPaperBrokerIDs(t *testing.T) {
	p := NewPaperBroker()
	p.now = func() time.Time { return time.Date(2026, 3, 2, 9, 20, 5, 0, time.UTC) }
	a, err := p.PlaceOrder(context.Background(), Request{Qty: 1, Price: 10})
	require.NoError(t, err)
	b, err := p.PlaceOrder(context.Background(), Request{Qty: 1, Price: 10})
	require.NoError(t, err)
	assert.Equal(t, "PAPER_20260302_092005_1", a.ID)
	assert.Equal(t, "PAPER_20260302_092005_2", b.ID)
	assert.Equal(t, StatusFilled, a.Status)
	assert.Error(t, p.CancelOrder(context.Background(), a.ID))

	_, err = p.PlaceOrder(context.Background(), Request{Qty: 0})
	assert.Error(t, err)
}

func TestParseContract(t *testing.T) {
	strike, opt, err := ParseContract(ContractName("NIFTY", 24500, Call))
	require.NoError(t, err)
	assert.Equal(t, 24500, strike)
	assert.Equal(t, Call, opt)

	for _, bad := range []string{"", "NIFTY CE", "NIFTY x PE", "NIFTY 100 XX"} {
		_, _, err := ParseContract(bad)
		assert.Error(t, err, bad)
	}
}
