package order

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Request is what the executor asks a broker to do.
type Request struct {
	ClientID   string
	Contract   string
	SecurityID string // broker instrument id; empty when no resolver is configured
	Side       string // BUY or SELL
	Qty        int
	Price      float64 // reference price; market orders may ignore it
}

// BrokerOrder is the broker's view of an order.
type BrokerOrder struct {
	ID        string
	Status    Status
	FillPrice float64
	Message   string
}

// OrderBroker is the execution venue behind the executor.
type OrderBroker interface {
	PlaceOrder(ctx context.Context, req Request) (BrokerOrder, error)
	OrderStatus(ctx context.Context, id string) (BrokerOrder, error)
	CancelOrder(ctx context.Context, id string) error
}

// PaperBroker fills every order immediately at its reference price.
type PaperBroker struct {
	mu     sync.Mutex
	seq    int
	orders map[string]BrokerOrder
	now    func() time.Time
}

func NewPaperBroker() *PaperBroker {
	return &PaperBroker{orders: make(map[string]BrokerOrder), now: time.Now}
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, req Request) (BrokerOrder, error) {
	if err := ctx.Err(); err != nil {
		return BrokerOrder{}, err
	}
	if req.Qty <= 0 {
		return BrokerOrder{}, fmt.Errorf("paper: invalid quantity %d", req.Qty)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	bo := BrokerOrder{
		ID:        fmt.Sprintf("PAPER_%s_%d", p.now().Format("20060102_150405"), p.seq),
		Status:    StatusFilled,
		FillPrice: req.Price,
	}
	p.orders[bo.ID] = bo
	return bo, nil
}

func (p *PaperBroker) OrderStatus(_ context.Context, id string) (BrokerOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bo, ok := p.orders[id]
	if !ok {
		return BrokerOrder{}, fmt.Errorf("paper: unknown order %s", id)
	}
	return bo, nil
}

func (p *PaperBroker) CancelOrder(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	bo, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", id)
	}
	if bo.Status.Terminal() {
		return fmt.Errorf("paper: order %s already %s", id, bo.Status)
	}
	bo.Status = StatusCancelled
	p.orders[id] = bo
	return nil
}
