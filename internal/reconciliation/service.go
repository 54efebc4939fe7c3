// Package reconciliation settles orders a previous run left PENDING or OPEN.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"supertrend-core/internal/logger"
	"supertrend-core/internal/order"
	"supertrend-core/pkg/db"
)

// BrokerClient is the broker view used to settle leftovers.
type BrokerClient interface {
	OrderStatus(ctx context.Context, id string) (order.BrokerOrder, error)
	CancelOrder(ctx context.Context, id string) error
}

// Report contains reconciliation results
type Report struct {
	Timestamp time.Time
	Diffs     []OrderDiff
	Settled   int
	// Attention counts orders filled at the broker whose fill was never booked.
	Attention int
}

// OrderDiff describes one unsettled order and what was done with it.
type OrderDiff struct {
	OrderID      string
	Contract     string
	Kind         string
	LocalStatus  order.Status
	BrokerStatus order.Status // empty when the broker could not be asked
	Final        order.Status
	Note         string
}

// Service settles unsettled orders once, before a new run trades.
type Service struct {
	broker   BrokerClient
	database *db.Database
	now      func() time.Time
}

func NewService(broker BrokerClient, database *db.Database) *Service {
	return &Service{broker: broker, database: database, now: time.Now}
}

// Reconcile moves every PENDING/OPEN order to a terminal state. Orders still
// live at the broker are cancelled there first. A fill that happened while the
// engine was down is recorded as FILLED but not booked to the ledger; it is
// counted in Attention and logged as an error.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	report := Report{Timestamp: s.now()}
	if s.database == nil {
		return report, nil
	}
	orders, err := s.database.ListUnsettledOrders(ctx)
	if err != nil {
		return report, err
	}

	for _, o := range orders {
		diff := OrderDiff{
			OrderID:     o.ID,
			Contract:    o.Contract,
			Kind:        o.Kind,
			LocalStatus: order.Status(o.Status),
		}
		final, fill, note := s.settle(ctx, o, &diff)
		diff.Final, diff.Note = final, note
		if err := s.database.UpdateOrder(ctx, o.ID, string(final), fill, o.BrokerOrderID, note); err != nil {
			return report, fmt.Errorf("settle order %s: %w", o.ID, err)
		}
		report.Settled++
		if final == order.StatusFilled {
			report.Attention++
		}
		report.Diffs = append(report.Diffs, diff)
	}

	s.handleReport(report)
	return report, nil
}

func (s *Service) settle(ctx context.Context, o db.Order, diff *OrderDiff) (order.Status, float64, string) {
	if o.BrokerOrderID == "" || s.broker == nil {
		return order.StatusRejected, 0, "not submitted before restart"
	}
	bo, err := s.broker.OrderStatus(ctx, o.BrokerOrderID)
	if err != nil {
		return order.StatusRejected, 0, "broker status unknown after restart: " + err.Error()
	}
	diff.BrokerStatus = bo.Status

	switch bo.Status {
	case order.StatusFilled:
		return order.StatusFilled, bo.FillPrice, "filled while engine was down; not booked"
	case order.StatusCancelled, order.StatusRejected:
		return bo.Status, 0, "settled at broker after restart"
	}
	if err := s.broker.CancelOrder(ctx, o.BrokerOrderID); err != nil {
		return order.StatusRejected, 0, "cancel after restart failed: " + err.Error()
	}
	return order.StatusCancelled, 0, "cancelled after restart"
}

func (s *Service) handleReport(report Report) {
	if len(report.Diffs) == 0 {
		logger.Debugf("reconciliation OK: no unsettled orders")
		return
	}
	logger.Warnf("reconciliation settled %d unsettled orders", report.Settled)
	for _, d := range report.Diffs {
		line := fmt.Sprintf("  %s %s %s: %s -> %s (%s)", d.OrderID, d.Kind, d.Contract, d.LocalStatus, d.Final, d.Note)
		if d.Final == order.StatusFilled {
			logger.Errorf("%s; reconcile the broker position manually", line)
			continue
		}
		logger.Warnf("%s", line)
	}
}
