package monitor

import (
	"context"
	"fmt"

	"supertrend-core/internal/events"
	"supertrend-core/internal/ledger"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/order"
	"supertrend-core/internal/strategy"
)

// Monitor turns bus events into metric updates and alerts.
type Monitor struct {
	Bus     *events.Bus
	Metrics *Metrics
	Alerts  AlertSink
}

// Start consumes events until ctx is done. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Metrics == nil {
		logger.Warnf("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.SubscribeAll(256)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				m.handle(env)
			}
		}
	}()
}

func (m *Monitor) handle(env events.Envelope) {
	switch p := env.Payload.(type) {
	case strategy.Signal:
		m.Metrics.SignalsGenerated.WithLabelValues(string(p.Kind), p.Reason).Inc()
	case order.Order:
		switch env.Type {
		case events.EventOrderFilled, events.EventOrderReject:
			m.Metrics.Orders.WithLabelValues(string(p.Status)).Inc()
		}
		if env.Type == events.EventOrderFilled {
			m.Metrics.OrderLatency.Observe(p.UpdatedAt.Sub(p.CreatedAt).Seconds())
		}
	case ledger.Trade:
		m.Metrics.TradesClosed.WithLabelValues(p.ExitReason).Inc()
	}
	if env.Type == events.EventRiskAlert && m.Alerts != nil {
		if err := m.Alerts.Send(formatAlert(env.Payload)); err != nil {
			logger.Errorf("alert delivery failed: %v", err)
		}
	}
}

func formatAlert(msg any) string {
	switch t := msg.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
