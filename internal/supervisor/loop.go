package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"supertrend-core/internal/botconfig"
	"supertrend-core/internal/events"
	"supertrend-core/internal/indicators"
	"supertrend-core/internal/ledger"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/market"
	"supertrend-core/internal/monitor"
	"supertrend-core/internal/order"
	"supertrend-core/internal/risk"
	"supertrend-core/internal/state"
	"supertrend-core/internal/strategy"
	"supertrend-core/pkg/db"
	"supertrend-core/pkg/session"
)

// engine is the state of one run: a single serial loop over one index.
type engine struct {
	sup *Supervisor
	cfg botconfig.Config

	feed      *market.Feed
	trend     *indicators.SuperTrend
	exec      *order.Executor
	risk      *risk.Manager
	stops     *risk.StopLossManager
	positions *state.Manager
	ledger    *ledger.Ledger
	calendar  *session.Calendar
	enforce   bool
	metrics   *monitor.Metrics
	bus       *events.Bus

	maxFails int
	now      func() time.Time
}

// run polls the feed until ctx is cancelled (nil) or a fatal condition occurs.
func (e *engine) run(ctx context.Context) error {
	failures := 0
	for {
		tick, err := e.feed.Next(ctx)
		now := e.now()
		e.sup.beat(now)
		if ctx.Err() != nil {
			return nil
		}
		e.dailyReset(now)

		if err != nil {
			switch {
			case errors.Is(err, market.ErrUnauthorized):
				e.metrics.FeedErrors.WithLabelValues("unauthorized").Inc()
				return &FatalError{Err: err}
			case errors.Is(err, market.ErrDataUnavailable):
				failures++
				e.metrics.FeedErrors.WithLabelValues("unavailable").Inc()
				logger.Warnf("market data unavailable (%d/%d): %v", failures, e.maxFails, err)
				if failures > e.maxFails {
					return &FatalError{Err: fmt.Errorf("market data unavailable for %d consecutive polls: %w", failures, err)}
				}
			default:
				e.metrics.FeedErrors.WithLabelValues("other").Inc()
				logger.Warnf("market data error: %v", err)
			}
			continue
		}
		failures = 0

		if err := e.onTick(ctx, tick, now); err != nil {
			return err
		}
	}
}

func (e *engine) dailyReset(now time.Time) {
	day := e.ledger.Day(now)
	if e.risk.ResetDaily(day) {
		e.sup.resume(day)
		e.refreshGauges()
	}
}

// onTick runs stop checks on every quote and the indicator on every closed
// candle. Only fatal errors are returned.
func (e *engine) onTick(ctx context.Context, tick market.Tick, now time.Time) error {
	timer := monitor.NewTimer(e.metrics.TickDuration)
	defer timer.Stop()
	e.metrics.TicksProcessed.Inc()
	e.metrics.LastTick.Set(float64(tick.At.Unix()))
	e.sup.lastTick.Store(tick.At.UnixNano())

	symbol := e.cfg.IndexName
	if pos := e.positions.Position(symbol); pos != nil {
		if err := e.checkStops(ctx, pos, tick, now); err != nil {
			return err
		}
	}
	if pos := e.positions.Position(symbol); pos != nil && e.enforce && !e.calendar.IsOpen(now) {
		e.process(ctx, strategy.Signal{
			Kind:   strategy.Exit,
			Symbol: symbol,
			Price:  tick.Price,
			Reason: strategy.ReasonSessionEnd,
			At:     tick.At,
		}, now)
	}

	if tick.Candle == nil {
		return nil
	}
	c := *tick.Candle
	e.metrics.CandlesClosed.Inc()
	e.bus.Publish(events.EventCandle, c)

	u := e.trend.Update(c)
	if !u.Ready {
		logger.Debugf("supertrend warming up: close=%.2f", c.Close)
		return nil
	}
	logger.Debugf("candle %s close=%.2f trend=%s line=%.2f atr=%.2f",
		c.Timestamp.Format("15:04"), c.Close, u.State.Trend, u.State.Line(), u.State.ATR)
	if u.Flipped {
		logger.Signalf("trend flipped to %s at close %.2f (upper=%.2f lower=%.2f)",
			u.State.Trend, c.Close, u.State.UpperBand, u.State.LowerBand)
	}
	for _, sig := range strategy.Generate(symbol, u, c, e.positions.Position(symbol)) {
		e.process(ctx, sig, now)
	}
	return nil
}

// checkStops exits on a stop breach, otherwise persists a tightened trailing stop.
func (e *engine) checkStops(ctx context.Context, pos *state.Position, tick market.Tick, now time.Time) error {
	if d := e.stops.UpdatePrice(pos.Symbol, tick.Price); d != nil {
		logger.Warnf("%s", d)
		e.process(ctx, strategy.Signal{
			Kind:   strategy.Exit,
			Symbol: pos.Symbol,
			Price:  tick.Price,
			Reason: d.Reason,
			At:     tick.At,
		}, now)
		return nil
	}
	sl, ok := e.stops.GetPosition(pos.Symbol)
	if !ok || sl.TrailingStop == pos.TrailingStop {
		return nil
	}
	if err := e.positions.UpdateTrailingStop(ctx, pos.Symbol, sl.TrailingStop); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &FatalError{Err: fmt.Errorf("persist trailing stop: %w", err)}
	}
	logger.Infof("trailing stop for %s moved to %.2f", pos.Contract, sl.TrailingStop)
	return nil
}

// process gates sig through the session and risk checks, then executes it as one
// atomic unit. Failures are logged and the signal is dropped.
func (e *engine) process(ctx context.Context, sig strategy.Signal, now time.Time) {
	e.bus.Publish(events.EventSignal, sig)
	logger.Signalf("%s %s @ %.2f reason=%s", sig.Kind, sig.Symbol, sig.Price, sig.Reason)

	pos := e.positions.Position(sig.Symbol)
	if sig.Kind.IsEntry() && e.enforce && !e.calendar.IsOpen(now) {
		e.rejected(sig, risk.RiskDecision{Reason: "outside market session", LimitLevel: risk.LimitNormal})
		return
	}
	dec := e.risk.EvaluateSignal(sig, pos != nil, now)
	if !dec.Allowed {
		e.rejected(sig, dec)
		return
	}
	if !sig.Kind.IsEntry() && pos == nil {
		logger.Debugf("exit for %s ignored: no open position", sig.Symbol)
		return
	}

	o, err := e.exec.Execute(ctx, sig, pos)
	if err != nil {
		logger.Errorf("execution failed: %v", err)
		return
	}
	if sig.Kind.IsEntry() {
		e.open(ctx, sig, o, now)
	} else {
		e.close(ctx, sig, o, pos, now)
	}
	e.refreshGauges()
}

func (e *engine) rejected(sig strategy.Signal, dec risk.RiskDecision) {
	logger.Warnf("%s rejected by risk: %s", sig.Kind, dec.Reason)
	e.metrics.RiskRejections.WithLabelValues(dec.LimitLevel).Inc()
	e.bus.Publish(events.EventRiskAlert, fmt.Sprintf("%s %s rejected: %s", sig.Kind, sig.Symbol, dec.Reason))
	if dec.Halt {
		e.sup.halt(dec.Reason)
	}
}

func (e *engine) open(ctx context.Context, sig strategy.Signal, o order.Order, now time.Time) {
	side := sig.Kind.Side()
	sl := risk.StopLossPrice(side, sig.Price, e.cfg.StopLossPercent)
	pos := state.Position{
		Symbol:       sig.Symbol,
		Side:         side,
		Contract:     o.Contract,
		EntryPrice:   sig.Price,
		Qty:          o.Qty,
		StopLoss:     sl,
		TrailingStop: sl,
		EntryOrderID: o.ID,
		OpenedAt:     now,
	}
	err := e.exec.Settle(ctx, &o, func(ctx context.Context, tx *db.Tx) error {
		return tx.UpsertPosition(ctx, pos.Row())
	})
	if err != nil {
		logger.Errorf("entry not recorded: %v", err)
		return
	}
	e.positions.Apply(pos)
	e.stops.AddPosition(pos.Symbol, side, pos.EntryPrice, e.cfg.StopLossPercent, e.cfg.TrailingStopPercent)
	halt := e.risk.RegisterEntry()
	logger.Infof("opened %s %s x%d at index %.2f premium %.2f stop=%.2f",
		side, pos.Contract, pos.Qty, pos.EntryPrice, o.FillPrice, sl)
	if halt {
		e.sup.halt(e.risk.HaltReason())
	}
}

func (e *engine) close(ctx context.Context, sig strategy.Signal, o order.Order, pos *state.Position, now time.Time) {
	trade := ledger.Trade{
		ID:           uuid.NewString(),
		Symbol:       pos.Symbol,
		Contract:     pos.Contract,
		OrderType:    ledger.OrderType(pos.Side),
		EntryTime:    pos.OpenedAt,
		ExitTime:     now,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    sig.Price,
		Quantity:     pos.Qty,
		PnL:          ledger.PnL(pos.Side, pos.Qty, pos.EntryPrice, sig.Price),
		Status:       ledger.StatusClosed,
		ExitReason:   sig.Reason,
		EntryOrderID: pos.EntryOrderID,
		ExitOrderID:  o.ID,
	}
	err := e.exec.Settle(ctx, &o, func(ctx context.Context, tx *db.Tx) error {
		if err := e.ledger.RecordTx(ctx, tx, trade); err != nil {
			return err
		}
		return tx.DeletePosition(ctx, pos.Symbol)
	})
	if err != nil {
		logger.Errorf("exit not recorded, position kept: %v", err)
		return
	}
	e.positions.Remove(pos.Symbol)
	e.stops.RemovePosition(pos.Symbol)
	halt := e.risk.UpdateMetrics(risk.TradeResult{Symbol: pos.Symbol, PnL: trade.PnL, At: now})
	e.bus.Publish(events.EventTradeClosed, trade)
	logger.Infof("closed %s %s x%d entry=%.2f exit=%.2f pnl=%.2f reason=%s",
		pos.Side, pos.Contract, pos.Qty, trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.ExitReason)
	if halt {
		e.sup.halt(e.risk.HaltReason())
	}
}

func (e *engine) refreshGauges() {
	m := e.risk.GetMetrics()
	e.metrics.DailyPnL.Set(m.DailyPnL)
	e.metrics.TradesToday.Set(float64(m.DailyTrades))
	open := 0.0
	if e.positions.Position(e.cfg.IndexName) != nil {
		open = 1
	}
	e.metrics.OpenPosition.Set(open)
}
