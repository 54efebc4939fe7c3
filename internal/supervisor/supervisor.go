// Package supervisor owns the engine lifecycle: it starts the trading loop for the
// configured index, stops it on request and reports its status.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"supertrend-core/internal/botconfig"
	"supertrend-core/internal/events"
	"supertrend-core/internal/indicators"
	"supertrend-core/internal/ledger"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/market"
	"supertrend-core/internal/monitor"
	"supertrend-core/internal/order"
	"supertrend-core/internal/reconciliation"
	"supertrend-core/internal/risk"
	"supertrend-core/internal/state"
	"supertrend-core/pkg/db"
	"supertrend-core/pkg/session"
)

// Options wires the supervisor to its collaborators. NewSource and NewBroker
// are resolved on every start so credentials saved while stopped take effect.
type Options struct {
	DB       *db.Database
	Bus      *events.Bus
	Metrics  *monitor.Metrics
	Calendar *session.Calendar

	EnforceSession       bool
	MaxFeedFailures      int
	FillTimeout          time.Duration
	FillPoll             time.Duration
	MaxConsecutiveLosses int
	LossCooldown         time.Duration

	NewSource func(cfg botconfig.Config) (market.MarketDataSource, error)
	NewBroker func(cfg botconfig.Config) (order.OrderBroker, order.InstrumentResolver, error)
}

// Supervisor runs at most one engine loop. Start, Stop and Status share one lock.
type Supervisor struct {
	opts Options

	positions *state.Manager
	risk      *risk.Manager
	stops     *risk.StopLossManager
	ledger    *ledger.Ledger

	mu        sync.Mutex
	state     State
	cfg       botconfig.Config
	seq       int
	pid       int
	startedAt time.Time
	lastErr   string
	cancel    context.CancelFunc
	done      chan struct{}

	heartbeat atomic.Int64
	lastTick  atomic.Int64

	now       func() time.Time
	pollEvery func(botconfig.Config) time.Duration
}

func New(opts Options) *Supervisor {
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitor.NewMetrics("supertrend")
	}
	if opts.Calendar == nil {
		opts.Calendar = session.NSE()
	}
	if opts.MaxFeedFailures < 1 {
		opts.MaxFeedFailures = 10
	}
	s := &Supervisor{
		opts:      opts,
		positions: state.NewManager(opts.DB),
		risk:      risk.NewManager(risk.Config{}),
		stops:     risk.NewStopLossManager(),
		ledger:    ledger.New(opts.DB, opts.Calendar.Location()),
		state:     StateStopped,
		now:       time.Now,
		pollEvery: botconfig.Config.PollEvery,
	}
	opts.Metrics.SetState(string(StateStopped), allStates...)
	return s
}

var allStates = []string{string(StateStopped), string(StateRunning), string(StateHalted)}

// Ledger exposes the trade ledger backing the status figures.
func (s *Supervisor) Ledger() *ledger.Ledger { return s.ledger }

// Running reports whether a loop is active. It is used as the config store's
// restart gate.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateStopped
}

// Start validates cfg and launches the loop. ctx bounds only the start-up work;
// the loop runs until Stop or a fatal error.
func (s *Supervisor) Start(ctx context.Context, cfg botconfig.Config) (BotStatus, error) {
	if err := cfg.Validate(); err != nil {
		return s.Status(), err
	}

	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return s.Status(), ErrAlreadyRunning
	}
	e, err := s.prepare(ctx, cfg)
	if err != nil {
		s.mu.Unlock()
		return s.Status(), err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.seq++
	s.pid = s.seq
	s.cfg = cfg
	s.startedAt = s.now()
	s.lastErr = ""
	s.cancel = cancel
	s.done = done
	s.heartbeat.Store(s.startedAt.UnixNano())
	s.lastTick.Store(0)
	reason := s.risk.HaltReason()
	if reason != "" {
		s.setStateLocked(StateHalted)
	} else {
		s.setStateLocked(StateRunning)
	}
	s.mu.Unlock()

	logger.Infof("engine started: index=%s mode=%s timeframe=%dm period=%d multiplier=%g",
		cfg.IndexName, cfg.TradingMode, cfg.CandleTimeframe, cfg.SupertrendPeriod, cfg.SupertrendMultiplier)
	if reason != "" {
		logger.Warnf("engine halted: %s", reason)
	}
	go s.run(runCtx, e, done)

	st := s.Status()
	s.opts.Bus.Publish(events.EventStatusChange, st)
	return st, nil
}

// prepare builds the per-run engine, restores persisted state and seeds the
// daily risk counters. Callers hold s.mu.
func (s *Supervisor) prepare(ctx context.Context, cfg botconfig.Config) (*engine, error) {
	if s.opts.NewSource == nil {
		return nil, errors.New("no market data source configured")
	}
	src, err := s.opts.NewSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("market data source: %w", err)
	}
	var (
		broker   order.OrderBroker
		resolver order.InstrumentResolver
	)
	if s.opts.NewBroker != nil {
		broker, resolver, err = s.opts.NewBroker(cfg)
		if err != nil {
			return nil, fmt.Errorf("broker: %w", err)
		}
	}
	if broker == nil {
		broker = order.NewPaperBroker()
	}
	if _, err := reconciliation.NewService(broker, s.opts.DB).Reconcile(ctx); err != nil {
		return nil, fmt.Errorf("reconcile orders: %w", err)
	}

	exec := order.NewExecutor(broker, s.opts.DB, s.opts.Bus)
	exec.Instruments = resolver
	exec.Index = cfg.IndexName
	exec.LotSize = cfg.LotSize
	exec.StrikeInterval = cfg.StrikeInterval
	if s.opts.FillTimeout > 0 {
		exec.FillTimeout = s.opts.FillTimeout
	}
	if s.opts.FillPoll > 0 {
		exec.PollInterval = s.opts.FillPoll
	}

	s.risk.UpdateConfig(risk.Config{
		MaxTradesPerDay:      cfg.MaxTradesPerDay,
		MaxLossPerDay:        cfg.MaxLossPerDay,
		StopLossPercent:      cfg.StopLossPercent,
		TrailingStopPercent:  cfg.TrailingStopPercent,
		MaxConsecutiveLosses: s.opts.MaxConsecutiveLosses,
		LossCooldown:         s.opts.LossCooldown,
	})

	restored, err := s.positions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	for _, p := range restored {
		if p.Symbol != cfg.IndexName {
			logger.Warnf("ignoring persisted %s position on %s: engine trades %s", p.Side, p.Symbol, cfg.IndexName)
			continue
		}
		s.stops.Restore(p, cfg.TrailingStopPercent)
		logger.Infof("restored open %s position %s entry=%.2f stop=%.2f trailing=%.2f",
			p.Side, p.Contract, p.EntryPrice, p.StopLoss, p.TrailingStop)
	}

	now := s.now()
	day := s.ledger.Day(now)
	if s.risk.GetMetrics().Day != day {
		trades, err := s.ledger.Trades(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("load today's trades: %w", err)
		}
		entries := len(trades)
		if p := s.positions.Position(cfg.IndexName); p != nil && s.ledger.Day(p.OpenedAt) == day {
			entries++
		}
		pnl := ledger.Summarize(trades).TotalPnL
		s.risk.Seed(day, entries, pnl)
	}

	feed := market.NewFeed(src, cfg.IndexName, s.pollEvery(cfg), cfg.Timeframe())
	return &engine{
		sup:       s,
		cfg:       cfg,
		feed:      feed,
		trend:     indicators.NewSuperTrend(cfg.SupertrendPeriod, cfg.SupertrendMultiplier),
		exec:      exec,
		risk:      s.risk,
		stops:     s.stops,
		positions: s.positions,
		ledger:    s.ledger,
		calendar:  s.opts.Calendar,
		enforce:   s.opts.EnforceSession,
		metrics:   s.opts.Metrics,
		bus:       s.opts.Bus,
		maxFails:  s.opts.MaxFeedFailures,
		now:       s.now,
	}, nil
}

func (s *Supervisor) run(ctx context.Context, e *engine, done chan struct{}) {
	defer close(done)
	err := e.run(ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err.Error()
		logger.Errorf("engine stopped: %v", err)
	} else {
		logger.Infof("engine stopped")
	}
	s.cancel = nil
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	s.opts.Bus.Publish(events.EventStatusChange, s.Status())
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped engine is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

// halt moves a running engine to HALTED. The loop keeps running so stops on an
// open position are still honoured.
func (s *Supervisor) halt(reason string) {
	s.mu.Lock()
	changed := s.state == StateRunning
	if changed {
		s.setStateLocked(StateHalted)
	}
	s.mu.Unlock()
	if changed {
		logger.Warnf("engine halted: %s", reason)
		s.opts.Bus.Publish(events.EventStatusChange, s.Status())
	}
}

func (s *Supervisor) resume(day string) {
	s.mu.Lock()
	changed := s.state == StateHalted
	if changed {
		s.setStateLocked(StateRunning)
	}
	s.mu.Unlock()
	if changed {
		logger.Infof("new trading day %s: engine resumed", day)
		s.opts.Bus.Publish(events.EventStatusChange, s.Status())
	}
}

func (s *Supervisor) setStateLocked(st State) {
	s.state = st
	s.opts.Metrics.SetState(string(st), allStates...)
}

// staleAfter bounds how long a healthy loop can go without a beat: one poll plus
// the feed's retry backoff and per-request timeouts.
func staleAfter(poll time.Duration) time.Duration {
	return 30*poll + 90*time.Second
}

// Status returns a snapshot. A loop that stopped beating is reported in Error
// while the state is left alone.
func (s *Supervisor) Status() BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := BotStatus{
		State:   s.state,
		Running: s.state != StateStopped,
	}
	if s.lastErr != "" {
		msg := s.lastErr
		st.Error = &msg
	}
	if st.Running {
		pid, started := s.pid, s.startedAt
		st.PID = &pid
		st.StartedAt = &started
		st.TradingMode = string(s.cfg.TradingMode)
		st.Index = s.cfg.IndexName
		if beat := time.Unix(0, s.heartbeat.Load()); now.Sub(beat) > staleAfter(s.pollEvery(s.cfg)) {
			msg := fmt.Sprintf("no heartbeat since %s", beat.Format(time.RFC3339))
			st.Error = &msg
		}
		if p := s.positions.Position(s.cfg.IndexName); p != nil {
			st.Position = p
		}
	}
	if ns := s.lastTick.Load(); ns > 0 {
		t := time.Unix(0, ns)
		st.LastTick = &t
	}

	m := s.risk.GetMetrics()
	if m.Day == s.ledger.Day(now) {
		st.TotalTradesToday = m.DailyTrades
		st.PnLToday = m.DailyPnL
	}
	return st
}

func (s *Supervisor) beat(t time.Time) {
	s.heartbeat.Store(t.UnixNano())
}
