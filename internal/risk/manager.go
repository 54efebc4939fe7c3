package risk

import (
	"fmt"
	"sync"
	"time"

	"supertrend-core/internal/logger"
	"supertrend-core/internal/strategy"
)

// Manager gates entries against the daily limits and tracks realised pnl.
type Manager struct {
	mu      sync.RWMutex
	config  Config
	metrics RiskMetrics
}

func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// UpdateConfig swaps the limits; daily counters are kept.
func (m *Manager) UpdateConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// EvaluateSignal decides whether sig may be executed. EXIT always passes.
func (m *Manager) EvaluateSignal(sig strategy.Signal, hasPosition bool, now time.Time) RiskDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.ChecksTotal++
	if !sig.Kind.IsEntry() {
		return RiskDecision{Allowed: true, LimitLevel: LimitNormal}
	}

	reject := func(reason string, halt bool) RiskDecision {
		m.metrics.RejectionsTotal++
		level := LimitNormal
		if halt {
			level = LimitHalt
		}
		return RiskDecision{Allowed: false, Reason: reason, LimitLevel: level, Halt: halt}
	}

	if reason := m.haltReasonLocked(); reason != "" {
		return reject(reason, true)
	}
	if hasPosition {
		return reject("position already open for "+sig.Symbol, false)
	}
	if n := m.config.MaxConsecutiveLosses; n > 0 && m.metrics.ConsecutiveLosses >= n {
		return reject(fmt.Sprintf("consecutive loss limit reached: %d", m.metrics.ConsecutiveLosses), false)
	}
	if cd := m.config.LossCooldown; cd > 0 && !m.metrics.LastLossAt.IsZero() {
		if until := m.metrics.LastLossAt.Add(cd); now.Before(until) {
			return reject(fmt.Sprintf("cooling down after loss until %s", until.Format("15:04:05")), false)
		}
	}
	return RiskDecision{Allowed: true, LimitLevel: LimitNormal}
}

// haltReasonLocked names the daily limit that blocks further entries today, or
// returns "" when none is reached.
func (m *Manager) haltReasonLocked() string {
	if m.config.MaxLossPerDay > 0 && m.metrics.DailyPnL <= -m.config.MaxLossPerDay {
		return fmt.Sprintf("daily loss limit reached: pnl %.2f <= -%.2f", m.metrics.DailyPnL, m.config.MaxLossPerDay)
	}
	if m.config.MaxTradesPerDay > 0 && m.metrics.DailyTrades >= m.config.MaxTradesPerDay {
		return fmt.Sprintf("max trades per day reached: %d/%d", m.metrics.DailyTrades, m.config.MaxTradesPerDay)
	}
	return ""
}

// RegisterEntry counts a filled entry toward the daily trade limit and reports
// whether a daily limit is now reached.
func (m *Manager) RegisterEntry() (halt bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.DailyTrades++
	return m.haltReasonLocked() != ""
}

// UpdateMetrics folds a closed trade into the daily and cumulative figures and
// reports whether a daily limit is now reached.
func (m *Manager) UpdateMetrics(trade TradeResult) (halt bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.DailyPnL += trade.PnL
	if trade.PnL < 0 {
		m.metrics.DailyLosses += -trade.PnL
		m.metrics.ConsecutiveLosses++
		m.metrics.LastLossAt = trade.At
	} else if trade.PnL > 0 {
		m.metrics.ConsecutiveLosses = 0
	}

	m.metrics.TotalRealizedPnL += trade.PnL
	if m.metrics.TotalRealizedPnL > m.metrics.MaxProfit {
		m.metrics.MaxProfit = m.metrics.TotalRealizedPnL
	}
	if dd := m.metrics.MaxProfit - m.metrics.TotalRealizedPnL; dd > m.metrics.MaxDrawdown {
		m.metrics.MaxDrawdown = dd
	}

	return m.haltReasonLocked() != ""
}

// ResetDaily clears the daily counters when day differs from the tracked day.
// It returns true when a reset happened.
func (m *Manager) ResetDaily(day string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.metrics.Day == day {
		return false
	}
	if m.metrics.Day != "" {
		logger.Infof("daily risk reset: prev day=%s pnl=%.2f trades=%d losses=%.2f",
			m.metrics.Day, m.metrics.DailyPnL, m.metrics.DailyTrades, m.metrics.DailyLosses)
	}
	m.metrics.Day = day
	m.metrics.DailyPnL = 0
	m.metrics.DailyTrades = 0
	m.metrics.DailyLosses = 0
	m.metrics.ConsecutiveLosses = 0
	m.metrics.LastLossAt = time.Time{}
	return true
}

// Seed restores the day's counters, e.g. from the ledger after a restart.
func (m *Manager) Seed(day string, trades int, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.Day = day
	m.metrics.DailyTrades = trades
	m.metrics.DailyPnL = pnl
}

// Halted reports whether the daily loss or trade-count limit is reached under
// the current limits.
func (m *Manager) Halted() bool {
	return m.HaltReason() != ""
}

func (m *Manager) HaltReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.haltReasonLocked()
}

// GetMetrics returns a snapshot.
func (m *Manager) GetMetrics() RiskMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}
