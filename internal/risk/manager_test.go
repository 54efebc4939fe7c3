package risk

import (
	"testing"
	"time"

	"supertrend-core/internal/strategy"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func enterLong() strategy.Signal {
	return strategy.Signal{Kind: strategy.EnterLong, Symbol: "NIFTY", Price: 100, At: t0}
}

func TestEvaluateSignalGates(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		prepare     func(m *Manager)
		sig         strategy.Signal
		hasPosition bool
		wantAllowed bool
		wantHalt    bool
	}{
		{
			name:        "entry allowed",
			cfg:         Config{MaxTradesPerDay: 5, MaxLossPerDay: 1000},
			sig:         enterLong(),
			wantAllowed: true,
		},
		{
			name:        "position already open",
			cfg:         Config{MaxTradesPerDay: 5, MaxLossPerDay: 1000},
			sig:         enterLong(),
			hasPosition: true,
		},
		{
			name:     "trade count limit halts",
			cfg:      Config{MaxTradesPerDay: 1, MaxLossPerDay: 1000},
			prepare:  func(m *Manager) { m.RegisterEntry() },
			sig:      enterLong(),
			wantHalt: true,
		},
		{
			name:     "daily loss halt",
			cfg:      Config{MaxTradesPerDay: 5, MaxLossPerDay: 1000},
			prepare:  func(m *Manager) { m.UpdateMetrics(TradeResult{PnL: -1000, At: t0}) },
			sig:      enterLong(),
			wantHalt: true,
		},
		{
			name:        "exit passes during halt",
			cfg:         Config{MaxTradesPerDay: 1, MaxLossPerDay: 1000},
			prepare:     func(m *Manager) { m.RegisterEntry(); m.UpdateMetrics(TradeResult{PnL: -5000, At: t0}) },
			sig:         strategy.Signal{Kind: strategy.Exit, Symbol: "NIFTY"},
			hasPosition: true,
			wantAllowed: true,
		},
		{
			name: "consecutive losses",
			cfg:  Config{MaxTradesPerDay: 5, MaxLossPerDay: 100000, MaxConsecutiveLosses: 2},
			prepare: func(m *Manager) {
				m.UpdateMetrics(TradeResult{PnL: -10, At: t0.Add(-time.Hour)})
				m.UpdateMetrics(TradeResult{PnL: -10, At: t0.Add(-time.Hour)})
			},
			sig: enterLong(),
		},
		{
			name: "win resets consecutive losses",
			cfg:  Config{MaxTradesPerDay: 5, MaxLossPerDay: 100000, MaxConsecutiveLosses: 2},
			prepare: func(m *Manager) {
				m.UpdateMetrics(TradeResult{PnL: -10, At: t0.Add(-time.Hour)})
				m.UpdateMetrics(TradeResult{PnL: 5, At: t0.Add(-time.Hour)})
				m.UpdateMetrics(TradeResult{PnL: -10, At: t0.Add(-time.Hour)})
			},
			sig:         enterLong(),
			wantAllowed: true,
		},
		{
			name:    "cooldown active",
			cfg:     Config{MaxTradesPerDay: 5, MaxLossPerDay: 100000, LossCooldown: 15 * time.Minute},
			prepare: func(m *Manager) { m.UpdateMetrics(TradeResult{PnL: -10, At: t0.Add(-5 * time.Minute)}) },
			sig:     enterLong(),
		},
		{
			name:        "cooldown elapsed",
			cfg:         Config{MaxTradesPerDay: 5, MaxLossPerDay: 100000, LossCooldown: 15 * time.Minute},
			prepare:     func(m *Manager) { m.UpdateMetrics(TradeResult{PnL: -10, At: t0.Add(-16 * time.Minute)}) },
			sig:         enterLong(),
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.cfg)
			m.ResetDaily("2026-03-02")
			if tt.prepare != nil {
				tt.prepare(m)
			}
			d := m.EvaluateSignal(tt.sig, tt.hasPosition, t0)
			if d.Allowed != tt.wantAllowed {
				t.Fatalf("Allowed=%v, expected %v (reason %q)", d.Allowed, tt.wantAllowed, d.Reason)
			}
			if d.Halt != tt.wantHalt {
				t.Fatalf("Halt=%v, expected %v", d.Halt, tt.wantHalt)
			}
			if !d.Allowed && d.Reason == "" {
				t.Fatal("rejection without reason")
			}
		})
	}
}

func TestUpdateMetricsTracksDrawdown(t *testing.T) {
	m := NewManager(Config{MaxLossPerDay: 1000})
	m.ResetDaily("2026-03-02")

	if halt := m.UpdateMetrics(TradeResult{PnL: 300, At: t0}); halt {
		t.Fatal("unexpected halt")
	}
	if halt := m.UpdateMetrics(TradeResult{PnL: -500, At: t0}); halt {
		t.Fatal("unexpected halt")
	}
	got := m.GetMetrics()
	if got.DailyPnL != -200 || got.MaxProfit != 300 || got.MaxDrawdown != 500 || got.DailyLosses != 500 {
		t.Fatalf("unexpected metrics %+v", got)
	}
	if halt := m.UpdateMetrics(TradeResult{PnL: -800, At: t0}); !halt {
		t.Fatal("expected halt at -1000")
	}
	if !m.Halted() {
		t.Fatal("manager should report halted")
	}
}

func TestResetDailyClearsHalt(t *testing.T) {
	m := NewManager(Config{MaxTradesPerDay: 1, MaxLossPerDay: 1000})
	m.ResetDaily("2026-03-02")
	m.RegisterEntry()
	m.UpdateMetrics(TradeResult{PnL: -2000, At: t0})

	if m.ResetDaily("2026-03-02") {
		t.Fatal("same day must not reset")
	}
	if !m.ResetDaily("2026-03-03") {
		t.Fatal("new day must reset")
	}
	if m.Halted() {
		t.Fatal("halt should clear on a new day")
	}
	got := m.GetMetrics()
	if got.DailyTrades != 0 || got.DailyPnL != 0 {
		t.Fatalf("daily counters not cleared: %+v", got)
	}
	if got.TotalRealizedPnL != -2000 {
		t.Fatalf("cumulative pnl should survive reset, got %v", got.TotalRealizedPnL)
	}
	if d := m.EvaluateSignal(enterLong(), false, t0.Add(24*time.Hour)); !d.Allowed {
		t.Fatalf("entry rejected after reset: %s", d.Reason)
	}
}

func TestTradeCountLimitHalts(t *testing.T) {
	m := NewManager(Config{MaxTradesPerDay: 2, MaxLossPerDay: 1000})
	m.ResetDaily("2026-03-02")

	if m.RegisterEntry() {
		t.Fatal("first of two entries must not halt")
	}
	if halt := m.UpdateMetrics(TradeResult{PnL: 50, At: t0}); halt {
		t.Fatal("winning exit below the limits must not halt")
	}
	if !m.RegisterEntry() {
		t.Fatal("second entry should exhaust the trade limit")
	}
	if got := m.HaltReason(); got != "max trades per day reached: 2/2" {
		t.Fatalf("unexpected halt reason %q", got)
	}

	// raising the limit lifts the halt without a reset
	m.UpdateConfig(Config{MaxTradesPerDay: 3, MaxLossPerDay: 1000})
	if m.Halted() {
		t.Fatal("halt should follow the current limits")
	}
}

func TestSeedRestoresTradeLimitHalt(t *testing.T) {
	m := NewManager(Config{MaxTradesPerDay: 3, MaxLossPerDay: 1000})
	m.Seed("2026-03-02", 3, 200)
	if !m.Halted() {
		t.Fatal("seeded trade count at the limit should halt")
	}
	d := m.EvaluateSignal(enterLong(), false, t0)
	if d.Allowed || !d.Halt || d.LimitLevel != LimitHalt {
		t.Fatalf("expected halting rejection, got %+v", d)
	}
}

func TestSeedRestoresHalt(t *testing.T) {
	m := NewManager(Config{MaxTradesPerDay: 10, MaxLossPerDay: 1000})
	m.Seed("2026-03-02", 3, -1500)
	if !m.Halted() {
		t.Fatal("seeded loss beyond limit should halt")
	}
	if m.GetMetrics().DailyTrades != 3 {
		t.Fatal("trade count not seeded")
	}
}
