package risk

import "time"

// Limit levels reported on decisions.
const (
	LimitNormal = "NORMAL"
	LimitHalt   = "HALT"
)

// Config holds the daily gates and the stop distances, all in the units the bot
// config uses (percent, rupees).
type Config struct {
	MaxTradesPerDay      int           `json:"max_trades_per_day"`
	MaxLossPerDay        float64       `json:"max_loss_per_day"`
	StopLossPercent      float64       `json:"stop_loss_percent"`
	TrailingStopPercent  float64       `json:"trailing_stop_percent"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"` // 0 disables
	LossCooldown         time.Duration `json:"loss_cooldown"`          // 0 disables
}

// RiskMetrics tracks current risk status
type RiskMetrics struct {
	Day string `json:"day"`

	// Daily Statistics
	DailyPnL          float64   `json:"daily_pnl"`
	DailyTrades       int       `json:"daily_trades"`
	DailyLosses       float64   `json:"daily_losses"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastLossAt        time.Time `json:"last_loss_at,omitempty"`

	// Cumulative
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxProfit        float64 `json:"max_profit"`

	ChecksTotal     uint64 `json:"checks_total"`
	RejectionsTotal uint64 `json:"rejections_total"`
}

// RiskDecision represents the result of risk evaluation. Halt is set when the
// rejection is a daily limit: loss or trade count.
type RiskDecision struct {
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
	LimitLevel string `json:"limit_level"`
	Halt       bool   `json:"halt"`
}

// TradeResult represents a closed trade fed back into the daily metrics.
type TradeResult struct {
	Symbol string
	PnL    float64
	At     time.Time
}
