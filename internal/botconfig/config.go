// Package botconfig is the validated, restart-gated store for the engine's trading tunables.
package botconfig

import (
	"fmt"
	"strings"
	"time"
)

// TradingMode selects the order target.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// Config is an immutable snapshot of the trading tunables.
type Config struct {
	DhanClientID         string      `json:"dhan_client_id"`
	DhanAccessToken      string      `json:"dhan_access_token"`
	TradingMode          TradingMode `json:"trading_mode"`
	IndexName            string      `json:"index_name"`
	LotSize              int         `json:"lot_size"`
	StopLossPercent      float64     `json:"stop_loss_percent"`
	TrailingStopPercent  float64     `json:"trailing_stop_percent"`
	MaxTradesPerDay      int         `json:"max_trades_per_day"`
	MaxLossPerDay        float64     `json:"max_loss_per_day"`
	SupertrendPeriod     int         `json:"supertrend_period"`
	SupertrendMultiplier float64     `json:"supertrend_multiplier"`
	CandleTimeframe      int         `json:"candle_timeframe"`
	PollingInterval      int         `json:"polling_interval"`
	StrikeInterval       int         `json:"strike_interval"`
}

// Default mirrors the values a freshly installed bot starts with.
func Default() Config {
	return Config{
		TradingMode:          ModePaper,
		IndexName:            "NIFTY",
		LotSize:              10,
		StopLossPercent:      30,
		TrailingStopPercent:  10,
		MaxTradesPerDay:      20,
		MaxLossPerDay:        20000,
		SupertrendPeriod:     7,
		SupertrendMultiplier: 4,
		CandleTimeframe:      1,
		PollingInterval:      1,
		StrikeInterval:       50,
	}
}

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func intIn(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid(field, "must be in [%d,%d], got %d", lo, hi, v)
	}
	return nil
}

func floatIn(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return invalid(field, "must be in [%g,%g], got %g", lo, hi, v)
	}
	return nil
}

// Validate enforces every bound the control surface exposes.
func (c Config) Validate() error {
	switch c.TradingMode {
	case ModePaper:
	case ModeLive:
		if strings.TrimSpace(c.DhanClientID) == "" {
			return invalid("dhan_client_id", "is required in live mode")
		}
		if strings.TrimSpace(c.DhanAccessToken) == "" {
			return invalid("dhan_access_token", "is required in live mode")
		}
	default:
		return invalid("trading_mode", "must be paper or live, got %q", c.TradingMode)
	}
	if strings.TrimSpace(c.IndexName) == "" {
		return invalid("index_name", "is required")
	}
	checks := []error{
		intIn("lot_size", c.LotSize, 1, 100),
		floatIn("stop_loss_percent", c.StopLossPercent, 5, 50),
		floatIn("trailing_stop_percent", c.TrailingStopPercent, 3, 30),
		intIn("max_trades_per_day", c.MaxTradesPerDay, 1, 100),
		intIn("supertrend_period", c.SupertrendPeriod, 3, 30),
		floatIn("supertrend_multiplier", c.SupertrendMultiplier, 1, 10),
		intIn("polling_interval", c.PollingInterval, 1, 60),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.MaxLossPerDay < 1000 {
		return invalid("max_loss_per_day", "must be >= 1000, got %g", c.MaxLossPerDay)
	}
	switch c.CandleTimeframe {
	case 1, 3, 5, 15:
	default:
		return invalid("candle_timeframe", "must be one of 1, 3, 5, 15, got %d", c.CandleTimeframe)
	}
	if c.StrikeInterval <= 0 {
		return invalid("strike_interval", "must be > 0, got %d", c.StrikeInterval)
	}
	return nil
}

// Masked returns a copy safe to show to API clients.
func (c Config) Masked() Config {
	c.DhanAccessToken = maskToken(c.DhanAccessToken)
	return c
}

func maskToken(tok string) string {
	if len(tok) <= 15 {
		if tok == "" {
			return ""
		}
		return strings.Repeat("*", len(tok))
	}
	return tok[:10] + "..." + tok[len(tok)-5:]
}

func (c Config) PollEvery() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

func (c Config) Timeframe() time.Duration {
	return time.Duration(c.CandleTimeframe) * time.Minute
}
