package botconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults ok", func(*Config) {}, ""},
		{"lot size low", func(c *Config) { c.LotSize = 0 }, "lot_size"},
		{"lot size high", func(c *Config) { c.LotSize = 101 }, "lot_size"},
		{"stop loss low", func(c *Config) { c.StopLossPercent = 4.9 }, "stop_loss_percent"},
		{"stop loss high", func(c *Config) { c.StopLossPercent = 51 }, "stop_loss_percent"},
		{"stop loss edge", func(c *Config) { c.StopLossPercent = 50 }, ""},
		{"trailing low", func(c *Config) { c.TrailingStopPercent = 2 }, "trailing_stop_percent"},
		{"trailing high", func(c *Config) { c.TrailingStopPercent = 31 }, "trailing_stop_percent"},
		{"trades zero", func(c *Config) { c.MaxTradesPerDay = 0 }, "max_trades_per_day"},
		{"trades high", func(c *Config) { c.MaxTradesPerDay = 101 }, "max_trades_per_day"},
		{"loss too small", func(c *Config) { c.MaxLossPerDay = 999 }, "max_loss_per_day"},
		{"loss edge", func(c *Config) { c.MaxLossPerDay = 1000 }, ""},
		{"period low", func(c *Config) { c.SupertrendPeriod = 2 }, "supertrend_period"},
		{"period high", func(c *Config) { c.SupertrendPeriod = 31 }, "supertrend_period"},
		{"multiplier low", func(c *Config) { c.SupertrendMultiplier = 0.5 }, "supertrend_multiplier"},
		{"multiplier high", func(c *Config) { c.SupertrendMultiplier = 10.5 }, "supertrend_multiplier"},
		{"timeframe not allowed", func(c *Config) { c.CandleTimeframe = 2 }, "candle_timeframe"},
		{"timeframe 15", func(c *Config) { c.CandleTimeframe = 15 }, ""},
		{"poll zero", func(c *Config) { c.PollingInterval = 0 }, "polling_interval"},
		{"poll high", func(c *Config) { c.PollingInterval = 61 }, "polling_interval"},
		{"strike interval", func(c *Config) { c.StrikeInterval = 0 }, "strike_interval"},
		{"bad mode", func(c *Config) { c.TradingMode = "demo" }, "trading_mode"},
		{"live needs client", func(c *Config) { c.TradingMode = ModeLive; c.DhanAccessToken = "tok" }, "dhan_client_id"},
		{"live needs token", func(c *Config) { c.TradingMode = ModeLive; c.DhanClientID = "id" }, "dhan_access_token"},
		{"live with creds", func(c *Config) {
			c.TradingMode = ModeLive
			c.DhanClientID = "id"
			c.DhanAccessToken = "tok"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestMaskedToken(t *testing.T) {
	cfg := Default()
	cfg.DhanAccessToken = "eyJhbGciOiJIUzUxMiJ9.payload.signature12345"
	masked := cfg.Masked()
	assert.Equal(t, "eyJhbGciOi...12345", masked.DhanAccessToken)
	assert.Equal(t, "eyJhbGciOiJIUzUxMiJ9.payload.signature12345", cfg.DhanAccessToken, "original must not change")
	assert.Equal(t, "****", Config{DhanAccessToken: "abcd"}.Masked().DhanAccessToken)
}

func TestStoreMissingFileYieldsDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bot.env"))
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.env")
	store := NewStore(path)

	cfg := Default()
	cfg.TradingMode = ModeLive
	cfg.DhanClientID = "1100012345"
	cfg.DhanAccessToken = "token-abcdefghijklmnopqrstuvwxyz"
	cfg.IndexName = "BANKNIFTY"
	cfg.StopLossPercent = 12.5
	cfg.SupertrendMultiplier = 3
	cfg.StrikeInterval = 100

	res, err := store.Save(cfg)
	require.NoError(t, err)
	assert.False(t, res.Deferred)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "INDEX_NAME=")
	assert.Contains(t, string(raw), "STOP_LOSS_PERCENT=")

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestStoreSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.env")
	store := NewStore(path)
	cfg := Default()
	cfg.StopLossPercent = 70

	_, err := store.Save(cfg)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "invalid config must not be written")
}

func TestStoreKeepsTokenWhenMaskedValuePosted(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bot.env"))
	cfg := Default()
	cfg.DhanClientID = "client"
	cfg.DhanAccessToken = "secret-token-0123456789abcdef"
	_, err := store.Save(cfg)
	require.NoError(t, err)

	posted := cfg.Masked()
	posted.LotSize = 25
	_, err = store.Save(posted)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-token-0123456789abcdef", loaded.DhanAccessToken)
	assert.Equal(t, 25, loaded.LotSize)
}

func TestStoreSaveWhileRunningIsDeferred(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bot.env"))
	store.SetRunningCheck(func() bool { return true })
	res, err := store.Save(Default())
	require.NoError(t, err)
	assert.True(t, res.Deferred)
}

func TestStoreLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.env")
	require.NoError(t, os.WriteFile(path, []byte("LOT_SIZE=ten\n"), 0o600))
	_, err := NewStore(path).Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "lot_size"))
}
