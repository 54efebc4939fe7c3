package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds process-level settings for the engine host. Trading tunables live
// in the bot config file managed by internal/botconfig.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`

	// Storage
	DBPath     string `mapstructure:"db_path"`
	LogDir     string `mapstructure:"log_dir"`
	LogLevel   string `mapstructure:"log_level"`
	BotEnvPath string `mapstructure:"bot_env_path"`

	// Market session calendar (yaml); empty uses the built-in NSE hours.
	SessionFile    string `mapstructure:"session_file"`
	EnforceSession bool   `mapstructure:"enforce_session"`

	// Market data
	UseMockFeed     bool    `mapstructure:"use_mock_feed"`
	MockStartPrice  float64 `mapstructure:"mock_start_price"`
	MaxFeedFailures int     `mapstructure:"max_feed_failures"`

	// Broker
	BrokerBaseURL   string        `mapstructure:"broker_base_url"`
	BrokerRateLimit float64       `mapstructure:"broker_rate_limit"`
	ScripMasterPath string        `mapstructure:"scrip_master_path"` // optional; resolves option security ids
	FillTimeout     time.Duration `mapstructure:"fill_timeout"`
	FillPoll        time.Duration `mapstructure:"fill_poll"`

	// Extra risk rules; zero disables them.
	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	LossCooldown         time.Duration `mapstructure:"loss_cooldown"`

	// API
	JWTSecret string `mapstructure:"api_jwt_secret"`
}

var defaults = map[string]any{
	"http_addr":              ":8001",
	"grpc_addr":              ":50051",
	"db_path":                "./data/trading.db",
	"log_dir":                "./logs",
	"log_level":              "info",
	"bot_env_path":           "./bot.env",
	"session_file":           "",
	"enforce_session":        true,
	"use_mock_feed":          false,
	"mock_start_price":       24500.0,
	"max_feed_failures":      10,
	"broker_base_url":        "https://api.dhan.co/v2",
	"broker_rate_limit":      5.0,
	"scrip_master_path":      "",
	"fill_timeout":           "30s",
	"fill_poll":              "1s",
	"max_consecutive_losses": 2,
	"loss_cooldown":          "15m",
	"api_jwt_secret":         "",
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http_addr is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.FillTimeout <= 0 {
		return fmt.Errorf("fill_timeout must be > 0")
	}
	if c.FillPoll <= 0 || c.FillPoll > c.FillTimeout {
		return fmt.Errorf("fill_poll must be in (0, fill_timeout]")
	}
	if c.MaxFeedFailures < 1 {
		return fmt.Errorf("max_feed_failures must be >= 1")
	}
	if c.MaxConsecutiveLosses < 0 || c.LossCooldown < 0 {
		return fmt.Errorf("risk limits must not be negative")
	}
	if c.BrokerRateLimit <= 0 {
		return fmt.Errorf("broker_rate_limit must be > 0")
	}
	return nil
}
