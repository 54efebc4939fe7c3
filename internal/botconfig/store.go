package botconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"supertrend-core/internal/logger"
)

const (
	keyClientID       = "DHAN_CLIENT_ID"
	keyAccessToken    = "DHAN_ACCESS_TOKEN"
	keyTradingMode    = "TRADING_MODE"
	keyIndexName      = "INDEX_NAME"
	keyLotSize        = "LOT_SIZE"
	keyStopLoss       = "STOP_LOSS_PERCENT"
	keyTrailingStop   = "TRAILING_STOP_PERCENT"
	keyMaxTrades      = "MAX_TRADES_PER_DAY"
	keyMaxLoss        = "MAX_LOSS_PER_DAY"
	keyPeriod         = "SUPERTREND_PERIOD"
	keyMultiplier     = "SUPERTREND_MULTIPLIER"
	keyTimeframe      = "CANDLE_TIMEFRAME"
	keyPolling        = "POLLING_INTERVAL"
	keyStrikeInterval = "STRIKE_INTERVAL"
)

// SaveResult tells the caller whether the saved config applies now or on the next start.
type SaveResult struct {
	Deferred bool
}

// Store persists Config as a dotenv file.
type Store struct {
	path    string
	mu      sync.Mutex
	running func() bool
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// SetRunningCheck lets Save report deferral while the engine is running.
func (s *Store) SetRunningCheck(fn func() bool) {
	s.mu.Lock()
	s.running = fn
	s.mu.Unlock()
}

// Load reads the file; a missing file yields Default.
func (s *Store) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Config, error) {
	env, err := godotenv.Read(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read bot config: %w", err)
	}
	return fromEnv(env)
}

// Save validates and writes the candidate. A token equal to the masked form of the stored
// token keeps the stored one, so a config read from the API can be posted back unchanged.
func (s *Store) Save(candidate Config) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, err := s.load(); err == nil && current.DhanAccessToken != "" &&
		candidate.DhanAccessToken == maskToken(current.DhanAccessToken) {
		candidate.DhanAccessToken = current.DhanAccessToken
	}
	if err := candidate.Validate(); err != nil {
		return SaveResult{}, err
	}

	content, err := godotenv.Marshal(toEnv(candidate))
	if err != nil {
		return SaveResult{}, fmt.Errorf("encode bot config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("create config directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content+"\n"), 0o600); err != nil {
		return SaveResult{}, fmt.Errorf("write bot config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return SaveResult{}, fmt.Errorf("replace bot config: %w", err)
	}

	res := SaveResult{Deferred: s.running != nil && s.running()}
	if res.Deferred {
		logger.Warnf("config saved while engine is running; changes take effect on next start")
	} else {
		logger.Infof("config saved to %s", s.path)
	}
	return res, nil
}

// Watch logs out-of-band edits to the file until ctx is done. The directory is watched so
// that atomic replacements are observed.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target || !evt.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if _, err := s.Load(); err != nil {
				logger.Warnf("config file changed but is unreadable: %v", err)
				continue
			}
			if s.running != nil && s.running() {
				logger.Infof("config file changed on disk; changes take effect on next start")
			}
			if onChange != nil {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}

func fromEnv(env map[string]string) (Config, error) {
	cfg := Default()
	str := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	integer := func(key, field string, dst *int) error {
		v, ok := env[key]
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			// Values written as floats by older tools ("10.0") are still whole numbers.
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil || f != float64(int(f)) {
				return invalid(field, "must be an integer, got %q", v)
			}
			n = int(f)
		}
		*dst = n
		return nil
	}
	float := func(key, field string, dst *float64) error {
		v, ok := env[key]
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return invalid(field, "must be a number, got %q", v)
		}
		*dst = f
		return nil
	}

	str(keyClientID, &cfg.DhanClientID)
	str(keyAccessToken, &cfg.DhanAccessToken)
	str(keyIndexName, &cfg.IndexName)
	if v, ok := env[keyTradingMode]; ok && v != "" {
		cfg.TradingMode = TradingMode(v)
	}

	parsers := []error{
		integer(keyLotSize, "lot_size", &cfg.LotSize),
		float(keyStopLoss, "stop_loss_percent", &cfg.StopLossPercent),
		float(keyTrailingStop, "trailing_stop_percent", &cfg.TrailingStopPercent),
		integer(keyMaxTrades, "max_trades_per_day", &cfg.MaxTradesPerDay),
		float(keyMaxLoss, "max_loss_per_day", &cfg.MaxLossPerDay),
		integer(keyPeriod, "supertrend_period", &cfg.SupertrendPeriod),
		float(keyMultiplier, "supertrend_multiplier", &cfg.SupertrendMultiplier),
		integer(keyTimeframe, "candle_timeframe", &cfg.CandleTimeframe),
		integer(keyPolling, "polling_interval", &cfg.PollingInterval),
		integer(keyStrikeInterval, "strike_interval", &cfg.StrikeInterval),
	}
	for _, err := range parsers {
		if err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func toEnv(c Config) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		keyClientID:       c.DhanClientID,
		keyAccessToken:    c.DhanAccessToken,
		keyTradingMode:    string(c.TradingMode),
		keyIndexName:      c.IndexName,
		keyLotSize:        strconv.Itoa(c.LotSize),
		keyStopLoss:       f(c.StopLossPercent),
		keyTrailingStop:   f(c.TrailingStopPercent),
		keyMaxTrades:      strconv.Itoa(c.MaxTradesPerDay),
		keyMaxLoss:        f(c.MaxLossPerDay),
		keyPeriod:         strconv.Itoa(c.SupertrendPeriod),
		keyMultiplier:     f(c.SupertrendMultiplier),
		keyTimeframe:      strconv.Itoa(c.CandleTimeframe),
		keyPolling:        strconv.Itoa(c.PollingInterval),
		keyStrikeInterval: strconv.Itoa(c.StrikeInterval),
	}
}
