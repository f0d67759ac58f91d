package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/chidi150c/polyguard/internal/market"
	"github.com/chidi150c/polyguard/internal/risk"
)

type Config struct {
	APIAddr         string
	LogLevel        string
	LogFile         string // empty: stdout only
	DataDir         string
	PersistInterval time.Duration
	CORSOrigins     []string

	Risk   risk.Config
	Market market.Config
}

func Default() Config {
	return Config{
		APIAddr:         ":8080",
		LogLevel:        "info",
		DataDir:         "data",
		PersistInterval: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		Risk:            risk.DefaultConfig(),
		Market:          market.DefaultConfig(),
	}
}

// Paths under DataDir.
func (c Config) WindowPath() string { return filepath.Join(c.DataDir, "window.json") }
func (c Config) StorePath() string  { return filepath.Join(c.DataDir, "db") }
func (c Config) LockPath() string   { return filepath.Join(c.DataDir, "polyguard.pid") }

// LoadFromEnv loads configuration from the .env file (if it exists), an
// optional RISK_LIMITS_FILE and the environment.
// Priority: ENV > .env file > limits file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if path := os.Getenv("RISK_LIMITS_FILE"); path != "" {
		if err := loadLimitsFile(path, &cfg.Risk); err != nil {
			return cfg, err
		}
	}

	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	var errs []error
	errs = append(errs,
		envBool("RISK_ENABLED", &cfg.Risk.Enabled),
		envDecimal("MIN_ORDER_USD", &cfg.Risk.MinOrderSize),
		envDecimal("MAX_TRADE_USD", &cfg.Risk.MaxPerTrade),
		envDecimal("MAX_DAILY_USD", &cfg.Risk.MaxDailyVolume),
		envInt("MAX_DAILY_TRADES", &cfg.Risk.MaxDailyTrades),
		envDecimal("MAX_POSITION_USD", &cfg.Risk.MaxPositionPerMarket),
		envDecimal("LIQUIDITY_HIGH_SPREAD", &cfg.Market.HighSpread),
		envDecimal("LIQUIDITY_MEDIUM_SPREAD", &cfg.Market.MediumSpread),
		envInt("TREND_LOOKBACK", &cfg.Market.TrendLookback),
		envDecimal("TREND_THRESHOLD_PCT", &cfg.Market.TrendThresholdPct),
	)
	var secs int
	if err := envInt("PERSIST_INTERVAL_SEC", &secs); err != nil {
		errs = append(errs, err)
	} else if secs > 0 {
		cfg.PersistInterval = time.Duration(secs) * time.Second
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the assembled configuration.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: DATA_DIR must not be empty")
	}
	if c.PersistInterval <= 0 {
		return errors.New("config: PERSIST_INTERVAL_SEC must be positive")
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Market.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// limitsFile mirrors risk.Config in YAML. Absent keys keep their current value.
type limitsFile struct {
	Enabled        *bool    `yaml:"enabled"`
	MinOrderUSD    *float64 `yaml:"min_order_usd"`
	MaxTradeUSD    *float64 `yaml:"max_trade_usd"`
	MaxDailyUSD    *float64 `yaml:"max_daily_usd"`
	MaxDailyTrades *int     `yaml:"max_daily_trades"`
	MaxPositionUSD *float64 `yaml:"max_position_usd"`
}

func loadLimitsFile(path string, dst *risk.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read limits file: %w", err)
	}
	var lf limitsFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("config: parse limits file %s: %w", path, err)
	}
	if lf.Enabled != nil {
		dst.Enabled = *lf.Enabled
	}
	setMoney(&dst.MinOrderSize, lf.MinOrderUSD)
	setMoney(&dst.MaxPerTrade, lf.MaxTradeUSD)
	setMoney(&dst.MaxDailyVolume, lf.MaxDailyUSD)
	setMoney(&dst.MaxPositionPerMarket, lf.MaxPositionUSD)
	if lf.MaxDailyTrades != nil {
		dst.MaxDailyTrades = *lf.MaxDailyTrades
	}
	return nil
}

func setMoney(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envDecimal(key string, dst *decimal.Decimal) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
