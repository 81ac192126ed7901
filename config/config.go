// Package config loads bot settings from a YAML file with environment
// variable overrides. Credentials come from the environment only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Alpaca endpoint URLs.
const (
	PaperTradingURL = "https://paper-api.alpaca.markets"
	LiveTradingURL  = "https://api.alpaca.markets"
)

// Config holds all bot settings.
type Config struct {
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`

	// CycleInterval is the wall-clock period of the trading loop.
	CycleInterval time.Duration `yaml:"cycle_interval"`

	// BarLimit is how many bars each cycle fetches.
	BarLimit int `yaml:"bar_limit"`

	InitialCapital   float64 `yaml:"initial_capital"`
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"`
	MaxPositionSize  float64 `yaml:"max_position_size"`
	MaxPortfolioRisk float64 `yaml:"max_portfolio_risk"`

	// Live routes orders to the live endpoint instead of paper.
	Live bool `yaml:"live"`

	// UseMockBroker runs against the in-memory simulated broker.
	UseMockBroker bool `yaml:"use_mock_broker"`

	// CloseOnShutdown liquidates all positions on graceful shutdown.
	CloseOnShutdown bool `yaml:"close_on_shutdown"`

	ModelPath string `yaml:"model_path"`
	HTTPPort  int    `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Symbol:           "SPY",
		Timeframe:        "1Day",
		CycleInterval:    time.Minute,
		BarLimit:         200,
		InitialCapital:   100000,
		MaxRiskPerTrade:  0.02,
		MaxPositionSize:  0.10,
		MaxPortfolioRisk: 0.25,
		UseMockBroker:    true,
		ModelPath:        "models/regime.json",
		HTTPPort:         8080,
		LogLevel:         "info",
	}
}

// Load reads the YAML file at path (skipped if path is empty or missing),
// then applies environment overrides, then validates. A .env file in the
// working directory is loaded first if present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.APIKey = os.Getenv("ALPACA_API_KEY")
	cfg.APISecret = os.Getenv("ALPACA_API_SECRET")

	if v := os.Getenv("TRADER_SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("TRADER_TIMEFRAME"); v != "" {
		cfg.Timeframe = v
	}
	if v := os.Getenv("TRADER_CYCLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CycleInterval = d
		}
	}
	if v := os.Getenv("TRADER_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("TRADER_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = p
		}
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRADER_LIVE"); v != "" {
		cfg.Live = v == "true" || v == "1"
	}
	if v := os.Getenv("TRADER_USE_MOCK_BROKER"); v != "" {
		cfg.UseMockBroker = v == "true" || v == "1"
	}
}

// Validate checks internal consistency. Credentials are required unless
// the mock broker is in use.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol must be set")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %s", c.CycleInterval)
	}
	if c.BarLimit <= 0 {
		return fmt.Errorf("bar limit must be positive, got %d", c.BarLimit)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %.2f", c.InitialCapital)
	}
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("max risk per trade must be in (0, 1), got %.4f", c.MaxRiskPerTrade)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("max position size must be in (0, 1], got %.4f", c.MaxPositionSize)
	}
	if c.Live && c.UseMockBroker {
		return fmt.Errorf("live mode and mock broker are mutually exclusive")
	}
	if !c.UseMockBroker && (c.APIKey == "" || c.APISecret == "") {
		return fmt.Errorf("ALPACA_API_KEY and ALPACA_API_SECRET must be set unless using the mock broker")
	}
	return nil
}

// BrokerURL returns the trading endpoint for the configured mode.
func (c Config) BrokerURL() string {
	if c.Live {
		return LiveTradingURL
	}
	return PaperTradingURL
}
