package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Config is the full bot configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Grid     GridConfig     `yaml:"grid"`
	Engine   EngineConfig   `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ExchangeConfig selects and addresses the exchange.
type ExchangeConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	StreamURL string `yaml:"stream_url"`
	APIKey    string `yaml:"-"` // env only, never from file
	APISecret string `yaml:"-"`
}

// GridConfig holds the strategy parameters. Spacing and the
// breakthrough threshold are entered as percentages of the center price
// and of one spacing unit respectively.
type GridConfig struct {
	Ticker                string  `yaml:"ticker"`
	SpacingPct            float64 `yaml:"spacing_pct"`
	Upper                 int     `yaml:"upper"`
	Lower                 int     `yaml:"lower"`
	PerOrder              float64 `yaml:"per_order"`
	InitialBalance        float64 `yaml:"initial_balance"`
	StopPrice             float64 `yaml:"stop_price"`  // 0 = unset
	PausePrice            float64 `yaml:"pause_price"` // 0 = unset
	BreakthroughThreshold float64 `yaml:"breakthrough_threshold"`
	Dynamic               *bool   `yaml:"dynamic"` // nil = enabled
}

// EngineConfig controls the engine's timers.
type EngineConfig struct {
	PriceCheckSeconds int `yaml:"price_check_seconds"`
	StatusSeconds     int `yaml:"status_seconds"`
}

// StorageConfig controls persistence.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Environment
// values win over the YAML for the keys they cover. A missing config
// file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// PriceCheckInterval returns the mark-price polling interval.
func (c *Config) PriceCheckInterval() time.Duration {
	return time.Duration(c.Engine.PriceCheckSeconds) * time.Second
}

// StatusInterval returns the status reporting interval.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Engine.StatusSeconds) * time.Second
}

// DomainGrid converts the file/flag representation into the engine's
// grid configuration: percentages become fractions, floats become
// decimals.
func (c *Config) DomainGrid() domain.GridConfig {
	dynamic := true
	if c.Grid.Dynamic != nil {
		dynamic = *c.Grid.Dynamic
	}
	return domain.GridConfig{
		Ticker:                c.Grid.Ticker,
		Spacing:               decimal.NewFromFloat(c.Grid.SpacingPct).Div(decimal.NewFromInt(100)),
		UpperCount:            c.Grid.Upper,
		LowerCount:            c.Grid.Lower,
		PerOrderAmount:        decimal.NewFromFloat(c.Grid.PerOrder),
		InitialBalance:        decimal.NewFromFloat(c.Grid.InitialBalance),
		StopPrice:             decimal.NewFromFloat(c.Grid.StopPrice),
		PausePrice:            decimal.NewFromFloat(c.Grid.PausePrice),
		BreakthroughThreshold: decimal.NewFromFloat(c.Grid.BreakthroughThreshold),
		DynamicEnabled:        dynamic,
	}
}

// applyEnvOverrides pulls values that only live in the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("EXCHANGE_STREAM_URL"); v != "" {
		cfg.Exchange.StreamURL = v
	}
}

// setDefaults fills required values with sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Exchange.Name == "" {
		cfg.Exchange.Name = "edgex"
	}
	if cfg.Grid.Ticker == "" {
		cfg.Grid.Ticker = "ETH"
	}
	if cfg.Grid.SpacingPct <= 0 {
		cfg.Grid.SpacingPct = 1.0
	}
	if cfg.Grid.Upper <= 0 {
		cfg.Grid.Upper = 10
	}
	if cfg.Grid.Lower <= 0 {
		cfg.Grid.Lower = 10
	}
	if cfg.Grid.PerOrder <= 0 {
		cfg.Grid.PerOrder = 50
	}
	if cfg.Grid.InitialBalance <= 0 {
		cfg.Grid.InitialBalance = 1000
	}
	if cfg.Grid.BreakthroughThreshold <= 0 {
		cfg.Grid.BreakthroughThreshold = 0.5
	}
	if cfg.Engine.PriceCheckSeconds <= 0 {
		cfg.Engine.PriceCheckSeconds = 10
	}
	if cfg.Engine.StatusSeconds <= 0 {
		cfg.Engine.StatusSeconds = 60
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gridbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
