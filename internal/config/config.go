package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the vene tools.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Gather     GatherConfig     `yaml:"gather"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Indicators IndicatorsConfig `yaml:"indicators"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	BaseURL   string `yaml:"base_url"` // trading API, used for the market calendar
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls data gathering jobs.
type GatherConfig struct {
	USDaily GatherJobConfig `yaml:"us_daily"`
}

// GatherJobConfig holds parameters for a single data gathering job.
type GatherJobConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxAttempts     int      `yaml:"max_attempts"`
	Workers         int      `yaml:"workers"`
	Refresh         bool     `yaml:"refresh"` // ignore resume state and refetch from start_date
}

// BacktestConfig selects the price source and the breakout parameters.
// Parameter ranges are checked by the engine, not here.
type BacktestConfig struct {
	Symbol    string `yaml:"symbol"`
	Market    string `yaml:"market"`
	Source    string `yaml:"source"` // "csv" or "parquet"
	CSVPath   string `yaml:"csv_path"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	LookbackDays int     `yaml:"lookback_days"`
	Slippage     float64 `yaml:"slippage"`
	FeeRate      float64 `yaml:"fee_rate"`
	StopLoss     float64 `yaml:"stop_loss"`

	SaveRun   bool   `yaml:"save_run"`
	ChartPath string `yaml:"chart_path"`
	TradesCSV string `yaml:"trades_csv"`
}

// IndicatorsConfig configures the moving-average and MACD report.
type IndicatorsConfig struct {
	SMAPeriods []int      `yaml:"sma_periods"`
	EMAPeriods []int      `yaml:"ema_periods"`
	MACD       MACDConfig `yaml:"macd"`
	WindowDays int        `yaml:"window_days"`
	ChartPath  string     `yaml:"chart_path"`
}

// MACDConfig holds the MACD periods.
type MACDConfig struct {
	Fast   int `yaml:"fast"`
	Slow   int `yaml:"slow"`
	Signal int `yaml:"signal"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns the configuration used when a field is absent from the
// YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/vene.db",
		},
		Alpaca: Alpaca{
			Feed: "iex",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Gather: GatherConfig{
			USDaily: GatherJobConfig{
				StartDate:       "2015-01-01",
				RateLimitPerMin: 150,
				MaxAttempts:     3,
				Workers:         4,
			},
		},
		Backtest: BacktestConfig{
			Symbol:       "AAPL",
			Market:       "us",
			Source:       "csv",
			CSVPath:      "AAPL_company_stock.csv",
			StartDate:    "1980-01-01",
			LookbackDays: 20,
			Slippage:     0.002,
			FeeRate:      0.0005,
			StopLoss:     0.05,
		},
		Indicators: IndicatorsConfig{
			SMAPeriods: []int{5, 30},
			MACD:       MACDConfig{Fast: 12, Slow: 26, Signal: 9},
			WindowDays: 365,
		},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("BACKTEST_SYMBOL"); v != "" {
		cfg.Backtest.Symbol = strings.ToUpper(v)
	}

	if v := os.Getenv("BACKTEST_CSV"); v != "" {
		cfg.Backtest.CSVPath = v
		cfg.Backtest.Source = "csv"
	}

	// Standard Alpaca env vars take highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Range parses StartDate and EndDate. An empty date yields the zero time,
// meaning that side of the range is open.
func (b BacktestConfig) Range() (start, end time.Time, err error) {
	if start, err = parseDate(b.StartDate); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start_date: %w", err)
	}
	if end, err = parseDate(b.EndDate); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end_date: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest end %s before start %s", b.EndDate, b.StartDate)
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// Path returns the config file location, honouring VENE_CONFIG.
func Path() string {
	if p := os.Getenv("VENE_CONFIG"); p != "" {
		return p
	}
	return "config/vene.yaml"
}
