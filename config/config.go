// Package config loads the papertrader configuration file and overlays
// secrets from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/papertrader/dashboard"
	"github.com/rustyeddy/papertrader/exchange"
	"github.com/rustyeddy/papertrader/internal/logx"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/notify"
	"github.com/rustyeddy/papertrader/oracle"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/scheduler"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/snapshot"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Schedule   scheduler.Config `json:"schedule" yaml:"schedule"`
	Risk       risk.Config      `json:"risk" yaml:"risk"`
	Indicators snapshot.Config  `json:"indicators" yaml:"indicators"`
	Exchange   exchange.Config  `json:"exchange" yaml:"exchange"`
	Oracle     oracle.Config    `json:"oracle" yaml:"oracle"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Notify     notify.Config    `json:"notify" yaml:"notify"`
	Dashboard  dashboard.Config `json:"dashboard" yaml:"dashboard"`
	Metrics    metrics.Config   `json:"metrics" yaml:"metrics"`
	Log        logx.Options     `json:"log" yaml:"log"`
}

type AccountConfig struct {
	InitialBalance decimal.Decimal `json:"initial_balance" yaml:"initial_balance"`
	// FeeRate applies to each leg's notional.
	FeeRate float64 `json:"fee_rate" yaml:"fee_rate"`
}

// Store types.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StorePG     = "postgres"
)

// StoreConfig selects where the current portfolio state lives. "sqlite" and
// "postgres" share the journal's database.
type StoreConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Tolerance is the balance gap allowed between the saved state and the
	// ledger replay before the ledger wins.
	Tolerance decimal.Decimal `json:"tolerance" yaml:"tolerance"`
}

// JournalConfig picks the primary journal and its optional mirrors. DSNs
// normally come from the environment.
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "sqlite" or "postgres"
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	CSVDir        string `json:"csv_dir,omitempty" yaml:"csv_dir,omitempty"`
	PostgresDSN   string `json:"-" yaml:"-"`
	ClickHouseDSN string `json:"-" yaml:"-"`
}

// Engine is the execution engine's view of the config.
func (c *Config) Engine() sim.Config {
	return sim.Config{
		InitialBalance: c.Account.InitialBalance,
		FeeRate:        c.Account.FeeRate,
		Risk:           c.Risk,
	}
}

// LoadFromFile reads YAML, falling back to JSON, overlays the environment
// and validates the result. Sections missing from the file keep their
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv loads .env if present and overlays secrets and a few overrides.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	switch c.Oracle.Provider {
	case oracle.ProviderOpenAI:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.Oracle.APIKey = v
		}
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
			c.Oracle.BaseURL = v
		}
	case oracle.ProviderDeepSeek:
		if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
			c.Oracle.APIKey = v
		}
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}

	if v := os.Getenv("DINGTALK_WEBHOOK"); v != "" {
		c.Notify.DingTalkWebhook = v
	}
	if v := os.Getenv("DINGTALK_SECRET"); v != "" {
		c.Notify.DingTalkSecret = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK"); v != "" {
		c.Notify.DiscordWebhook = v
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Journal.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Journal.ClickHouseDSN = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
// Secrets are never written.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if !c.Account.InitialBalance.IsPositive() {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if c.Account.FeeRate < 0 || c.Account.FeeRate >= 0.1 {
		return fmt.Errorf("account.fee_rate must be in [0, 0.1)")
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Indicators.Validate(); err != nil {
		return err
	}
	if err := c.Oracle.Validate(); err != nil {
		return err
	}
	if c.Exchange.BaseURL == "" || c.Exchange.Quote == "" {
		return fmt.Errorf("exchange.base_url and exchange.quote are required")
	}

	switch c.Journal.Type {
	case StoreSQLite:
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite journal")
		}
	case StorePG:
		if c.Journal.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN required for postgres journal")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite' or 'postgres'")
	}

	switch c.Store.Type {
	case StoreFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for file store")
		}
	case StoreSQLite, StorePG:
		if c.Store.Type != c.Journal.Type {
			return fmt.Errorf("store.type %s needs journal.type %s", c.Store.Type, c.Store.Type)
		}
	default:
		return fmt.Errorf("store.type must be 'file', 'sqlite' or 'postgres'")
	}
	if c.Store.Tolerance.IsNegative() {
		return fmt.Errorf("store.tolerance must not be negative")
	}

	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr required when the dashboard is enabled")
	}
	if c.Metrics.RiskFreeRate < 0 || c.Metrics.RiskFreeRate > 1 {
		return fmt.Errorf("metrics.risk_free_rate must be in [0, 1]")
	}
	return nil
}

func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialBalance: decimal.NewFromInt(10000),
			FeeRate:        0.0005,
		},
		Schedule:   scheduler.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Indicators: snapshot.DefaultConfig(),
		Exchange:   exchange.DefaultConfig(),
		Oracle:     oracle.DefaultConfig(),
		Store: StoreConfig{
			Type:      StoreFile,
			Path:      "./data/portfolio.json",
			Tolerance: decimal.RequireFromString("0.01"),
		},
		Journal: JournalConfig{
			Type:   StoreSQLite,
			DBPath: "./data/papertrader.db",
		},
		Notify:    notify.DefaultConfig(),
		Dashboard: dashboard.DefaultConfig(),
		Metrics:   metrics.DefaultConfig(),
		Log:       logx.Options{Level: "info", Format: "json"},
	}
}
