package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/paper/internal/logging"
	"github.com/rustyeddy/paper/ledger"
	"github.com/rustyeddy/paper/market"
	"github.com/shopspring/decimal"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration
type Config struct {
	Account AccountConfig   `json:"account" yaml:"account"`
	Market  MarketConfig    `json:"market" yaml:"market"`
	Orders  OrdersConfig    `json:"orders" yaml:"orders"`
	Cash    CashConfig      `json:"cash" yaml:"cash"`
	Store   StoreConfig     `json:"store" yaml:"store"`
	Journal JournalConfig   `json:"journal" yaml:"journal"`
	Server  ServerConfig    `json:"server" yaml:"server"`
	Log     logging.Options `json:"log" yaml:"log"`
}

// AccountConfig holds what a new account starts with. Money is written as a
// decimal string so it survives YAML and JSON without float rounding.
type AccountConfig struct {
	StartingCash string `json:"starting_cash" yaml:"starting_cash" validate:"nonzero"`
}

// MarketConfig drives the simulated price feed
type MarketConfig struct {
	Seed         int64  `json:"seed" yaml:"seed"`
	MaxStep      string `json:"max_step" yaml:"max_step" validate:"nonzero"`
	MinPrice     string `json:"min_price" yaml:"min_price" validate:"nonzero"`
	TickInterval string `json:"tick_interval,omitempty" yaml:"tick_interval,omitempty"` // e.g. "1s", empty disables
	SweepWorkers int    `json:"sweep_workers" yaml:"sweep_workers" validate:"min=1"`
}

// Interval converts TickInterval to a time.Duration
func (m MarketConfig) Interval() (time.Duration, error) {
	if m.TickInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(m.TickInterval)
}

type OrdersConfig struct {
	SellOverflow string `json:"sell_overflow" yaml:"sell_overflow"` // "clamp" or "reject"
}

type CashConfig struct {
	AllowOverdraft bool `json:"allow_overdraft" yaml:"allow_overdraft"`
}

type StoreConfig struct {
	Type   string `json:"type" yaml:"type" validate:"nonzero"` // "memory" or "sqlite"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// JournalConfig selects where fills and equity snapshots are copied. Type
// may name several sinks separated by commas, e.g. "csv,kafka".
type JournalConfig struct {
	Type       string      `json:"type" yaml:"type"` // "none", "csv", "sqlite" or "kafka"
	TradesFile string      `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string      `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string      `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Kafka      KafkaConfig `json:"kafka,omitempty" yaml:"kafka,omitempty"`
}

// Types returns the configured sinks in order, without "none".
func (j JournalConfig) Types() []string {
	var out []string
	for _, t := range splitList(j.Type) {
		if t != "none" {
			out = append(out, t)
		}
	}
	return out
}

type KafkaConfig struct {
	Brokers     []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	TradesTopic string   `json:"trades_topic,omitempty" yaml:"trades_topic,omitempty"`
	EquityTopic string   `json:"equity_topic,omitempty" yaml:"equity_topic,omitempty"`
}

type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr" validate:"nonzero"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load reads path (defaults when empty), overlays .env and PAPER_*
// variables, and validates the result.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(envPath); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv loads envPath (or ./.env when empty) if it exists, then overrides
// fields from PAPER_* environment variables. Real environment variables win
// over the .env file.
func (c *Config) ApplyEnv(envPath string) error {
	var err error
	if envPath != "" {
		err = godotenv.Load(envPath)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	str := map[string]*string{
		"PAPER_STARTING_CASH":   &c.Account.StartingCash,
		"PAPER_MAX_STEP":        &c.Market.MaxStep,
		"PAPER_MIN_PRICE":       &c.Market.MinPrice,
		"PAPER_TICK_INTERVAL":   &c.Market.TickInterval,
		"PAPER_SELL_OVERFLOW":   &c.Orders.SellOverflow,
		"PAPER_STORE":           &c.Store.Type,
		"PAPER_DB_PATH":         &c.Store.DBPath,
		"PAPER_JOURNAL":         &c.Journal.Type,
		"PAPER_JOURNAL_DB_PATH": &c.Journal.DBPath,
		"PAPER_TRADES_FILE":     &c.Journal.TradesFile,
		"PAPER_EQUITY_FILE":     &c.Journal.EquityFile,
		"PAPER_KAFKA_TRADES":    &c.Journal.Kafka.TradesTopic,
		"PAPER_KAFKA_EQUITY":    &c.Journal.Kafka.EquityTopic,
		"PAPER_ADDR":            &c.Server.Addr,
		"PAPER_LOG_LEVEL":       &c.Log.Level,
		"PAPER_LOG_FILE":        &c.Log.File,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv("PAPER_SEED"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("PAPER_SEED: %w", err)
		}
		c.Market.Seed = n
	}
	if v, ok := os.LookupEnv("PAPER_SWEEP_WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PAPER_SWEEP_WORKERS: %w", err)
		}
		c.Market.SweepWorkers = n
	}
	if v, ok := os.LookupEnv("PAPER_ALLOW_OVERDRAFT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PAPER_ALLOW_OVERDRAFT: %w", err)
		}
		c.Cash.AllowOverdraft = b
	}
	if v, ok := os.LookupEnv("PAPER_KAFKA_BROKERS"); ok {
		c.Journal.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("PAPER_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		return err
	}

	if _, err := market.ParseCash(c.Account.StartingCash); err != nil {
		return fmt.Errorf("account.starting_cash must be positive, got %q", c.Account.StartingCash)
	}
	step, err := decimal.NewFromString(c.Market.MaxStep)
	if err != nil || step.IsNegative() {
		return fmt.Errorf("market.max_step must be a non-negative amount, got %q", c.Market.MaxStep)
	}
	floor, err := decimal.NewFromString(c.Market.MinPrice)
	if err != nil || !floor.IsPositive() {
		return fmt.Errorf("market.min_price must be positive, got %q", c.Market.MinPrice)
	}
	if d, err := c.Market.Interval(); err != nil || d < 0 {
		return fmt.Errorf("market.tick_interval is not a valid duration: %q", c.Market.TickInterval)
	}
	if c.Orders.SellOverflow != "" && !ledger.SellOverflow(c.Orders.SellOverflow).Valid() {
		return fmt.Errorf("orders.sell_overflow must be 'clamp' or 'reject'")
	}

	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("store db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("store.type must be 'memory' or 'sqlite'")
	}

	seen := map[string]bool{}
	for _, t := range c.Journal.Types() {
		if seen[t] {
			return fmt.Errorf("journal.type lists %q twice", t)
		}
		seen[t] = true
		if err := c.Journal.validateSink(t); err != nil {
			return err
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (j JournalConfig) validateSink(t string) error {
	switch t {
	case "csv":
		if j.TradesFile == "" || j.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if j.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "kafka":
		k := j.Kafka
		if len(k.Brokers) == 0 || k.TradesTopic == "" || k.EquityTopic == "" {
			return fmt.Errorf("journal kafka brokers, trades_topic and equity_topic required for Kafka type")
		}
	default:
		return fmt.Errorf("journal.type must list 'none', 'csv', 'sqlite' or 'kafka', got %q", t)
	}
	return nil
}

// StartingCash returns the parsed account.starting_cash. Call after Validate.
func (c *Config) StartingCash() decimal.Decimal {
	d, _ := market.ParseCash(c.Account.StartingCash)
	return d
}

// FeedConfig returns the price feed settings. Call after Validate.
func (c *Config) FeedConfig() market.FeedConfig {
	fc := market.DefaultFeedConfig()
	fc.Seed = c.Market.Seed
	fc.MaxStep, _ = decimal.NewFromString(c.Market.MaxStep)
	fc.MinPrice, _ = decimal.NewFromString(c.Market.MinPrice)
	return fc
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			StartingCash: "100000.00",
		},
		Market: MarketConfig{
			MaxStep:      "0.50",
			MinPrice:     "0.01",
			TickInterval: "5s",
			SweepWorkers: 8,
		},
		Orders: OrdersConfig{
			SellOverflow: string(ledger.Clamp),
		},
		Store: StoreConfig{
			Type:   "sqlite",
			DBPath: "./paper.db",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: logging.DefaultOptions(),
	}
}
