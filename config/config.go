package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ServerConfig controls the status API server.
type ServerConfig struct {
	Port              int `yaml:"port"`
	ReadTimeoutMS     int `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int `yaml:"write_timeout_ms"`
	ShutdownTimeoutMS int `yaml:"shutdown_timeout_ms"`
}

// CopyConfig controls which wallet to follow and at what cadence.
type CopyConfig struct {
	TargetWallet    string `yaml:"target_wallet"`
	PollIntervalMS  int    `yaml:"poll_interval_ms"`
	TradeBatchLimit int    `yaml:"trade_batch_limit"`
	SnapshotTTLSecs int    `yaml:"snapshot_ttl_seconds"`
}

// TradingConfig bounds order sizing.
type TradingConfig struct {
	CopyPct  float64 `yaml:"copy_pct"`
	MinTrade float64 `yaml:"min_trade"`
	MaxTrade float64 `yaml:"max_trade"`
}

// ChainConfig holds Polygon RPC settings for balance queries.
type ChainConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
}

// StorageConfig selects the journal backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	DBPath      string `yaml:"db_path"`
	PostgresURL string `yaml:"postgres_url"`
}

// RedisConfig holds the optional metrics cache address. Empty addr
// disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelegramConfig holds notification settings. Empty token disables
// notifications.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// WebSocketConfig toggles the live trade feed alongside polling.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config aggregates all app configuration knobs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Copy      CopyConfig      `yaml:"copy"`
	Trading   TradingConfig   `yaml:"trading"`
	Chain     ChainConfig     `yaml:"chain"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// Load reads configuration from disk, falling back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = filepath.Join("config", "default.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: unable to read %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeoutMS:     10000,
			WriteTimeoutMS:    10000,
			ShutdownTimeoutMS: 5000,
		},
		Copy: CopyConfig{
			PollIntervalMS:  3000,
			TradeBatchLimit: 10,
			SnapshotTTLSecs: 30,
		},
		Trading: TradingConfig{
			CopyPct:  5,
			MinTrade: 1,
			MaxTrade: 100,
		},
		Chain: ChainConfig{
			RPCEndpoint: "https://polygon-rpc.com",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DBPath: "data/copybot.db",
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = def.Server.ReadTimeoutMS
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = def.Server.WriteTimeoutMS
	}
	if c.Server.ShutdownTimeoutMS == 0 {
		c.Server.ShutdownTimeoutMS = def.Server.ShutdownTimeoutMS
	}

	if c.Copy.PollIntervalMS == 0 {
		c.Copy.PollIntervalMS = def.Copy.PollIntervalMS
	}
	if c.Copy.TradeBatchLimit == 0 {
		c.Copy.TradeBatchLimit = def.Copy.TradeBatchLimit
	}
	if c.Copy.SnapshotTTLSecs == 0 {
		c.Copy.SnapshotTTLSecs = def.Copy.SnapshotTTLSecs
	}

	if c.Trading.CopyPct == 0 {
		c.Trading.CopyPct = def.Trading.CopyPct
	}
	if c.Trading.MinTrade == 0 {
		c.Trading.MinTrade = def.Trading.MinTrade
	}
	if c.Trading.MaxTrade == 0 {
		c.Trading.MaxTrade = def.Trading.MaxTrade
	}

	if c.Chain.RPCEndpoint == "" {
		c.Chain.RPCEndpoint = def.Chain.RPCEndpoint
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = def.Storage.DBPath
	}
}

// Validate rejects configurations the bot cannot safely run with.
func (c *Config) Validate() error {
	if !ethAddressRegex.MatchString(c.Copy.TargetWallet) {
		return fmt.Errorf("config: target_wallet %q is not a valid address", c.Copy.TargetWallet)
	}
	if c.Trading.CopyPct <= 0 || c.Trading.CopyPct > 100 {
		return fmt.Errorf("config: copy_pct must be in (0, 100], got %.2f", c.Trading.CopyPct)
	}
	if c.Trading.MinTrade <= 0 {
		return fmt.Errorf("config: min_trade must be positive, got %.2f", c.Trading.MinTrade)
	}
	if c.Trading.MinTrade > c.Trading.MaxTrade {
		return fmt.Errorf("config: min_trade %.2f exceeds max_trade %.2f", c.Trading.MinTrade, c.Trading.MaxTrade)
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("config: postgres driver requires postgres_url")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Copy.PollIntervalMS) * time.Millisecond
}

// SnapshotTTL returns the balance/position freshness window as a duration.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Copy.SnapshotTTLSecs) * time.Second
}
