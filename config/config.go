package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. SPLITTER_PORT.
const EnvPrefix = "SPLITTER_"

// Configuration validation errors
var (
	ErrInvalidOwner          = errors.New("invalid owner address")
	ErrInvalidPort           = errors.New("invalid port number")
	ErrInvalidDelay          = errors.New("invalid network delay range")
	ErrInvalidGenesisBalance = errors.New("invalid genesis balance")
)

// Config holds all configurable parameters for the application
type Config struct {
	Owner          string        `json:"owner" yaml:"owner" env:"OWNER"`
	StartPaused    bool          `json:"start_paused" yaml:"start_paused" env:"START_PAUSED"`
	Port           int           `json:"port" yaml:"port" env:"PORT"`
	StorageDir     string        `json:"storage_dir" yaml:"storage_dir" env:"STORAGE_DIR"`
	ChainID        uint64        `json:"chain_id" yaml:"chain_id" env:"CHAIN_ID"`
	TestAccountNum int           `json:"test_account_num" yaml:"test_account_num" env:"TEST_ACCOUNT_NUM"`
	GenesisBalance string        `json:"genesis_balance" yaml:"genesis_balance" env:"GENESIS_BALANCE"` // wei
	Events         EventsConfig  `json:"events" yaml:"events" envPrefix:"EVENTS_"`
	Network        NetworkConfig `json:"network" yaml:"network" envPrefix:"NETWORK_"`
}

// EventsConfig selects where splitter events are published
type EventsConfig struct {
	WebhookURL   string   `json:"webhook_url" yaml:"webhook_url" env:"WEBHOOK_URL"`
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers" env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic" env:"KAFKA_TOPIC"`
	Buffer       int      `json:"buffer" yaml:"buffer" env:"BUFFER"`
}

// NetworkConfig holds network-level configuration for outbound HTTP clients
type NetworkConfig struct {
	DelayEnabled bool `json:"delay_enabled" yaml:"delay_enabled" env:"DELAY_ENABLED"`
	MinDelayMs   int  `json:"min_delay_ms" yaml:"min_delay_ms" env:"MIN_DELAY_MS"`
	MaxDelayMs   int  `json:"max_delay_ms" yaml:"max_delay_ms" env:"MAX_DELAY_MS"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Port:           8545,
		ChainID:        1337,
		TestAccountNum: 4,
		GenesisBalance: "1000000000000000000000",
		Events: EventsConfig{
			KafkaTopic: "splitter-events",
			Buffer:     256,
		},
	}
}

// Load reads and parses a JSON or YAML config file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return cfg, nil
}

// ApplyEnv overlays SPLITTER_* environment variables onto cfg.
// Unset variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields that cannot be fixed up later
func (c *Config) Validate() error {
	if c.Owner != "" && !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("%w: %q", ErrInvalidOwner, c.Owner)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.Network.DelayEnabled && (c.Network.MinDelayMs < 0 || c.Network.MaxDelayMs < c.Network.MinDelayMs) {
		return fmt.Errorf("%w: %d-%dms", ErrInvalidDelay, c.Network.MinDelayMs, c.Network.MaxDelayMs)
	}
	if _, err := c.GenesisWei(); err != nil {
		return err
	}
	return nil
}

// OwnerAddress returns the configured owner, zero if unset
func (c *Config) OwnerAddress() common.Address {
	if c.Owner == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Owner)
}

// GenesisWei parses GenesisBalance
func (c *Config) GenesisWei() (*big.Int, error) {
	if c.GenesisBalance == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(c.GenesisBalance, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGenesisBalance, c.GenesisBalance)
	}
	return v, nil
}
