package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"localsolana/core/types"
	"localsolana/native/escrow"
)

// Config drives the escrowd daemon: where to listen, where state lives and
// which identity arbitrates. The arbitrator is deliberately a configuration
// value rather than a compiled-in constant.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	EvidenceDB string `toml:"EvidenceDB"`
	Arbitrator string `toml:"Arbitrator"`
	Env        string `toml:"Env"`

	Log       LogConfig       `toml:"Log"`
	Deadlines DeadlinesConfig `toml:"Deadlines"`
}

// LogConfig selects between stdout logging and rotated file output.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// DeadlinesConfig overrides the protocol windows, primarily for test
// networks. Zero fields keep the production defaults.
type DeadlinesConfig struct {
	DepositMinutes   int64 `toml:"DepositMinutes"`
	FiatMinutes      int64 `toml:"FiatMinutes"`
	ResponseHours    int64 `toml:"ResponseHours"`
	ArbitrationHours int64 `toml:"ArbitrationHours"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		RPCAddress: ":8645",
		DataDir:    "./escrowd-data",
		EvidenceDB: "./escrowd-data/evidence.db",
		Log:        LogConfig{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads the configuration from the given path, applying defaults for
// unset fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, err := c.ArbitratorAddress(); err != nil {
		return err
	}
	return nil
}

// ArbitratorAddress parses the configured arbitrator identity, rejecting a
// missing or zero address.
func (c *Config) ArbitratorAddress() (types.Address, error) {
	trimmed := strings.TrimSpace(c.Arbitrator)
	if trimmed == "" {
		return types.Address{}, fmt.Errorf("config: Arbitrator required")
	}
	addr, err := types.ParseAddress(trimmed)
	if err != nil {
		return types.Address{}, fmt.Errorf("config: Arbitrator: %w", err)
	}
	if addr.IsZero() {
		return types.Address{}, fmt.Errorf("config: Arbitrator must not be the zero address")
	}
	return addr, nil
}

// Windows converts the deadline overrides into engine windows. Unset fields
// fall back to the protocol defaults.
func (c *Config) Windows() escrow.Windows {
	w := escrow.DefaultWindows()
	if c.Deadlines.DepositMinutes > 0 {
		w.Deposit = time.Duration(c.Deadlines.DepositMinutes) * time.Minute
	}
	if c.Deadlines.FiatMinutes > 0 {
		w.Fiat = time.Duration(c.Deadlines.FiatMinutes) * time.Minute
	}
	if c.Deadlines.ResponseHours > 0 {
		w.Response = time.Duration(c.Deadlines.ResponseHours) * time.Hour
	}
	if c.Deadlines.ArbitrationHours > 0 {
		w.Arbitration = time.Duration(c.Deadlines.ArbitrationHours) * time.Hour
	}
	return w
}
