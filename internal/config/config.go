// Package config holds the explicit configuration record consumed by the
// CLI and engines, per Design Note 1: recognized options are struct fields,
// not a string-keyed map. It supports an optional YAML file on disk with CLI
// flags always taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name alongside the seed file.
const ConfigFileName = "config.yaml"

// Config is the full set of recognized options: network selection, oracle
// and relay endpoints, broadcast/fee defaults, and logging. LogLevel and
// Quiet are read from the file, but the CLI sets its log level only from the
// --log-level and --quiet flags.
type Config struct {
	Testnet bool `yaml:"testnet"`

	OracleBaseURL string `yaml:"oracle_base_url"`

	RelayPrimaryURL   string `yaml:"relay_primary_url"`
	RelayAlternateURL string `yaml:"relay_alternate_url"`

	ExplorerMainnetURL string `yaml:"explorer_mainnet_url"`
	ExplorerTestnetURL string `yaml:"explorer_testnet_url"`

	DefaultFee   int64 `yaml:"default_fee"`
	MinFeeMargin int64 `yaml:"min_fee_margin"`
	MaxFeeMargin int64 `yaml:"max_fee_margin"`
	NoBroadcast  bool  `yaml:"no_broadcast"`

	LogLevel string `yaml:"log_level"`
	Quiet    bool   `yaml:"quiet"`
}

// DefaultConfig returns the configuration used when no file and no flags
// override anything.
func DefaultConfig() *Config {
	return &Config{
		Testnet:            false,
		OracleBaseURL:      "https://www.realitykeys.com/api/v1",
		RelayPrimaryURL:    "https://mempool.space/api/tx",
		RelayAlternateURL:  "https://blockstream.info/api/tx",
		ExplorerMainnetURL: "https://mempool.space/api",
		ExplorerTestnetURL: "https://mempool.space/testnet/api",
		DefaultFee:         10000,
		MinFeeMargin:       5000,
		MaxFeeMargin:       50000,
		NoBroadcast:        false,
		LogLevel:           "info",
		Quiet:              false,
	}
}

// Load reads configuration from path. If the file does not exist, it
// returns DefaultConfig() unchanged — unlike the seed file, a missing config
// file is not itself created, since most invocations never need one.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	header := []byte("# realitywager configuration\n# flags passed on the command line override these values\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// DefaultPath returns $HOME/.realitywager.d/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: locate home directory: %w", err)
	}
	return filepath.Join(home, ".realitywager.d", ConfigFileName), nil
}
