package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"msb/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir  string `toml:"DataDir"`
	KeyFile  string `toml:"KeyFile"`
	LogLevel string `toml:"LogLevel"`
	LogFile  string `toml:"LogFile"`
	Env      string `toml:"Env"`
	// MetricsAddress serves /metrics and /healthz; "off" disables it.
	MetricsAddress string    `toml:"MetricsAddress"`
	Network        Network   `toml:"network"`
	Ledger         Ledger    `toml:"ledger"`
	Telemetry      Telemetry `toml:"telemetry"`
	Ingest         Ingest    `toml:"ingest"`
}

// Option overrides a loaded value, typically from a command-line flag.
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

func WithKeyFile(path string) Option {
	return func(c *Config) { c.KeyFile = path }
}

func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

func WithMetricsAddress(addr string) Option {
	return func(c *Config) { c.MetricsAddress = addr }
}

// WithBootstrap sets the hex-encoded network bootstrap writer key.
func WithBootstrap(hexKey string) Option {
	return func(c *Config) { c.Network.Bootstrap = hexKey }
}

// Default returns the configuration of a local single-node network.
func Default() *Config {
	return &Config{
		DataDir:        "./msb-data",
		LogLevel:       "info",
		Env:            "local",
		MetricsAddress: "127.0.0.1:9464",
		Network: Network{
			AddressPrefix: crypto.DefaultAddressPrefix,
		},
		Ledger: Ledger{
			Fee:                  DefaultFee,
			ValidatorFeeShareBps: DefaultValidatorFeeShareBps,
			MaxIndexers:          DefaultMaxIndexers,
		},
		Ingest: Ingest{Burst: 1},
	}
}

// Load reads the TOML file at path on top of the defaults, then applies
// opts. A missing file is created with the defaults.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path, cfg); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %s in %s", ErrInvalidConfig, undecoded[0], path)
		}
		if err := ensureKeyFile(path, cfg); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if strings.TrimSpace(cfg.Network.AddressPrefix) == "" {
		cfg.Network.AddressPrefix = crypto.DefaultAddressPrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ensureKeyFile records the default key file path when none is configured.
// The key itself is created by msbd, which holds the passphrase.
func ensureKeyFile(configPath string, cfg *Config) error {
	if cfg.KeyFile != "" {
		return nil
	}
	cfg.KeyFile = defaultKeyFilePath(configPath)
	return persist(configPath, cfg)
}

// createDefault saves cfg to path with the default key file location.
func createDefault(path string, cfg *Config) error {
	cfg.KeyFile = defaultKeyFilePath(path)
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeyFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "node.key")
}

// ViewPath is the directory of the ledger view database.
func (c *Config) ViewPath() string {
	return filepath.Join(c.DataDir, "view")
}

// LogPath is the directory of the operation log database.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "log")
}
