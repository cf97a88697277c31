package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"msb/core/balance"
	"msb/core/types"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msb.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "node.key"), cfg.KeyFile)
	require.Equal(t, DefaultFee, cfg.Ledger.Fee)
	require.EqualValues(t, DefaultValidatorFeeShareBps, cfg.Ledger.ValidatorFeeShareBps)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	if _, err := os.Stat(cfg.KeyFile); !os.IsNotExist(err) {
		t.Fatalf("config load must not write key material, stat err = %v", err)
	}

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.KeyFile, again.KeyFile)
}

func TestLoadParsesLedgerSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msb.toml")
	bootstrap := strings.Repeat("ab", 32)
	contents := fmt.Sprintf(`DataDir = "%s"
LogLevel = "debug"

[network]
Bootstrap = "%s"
AddressPrefix = "trac"

[ledger]
Fee = "0.5"
ValidatorFeeShareBps = 5000
MaxIndexers = 3
MaxWriters = 10

[telemetry]
Endpoint = "collector:4318"
Headers = "x-team=ledger"

[ingest]
RatePerSecond = 20
Burst = 4
`, filepath.ToSlash(filepath.Join(dir, "data")), bootstrap)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 3, cfg.Ledger.MaxIndexers)
	require.Equal(t, 10, cfg.Ledger.MaxWriters)
	require.Equal(t, "collector:4318", cfg.Telemetry.Endpoint)
	require.Equal(t, Ingest{RatePerSecond: 20, Burst: 4}, cfg.Ingest)

	key, err := cfg.Network.BootstrapKey()
	require.NoError(t, err)
	require.False(t, key.IsZero())

	params, err := cfg.Params(key)
	require.NoError(t, err)
	require.True(t, params.Fee.Equal(balance.MustParse("0.5")))
	require.EqualValues(t, 5000, params.ValidatorFeeShareBps)
	require.Equal(t, key, params.Bootstrap)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msb.toml")
	require.NoError(t, os.WriteFile(path, []byte("DataDir = \"x\"\nListenAddress = \"0.0.0.0:1\"\n"), 0o644))

	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestOptionsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msb.toml")

	cfg, err := Load(path, WithDataDir(filepath.Join(dir, "override")), WithLogLevel("warn"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "override"), cfg.DataDir)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, filepath.Join(dir, "override", "view"), cfg.ViewPath())
	require.Equal(t, filepath.Join(dir, "override", "log"), cfg.LogPath())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"short bootstrap", func(c *Config) { c.Network.Bootstrap = "abcd" }},
		{"bad channel", func(c *Config) { c.Network.Channel = "zz" }},
		{"bad fee", func(c *Config) { c.Ledger.Fee = "-1" }},
		{"share above 100%", func(c *Config) { c.Ledger.ValidatorFeeShareBps = 10_001 }},
		{"no indexers", func(c *Config) { c.Ledger.MaxIndexers = 0 }},
		{"negative writers", func(c *Config) { c.Ledger.MaxWriters = -1 }},
		{"negative ingest rate", func(c *Config) { c.Ingest.RatePerSecond = -1 }},
		{"rate without burst", func(c *Config) { c.Ingest = Ingest{RatePerSecond: 5} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
	require.NoError(t, Default().Validate())
}

func TestBootstrapKeyUnset(t *testing.T) {
	key, err := Network{}.BootstrapKey()
	require.NoError(t, err)
	require.Equal(t, types.WriterKey{}, key)
}
