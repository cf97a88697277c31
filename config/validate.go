package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"msb/core/balance"
	"msb/core/types"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: DataDir is empty", ErrInvalidConfig)
	}
	if c.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("%w: LogLevel %q", ErrInvalidConfig, c.LogLevel)
		}
	}
	if _, err := c.Network.BootstrapKey(); err != nil {
		return err
	}
	if _, err := c.Network.ChannelBytes(); err != nil {
		return err
	}
	if _, err := balance.Parse(c.Ledger.Fee); err != nil {
		return fmt.Errorf("%w: ledger.Fee: %v", ErrInvalidConfig, err)
	}
	if c.Ledger.ValidatorFeeShareBps > balance.BasisPoints {
		return fmt.Errorf("%w: ledger.ValidatorFeeShareBps %d exceeds %d", ErrInvalidConfig, c.Ledger.ValidatorFeeShareBps, balance.BasisPoints)
	}
	if c.Ledger.MaxIndexers < 1 {
		return fmt.Errorf("%w: ledger.MaxIndexers must be positive", ErrInvalidConfig)
	}
	if c.Ledger.MaxWriters < 0 {
		return fmt.Errorf("%w: ledger.MaxWriters must not be negative", ErrInvalidConfig)
	}
	if c.Ingest.RatePerSecond < 0 || c.Ingest.Burst < 0 {
		return fmt.Errorf("%w: ingest limits must not be negative", ErrInvalidConfig)
	}
	if c.Ingest.RatePerSecond > 0 && c.Ingest.Burst == 0 {
		return fmt.Errorf("%w: ingest.Burst must be positive when RatePerSecond is set", ErrInvalidConfig)
	}
	return nil
}

// BootstrapKey decodes the configured bootstrap; the zero key means unset.
func (n Network) BootstrapKey() (types.WriterKey, error) {
	if strings.TrimSpace(n.Bootstrap) == "" {
		return types.WriterKey{}, nil
	}
	raw, err := hex.DecodeString(strings.TrimSpace(n.Bootstrap))
	if err != nil {
		return types.WriterKey{}, fmt.Errorf("%w: network.Bootstrap: %v", ErrInvalidConfig, err)
	}
	key, ok := types.WriterKeyFromBytes(raw)
	if !ok {
		return types.WriterKey{}, fmt.Errorf("%w: network.Bootstrap must be %d bytes", ErrInvalidConfig, types.WriterKeySize)
	}
	return key, nil
}

// ChannelBytes decodes the configured channel; nil means unset.
func (n Network) ChannelBytes() ([]byte, error) {
	if strings.TrimSpace(n.Channel) == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimSpace(n.Channel))
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: network.Channel must be 32 hex-encoded bytes", ErrInvalidConfig)
	}
	return raw, nil
}
