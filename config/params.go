package config

import (
	"fmt"

	"msb/core/apply"
	"msb/core/balance"
	"msb/core/types"
)

// Params builds the immutable engine parameters for a network rooted at
// bootstrap. The caller resolves an unset bootstrap to the local log key.
func (c *Config) Params(bootstrap types.WriterKey) (apply.Params, error) {
	fee, err := balance.Parse(c.Ledger.Fee)
	if err != nil {
		return apply.Params{}, fmt.Errorf("%w: ledger.Fee: %v", ErrInvalidConfig, err)
	}
	params := apply.Params{
		Bootstrap:            bootstrap,
		AddressPrefix:        c.Network.AddressPrefix,
		Fee:                  fee,
		ValidatorFeeShareBps: c.Ledger.ValidatorFeeShareBps,
		MaxIndexers:          c.Ledger.MaxIndexers,
		MaxWriters:           c.Ledger.MaxWriters,
	}
	if err := params.Validate(); err != nil {
		return apply.Params{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return params, nil
}
