package apply

import (
	"errors"
	"fmt"

	"msb/core/balance"
	"msb/core/types"
	"msb/crypto"
)

const (
	DefaultValidatorFeeShareBps = 7500
	DefaultMaxIndexers          = 5
)

// DefaultFee is charged on every validator co-signed operation.
var DefaultFee = balance.MustParse("0.03")

// Params are the network constants the engine applies operations under. They
// are fixed for the lifetime of an Engine.
type Params struct {
	// Bootstrap is the genesis writer key, the only key allowed to create the
	// admin entry.
	Bootstrap     types.WriterKey
	AddressPrefix string
	Fee           balance.Balance
	// ValidatorFeeShareBps is the share of Fee credited to the validator, in
	// basis points. The remainder is burned.
	ValidatorFeeShareBps uint32
	MaxIndexers          int
	// MaxWriters bounds simultaneously active writers; zero means unbounded.
	MaxWriters int
}

// DefaultParams returns the production constants for a network rooted at
// bootstrap.
func DefaultParams(bootstrap types.WriterKey) Params {
	return Params{
		Bootstrap:            bootstrap,
		AddressPrefix:        crypto.DefaultAddressPrefix,
		Fee:                  DefaultFee,
		ValidatorFeeShareBps: DefaultValidatorFeeShareBps,
		MaxIndexers:          DefaultMaxIndexers,
	}
}

func (p Params) Validate() error {
	if p.Bootstrap.IsZero() {
		return errors.New("apply: bootstrap key must be set")
	}
	if p.AddressPrefix == "" {
		return errors.New("apply: address prefix must be set")
	}
	if p.ValidatorFeeShareBps > balance.BasisPoints {
		return fmt.Errorf("apply: validator fee share %d exceeds %d bps", p.ValidatorFeeShareBps, balance.BasisPoints)
	}
	if p.MaxIndexers < 1 {
		return fmt.Errorf("apply: max indexers must be positive, got %d", p.MaxIndexers)
	}
	if p.MaxWriters < 0 {
		return fmt.Errorf("apply: max writers must not be negative, got %d", p.MaxWriters)
	}
	return nil
}

// validatorShare is the part of the fee paid to the co-signing validator.
func (p Params) validatorShare() balance.Balance {
	return p.Fee.Percent(p.ValidatorFeeShareBps)
}
