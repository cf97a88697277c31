package apply

import (
	"msb/core/balance"
	"msb/core/keys"
	"msb/core/types"
)

func (e *Engine) applyDisableInitialization(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	disabled, err := tx.initializationDisabled()
	if err != nil {
		return err
	}
	if disabled {
		return tx.reject(ReasonInitializationDisabled)
	}
	if err := tx.put(keys.InitializationDisabled(), presentMarker); err != nil {
		return err
	}
	return tx.markApplied()
}

// applyBalanceInitialization credits genesis funds to a node until
// initialization is disabled.
func (e *Engine) applyBalanceInitialization(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.AdminControlPayload)
	disabled, err := tx.initializationDisabled()
	if err != nil {
		return err
	}
	if disabled {
		return tx.reject(ReasonBalanceInitDisabled)
	}
	amount, err := balance.FromBuffer(p.Amount)
	if err != nil {
		return tx.fail(ReasonInvalidAmount, err)
	}
	if err := tx.credit(p.Target, amount); err != nil {
		return err
	}
	return tx.markApplied()
}
