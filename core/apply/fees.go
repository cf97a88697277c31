package apply

import "msb/core/balance"

// chargeFee debits the network fee from the requester and pays the
// validator its share.
func (tx *txn) chargeFee() error {
	if err := tx.debitRequester(balance.Zero); err != nil {
		return err
	}
	return tx.payValidator()
}

// debitRequester removes amount plus the fee from the requester's balance.
func (tx *txn) debitRequester(amount balance.Balance) error {
	requester, err := tx.nodeEntry(tx.op.Address)
	if err != nil {
		return tx.fail(ReasonInvalidRequesterBalance, err)
	}
	if requester == nil {
		return tx.reject(ReasonInvalidRequesterBalance)
	}
	total, ok := balance.Add(amount, tx.params.Fee)
	if !ok {
		return tx.reject(ReasonApplyFee)
	}
	remaining, ok := balance.Sub(requester.Balance, total)
	if !ok {
		return tx.reject(ReasonInsufficientBalance)
	}
	requester.Balance = remaining
	if err := tx.putNodeEntry(tx.op.Address, requester); err != nil {
		return tx.fail(ReasonApplyFee, err)
	}
	return nil
}

// payValidator credits the validator's share of the fee. The rest of the fee
// is burned.
func (tx *txn) payValidator() error {
	if tx.validator == nil {
		return nil
	}
	entry, err := tx.nodeEntry(tx.validator.Address)
	if err != nil {
		return tx.fail(ReasonInvalidValidatorBalance, err)
	}
	if entry == nil {
		return tx.reject(ReasonInvalidValidatorBalance)
	}
	updated, ok := balance.Add(entry.Balance, tx.params.validatorShare())
	if !ok {
		return tx.reject(ReasonUpdateValidatorBalance)
	}
	entry.Balance = updated
	if err := tx.putNodeEntry(tx.validator.Address, entry); err != nil {
		return tx.fail(ReasonUpdateValidatorBalance, err)
	}
	return nil
}

// credit adds amount to address, creating a plain node entry if needed.
func (tx *txn) credit(address string, amount balance.Balance) error {
	entry, err := tx.nodeEntryOrNew(address)
	if err != nil {
		return tx.fail(ReasonUpdateBalance, err)
	}
	updated, ok := balance.Add(entry.Balance, amount)
	if !ok {
		return tx.reject(ReasonUpdateBalance)
	}
	entry.Balance = updated
	if err := tx.putNodeEntry(address, entry); err != nil {
		return tx.fail(ReasonUpdateBalance, err)
	}
	return nil
}
