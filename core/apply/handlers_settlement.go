package apply

import (
	"bytes"

	"msb/core/balance"
	"msb/core/types"
)

// applyBootstrapDeployment registers a sub-network bootstrap key so that its
// transactions can settle here.
func (e *Engine) applyBootstrapDeployment(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.DeploymentPayload)
	if bytes.Equal(p.Bootstrap, tx.params.Bootstrap[:]) {
		return tx.reject(ReasonDeployNetworkBootstrap)
	}
	existing, err := tx.deployment(p.Bootstrap)
	if err != nil {
		return err
	}
	if existing != nil {
		return tx.reject(ReasonAlreadyDeployed)
	}
	if err := tx.putDeployment(p.Bootstrap, &types.Deployment{
		TxHash:    tx.intent.TxHash,
		Requester: tx.op.Address,
		Channel:   p.Channel,
	}); err != nil {
		return err
	}
	if err := tx.chargeFee(); err != nil {
		return err
	}
	return tx.markApplied()
}

// applyTx settles a sub-network transaction. The record itself is what
// markApplied stores under the tx hash.
func (e *Engine) applyTx(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.TransactionPayload)
	if !bytes.Equal(p.NetworkBootstrap, tx.params.Bootstrap[:]) {
		return tx.reject(ReasonWrongNetwork)
	}
	deployed, err := tx.deployment(p.Bootstrap)
	if err != nil {
		return err
	}
	if deployed == nil {
		return tx.reject(ReasonNotDeployed)
	}
	if err := tx.chargeFee(); err != nil {
		return err
	}
	return tx.markApplied()
}

// applyTransfer moves amount from the requester to the recipient. Zero amounts
// and transfers to self are valid and still pay the fee.
func (e *Engine) applyTransfer(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.TransferPayload)
	amount, err := balance.FromBuffer(p.Amount)
	if err != nil {
		return tx.fail(ReasonInvalidAmount, err)
	}
	if err := tx.debitRequester(amount); err != nil {
		return err
	}
	if err := tx.credit(p.Recipient, amount); err != nil {
		return err
	}
	if err := tx.payValidator(); err != nil {
		return err
	}
	return tx.markApplied()
}
