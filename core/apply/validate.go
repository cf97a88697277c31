package apply

import (
	"bytes"

	"msb/core/balance"
	"msb/core/codec"
	"msb/core/types"
	"msb/crypto"
)

// validate runs the stages every operation shares, cheapest first, and stops
// at the first failure. It ends with the replay check; a hash that is already
// recorded yields ReasonAlreadyApplied.
func (tx *txn) validate() error {
	if err := tx.checkSchema(); err != nil {
		return err
	}
	if err := tx.checkAddresses(); err != nil {
		return err
	}
	if tx.op.Type.AdminOnly() {
		if err := tx.checkAdminGate(); err != nil {
			return err
		}
	}
	coSigned := tx.op.Type.RequiresValidator()
	if coSigned {
		if err := tx.checkCoSignature(); err != nil {
			return err
		}
	}
	if err := tx.checkMessageHash(); err != nil {
		return err
	}
	if err := tx.checkSignatures(); err != nil {
		return err
	}
	if coSigned {
		if err := tx.checkValidatorEntry(); err != nil {
			return err
		}
	}
	if err := tx.checkSequenceState(); err != nil {
		return err
	}
	applied, err := tx.alreadyApplied()
	if err != nil {
		return err
	}
	if applied {
		return tx.reject(ReasonAlreadyApplied)
	}
	return nil
}

func (tx *txn) checkSchema() error {
	op := tx.op
	if op.Payload == nil || op.Address == "" || !payloadMatches(op.Type, op.Payload) {
		return tx.reject(ReasonSchema)
	}
	intent := op.Payload.RequesterIntent()
	if len(intent.TxHash) != crypto.HashSize ||
		len(intent.TxValidity) != crypto.HashSize ||
		len(intent.Nonce) != crypto.NonceSize ||
		len(intent.Signature) != crypto.SignatureSize {
		return tx.reject(ReasonSchema)
	}
	tx.intent = intent

	ok := true
	switch p := op.Payload.(type) {
	case *types.AdminKeyPayload:
		ok = len(p.WriterKey) == types.WriterKeySize
	case *types.AdminControlPayload:
		switch op.Type {
		case types.OperationDisableInitialization:
			ok = p.Target == "" && len(p.Amount) == 0
		case types.OperationBalanceInitialization:
			ok = p.Target != "" && balance.IsValid(p.Amount)
		default:
			ok = p.Target != "" && len(p.Amount) == 0
		}
	case *types.RoleAccessPayload:
		ok = len(p.WriterKey) == types.WriterKeySize && validatorShape(p.Validator)
	case *types.DeploymentPayload:
		ok = len(p.Bootstrap) == types.WriterKeySize && len(p.Channel) == crypto.HashSize &&
			validatorShape(p.Validator)
	case *types.TransactionPayload:
		ok = len(p.InvokerWriterKey) == types.WriterKeySize &&
			len(p.ContentHash) == crypto.HashSize &&
			len(p.Bootstrap) == types.WriterKeySize &&
			len(p.NetworkBootstrap) == types.WriterKeySize &&
			validatorShape(p.Validator)
	case *types.TransferPayload:
		ok = p.Recipient != "" && balance.IsValid(p.Amount) && validatorShape(p.Validator)
	}
	if !ok {
		return tx.reject(ReasonSchema)
	}
	return nil
}

func payloadMatches(t types.OperationType, p types.Payload) bool {
	switch p.(type) {
	case *types.AdminKeyPayload:
		return t == types.OperationAddAdmin
	case *types.AdminControlPayload:
		return t.AdminOnly()
	case *types.RoleAccessPayload:
		return t == types.OperationAddWriter || t == types.OperationRemoveWriter ||
			t == types.OperationAdminRecovery
	case *types.DeploymentPayload:
		return t == types.OperationBootstrapDeployment
	case *types.TransactionPayload:
		return t == types.OperationTx
	case *types.TransferPayload:
		return t == types.OperationTransfer
	}
	return false
}

// validatorShape accepts an absent or partial co-signature; completeness is
// judged later. Fields that are present must have their exact size.
func validatorShape(v *types.ValidatorSignature) bool {
	if v == nil {
		return true
	}
	if len(v.Nonce) != 0 && len(v.Nonce) != crypto.NonceSize {
		return false
	}
	if len(v.Signature) != 0 && len(v.Signature) != crypto.SignatureSize {
		return false
	}
	return true
}

func (tx *txn) checkAddresses() error {
	prefix := tx.params.AddressPrefix
	if !crypto.IsAddressValid(tx.op.Address, prefix) {
		return tx.reject(ReasonRequesterAddress)
	}
	key, err := crypto.AddressToBuffer(tx.op.Address, prefix)
	if err != nil {
		return tx.fail(ReasonRequesterPublicKey, err)
	}
	tx.requesterKey = key

	switch p := tx.op.Payload.(type) {
	case *types.AdminControlPayload:
		if p.Target != "" && !crypto.IsAddressValid(p.Target, prefix) {
			return tx.reject(ReasonTargetAddress)
		}
	case *types.TransferPayload:
		if !crypto.IsAddressValid(p.Recipient, prefix) {
			return tx.reject(ReasonRecipientAddress)
		}
	}
	return nil
}

// checkAdminGate authorizes admin-only operations against the admin entry
// itself: the appending writer key must be the one the entry records and the
// requester must be the recorded admin address.
func (tx *txn) checkAdminGate() error {
	admin, err := tx.adminEntry()
	if err != nil {
		return err
	}
	if admin.WriterKey.IsZero() || tx.entry.Writer != admin.WriterKey {
		return tx.reject(ReasonAdminOnly)
	}
	if tx.op.Address != admin.Address {
		return tx.reject(ReasonAdminMismatch)
	}
	return nil
}

func (tx *txn) checkCoSignature() error {
	coSigned, ok := tx.op.Payload.(types.CoSigned)
	if !ok {
		return tx.reject(ReasonSchema)
	}
	v := coSigned.ValidatorCoSignature()
	if !v.Complete() {
		return tx.reject(ReasonIncomplete)
	}
	if bytes.Equal(v.Nonce, tx.intent.Nonce) {
		return tx.reject(ReasonSameNonce)
	}
	if v.Address == tx.op.Address {
		return tx.reject(ReasonSameAddress)
	}
	if bytes.Equal(v.Signature, tx.intent.Signature) {
		return tx.reject(ReasonSameSignature)
	}
	prefix := tx.params.AddressPrefix
	if !crypto.IsAddressValid(v.Address, prefix) {
		return tx.reject(ReasonValidatorAddress)
	}
	key, err := crypto.AddressToBuffer(v.Address, prefix)
	if err != nil {
		return tx.fail(ReasonValidatorPublicKey, err)
	}
	tx.validator = v
	tx.validatorKey = key
	return nil
}

func (tx *txn) checkMessageHash() error {
	hash, err := codec.RequesterHash(tx.op, tx.params.AddressPrefix)
	if err != nil {
		return tx.fail(ReasonHashMismatch, err)
	}
	if !bytes.Equal(hash[:], tx.intent.TxHash) {
		return tx.reject(ReasonHashMismatch)
	}
	return nil
}

func (tx *txn) checkSignatures() error {
	if !crypto.Verify(tx.requesterKey, tx.intent.TxHash, tx.intent.Signature) {
		return tx.reject(ReasonSignature)
	}
	if tx.validator == nil {
		return nil
	}
	hash, err := codec.ValidatorHash(tx.intent.TxHash, tx.validatorKey, tx.validator.Nonce)
	if err != nil {
		return tx.fail(ReasonValidatorSignature, err)
	}
	if !crypto.Verify(tx.validatorKey, hash[:], tx.validator.Signature) {
		return tx.reject(ReasonValidatorSignature)
	}
	return nil
}

// checkValidatorEntry requires the co-signer to be an active writer that
// appended this very entry.
func (tx *txn) checkValidatorEntry() error {
	entry, err := tx.nodeEntry(tx.validator.Address)
	if err != nil {
		return tx.fail(ReasonValidatorDecode, err)
	}
	if entry == nil {
		return tx.reject(ReasonValidatorMissing)
	}
	if !entry.IsWriter || entry.WriterKey.IsZero() || entry.WriterKey != tx.entry.Writer {
		return tx.reject(ReasonValidatorInactive)
	}
	if tx.validator.Address == tx.op.Address {
		return tx.reject(ReasonValidatorIsRequester)
	}
	return nil
}

func (tx *txn) checkSequenceState() error {
	state, err := tx.host.SequenceState()
	if err != nil {
		return tx.fail(ReasonSequenceState, err)
	}
	if len(state) == 0 {
		return tx.reject(ReasonSequenceState)
	}
	if !bytes.Equal(codec.ValidityToken(state), tx.intent.TxValidity) {
		return tx.reject(ReasonNotExecuted)
	}
	return nil
}
