// Package messages assembles and signs operations before they are appended to
// the log. It shares the canonical message layout with the apply engine
// through the codec package.
package messages

import (
	"errors"
	"fmt"

	"msb/core/balance"
	"msb/core/codec"
	"msb/core/types"
	"msb/crypto"
)

var (
	ErrMissingWallet = errors.New("messages: wallet is required")
	ErrMissingType   = errors.New("messages: operation type is required")
	ErrNotCoSigned   = errors.New("messages: operation does not take a validator signature")
)

// Builder collects the fields of one operation. Setters record the first
// error and Build reports it.
type Builder struct {
	wallet *crypto.KeyPair
	prefix string

	opType           types.OperationType
	txValidity       []byte
	nonce            []byte
	writerKey        []byte
	target           string
	amount           []byte
	bootstrap        []byte
	channel          []byte
	invokerWriterKey []byte
	contentHash      []byte
	networkBootstrap []byte
	recipient        string
}

// NewBuilder signs with wallet; addresses are encoded under prefix.
func NewBuilder(wallet *crypto.KeyPair, prefix string) *Builder {
	if prefix == "" {
		prefix = crypto.DefaultAddressPrefix
	}
	return &Builder{wallet: wallet, prefix: prefix}
}

func (b *Builder) WithType(t types.OperationType) *Builder {
	b.opType = t
	return b
}

// WithTxValidity sets the validity token read from the current sequence
// state.
func (b *Builder) WithTxValidity(txv []byte) *Builder {
	b.txValidity = clone(txv)
	return b
}

// WithNonce fixes the requester nonce instead of drawing a random one.
func (b *Builder) WithNonce(nonce []byte) *Builder {
	b.nonce = clone(nonce)
	return b
}

func (b *Builder) WithWriterKey(key []byte) *Builder {
	b.writerKey = clone(key)
	return b
}

func (b *Builder) WithTarget(address string) *Builder {
	b.target = address
	return b
}

func (b *Builder) WithAmount(amount balance.Balance) *Builder {
	b.amount = amount.Bytes()
	return b
}

func (b *Builder) WithBootstrap(bootstrap []byte) *Builder {
	b.bootstrap = clone(bootstrap)
	return b
}

func (b *Builder) WithChannel(channel []byte) *Builder {
	b.channel = clone(channel)
	return b
}

func (b *Builder) WithInvokerWriterKey(key []byte) *Builder {
	b.invokerWriterKey = clone(key)
	return b
}

func (b *Builder) WithContentHash(hash []byte) *Builder {
	b.contentHash = clone(hash)
	return b
}

func (b *Builder) WithNetworkBootstrap(bootstrap []byte) *Builder {
	b.networkBootstrap = clone(bootstrap)
	return b
}

func (b *Builder) WithRecipient(address string) *Builder {
	b.recipient = address
	return b
}

// Build assembles the operation, computes its tx hash and signs it. Validator
// co-signatures are added afterwards with CompleteWithValidator.
func (b *Builder) Build() (*types.Operation, error) {
	if b.wallet == nil {
		return nil, ErrMissingWallet
	}
	if !b.opType.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrMissingType, uint32(b.opType))
	}
	nonce := b.nonce
	if nonce == nil {
		var err error
		if nonce, err = crypto.NewNonce(); err != nil {
			return nil, err
		}
	}
	intent := types.Intent{TxValidity: clone(b.txValidity), Nonce: nonce}

	op := &types.Operation{Type: b.opType, Address: b.wallet.Address()}
	switch b.opType {
	case types.OperationAddAdmin:
		op.Payload = &types.AdminKeyPayload{Intent: intent, WriterKey: b.writerKey}
	case types.OperationAddWriter, types.OperationRemoveWriter, types.OperationAdminRecovery:
		op.Payload = &types.RoleAccessPayload{Intent: intent, WriterKey: b.writerKey}
	case types.OperationDisableInitialization:
		op.Payload = &types.AdminControlPayload{Intent: intent}
	case types.OperationBalanceInitialization:
		op.Payload = &types.AdminControlPayload{Intent: intent, Target: b.target, Amount: b.amount}
	case types.OperationAppendWhitelist, types.OperationAddIndexer,
		types.OperationRemoveIndexer, types.OperationBanValidator:
		op.Payload = &types.AdminControlPayload{Intent: intent, Target: b.target}
	case types.OperationBootstrapDeployment:
		op.Payload = &types.DeploymentPayload{Intent: intent, Bootstrap: b.bootstrap, Channel: b.channel}
	case types.OperationTx:
		op.Payload = &types.TransactionPayload{
			Intent:           intent,
			InvokerWriterKey: b.invokerWriterKey,
			ContentHash:      b.contentHash,
			Bootstrap:        b.bootstrap,
			NetworkBootstrap: b.networkBootstrap,
		}
	case types.OperationTransfer:
		op.Payload = &types.TransferPayload{Intent: intent, Recipient: b.recipient, Amount: b.amount}
	}

	hash, err := codec.RequesterHash(op, b.prefix)
	if err != nil {
		return nil, fmt.Errorf("messages: build %s: %w", b.opType, err)
	}
	signed := op.Payload.RequesterIntent()
	signed.TxHash = hash[:]
	signed.Signature = b.wallet.Sign(hash[:])
	return op, nil
}

// CompleteWithValidator adds validator's co-signature over the operation's tx
// hash.
func CompleteWithValidator(op *types.Operation, validator *crypto.KeyPair) error {
	if validator == nil {
		return ErrMissingWallet
	}
	nonce, err := crypto.NewNonce()
	if err != nil {
		return err
	}
	return CompleteWithValidatorNonce(op, validator, nonce)
}

// CompleteWithValidatorNonce is CompleteWithValidator with a fixed nonce.
func CompleteWithValidatorNonce(op *types.Operation, validator *crypto.KeyPair, nonce []byte) error {
	if op == nil || op.Payload == nil {
		return fmt.Errorf("messages: empty operation")
	}
	var slot **types.ValidatorSignature
	switch p := op.Payload.(type) {
	case *types.RoleAccessPayload:
		slot = &p.Validator
	case *types.DeploymentPayload:
		slot = &p.Validator
	case *types.TransactionPayload:
		slot = &p.Validator
	case *types.TransferPayload:
		slot = &p.Validator
	default:
		return fmt.Errorf("%w: %s", ErrNotCoSigned, op.Type)
	}
	txHash := op.Payload.RequesterIntent().TxHash
	hash, err := codec.ValidatorHash(txHash, validator.PublicKey(), nonce)
	if err != nil {
		return fmt.Errorf("messages: validator message: %w", err)
	}
	*slot = &types.ValidatorSignature{
		Address:   validator.Address(),
		Nonce:     clone(nonce),
		Signature: validator.Sign(hash[:]),
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
