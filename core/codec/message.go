package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"msb/core/types"
	"msb/crypto"
)

var (
	// ErrMissingPart is returned when a canonical message part is absent.
	ErrMissingPart = errors.New("codec: missing message part")
	// ErrUnsupportedOperation is returned for tags without a message layout.
	ErrUnsupportedOperation = errors.New("codec: unsupported operation")
)

// BuildMessage writes every part as a 4-byte big-endian length followed by the
// bytes. Parts keep their declared order. A nil part aborts construction; an
// empty non-nil part is encoded as a zero length.
func BuildMessage(parts ...[]byte) ([]byte, error) {
	size := 0
	for i, part := range parts {
		if part == nil {
			return nil, fmt.Errorf("%w: index %d", ErrMissingPart, i)
		}
		size += 4 + len(part)
	}
	out := make([]byte, 0, size)
	var prefix [4]byte
	for _, part := range parts {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(part)))
		out = append(out, prefix[:]...)
		out = append(out, part...)
	}
	return out, nil
}

// TypeTag is the 4-byte big-endian form of t used in canonical messages.
func TypeTag(t types.OperationType) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(t))
	return buf[:]
}

// RequesterMessage builds the canonical message the requester's tx hash and
// signature cover. Addresses are resolved to public keys with prefix.
func RequesterMessage(op *types.Operation, prefix string) ([]byte, error) {
	if op == nil || op.Payload == nil {
		return nil, fmt.Errorf("%w: empty operation", ErrMissingPart)
	}
	requester, err := crypto.AddressToBuffer(op.Address, prefix)
	if err != nil {
		return nil, fmt.Errorf("requester: %w", err)
	}
	intent := op.Payload.RequesterIntent()
	tag := TypeTag(op.Type)

	switch p := op.Payload.(type) {
	case *types.AdminKeyPayload:
		if op.Type != types.OperationAddAdmin {
			break
		}
		return BuildMessage(tag, requester, p.WriterKey, intent.TxValidity, intent.Nonce)
	case *types.RoleAccessPayload:
		switch op.Type {
		case types.OperationAdminRecovery, types.OperationAddWriter, types.OperationRemoveWriter:
			return BuildMessage(tag, requester, p.WriterKey, intent.TxValidity, intent.Nonce)
		}
	case *types.AdminControlPayload:
		switch op.Type {
		case types.OperationDisableInitialization:
			return BuildMessage(tag, requester, intent.TxValidity, intent.Nonce)
		case types.OperationAppendWhitelist, types.OperationAddIndexer,
			types.OperationRemoveIndexer, types.OperationBanValidator:
			target, err := crypto.AddressToBuffer(p.Target, prefix)
			if err != nil {
				return nil, fmt.Errorf("target: %w", err)
			}
			return BuildMessage(tag, requester, target, intent.TxValidity, intent.Nonce)
		case types.OperationBalanceInitialization:
			target, err := crypto.AddressToBuffer(p.Target, prefix)
			if err != nil {
				return nil, fmt.Errorf("target: %w", err)
			}
			return BuildMessage(tag, requester, target, p.Amount, intent.TxValidity, intent.Nonce)
		}
	case *types.DeploymentPayload:
		if op.Type != types.OperationBootstrapDeployment {
			break
		}
		return BuildMessage(tag, requester, p.Bootstrap, p.Channel, intent.TxValidity, intent.Nonce)
	case *types.TransactionPayload:
		if op.Type != types.OperationTx {
			break
		}
		return BuildMessage(tag, requester, p.InvokerWriterKey, p.ContentHash, p.Bootstrap,
			p.NetworkBootstrap, intent.TxValidity, intent.Nonce)
	case *types.TransferPayload:
		if op.Type != types.OperationTransfer {
			break
		}
		recipient, err := crypto.AddressToBuffer(p.Recipient, prefix)
		if err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
		return BuildMessage(tag, requester, recipient, p.Amount, intent.TxValidity, intent.Nonce)
	}
	return nil, fmt.Errorf("%w: %s with %T", ErrUnsupportedOperation, op.Type, op.Payload)
}

// RequesterHash is the blake3 hash of RequesterMessage.
func RequesterHash(op *types.Operation, prefix string) ([32]byte, error) {
	msg, err := RequesterMessage(op, prefix)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Hash(msg), nil
}

// ValidatorMessage is what a validator signs when co-signing the operation
// identified by txHash.
func ValidatorMessage(txHash, validatorPublicKey, validatorNonce []byte) ([]byte, error) {
	return BuildMessage(txHash, validatorPublicKey, validatorNonce)
}

// ValidatorHash is the blake3 hash of ValidatorMessage.
func ValidatorHash(txHash, validatorPublicKey, validatorNonce []byte) ([32]byte, error) {
	msg, err := ValidatorMessage(txHash, validatorPublicKey, validatorNonce)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Hash(msg), nil
}

// ValidityToken derives the transaction validity token from the log's
// sequence state.
func ValidityToken(sequenceState []byte) []byte {
	sum := crypto.Hash(sequenceState)
	return sum[:]
}
