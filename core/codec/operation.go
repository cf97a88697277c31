// Package codec converts operations and state records to and from bytes and
// builds the canonical messages that operation hashes and signatures cover.
package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"msb/core/types"
)

// ErrEncode wraps every encoding failure.
var ErrEncode = errors.New("codec: encode operation")

// Operation field numbers. Payload fields form a oneof.
const (
	fieldType         protowire.Number = 1
	fieldAddress      protowire.Number = 2
	fieldAdminKey     protowire.Number = 3
	fieldAdminControl protowire.Number = 4
	fieldRoleAccess   protowire.Number = 5
	fieldDeployment   protowire.Number = 6
	fieldTransaction  protowire.Number = 7
	fieldTransfer     protowire.Number = 8
)

// Field numbers shared by every payload message.
const (
	fieldTxHash     protowire.Number = 1
	fieldTxValidity protowire.Number = 2
	fieldNonce      protowire.Number = 3
	fieldSignature  protowire.Number = 4
	fieldValidator  protowire.Number = 15
)

// Payload-specific field numbers, starting after the intent fields.
const (
	fieldWriterKey        protowire.Number = 5
	fieldTarget           protowire.Number = 5
	fieldAmount           protowire.Number = 6
	fieldBootstrap        protowire.Number = 5
	fieldChannel          protowire.Number = 6
	fieldInvokerWriterKey protowire.Number = 5
	fieldContentHash      protowire.Number = 6
	fieldSubBootstrap     protowire.Number = 7
	fieldNetworkBootstrap protowire.Number = 8
	fieldRecipient        protowire.Number = 5
	fieldTransferAmount   protowire.Number = 6
)

// ValidatorSignature field numbers.
const (
	fieldValidatorAddress   protowire.Number = 1
	fieldValidatorNonce     protowire.Number = 2
	fieldValidatorSignature protowire.Number = 3
)

// EncodeOperation serialises op in protobuf wire format.
func EncodeOperation(op *types.Operation) ([]byte, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", ErrEncode)
	}
	if op.Payload == nil {
		return nil, fmt.Errorf("%w: %s has no payload", ErrEncode, op.Type)
	}
	var out []byte
	out = protowire.AppendTag(out, fieldType, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(op.Type))
	out = appendString(out, fieldAddress, op.Address)

	var (
		num  protowire.Number
		body []byte
	)
	switch p := op.Payload.(type) {
	case *types.AdminKeyPayload:
		num = fieldAdminKey
		body = appendIntent(nil, &p.Intent)
		body = appendBytes(body, fieldWriterKey, p.WriterKey)
	case *types.AdminControlPayload:
		num = fieldAdminControl
		body = appendIntent(nil, &p.Intent)
		body = appendString(body, fieldTarget, p.Target)
		body = appendBytes(body, fieldAmount, p.Amount)
	case *types.RoleAccessPayload:
		num = fieldRoleAccess
		body = appendIntent(nil, &p.Intent)
		body = appendBytes(body, fieldWriterKey, p.WriterKey)
		body = appendValidator(body, p.Validator)
	case *types.DeploymentPayload:
		num = fieldDeployment
		body = appendIntent(nil, &p.Intent)
		body = appendBytes(body, fieldBootstrap, p.Bootstrap)
		body = appendBytes(body, fieldChannel, p.Channel)
		body = appendValidator(body, p.Validator)
	case *types.TransactionPayload:
		num = fieldTransaction
		body = appendIntent(nil, &p.Intent)
		body = appendBytes(body, fieldInvokerWriterKey, p.InvokerWriterKey)
		body = appendBytes(body, fieldContentHash, p.ContentHash)
		body = appendBytes(body, fieldSubBootstrap, p.Bootstrap)
		body = appendBytes(body, fieldNetworkBootstrap, p.NetworkBootstrap)
		body = appendValidator(body, p.Validator)
	case *types.TransferPayload:
		num = fieldTransfer
		body = appendIntent(nil, &p.Intent)
		body = appendString(body, fieldRecipient, p.Recipient)
		body = appendBytes(body, fieldTransferAmount, p.Amount)
		body = appendValidator(body, p.Validator)
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", ErrEncode, op.Payload)
	}
	out = protowire.AppendTag(out, num, protowire.BytesType)
	out = protowire.AppendBytes(out, body)
	return out, nil
}

// DecodeOperation parses an operation record. Any malformed input, including
// a record carrying more than one payload, yields nil.
func DecodeOperation(data []byte) *types.Operation {
	if len(data) == 0 {
		return nil
	}
	op := &types.Operation{}
	var sawType bool
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldType:
			if typ != protowire.VarintType {
				return 0, errWireType
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if v > 0xffffffff {
				return 0, errors.New("codec: operation type out of range")
			}
			op.Type = types.OperationType(v)
			sawType = true
			return n, nil
		case fieldAddress:
			v, n, err := consumeBytes(typ, b)
			op.Address = string(v)
			return n, err
		case fieldAdminKey, fieldAdminControl, fieldRoleAccess, fieldDeployment, fieldTransaction, fieldTransfer:
			if op.Payload != nil {
				return 0, errors.New("codec: multiple payloads")
			}
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			payload, err := decodePayload(num, v)
			if err != nil {
				return 0, err
			}
			op.Payload = payload
			return n, nil
		}
		return skip(num, typ, b)
	})
	if err != nil || !sawType {
		return nil
	}
	return op
}

var errWireType = errors.New("codec: unexpected wire type")

func decodePayload(num protowire.Number, data []byte) (types.Payload, error) {
	switch num {
	case fieldAdminKey:
		p := &types.AdminKeyPayload{}
		return p, walkPayload(data, &p.Intent, nil, func(num protowire.Number, v []byte) {
			if num == fieldWriterKey {
				p.WriterKey = v
			}
		})
	case fieldAdminControl:
		p := &types.AdminControlPayload{}
		return p, walkPayload(data, &p.Intent, nil, func(num protowire.Number, v []byte) {
			switch num {
			case fieldTarget:
				p.Target = string(v)
			case fieldAmount:
				p.Amount = v
			}
		})
	case fieldRoleAccess:
		p := &types.RoleAccessPayload{}
		return p, walkPayload(data, &p.Intent, &p.Validator, func(num protowire.Number, v []byte) {
			if num == fieldWriterKey {
				p.WriterKey = v
			}
		})
	case fieldDeployment:
		p := &types.DeploymentPayload{}
		return p, walkPayload(data, &p.Intent, &p.Validator, func(num protowire.Number, v []byte) {
			switch num {
			case fieldBootstrap:
				p.Bootstrap = v
			case fieldChannel:
				p.Channel = v
			}
		})
	case fieldTransaction:
		p := &types.TransactionPayload{}
		return p, walkPayload(data, &p.Intent, &p.Validator, func(num protowire.Number, v []byte) {
			switch num {
			case fieldInvokerWriterKey:
				p.InvokerWriterKey = v
			case fieldContentHash:
				p.ContentHash = v
			case fieldSubBootstrap:
				p.Bootstrap = v
			case fieldNetworkBootstrap:
				p.NetworkBootstrap = v
			}
		})
	case fieldTransfer:
		p := &types.TransferPayload{}
		return p, walkPayload(data, &p.Intent, &p.Validator, func(num protowire.Number, v []byte) {
			switch num {
			case fieldRecipient:
				p.Recipient = string(v)
			case fieldTransferAmount:
				p.Amount = v
			}
		})
	}
	return nil, fmt.Errorf("codec: unknown payload field %d", num)
}

// walkPayload fills the intent, the optional validator co-signature and hands
// every other bytes field to extra. Payload fields are all length-delimited.
func walkPayload(data []byte, intent *types.Intent, validator **types.ValidatorSignature, extra func(protowire.Number, []byte)) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldValidator && validator == nil {
			return skip(num, typ, b)
		}
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case fieldTxHash:
			intent.TxHash = v
		case fieldTxValidity:
			intent.TxValidity = v
		case fieldNonce:
			intent.Nonce = v
		case fieldSignature:
			intent.Signature = v
		case fieldValidator:
			vs, err := decodeValidator(v)
			if err != nil {
				return 0, err
			}
			*validator = vs
		default:
			extra(num, v)
		}
		return n, nil
	})
}

func decodeValidator(data []byte) (*types.ValidatorSignature, error) {
	vs := &types.ValidatorSignature{}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case fieldValidatorAddress:
			vs.Address = string(v)
		case fieldValidatorNonce:
			vs.Nonce = v
		case fieldValidatorSignature:
			vs.Signature = v
		}
		return n, nil
	})
	return vs, err
}

// walk iterates the fields of a message; fn consumes the value and returns its
// length.
func walk(data []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 || m > len(data) {
			return errors.New("codec: truncated field")
		}
		data = data[m:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return append([]byte(nil), v...), n, nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func appendIntent(b []byte, intent *types.Intent) []byte {
	b = appendBytes(b, fieldTxHash, intent.TxHash)
	b = appendBytes(b, fieldTxValidity, intent.TxValidity)
	b = appendBytes(b, fieldNonce, intent.Nonce)
	b = appendBytes(b, fieldSignature, intent.Signature)
	return b
}

func appendValidator(b []byte, vs *types.ValidatorSignature) []byte {
	if vs == nil {
		return b
	}
	var body []byte
	body = appendString(body, fieldValidatorAddress, vs.Address)
	body = appendBytes(body, fieldValidatorNonce, vs.Nonce)
	body = appendBytes(body, fieldValidatorSignature, vs.Signature)
	b = protowire.AppendTag(b, fieldValidator, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
