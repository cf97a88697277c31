package messages

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"msb/core/balance"
	"msb/core/codec"
	"msb/core/types"
	"msb/crypto"
)

func newWallet(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	return kp
}

func TestBuildSignsRequesterHash(t *testing.T) {
	wallet := newWallet(t)
	recipient := newWallet(t)
	txv := bytes.Repeat([]byte{9}, 32)

	op, err := NewDirector(wallet, crypto.DefaultAddressPrefix).Transfer(txv, recipient.Address(), balance.FromUnits(2))
	require.NoError(t, err)
	require.Equal(t, types.OperationTransfer, op.Type)
	require.Equal(t, wallet.Address(), op.Address)

	intent := op.Payload.RequesterIntent()
	require.Equal(t, txv, intent.TxValidity)
	require.Len(t, intent.Nonce, crypto.NonceSize)

	hash, err := codec.RequesterHash(op, crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	require.Equal(t, hash[:], intent.TxHash)
	require.True(t, crypto.Verify(wallet.PublicKey(), intent.TxHash, intent.Signature))
}

func TestBuildUsesFreshNonces(t *testing.T) {
	wallet := newWallet(t)
	d := NewDirector(wallet, crypto.DefaultAddressPrefix)
	txv := bytes.Repeat([]byte{1}, 32)
	a, err := d.DisableInitialization(txv)
	require.NoError(t, err)
	b, err := d.DisableInitialization(txv)
	require.NoError(t, err)
	require.NotEqual(t, a.Payload.RequesterIntent().TxHash, b.Payload.RequesterIntent().TxHash)

	fixed := bytes.Repeat([]byte{2}, 32)
	c, err := NewBuilder(wallet, "").WithType(types.OperationDisableInitialization).WithTxValidity(txv).WithNonce(fixed).Build()
	require.NoError(t, err)
	d2, err := NewBuilder(wallet, "").WithType(types.OperationDisableInitialization).WithTxValidity(txv).WithNonce(fixed).Build()
	require.NoError(t, err)
	require.Equal(t, c.Payload.RequesterIntent().TxHash, d2.Payload.RequesterIntent().TxHash)
}

func TestBuildErrors(t *testing.T) {
	_, err := NewBuilder(nil, "").WithType(types.OperationTransfer).Build()
	require.ErrorIs(t, err, ErrMissingWallet)

	_, err = NewBuilder(newWallet(t), "").Build()
	require.ErrorIs(t, err, ErrMissingType)

	// Missing txv leaves a nil message part.
	_, err = NewBuilder(newWallet(t), "").WithType(types.OperationDisableInitialization).Build()
	require.True(t, errors.Is(err, codec.ErrMissingPart))
}

func TestCompleteWithValidator(t *testing.T) {
	wallet := newWallet(t)
	validator := newWallet(t)
	txv := bytes.Repeat([]byte{3}, 32)
	writerKey := bytes.Repeat([]byte{4}, 32)

	op, err := NewDirector(wallet, crypto.DefaultAddressPrefix).AddWriter(txv, writerKey)
	require.NoError(t, err)
	require.NoError(t, CompleteWithValidator(op, validator))

	v := op.Payload.(*types.RoleAccessPayload).Validator
	require.True(t, v.Complete())
	require.Equal(t, validator.Address(), v.Address)
	hash, err := codec.ValidatorHash(op.Payload.RequesterIntent().TxHash, validator.PublicKey(), v.Nonce)
	require.NoError(t, err)
	require.True(t, crypto.Verify(validator.PublicKey(), hash[:], v.Signature))

	admin, err := NewDirector(wallet, crypto.DefaultAddressPrefix).AddAdmin(txv, writerKey)
	require.NoError(t, err)
	require.ErrorIs(t, CompleteWithValidator(admin, validator), ErrNotCoSigned)
	require.ErrorIs(t, CompleteWithValidator(op, nil), ErrMissingWallet)
}

func TestDirectorCoversEveryOperation(t *testing.T) {
	wallet := newWallet(t)
	target := newWallet(t).Address()
	d := NewDirector(wallet, crypto.DefaultAddressPrefix)
	txv := bytes.Repeat([]byte{5}, 32)
	key := bytes.Repeat([]byte{6}, 32)

	builders := map[types.OperationType]func() (*types.Operation, error){
		types.OperationAddAdmin:              func() (*types.Operation, error) { return d.AddAdmin(txv, key) },
		types.OperationAdminRecovery:         func() (*types.Operation, error) { return d.AdminRecovery(txv, key) },
		types.OperationAddWriter:             func() (*types.Operation, error) { return d.AddWriter(txv, key) },
		types.OperationRemoveWriter:          func() (*types.Operation, error) { return d.RemoveWriter(txv, key) },
		types.OperationAppendWhitelist:       func() (*types.Operation, error) { return d.AppendWhitelist(txv, target) },
		types.OperationAddIndexer:            func() (*types.Operation, error) { return d.AddIndexer(txv, target) },
		types.OperationRemoveIndexer:         func() (*types.Operation, error) { return d.RemoveIndexer(txv, target) },
		types.OperationBanValidator:          func() (*types.Operation, error) { return d.BanValidator(txv, target) },
		types.OperationDisableInitialization: func() (*types.Operation, error) { return d.DisableInitialization(txv) },
		types.OperationBalanceInitialization: func() (*types.Operation, error) {
			return d.BalanceInitialization(txv, target, balance.FromUnits(1))
		},
		types.OperationBootstrapDeployment: func() (*types.Operation, error) { return d.BootstrapDeployment(txv, key, key) },
		types.OperationTx:                  func() (*types.Operation, error) { return d.Tx(txv, key, key, key, key) },
		types.OperationTransfer:            func() (*types.Operation, error) { return d.Transfer(txv, target, balance.Zero) },
	}
	for want, build := range builders {
		op, err := build()
		require.NoError(t, err, want.String())
		require.Equal(t, want, op.Type)
		raw, err := codec.EncodeOperation(op)
		require.NoError(t, err)
		require.NotNil(t, codec.DecodeOperation(raw))
	}
}
