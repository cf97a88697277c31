package messages

import (
	"msb/core/balance"
	"msb/core/types"
	"msb/crypto"
)

// Director knows the fields each operation kind needs and drives a Builder
// accordingly.
type Director struct {
	wallet *crypto.KeyPair
	prefix string
}

func NewDirector(wallet *crypto.KeyPair, prefix string) *Director {
	return &Director{wallet: wallet, prefix: prefix}
}

func (d *Director) builder(t types.OperationType, txv []byte) *Builder {
	return NewBuilder(d.wallet, d.prefix).WithType(t).WithTxValidity(txv)
}

func (d *Director) AddAdmin(txv, writerKey []byte) (*types.Operation, error) {
	return d.builder(types.OperationAddAdmin, txv).WithWriterKey(writerKey).Build()
}

// AdminRecovery asks to move the admin to newWriterKey. It needs a validator
// co-signature before it is appended.
func (d *Director) AdminRecovery(txv, newWriterKey []byte) (*types.Operation, error) {
	return d.builder(types.OperationAdminRecovery, txv).WithWriterKey(newWriterKey).Build()
}

func (d *Director) AddWriter(txv, writerKey []byte) (*types.Operation, error) {
	return d.builder(types.OperationAddWriter, txv).WithWriterKey(writerKey).Build()
}

func (d *Director) RemoveWriter(txv, writerKey []byte) (*types.Operation, error) {
	return d.builder(types.OperationRemoveWriter, txv).WithWriterKey(writerKey).Build()
}

func (d *Director) AppendWhitelist(txv []byte, target string) (*types.Operation, error) {
	return d.builder(types.OperationAppendWhitelist, txv).WithTarget(target).Build()
}

func (d *Director) AddIndexer(txv []byte, target string) (*types.Operation, error) {
	return d.builder(types.OperationAddIndexer, txv).WithTarget(target).Build()
}

func (d *Director) RemoveIndexer(txv []byte, target string) (*types.Operation, error) {
	return d.builder(types.OperationRemoveIndexer, txv).WithTarget(target).Build()
}

func (d *Director) BanValidator(txv []byte, target string) (*types.Operation, error) {
	return d.builder(types.OperationBanValidator, txv).WithTarget(target).Build()
}

func (d *Director) DisableInitialization(txv []byte) (*types.Operation, error) {
	return d.builder(types.OperationDisableInitialization, txv).Build()
}

func (d *Director) BalanceInitialization(txv []byte, target string, amount balance.Balance) (*types.Operation, error) {
	return d.builder(types.OperationBalanceInitialization, txv).WithTarget(target).WithAmount(amount).Build()
}

func (d *Director) BootstrapDeployment(txv, bootstrap, channel []byte) (*types.Operation, error) {
	return d.builder(types.OperationBootstrapDeployment, txv).
		WithBootstrap(bootstrap).
		WithChannel(channel).
		Build()
}

func (d *Director) Tx(txv, invokerWriterKey, contentHash, bootstrap, networkBootstrap []byte) (*types.Operation, error) {
	return d.builder(types.OperationTx, txv).
		WithInvokerWriterKey(invokerWriterKey).
		WithContentHash(contentHash).
		WithBootstrap(bootstrap).
		WithNetworkBootstrap(networkBootstrap).
		Build()
}

func (d *Director) Transfer(txv []byte, recipient string, amount balance.Balance) (*types.Operation, error) {
	return d.builder(types.OperationTransfer, txv).WithRecipient(recipient).WithAmount(amount).Build()
}
