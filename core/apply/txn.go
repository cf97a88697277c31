package apply

import (
	"fmt"

	"msb/core/codec"
	"msb/core/keys"
	"msb/core/types"
	"msb/storage"
)

var presentMarker = []byte{1}

// txn is the working context of one log entry. All reads go through its
// batch so every stage observes the writes of the stages before it, and
// nothing reaches the enclosing Apply batch unless commit is called.
type txn struct {
	params *Params
	batch  *storage.Batch
	host   Host
	entry  Entry
	op     *types.Operation

	// Filled in by the validation stages.
	intent       *types.Intent
	requesterKey []byte
	validator    *types.ValidatorSignature
	validatorKey []byte

	changes []writerChange
}

func newTxn(e *Engine, batch *storage.Batch, host Host, entry Entry, op *types.Operation) *txn {
	return &txn{
		params: &e.params,
		batch:  batch,
		host:   host,
		entry:  entry,
		op:     op,
	}
}

func (tx *txn) commit() error {
	return tx.batch.Flush()
}

func (tx *txn) discard() {
	tx.batch.Close()
}

func (tx *txn) reject(reason RejectReason) error {
	return reject(tx.op.Type, reason)
}

// fail rejects with reason and keeps err for the log.
func (tx *txn) fail(reason RejectReason, err error) error {
	return &RejectionError{Operation: tx.op.Type, Reason: reason, Err: err}
}

func (tx *txn) get(key []byte) ([]byte, error) {
	value, err := tx.batch.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return value, nil
}

func (tx *txn) put(key, value []byte) error {
	if err := tx.batch.Put(key, value); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// nodeEntry loads the entry of address; a missing entry yields (nil, nil).
func (tx *txn) nodeEntry(address string) (*types.NodeEntry, error) {
	raw, err := tx.get(keys.Node(address))
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeNodeEntry(raw)
}

// nodeEntryOrNew loads the entry of address or starts an empty one.
func (tx *txn) nodeEntryOrNew(address string) (*types.NodeEntry, error) {
	entry, err := tx.nodeEntry(address)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = &types.NodeEntry{}
	}
	return entry, nil
}

func (tx *txn) putNodeEntry(address string, entry *types.NodeEntry) error {
	raw, err := codec.EncodeNodeEntry(entry)
	if err != nil {
		return err
	}
	return tx.put(keys.Node(address), raw)
}

// adminEntry loads the admin entry, rejecting when it is absent or corrupt.
func (tx *txn) adminEntry() (*types.AdminEntry, error) {
	raw, err := tx.get(keys.Admin())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, tx.reject(ReasonInvalidAdminEntry)
	}
	admin, err := codec.DecodeAdminEntry(raw)
	if err != nil {
		return nil, tx.fail(ReasonDecodeAdminEntry, err)
	}
	return admin, nil
}

func (tx *txn) putAdminEntry(admin *types.AdminEntry) error {
	raw, err := codec.EncodeAdminEntry(admin)
	if err != nil {
		return err
	}
	return tx.put(keys.Admin(), raw)
}

func (tx *txn) indexers() ([]string, error) {
	raw, err := tx.get(keys.Indexers())
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeIndexers(raw)
}

func (tx *txn) putIndexers(addresses []string) error {
	raw, err := codec.EncodeIndexers(addresses)
	if err != nil {
		return err
	}
	return tx.put(keys.Indexers(), raw)
}

func (tx *txn) whitelisted(address string) (bool, error) {
	raw, err := tx.get(keys.Whitelist(address))
	return raw != nil, err
}

func (tx *txn) setWhitelisted(address string, on bool) error {
	if on {
		return tx.put(keys.Whitelist(address), presentMarker)
	}
	if err := tx.batch.Delete(keys.Whitelist(address)); err != nil {
		return fmt.Errorf("delete whitelist %s: %w", address, err)
	}
	return nil
}

// writerKeyOwner returns the address key was first granted to, or "".
func (tx *txn) writerKeyOwner(key types.WriterKey) (string, error) {
	raw, err := tx.get(keys.WriterKeyOwner(key))
	if err != nil || raw == nil {
		return "", err
	}
	return codec.DecodeOwner(raw)
}

// registerWriterKey binds key to address and appends it to the writer list.
// A key already bound to address is only appended.
func (tx *txn) registerWriterKey(key types.WriterKey, address string) error {
	owner, err := tx.writerKeyOwner(key)
	if err != nil {
		return err
	}
	if owner == "" {
		raw, err := codec.EncodeOwner(address)
		if err != nil {
			return err
		}
		if err := tx.put(keys.WriterKeyOwner(key), raw); err != nil {
			return err
		}
	}
	length, err := tx.counter(keys.WritersLength())
	if err != nil {
		return err
	}
	if err := tx.put(keys.WritersIndex(length), key[:]); err != nil {
		return err
	}
	return tx.setCounter(keys.WritersLength(), length+1)
}

func (tx *txn) counter(key []byte) (uint64, error) {
	raw, err := tx.get(key)
	if err != nil || raw == nil {
		return 0, err
	}
	return codec.DecodeCounter(raw)
}

func (tx *txn) setCounter(key []byte, n uint64) error {
	raw, err := codec.EncodeCounter(n)
	if err != nil {
		return err
	}
	return tx.put(key, raw)
}

// issueLicense assigns the next license number to entry if it has none.
func (tx *txn) issueLicense(entry *types.NodeEntry) error {
	if entry.License != 0 {
		return nil
	}
	last, err := tx.counter(keys.LicensesLength())
	if err != nil {
		return err
	}
	entry.License = last + 1
	return tx.setCounter(keys.LicensesLength(), entry.License)
}

func (tx *txn) activeWriters() (uint64, error) {
	return tx.counter(keys.ActiveWriters())
}

func (tx *txn) adjustActiveWriters(delta int) error {
	n, err := tx.activeWriters()
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		n += uint64(delta)
	case uint64(-delta) > n:
		n = 0
	default:
		n -= uint64(-delta)
	}
	return tx.setCounter(keys.ActiveWriters(), n)
}

func (tx *txn) initializationDisabled() (bool, error) {
	raw, err := tx.get(keys.InitializationDisabled())
	return raw != nil, err
}

func (tx *txn) deployment(bootstrap []byte) (*types.Deployment, error) {
	raw, err := tx.get(keys.Deployment(bootstrap))
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeDeployment(raw)
}

func (tx *txn) putDeployment(bootstrap []byte, d *types.Deployment) error {
	raw, err := codec.EncodeDeployment(d)
	if err != nil {
		return err
	}
	return tx.put(keys.Deployment(bootstrap), raw)
}

func (tx *txn) alreadyApplied() (bool, error) {
	raw, err := tx.get(keys.Applied(tx.intent.TxHash))
	return raw != nil, err
}

// markApplied stores the operation record under its message hash.
func (tx *txn) markApplied() error {
	return tx.put(keys.Applied(tx.intent.TxHash), tx.entry.Value)
}

func (tx *txn) addWriter(key types.WriterKey, indexer bool) {
	tx.changes = append(tx.changes, writerChange{key: key, indexer: indexer})
}

func (tx *txn) removeWriter(key types.WriterKey) {
	tx.changes = append(tx.changes, writerChange{key: key, remove: true})
}
