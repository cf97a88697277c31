package apply

import (
	"msb/core/codec"
	"msb/core/keys"
	"msb/core/types"
)

// applyAddWriter grants the writer role to a whitelisted requester under the
// writer key it asked for.
func (e *Engine) applyAddWriter(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.RoleAccessPayload)
	key, _ := types.WriterKeyFromBytes(p.WriterKey)
	address := tx.op.Address

	listed, err := tx.whitelisted(address)
	if err != nil {
		return err
	}
	if !listed {
		return tx.reject(ReasonNotWhitelisted)
	}
	node, err := tx.nodeEntry(address)
	if err != nil {
		return err
	}
	if node == nil {
		return tx.reject(ReasonNodeEntryMissing)
	}
	if node.IsWriter {
		return tx.reject(ReasonAlreadyWriter)
	}
	owner, err := tx.writerKeyOwner(key)
	if err != nil {
		return err
	}
	if owner != "" && owner != address {
		return tx.reject(ReasonWriterKeyExists)
	}
	if tx.params.MaxWriters > 0 {
		active, err := tx.activeWriters()
		if err != nil {
			return err
		}
		if active >= uint64(tx.params.MaxWriters) {
			return tx.reject(ReasonWriterLimit)
		}
	}

	node.WriterKey = key
	node.IsWriter = true
	if err := tx.putNodeEntry(address, node); err != nil {
		return err
	}
	if err := tx.registerWriterKey(key, address); err != nil {
		return err
	}
	if err := tx.adjustActiveWriters(1); err != nil {
		return err
	}
	if err := tx.chargeFee(); err != nil {
		return err
	}
	tx.addWriter(key, false)
	return tx.markApplied()
}

// applyRemoveWriter lets a writer give up its role. The admin keeps its role
// and the last indexer cannot leave.
func (e *Engine) applyRemoveWriter(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.RoleAccessPayload)
	key, _ := types.WriterKeyFromBytes(p.WriterKey)
	address := tx.op.Address

	node, err := tx.nodeEntry(address)
	if err != nil {
		return err
	}
	if node == nil {
		return tx.reject(ReasonNodeEntryMissing)
	}
	if !node.IsWriter {
		return tx.reject(ReasonNotWriter)
	}
	if node.WriterKey != key {
		return tx.reject(ReasonWriterKeyMismatch)
	}
	raw, err := tx.get(keys.Admin())
	if err != nil {
		return err
	}
	if raw != nil {
		admin, err := codec.DecodeAdminEntry(raw)
		if err != nil {
			return tx.fail(ReasonDecodeAdminEntry, err)
		}
		if admin.Address == address {
			return tx.reject(ReasonAdminCannotBeRemoved)
		}
	}
	if node.IsIndexer {
		members, err := tx.indexers()
		if err != nil {
			return err
		}
		if len(members) <= 1 {
			return tx.reject(ReasonLastIndexer)
		}
	}

	if err := tx.demoteWriter(address, node); err != nil {
		return err
	}
	if err := tx.chargeFee(); err != nil {
		return err
	}
	return tx.markApplied()
}

// demoteWriter clears the writer and indexer roles of address and drops its
// key from the writer set. The key stays registered to address.
func (tx *txn) demoteWriter(address string, node *types.NodeEntry) error {
	if node.IsIndexer {
		members, err := tx.indexers()
		if err != nil {
			return err
		}
		if pos := indexOf(members, address); pos >= 0 {
			if err := tx.putIndexers(removeAt(members, pos)); err != nil {
				return err
			}
		}
	}
	key := node.WriterKey
	node.IsWriter = false
	node.IsIndexer = false
	node.WriterKey = types.WriterKey{}
	if err := tx.putNodeEntry(address, node); err != nil {
		return err
	}
	if err := tx.adjustActiveWriters(-1); err != nil {
		return err
	}
	if !key.IsZero() {
		tx.removeWriter(key)
	}
	return nil
}
