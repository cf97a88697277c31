package apply

import (
	"msb/core/keys"
	"msb/core/types"
)

// applyAddAdmin creates the admin entry at genesis. Only the bootstrap writer
// may do so and only for its own key.
func (e *Engine) applyAddAdmin(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.AdminKeyPayload)
	key, _ := types.WriterKeyFromBytes(p.WriterKey)
	address := tx.op.Address

	existing, err := tx.get(keys.Admin())
	if err != nil {
		return err
	}
	if existing != nil {
		return tx.reject(ReasonAdminExists)
	}
	if tx.entry.Writer != tx.params.Bootstrap {
		return tx.reject(ReasonNotBootstrap)
	}
	if key != tx.params.Bootstrap {
		return tx.reject(ReasonAdminKeyNotBootstrap)
	}
	owner, err := tx.writerKeyOwner(key)
	if err != nil {
		return err
	}
	if owner != "" && owner != address {
		return tx.reject(ReasonWriterKeyExists)
	}

	if err := tx.putAdminEntry(&types.AdminEntry{Address: address, WriterKey: key}); err != nil {
		return err
	}
	node, err := tx.nodeEntryOrNew(address)
	if err != nil {
		return err
	}
	wasWriter := node.IsWriter
	node.WriterKey = key
	node.IsWriter = true
	node.IsIndexer = true
	if err := tx.issueLicense(node); err != nil {
		return err
	}
	if err := tx.putNodeEntry(address, node); err != nil {
		return err
	}
	if err := tx.setWhitelisted(address, true); err != nil {
		return err
	}
	if err := tx.registerWriterKey(key, address); err != nil {
		return err
	}
	if !wasWriter {
		if err := tx.adjustActiveWriters(1); err != nil {
			return err
		}
	}
	// The bootstrap key already indexes the log, so the writer set is left
	// as it is.
	if err := tx.putIndexers([]string{address}); err != nil {
		return err
	}
	return tx.markApplied()
}

// applyAdminRecovery rotates the admin writer key. The lost key cannot append
// any more, so the request reaches the log through an active validator.
func (e *Engine) applyAdminRecovery(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	p := tx.op.Payload.(*types.RoleAccessPayload)
	newKey, _ := types.WriterKeyFromBytes(p.WriterKey)

	admin, err := tx.adminEntry()
	if err != nil {
		return err
	}
	if tx.op.Address != admin.Address {
		return tx.reject(ReasonAdminMismatch)
	}
	owner, err := tx.writerKeyOwner(newKey)
	if err != nil {
		return err
	}
	if owner != "" {
		return tx.reject(ReasonWriterKeyExists)
	}
	oldKey := admin.WriterKey
	if newKey == oldKey {
		return tx.reject(ReasonSameWriterKey)
	}
	oldIndexed, newIndexed, err := tx.indexedKeys(oldKey, newKey)
	if err != nil {
		return err
	}
	if !oldIndexed {
		return tx.reject(ReasonOldKeyNotIndexer)
	}
	if newIndexed {
		return tx.reject(ReasonNewKeyIndexer)
	}

	node, err := tx.nodeEntry(admin.Address)
	if err != nil {
		return err
	}
	if node == nil {
		return tx.reject(ReasonNodeEntryMissing)
	}
	admin.WriterKey = newKey
	if err := tx.putAdminEntry(admin); err != nil {
		return err
	}
	node.WriterKey = newKey
	node.IsWriter = true
	if err := tx.putNodeEntry(admin.Address, node); err != nil {
		return err
	}
	if err := tx.registerWriterKey(newKey, admin.Address); err != nil {
		return err
	}
	if err := tx.chargeFee(); err != nil {
		return err
	}
	tx.removeWriter(oldKey)
	tx.addWriter(newKey, true)
	return tx.markApplied()
}

// indexedKeys reports whether a and b are the writer keys of current indexer
// set members.
func (tx *txn) indexedKeys(a, b types.WriterKey) (bool, bool, error) {
	members, err := tx.indexers()
	if err != nil {
		return false, false, err
	}
	var hasA, hasB bool
	for _, address := range members {
		node, err := tx.nodeEntry(address)
		if err != nil {
			return false, false, err
		}
		if node == nil {
			continue
		}
		hasA = hasA || node.WriterKey == a
		hasB = hasB || node.WriterKey == b
	}
	return hasA, hasB, nil
}

func (e *Engine) applyAppendWhitelist(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	target := tx.op.Payload.(*types.AdminControlPayload).Target
	listed, err := tx.whitelisted(target)
	if err != nil {
		return err
	}
	if listed {
		return tx.reject(ReasonAlreadyWhitelisted)
	}
	node, err := tx.nodeEntryOrNew(target)
	if err != nil {
		return err
	}
	if err := tx.issueLicense(node); err != nil {
		return err
	}
	if err := tx.putNodeEntry(target, node); err != nil {
		return err
	}
	if err := tx.setWhitelisted(target, true); err != nil {
		return err
	}
	return tx.markApplied()
}

func (e *Engine) applyAddIndexer(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	target := tx.op.Payload.(*types.AdminControlPayload).Target
	node, err := tx.nodeEntry(target)
	if err != nil {
		return err
	}
	if node == nil {
		return tx.reject(ReasonNodeEntryMissing)
	}
	if !node.IsWriter {
		return tx.reject(ReasonNotWriter)
	}
	members, err := tx.indexers()
	if err != nil {
		return err
	}
	if node.IsIndexer || indexOf(members, target) >= 0 {
		return tx.reject(ReasonAlreadyIndexer)
	}
	if len(members) >= tx.params.MaxIndexers {
		return tx.reject(ReasonIndexerLimit)
	}

	node.IsIndexer = true
	if err := tx.putNodeEntry(target, node); err != nil {
		return err
	}
	if err := tx.putIndexers(append(members, target)); err != nil {
		return err
	}
	tx.removeWriter(node.WriterKey)
	tx.addWriter(node.WriterKey, true)
	return tx.markApplied()
}

func (e *Engine) applyRemoveIndexer(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	target := tx.op.Payload.(*types.AdminControlPayload).Target
	members, err := tx.indexers()
	if err != nil {
		return err
	}
	pos := indexOf(members, target)
	if pos < 0 {
		return tx.reject(ReasonNotIndexer)
	}
	if len(members) <= 1 {
		return tx.reject(ReasonLastIndexer)
	}
	node, err := tx.nodeEntry(target)
	if err != nil {
		return err
	}
	if node == nil {
		return tx.reject(ReasonNodeEntryMissing)
	}

	node.IsIndexer = false
	if err := tx.putNodeEntry(target, node); err != nil {
		return err
	}
	if err := tx.putIndexers(removeAt(members, pos)); err != nil {
		return err
	}
	tx.removeWriter(node.WriterKey)
	tx.addWriter(node.WriterKey, false)
	return tx.markApplied()
}

// applyBanValidator removes a node from the whitelist and revokes its writer
// role. Indexers have to be demoted first.
func (e *Engine) applyBanValidator(tx *txn) error {
	if err := tx.validate(); err != nil {
		return err
	}
	target := tx.op.Payload.(*types.AdminControlPayload).Target
	listed, err := tx.whitelisted(target)
	if err != nil {
		return err
	}
	if !listed {
		return tx.reject(ReasonNotWhitelisted)
	}
	members, err := tx.indexers()
	if err != nil {
		return err
	}
	node, err := tx.nodeEntry(target)
	if err != nil {
		return err
	}
	if indexOf(members, target) >= 0 || (node != nil && node.IsIndexer) {
		return tx.reject(ReasonCannotBanIndexer)
	}

	if err := tx.setWhitelisted(target, false); err != nil {
		return err
	}
	if node != nil && node.IsWriter {
		if err := tx.demoteWriter(target, node); err != nil {
			return err
		}
	}
	return tx.markApplied()
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func removeAt(list []string, i int) []string {
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
