package types

import "msb/core/balance"

// WriterKeySize is the length of a log writer key.
const WriterKeySize = 32

// WriterKey identifies a device allowed to append to the log. The zero value
// means "no writer key".
type WriterKey [WriterKeySize]byte

func (k WriterKey) IsZero() bool {
	return k == WriterKey{}
}

// WriterKeyFromBytes copies b into a WriterKey; ok is false for wrong lengths.
func WriterKeyFromBytes(b []byte) (WriterKey, bool) {
	var k WriterKey
	if len(b) != WriterKeySize {
		return k, false
	}
	copy(k[:], b)
	return k, true
}

// NodeEntry is the per-address record. IsIndexer implies IsWriter.
type NodeEntry struct {
	WriterKey WriterKey
	IsWriter  bool
	IsIndexer bool
	Balance   balance.Balance
	License   uint64
}

// AdminEntry is the singleton admin record.
type AdminEntry struct {
	Address   string
	WriterKey WriterKey
}

// Deployment records a registered sub-network bootstrap.
type Deployment struct {
	TxHash    []byte
	Requester string
	Channel   []byte
}
