package codec

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"msb/core/balance"
	"msb/core/types"
)

// ErrInvalidRecord is returned when a stored record does not decode.
var ErrInvalidRecord = errors.New("codec: invalid state record")

type storedNodeEntry struct {
	WriterKey [types.WriterKeySize]byte
	IsWriter  bool
	IsIndexer bool
	Balance   []byte
	License   uint64
}

type storedAdminEntry struct {
	Address   string
	WriterKey [types.WriterKeySize]byte
}

type storedDeployment struct {
	TxHash    []byte
	Requester string
	Channel   []byte
}

func EncodeNodeEntry(entry *types.NodeEntry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil node entry", ErrInvalidRecord)
	}
	return rlp.EncodeToBytes(storedNodeEntry{
		WriterKey: entry.WriterKey,
		IsWriter:  entry.IsWriter,
		IsIndexer: entry.IsIndexer,
		Balance:   entry.Balance.Bytes(),
		License:   entry.License,
	})
}

func DecodeNodeEntry(data []byte) (*types.NodeEntry, error) {
	var stored storedNodeEntry
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: node entry: %v", ErrInvalidRecord, err)
	}
	bal, err := balance.FromBuffer(stored.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: node entry: %v", ErrInvalidRecord, err)
	}
	if stored.IsIndexer && !stored.IsWriter {
		return nil, fmt.Errorf("%w: node entry: indexer without writer role", ErrInvalidRecord)
	}
	return &types.NodeEntry{
		WriterKey: stored.WriterKey,
		IsWriter:  stored.IsWriter,
		IsIndexer: stored.IsIndexer,
		Balance:   bal,
		License:   stored.License,
	}, nil
}

func EncodeAdminEntry(entry *types.AdminEntry) ([]byte, error) {
	if entry == nil || entry.Address == "" {
		return nil, fmt.Errorf("%w: empty admin entry", ErrInvalidRecord)
	}
	return rlp.EncodeToBytes(storedAdminEntry{Address: entry.Address, WriterKey: entry.WriterKey})
}

func DecodeAdminEntry(data []byte) (*types.AdminEntry, error) {
	var stored storedAdminEntry
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: admin entry: %v", ErrInvalidRecord, err)
	}
	if stored.Address == "" {
		return nil, fmt.Errorf("%w: admin entry without address", ErrInvalidRecord)
	}
	return &types.AdminEntry{Address: stored.Address, WriterKey: stored.WriterKey}, nil
}

// EncodeIndexers stores the ordered indexer address list.
func EncodeIndexers(addresses []string) ([]byte, error) {
	if addresses == nil {
		addresses = []string{}
	}
	return rlp.EncodeToBytes(addresses)
}

// DecodeIndexers rejects lists with duplicate members.
func DecodeIndexers(data []byte) ([]string, error) {
	var addresses []string
	if err := rlp.DecodeBytes(data, &addresses); err != nil {
		return nil, fmt.Errorf("%w: indexers: %v", ErrInvalidRecord, err)
	}
	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%w: indexers: duplicate %s", ErrInvalidRecord, addr)
		}
		seen[addr] = struct{}{}
	}
	return addresses, nil
}

func EncodeDeployment(d *types.Deployment) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil deployment", ErrInvalidRecord)
	}
	return rlp.EncodeToBytes(storedDeployment{TxHash: d.TxHash, Requester: d.Requester, Channel: d.Channel})
}

func DecodeDeployment(data []byte) (*types.Deployment, error) {
	var stored storedDeployment
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: deployment: %v", ErrInvalidRecord, err)
	}
	return &types.Deployment{TxHash: stored.TxHash, Requester: stored.Requester, Channel: stored.Channel}, nil
}

// EncodeOwner stores the address a writer key is registered to.
func EncodeOwner(address string) ([]byte, error) {
	return rlp.EncodeToBytes(address)
}

func DecodeOwner(data []byte) (string, error) {
	var address string
	if err := rlp.DecodeBytes(data, &address); err != nil {
		return "", fmt.Errorf("%w: writer key owner: %v", ErrInvalidRecord, err)
	}
	return address, nil
}

// EncodeCounter stores the writer list length and the license counter.
func EncodeCounter(n uint64) ([]byte, error) {
	return rlp.EncodeToBytes(n)
}

func DecodeCounter(data []byte) (uint64, error) {
	var n uint64
	if err := rlp.DecodeBytes(data, &n); err != nil {
		return 0, fmt.Errorf("%w: counter: %v", ErrInvalidRecord, err)
	}
	return n, nil
}
