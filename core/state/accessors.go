package state

import (
	"fmt"

	"msb/core/codec"
	"msb/core/keys"
	"msb/core/types"
)

type getter func(key []byte) ([]byte, error)

func (s *State) NodeEntry(address string) (*types.NodeEntry, error) {
	return nodeEntry(s.Get, address)
}

// SignedNodeEntry reads the node entry as of the last signed length.
func (s *State) SignedNodeEntry(address string) (*types.NodeEntry, error) {
	return nodeEntry(s.GetSigned, address)
}

func nodeEntry(get getter, address string) (*types.NodeEntry, error) {
	raw, err := get(keys.Node(address))
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeNodeEntry(raw)
}

func (s *State) AdminEntry() (*types.AdminEntry, error) {
	raw, err := s.Get(keys.Admin())
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeAdminEntry(raw)
}

func (s *State) Indexers() ([]string, error) {
	raw, err := s.Get(keys.Indexers())
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeIndexers(raw)
}

func (s *State) IsWhitelisted(address string) (bool, error) {
	raw, err := s.Get(keys.Whitelist(address))
	return raw != nil, err
}

// Transaction returns the committed operation recorded under txHash.
func (s *State) Transaction(txHash []byte) (*types.Operation, error) {
	raw, err := s.Get(keys.Applied(txHash))
	if err != nil || raw == nil {
		return nil, err
	}
	op := codec.DecodeOperation(raw)
	if op == nil {
		return nil, fmt.Errorf("state: undecodable record under %x", txHash)
	}
	return op, nil
}

func (s *State) Deployment(bootstrap []byte) (*types.Deployment, error) {
	raw, err := s.Get(keys.Deployment(bootstrap))
	if err != nil || raw == nil {
		return nil, err
	}
	return codec.DecodeDeployment(raw)
}

func (s *State) IsInitializationDisabled() (bool, error) {
	raw, err := s.Get(keys.InitializationDisabled())
	return raw != nil, err
}

// WriterKeyOwner returns the address key is registered to, or "".
func (s *State) WriterKeyOwner(key types.WriterKey) (string, error) {
	raw, err := s.Get(keys.WriterKeyOwner(key))
	if err != nil || raw == nil {
		return "", err
	}
	return codec.DecodeOwner(raw)
}

// WriterKeys lists every writer key ever granted, in grant order.
func (s *State) WriterKeys() ([]types.WriterKey, error) {
	length, err := s.counter(keys.WritersLength())
	if err != nil {
		return nil, err
	}
	out := make([]types.WriterKey, 0, length)
	for i := uint64(0); i < length; i++ {
		raw, err := s.Get(keys.WritersIndex(i))
		if err != nil {
			return nil, err
		}
		key, ok := types.WriterKeyFromBytes(raw)
		if !ok {
			return nil, fmt.Errorf("state: writer list entry %d is malformed", i)
		}
		out = append(out, key)
	}
	return out, nil
}

// ActiveWriters counts addresses currently holding the writer role.
func (s *State) ActiveWriters() (uint64, error) {
	return s.counter(keys.ActiveWriters())
}

// LicenseCount is the last issued license number.
func (s *State) LicenseCount() (uint64, error) {
	return s.counter(keys.LicensesLength())
}

func (s *State) counter(key []byte) (uint64, error) {
	raw, err := s.Get(key)
	if err != nil || raw == nil {
		return 0, err
	}
	return codec.DecodeCounter(raw)
}
