package storage

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultRetainedCheckouts is the number of signed snapshots a View keeps.
const DefaultRetainedCheckouts = 8

// ErrUnknownCheckout is returned when no snapshot exists for a signed length.
var ErrUnknownCheckout = errors.New("storage: no checkout for signed length")

// View is the ledger's key-value view. Writes only happen through batches;
// Sign pins the current contents as the state at a signed log length so that
// Checkout can serve finality-sensitive reads.
type View struct {
	db Database

	mu       sync.Mutex
	signed   map[uint64]Snapshot
	lengths  []uint64
	retained int
	closed   bool
}

// NewView wraps db. retained bounds how many signed checkouts stay readable;
// values below one use DefaultRetainedCheckouts.
func NewView(db Database, retained int) *View {
	if retained < 1 {
		retained = DefaultRetainedCheckouts
	}
	return &View{
		db:       db,
		signed:   make(map[uint64]Snapshot),
		retained: retained,
	}
}

// Get reads the latest value. A missing key yields (nil, nil).
func (v *View) Get(key []byte) ([]byte, error) {
	value, err := v.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// Keys lists the latest keys under prefix.
func (v *View) Keys(prefix []byte) ([][]byte, error) {
	return v.db.Keys(prefix)
}

// NewBatch opens a write batch whose Flush commits atomically to the database.
func (v *View) NewBatch() *Batch {
	return newBatch(v.db, v.db.Write)
}

// Sign records the current contents as the view at the given signed length.
func (v *View) Sign(length uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fmt.Errorf("storage: view closed")
	}
	if _, ok := v.signed[length]; ok {
		return nil
	}
	snap, err := v.db.Snapshot()
	if err != nil {
		return fmt.Errorf("storage: snapshot at %d: %w", length, err)
	}
	v.signed[length] = snap
	v.lengths = append(v.lengths, length)
	for len(v.lengths) > v.retained {
		oldest := v.lengths[0]
		v.lengths = v.lengths[1:]
		if old, ok := v.signed[oldest]; ok {
			old.Release()
			delete(v.signed, oldest)
		}
	}
	return nil
}

// Checkout returns a reader pinned at the signed length. Missing keys read as
// (nil, nil).
func (v *View) Checkout(length uint64) (Reader, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, ok := v.signed[length]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCheckout, length)
	}
	return checkout{snap: snap}, nil
}

// Close releases every retained snapshot and then the database.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for _, snap := range v.signed {
		snap.Release()
	}
	v.signed = nil
	v.lengths = nil
	v.db.Close()
}

type checkout struct {
	snap Snapshot
}

func (c checkout) Get(key []byte) ([]byte, error) {
	value, err := c.snap.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return value, err
}
