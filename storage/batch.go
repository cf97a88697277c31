package storage

import (
	"errors"
	"fmt"
)

// ErrBatchClosed is returned when a closed batch is used.
var ErrBatchClosed = errors.New("storage: batch closed")

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Batch buffers writes on top of a parent reader. Reads observe buffered
// writes first. Flush hands the buffered ops to the sink in insertion order;
// nothing reaches the parent before Flush.
//
// Batch is not safe for concurrent use.
type Batch struct {
	parent Reader
	sink   func([]Op) error
	writes map[string]*pendingWrite
	order  []string
	closed bool
}

func newBatch(parent Reader, sink func([]Op) error) *Batch {
	return &Batch{
		parent: parent,
		sink:   sink,
		writes: make(map[string]*pendingWrite),
	}
}

// Get returns the buffered value for key, falling back to the parent. A missing
// key yields (nil, nil).
func (b *Batch) Get(key []byte) ([]byte, error) {
	if b.closed {
		return nil, ErrBatchClosed
	}
	if w, ok := b.writes[string(key)]; ok {
		if w.deleted {
			return nil, nil
		}
		return append([]byte(nil), w.value...), nil
	}
	value, err := b.parent.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *Batch) Put(key, value []byte) error {
	if b.closed {
		return ErrBatchClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("storage: empty key")
	}
	b.record(string(key), &pendingWrite{value: append([]byte(nil), value...)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.record(string(key), &pendingWrite{deleted: true})
	return nil
}

func (b *Batch) record(key string, w *pendingWrite) {
	if _, ok := b.writes[key]; !ok {
		b.order = append(b.order, key)
	}
	b.writes[key] = w
}

// Len reports the number of distinct keys touched.
func (b *Batch) Len() int {
	return len(b.order)
}

// Child opens a nested batch whose Flush lands in b rather than in the
// database. Discarding the child (Close without Flush) leaves b untouched.
func (b *Batch) Child() *Batch {
	return newBatch(b, b.merge)
}

func (b *Batch) merge(ops []Op) error {
	for _, op := range ops {
		var err error
		if op.Delete {
			err = b.Delete(op.Key)
		} else {
			err = b.Put(op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Flush writes all buffered ops to the sink and clears the buffer.
func (b *Batch) Flush() error {
	if b.closed {
		return ErrBatchClosed
	}
	if len(b.order) == 0 {
		return nil
	}
	ops := make([]Op, 0, len(b.order))
	for _, key := range b.order {
		w := b.writes[key]
		ops = append(ops, Op{Key: []byte(key), Value: w.value, Delete: w.deleted})
	}
	if err := b.sink(ops); err != nil {
		return err
	}
	b.writes = make(map[string]*pendingWrite)
	b.order = nil
	return nil
}

// Close discards anything not yet flushed.
func (b *Batch) Close() {
	b.closed = true
	b.writes = nil
	b.order = nil
}
