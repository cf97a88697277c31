// Package state is the ledger facade. It owns the operation log and the
// view, registers the apply engine with the log and serves typed reads.
package state

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"msb/core/apply"
	"msb/core/codec"
	"msb/core/keys"
	"msb/core/types"
	"msb/storage"
)

// Log is the replicated log the facade appends to.
type Log interface {
	Open(ctx context.Context, applier apply.Applier) error
	Ready(ctx context.Context) error
	Append(ctx context.Context, records ...[]byte) error
	LocalKey() types.WriterKey
	Writable() bool
	IsIndexer() bool
	SignedLength() uint64
	SequenceState() ([]byte, error)
	Close() error
}

// View is the key-value view the engine writes through.
type View interface {
	Get(key []byte) ([]byte, error)
	NewBatch() *storage.Batch
	Sign(length uint64) error
	Checkout(length uint64) (storage.Reader, error)
	Close()
}

// receiptHistory bounds how many recent receipts are kept for inspection.
const receiptHistory = 256

type State struct {
	log    Log
	view   View
	engine *apply.Engine
	logger *slog.Logger

	mu       sync.Mutex
	receipts []apply.Receipt
}

func New(log Log, view View, engine *apply.Engine, logger *slog.Logger) (*State, error) {
	if engine == nil {
		return nil, errors.New("state: engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		log:    log,
		view:   view,
		engine: engine,
		logger: logger.With(slog.String("component", "state")),
	}, nil
}

// Open registers the engine with the log and waits until the log is ready.
func (s *State) Open(ctx context.Context) error {
	if s.log == nil || s.view == nil {
		return errors.New("state: log and view are required")
	}
	if err := s.log.Open(ctx, s); err != nil {
		return fmt.Errorf("state: open log: %w", err)
	}
	return s.log.Ready(ctx)
}

// Close releases the log and then the view. Either may be absent.
func (s *State) Close() error {
	var err error
	if s.log != nil {
		err = s.log.Close()
	}
	if s.view != nil {
		s.view.Close()
	}
	return err
}

// Apply implements apply.Applier.
func (s *State) Apply(ctx context.Context, entries []apply.Entry, host apply.Host) error {
	receipts, err := s.engine.Apply(ctx, entries, s.view, host)
	s.mu.Lock()
	s.receipts = append(s.receipts, receipts...)
	if over := len(s.receipts) - receiptHistory; over > 0 {
		s.receipts = append([]apply.Receipt(nil), s.receipts[over:]...)
	}
	s.mu.Unlock()
	return err
}

// Sign implements apply.Applier.
func (s *State) Sign(length uint64) error {
	return s.view.Sign(length)
}

// Receipts returns the most recent apply receipts, oldest first.
func (s *State) Receipts() []apply.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apply.Receipt(nil), s.receipts...)
}

// Append submits encoded operations to the log. Records whose tx hash is
// already committed are dropped here rather than appended again. Whether an
// operation is accepted is only observable by reading state afterwards.
func (s *State) Append(ctx context.Context, records ...[]byte) error {
	pending := make([][]byte, 0, len(records))
	for _, record := range records {
		if op := codec.DecodeOperation(record); op != nil && op.Payload != nil {
			tx := op.Payload.RequesterIntent().TxHash
			if len(tx) > 0 {
				applied, err := s.view.Get(keys.Applied(tx))
				if err != nil {
					return fmt.Errorf("state: read applied marker: %w", err)
				}
				if applied != nil {
					s.logger.Info("operation already applied, not appending",
						slog.String("operation", op.Type.String()),
						slog.String("tx", hex.EncodeToString(tx)))
					continue
				}
			}
		}
		pending = append(pending, record)
	}
	if len(pending) == 0 {
		return nil
	}
	return s.log.Append(ctx, pending...)
}

// Get reads the latest value of key; missing keys yield nil.
func (s *State) Get(key []byte) ([]byte, error) {
	return s.view.Get(key)
}

// GetSigned reads key as of the last signed length. Before anything is signed
// every key reads as missing.
func (s *State) GetSigned(key []byte) ([]byte, error) {
	length := s.log.SignedLength()
	if length == 0 {
		return nil, nil
	}
	reader, err := s.view.Checkout(length)
	if err != nil {
		return nil, err
	}
	return reader.Get(key)
}

func (s *State) IsWritable() bool {
	return s.log.Writable()
}

func (s *State) IsIndexer() bool {
	return s.log.IsIndexer()
}

// SignedLength is the log length the last indexer confirmation covers.
func (s *State) SignedLength() uint64 {
	return s.log.SignedLength()
}

func (s *State) LocalKey() types.WriterKey {
	return s.log.LocalKey()
}

func (s *State) Params() apply.Params {
	return s.engine.Params()
}

// TxValidity is the validity token operations built now must carry.
func (s *State) TxValidity() ([]byte, error) {
	seq, err := s.log.SequenceState()
	if err != nil {
		return nil, fmt.Errorf("state: sequence state: %w", err)
	}
	return codec.ValidityToken(seq), nil
}
