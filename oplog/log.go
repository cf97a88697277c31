// Package oplog is an in-process, single-node linearized operation log. It
// keeps the writer set, delivers appended entries to an apply callback in
// order and tracks the signed length indexers confirm.
package oplog

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"msb/core/apply"
	"msb/core/types"
	"msb/storage"
)

var (
	ErrClosed      = errors.New("oplog: closed")
	ErrNotOpen     = errors.New("oplog: not open")
	ErrNotWritable = errors.New("oplog: writer key is not in the writer set")
)

var (
	metaLength   = []byte("meta/length")
	metaApplied  = []byte("meta/applied")
	metaSigned   = []byte("meta/signed")
	metaEpoch    = []byte("meta/epoch")
	metaLocalKey = []byte("meta/local-key")
	writerPrefix = []byte("writer/")
	entryPrefix  = []byte("entry/")
)

// Options configure a Log. A zero Bootstrap makes the local key the
// bootstrap of a fresh log; a zero LocalKey is generated once and persisted.
type Options struct {
	Bootstrap types.WriterKey
	LocalKey  types.WriterKey
	Logger    *slog.Logger
}

type storedEntry struct {
	Writer [types.WriterKeySize]byte
	Value  []byte
}

// Log is safe for concurrent use. Appends are serialised and every append
// delivers the pending entries before it returns.
type Log struct {
	db     storage.Database
	logger *slog.Logger

	mu        sync.Mutex
	applier   apply.Applier
	bootstrap types.WriterKey
	localKey  types.WriterKey
	writers   map[types.WriterKey]bool
	epoch     uint64
	length    uint64
	applied   uint64
	signed    uint64
	ready     chan struct{}
	closed    bool
}

// New loads the log stored in db, initialising it on first use.
func New(db storage.Database, opts Options) (*Log, error) {
	if db == nil {
		return nil, errors.New("oplog: database is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		db:      db,
		logger:  logger.With(slog.String("component", "oplog")),
		writers: make(map[types.WriterKey]bool),
		ready:   make(chan struct{}),
	}
	if err := l.load(opts); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) load(opts Options) error {
	var err error
	if l.localKey, err = l.loadLocalKey(opts.LocalKey); err != nil {
		return err
	}
	for _, c := range []struct {
		key []byte
		dst *uint64
	}{
		{metaLength, &l.length},
		{metaApplied, &l.applied},
		{metaSigned, &l.signed},
		{metaEpoch, &l.epoch},
	} {
		if *c.dst, err = l.readCounter(c.key); err != nil {
			return err
		}
	}

	keys, err := l.db.Keys(writerPrefix)
	if err != nil {
		return fmt.Errorf("oplog: list writers: %w", err)
	}
	for _, k := range keys {
		raw, err := hex.DecodeString(string(k[len(writerPrefix):]))
		if err != nil {
			return fmt.Errorf("oplog: writer key %q: %w", k, err)
		}
		key, ok := types.WriterKeyFromBytes(raw)
		if !ok {
			return fmt.Errorf("oplog: writer key %q has wrong size", k)
		}
		flag, err := l.db.Get(k)
		if err != nil {
			return fmt.Errorf("oplog: read writer %q: %w", k, err)
		}
		l.writers[key] = len(flag) == 1 && flag[0] == 1
	}

	l.bootstrap = opts.Bootstrap
	if l.bootstrap.IsZero() {
		l.bootstrap = l.localKey
	}
	if len(l.writers) == 0 && l.length == 0 {
		l.writers[l.bootstrap] = true
		return l.persistMeta()
	}
	return nil
}

func (l *Log) loadLocalKey(want types.WriterKey) (types.WriterKey, error) {
	raw, err := l.db.Get(metaLocalKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.WriterKey{}, fmt.Errorf("oplog: read local key: %w", err)
	}
	if stored, ok := types.WriterKeyFromBytes(raw); ok {
		if !want.IsZero() && want != stored {
			return types.WriterKey{}, fmt.Errorf("oplog: local key %x does not match stored key %x", want[:], stored[:])
		}
		return stored, nil
	}
	key := want
	if key.IsZero() {
		if _, err := rand.Read(key[:]); err != nil {
			return types.WriterKey{}, fmt.Errorf("oplog: generate local key: %w", err)
		}
	}
	if err := l.db.Put(metaLocalKey, key[:]); err != nil {
		return types.WriterKey{}, fmt.Errorf("oplog: persist local key: %w", err)
	}
	return key, nil
}

// Open registers applier, delivers any entries left pending by a previous
// run and marks the log ready.
func (l *Log) Open(ctx context.Context, applier apply.Applier) error {
	if applier == nil {
		return errors.New("oplog: applier is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.applier != nil {
		return errors.New("oplog: already open")
	}
	l.applier = applier
	if err := l.deliver(ctx); err != nil {
		l.applier = nil
		return err
	}
	// Checkouts do not survive a restart, so only the applied length can be
	// pinned again. A signed length behind it is dropped until the local
	// key signs as an indexer.
	if l.signed > 0 && l.signed != l.applied {
		if l.writers[l.localKey] {
			l.signed = l.applied
		} else {
			l.logger.Warn("signed state lost on restart",
				slog.Uint64("length", l.signed),
				slog.Uint64("applied", l.applied))
			l.signed = 0
		}
		if err := l.persistMeta(); err != nil {
			l.applier = nil
			return err
		}
	}
	if l.signed > 0 {
		if err := applier.Sign(l.signed); err != nil {
			l.applier = nil
			return fmt.Errorf("oplog: sign %d: %w", l.signed, err)
		}
	}
	close(l.ready)
	return nil
}

// Ready blocks until Open has completed or ctx is done.
func (l *Log) Ready(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Append adds records under the local writer key.
func (l *Log) Append(ctx context.Context, records ...[]byte) error {
	return l.AppendAs(ctx, l.LocalKey(), records...)
}

// AppendAs adds records as if writer had appended them. It stands in for
// remote writers in single-process deployments and tests. Delivery failures
// are logged and retried on the next append; they are not reported here.
func (l *Log) AppendAs(ctx context.Context, writer types.WriterKey, records ...[]byte) error {
	if len(records) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.applier == nil {
		return ErrNotOpen
	}
	if _, ok := l.writers[writer]; !ok {
		return fmt.Errorf("%w: %x", ErrNotWritable, writer[:])
	}

	ops := make([]storage.Op, 0, len(records)+1)
	for i, record := range records {
		raw, err := rlp.EncodeToBytes(storedEntry{Writer: writer, Value: record})
		if err != nil {
			return fmt.Errorf("oplog: encode entry: %w", err)
		}
		ops = append(ops, storage.Op{Key: entryKey(l.length + uint64(i)), Value: raw})
	}
	length := l.length + uint64(len(records))
	ops = append(ops, storage.Op{Key: metaLength, Value: encodeCounter(length)})
	if err := l.db.Write(ops); err != nil {
		return fmt.Errorf("oplog: append: %w", err)
	}
	l.length = length

	if err := l.deliver(ctx); err != nil {
		l.logger.Error("apply delivery failed",
			slog.Uint64("applied", l.applied),
			slog.Uint64("length", l.length),
			slog.Any("error", err))
	}
	return nil
}

// deliver hands every pending entry to the applier as one batch. Callers
// hold l.mu.
func (l *Log) deliver(ctx context.Context) error {
	if l.applied >= l.length {
		return nil
	}
	entries := make([]apply.Entry, 0, l.length-l.applied)
	for i := l.applied; i < l.length; i++ {
		raw, err := l.db.Get(entryKey(i))
		if err != nil {
			return fmt.Errorf("oplog: read entry %d: %w", i, err)
		}
		var stored storedEntry
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return fmt.Errorf("oplog: decode entry %d: %w", i, err)
		}
		entries = append(entries, apply.Entry{Value: stored.Value, Writer: stored.Writer, Index: i})
	}

	if err := l.applier.Apply(ctx, entries, host{l}); err != nil {
		// Writer-set changes made before the failure still stand.
		if perr := l.persistMeta(); perr != nil {
			l.logger.Error("persist log metadata", slog.Any("error", perr))
		}
		return err
	}
	l.applied = l.length
	if l.writers[l.localKey] {
		l.signed = l.applied
	}
	if err := l.persistMeta(); err != nil {
		return err
	}
	if l.signed == l.applied {
		if err := l.applier.Sign(l.signed); err != nil {
			return fmt.Errorf("oplog: sign %d: %w", l.signed, err)
		}
	}
	return nil
}

func (l *Log) persistMeta() error {
	ops := []storage.Op{
		{Key: metaLength, Value: encodeCounter(l.length)},
		{Key: metaApplied, Value: encodeCounter(l.applied)},
		{Key: metaSigned, Value: encodeCounter(l.signed)},
		{Key: metaEpoch, Value: encodeCounter(l.epoch)},
	}
	stale, err := l.db.Keys(writerPrefix)
	if err != nil {
		return fmt.Errorf("oplog: list writers: %w", err)
	}
	for _, k := range stale {
		ops = append(ops, storage.Op{Key: k, Delete: true})
	}
	for key, indexer := range l.writers {
		flag := []byte{0}
		if indexer {
			flag[0] = 1
		}
		ops = append(ops, storage.Op{Key: writerKey(key), Value: flag})
	}
	if err := l.db.Write(ops); err != nil {
		return fmt.Errorf("oplog: persist metadata: %w", err)
	}
	return nil
}

func (l *Log) LocalKey() types.WriterKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.localKey
}

func (l *Log) Bootstrap() types.WriterKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bootstrap
}

// Writable reports whether the local key may append.
func (l *Log) Writable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.writers[l.localKey]
	return ok
}

// IsIndexer reports whether the local key is an indexer.
func (l *Log) IsIndexer() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writers[l.localKey]
}

func (l *Log) Length() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length
}

// SignedLength is the number of entries an indexer has confirmed.
func (l *Log) SignedLength() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signed
}

// Writers returns a copy of the writer set; the value is the indexer flag.
func (l *Log) Writers() map[types.WriterKey]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[types.WriterKey]bool, len(l.writers))
	for k, v := range l.writers {
		out[k] = v
	}
	return out
}

// SequenceState encodes the indexer epoch followed by the sorted indexer
// keys. It only changes when the indexer set does.
func (l *Log) SequenceState() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sequenceState(), nil
}

func (l *Log) sequenceState() []byte {
	indexers := make([]types.WriterKey, 0, len(l.writers))
	for k, indexer := range l.writers {
		if indexer {
			indexers = append(indexers, k)
		}
	}
	return EncodeSequenceState(l.epoch, indexers)
}

// EncodeSequenceState is the sequence state of an indexer set at epoch. The
// keys are sorted in place.
func EncodeSequenceState(epoch uint64, indexers []types.WriterKey) []byte {
	sort.Slice(indexers, func(i, j int) bool {
		return bytes.Compare(indexers[i][:], indexers[j][:]) < 0
	})
	out := make([]byte, 8, 8+len(indexers)*types.WriterKeySize)
	binary.BigEndian.PutUint64(out, epoch)
	for _, k := range indexers {
		out = append(out, k[:]...)
	}
	return out
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.db.Close()
	return nil
}

// host is the writer-set view handed to the applier while l.mu is held.
type host struct {
	l *Log
}

func (h host) AddWriter(key types.WriterKey, indexer bool) error {
	if key.IsZero() {
		return errors.New("oplog: zero writer key")
	}
	was, ok := h.l.writers[key]
	h.l.writers[key] = indexer
	if indexer && (!ok || !was) {
		h.l.epoch++
	}
	return nil
}

func (h host) RemoveWriter(key types.WriterKey) error {
	was, ok := h.l.writers[key]
	if !ok {
		return nil
	}
	delete(h.l.writers, key)
	if was {
		h.l.epoch++
	}
	return nil
}

func (h host) SequenceState() ([]byte, error) {
	return h.l.sequenceState(), nil
}

func (l *Log) readCounter(key []byte) (uint64, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("oplog: read %s: %w", key, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("oplog: %s has %d bytes", key, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func encodeCounter(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

func entryKey(index uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", entryPrefix, index))
}

func writerKey(key types.WriterKey) []byte {
	return append(append([]byte(nil), writerPrefix...), hex.EncodeToString(key[:])...)
}
