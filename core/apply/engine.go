// Package apply is the deterministic state-transition function of the ledger.
// It consumes ordered log entries, validates every operation they carry and
// mutates the view through a single batch per call.
package apply

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"msb/core/codec"
	"msb/core/types"
	"msb/observability/metrics"
	"msb/storage"
)

const tracerName = "msb/core/apply"

// Entry is one ordered record delivered by the log together with the writer
// key that appended it.
type Entry struct {
	Value  []byte
	Writer types.WriterKey
	Index  uint64
}

// Host manages the log's writer set and exposes its sequence state.
type Host interface {
	AddWriter(key types.WriterKey, indexer bool) error
	RemoveWriter(key types.WriterKey) error
	SequenceState() ([]byte, error)
}

// Applier is the callback a log delivers ordered batches to. Sign is called
// once the entries up to length are confirmed by an indexer.
type Applier interface {
	Apply(ctx context.Context, entries []Entry, host Host) error
	Sign(length uint64) error
}

// Store opens the write batch an Apply call mutates.
type Store interface {
	NewBatch() *storage.Batch
}

// Engine applies operations under a fixed set of network parameters. An
// Engine holds no state between calls; the log must not invoke Apply
// concurrently for the same view.
type Engine struct {
	params  Params
	logger  *slog.Logger
	metrics *metrics.ApplyMetrics
}

func NewEngine(params Params, logger *slog.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params:  params,
		logger:  logger.With(slog.String("component", "apply")),
		metrics: metrics.Apply(),
	}, nil
}

func (e *Engine) Params() Params {
	return e.params
}

// writerChange is a writer-set mutation requested by a handler. Changes are
// forwarded to the host only once the batch they belong to is durable.
type writerChange struct {
	key     types.WriterKey
	remove  bool
	indexer bool
}

// Apply processes entries in order. A rejected entry never affects the other
// entries of the batch. The returned error is reserved for failures of the
// batch itself: cancellation before the flush, a failed flush, or the host
// refusing a writer-set change.
func (e *Engine) Apply(ctx context.Context, entries []Entry, store Store, host Host) (receipts []Receipt, err error) {
	if store == nil || host == nil {
		return nil, errors.New("apply: store and host are required")
	}
	start := time.Now()
	_, span := otel.Tracer(tracerName).Start(ctx, "apply.batch",
		trace.WithAttributes(attribute.Int("msb.entries", len(entries))))
	defer func() {
		accepted := 0
		for _, r := range receipts {
			if r.Accepted() {
				accepted++
			}
		}
		span.SetAttributes(attribute.Int("msb.accepted", accepted))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	batch := store.NewBatch()
	defer batch.Close()

	receipts = make([]Receipt, 0, len(entries))
	var changes []writerChange
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return receipts, err
		}
		receipt, pending := e.applyEntry(batch, host, entry)
		receipts = append(receipts, receipt)
		changes = append(changes, pending...)
	}

	if err := batch.Flush(); err != nil {
		return receipts, fmt.Errorf("apply: flush batch: %w", err)
	}
	e.metrics.ObserveBatch(len(entries), time.Since(start))

	var errs []error
	for _, change := range changes {
		var err error
		if change.remove {
			err = host.RemoveWriter(change.key)
		} else {
			err = host.AddWriter(change.key, change.indexer)
		}
		if err != nil {
			e.logger.Error("writer set update failed",
				slog.String("writer", hex.EncodeToString(change.key[:])),
				slog.Bool("remove", change.remove),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return receipts, fmt.Errorf("apply: update writer set: %w", errors.Join(errs...))
	}
	return receipts, nil
}

func (e *Engine) applyEntry(parent *storage.Batch, host Host, entry Entry) (receipt Receipt, changes []writerChange) {
	receipt = Receipt{Index: entry.Index}
	op := codec.DecodeOperation(entry.Value)
	if op == nil {
		return e.rejected(receipt, reject(0, ReasonSchema)), nil
	}
	receipt.Operation = op.Type
	if op.Payload != nil {
		receipt.TxHash = op.Payload.RequesterIntent().TxHash
	}

	handler := e.handler(op.Type)
	if handler == nil {
		return e.rejected(receipt, reject(op.Type, ReasonUnknownOperation)), nil
	}

	tx := newTxn(e, parent.Child(), host, entry, op)
	defer tx.discard()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("operation handler panicked",
				slog.String("operation", op.Type.String()),
				slog.Uint64("index", entry.Index),
				slog.Any("panic", r))
			receipt = e.rejected(receipt, &RejectionError{Operation: op.Type, Reason: ReasonInternal, Err: fmt.Errorf("panic: %v", r)})
			changes = nil
		}
	}()

	if err := handler(tx); err != nil {
		var rej *RejectionError
		if !errors.As(err, &rej) {
			rej = &RejectionError{Operation: op.Type, Reason: ReasonInternal, Err: err}
		}
		if rej.Reason == ReasonAlreadyApplied {
			return e.idempotent(receipt), nil
		}
		return e.rejected(receipt, rej), nil
	}
	if err := tx.commit(); err != nil {
		return e.rejected(receipt, &RejectionError{Operation: op.Type, Reason: ReasonInternal, Err: err}), nil
	}
	receipt.Status = ReceiptStatusAccepted
	e.metrics.ObserveOperation(op.Type.String(), string(ReceiptStatusAccepted))
	return receipt, tx.changes
}

func (e *Engine) handler(t types.OperationType) func(*txn) error {
	switch t {
	case types.OperationAddAdmin:
		return e.applyAddAdmin
	case types.OperationAdminRecovery:
		return e.applyAdminRecovery
	case types.OperationDisableInitialization:
		return e.applyDisableInitialization
	case types.OperationBalanceInitialization:
		return e.applyBalanceInitialization
	case types.OperationAppendWhitelist:
		return e.applyAppendWhitelist
	case types.OperationAddWriter:
		return e.applyAddWriter
	case types.OperationRemoveWriter:
		return e.applyRemoveWriter
	case types.OperationAddIndexer:
		return e.applyAddIndexer
	case types.OperationRemoveIndexer:
		return e.applyRemoveIndexer
	case types.OperationBanValidator:
		return e.applyBanValidator
	case types.OperationBootstrapDeployment:
		return e.applyBootstrapDeployment
	case types.OperationTx:
		return e.applyTx
	case types.OperationTransfer:
		return e.applyTransfer
	}
	return nil
}

func (e *Engine) rejected(receipt Receipt, rej *RejectionError) Receipt {
	receipt.Status = ReceiptStatusRejected
	receipt.Reason = rej
	attrs := []any{
		slog.String("operation", rej.Operation.String()),
		slog.String("reason", string(rej.Reason)),
		slog.Uint64("index", receipt.Index),
	}
	if len(receipt.TxHash) > 0 {
		attrs = append(attrs, slog.String("tx", hex.EncodeToString(receipt.TxHash)))
	}
	if rej.Err != nil {
		attrs = append(attrs, slog.Any("error", rej.Err))
	}
	e.logger.Warn("operation rejected", attrs...)
	e.metrics.ObserveOperation(rej.Operation.String(), string(ReceiptStatusRejected))
	e.metrics.ObserveRejection(rej.Operation.String(), string(rej.Reason))
	return receipt
}

func (e *Engine) idempotent(receipt Receipt) Receipt {
	receipt.Status = ReceiptStatusIdempotent
	e.logger.Info(string(ReasonAlreadyApplied),
		slog.String("operation", receipt.Operation.String()),
		slog.String("tx", hex.EncodeToString(receipt.TxHash)),
		slog.Uint64("index", receipt.Index))
	e.metrics.ObserveOperation(receipt.Operation.String(), string(ReceiptStatusIdempotent))
	return receipt
}
