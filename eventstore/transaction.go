package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TransactionCallback runs while the Store's Lock is held. Events saved through tx.SaveEvent or
// Store.SaveEvent are buffered until tx.Commit; returning without Commit discards them.
// Returning an error (or panicking) discards the buffer and makes Transaction return a *TransactionError.
type TransactionCallback[S any, E any] func(ctx context.Context, tx *Tx[S, E]) error

// Tx is the handle of one open transaction.
type Tx[S any, E any] struct {
	store *Store[S, E]

	commitMu  sync.Mutex
	pending   []E // guarded by store.mu
	finished  bool
	committed int
}

type txContextKey struct{}

// Transaction acquires the Lock for the whole duration of callback.
//
// Commit drains the pending buffer strictly in arrival order, persisting and folding one event at a
// time; Rollback discards it without persisting or folding anything. Whatever is still buffered when
// callback returns is discarded. Subscribers are notified once, after the Lock is released, if at
// least one event was committed.
//
// A callback that does not return blocks every other mutation; pass a context with a deadline to
// bound how long other callers wait for the Lock.
// Calling Transaction or Initialize with the callback's context returns ErrNestedTransaction.
func (es *Store[S, E]) Transaction(ctx context.Context, callback TransactionCallback[S, E]) error {
	if es.transactionFrom(ctx) != nil {
		return ErrNestedTransaction
	}

	tracing, ctx := es.startTracing(ctx, spanNameTransaction, operationTransaction)
	metrics := es.startMetrics(ctx, operationTransaction)
	start := time.Now()

	var tx *Tx[S, E]

	err := es.withLock(ctx, operationTransaction, func(ctx context.Context) error {
		tx = es.beginTransaction()
		defer es.endTransaction(ctx, tx)

		if callbackErr := runTransactionCallback(context.WithValue(ctx, txContextKey{}, tx), tx, callback); callbackErr != nil {
			tx.Rollback()
			return NewTransactionError(callbackErr)
		}

		return nil
	})

	duration := time.Since(start)

	committed := 0
	if tx != nil {
		committed = tx.committed
	}

	if committed > 0 {
		es.notifySubscribers(ctx)
	}

	if err != nil {
		es.logErrorContext(ctx, logMsgTransactionFailed, err, logAttrEventCount, committed, logAttrDurationMS, es.toMilliseconds(duration))
		metrics.recordError(errorTypeOf(err), duration)
		tracing.finishError(errorTypeOf(err), duration)

		return err
	}

	es.logOperationContext(ctx, logMsgTransactionFinished, logAttrEventCount, committed, logAttrDurationMS, es.toMilliseconds(duration))
	metrics.recordSuccess(duration)
	tracing.finishSuccess(committed, duration)

	return nil
}

func runTransactionCallback[S any, E any](ctx context.Context, tx *Tx[S, E], callback TransactionCallback[S, E]) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errors.Join(ErrTransactionCallbackPanicked, fmt.Errorf("%v", recovered))
		}
	}()

	return callback(ctx, tx)
}

func (es *Store[S, E]) beginTransaction() *Tx[S, E] {
	tx := &Tx[S, E]{store: es, pending: make([]E, 0)}

	es.mu.Lock()
	es.openTx = tx
	es.mu.Unlock()

	return tx
}

// endTransaction clears the in-transaction flag and discards what is still pending.
func (es *Store[S, E]) endTransaction(ctx context.Context, tx *Tx[S, E]) {
	tx.commitMu.Lock()
	defer tx.commitMu.Unlock()

	es.mu.Lock()
	discarded := len(tx.pending)
	tx.pending = nil
	tx.finished = true
	es.openTx = nil
	es.mu.Unlock()

	if discarded > 0 {
		es.logWarnContext(ctx, logMsgPendingDiscarded, logAttrEventCount, discarded)
		es.recordValue(ctx, metricEventsRolledBack, float64(discarded), operationTransaction)
	}
}

// bufferIfInTransaction appends event to the open transaction, if there is one.
func (es *Store[S, E]) bufferIfInTransaction(ctx context.Context, event E) bool {
	es.mu.Lock()

	if es.openTx == nil || es.openTx.finished {
		es.mu.Unlock()
		return false
	}

	es.openTx.pending = append(es.openTx.pending, event)
	pendingCount := len(es.openTx.pending)
	es.mu.Unlock()

	es.logDebugContext(ctx, logMsgEventBuffered, logAttrPendingCount, pendingCount)

	return true
}

// transactionFrom returns the transaction of this store carried by ctx, if it is still open.
func (es *Store[S, E]) transactionFrom(ctx context.Context) *Tx[S, E] {
	tx, ok := ctx.Value(txContextKey{}).(*Tx[S, E])
	if !ok || tx.store != es {
		return nil
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	if tx.finished {
		return nil
	}

	return tx
}

// SaveEvent buffers event in this transaction.
func (tx *Tx[S, E]) SaveEvent(event E) error {
	es := tx.store

	es.mu.Lock()
	defer es.mu.Unlock()

	if tx.finished {
		return ErrTransactionFinished
	}

	tx.pending = append(tx.pending, event)

	return nil
}

// Pending returns the number of buffered, not yet committed events.
func (tx *Tx[S, E]) Pending() int {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	return len(tx.pending)
}

// Commit persists the pending events in arrival order, folding each into the state right after
// its append succeeded. It may be called more than once; each call drains what is buffered so far.
//
// If an append fails, the events persisted before it stay committed (they are in the durable log),
// the failed one and everything after it stay pending, and the error wraps ErrCommittingEventFailed.
func (tx *Tx[S, E]) Commit(ctx context.Context) error {
	tx.commitMu.Lock()
	defer tx.commitMu.Unlock()

	es := tx.store
	drained := 0

	for {
		event, ok, err := tx.nextPending()
		if err != nil {
			return err
		}

		if !ok {
			break
		}

		es.mu.RLock()
		newState := es.reducer(es.state, event)
		es.mu.RUnlock()

		if appendErr := es.log.Append(ctx, event); appendErr != nil {
			es.logErrorContext(ctx, logMsgCommitFailed, appendErr, logAttrEventCount, tx.committed)

			return errors.Join(ErrCommittingEventFailed, appendErr)
		}

		es.mu.Lock()
		es.state = newState
		es.committed = append(es.committed, event)
		tx.pending = tx.pending[1:]
		es.mu.Unlock()

		tx.committed++
		drained++
	}

	if drained > 0 {
		es.recordValue(ctx, metricEventsCommitted, float64(drained), operationTransaction)
	}

	return nil
}

func (tx *Tx[S, E]) nextPending() (E, bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	var empty E

	if tx.finished {
		return empty, false, ErrTransactionFinished
	}

	if len(tx.pending) == 0 {
		return empty, false, nil
	}

	return tx.pending[0], true, nil
}

// Rollback discards the pending events without persisting or folding anything.
func (tx *Tx[S, E]) Rollback() {
	tx.commitMu.Lock()
	defer tx.commitMu.Unlock()

	es := tx.store

	es.mu.Lock()
	discarded := len(tx.pending)
	if !tx.finished {
		tx.pending = tx.pending[:0]
	}
	es.mu.Unlock()

	if discarded > 0 {
		es.recordValue(context.Background(), metricEventsRolledBack, float64(discarded), operationTransaction)
	}
}
