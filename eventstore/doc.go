// Package eventstore derives application state from an append-only, strictly ordered log of
// immutable events, replayed through a deterministic reducer.
//
// The Store is the in-process orchestration core:
//   - single-writer concurrency control via a FIFO cooperative Lock
//   - transactional buffering, commit and rollback of multiple events as one unit
//   - corruption detection while replaying the log
//   - change notification for subscribers
//
// The durable log (LogAdapter), the decoding of raw records (Parser) and the state transition
// (Reducer) are injected at construction, so a file-backed log can be swapped for an in-memory or
// SQL one without touching the core.
//
// Key types:
//   - Event: the immutable event envelope with a typed Payload
//   - Store: owns state, committed events, Lock and subscriptions
//   - Tx: the handle of an open transaction
//   - CorruptionError, TransactionError: the error taxonomy
//
// Common usage pattern:
//
//	store, err := eventstore.NewStore(CounterState{}, log, parser, Reduce)
//	if err != nil {
//		// handle error
//	}
//
//	if err = store.Initialize(ctx); err != nil {
//		// a *CorruptionError, the state was not touched
//	}
//
//	event, _ := eventstore.BuildEvent(Incremented{By: 1}, time.Now())
//	err = store.SaveEvent(ctx, event)
//
//	err = store.Transaction(ctx, func(ctx context.Context, tx *eventstore.Tx[CounterState, eventstore.Event]) error {
//		_ = tx.SaveEvent(first)
//		_ = tx.SaveEvent(second)
//		return tx.Commit(ctx)
//	})
package eventstore
