package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrAcquiringLockFailed = errors.New("acquiring the store lock failed")

// Store owns the in-memory state derived from an event log, the committed event sequence, and the
// single-writer Lock that serializes SaveEvent, Initialize and whole transactions.
//
// Readers (GetState, CommittedEvents, GetEvents, Subscribe) never take the Lock.
type Store[S any, E any] struct {
	log     LogAdapter[E]
	parser  Parser[E]
	reducer Reducer[S, E]
	initial S

	lock          *Lock
	subscriptions subscriptionRegistry

	mu        sync.RWMutex
	state     S
	committed []E
	openTx    *Tx[S, E]

	settings
}

// NewStore creates a Store starting at the initial state with an empty committed sequence.
// Call Initialize to replay the durable log.
func NewStore[S any, E any](
	initial S,
	log LogAdapter[E],
	parser Parser[E],
	reducer Reducer[S, E],
	options ...Option,
) (*Store[S, E], error) {

	if log == nil {
		return nil, ErrNilLogAdapter
	}

	if parser == nil {
		return nil, ErrNilParser
	}

	if reducer == nil {
		return nil, ErrNilReducer
	}

	es := &Store[S, E]{
		log:       log,
		parser:    parser,
		reducer:   reducer,
		initial:   initial,
		lock:      NewLock(),
		state:     initial,
		committed: make([]E, 0),
	}

	for _, option := range options {
		if err := option(&es.settings); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// GetState returns the current in-memory state. It does no I/O and takes no Lock.
func (es *Store[S, E]) GetState() S {
	es.mu.RLock()
	defer es.mu.RUnlock()

	return es.state
}

// CommittedEvents returns a copy of the events known to be durably persisted.
func (es *Store[S, E]) CommittedEvents() []E {
	es.mu.RLock()
	defer es.mu.RUnlock()

	events := make([]E, len(es.committed))
	copy(events, es.committed)

	return events
}

// Subscribe registers handler to be invoked after every successful save or commit.
// The returned function removes exactly this registration; calling it again is a no-op.
func (es *Store[S, E]) Subscribe(handler Subscriber) UnsubscribeFunc {
	id := es.subscriptions.add(handler)

	var once sync.Once

	return func() {
		once.Do(func() {
			es.subscriptions.remove(id)
		})
	}
}

// SaveEvent persists one event and folds it into the state.
//
// While a transaction is open the event is only appended to the transaction's pending buffer and
// nil is returned right away; persistence, folding and notification happen on Commit.
// This also applies to callers on other goroutines, because the open transaction holds the Lock.
//
// Otherwise the Lock is acquired, the new state is computed, the event is appended to the log,
// and only after the append succeeded the new state becomes visible. If the append fails the
// state is unchanged and the returned error wraps ErrSavingEventFailed.
func (es *Store[S, E]) SaveEvent(ctx context.Context, event E) error {
	if es.bufferIfInTransaction(ctx, event) {
		return nil
	}

	tracing, ctx := es.startTracing(ctx, spanNameSave, operationSave)
	metrics := es.startMetrics(ctx, operationSave)
	start := time.Now()

	err := es.withLock(ctx, operationSave, func(ctx context.Context) error {
		return es.persistAndAdopt(ctx, event)
	})

	duration := time.Since(start)

	if err != nil {
		es.logErrorContext(ctx, logMsgSaveFailed, err, logAttrDurationMS, es.toMilliseconds(duration))
		metrics.recordError(errorTypeOf(err), duration)
		tracing.finishError(errorTypeOf(err), duration)

		return err
	}

	es.logOperationContext(ctx, logMsgEventSaved, logAttrEventCount, 1, logAttrDurationMS, es.toMilliseconds(duration))
	es.incrementCounter(ctx, metricEventsSaved, map[string]string{spanAttrOperation: operationSave})
	metrics.recordSuccess(duration)
	tracing.finishSuccess(1, duration)

	es.notifySubscribers(ctx)

	return nil
}

// persistAndAdopt must be called with the Lock held.
func (es *Store[S, E]) persistAndAdopt(ctx context.Context, event E) error {
	es.mu.RLock()
	newState := es.reducer(es.state, event)
	es.mu.RUnlock()

	if err := es.log.Append(ctx, event); err != nil {
		return errors.Join(ErrSavingEventFailed, err)
	}

	es.mu.Lock()
	es.state = newState
	es.committed = append(es.committed, event)
	es.mu.Unlock()

	return nil
}

// Initialize replays the whole durable log into the state.
//
// On the first record that cannot be read or decoded a *CorruptionError is returned and nothing
// is adopted: state and committed sequence stay what they were before the call.
// On success the state is the fold of the decoded log over the initial state, and the committed
// sequence is replaced wholesale.
func (es *Store[S, E]) Initialize(ctx context.Context) error {
	if es.transactionFrom(ctx) != nil {
		return ErrNestedTransaction
	}

	tracing, ctx := es.startTracing(ctx, spanNameInitialize, operationInitialize)
	metrics := es.startMetrics(ctx, operationInitialize)
	start := time.Now()

	var replayed int

	err := es.withLock(ctx, operationInitialize, func(ctx context.Context) error {
		events, err := es.readAndDecode(ctx)
		if err != nil {
			return err
		}

		state := Fold(es.reducer, es.initial, events)

		es.mu.Lock()
		es.state = state
		es.committed = events
		es.mu.Unlock()

		replayed = len(events)

		return nil
	})

	duration := time.Since(start)

	if err != nil {
		es.logErrorContext(ctx, logMsgInitializeFailed, err, logAttrDurationMS, es.toMilliseconds(duration))
		metrics.recordError(errorTypeOf(err), duration)
		tracing.finishError(errorTypeOf(err), duration)

		return err
	}

	es.logOperationContext(ctx, logMsgInitialized, logAttrEventCount, replayed, logAttrDurationMS, es.toMilliseconds(duration))
	metrics.recordEvents(metricEventsReplayed, replayed)
	metrics.recordSuccess(duration)
	tracing.finishSuccess(replayed, duration)

	return nil
}

// GetEvents reads and decodes the full durable log without taking the Lock and without touching
// the state. It agrees with CommittedEvents under quiescence, and never contains events that are
// still buffered in an open transaction.
func (es *Store[S, E]) GetEvents(ctx context.Context) ([]E, error) {
	tracing, ctx := es.startTracing(ctx, spanNameGetEvents, operationGetEvents)
	start := time.Now()

	events, err := es.readAndDecode(ctx)

	duration := time.Since(start)

	if err != nil {
		es.logErrorContext(ctx, logMsgGetEventsFailed, err)
		tracing.finishError(errorTypeOf(err), duration)

		return nil, err
	}

	tracing.finishSuccess(len(events), duration)

	return events, nil
}

// readAndDecode returns a *CorruptionError on the first read or decode failure.
func (es *Store[S, E]) readAndDecode(ctx context.Context) ([]E, error) {
	records, err := es.log.ReadAll(ctx)
	if err != nil {
		return nil, es.corruption(ctx, errors.Join(ErrReadingLogFailed, err))
	}

	events := make([]E, 0, len(records))
	seen := make(map[string]int, len(records))

	for i, record := range records {
		event, decodeErr := es.parser.Decode(record)
		if decodeErr != nil {
			return nil, es.corruption(ctx, fmt.Errorf("record %d: %w", i, decodeErr))
		}

		if identifiable, ok := any(event).(interface{ EventIdentifier() string }); ok {
			identifier := identifiable.EventIdentifier()
			if first, duplicate := seen[identifier]; duplicate {
				return nil, es.corruption(ctx, fmt.Errorf("record %d repeats record %d (%s): %w", i, first, identifier, ErrDuplicateEventIdentifier))
			}
			seen[identifier] = i
		}

		events = append(events, event)
	}

	return events, nil
}

func (es *Store[S, E]) corruption(ctx context.Context, err error) error {
	es.recordCorruption(ctx)

	return NewCorruptionError(err)
}

// withLock runs fn while holding the Lock, recording how long the caller waited for it.
func (es *Store[S, E]) withLock(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	waitStart := time.Now()

	token, err := es.lock.Acquire(ctx)
	if err != nil {
		return errors.Join(ErrAcquiringLockFailed, err)
	}
	defer es.lock.Release(token)

	es.recordLockWait(ctx, operation, time.Since(waitStart))

	return fn(ctx)
}

func (es *Store[S, E]) notifySubscribers(ctx context.Context) {
	es.subscriptions.notifyAll(func(id SubscriptionID, err error) {
		es.logWarnContext(ctx, logMsgSubscriberPanicked, logAttrSubscriptionID, uint64(id), logAttrError, err.Error())
		es.incrementCounter(ctx, metricSubscriberPanics, map[string]string{})
	})
}

func errorTypeOf(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeTimeout
	case errors.Is(err, ErrLogCorrupted):
		return errorTypeCorruption
	case errors.Is(err, ErrTransactionRolledBack):
		return errorTypeRolledBack
	case errors.Is(err, ErrAcquiringLockFailed):
		return errorTypeLock
	case errors.Is(err, ErrSavingEventFailed), errors.Is(err, ErrCommittingEventFailed):
		return errorTypePersistence
	default:
		return errorTypeOther
	}
}
