package eventstore

import (
	"context"
	"errors"
)

var ErrNilLogAdapter = errors.New("nil log adapter supplied")
var ErrNilParser = errors.New("nil parser supplied")
var ErrNilReducer = errors.New("nil reducer supplied")

var ErrSavingEventFailed = errors.New("saving the event failed")
var ErrReadingLogFailed = errors.New("reading the event log failed")
var ErrCommittingEventFailed = errors.New("committing a buffered event failed")
var ErrDuplicateEventIdentifier = errors.New("duplicate event identifier")
var ErrNestedTransaction = errors.New("nested transaction or initialize inside a transaction callback")
var ErrTransactionFinished = errors.New("transaction is already finished")
var ErrTransactionCallbackPanicked = errors.New("transaction callback panicked")
var ErrLockTokenMismatch = errors.New("released lock token is not the outstanding one")

// RawRecord holds one persisted record exactly as the LogAdapter returned it.
type RawRecord = []byte

// RawRecords is an alias type for a slice of RawRecord.
type RawRecords = []RawRecord

// LogAdapter is the durable boundary of the event log.
//
// Append must preserve call order as log order, ReadAll must return every previously appended
// record in append order on every call.
type LogAdapter[E any] interface {
	Append(ctx context.Context, event E) error
	ReadAll(ctx context.Context) (RawRecords, error)
}

// Parser decodes one RawRecord into a typed event or returns a decode error.
// It must reject malformed or schema-violating records instead of panicking.
type Parser[E any] interface {
	Decode(raw RawRecord) (E, error)
}

// ParserFunc adapts a plain function to the Parser interface.
type ParserFunc[E any] func(raw RawRecord) (E, error)

// Decode calls f(raw).
func (f ParserFunc[E]) Decode(raw RawRecord) (E, error) {
	return f(raw)
}

// Reducer folds one event into the previous state. It must be pure, total and deterministic.
type Reducer[S any, E any] func(state S, event E) S

// Fold replays events onto initial with the given Reducer.
func Fold[S any, E any](reducer Reducer[S, E], initial S, events []E) S {
	state := initial
	for _, event := range events {
		state = reducer(state, event)
	}

	return state
}
