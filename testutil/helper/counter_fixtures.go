package helper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/codec"
)

const (
	IncrementedEventType = "incremented"
	DecrementedEventType = "decremented"
	ResetEventType       = "reset"
)

// Incremented raises the counter by By.
type Incremented struct {
	By int `json:"by"`
}

func (Incremented) EventType() string  { return IncrementedEventType }
func (Incremented) EventVersion() uint { return 1 }

// Decremented lowers the counter by By.
type Decremented struct {
	By int `json:"by"`
}

func (Decremented) EventType() string  { return DecrementedEventType }
func (Decremented) EventVersion() uint { return 1 }

// Reset sets the counter back to zero.
type Reset struct {
	Reason string `json:"reason,omitempty"`
}

func (Reset) EventType() string  { return ResetEventType }
func (Reset) EventVersion() uint { return 1 }

// CounterState is the state folded from the counter events.
type CounterState struct {
	Count   int
	Applied int
}

// CounterStore is the Store type used throughout the test suites.
type CounterStore = eventstore.Store[CounterState, eventstore.Event]

// CounterTx is the transaction handle of a CounterStore.
type CounterTx = eventstore.Tx[CounterState, eventstore.Event]

// ReduceCounter is a pure reducer. Unknown payloads only count as applied.
func ReduceCounter(state CounterState, event eventstore.Event) CounterState {
	switch payload := event.Data.(type) {
	case Incremented:
		state.Count += payload.By
	case Decremented:
		state.Count -= payload.By
	case Reset:
		state.Count = 0
	}

	state.Applied++

	return state
}

// FakeClock returns a fixed point in time, offset by the given number of seconds.
func FakeClock(offsetSeconds int) time.Time {
	return time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC).Add(time.Duration(offsetSeconds) * time.Second)
}

// NewCounterRegistry registers all counter payloads.
func NewCounterRegistry(t testing.TB) *codec.Registry {
	registry := codec.NewRegistry()
	require.NoError(t, codec.RegisterPayload[Incremented](registry), "error in arranging test data")
	require.NoError(t, codec.RegisterPayload[Decremented](registry), "error in arranging test data")
	require.NoError(t, codec.RegisterPayload[Reset](registry), "error in arranging test data")

	return registry
}

// NewCounterParser creates a strict parser for the counter payloads.
func NewCounterParser(t testing.TB) *codec.Parser {
	return codec.NewParser(NewCounterRegistry(t))
}

// NewCounterStore creates a CounterStore on log with the counter parser and reducer.
func NewCounterStore(t testing.TB, log eventstore.LogAdapter[eventstore.Event], options ...eventstore.Option) *CounterStore {
	store, err := eventstore.NewStore(CounterState{}, log, NewCounterParser(t), ReduceCounter, options...)
	require.NoError(t, err, "error in arranging the store")

	return store
}

// GivenIncremented builds an Incremented event.
func GivenIncremented(t testing.TB, by int) eventstore.Event {
	event, err := eventstore.BuildEvent(Incremented{By: by}, FakeClock(by))
	require.NoError(t, err, "error in arranging test data")

	return event
}

// GivenDecremented builds a Decremented event.
func GivenDecremented(t testing.TB, by int) eventstore.Event {
	event, err := eventstore.BuildEvent(Decremented{By: by}, FakeClock(by))
	require.NoError(t, err, "error in arranging test data")

	return event
}

// GivenReset builds a Reset event.
func GivenReset(t testing.TB) eventstore.Event {
	event, err := eventstore.BuildEvent(Reset{Reason: "test"}, FakeClock(0))
	require.NoError(t, err, "error in arranging test data")

	return event
}

// GivenEventsWereSaved saves events one by one.
func GivenEventsWereSaved(t testing.TB, ctx context.Context, store *CounterStore, events ...eventstore.Event) {
	for _, event := range events {
		require.NoError(t, store.SaveEvent(ctx, event), "error in arranging test data")
	}
}

// EventIdentifiers returns the identifiers of events in order.
func EventIdentifiers(events []eventstore.Event) []string {
	identifiers := make([]string, 0, len(events))
	for _, event := range events {
		identifiers = append(identifiers, event.Identifier)
	}

	return identifiers
}
