// Package jsonstream provides a file-backed eventstore.LogAdapter that stores events as a
// JSON array which is only closed when it is read.
//
// Usage:
//
//	log, err := jsonstream.New[eventstore.Event]("events.json", jsonstream.WithSync())
//	store, err := eventstore.NewStore(CounterState{}, log, parser, Reduce)
package jsonstream
