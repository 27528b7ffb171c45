package main

import (
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/codec"
)

// Incremented raises the counter.
type Incremented struct {
	By int `json:"by"`
}

func (Incremented) EventType() string  { return "incremented" }
func (Incremented) EventVersion() uint { return 1 }

// Decremented lowers the counter.
type Decremented struct {
	By int `json:"by"`
}

func (Decremented) EventType() string  { return "decremented" }
func (Decremented) EventVersion() uint { return 1 }

// Counter is the state folded from the log.
type Counter struct {
	Count int
}

func reduce(state Counter, event eventstore.Event) Counter {
	switch payload := event.Data.(type) {
	case Incremented:
		state.Count += payload.By
	case Decremented:
		state.Count -= payload.By
	}

	return state
}

func newParser() (*codec.Parser, error) {
	registry := codec.NewRegistry()

	if err := codec.RegisterPayload[Incremented](registry); err != nil {
		return nil, err
	}

	if err := codec.RegisterPayload[Decremented](registry); err != nil {
		return nil, err
	}

	return codec.NewParser(registry), nil
}
