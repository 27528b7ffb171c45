package eventstore

import (
	"fmt"
	"sync"
)

// Subscriber is invoked after every successful save or commit.
type Subscriber = func()

// UnsubscribeFunc removes exactly the registration it was returned for. Calling it again is a no-op.
type UnsubscribeFunc = func()

// SubscriptionID identifies one registration, so the same handler can be registered twice
// and removed independently.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Subscriber
}

// subscriptionRegistry keeps handlers in insertion order.
type subscriptionRegistry struct {
	mu      sync.Mutex
	lastID  SubscriptionID
	entries []subscription
}

func (r *subscriptionRegistry) add(handler Subscriber) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	r.entries = append(r.entries, subscription{id: r.lastID, handler: handler})

	return r.lastID
}

func (r *subscriptionRegistry) remove(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.entries {
		if entry.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)

			return true
		}
	}

	return false
}

func (r *subscriptionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

func (r *subscriptionRegistry) snapshot() []subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]subscription, len(r.entries))
	copy(entries, r.entries)

	return entries
}

// notifyAll invokes every handler registered when the call started.
// A panicking handler is reported through onPanic and does not stop the remaining ones.
func (r *subscriptionRegistry) notifyAll(onPanic func(id SubscriptionID, err error)) {
	for _, entry := range r.snapshot() {
		r.notifyOne(entry, onPanic)
	}
}

func (r *subscriptionRegistry) notifyOne(entry subscription, onPanic func(id SubscriptionID, err error)) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if onPanic != nil {
				onPanic(entry.id, fmt.Errorf("subscriber panicked: %v", recovered))
			}
		}
	}()

	entry.handler()
}
