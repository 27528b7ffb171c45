package helper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

var ErrInjectedAppendFailure = errors.New("injected append failure")
var ErrInjectedReadFailure = errors.New("injected read failure")

// InstrumentedLog wraps a LogAdapter to observe concurrent appends and to inject failures.
type InstrumentedLog struct {
	inner eventstore.LogAdapter[eventstore.Event]

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	appends     atomic.Int32
	reads       atomic.Int32

	mu           sync.Mutex
	failAppendAt map[int32]error
	failReads    error
	appendDelay  time.Duration
	onAppend     func(event eventstore.Event)
}

// NewInstrumentedLog wraps inner.
func NewInstrumentedLog(inner eventstore.LogAdapter[eventstore.Event]) *InstrumentedLog {
	return &InstrumentedLog{
		inner:        inner,
		failAppendAt: make(map[int32]error),
	}
}

// FailAppendAt makes the n-th Append call (1-based, counting every attempt) fail with
// ErrInjectedAppendFailure without reaching the wrapped log.
func (l *InstrumentedLog) FailAppendAt(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failAppendAt[int32(n)] = ErrInjectedAppendFailure //nolint:gosec
}

// FailReads makes every ReadAll fail with ErrInjectedReadFailure until ClearFailures.
func (l *InstrumentedLog) FailReads() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failReads = ErrInjectedReadFailure
}

// ClearFailures removes all injected failures.
func (l *InstrumentedLog) ClearFailures() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failAppendAt = make(map[int32]error)
	l.failReads = nil
}

// DelayAppends makes every Append sleep for d before delegating, widening race windows.
func (l *InstrumentedLog) DelayAppends(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.appendDelay = d
}

// OnAppend registers a hook that runs inside every Append, before the event reaches the wrapped log.
func (l *InstrumentedLog) OnAppend(hook func(event eventstore.Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.onAppend = hook
}

// Append delegates to the wrapped log unless a failure was injected for this attempt.
func (l *InstrumentedLog) Append(ctx context.Context, event eventstore.Event) error {
	current := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	for {
		seen := l.maxInFlight.Load()
		if current <= seen || l.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	attempt := l.appends.Add(1)

	l.mu.Lock()
	injected := l.failAppendAt[attempt]
	delay := l.appendDelay
	hook := l.onAppend
	l.mu.Unlock()

	if hook != nil {
		hook(event)
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if injected != nil {
		return injected
	}

	return l.inner.Append(ctx, event)
}

// ReadAll delegates to the wrapped log unless read failures were injected.
func (l *InstrumentedLog) ReadAll(ctx context.Context) (eventstore.RawRecords, error) {
	l.reads.Add(1)

	l.mu.Lock()
	injected := l.failReads
	l.mu.Unlock()

	if injected != nil {
		return nil, injected
	}

	return l.inner.ReadAll(ctx)
}

// MaxConcurrentAppends returns the highest number of Append calls that were in flight at once.
func (l *InstrumentedLog) MaxConcurrentAppends() int {
	return int(l.maxInFlight.Load())
}

// AppendCalls returns the number of Append attempts, failed ones included.
func (l *InstrumentedLog) AppendCalls() int {
	return int(l.appends.Load())
}

// ReadCalls returns the number of ReadAll calls.
func (l *InstrumentedLog) ReadCalls() int {
	return int(l.reads.Load())
}

var _ eventstore.LogAdapter[eventstore.Event] = (*InstrumentedLog)(nil)
