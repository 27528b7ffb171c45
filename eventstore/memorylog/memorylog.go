// Package memorylog provides an in-memory eventstore.LogAdapter.
//
// Records are kept as their JSON encoding, so replay goes through the same Parser as a durable log.
package memorylog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrEncodingRecordFailed = errors.New("encoding the record failed")
var ErrRecordIndexOutOfRange = errors.New("record index out of range")

// Log is an in-memory, goroutine-safe eventstore.LogAdapter.
type Log[E any] struct {
	mu      sync.RWMutex
	records eventstore.RawRecords
}

// New creates an empty Log.
func New[E any]() *Log[E] {
	return &Log[E]{records: make(eventstore.RawRecords, 0)}
}

// NewWithRecords creates a Log that already contains the given raw records.
func NewWithRecords[E any](records ...eventstore.RawRecord) *Log[E] {
	l := New[E]()
	for _, record := range records {
		l.records = append(l.records, cloneRecord(record))
	}

	return l
}

// Append encodes event and appends it.
func (l *Log[E]) Append(ctx context.Context, event E) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Join(ErrEncodingRecordFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, raw)

	return nil
}

// ReadAll returns copies of all records in append order.
func (l *Log[E]) ReadAll(ctx context.Context) (eventstore.RawRecords, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return l.Records(), nil
}

// Records returns copies of all records in append order.
func (l *Log[E]) Records() eventstore.RawRecords {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make(eventstore.RawRecords, 0, len(l.records))
	for _, record := range l.records {
		records = append(records, cloneRecord(record))
	}

	return records
}

// Len returns the number of records.
func (l *Log[E]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.records)
}

// Replace overwrites the record at index, e.g. to simulate a corrupted region.
func (l *Log[E]) Replace(index int, raw eventstore.RawRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.records) {
		return fmt.Errorf("%w: %d of %d", ErrRecordIndexOutOfRange, index, len(l.records))
	}

	l.records[index] = cloneRecord(raw)

	return nil
}

func cloneRecord(record eventstore.RawRecord) eventstore.RawRecord {
	clone := make(eventstore.RawRecord, len(record))
	copy(clone, record)

	return clone
}
