package eventstore

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNilPayload = errors.New("event payload must not be nil")
var ErrEmptyEventType = errors.New("event type must not be empty")
var ErrEmptyEventIdentifier = errors.New("event identifier must not be empty")
var ErrZeroEventDate = errors.New("event date must not be zero")
var ErrGeneratingEventIdentifierFailed = errors.New("generating an event identifier failed")

// Events is an alias type for a slice of Event.
type Events = []Event

// Payload is the typed part of an Event. Each concrete payload type is one variant of the
// union over (type, version), so reducers can switch on the Go type instead of inspecting maps.
type Payload interface {
	EventType() string
	EventVersion() uint
}

// Event is an immutable record of something that happened.
//
// While its properties are exported, it should only be constructed with the supplied factory methods:
//   - BuildEvent
//   - BuildEventWithIdentifier
type Event struct {
	Type       string
	Version    uint
	Identifier string
	Date       time.Time
	Data       Payload
}

// BuildEvent is a factory method for Event.
//
// Type and Version are taken from the payload, the identifier is a freshly generated UUIDv7.
func BuildEvent(payload Payload, date time.Time) (Event, error) {
	identifier, err := NewEventIdentifier()
	if err != nil {
		return Event{}, err
	}

	return BuildEventWithIdentifier(identifier, payload, date)
}

// BuildEventWithIdentifier is a factory method for Event with a caller-supplied identifier.
func BuildEventWithIdentifier(identifier string, payload Payload, date time.Time) (Event, error) {
	if payload == nil {
		return Event{}, ErrNilPayload
	}

	if payload.EventType() == "" {
		return Event{}, ErrEmptyEventType
	}

	if identifier == "" {
		return Event{}, ErrEmptyEventIdentifier
	}

	if date.IsZero() {
		return Event{}, ErrZeroEventDate
	}

	return Event{
		Type:       payload.EventType(),
		Version:    payload.EventVersion(),
		Identifier: identifier,
		Date:       date,
		Data:       payload,
	}, nil
}

// NewEventIdentifier returns a time-ordered UUIDv7 string.
func NewEventIdentifier() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Join(ErrGeneratingEventIdentifierFailed, err)
	}

	return id.String(), nil
}

// EventIdentifier returns the unique identifier, used for duplicate detection during replay.
func (e Event) EventIdentifier() string {
	return e.Identifier
}

type wireEvent struct {
	Type       string    `json:"type"`
	Version    uint      `json:"version"`
	Identifier string    `json:"identifier"`
	Date       time.Time `json:"date"`
	Data       any       `json:"data"`
}

// MarshalJSON encodes the event in its wire shape:
// {"type": ..., "version": ..., "identifier": ..., "date": RFC3339, "data": {...}}.
func (e Event) MarshalJSON() ([]byte, error) {
	var data any = map[string]any{}
	if e.Data != nil {
		data = e.Data
	}

	return json.Marshal(wireEvent{
		Type:       e.Type,
		Version:    e.Version,
		Identifier: e.Identifier,
		Date:       e.Date.UTC(),
		Data:       data,
	})
}

// UntypedPayload keeps the open string-keyed data of an event kind that has no registered Go type.
type UntypedPayload struct {
	Name   string
	Ver    uint
	Fields map[string]any
}

func (p UntypedPayload) EventType() string {
	return p.Name
}

func (p UntypedPayload) EventVersion() uint {
	return p.Ver
}

// MarshalJSON encodes only the fields, so an untyped event round-trips unchanged.
func (p UntypedPayload) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(p.Fields)
}
