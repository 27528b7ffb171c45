package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrDecodingEventFailed wraps every failure returned by Parser.Decode.
	ErrDecodingEventFailed = errors.New("decoding event failed")

	ErrMalformedRecord        = errors.New("record is not a json object")
	ErrMissingEventType       = errors.New("record has no event type")
	ErrMissingEventIdentifier = errors.New("record has no event identifier")
	ErrInvalidEventVersion    = errors.New("event version must be a non-negative integer")
	ErrInvalidEventDate       = errors.New("event date must be an RFC3339 string or epoch milliseconds")
	ErrInvalidEventData       = errors.New("event data must be a json object")
	ErrUnknownEventKind       = errors.New("no payload type registered for event kind")
	ErrPayloadKindMismatch    = errors.New("decoded payload reports a different event kind")

	// ErrEncodingEventFailed wraps failures of Encode.
	ErrEncodingEventFailed = errors.New("encoding event failed")
)

const (
	fieldType       = "type"
	fieldVersion    = "version"
	fieldIdentifier = "identifier"
	fieldDate       = "date"
	fieldData       = "data"
)

// Parser decodes raw records in the wire shape
// {"type": string, "version": int, "identifier": string, "date": RFC3339|epoch millis, "data": object}
// into eventstore.Event values whose Data is the payload type registered for (type, version).
type Parser struct {
	registry        *Registry
	untypedFallback bool
}

// Option defines a functional option for configuring a Parser.
type Option func(*Parser)

// WithUntypedFallback makes the Parser decode unregistered kinds into eventstore.UntypedPayload
// instead of failing with ErrUnknownEventKind.
func WithUntypedFallback() Option {
	return func(p *Parser) {
		p.untypedFallback = true
	}
}

// NewParser creates a Parser for the kinds in registry. A nil registry is treated as empty.
func NewParser(registry *Registry, options ...Option) *Parser {
	if registry == nil {
		registry = NewRegistry()
	}

	p := &Parser{registry: registry}

	for _, option := range options {
		option(p)
	}

	return p
}

// Decode implements eventstore.Parser. It never panics on bad input, every failure wraps ErrDecodingEventFailed.
func (p *Parser) Decode(raw eventstore.RawRecord) (eventstore.Event, error) {
	event, err := p.decode(raw)
	if err != nil {
		return eventstore.Event{}, errors.Join(ErrDecodingEventFailed, err)
	}

	return event, nil
}

func (p *Parser) decode(raw eventstore.RawRecord) (eventstore.Event, error) {
	fields := make(map[string]jsoniter.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return eventstore.Event{}, errors.Join(ErrMalformedRecord, err)
	}

	eventType, err := decodeNonEmptyString(fields[fieldType], ErrMissingEventType)
	if err != nil {
		return eventstore.Event{}, err
	}

	identifier, err := decodeNonEmptyString(fields[fieldIdentifier], ErrMissingEventIdentifier)
	if err != nil {
		return eventstore.Event{}, err
	}

	version, err := decodeVersion(fields[fieldVersion])
	if err != nil {
		return eventstore.Event{}, err
	}

	date, err := decodeDate(fields[fieldDate])
	if err != nil {
		return eventstore.Event{}, err
	}

	data := bytes.TrimSpace(fields[fieldData])
	if len(data) == 0 || data[0] != '{' {
		return eventstore.Event{}, ErrInvalidEventData
	}

	payload, err := p.decodePayload(eventType, version, data)
	if err != nil {
		return eventstore.Event{}, err
	}

	return eventstore.Event{
		Type:       eventType,
		Version:    version,
		Identifier: identifier,
		Date:       date,
		Data:       payload,
	}, nil
}

func (p *Parser) decodePayload(eventType string, version uint, data []byte) (eventstore.Payload, error) {
	decodeFunc, registered := p.registry.lookup(Kind{Type: eventType, Version: version})

	if !registered {
		if !p.untypedFallback {
			return nil, fmt.Errorf("%w: %s v%d", ErrUnknownEventKind, eventType, version)
		}

		untyped := eventstore.UntypedPayload{Name: eventType, Ver: version, Fields: map[string]any{}}
		if err := json.Unmarshal(data, &untyped.Fields); err != nil {
			return nil, errors.Join(ErrInvalidEventData, err)
		}

		return untyped, nil
	}

	payload, err := decodeFunc(data)
	if err != nil {
		return nil, errors.Join(ErrInvalidEventData, err)
	}

	if payload == nil || payload.EventType() != eventType || payload.EventVersion() != version {
		return nil, fmt.Errorf("%w: record is %s v%d", ErrPayloadKindMismatch, eventType, version)
	}

	return payload, nil
}

func decodeNonEmptyString(raw jsoniter.RawMessage, missingErr error) (string, error) {
	if len(raw) == 0 {
		return "", missingErr
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", errors.Join(missingErr, err)
	}

	if value == "" {
		return "", missingErr
	}

	return value, nil
}

func decodeVersion(raw jsoniter.RawMessage) (uint, error) {
	if len(raw) == 0 {
		return 0, ErrInvalidEventVersion
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, errors.Join(ErrInvalidEventVersion, err)
	}

	if number < 0 || number != math.Trunc(number) || number > math.MaxUint32 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidEventVersion, number)
	}

	return uint(number), nil
}

func decodeDate(raw jsoniter.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, ErrInvalidEventDate
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return time.Time{}, errors.Join(ErrInvalidEventDate, err)
		}

		date, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return time.Time{}, errors.Join(ErrInvalidEventDate, err)
		}

		return date, nil
	}

	var epochMillis float64
	if err := json.Unmarshal(raw, &epochMillis); err != nil {
		return time.Time{}, errors.Join(ErrInvalidEventDate, err)
	}

	if epochMillis != math.Trunc(epochMillis) {
		return time.Time{}, fmt.Errorf("%w: got %v", ErrInvalidEventDate, epochMillis)
	}

	return time.UnixMilli(int64(epochMillis)).UTC(), nil
}

// Encode returns the wire shape of event.
func Encode(event eventstore.Event) (eventstore.RawRecord, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Join(ErrEncodingEventFailed, err)
	}

	return raw, nil
}
