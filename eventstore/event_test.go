package eventstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type itemAdded struct {
	Item string `json:"item"`
}

func (itemAdded) EventType() string  { return "item_added" }
func (itemAdded) EventVersion() uint { return 2 }

type untypedKind struct{}

func (untypedKind) EventType() string  { return "" }
func (untypedKind) EventVersion() uint { return 1 }

func Test_BuildEventWithIdentifier_ErrorCases(t *testing.T) {
	validDate := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		identifier  string
		payload     Payload
		date        time.Time
		expectedErr error
	}{
		{
			name:        "nil payload",
			identifier:  "evt-1",
			payload:     nil,
			date:        validDate,
			expectedErr: ErrNilPayload,
		},
		{
			name:        "payload without event type",
			identifier:  "evt-1",
			payload:     untypedKind{},
			date:        validDate,
			expectedErr: ErrEmptyEventType,
		},
		{
			name:        "empty identifier",
			identifier:  "",
			payload:     itemAdded{Item: "book"},
			date:        validDate,
			expectedErr: ErrEmptyEventIdentifier,
		},
		{
			name:        "zero date",
			identifier:  "evt-1",
			payload:     itemAdded{Item: "book"},
			date:        time.Time{},
			expectedErr: ErrZeroEventDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildEventWithIdentifier(tt.identifier, tt.payload, tt.date)

			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_BuildEvent_When_PayloadIsValid_TakesKindFromThePayloadAndGeneratesAUUIDv7(t *testing.T) {
	// arrange
	date := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)

	// act
	event, err := BuildEvent(itemAdded{Item: "book"}, date)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "item_added", event.Type)
	assert.Equal(t, uint(2), event.Version)
	assert.Equal(t, date, event.Date)
	assert.Equal(t, itemAdded{Item: "book"}, event.Data)
	assert.Equal(t, event.Identifier, event.EventIdentifier())

	parsed, parseErr := uuid.Parse(event.Identifier)
	require.NoError(t, parseErr)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func Test_NewEventIdentifier_When_CalledRepeatedly_ReturnsDistinctIdentifiers(t *testing.T) {
	seen := make(map[string]bool)

	for range 100 {
		identifier, err := NewEventIdentifier()
		require.NoError(t, err)
		assert.False(t, seen[identifier])
		seen[identifier] = true
	}
}

func Test_Event_MarshalJSON_When_Encoded_UsesTheWireShape(t *testing.T) {
	// arrange
	date := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	event, err := BuildEventWithIdentifier("evt-1", itemAdded{Item: "book"}, date)
	require.NoError(t, err)

	// act
	raw, err := json.Marshal(event)

	// assert
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"item_added","version":2,"identifier":"evt-1","date":"2025-01-02T02:04:05Z","data":{"item":"book"}}`,
		string(raw),
	)
}

func Test_Event_MarshalJSON_When_DataIsNil_EncodesAnEmptyObject(t *testing.T) {
	// arrange
	event := Event{Type: "ping", Version: 1, Identifier: "evt-2", Date: time.Unix(0, 0).UTC()}

	// act
	raw, err := json.Marshal(event)

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","version":1,"identifier":"evt-2","date":"1970-01-01T00:00:00Z","data":{}}`, string(raw))
}

func Test_UntypedPayload_MarshalJSON_When_Encoded_WritesOnlyTheFields(t *testing.T) {
	// arrange
	payload := UntypedPayload{Name: "legacy", Ver: 3, Fields: map[string]any{"answer": 42.0}}

	// act
	raw, err := json.Marshal(payload)
	rawEmpty, errEmpty := json.Marshal(UntypedPayload{Name: "legacy"})

	// assert
	require.NoError(t, err)
	require.NoError(t, errEmpty)
	assert.JSONEq(t, `{"answer":42}`, string(raw))
	assert.JSONEq(t, `{}`, string(rawEmpty))
	assert.Equal(t, "legacy", payload.EventType())
	assert.Equal(t, uint(3), payload.EventVersion())
}

func Test_Fold_When_ReducingEvents_AppliesThemInOrder(t *testing.T) {
	// arrange
	reducer := func(state []string, event string) []string { return append(state, event) }

	// act
	result := Fold(reducer, []string{"initial"}, []string{"a", "b", "c"})

	// assert
	assert.Equal(t, []string{"initial", "a", "b", "c"}, result)
}

func Test_ParserFunc_When_Called_DelegatesToTheFunction(t *testing.T) {
	// arrange
	parser := ParserFunc[string](func(raw RawRecord) (string, error) { return string(raw), nil })

	// act
	decoded, err := parser.Decode(RawRecord("hello"))

	// assert
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded)
}
