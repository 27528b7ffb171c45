package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

var (
	ErrEmptyKindType         = errors.New("event kind type must not be empty")
	ErrNilDecodeFunc         = errors.New("nil decode func supplied")
	ErrKindAlreadyRegistered = errors.New("event kind is already registered")
)

// Kind is the discriminator of the payload union.
type Kind struct {
	Type    string
	Version uint
}

func (k Kind) String() string {
	return fmt.Sprintf("%s v%d", k.Type, k.Version)
}

// DecodeFunc turns the "data" object of one record into the payload of a Kind.
type DecodeFunc func(data []byte) (eventstore.Payload, error)

// Registry maps every known Kind to the decoder of its concrete payload type.
type Registry struct {
	mu       sync.RWMutex
	decoders map[Kind]DecodeFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[Kind]DecodeFunc)}
}

// Register adds decode for (eventType, version). Registering a Kind twice is an error.
func (r *Registry) Register(eventType string, version uint, decode DecodeFunc) error {
	if eventType == "" {
		return ErrEmptyKindType
	}

	if decode == nil {
		return ErrNilDecodeFunc
	}

	kind := Kind{Type: eventType, Version: version}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[kind]; exists {
		return fmt.Errorf("%w: %s", ErrKindAlreadyRegistered, kind)
	}

	r.decoders[kind] = decode

	return nil
}

// RegisterPayload registers P, decoded with plain json unmarshalling, for the Kind P reports.
func RegisterPayload[P eventstore.Payload](r *Registry) error {
	var zero P

	return r.Register(zero.EventType(), zero.EventVersion(), func(data []byte) (eventstore.Payload, error) {
		var payload P
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}

		return payload, nil
	})
}

// Kinds returns the registered kinds sorted by type and version.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.decoders))
	for kind := range r.decoders {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].Type != kinds[j].Type {
			return kinds[i].Type < kinds[j].Type
		}

		return kinds[i].Version < kinds[j].Version
	})

	return kinds
}

func (r *Registry) lookup(kind Kind) (DecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decode, ok := r.decoders[kind]

	return decode, ok
}
