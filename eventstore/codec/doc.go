// Package codec provides the reference eventstore.Parser for the JSON wire shape of events.
//
// Payloads form a union over (type, version): every Kind is registered with the decoder of its
// concrete Go type, so reducers can type-switch on Event.Data exhaustively.
//
//	registry := codec.NewRegistry()
//	_ = codec.RegisterPayload[Incremented](registry)
//	_ = codec.RegisterPayload[Reset](registry)
//
//	parser := codec.NewParser(registry)
//	event, err := parser.Decode(raw)
package codec
