// Package testdoubles provides test doubles for the eventstore observability interfaces
// that are not covered by the slog-based spies in testutil/helper.
package testdoubles
