// Package helper provides fixtures and spies shared by the eventstore test suites:
// a small counter domain (payloads, state, reducer, parser), observability spies,
// and an InstrumentedLog that wraps any LogAdapter to observe and disturb appends.
package helper
