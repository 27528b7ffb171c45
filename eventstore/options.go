package eventstore

// settings holds the optional collaborators of a Store.
type settings struct {
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// Option defines a functional option for configuring a Store.
type Option func(*settings) error

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: lock waits, buffered transaction events
// Info level: saved and committed events, initialize results (production-safe)
// Warn level: panicking subscribers, discarded transaction buffers
// Error level: failures that cause an operation to fail.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// It receives the same messages as the Logger, together with the operation's context.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// It receives save/initialize/transaction durations, lock wait durations, event counts,
// detected corruptions and errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store.
// A span is created for every save, initialize, get-events and transaction operation.
func WithTracing(collector TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}
