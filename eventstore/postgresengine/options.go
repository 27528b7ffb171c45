package postgresengine

// Logger interface for SQL query logging, operational messages, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type settings struct {
	eventTableName string
	logger         Logger
}

// Option defines a functional option for configuring a LogAdapter.
type Option func(*settings) error

// WithTableName sets the table name for the LogAdapter.
func WithTableName(tableName string) Option {
	return func(s *settings) error {
		if tableName == "" {
			return ErrEmptyEventsTableName
		}

		s.eventTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the LogAdapter.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Appended events and read counts with durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}
