package jsonstream

import (
	"errors"
	"math"
	"os"
	"time"
)

var ErrInvalidFileMode = errors.New("file mode must allow the owner to read and write")

// Logger interface for debug output of file operations and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type settings struct {
	fileMode   os.FileMode
	syncWrites bool
	logger     Logger
}

// Option defines a functional option for configuring an Adapter.
type Option func(*settings) error

// WithFileMode sets the permissions used when the log file is created.
func WithFileMode(mode os.FileMode) Option {
	return func(s *settings) error {
		if mode&0o600 != 0o600 {
			return ErrInvalidFileMode
		}

		s.fileMode = mode

		return nil
	}
}

// WithSync makes every Append fsync the file before it returns.
func WithSync() Option {
	return func(s *settings) error {
		s.syncWrites = true
		return nil
	}
}

// WithLogger sets the logger for the Adapter.
// Debug level: appended records and reads with timing
// Error level: failed file operations.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

func (s *settings) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *settings) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, logAttrError, err.Error())
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
