package eventstore

import (
	"errors"
	"strings"
)

var (
	// ErrLogCorrupted matches every *CorruptionError via errors.Is.
	ErrLogCorrupted = errors.New("event log is corrupted")

	// ErrTransactionRolledBack matches every *TransactionError via errors.Is.
	ErrTransactionRolledBack = errors.New("transaction was rolled back")
)

// CorruptionError signals that the durable log could not be fully and validly reconstructed.
// No partial event list or partially folded state accompanies it.
type CorruptionError struct {
	Errors []error
}

// NewCorruptionError wraps the given read or decode failures.
func NewCorruptionError(errs ...error) *CorruptionError {
	return &CorruptionError{Errors: errs}
}

func (e *CorruptionError) Error() string {
	if len(e.Errors) == 0 {
		return ErrLogCorrupted.Error()
	}

	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}

	return ErrLogCorrupted.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *CorruptionError) Unwrap() []error {
	return e.Errors
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrLogCorrupted
}

// TransactionError signals that a transaction callback failed and everything it buffered was discarded.
// The store is unchanged by the failed callback, so retrying is safe.
type TransactionError struct {
	Err error
}

// NewTransactionError wraps the failure of a transaction callback.
func NewTransactionError(err error) *TransactionError {
	return &TransactionError{Err: err}
}

func (e *TransactionError) Error() string {
	if e.Err == nil {
		return ErrTransactionRolledBack.Error()
	}

	return ErrTransactionRolledBack.Error() + ": " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionRolledBack
}
