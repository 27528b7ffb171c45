package eventstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

func Test_CorruptionError_When_Wrapping_MatchesTheSentinelAndTheCauses(t *testing.T) {
	// arrange
	cause := errors.New("record 3: unexpected end of json")

	// act
	err := eventstore.NewCorruptionError(cause)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrLogCorrupted)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, eventstore.ErrTransactionRolledBack)
	assert.Equal(t, "event log is corrupted: record 3: unexpected end of json", err.Error())
	assert.Equal(t, "event log is corrupted", eventstore.NewCorruptionError().Error())
}

func Test_TransactionError_When_Wrapping_MatchesTheSentinelAndTheCause(t *testing.T) {
	// arrange
	cause := errors.New("overdrawn")

	// act
	err := eventstore.NewTransactionError(cause)

	// assert
	var txErr *eventstore.TransactionError
	assert.ErrorAs(t, error(err), &txErr)
	assert.ErrorIs(t, err, eventstore.ErrTransactionRolledBack)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, eventstore.ErrLogCorrupted)
	assert.Equal(t, "transaction was rolled back: overdrawn", err.Error())
	assert.Equal(t, "transaction was rolled back", eventstore.NewTransactionError(nil).Error())
}
