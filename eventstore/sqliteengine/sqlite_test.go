package sqliteengine_test

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/sqliteengine"
	. "github.com/AntonStoeckl/replaying-eventstore-go/testutil/helper" //nolint:revive
)

func openLog(t *testing.T, path string, options ...sqliteengine.Option) *sqliteengine.LogAdapter {
	log, err := sqliteengine.Open(context.Background(), path, options...)
	require.NoError(t, err, "error in arranging the sqlite log")

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func Test_Open_ErrorCases(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		options     []sqliteengine.Option
		expectedErr error
	}{
		{
			name:        "empty path",
			path:        "  ",
			expectedErr: sqliteengine.ErrEmptyPath,
		},
		{
			name:        "empty table name",
			path:        "events.db",
			options:     []sqliteengine.Option{sqliteengine.WithTableName("")},
			expectedErr: sqliteengine.ErrEmptyEventsTableName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path != "  " {
				path = filepath.Join(t.TempDir(), tt.path)
			}

			log, err := sqliteengine.Open(context.Background(), path, tt.options...)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, log)
		})
	}
}

func Test_NewLogAdapterFromSQLDB_When_DBIsNil_ReturnsErrNilDatabaseConnection(t *testing.T) {
	log, err := sqliteengine.NewLogAdapterFromSQLDB(nil)

	assert.ErrorIs(t, err, sqliteengine.ErrNilDatabaseConnection)
	assert.Nil(t, log)
}

func Test_Append_When_EventsAreAppended_ReadAllReturnsThemInOrder(t *testing.T) {
	// setup
	ctx := context.Background()
	log := openLog(t, filepath.Join(t.TempDir(), "events.db"))
	parser := NewCounterParser(t)

	events := []eventstore.Event{GivenIncremented(t, 1), GivenDecremented(t, 4), GivenReset(t)}

	// act
	for _, event := range events {
		require.NoError(t, log.Append(ctx, event))
	}

	records, err := log.ReadAll(ctx)

	// assert
	require.NoError(t, err)
	require.Len(t, records, len(events))

	for i, record := range records {
		decoded, decodeErr := parser.Decode(record)
		require.NoError(t, decodeErr)
		assert.Equal(t, events[i], decoded)
	}
}

func Test_Append_When_TheIdentifierExists_ReturnsErrDuplicateEventIdentifier(t *testing.T) {
	// setup
	ctx := context.Background()
	log := openLog(t, filepath.Join(t.TempDir(), "events.db"))
	event := GivenIncremented(t, 1)

	// arrange
	require.NoError(t, log.Append(ctx, event))

	// act
	err := log.Append(ctx, event)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrDuplicateEventIdentifier)

	records, readErr := log.ReadAll(ctx)
	require.NoError(t, readErr)
	assert.Len(t, records, 1)
}

func Test_Open_When_ATableNameIsConfigured_UsesThatTable(t *testing.T) {
	// setup
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	counterLog := openLog(t, path, sqliteengine.WithTableName("counter_events"))

	// act
	require.NoError(t, counterLog.Append(ctx, GivenIncremented(t, 1)))
	defaultLog := openLog(t, path)

	// assert
	assert.Equal(t, "counter_events", counterLog.TableName())
	assert.Equal(t, "events", defaultLog.TableName())

	records, err := defaultLog.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func Test_NewLogAdapterFromSQLDB_When_TheCallerOwnsTheDB_CloseLeavesItOpen(t *testing.T) {
	// setup
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log, err := sqliteengine.NewLogAdapterFromSQLDB(db)
	require.NoError(t, err)

	// act
	require.NoError(t, log.CreateTable(ctx))
	require.NoError(t, log.Close())

	// assert
	assert.NoError(t, db.PingContext(ctx))
}

func Test_LogAdapter_When_UsedByAStore_SurvivesAReopen(t *testing.T) {
	// setup
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "counter.db")
	logHandler := NewLogHandlerSpy(false)

	writerLog, err := sqliteengine.Open(ctx, path, sqliteengine.WithLogger(slog.New(logHandler)))
	require.NoError(t, err)
	writer := NewCounterStore(t, writerLog)

	// arrange
	GivenEventsWereSaved(t, ctx, writer, GivenIncremented(t, 8), GivenDecremented(t, 3))
	err = writer.Transaction(ctx, func(ctx context.Context, tx *CounterTx) error {
		require.NoError(t, tx.SaveEvent(GivenIncremented(t, 2)))
		return tx.Commit(ctx)
	})
	require.NoError(t, err)
	require.NoError(t, writerLog.Close())

	reader := NewCounterStore(t, openLog(t, path))

	// act
	err = reader.Initialize(ctx)

	// assert
	require.NoError(t, err)
	assert.Equal(t, CounterState{Count: 7, Applied: 3}, reader.GetState())
	assert.Equal(t, writer.CommittedEvents(), reader.CommittedEvents())
	assert.True(t, logHandler.HasInfoLogWithMessage("eventstore operation: event appended").WithAttr("event_type", "incremented").Assert())
}

func Test_LogAdapter_When_AStoreSavesADuplicate_StateStaysUnchanged(t *testing.T) {
	// setup
	ctx := context.Background()
	store := NewCounterStore(t, openLog(t, filepath.Join(t.TempDir(), "counter.db")))
	event := GivenIncremented(t, 1)

	// arrange
	GivenEventsWereSaved(t, ctx, store, event)

	// act
	err := store.SaveEvent(ctx, event)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrSavingEventFailed)
	assert.ErrorIs(t, err, eventstore.ErrDuplicateEventIdentifier)
	assert.Equal(t, CounterState{Count: 1, Applied: 1}, store.GetState())
}
