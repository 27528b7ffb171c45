package postgresengine

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/internal/adapters"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/internal/sqllog"
)

var (
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")
	ErrEmptyEventsTableName  = errors.New("events table name must not be empty")
)

const (
	defaultEventTableName = "events"
	dialectPostgres       = "postgres"
	uniqueViolationCode   = "23505"

	createTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	sequence_number BIGSERIAL PRIMARY KEY,
	identifier TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	event_version BIGINT NOT NULL,
	occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
	payload JSONB NOT NULL
)`
)

// LogAdapter is an eventstore.LogAdapter that keeps the log in a PostgreSQL table.
// The BIGSERIAL sequence_number column defines the log order, the UNIQUE identifier column
// rejects a second event with the same identifier.
type LogAdapter struct {
	log *sqllog.Log
}

// NewLogAdapterFromPGXPool creates a new LogAdapter using a pgx Pool with optional configuration.
func NewLogAdapterFromPGXPool(db *pgxpool.Pool, options ...Option) (*LogAdapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newLogAdapter(adapters.NewPGXAdapter(db), options...)
}

// NewLogAdapterFromSQLDB creates a new LogAdapter using a sql.DB with optional configuration.
func NewLogAdapterFromSQLDB(db *sql.DB, options ...Option) (*LogAdapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newLogAdapter(adapters.NewSQLAdapter(db), options...)
}

// NewLogAdapterFromSQLX creates a new LogAdapter using a sqlx.DB with optional configuration.
func NewLogAdapterFromSQLX(db *sqlx.DB, options ...Option) (*LogAdapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newLogAdapter(adapters.NewSQLXAdapter(db), options...)
}

func newLogAdapter(db adapters.DBAdapter, options ...Option) (*LogAdapter, error) {
	s := settings{eventTableName: defaultEventTableName}

	for _, option := range options {
		if err := option(&s); err != nil {
			return nil, err
		}
	}

	cfg := sqllog.Config{
		DB:                db,
		Dialect:           dialectPostgres,
		TableName:         s.eventTableName,
		CreateTableDDL:    createTableDDL,
		IsUniqueViolation: isUniqueViolation,
	}

	if s.logger != nil {
		cfg.Logger = s.logger
	}

	return &LogAdapter{log: sqllog.New(cfg)}, nil
}

// TableName returns the name of the events table.
func (a *LogAdapter) TableName() string {
	return a.log.TableName()
}

// CreateTable creates the events table if it does not exist yet.
func (a *LogAdapter) CreateTable(ctx context.Context) error {
	return a.log.CreateTable(ctx)
}

// Append inserts event as the next row of the events table.
// A second event with the same identifier fails with eventstore.ErrDuplicateEventIdentifier.
func (a *LogAdapter) Append(ctx context.Context, event eventstore.Event) error {
	return a.log.Append(ctx, event)
}

// ReadAll returns all events in sequence order, each in the JSON wire shape of an eventstore.Event.
func (a *LogAdapter) ReadAll(ctx context.Context) (eventstore.RawRecords, error) {
	return a.log.ReadAll(ctx)
}

// isUniqueViolation recognizes the unique_violation SQLSTATE from both pgx and lib/pq.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}

	return false
}
