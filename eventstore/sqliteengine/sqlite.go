package sqliteengine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/internal/adapters"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/internal/sqllog"
)

var (
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")
	ErrEmptyEventsTableName  = errors.New("events table name must not be empty")
	ErrEmptyPath             = errors.New("sqlite database path must not be empty")
	ErrOpeningDatabaseFailed = errors.New("opening the sqlite database failed")
)

const (
	defaultEventTableName = "events"
	driverName            = "sqlite"
	dialectSQLite         = "sqlite3"
	dsnPragmas            = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"

	createTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	sequence_number INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	event_version INTEGER NOT NULL,
	occurred_at TEXT NOT NULL,
	payload TEXT NOT NULL
)`
)

// LogAdapter is an eventstore.LogAdapter that keeps the log in a SQLite table.
type LogAdapter struct {
	log   *sqllog.Log
	owned *sql.DB
}

// Open opens (or creates) the SQLite database at path, creates the events table and returns a LogAdapter
// that owns the connection. Close releases it.
func Open(ctx context.Context, path string, options ...Option) (*LogAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}

	db, err := sql.Open(driverName, filepath.Clean(path)+dsnPragmas)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabaseFailed, err)
	}

	a, err := NewLogAdapterFromSQLDB(db, options...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err = a.CreateTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a.owned = db

	return a, nil
}

// NewLogAdapterFromSQLDB creates a new LogAdapter on an already opened "sqlite" sql.DB.
func NewLogAdapterFromSQLDB(db *sql.DB, options ...Option) (*LogAdapter, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	s := settings{eventTableName: defaultEventTableName}

	for _, option := range options {
		if err := option(&s); err != nil {
			return nil, err
		}
	}

	cfg := sqllog.Config{
		DB:                adapters.NewSQLAdapter(db),
		Dialect:           dialectSQLite,
		TableName:         s.eventTableName,
		CreateTableDDL:    createTableDDL,
		IsUniqueViolation: isUniqueViolation,
		EncodeTime: func(date time.Time) any {
			return date.UTC().Format(time.RFC3339Nano)
		},
	}

	if s.logger != nil {
		cfg.Logger = s.logger
	}

	return &LogAdapter{log: sqllog.New(cfg)}, nil
}

// Close closes the database if it was opened by Open.
func (a *LogAdapter) Close() error {
	if a == nil || a.owned == nil {
		return nil
	}

	return a.owned.Close()
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
func (a *LogAdapter) Append(ctx context.Context, event eventstore.Event) error {
	return a.log.Append(ctx, event)
}

// ReadAll returns all events in sequence order.
func (a *LogAdapter) ReadAll(ctx context.Context) (eventstore.RawRecords, error) {
	return a.log.ReadAll(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
