// Package sqllog implements an eventstore.LogAdapter on top of a relational table.
// The SQL dialect is a parameter, so the postgres and sqlite engines share one implementation.
package sqllog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/internal/adapters"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrBuildingQueryFailed   = errors.New("building the query failed")
	ErrAppendingEventFailed  = errors.New("appending the event failed")
	ErrQueryingEventsFailed  = errors.New("querying events failed")
	ErrScanningDBRowFailed   = errors.New("scanning db row failed")
	ErrEncodingPayloadFailed = errors.New("encoding the payload failed")
	ErrInvalidPayloadJSON    = errors.New("stored payload json is not valid")
	ErrInvalidOccurredAt     = errors.New("stored occurred_at is not a valid timestamp")
	ErrCreatingTableFailed   = errors.New("creating the event table failed")
	ErrNoRowInserted         = errors.New("the insert did not affect exactly one row")
)

const (
	ColSequenceNumber = "sequence_number"
	ColIdentifier     = "identifier"
	ColEventType      = "event_type"
	ColEventVersion   = "event_version"
	ColOccurredAt     = "occurred_at"
	ColPayload        = "payload"

	logMsgSQLExecuted    = "executed sql for: "
	logMsgOperation      = "eventstore operation: "
	logMsgEventAppended  = "event appended"
	logMsgLogRead        = "log read"
	logMsgQueryFailed    = "database query execution failed"
	logMsgExecFailed     = "database execution failed during event append"
	logMsgCloseRowsFail  = "failed to close database rows"
	logMsgScanRowFailed  = "failed to scan database row"
	logAttrError         = "error"
	logAttrQuery         = "query"
	logAttrEventType     = "event_type"
	logAttrEventCount    = "event_count"
	logAttrDurationMS    = "duration_ms"
	logActionAppend      = "append"
	logActionReadAll     = "read_all"
	logActionCreateTable = "create_table"
)

// Logger interface for SQL query logging, operational messages, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config describes one SQL log.
type Config struct {
	DB        adapters.DBAdapter
	Dialect   string
	TableName string
	Logger    Logger

	// CreateTableDDL is executed by CreateTable; it must contain one %s for the table name.
	CreateTableDDL string

	// IsUniqueViolation reports whether err is the driver's unique constraint violation.
	IsUniqueViolation func(err error) bool

	// EncodeTime converts an event date into the bind value of occurred_at. Defaults to the UTC time.Time.
	EncodeTime func(date time.Time) any
}

// Log is a relational eventstore.LogAdapter for eventstore.Event.
type Log struct {
	cfg     Config
	builder goqu.DialectWrapper
}

// New creates a Log from cfg. Callers validate cfg.
func New(cfg Config) *Log {
	if cfg.EncodeTime == nil {
		cfg.EncodeTime = func(date time.Time) any { return date.UTC() }
	}

	return &Log{
		cfg:     cfg,
		builder: goqu.Dialect(cfg.Dialect),
	}
}

// TableName returns the name of the event table.
func (l *Log) TableName() string {
	return l.cfg.TableName
}

// CreateTable creates the event table if it does not exist yet.
func (l *Log) CreateTable(ctx context.Context) error {
	ddl := fmt.Sprintf(l.cfg.CreateTableDDL, l.cfg.TableName)

	start := time.Now()
	_, err := l.cfg.DB.Exec(ctx, ddl)
	l.logQueryWithDuration(ddl, logActionCreateTable, time.Since(start))

	if err != nil {
		l.logError(logMsgExecFailed, err, logAttrQuery, ddl)
		return errors.Join(ErrCreatingTableFailed, err)
	}

	return nil
}

// Append inserts one row for event. The table's sequence number defines the log order.
func (l *Log) Append(ctx context.Context, event eventstore.Event) error {
	sqlQuery, args, err := l.buildInsertQuery(event)
	if err != nil {
		return err
	}

	start := time.Now()
	result, execErr := l.cfg.DB.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	l.logQueryWithDuration(sqlQuery, logActionAppend, duration)

	if execErr != nil {
		l.logError(logMsgExecFailed, execErr, logAttrQuery, sqlQuery, logAttrEventType, event.Type)

		if l.cfg.IsUniqueViolation != nil && l.cfg.IsUniqueViolation(execErr) {
			return errors.Join(ErrAppendingEventFailed, eventstore.ErrDuplicateEventIdentifier, execErr)
		}

		return errors.Join(ErrAppendingEventFailed, execErr)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Join(ErrAppendingEventFailed, err)
	}

	if rowsAffected != 1 {
		return errors.Join(ErrAppendingEventFailed, fmt.Errorf("%w: %d rows", ErrNoRowInserted, rowsAffected))
	}

	l.logOperation(logMsgEventAppended, logAttrEventType, event.Type, logAttrDurationMS, toMilliseconds(duration))

	return nil
}

func (l *Log) buildInsertQuery(event eventstore.Event) (string, []any, error) {
	payloadJSON := []byte("{}")

	if event.Data != nil {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return "", nil, errors.Join(ErrEncodingPayloadFailed, err)
		}

		payloadJSON = encoded
	}

	insertStmt := l.builder.
		Insert(l.cfg.TableName).
		Cols(ColIdentifier, ColEventType, ColEventVersion, ColOccurredAt, ColPayload).
		Vals(goqu.Vals{
			event.Identifier,
			event.Type,
			int64(event.Version),
			l.cfg.EncodeTime(event.Date),
			string(payloadJSON),
		}).
		Prepared(true)

	sqlQuery, args, err := insertStmt.ToSQL()
	if err != nil {
		return "", nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, args, nil
}

func (l *Log) buildSelectQuery() (string, error) {
	selectStmt := l.builder.
		From(l.cfg.TableName).
		Select(ColIdentifier, ColEventType, ColEventVersion, ColOccurredAt, ColPayload).
		Order(goqu.I(ColSequenceNumber).Asc())

	sqlQuery, _, err := selectStmt.ToSQL()
	if err != nil {
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

// ReadAll returns every row, in sequence order, in the JSON wire shape of an event.
func (l *Log) ReadAll(ctx context.Context) (eventstore.RawRecords, error) {
	sqlQuery, err := l.buildSelectQuery()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, queryErr := l.cfg.DB.Query(ctx, sqlQuery)
	duration := time.Since(start)
	l.logQueryWithDuration(sqlQuery, logActionReadAll, duration)

	if queryErr != nil {
		l.logError(logMsgQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryingEventsFailed, queryErr)
	}
	defer l.closeRows(rows)

	records := make(eventstore.RawRecords, 0)

	for rows.Next() {
		record, scanErr := l.scanRecord(rows)
		if scanErr != nil {
			l.logError(logMsgScanRowFailed, scanErr)
			return nil, scanErr
		}

		records = append(records, record)
	}

	if iterErr := rows.Err(); iterErr != nil {
		l.logError(logMsgQueryFailed, iterErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryingEventsFailed, iterErr)
	}

	l.logOperation(logMsgLogRead, logAttrEventCount, len(records), logAttrDurationMS, toMilliseconds(time.Since(start)))

	return records, nil
}

type wireRecord struct {
	Type       string              `json:"type"`
	Version    int64               `json:"version"`
	Identifier string              `json:"identifier"`
	Date       string              `json:"date"`
	Data       jsoniter.RawMessage `json:"data"`
}

func (l *Log) scanRecord(rows adapters.DBRows) (eventstore.RawRecord, error) {
	var (
		identifier string
		eventType  string
		version    int64
		occurredAt any
		payload    []byte
	)

	if err := rows.Scan(&identifier, &eventType, &version, &occurredAt, &payload); err != nil {
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	date, err := normalizeOccurredAt(occurredAt)
	if err != nil {
		return nil, err
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: event %s", ErrInvalidPayloadJSON, identifier)
	}

	record, err := json.Marshal(wireRecord{
		Type:       eventType,
		Version:    version,
		Identifier: identifier,
		Date:       date,
		Data:       payload,
	})
	if err != nil {
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	return record, nil
}

// normalizeOccurredAt accepts what the drivers return for the occurred_at column.
func normalizeOccurredAt(value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case string:
		return reformatTimestamp(v)
	case []byte:
		return reformatTimestamp(string(v))
	default:
		return "", fmt.Errorf("%w: unexpected type %T", ErrInvalidOccurredAt, value)
	}
}

func reformatTimestamp(text string) (string, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999Z07:00"} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC().Format(time.RFC3339Nano), nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidOccurredAt, text)
}

// closeRows safely closes database rows and logs any errors.
func (l *Log) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if l.cfg.Logger != nil {
			l.cfg.Logger.Warn(logMsgCloseRowsFail, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL queries with execution time at debug level if the logger is configured.
func (l *Log) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (l *Log) logOperation(action string, args ...any) {
	if l.cfg.Logger != nil {
		l.cfg.Logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level if the logger is configured.
func (l *Log) logError(message string, err error, args ...any) {
	if l.cfg.Logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		l.cfg.Logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
