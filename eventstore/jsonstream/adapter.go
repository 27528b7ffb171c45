package jsonstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrEmptyPath             = errors.New("empty log file path supplied")
	ErrPathIsDirectory       = errors.New("log file path is a directory")
	ErrMalformedLog          = errors.New("log file is not a valid json stream")
	ErrEncodingRecordFailed  = errors.New("encoding the record failed")
	ErrAppendingRecordFailed = errors.New("appending the record failed")
	ErrReadingLogFailed      = errors.New("reading the log file failed")
	ErrCreatingLogFailed     = errors.New("creating the log file failed")
)

const (
	streamHeader    = "[\n"
	recordDelimiter = ",\n"
	streamFooter    = "]"

	defaultFileMode = os.FileMode(0o644)

	logMsgRecordAppended = "jsonstream: record appended"
	logMsgLogRead        = "jsonstream: log read"
	logMsgAppendFailed   = "jsonstream: appending the record failed"
	logMsgReadFailed     = "jsonstream: reading the log failed"
	logAttrPath          = "path"
	logAttrBytes         = "bytes"
	logAttrRecordCount   = "record_count"
	logAttrDurationMS    = "duration_ms"
	logAttrError         = "error"
)

// pathLocks hands out one eventstore.Lock per absolute path, shared by every Adapter in the process.
var pathLocks = struct {
	mu    sync.Mutex
	locks map[string]*eventstore.Lock
}{locks: make(map[string]*eventstore.Lock)}

func lockFor(absPath string) *eventstore.Lock {
	pathLocks.mu.Lock()
	defer pathLocks.mu.Unlock()

	lock, ok := pathLocks.locks[absPath]
	if !ok {
		lock = eventstore.NewLock()
		pathLocks.locks[absPath] = lock
	}

	return lock
}

// Adapter is a file-backed eventstore.LogAdapter.
//
// The file holds a JSON array that is left open while appending: a "[\n" header followed by one
// JSON record plus ",\n" per event. ReadAll strips the trailing delimiter and closes the array.
// Append and ReadAll on the same path are serialized by a lock that is independent of the Store's.
type Adapter[E any] struct {
	path string
	lock *eventstore.Lock
	settings
}

// New creates an Adapter for path. The file is created on first use.
func New[E any](path string, options ...Option) (*Adapter[E], error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", path, err)
	}

	a := &Adapter[E]{
		path:     absPath,
		lock:     lockFor(absPath),
		settings: settings{fileMode: defaultFileMode},
	}

	for _, option := range options {
		if err := option(&a.settings); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Path returns the absolute path of the log file.
func (a *Adapter[E]) Path() string {
	return a.path
}

// Append writes event as one record at the end of the stream.
func (a *Adapter[E]) Append(ctx context.Context, event E) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Join(ErrEncodingRecordFailed, err)
	}

	record := make([]byte, 0, len(raw)+len(recordDelimiter))
	record = append(record, raw...)
	record = append(record, recordDelimiter...)

	return a.lock.WithLock(ctx, func(_ context.Context) error {
		start := time.Now()

		if err := a.appendRecord(record); err != nil {
			a.logError(logMsgAppendFailed, err)
			return errors.Join(ErrAppendingRecordFailed, err)
		}

		a.logDebug(logMsgRecordAppended, logAttrPath, a.path, logAttrBytes, len(record), logAttrDurationMS, toMilliseconds(time.Since(start)))

		return nil
	})
}

func (a *Adapter[E]) appendRecord(record []byte) error {
	if err := a.ensureFile(); err != nil {
		return err
	}

	file, err := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, a.fileMode)
	if err != nil {
		return err
	}

	if _, err = file.Write(record); err != nil {
		_ = file.Close()
		return err
	}

	if a.syncWrites {
		if err = file.Sync(); err != nil {
			_ = file.Close()
			return err
		}
	}

	return file.Close()
}

// ReadAll returns every record in append order.
func (a *Adapter[E]) ReadAll(ctx context.Context) (eventstore.RawRecords, error) {
	var records eventstore.RawRecords

	err := a.lock.WithLock(ctx, func(_ context.Context) error {
		start := time.Now()

		content, err := a.readFile()
		if err != nil {
			a.logError(logMsgReadFailed, err)
			return errors.Join(ErrReadingLogFailed, err)
		}

		records, err = parseStream(content)
		if err != nil {
			a.logError(logMsgReadFailed, err)
			return err
		}

		a.logDebug(logMsgLogRead, logAttrPath, a.path, logAttrRecordCount, len(records), logAttrDurationMS, toMilliseconds(time.Since(start)))

		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *Adapter[E]) readFile() ([]byte, error) {
	if err := a.ensureFile(); err != nil {
		return nil, err
	}

	return os.ReadFile(a.path)
}

// ensureFile writes the stream header if the file does not exist yet.
func (a *Adapter[E]) ensureFile() error {
	info, err := os.Stat(a.path)

	switch {
	case err == nil && info.IsDir():
		return ErrPathIsDirectory
	case err == nil:
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	if err = os.WriteFile(a.path, []byte(streamHeader), a.fileMode); err != nil {
		return errors.Join(ErrCreatingLogFailed, err)
	}

	return nil
}

// parseStream closes the open array and splits it into raw records.
func parseStream(content []byte) (eventstore.RawRecords, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return eventstore.RawRecords{}, nil
	}

	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: missing stream header", ErrMalformedLog)
	}

	trimmed = bytes.TrimSuffix(trimmed, []byte(","))

	closed := make([]byte, 0, len(trimmed)+len(streamFooter))
	closed = append(closed, trimmed...)
	closed = append(closed, streamFooter...)

	var rawRecords []jsoniter.RawMessage
	if err := json.Unmarshal(closed, &rawRecords); err != nil {
		return nil, errors.Join(ErrMalformedLog, err)
	}

	records := make(eventstore.RawRecords, 0, len(rawRecords))
	for _, raw := range rawRecords {
		records = append(records, eventstore.RawRecord(raw))
	}

	return records, nil
}
