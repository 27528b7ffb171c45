package oteladapters_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/oteladapters"
)

func Test_SlogBridgeLoggerWithHandler_When_LoggingAtEveryLevel_WritesThroughTheHandler(t *testing.T) {
	// setup
	buffer := &bytes.Buffer{}
	handler := slog.NewJSONHandler(buffer, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "store lock acquired", "operation", "save")
	logger.InfoContext(ctx, "eventstore operation: event saved", "event_count", 1)
	logger.WarnContext(ctx, "discarded uncommitted transaction events", "event_count", 2)
	logger.ErrorContext(ctx, "saving the event failed", "error", "disk full")

	// assert
	lines := strings.Split(strings.TrimSuffix(buffer.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	expected := []struct {
		level string
		msg   string
	}{
		{"DEBUG", "store lock acquired"},
		{"INFO", "eventstore operation: event saved"},
		{"WARN", "discarded uncommitted transaction events"},
		{"ERROR", "saving the event failed"},
	}

	for i, line := range lines {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Equal(t, expected[i].level, record["level"])
		assert.Equal(t, expected[i].msg, record["msg"])
	}
}

func Test_NewSlogBridgeLogger_When_Created_UsesTheGlobalProvider(t *testing.T) {
	// act
	logger := oteladapters.NewSlogBridgeLogger("replaying-eventstore")

	// assert
	require.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "eventstore operation: initialize completed", "event_count", 0)
	})
}

func Test_OTelLogger_When_LoggingAtEveryLevel_EmitsTheMatchingSeverity(t *testing.T) {
	// setup
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message")
	logger.InfoContext(ctx, "info message")
	logger.WarnContext(ctx, "warn message")
	logger.ErrorContext(ctx, "error message")

	// assert
	records := recorder.emitted()
	require.Len(t, records, 4)

	expected := []struct {
		severity log.Severity
		body     string
	}{
		{log.SeverityDebug, "debug message"},
		{log.SeverityInfo, "info message"},
		{log.SeverityWarn, "warn message"},
		{log.SeverityError, "error message"},
	}

	for i, record := range records {
		assert.Equal(t, expected[i].severity, record.Severity())
		assert.Equal(t, expected[i].body, record.Body().AsString())
	}
}

func Test_OTelLogger_When_ArgsHaveDifferentTypes_KeepsTheirKind(t *testing.T) {
	// setup
	recorder := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(recorder)

	// act
	logger.InfoContext(
		context.Background(),
		"eventstore operation: transaction finished",
		"operation", "transaction",
		"event_count", 3,
		"pending_count", int64(2),
		"sequence", uint64(7),
		"duration_ms", 1.5,
		"committed", true,
		"wait", 250*time.Millisecond,
		42, "ignored because the key is not a string",
		"dangling",
	)

	// assert
	records := recorder.emitted()
	require.Len(t, records, 1)

	attrs := make(map[string]log.Value)
	records[0].WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})

	require.Len(t, attrs, 7)
	assert.Equal(t, "transaction", attrs["operation"].AsString())
	assert.Equal(t, int64(3), attrs["event_count"].AsInt64())
	assert.Equal(t, int64(2), attrs["pending_count"].AsInt64())
	assert.Equal(t, int64(7), attrs["sequence"].AsInt64())
	assert.InDelta(t, 1.5, attrs["duration_ms"].AsFloat64(), 0.0)
	assert.True(t, attrs["committed"].AsBool())
	assert.Equal(t, log.KindString, attrs["wait"].Kind())
	assert.Equal(t, "250ms", attrs["wait"].AsString())
}

// recordingLogger keeps every emitted record.
type recordingLogger struct {
	noop.Logger

	mu      sync.Mutex
	records []log.Record
}

func (l *recordingLogger) Emit(_ context.Context, record log.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record)
}

func (l *recordingLogger) emitted() []log.Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]log.Record(nil), l.records...)
}
