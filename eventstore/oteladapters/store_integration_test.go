package oteladapters_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/memorylog"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/oteladapters"
	. "github.com/AntonStoeckl/replaying-eventstore-go/testutil/helper" //nolint:revive
)

type observedStore struct {
	store    *CounterStore
	log      *InstrumentedLog
	spans    *tracetest.InMemoryExporter
	metrics  *sdkmetric.ManualReader
	provider *sdktrace.TracerProvider
}

func givenObservedStore(t *testing.T) observedStore {
	t.Helper()

	spans := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	log := NewInstrumentedLog(memorylog.New[eventstore.Event]())
	store := NewCounterStore(
		t,
		log,
		eventstore.WithTracing(oteladapters.NewTracingCollector(tracerProvider.Tracer("replaying-eventstore"))),
		eventstore.WithMetrics(oteladapters.NewMetricsCollector(meterProvider.Meter("replaying-eventstore"))),
		eventstore.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(slog.DiscardHandler)),
	)

	return observedStore{store: store, log: log, spans: spans, metrics: reader, provider: tracerProvider}
}

func Test_Store_When_ObservedWithOpenTelemetry_ExportsASpanPerSave(t *testing.T) {
	// setup
	ctx := context.Background()
	observed := givenObservedStore(t)

	// act
	GivenEventsWereSaved(t, ctx, observed.store, GivenIncremented(t, 2), GivenIncremented(t, 3))

	// assert
	spans := observed.spans.GetSpans()
	require.Len(t, spans, 2)

	for _, span := range spans {
		assert.Equal(t, "eventstore.save", span.Name)
		assert.Equal(t, codes.Ok, span.Status.Code)
		assertSpanHasAttribute(t, span, "operation", "save")
		assertSpanHasAttribute(t, span, "event_count", "1")
	}

	counter := findCounterMetric(t, collect(t, observed.metrics), "eventstore_events_saved_total")
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(2), counter.DataPoints[0].Value)
}

func Test_Store_When_TheAppendFails_MarksTheSpanAsAPersistenceError(t *testing.T) {
	// setup
	ctx := context.Background()
	observed := givenObservedStore(t)

	// arrange
	observed.log.FailAppendAt(1)

	// act
	err := observed.store.SaveEvent(ctx, GivenIncremented(t, 1))

	// assert
	require.ErrorIs(t, err, eventstore.ErrSavingEventFailed)

	spans := observed.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "Persisting the event failed", spans[0].Status.Description)
	assertSpanHasAttribute(t, spans[0], "error_type", "persistence")

	assert.Equal(t, CounterState{}, observed.store.GetState())
}

func Test_Store_When_ACommittedTransactionIsTraced_NestsNoSaveSpans(t *testing.T) {
	// setup
	ctx := context.Background()
	observed := givenObservedStore(t)

	// act
	err := observed.store.Transaction(ctx, func(ctx context.Context, tx *CounterTx) error {
		require.NoError(t, tx.SaveEvent(GivenIncremented(t, 4)))
		require.NoError(t, tx.SaveEvent(GivenDecremented(t, 1)))

		return tx.Commit(ctx)
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, CounterState{Count: 3, Applied: 2}, observed.store.GetState())

	spans := observed.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventstore.transaction", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "event_count", "2")
}

func Test_Store_When_InitializedUnderACallerSpan_ExportsAChildSpan(t *testing.T) {
	// setup
	ctx := context.Background()
	observed := givenObservedStore(t)
	GivenEventsWereSaved(t, ctx, observed.store, GivenIncremented(t, 1))
	observed.spans.Reset()

	parentCtx, parentSpan := observed.provider.Tracer("caller").Start(ctx, "rebuild-projection")

	// act
	err := observed.store.Initialize(parentCtx)
	parentSpan.End()

	// assert
	require.NoError(t, err)

	spans := observed.spans.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "eventstore.initialize", spans[0].Name)
	assert.Equal(t, parentSpan.SpanContext().SpanID(), spans[0].Parent.SpanID())

	replayed := findGaugeMetric(t, collect(t, observed.metrics), "eventstore_events_replayed")
	require.Len(t, replayed.DataPoints, 1)
	assert.InDelta(t, 1.0, replayed.DataPoints[0].Value, 0.0)
}
