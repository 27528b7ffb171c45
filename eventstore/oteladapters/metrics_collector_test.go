package oteladapters_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/oteladapters"
)

func newMetricsFixture() (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("eventstore-test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics), "error in collecting metrics")

	return resourceMetrics
}

func Test_MetricsCollector_RecordDuration_When_Recorded_AggregatesSecondsInAHistogram(t *testing.T) {
	// setup
	collector, reader := newMetricsFixture()
	labels := map[string]string{"operation": "save", "status": "success"}

	// act
	collector.RecordDuration("eventstore_save_duration_seconds", 150*time.Millisecond, labels)
	collector.RecordDuration("eventstore_save_duration_seconds", 50*time.Millisecond, labels)

	// assert
	histogram := findHistogramMetric(t, collect(t, reader), "eventstore_save_duration_seconds")
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(2), histogram.DataPoints[0].Count)
	assert.InDelta(t, 0.2, histogram.DataPoints[0].Sum, 0.001)

	expectedAttrs := attribute.NewSet(attribute.String("operation", "save"), attribute.String("status", "success"))
	assert.True(t, histogram.DataPoints[0].Attributes.Equals(&expectedAttrs))
}

func Test_MetricsCollector_IncrementCounter_When_LabelsDiffer_KeepsSeparateSeries(t *testing.T) {
	// setup
	collector, reader := newMetricsFixture()

	// act
	collector.IncrementCounter("eventstore_errors_total", map[string]string{"operation": "save", "error_type": "persistence"})
	collector.IncrementCounter("eventstore_errors_total", map[string]string{"operation": "save", "error_type": "persistence"})
	collector.IncrementCounter("eventstore_errors_total", map[string]string{"operation": "initialize", "error_type": "corruption"})

	// assert
	counter := findCounterMetric(t, collect(t, reader), "eventstore_errors_total")
	require.Len(t, counter.DataPoints, 2)

	valuesByOperation := make(map[string]int64)
	for _, dataPoint := range counter.DataPoints {
		operation, _ := dataPoint.Attributes.Value("operation")
		valuesByOperation[operation.AsString()] = dataPoint.Value
	}

	assert.Equal(t, map[string]int64{"save": 2, "initialize": 1}, valuesByOperation)
}

func Test_MetricsCollector_RecordValue_When_RecordedTwice_KeepsTheLastValue(t *testing.T) {
	// setup
	collector, reader := newMetricsFixture()
	labels := map[string]string{"operation": "initialize"}

	// act
	collector.RecordValue("eventstore_events_replayed", 12, labels)
	collector.RecordValue("eventstore_events_replayed", 30, labels)

	// assert
	gauge := findGaugeMetric(t, collect(t, reader), "eventstore_events_replayed")
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 30.0, gauge.DataPoints[0].Value, 0.0)
}

func Test_MetricsCollector_ContextualMethods_When_Called_RecordEveryInstrumentKind(t *testing.T) {
	// setup
	collector, reader := newMetricsFixture()
	ctx := context.Background()

	// act
	collector.RecordDurationContext(ctx, "eventstore_lock_wait_duration_seconds", time.Millisecond, map[string]string{"operation": "save"})
	collector.IncrementCounterContext(ctx, "eventstore_corruptions_total", nil)
	collector.RecordValueContext(ctx, "eventstore_events_committed", 3, map[string]string{})

	// assert
	names := metricNames(collect(t, reader))
	assert.ElementsMatch(t, []string{
		"eventstore_lock_wait_duration_seconds",
		"eventstore_corruptions_total",
		"eventstore_events_committed",
	}, names)
}

func Test_MetricsCollector_When_InstrumentCreationFails_DropsTheMeasurement(t *testing.T) {
	// setup
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	collector := oteladapters.NewMetricsCollector(&refusingMeter{Meter: provider.Meter("eventstore-test")})
	ctx := context.Background()

	// act + assert
	assert.NotPanics(t, func() {
		collector.RecordDuration("refused_histogram", time.Second, nil)
		collector.IncrementCounter("refused_counter", nil)
		collector.RecordValue("refused_gauge", 1, nil)
		collector.RecordDurationContext(ctx, "refused_histogram", time.Second, nil)
		collector.IncrementCounterContext(ctx, "refused_counter", nil)
		collector.RecordValueContext(ctx, "refused_gauge", 1, nil)
	})

	collector.IncrementCounter("accepted_counter", nil)
	assert.Equal(t, []string{"accepted_counter"}, metricNames(collect(t, reader)))
}

func Test_MetricsCollector_When_UsedConcurrently_CountsEveryIncrement(t *testing.T) {
	// setup
	const goroutines = 20
	const incrementsEach = 50

	collector, reader := newMetricsFixture()

	var wg sync.WaitGroup

	// act
	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range incrementsEach {
				collector.IncrementCounter("eventstore_events_saved_total", map[string]string{"operation": "save"})
			}
		}()
	}

	wg.Wait()

	// assert
	counter := findCounterMetric(t, collect(t, reader), "eventstore_events_saved_total")
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(goroutines*incrementsEach), counter.DataPoints[0].Value)
}

// refusingMeter fails to create every instrument whose name starts with "refused_".
type refusingMeter struct {
	metric.Meter
}

var errInstrumentRefused = errors.New("instrument refused")

func (m *refusingMeter) Float64Histogram(name string, options ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	if strings.HasPrefix(name, "refused_") {
		return nil, errInstrumentRefused
	}

	return m.Meter.Float64Histogram(name, options...)
}

func (m *refusingMeter) Int64Counter(name string, options ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if strings.HasPrefix(name, "refused_") {
		return nil, errInstrumentRefused
	}

	return m.Meter.Int64Counter(name, options...)
}

func (m *refusingMeter) Float64Gauge(name string, options ...metric.Float64GaugeOption) (metric.Float64Gauge, error) {
	if strings.HasPrefix(name, "refused_") {
		return nil, errInstrumentRefused
	}

	return m.Meter.Float64Gauge(name, options...)
}

func metricNames(resourceMetrics metricdata.ResourceMetrics) []string {
	names := make([]string, 0)

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			names = append(names, m.Name)
		}
	}

	return names
}

func findMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	require.FailNow(t, "metric not found", "metric %s was not collected", name)

	return metricdata.Metrics{}
}

func findHistogramMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Histogram[float64] {
	t.Helper()

	histogram, ok := findMetric(t, resourceMetrics, name).Data.(metricdata.Histogram[float64])
	require.True(t, ok, "metric %s is not a float64 histogram", name)

	return histogram
}

func findCounterMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()

	counter, ok := findMetric(t, resourceMetrics, name).Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	return counter
}

func findGaugeMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Gauge[float64] {
	t.Helper()

	gauge, ok := findMetric(t, resourceMetrics, name).Data.(metricdata.Gauge[float64])
	require.True(t, ok, "metric %s is not a float64 gauge", name)

	return gauge
}
