package helper

import (
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
)

// SpyDurationRecord represents a recorded duration metric call.
type SpyDurationRecord struct {
	Metric   string
	Duration time.Duration
	Labels   map[string]string
}

// SpyCounterRecord represents a recorded counter increment call.
type SpyCounterRecord struct {
	Metric string
	Labels map[string]string
}

// SpyValueRecord represents a recorded value metric call.
type SpyValueRecord struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// MetricsCollectorSpy is an eventstore.MetricsCollector that captures metrics calls for testing.
type MetricsCollectorSpy struct {
	durationRecords []SpyDurationRecord
	counterRecords  []SpyCounterRecord
	valueRecords    []SpyValueRecord
	mu              sync.Mutex
	recordCalls     bool
}

// NewMetricsCollectorSpy creates a new MetricsCollectorSpy.
// Set recordCalls to true to capture all metrics calls for inspection in tests.
func NewMetricsCollectorSpy(recordCalls bool) *MetricsCollectorSpy {
	return &MetricsCollectorSpy{
		durationRecords: make([]SpyDurationRecord, 0),
		counterRecords:  make([]SpyCounterRecord, 0),
		valueRecords:    make([]SpyValueRecord, 0),
		recordCalls:     recordCalls,
	}
}

// RecordDuration implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.durationRecords = append(s.durationRecords, SpyDurationRecord{Metric: metric, Duration: duration, Labels: maps.Clone(labels)})
}

// IncrementCounter implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counterRecords = append(s.counterRecords, SpyCounterRecord{Metric: metric, Labels: maps.Clone(labels)})
}

// RecordValue implements the MetricsCollector interface.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.valueRecords = append(s.valueRecords, SpyValueRecord{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// GetDurationRecords returns a copy of all captured duration records.
func (s *MetricsCollectorSpy) GetDurationRecords() []SpyDurationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyDurationRecord, len(s.durationRecords))
	copy(records, s.durationRecords)

	return records
}

// GetCounterRecords returns a copy of all captured counter records.
func (s *MetricsCollectorSpy) GetCounterRecords() []SpyCounterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyCounterRecord, len(s.counterRecords))
	copy(records, s.counterRecords)

	return records
}

// GetValueRecords returns a copy of all captured value records.
func (s *MetricsCollectorSpy) GetValueRecords() []SpyValueRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyValueRecord, len(s.valueRecords))
	copy(records, s.valueRecords)

	return records
}

// Reset clears all captured metric records.
func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.durationRecords = s.durationRecords[:0]
	s.counterRecords = s.counterRecords[:0]
	s.valueRecords = s.valueRecords[:0]
}

// HasDurationRecordForMetric checks if there's a duration record with the specified metric name.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *SpyMetricMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]map[string]string, 0)
	for _, record := range s.durationRecords {
		if record.Metric == metric {
			candidates = append(candidates, record.Labels)
		}
	}

	return &SpyMetricMatcher{candidates: candidates}
}

// HasCounterRecordForMetric checks if there's a counter record with the specified metric name.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *SpyMetricMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]map[string]string, 0)
	for _, record := range s.counterRecords {
		if record.Metric == metric {
			candidates = append(candidates, record.Labels)
		}
	}

	return &SpyMetricMatcher{candidates: candidates}
}

// SumOfValues returns the sum of all recorded values for metric.
func (s *MetricsCollectorSpy) SumOfValues(metric string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := 0.0
	for _, record := range s.valueRecords {
		if record.Metric == metric {
			sum += record.Value
		}
	}

	return sum
}

// SpyMetricMatcher provides a fluent interface for checking the labels of metric records.
type SpyMetricMatcher struct {
	candidates []map[string]string
}

// WithOperation keeps only records with the given operation label.
func (m *SpyMetricMatcher) WithOperation(operation string) *SpyMetricMatcher {
	return m.WithLabel("operation", operation)
}

// WithStatus keeps only records with the given status label.
func (m *SpyMetricMatcher) WithStatus(status string) *SpyMetricMatcher {
	return m.WithLabel("status", status)
}

// WithErrorType keeps only records with the given error_type label.
func (m *SpyMetricMatcher) WithErrorType(errorType string) *SpyMetricMatcher {
	return m.WithLabel("error_type", errorType)
}

// WithLabel keeps only records whose label key equals value.
func (m *SpyMetricMatcher) WithLabel(key, value string) *SpyMetricMatcher {
	filtered := make([]map[string]string, 0, len(m.candidates))
	for _, labels := range m.candidates {
		if labels[key] == value {
			filtered = append(filtered, labels)
		}
	}

	return &SpyMetricMatcher{candidates: filtered}
}

// Assert returns true if at least one record matched the whole chain.
func (m *SpyMetricMatcher) Assert() bool {
	return len(m.candidates) > 0
}

// Count returns the number of records that matched the whole chain.
func (m *SpyMetricMatcher) Count() int {
	return len(m.candidates)
}

var _ eventstore.MetricsCollector = (*MetricsCollectorSpy)(nil)
