package eventstore

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	logMsgEventSaved          = "eventstore operation: event saved"
	logMsgInitialized         = "eventstore operation: initialize completed"
	logMsgTransactionFinished = "eventstore operation: transaction finished"
	logMsgEventBuffered       = "event buffered in open transaction"
	logMsgLockAcquired        = "store lock acquired"
	logMsgSaveFailed          = "saving the event failed"
	logMsgInitializeFailed    = "initialize failed"
	logMsgGetEventsFailed     = "reading the events failed"
	logMsgTransactionFailed   = "transaction failed"
	logMsgCommitFailed        = "committing a buffered event failed"
	logMsgPendingDiscarded    = "discarded uncommitted transaction events"
	logMsgSubscriberPanicked  = "subscriber panicked during notification"
	logAttrError              = "error"
	logAttrOperation          = "operation"
	logAttrEventCount         = "event_count"
	logAttrPendingCount       = "pending_count"
	logAttrDurationMS         = "duration_ms"
	logAttrWaitMS             = "wait_ms"
	logAttrSubscriptionID     = "subscription_id"

	spanNameSave        = "eventstore.save"
	spanNameInitialize  = "eventstore.initialize"
	spanNameGetEvents   = "eventstore.get_events"
	spanNameTransaction = "eventstore.transaction"

	spanAttrOperation  = "operation"
	spanAttrEventCount = "event_count"
	spanAttrErrorType  = "error_type"
	spanAttrDurationMS = "duration_ms"

	operationSave        = "save"
	operationInitialize  = "initialize"
	operationGetEvents   = "get_events"
	operationTransaction = "transaction"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeCanceled    = "canceled"
	errorTypeTimeout     = "timeout"
	errorTypeCorruption  = "corruption"
	errorTypeRolledBack  = "rolled_back"
	errorTypeLock        = "lock"
	errorTypePersistence = "persistence"
	errorTypeOther       = "other"

	metricSaveDuration        = "eventstore_save_duration_seconds"
	metricInitializeDuration  = "eventstore_initialize_duration_seconds"
	metricTransactionDuration = "eventstore_transaction_duration_seconds"
	metricLockWaitDuration    = "eventstore_lock_wait_duration_seconds"
	metricEventsSaved         = "eventstore_events_saved_total"
	metricEventsReplayed      = "eventstore_events_replayed"
	metricEventsCommitted     = "eventstore_events_committed"
	metricEventsRolledBack    = "eventstore_events_rolled_back"
	metricCorruptions         = "eventstore_corruptions_total"
	metricSubscriberPanics    = "eventstore_subscriber_panics_total"
	metricErrors              = "eventstore_errors_total"
)

var durationMetricByOperation = map[string]string{
	operationSave:        metricSaveDuration,
	operationInitialize:  metricInitializeDuration,
	operationTransaction: metricTransactionDuration,
}

// === Logging ===

// logOperationContext logs operational information at info level to every configured logger.
func (s *settings) logOperationContext(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

func (s *settings) logDebugContext(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	}
}

func (s *settings) logWarnContext(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
	}
}

// logErrorContext logs error information at the error level to every configured logger.
func (s *settings) logErrorContext(ctx context.Context, msg string, err error, args ...any) {
	if s.logger == nil && s.contextualLogger == nil {
		return
	}

	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (s *settings) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

func (s *settings) recordDuration(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

func (s *settings) incrementCounter(ctx context.Context, metricName string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
	} else {
		s.metricsCollector.IncrementCounter(metricName, labels)
	}
}

func (s *settings) recordValue(ctx context.Context, metricName string, value float64, operation string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation}

	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
	} else {
		s.metricsCollector.RecordValue(metricName, value, labels)
	}
}

// recordLockWait records how long an operation waited for the store lock.
func (s *settings) recordLockWait(ctx context.Context, operation string, wait time.Duration) {
	s.logDebugContext(ctx, logMsgLockAcquired, logAttrOperation, operation, logAttrWaitMS, s.toMilliseconds(wait))
	s.recordDuration(ctx, metricLockWaitDuration, wait, map[string]string{spanAttrOperation: operation})
}

func (s *settings) recordCorruption(ctx context.Context) {
	s.incrementCounter(ctx, metricCorruptions, map[string]string{})
}

// operationMetricsObserver encapsulates the metrics collection for one operation.
type operationMetricsObserver struct {
	s         *settings
	ctx       context.Context
	operation string
}

func (s *settings) startMetrics(ctx context.Context, operation string) *operationMetricsObserver {
	return &operationMetricsObserver{s: s, ctx: ctx, operation: operation}
}

func (o *operationMetricsObserver) recordSuccess(duration time.Duration) {
	o.s.recordDuration(o.ctx, durationMetricByOperation[o.operation], duration, map[string]string{
		spanAttrOperation: o.operation,
		"status":          statusSuccess,
	})
}

func (o *operationMetricsObserver) recordError(errorType string, duration time.Duration) {
	o.s.recordDuration(o.ctx, durationMetricByOperation[o.operation], duration, map[string]string{
		spanAttrOperation: o.operation,
		"status":          statusError,
	})

	o.s.incrementCounter(o.ctx, metricErrors, map[string]string{
		spanAttrOperation: o.operation,
		"status":          statusError,
		spanAttrErrorType: errorType,
	})
}

func (o *operationMetricsObserver) recordEvents(metricName string, count int) {
	o.s.recordValue(o.ctx, metricName, float64(count), o.operation)
}

// === Tracing ===

// operationTracingObserver encapsulates the span lifecycle of one operation.
type operationTracingObserver struct {
	s    *settings
	span SpanContext
}

func (s *settings) startTracing(ctx context.Context, spanName string, operation string) (*operationTracingObserver, context.Context) {
	if s.tracingCollector == nil {
		return &operationTracingObserver{s: s}, ctx
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanName, map[string]string{spanAttrOperation: operation})

	return &operationTracingObserver{s: s, span: span}, newCtx
}

func (o *operationTracingObserver) finishSuccess(eventCount int, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.span.AddAttribute(spanAttrDurationMS, formatMilliseconds(duration))

	o.s.tracingCollector.FinishSpan(o.span, statusSuccess, map[string]string{
		spanAttrEventCount: fmt.Sprintf("%d", eventCount),
	})
}

func (o *operationTracingObserver) finishError(errorType string, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrErrorType, errorType)
	o.span.AddAttribute(spanAttrDurationMS, formatMilliseconds(duration))

	o.s.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

func formatMilliseconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1e6)
}
