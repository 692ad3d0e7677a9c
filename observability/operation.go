package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/tokenkeeper/errors"
)

// Outcome labels for the login and refresh counters.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Operation is one traced and timed lifecycle operation.
type Operation struct {
	Name    string
	start   time.Time
	span    trace.Span
	metrics *Metrics
}

// StartOperation opens a span named "tokenkeeper.<name>" and starts the clock.
// metrics may be nil.
func StartOperation(ctx context.Context, metrics *Metrics, name string, attrs ...attribute.KeyValue) (context.Context, *Operation) {
	ctx, span := StartSpan(ctx, "tokenkeeper."+name, trace.WithAttributes(
		append([]attribute.KeyValue{attribute.String(AttrOperation, name)}, attrs...)...,
	))
	return ctx, &Operation{
		Name:    name,
		start:   time.Now(),
		span:    span,
		metrics: metrics,
	}
}

// SetAttributes adds attributes to the operation span.
func (o *Operation) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// Event adds a named event to the operation span.
func (o *Operation) Event(name string, attrs ...attribute.KeyValue) {
	o.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End records the duration and, when err is set, the failure with its code,
// then ends the span.
func (o *Operation) End(ctx context.Context, err error) {
	o.metrics.RecordDuration(ctx, o.Name, time.Since(o.start))
	if err != nil {
		code := ErrorCode(err)
		o.span.SetAttributes(attribute.String(AttrErrorCode, code))
		SetSpanError(trace.ContextWithSpan(ctx, o.span), err)
		o.metrics.RecordFailure(ctx, o.Name, code)
	}
	o.span.End()
}

// ErrorCode returns the AppError code of err, or INTERNAL.
func ErrorCode(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return string(appErr.Code)
	}
	return string(errors.ErrCodeInternal)
}

// Status maps err to StatusSuccess or StatusFailure.
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
