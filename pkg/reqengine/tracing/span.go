// Package tracing injects the distributed-tracing headers RequestCore
// attaches to every outbound attempt (spec.md §4.2, §6) on top of the
// ambient observability.Tracer facade.
package tracing

import (
	"context"

	"github.com/reqengine/reqengine/pkg/observability"
	"github.com/reqengine/reqengine/pkg/vos"
)

// Header names propagated on every attempt, matching the source's
// Ya-prefixed tracing headers.
const (
	HeaderTraceID   = "X-YaTraceId"
	HeaderSpanID    = "X-YaSpanId"
	HeaderRequestID = "X-YaRequestId"
)

// AttemptSpan wraps the observability.Span created for one logical
// request together with the header values injected into every attempt, so
// RequestCore can re-derive the same headers across retries and tag the
// span exactly once, at terminal resolution (spec.md §3: "the
// TracingSpan exists across all attempts of one Request and is released
// exactly at terminal resolution").
type AttemptSpan struct {
	span      observability.Span
	traceID   string
	requestID string
}

// Start begins a new client span for a logical request named by method
// and url, and mints the trace-id/request-id pair attached to every
// attempt of that request. traceID comes from a fresh UUID; requestID
// from a fresh ULID (sortable).
func Start(ctx context.Context, tracer observability.Tracer, method, url string) (context.Context, *AttemptSpan, error) {
	traceID, err := vos.NewUUID()
	if err != nil {
		return ctx, nil, err
	}
	return StartWithTraceID(ctx, tracer, method, url, traceID.String())
}

// StartWithTraceID begins a new span reusing a trace-id already minted by
// an earlier, independent request, so two correlated logical requests (not
// two attempts of the same one — RequestCore keeps a single AttemptSpan
// for that, see Start) share one trace across the distributed system.
func StartWithTraceID(ctx context.Context, tracer observability.Tracer, method, url, traceID string) (context.Context, *AttemptSpan, error) {
	requestID, err := vos.NewULID()
	if err != nil {
		return ctx, nil, err
	}

	spanCtx, span := tracer.Start(ctx, "reqengine.attempt",
		observability.WithSpanKind(observability.SpanKindClient),
		observability.WithAttributes(
			observability.String("http.method", method),
			observability.String("http.url", url),
			observability.String("trace.id", traceID),
			observability.String("request.id", requestID.String()),
		),
	)

	return spanCtx, &AttemptSpan{span: span, traceID: traceID, requestID: requestID.String()}, nil
}

// Headers returns the tracing headers to attach to the outbound request.
func (s *AttemptSpan) Headers() map[string]string {
	return map[string]string{
		HeaderTraceID:   s.traceID,
		HeaderSpanID:    s.requestID,
		HeaderRequestID: s.requestID,
	}
}

// TraceID returns the trace-id this span was started or reused with, so a
// correlated, independent request can pass it to StartWithTraceID.
func (s *AttemptSpan) TraceID() string {
	return s.traceID
}

// transportErrorStatusCode is the synthetic status code (spec.md §4.2,
// §7) the span is tagged with on a transport-level failure, where no real
// HTTP status was ever received.
const transportErrorStatusCode = 599

// Finish tags the span with the request's final outcome and ends it. err is the
// transport-level error, if any; statusCode is 0 when no response was
// received, in which case a transport error is tagged with the synthetic
// 599 code instead.
func (s *AttemptSpan) Finish(statusCode int, err error) {
	taggedCode := statusCode
	if err != nil && taggedCode <= 0 {
		taggedCode = transportErrorStatusCode
	}
	if taggedCode > 0 {
		s.span.SetAttributes(observability.Int("http.status_code", taggedCode))
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetAttributes(observability.Bool("error", true))
		s.span.SetStatus(observability.StatusCodeError, err.Error())
	} else if statusCode >= 500 {
		s.span.SetAttributes(observability.Bool("error", true))
		s.span.SetStatus(observability.StatusCodeError, "server error")
	} else {
		s.span.SetStatus(observability.StatusCodeOK, "")
	}
	s.span.End()
}
