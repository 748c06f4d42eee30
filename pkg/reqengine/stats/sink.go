// Package stats records per-request timing and outcome metrics on top of
// the ambient observability.Metrics facade (spec.md §4.2's Sink
// interface: Start/StoreTimeToStart/FinishOk/FinishEc).
package stats

import (
	"context"
	"time"

	"github.com/reqengine/reqengine/pkg/observability"
)

// Sink holds instruments registered once, in New, and is safe to share
// across every RequestCore created by a single Client, matching the
// source's one-sink-per-client scoping.
type Sink struct {
	metrics observability.Metrics

	attempts        observability.Counter
	retries         observability.Counter
	transportErr    observability.Counter
	timeToStart     observability.Histogram
	attemptDuration observability.Histogram
	duration        observability.Histogram
	inFlight        observability.UpDownCounter
}

// New builds a Sink backed by metrics, registering its instruments
// eagerly so a misconfigured provider fails fast at construction instead
// of on the first request.
func New(metrics observability.Metrics) *Sink {
	return &Sink{
		metrics:         metrics,
		attempts:        metrics.Counter("reqengine.attempts", "HTTP attempts started", "1"),
		retries:         metrics.Counter("reqengine.retries", "HTTP attempts retried", "1"),
		transportErr:    metrics.Counter("reqengine.transport_errors", "transport-level failures", "1"),
		timeToStart:     metrics.Histogram("reqengine.time_to_start", "time from an attempt's submission to the first byte sent", "ms"),
		attemptDuration: metrics.Histogram("reqengine.attempt_duration", "time from an attempt's submission to its outcome", "ms"),
		duration:        metrics.Histogram("reqengine.duration", "time from AsyncPerform to terminal resolution", "ms"),
		inFlight:        metrics.UpDownCounter("reqengine.in_flight", "requests currently in flight", "1"),
	}
}

// RequestStats tracks one logical request (across all of its attempts)
// from the moment AsyncPerform is called. Start/FinishOk/FinishEc mirror
// the external Statistics contract (spec.md §6): Start is called once per
// logical request, while AttemptStarted/FinishOk/FinishEc are called once
// per attempt — exactly one of FinishOk/FinishEc per attempt outcome.
type RequestStats struct {
	sink           *Sink
	started        time.Time
	attemptStarted time.Time
}

// Start records that a new logical request has begun.
func (s *Sink) Start(ctx context.Context) *RequestStats {
	s.inFlight.Add(ctx, 1)
	return &RequestStats{sink: s, started: nowFunc()}
}

// AttemptStarted records that a new attempt of this request has been
// submitted to the transfer engine.
func (r *RequestStats) AttemptStarted(ctx context.Context) {
	r.attemptStarted = nowFunc()
	r.sink.attempts.Increment(ctx)
}

// StoreTimeToStart records the latency between the current attempt's
// submission and the first byte of the request being written to the wire.
func (r *RequestStats) StoreTimeToStart(ctx context.Context) {
	r.sink.timeToStart.Record(ctx, float64(nowFunc().Sub(r.attemptStarted).Milliseconds()))
}

// OnRetry records that an attempt is being retried.
func (r *RequestStats) OnRetry(ctx context.Context) {
	r.sink.retries.Increment(ctx)
}

// FinishOk records one attempt's successful outcome with its status code.
// Called once per attempt that completes without a transport error,
// whether or not the request goes on to retry a soft HTTP error.
func (r *RequestStats) FinishOk(ctx context.Context, statusCode int) {
	r.sink.attemptDuration.Record(ctx, float64(nowFunc().Sub(r.attemptStarted).Milliseconds()),
		observability.Int("http.status_code", statusCode))
}

// FinishEc records one attempt's outcome as a transport error (rather
// than an HTTP response). Called once per such attempt.
func (r *RequestStats) FinishEc(ctx context.Context, err error) {
	r.sink.transportErr.Increment(ctx)
	r.sink.attemptDuration.Record(ctx, float64(nowFunc().Sub(r.attemptStarted).Milliseconds()),
		observability.String("error", err.Error()))
}

// Done records the logical request's terminal resolution: it decrements
// the in-flight gauge and records the total time since Start. Called
// exactly once, regardless of how many attempts ran.
func (r *RequestStats) Done(ctx context.Context) {
	r.sink.inFlight.Add(ctx, -1)
	r.sink.duration.Record(ctx, float64(nowFunc().Sub(r.started).Milliseconds()))
}

// nowFunc is a var so tests can substitute deterministic timings; left as
// time.Now in production builds.
var nowFunc = time.Now
