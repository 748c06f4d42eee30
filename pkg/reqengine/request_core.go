package reqengine

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"github.com/reqengine/reqengine/pkg/observability"
	"github.com/reqengine/reqengine/pkg/reqengine/reactor"
	"github.com/reqengine/reqengine/pkg/reqengine/stats"
	"github.com/reqengine/reqengine/pkg/reqengine/tracing"
	"github.com/reqengine/reqengine/pkg/reqengine/transfer"
)

// handleFactory builds a fresh transfer handle for one attempt. Exists so
// tests can substitute a fake transfer without a real network stack.
type handleFactory func() transferHandle

// transferHandle is the subset of *transfer.Handle RequestCore drives.
// Defining it as an interface here, rather than depending on the
// concrete type directly, keeps RequestCore testable with a fake.
type transferHandle interface {
	SetURL(string)
	SetMethod(string)
	SetFollowLocation(bool)
	SetMaxRedirects(int)
	SetVerifyPeer(bool)
	SetVerifyHost(bool)
	SetCAFile(string)
	SetCAPath(string)
	SetCRLFile(string)
	SetHTTPVersion(string)
	SetTimeout(time.Duration)
	SetHeaders(map[string]string)
	SetAcceptEncoding(string)
	SetPostBody([]byte)
	SetUploadPut(transfer.ReadFunc, int64)
	SetBodySink(io.Writer)
	SetHeaderFunction(transfer.HeaderFunc)
	AsyncPerform(func(error))
	Cancel()
	ResponseCode() int
}

// requestConfig is the immutable-after-build snapshot a RequestBuilder
// produces. See request_builder.go.
type requestConfig struct {
	method             string
	url                string
	headers            map[string]string
	timeout            time.Duration
	followRedirects    bool
	maxRedirects       int
	verify             bool
	caFile             string
	caPath             string
	crlFile            string
	httpVersion        string
	maxAttempts        int
	onTransportFailure bool
	body               []byte
	putBody            []byte
	statsLabel         string
}

// requestCore owns one logical request's lifetime: a configuration
// snapshot taken from a RequestBuilder, the retry loop, and the Promise
// it eventually resolves. All mutation of its fields happens only on the
// reactor goroutine (spec.md §5), reached either by the Post in
// asyncPerform or by a transfer/timer callback the reactor itself
// dispatched.
type requestCore struct {
	reactor   *reactor.Reactor
	newHandle handleFactory
	tracer    observability.Tracer
	sink      *stats.Sink
	strategy  BackoffStrategy
	logger    observability.Logger

	cfg requestConfig

	retryState     *retryState
	promise        *future
	cancelled      bool
	completeOnce   onceFlag
	reqStats       *stats.RequestStats
	response       *Response
	currentSpan    *tracing.AttemptSpan
	lastStatusCode int
	deadlineTimer  *reactor.Timer
	abortCurrent   func()
}

// onceFlag is a tiny idempotency guard for code paths already confined to
// the reactor goroutine, where sync.Once's extra synchronization would be
// pure overhead.
type onceFlag struct {
	done bool
}

func (f *onceFlag) do(fn func()) {
	if f.done {
		return
	}
	f.done = true
	fn()
}

func newRequestCore(r *reactor.Reactor, newHandle handleFactory, tracer observability.Tracer, sink *stats.Sink, strategy BackoffStrategy, logger observability.Logger, cfg requestConfig) *requestCore {
	return &requestCore{
		reactor:   r,
		newHandle: newHandle,
		tracer:    tracer,
		sink:      sink,
		strategy:  strategy,
		logger:    logger,
		cfg:       cfg,
	}
}

// asyncPerform starts the logical request: it allocates the one
// TracingSpan that lives across every attempt, posts the first attempt
// onto the reactor, and returns a ResponseFuture immediately. The
// aggregate deadline (spec.md §4.2) is scheduled alongside the first
// attempt and cancelled once the request completes.
func (c *requestCore) asyncPerform() *ResponseFuture {
	c.retryState = newRetryState(c.cfg.maxAttempts, c.cfg.onTransportFailure)
	c.promise = newFuture()

	rf := newResponseFuture(c.promise, func() {
		c.reactor.Post(func() { c.cancel() })
	})

	c.reactor.Post(func() {
		c.reqStats = c.sink.Start(context.Background())

		_, span, err := tracing.Start(context.Background(), c.tracer, c.cfg.method, c.cfg.url)
		if err != nil {
			c.onCompleted(nil, err)
			return
		}
		c.currentSpan = span

		if deadline := aggregateDeadline(c.cfg.timeout, c.cfg.maxAttempts); deadline > 0 {
			c.deadlineTimer = c.reactor.SingleshotAsync(deadline, func(error) {
				c.cancelled = true
				c.onCompleted(nil, &TimeoutError{Aggregate: true, Err: context.DeadlineExceeded})
			})
		}

		c.performRequest()
	})

	return rf
}

// performRequest drives a single attempt. Always called on the reactor
// goroutine.
func (c *requestCore) performRequest() {
	if c.cancelled {
		return
	}

	if c.logger != nil {
		c.logger.Debug(context.Background(), "reqengine: attempt starting",
			observability.String("http.method", c.cfg.method),
			observability.String("http.url", c.cfg.url),
			observability.Int("attempt", c.retryState.attemptsUsed))
	}

	handle := c.newHandle()
	handle.SetURL(c.cfg.url)
	handle.SetMethod(c.cfg.method)
	handle.SetFollowLocation(c.cfg.followRedirects)
	handle.SetMaxRedirects(c.cfg.maxRedirects)
	handle.SetVerifyPeer(c.cfg.verify)
	handle.SetVerifyHost(c.cfg.verify)
	handle.SetCAFile(c.cfg.caFile)
	handle.SetCAPath(c.cfg.caPath)
	handle.SetCRLFile(c.cfg.crlFile)
	handle.SetHTTPVersion(c.cfg.httpVersion)
	if c.cfg.timeout > 0 {
		handle.SetTimeout(c.cfg.timeout)
	}
	handle.SetAcceptEncoding("gzip, deflate")

	headers := make(map[string]string, len(c.cfg.headers)+3)
	for k, v := range c.cfg.headers {
		headers[k] = v
	}
	for k, v := range c.currentSpan.Headers() {
		headers[k] = v
	}
	handle.SetHeaders(headers)

	resp := newResponse()
	builder := newResponseBuilder(resp)
	c.response = resp

	switch {
	case c.cfg.putBody != nil:
		feeder := newPutBodyFeeder(c.cfg.putBody)
		handle.SetUploadPut(feeder.Read, int64(feeder.Len()))
	case c.cfg.body != nil:
		handle.SetPostBody(c.cfg.body)
	}

	handle.SetBodySink(builder)
	handle.SetHeaderFunction(func(line []byte) bool {
		if key, value, ok := ParseHeaderLine(line); ok {
			builder.SetHeader(key, value)
		}
		return true
	})

	c.abortCurrent = handle.Cancel

	c.reqStats.AttemptStarted(context.Background())
	handle.AsyncPerform(func(transportErr error) {
		c.reactor.Post(func() {
			c.reqStats.StoreTimeToStart(context.Background())
			resp.StatusCode = handle.ResponseCode()
			c.onAttemptResult(transportErr, resp.StatusCode)
		})
	})
}

// onAttemptResult implements on_retry: records this attempt's outcome in
// the Statistics sink (spec.md §6: exactly one of FinishOk/FinishEc per
// attempt) and then decides whether it finishes the request or schedules
// another attempt. The TracingSpan itself is untouched here — it is
// tagged and released exactly once, in onCompleted, at terminal
// resolution (spec.md §3).
func (c *requestCore) onAttemptResult(transportErr error, statusCode int) {
	c.lastStatusCode = statusCode

	if c.cancelled {
		c.reqStats.FinishEc(context.Background(), ErrCancelled)
		c.finishCancelled()
		return
	}

	if transportErr == nil {
		c.reqStats.FinishOk(context.Background(), statusCode)
	} else {
		c.reqStats.FinishEc(context.Background(), transportErr)
	}

	outcome := decideRetry(transportErr, statusCode, c.retryState, c.strategy)
	if !outcome.retry {
		c.onCompleted(c.response, wrapTerminalError(transportErr))
		return
	}

	c.retryState.attemptsUsed++
	c.reqStats.OnRetry(context.Background())

	if c.logger != nil {
		c.logger.Warn(context.Background(), "reqengine: retrying attempt",
			observability.String("http.method", c.cfg.method),
			observability.String("http.url", c.cfg.url),
			observability.Int("http.status_code", statusCode),
			observability.Error(transportErr))
	}

	c.reactor.SingleshotAsync(outcome.delay, func(error) {
		if c.cancelled {
			c.reqStats.FinishEc(context.Background(), ErrCancelled)
			c.finishCancelled()
			return
		}
		c.performRequest()
	})
}

func wrapTerminalError(transportErr error) error {
	if transportErr == nil {
		return nil
	}
	if errors.Is(transportErr, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(transportErr, context.DeadlineExceeded) {
		return &TimeoutError{Aggregate: false, Err: transportErr}
	}
	return NewTransportError("perform", transportErr)
}

// onCompleted resolves the promise exactly once, records the logical
// request's terminal stats, tags and releases its TracingSpan, and is the
// single path by which a request's lifetime ends (success, retries
// exhausted, cancellation, or aggregate timeout).
func (c *requestCore) onCompleted(resp *Response, err error) {
	c.completeOnce.do(func() {
		if c.deadlineTimer != nil {
			c.deadlineTimer.Stop()
		}
		c.reqStats.Done(context.Background())
		if c.currentSpan != nil {
			c.currentSpan.Finish(c.lastStatusCode, err)
		}
		if err != nil {
			if c.logger != nil {
				c.logger.Error(context.Background(), "reqengine: request failed",
					observability.String("http.method", c.cfg.method),
					observability.String("http.url", c.cfg.url),
					observability.Error(err))
			}
			c.promise.reject(err)
			return
		}
		c.promise.resolve(resp)
	})
}

func (c *requestCore) finishCancelled() {
	c.onCompleted(nil, ErrCancelled)
}

// cancel marks the request cancelled and asks the in-flight handle (if
// any) to abort. Idempotent; safe to call even before the first attempt
// has installed a handle.
func (c *requestCore) cancel() {
	if c.cancelled {
		return
	}
	c.cancelled = true
	if c.abortCurrent != nil {
		c.abortCurrent()
	}
}

// aggregateDeadline implements spec.md §4.2's overall deadline formula:
//
//	ceil(per_attempt_timeout * 1.1 * attempts_configured + sum of backoff
//	     ceilings across every scheduled retry)
//
// Returns 0 (no deadline enforced) when perAttempt is 0, matching "0
// means engine default" with no aggregate cap imposed.
func aggregateDeadline(perAttempt time.Duration, maxAttempts int) time.Duration {
	if perAttempt <= 0 || maxAttempts <= 0 {
		return 0
	}

	total := time.Duration(math.Ceil(float64(perAttempt) * 1.1 * float64(maxAttempts)))
	for i := 1; i < maxAttempts; i++ {
		exp := i - 1
		if exp > 5 {
			exp = 5
		}
		total += kEBBase * time.Duration(1<<exp+1)
	}
	return total
}
