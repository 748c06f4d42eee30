package reqengine

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqengine/reqengine/pkg/observability/fake"
	"github.com/reqengine/reqengine/pkg/reqengine/reactor"
	"github.com/reqengine/reqengine/pkg/reqengine/stats"
	"github.com/reqengine/reqengine/pkg/reqengine/transfer"
)

// fakeHandle is a transferHandle double that lets tests script a fixed
// sequence of outcomes without touching the network.
type fakeHandle struct {
	outcomes  []fakeOutcome
	call      int
	bodySink  io.Writer
	headerFn  transfer.HeaderFunc
	cancelled bool
	respCode  int
}

type fakeOutcome struct {
	statusCode int
	err        error
	headers    map[string]string
	body       string
}

func (h *fakeHandle) SetURL(string)                               {}
func (h *fakeHandle) SetMethod(string)                             {}
func (h *fakeHandle) SetFollowLocation(bool)                       {}
func (h *fakeHandle) SetMaxRedirects(int)                          {}
func (h *fakeHandle) SetVerifyPeer(bool)                           {}
func (h *fakeHandle) SetVerifyHost(bool)                           {}
func (h *fakeHandle) SetCAFile(string)                             {}
func (h *fakeHandle) SetCAPath(string)                             {}
func (h *fakeHandle) SetCRLFile(string)                            {}
func (h *fakeHandle) SetHTTPVersion(string)                        {}
func (h *fakeHandle) SetTimeout(time.Duration)                     {}
func (h *fakeHandle) SetHeaders(map[string]string)                 {}
func (h *fakeHandle) SetAcceptEncoding(string)                     {}
func (h *fakeHandle) SetPostBody([]byte)                           {}
func (h *fakeHandle) SetUploadPut(transfer.ReadFunc, int64)        {}
func (h *fakeHandle) SetBodySink(w io.Writer)                      { h.bodySink = w }
func (h *fakeHandle) SetHeaderFunction(fn transfer.HeaderFunc)      { h.headerFn = fn }
func (h *fakeHandle) Cancel()                                      { h.cancelled = true }
func (h *fakeHandle) ResponseCode() int                            { return h.respCode }

func (h *fakeHandle) AsyncPerform(cb func(error)) {
	outcome := h.outcomes[h.call]
	h.call++
	h.respCode = outcome.statusCode
	for k, v := range outcome.headers {
		h.headerFn([]byte(k + ": " + v + "\r\n"))
	}
	if outcome.body != "" {
		_, _ = h.bodySink.Write([]byte(outcome.body))
	}
	cb(outcome.err)
}

func newTestCore(t *testing.T, outcomes []fakeOutcome, cfg requestConfig) (*requestCore, *reactor.Reactor, *fake.Provider) {
	t.Helper()
	r := reactor.New(16)
	go r.Run(t.Context())

	fh := &fakeHandle{outcomes: outcomes}
	provider := fake.NewProvider()
	sink := stats.New(provider.Metrics())
	strategy := newUniformJitterBackoff(rand.New(rand.NewSource(1)))
	core := newRequestCore(r, func() transferHandle { return fh }, provider.Tracer(), sink, strategy, provider.Logger(), cfg)
	return core, r, provider
}

func TestRequestCoreResolvesOnFirstSuccess(t *testing.T) {
	cfg := requestConfig{method: "GET", url: "http://example.invalid", maxAttempts: 1}
	core, _, _ := newTestCore(t, []fakeOutcome{{statusCode: 200, body: "ok"}}, cfg)

	future := core.asyncPerform()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := future.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body()))
}

func TestRequestCoreRetriesOnBadStatusThenSucceeds(t *testing.T) {
	cfg := requestConfig{method: "GET", url: "http://example.invalid", maxAttempts: 3}
	core, _, _ := newTestCore(t, []fakeOutcome{
		{statusCode: 503},
		{statusCode: 503},
		{statusCode: 200, body: "done"},
	}, cfg)

	future := core.asyncPerform()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := future.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "done", string(resp.Body()))
}

// TestRequestCoreUsesOneSpanAcrossRetries guards against a regression where
// a fresh AttemptSpan was minted per attempt instead of once per logical
// request: a 503,503,200 sequence must produce exactly one span, tagged
// with the final 200 outcome, not three spans tagged 503/503/200.
func TestRequestCoreUsesOneSpanAcrossRetries(t *testing.T) {
	cfg := requestConfig{method: "GET", url: "http://example.invalid", maxAttempts: 3}
	core, _, provider := newTestCore(t, []fakeOutcome{
		{statusCode: 503},
		{statusCode: 503},
		{statusCode: 200, body: "done"},
	}, cfg)

	future := core.asyncPerform()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := future.Get(ctx)
	require.NoError(t, err)

	tracer := provider.Tracer().(*fake.FakeTracer)
	spans := tracer.GetSpans()
	require.Len(t, spans, 1)
	assert.NotNil(t, spans[0].EndTime)

	metrics := provider.Metrics().(*fake.FakeMetrics)
	attempts := metrics.GetCounter("reqengine.attempts")
	require.NotNil(t, attempts)
	assert.Len(t, attempts.GetValues(), 3)

	attemptDuration := metrics.GetHistogram("reqengine.attempt_duration")
	require.NotNil(t, attemptDuration)
	assert.Len(t, attemptDuration.GetValues(), 3, "FinishOk/FinishEc must be called once per attempt, not once per request")

	duration := metrics.GetHistogram("reqengine.duration")
	require.NotNil(t, duration)
	assert.Len(t, duration.GetValues(), 1, "Done must be called exactly once per logical request")
}

// TestRequestCoreRecordsFinishEcThenFinishOkOnTransportFailureThenSuccess
// matches the ECONNREFUSED-then-200 scenario: one transport-error outcome
// followed by one success must record exactly one FinishEc and one
// FinishOk, not a single call at terminal resolution.
func TestRequestCoreRecordsFinishEcThenFinishOkOnTransportFailureThenSuccess(t *testing.T) {
	cfg := requestConfig{method: "GET", url: "http://example.invalid", maxAttempts: 2, onTransportFailure: true}
	core, _, provider := newTestCore(t, []fakeOutcome{
		{err: errors.New("connection refused")},
		{statusCode: 200, body: "done"},
	}, cfg)

	future := core.asyncPerform()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := future.Get(ctx)
	require.NoError(t, err)

	metrics := provider.Metrics().(*fake.FakeMetrics)
	transportErrors := metrics.GetCounter("reqengine.transport_errors")
	require.NotNil(t, transportErrors)
	assert.Len(t, transportErrors.GetValues(), 1)

	attempts := metrics.GetCounter("reqengine.attempts")
	require.NotNil(t, attempts)
	assert.Len(t, attempts.GetValues(), 2)

	tracer := provider.Tracer().(*fake.FakeTracer)
	assert.Len(t, tracer.GetSpans(), 1)
}

func TestRequestCoreFinishesWithLastBadStatusAfterExhaustion(t *testing.T) {
	cfg := requestConfig{method: "GET", url: "http://example.invalid", maxAttempts: 2}
	core, _, _ := newTestCore(t, []fakeOutcome{
		{statusCode: 503},
		{statusCode: 503},
	}, cfg)

	future := core.asyncPerform()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := future.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestRequestCoreHeaderCallbackPopulatesResponseHeaders(t *testing.T) {
	cfg := requestConfig{method: "GET", url: "http://example.invalid", maxAttempts: 1}
	core, _, _ := newTestCore(t, []fakeOutcome{
		{statusCode: 200, headers: map[string]string{"X-Trace": "abc"}},
	}, cfg)

	future := core.asyncPerform()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := future.Get(ctx)
	require.NoError(t, err)
	// ParseHeaderLine does not trim the value beyond CR/LF, so the space
	// HTTP conventionally puts after the colon survives (see header_parser.go).
	assert.Equal(t, " abc", resp.Headers["X-Trace"])
}

func TestAggregateDeadlineZeroWhenNoTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), aggregateDeadline(0, 3))
	assert.Equal(t, time.Duration(0), aggregateDeadline(time.Second, 0))
}

func TestAggregateDeadlineGrowsWithAttempts(t *testing.T) {
	single := aggregateDeadline(time.Second, 1)
	multi := aggregateDeadline(time.Second, 3)
	assert.Greater(t, multi, single)
}
