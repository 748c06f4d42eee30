package reqengine

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/reqengine/reqengine/pkg/logger"
)

// ClientOption configures a Client at construction time: global concerns
// like the reactor's queue depth, the pooled base transport, and the
// default backoff strategy. Mirrors the teacher's ClientOption/
// RequestOption split (global client config vs. per-request config).
type ClientOption func(*clientConfig)

type clientConfig struct {
	queueDepth        int
	pooledTransport   *http.Client
	strategy          BackoffStrategy
	maxBodySize       int64
	processLogger     logger.Logger
	defaultTimeout    time.Duration
	defaultAttempts   int
	defaultOnFailure  bool
}

// WithQueueDepth sets the reactor's job queue buffer size.
func WithQueueDepth(depth int) ClientOption {
	return func(c *clientConfig) {
		if depth >= 0 {
			c.queueDepth = depth
		}
	}
}

// WithPooledTransport overrides the *http.Client every request reuses
// when it doesn't need a custom per-request TLS configuration.
func WithPooledTransport(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		if client != nil {
			c.pooledTransport = client
		}
	}
}

// WithExponentialBackoffStrategy switches every request created from this
// Client onto github.com/cenkalti/backoff/v4's jittered-exponential
// strategy instead of the default uniform-window formula.
func WithExponentialBackoffStrategy(initialInterval time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.strategy = NewExponentialBackoffStrategy(initialInterval)
	}
}

// DefaultMaxRequestBodySize bounds how large a POST/PATCH/PUT body may be
// before AsyncPerform refuses to buffer it for retry, mirroring the
// teacher's WithMaxBodySize default (see SPEC_FULL.md §11).
const DefaultMaxRequestBodySize = 10 << 20 // 10MB

// WithMaxBodySize sets the maximum request body size this Client will
// buffer for retry replay. 0 disables the limit. Default:
// DefaultMaxRequestBodySize.
func WithMaxBodySize(size int64) ClientOption {
	return func(c *clientConfig) {
		if size >= 0 {
			c.maxBodySize = size
		}
	}
}

// WithLogger attaches a process-level logger (pkg/logger, not the
// request-scoped observability.Logger RequestCore logs through) used for
// Client lifecycle events: construction and Close. Unset by default,
// matching the teacher's ClientOption/RequestOption split between global
// client concerns and per-request ones.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *clientConfig) {
		c.processLogger = l
	}
}

// WithDefaultTimeout sets the per-attempt timeout every RequestBuilder
// created from this Client starts with, unless overridden by
// RequestBuilder.Timeout. 0 (the default) means no timeout is applied
// unless the request sets one explicitly.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d >= 0 {
			c.defaultTimeout = d
		}
	}
}

// WithDefaultRetry sets the retry budget every RequestBuilder created
// from this Client starts with, unless overridden by RequestBuilder.Retry.
func WithDefaultRetry(maxAttempts int, onTransportFailure bool) ClientOption {
	return func(c *clientConfig) {
		if maxAttempts >= 1 {
			c.defaultAttempts = maxAttempts
			c.defaultOnFailure = onTransportFailure
		}
	}
}

// RequestBuilder is the fluent surface accumulating a single request's
// configuration (spec.md §4.1) before AsyncPerform or Perform launches
// it. A RequestBuilder is not reusable after either call.
type RequestBuilder struct {
	client *Client
	cfg    requestConfig
}

func newRequestBuilder(client *Client, method, url string) *RequestBuilder {
	maxAttempts := client.defaultAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RequestBuilder{
		client: client,
		cfg: requestConfig{
			method:             method,
			url:                url,
			followRedirects:    true,
			maxRedirects:       10,
			verify:             true,
			httpVersion:        "1.1",
			timeout:            client.defaultTimeout,
			maxAttempts:        maxAttempts,
			onTransportFailure: client.defaultOnFailure,
		},
	}
}

// Timeout sets the per-attempt timeout. 0 means "engine default" (no
// explicit timeout set on the transfer handle).
func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.cfg.timeout = d
	return b
}

// FollowRedirects toggles redirect following; disabling it also disables
// POST-redirect replay, since a request that never follows a redirect has
// nothing to replay — the coupling is intentional (see DESIGN.md).
func (b *RequestBuilder) FollowRedirects(follow bool) *RequestBuilder {
	b.cfg.followRedirects = follow
	return b
}

// MaxRedirects caps the number of redirects followed.
func (b *RequestBuilder) MaxRedirects(n int) *RequestBuilder {
	b.cfg.maxRedirects = n
	return b
}

// Verify toggles TLS peer and host verification together.
func (b *RequestBuilder) Verify(verify bool) *RequestBuilder {
	b.cfg.verify = verify
	return b
}

// CAFile sets a PEM bundle of trusted CA certificates.
func (b *RequestBuilder) CAFile(path string) *RequestBuilder {
	b.cfg.caFile = path
	return b
}

// CAPath sets a directory of PEM-encoded CA certificates.
func (b *RequestBuilder) CAPath(path string) *RequestBuilder {
	b.cfg.caPath = path
	return b
}

// CRLFile sets a certificate revocation list checked against the peer's
// leaf certificate.
func (b *RequestBuilder) CRLFile(path string) *RequestBuilder {
	b.cfg.crlFile = path
	return b
}

// HTTPVersion requests a specific HTTP protocol version ("1.1" or "2").
func (b *RequestBuilder) HTTPVersion(version string) *RequestBuilder {
	b.cfg.httpVersion = version
	return b
}

// Retry enables up to maxAttempts total attempts, retrying on transport
// errors only if onTransportFailure is true (5xx responses are always
// retry-eligible up to maxAttempts, per RetryPolicy).
func (b *RequestBuilder) Retry(maxAttempts int, onTransportFailure bool) *RequestBuilder {
	b.cfg.maxAttempts = maxAttempts
	b.cfg.onTransportFailure = onTransportFailure
	return b
}

// Headers merges headers into the request's header set.
func (b *RequestBuilder) Headers(headers map[string]string) *RequestBuilder {
	if b.cfg.headers == nil {
		b.cfg.headers = make(map[string]string, len(headers))
	}
	maps.Copy(b.cfg.headers, headers)
	return b
}

// Header sets a single header.
func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	if b.cfg.headers == nil {
		b.cfg.headers = make(map[string]string)
	}
	b.cfg.headers[key] = value
	return b
}

// Body installs a complete in-memory request body (POST/PATCH/etc).
func (b *RequestBuilder) Body(payload []byte) *RequestBuilder {
	b.cfg.body = payload
	return b
}

// PutBody installs a payload streamed through a PutBodyFeeder rather than
// handed to the transfer engine as a single buffer, matching the
// spec's PUT-streaming contract.
func (b *RequestBuilder) PutBody(payload []byte) *RequestBuilder {
	b.cfg.putBody = payload
	return b
}

// StatsLabel stores label in the request's configuration. No metric,
// span or log entry is tagged with it; every request of a Client records
// into the same unlabelled stats instruments.
func (b *RequestBuilder) StatsLabel(label string) *RequestBuilder {
	b.cfg.statsLabel = label
	return b
}

// AsyncPerform submits the request to the reactor and returns a
// ResponseFuture immediately. If the configured body exceeds the Client's
// WithMaxBodySize limit, the returned future is already resolved with
// ErrRequestBodyTooLarge and nothing is submitted to the reactor.
func (b *RequestBuilder) AsyncPerform() *ResponseFuture {
	if limit := b.client.maxBodySize; limit > 0 {
		if int64(len(b.cfg.body)) > limit || int64(len(b.cfg.putBody)) > limit {
			f := newFuture()
			f.reject(ErrRequestBodyTooLarge)
			return newResponseFuture(f, func() {})
		}
	}
	core := b.client.newCore(b.cfg)
	return core.asyncPerform()
}

// Perform is the blocking convenience wrapping AsyncPerform+Get; it does
// not itself add synchronous I/O, it only awaits the future (spec.md §1
// Non-goals: "synchronous blocking I/O is not a goal").
func (b *RequestBuilder) Perform(ctx context.Context) (*Response, error) {
	return b.AsyncPerform().Get(ctx)
}

// Get is a convenience constructor for a GET RequestBuilder.
func (c *Client) Get(url string) *RequestBuilder { return c.CreateRequest(http.MethodGet, url) }

// Post is a convenience constructor for a POST RequestBuilder with body.
func (c *Client) Post(url string, body []byte) *RequestBuilder {
	return c.CreateRequest(http.MethodPost, url).Body(body)
}

// Patch is a convenience constructor for a PATCH RequestBuilder with body.
func (c *Client) Patch(url string, body []byte) *RequestBuilder {
	return c.CreateRequest(http.MethodPatch, url).Body(body)
}

// Put is a convenience constructor for a streaming-PUT RequestBuilder.
func (c *Client) Put(url string, payload []byte) *RequestBuilder {
	return c.CreateRequest(http.MethodPut, url).PutBody(payload)
}
