package reqengine

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/reqengine/reqengine/pkg/logger"
	"github.com/reqengine/reqengine/pkg/observability"
	"github.com/reqengine/reqengine/pkg/reqengine/reactor"
	"github.com/reqengine/reqengine/pkg/reqengine/stats"
	"github.com/reqengine/reqengine/pkg/reqengine/transfer"
)

// ErrObservabilityRequired mirrors the teacher's "observability provider
// cannot be nil" guard: a Client is not useful without somewhere to send
// traces and metrics.
var ErrObservabilityRequired = errors.New("reqengine: observability provider cannot be nil")

// Client is the entry point for building and performing requests. It
// owns the one reactor goroutine every Request created from it shares,
// together with the stats sink and the pooled *http.Client the transfer
// handles reuse when no per-request TLS override is needed.
type Client struct {
	reactor     *reactor.Reactor
	httpc       *http.Client
	tracer      observability.Tracer
	reqLogger   observability.Logger
	sink        *stats.Sink
	strategy    BackoffStrategy
	maxBodySize int64

	procLogger       logger.Logger
	defaultTimeout   time.Duration
	defaultAttempts  int
	defaultOnFailure bool

	stop context.CancelFunc
	done <-chan struct{}
}

// NewClient starts the reactor goroutine and returns a ready-to-use
// Client. Callers must eventually call Close to stop the reactor.
func NewClient(obs observability.Observability, opts ...ClientOption) (*Client, error) {
	if obs == nil {
		return nil, ErrObservabilityRequired
	}

	cfg := clientConfig{
		queueDepth:  256,
		maxBodySize: DefaultMaxRequestBodySize,
		pooledTransport: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
				ForceAttemptHTTP2:     true,
			},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	strategy := cfg.strategy
	if strategy == nil {
		strategy = newUniformJitterBackoff(rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	r := reactor.New(cfg.queueDepth)
	ctx, cancel := context.WithCancel(context.Background())
	done := r.Done()

	c := &Client{
		reactor:          r,
		httpc:            cfg.pooledTransport,
		tracer:           obs.Tracer(),
		reqLogger:        obs.Logger(),
		sink:             stats.New(obs.Metrics()),
		strategy:         strategy,
		maxBodySize:      cfg.maxBodySize,
		procLogger:       cfg.processLogger,
		defaultTimeout:   cfg.defaultTimeout,
		defaultAttempts:  cfg.defaultAttempts,
		defaultOnFailure: cfg.defaultOnFailure,
		stop:             cancel,
		done:             done,
	}

	if c.procLogger != nil {
		c.procLogger.Info("reqengine: client started", logger.Int("queue_depth", cfg.queueDepth))
	}

	go r.Run(ctx)

	return c, nil
}

// Close stops the reactor goroutine and waits for it to drain. In-flight
// requests that haven't yet resolved will never complete; callers should
// cancel them first.
func (c *Client) Close() {
	c.stop()
	<-c.done
	if c.procLogger != nil {
		c.procLogger.Info("reqengine: client stopped")
	}
}

// CreateRequest starts building a new request against url using method.
func (c *Client) CreateRequest(method, url string) *RequestBuilder {
	return newRequestBuilder(c, method, url)
}

func (c *Client) newCore(cfg requestConfig) *requestCore {
	return newRequestCore(c.reactor, func() transferHandle {
		return transfer.New(c.reactor, c.httpc)
	}, c.tracer, c.sink, c.strategy, c.reqLogger, cfg)
}
