package reqenginefx

import (
	"context"

	"go.uber.org/fx"

	"github.com/reqengine/reqengine/pkg/observability"
	"github.com/reqengine/reqengine/pkg/reqengine"
)

// Module provides a *reqengine.Client wired to the application's
// observability provider, with lifecycle-managed shutdown.
// Usage:
//
//	fx.New(
//	    reqenginefx.Module,
//	    fx.Supply(reqenginefx.Config{QueueDepth: 512}),
//	)
var Module = fx.Module("reqengine",
	fx.Provide(ProvideClient),
	fx.Invoke(RegisterLifecycle),
)

// ClientParams contains dependencies for creating a Client.
type ClientParams struct {
	fx.In

	Config        Config `optional:"true"`
	Observability observability.Observability
}

// ClientResult contains the Client output.
type ClientResult struct {
	fx.Out

	Client *reqengine.Client
}

// ProvideClient builds a *reqengine.Client from Config, defaulting to
// DefaultConfig's settings when no Config was supplied.
func ProvideClient(p ClientParams) (ClientResult, error) {
	cfg := p.Config
	if cfg.QueueDepth == 0 {
		cfg = DefaultConfig()
	}

	opts := []reqengine.ClientOption{
		reqengine.WithQueueDepth(cfg.QueueDepth),
		reqengine.WithDefaultTimeout(cfg.DefaultTimeout),
		reqengine.WithDefaultRetry(cfg.DefaultMaxRetries, cfg.DefaultOnTransportFailure),
	}
	if cfg.ExponentialBackoff {
		opts = append(opts, reqengine.WithExponentialBackoffStrategy(cfg.ExponentialBackoffInitialInterval))
	}

	client, err := reqengine.NewClient(p.Observability, opts...)
	if err != nil {
		return ClientResult{}, err
	}
	return ClientResult{Client: client}, nil
}

// LifecycleParams contains dependencies for lifecycle registration.
type LifecycleParams struct {
	fx.In

	LC     fx.Lifecycle
	Client *reqengine.Client
}

// RegisterLifecycle stops the Client's reactor goroutine when the fx app
// shuts down.
func RegisterLifecycle(p LifecycleParams) {
	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Client.Close()
			return nil
		},
	})
}

// ProvideNamed builds a standalone *reqengine.Client from cfg, for hosts
// that need more than one differently-configured Client — e.g. a
// low-latency internal client and a slower third-party one — wired via
// fx.Annotate/fx.ResultTags rather than through the single default Module,
// mirroring the teacher's ProvideNamedHTTPClient. The caller is
// responsible for registering its own fx.Lifecycle OnStop hook to Close it.
//
// Usage:
//
//	fx.Provide(fx.Annotate(
//	    reqenginefx.ProvideNamed(reqenginefx.Config{QueueDepth: 64}),
//	    fx.ResultTags(`name:"payments-client"`),
//	))
func ProvideNamed(cfg Config) func(observability.Observability) (*reqengine.Client, error) {
	return func(obs observability.Observability) (*reqengine.Client, error) {
		opts := []reqengine.ClientOption{
			reqengine.WithQueueDepth(cfg.QueueDepth),
			reqengine.WithDefaultTimeout(cfg.DefaultTimeout),
			reqengine.WithDefaultRetry(cfg.DefaultMaxRetries, cfg.DefaultOnTransportFailure),
		}
		if cfg.ExponentialBackoff {
			opts = append(opts, reqengine.WithExponentialBackoffStrategy(cfg.ExponentialBackoffInitialInterval))
		}
		return reqengine.NewClient(obs, opts...)
	}
}
