package reqenginefx

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/fx"
)

// Config holds the engine-level defaults applied when wiring a
// *reqengine.Client through fx: how deep the reactor's job queue is, the
// per-request timeout/retry budget every RequestBuilder inherits unless it
// overrides them, and which backoff strategy requests get unless a
// request opts into its own.
type Config struct {
	// QueueDepth is the reactor's buffered job channel size. Default: 256.
	QueueDepth int

	// DefaultTimeout is the per-attempt timeout applied to every request
	// built from the provided Client, unless RequestBuilder.Timeout
	// overrides it. 0 means no default timeout.
	DefaultTimeout time.Duration

	// DefaultMaxRetries is the attempt budget applied to every request
	// unless RequestBuilder.Retry overrides it. Default: 1 (no retries).
	DefaultMaxRetries int

	// DefaultOnTransportFailure pairs with DefaultMaxRetries: whether the
	// default retry budget also covers transport-level failures, not just
	// retry-worthy HTTP statuses.
	DefaultOnTransportFailure bool

	// ExponentialBackoff switches every request off the default
	// uniform-jitter formula and onto cenkalti/backoff/v4's jittered
	// exponential strategy, seeded with ExponentialBackoffInitialInterval.
	ExponentialBackoff bool

	// ExponentialBackoffInitialInterval is only read when ExponentialBackoff
	// is true. Default: 500 milliseconds.
	ExponentialBackoffInitialInterval time.Duration
}

// DefaultConfig returns the engine's defaults: the uniform-jitter backoff
// formula spec.md mandates, a single attempt per request, and a 256-deep
// reactor queue.
func DefaultConfig() Config {
	return Config{
		QueueDepth:        256,
		DefaultMaxRetries: 1,
	}
}

// ConfigModule provides engine config sourced from environment variables.
// Environment variables:
//   - REQENGINE_QUEUE_DEPTH: reactor job queue depth (default: 256)
//   - REQENGINE_TIMEOUT: per-attempt timeout, as a time.ParseDuration
//     string e.g. "5s" (default: unset, no timeout)
//   - REQENGINE_MAX_RETRIES: attempt budget per request (default: 1)
//   - REQENGINE_BACKOFF: initial interval for the exponential backoff
//     strategy, as a time.ParseDuration string; setting it also opts every
//     request onto that strategy instead of the uniform-jitter default
var ConfigModule = fx.Provide(ConfigFromEnv)

// ConfigFromEnv builds a Config from environment variables, falling back
// to DefaultConfig's values for anything unset or unparsable.
func ConfigFromEnv() Config {
	cfg := Config{
		QueueDepth:        getEnvInt("REQENGINE_QUEUE_DEPTH", 256),
		DefaultTimeout:    getEnvDuration("REQENGINE_TIMEOUT", 0),
		DefaultMaxRetries: getEnvInt("REQENGINE_MAX_RETRIES", 1),
	}
	if backoff := getEnvDuration("REQENGINE_BACKOFF", 0); backoff > 0 {
		cfg.ExponentialBackoff = true
		cfg.ExponentialBackoffInitialInterval = backoff
	}
	return cfg
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
