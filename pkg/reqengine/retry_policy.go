package reqengine

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// kEBBase is the base unit of the exponential-backoff-with-uniform-jitter
// formula mandated by spec.md §4.2. The name mirrors the source constant
// rather than a more idiomatic Go name, since it is referenced directly by
// the backoff formula's documentation.
const kEBBase = 25 * time.Millisecond

// badStatusThreshold is the response status at or above which a response
// is considered retry-worthy (spec.md §4.2, §8 scenario 3).
const badStatusThreshold = 500

// retryOutcome is the result of RetryPolicy's decision function.
type retryOutcome struct {
	retry bool
	delay time.Duration
}

// BackoffStrategy computes the delay before attempt i+1, given that i
// attempts have already been used (i >= 1). Implementations must be safe
// to call repeatedly from the reactor goroutine; they do not need to be
// safe for concurrent use from multiple goroutines since RequestCore only
// ever calls them from the reactor.
type BackoffStrategy interface {
	NextDelay(attemptsUsed int) time.Duration
}

// uniformJitterBackoff implements the bespoke formula from spec.md §4.2:
//
//	backoff_ms(i) = kEBBase * (randUniformInt[0, 2^min(i-1,5)] + 1)
//
// This is the default strategy and the one every RequestCore uses unless
// a caller opts into WithExponentialBackoffStrategy.
type uniformJitterBackoff struct {
	rng *rand.Rand
}

func newUniformJitterBackoff(rng *rand.Rand) *uniformJitterBackoff {
	return &uniformJitterBackoff{rng: rng}
}

func (b *uniformJitterBackoff) NextDelay(attemptsUsed int) time.Duration {
	exp := attemptsUsed - 1
	if exp > 5 {
		exp = 5
	}
	if exp < 0 {
		exp = 0
	}
	window := 1 << exp // 2^min(i-1,5)
	jitter := b.rng.Intn(window + 1)
	return kEBBase * time.Duration(jitter+1)
}

// exponentialBackoffStrategy adapts github.com/cenkalti/backoff/v4's
// ExponentialBackOff to the BackoffStrategy interface, for callers who
// prefer library-standard jittered-exponential delays (RandomizationFactor
// around a growing base interval) over the bespoke uniform-window formula.
// It is opt-in via WithExponentialBackoffStrategy and is never the
// default, since spec.md §4.2 mandates the uniform-window formula.
type exponentialBackoffStrategy struct {
	base *backoff.ExponentialBackOff
}

// NewExponentialBackoffStrategy builds a BackoffStrategy on top of
// cenkalti/backoff/v4's ExponentialBackOff, seeded with initialInterval as
// the first attempt's base delay.
func NewExponentialBackoffStrategy(initialInterval time.Duration) BackoffStrategy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxElapsedTime = 0 // the aggregate deadline is enforced by RequestCore's deadline timer, not by this backoff.
	b.Reset()
	return &exponentialBackoffStrategy{base: b}
}

func (e *exponentialBackoffStrategy) NextDelay(attemptsUsed int) time.Duration {
	d := e.base.NextBackOff()
	if d == backoff.Stop {
		return 0
	}
	return d
}

// decideRetry implements the RetryPolicy predicate from spec.md §4.2's
// on_retry: a pure function over (err, statusCode, retryState) that
// decides whether to finish or schedule another attempt, and if the
// latter, for how long.
//
// Finish if any of:
//
//	(i)   no error and status < badStatusThreshold;
//	(ii)  attemptsUsed >= attemptsConfigured;
//	(iii) transport error and onTransportFailure == false.
//
// Otherwise: retry, with the delay computed from the configured
// BackoffStrategy using the attempt count already used.
func decideRetry(transportErr error, statusCode int, state *retryState, strategy BackoffStrategy) retryOutcome {
	if transportErr == nil && statusCode < badStatusThreshold {
		return retryOutcome{retry: false}
	}
	if state.attemptsUsed >= state.attemptsConfigured {
		return retryOutcome{retry: false}
	}
	if transportErr != nil && !state.onTransportFailure {
		return retryOutcome{retry: false}
	}

	delay := strategy.NextDelay(state.attemptsUsed)
	return retryOutcome{retry: true, delay: delay}
}

// retryState mirrors spec.md §3's RetryState value: attemptsConfigured,
// attemptsUsed (starts at 1) and onTransportFailure. The backoff timer of a
// scheduled retry is not kept anywhere: RequestCore discards the Timer that
// SingleshotAsync returns and checks its cancelled flag when the timer fires.
type retryState struct {
	attemptsConfigured int
	attemptsUsed       int
	onTransportFailure bool
}

func newRetryState(maxAttempts int, onTransportFailure bool) *retryState {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &retryState{
		attemptsConfigured: maxAttempts,
		attemptsUsed:       1,
		onTransportFailure: onTransportFailure,
	}
}
