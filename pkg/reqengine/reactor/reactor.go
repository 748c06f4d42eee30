// Package reactor implements the single-goroutine event loop that the
// request engine runs transfer completion handlers and retry timers on.
// It is the Go stand-in for the native event loop (libev/epoll-style
// reactor) assumed by the external TransferHandle contract: every job
// posted to it runs strictly after the previous one completes, on the
// same goroutine, which is what lets the request core mutate retry state,
// the current Response pointer and the tracing span without
// synchronization. Header, body and PUT-read callbacks are not posted
// here; transfer.Handle invokes them on its own transfer goroutine.
package reactor

import (
	"context"
	"time"
)

// Reactor drains a queue of jobs on a single dedicated goroutine. Jobs
// posted to it — transfer completions, retry timers —
// execute strictly one at a time, in submission order, which is what
// callers rely on instead of locking shared request state.
type Reactor struct {
	jobs chan func()
	done chan struct{}
}

// New creates a Reactor with the given job queue depth. A depth of 0 makes
// Post block until the reactor goroutine is ready for the next job;
// production use should size this to the expected number of in-flight
// requests.
func New(queueDepth int) *Reactor {
	return &Reactor{
		jobs: make(chan func(), queueDepth),
		done: make(chan struct{}),
	}
}

// Run drains the job queue until ctx is cancelled. It must be called from
// the goroutine that is meant to be "the reactor thread" — every func
// passed to Post or scheduled via SingleshotAsync executes here.
func (r *Reactor) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			job()
		}
	}
}

// Done returns a channel closed once Run has returned.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

// Post enqueues fn to run on the reactor goroutine. Safe to call from any
// goroutine, including from within a job already running on the reactor.
func (r *Reactor) Post(fn func()) {
	r.jobs <- fn
}

// Timer is a handle to a scheduled SingleshotAsync callback. Stop cancels
// the timer if it has not fired yet; it is a no-op if called after firing
// or more than once.
type Timer struct {
	t *time.Timer
}

// Stop cancels the timer. Idempotent.
func (t *Timer) Stop() {
	if t == nil || t.t == nil {
		return
	}
	t.t.Stop()
}

// SingleshotAsync implements the ReactorClock contract from the external
// interfaces: it fires handler(nil) exactly once, on the reactor
// goroutine, after delay elapses. A non-nil error signals the timer
// mechanism itself failed; Go's time.AfterFunc cannot fail to schedule, so
// handler is always invoked with a nil error — callers that need a fatal
// "timer failed" branch (spec.md §7) get it from context cancellation
// instead, handled by the caller checking ctx.Err() before relying on the
// timer firing.
func (r *Reactor) SingleshotAsync(delay time.Duration, handler func(err error)) *Timer {
	timer := time.AfterFunc(delay, func() {
		r.Post(func() {
			handler(nil)
		})
	})
	return &Timer{t: timer}
}
