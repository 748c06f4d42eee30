package reqengine

import (
	"context"
	"sync"
	"sync/atomic"
)

// future is the single-producer/single-consumer channel backing a Future
// (spec.md §5): the reactor goroutine resolves it exactly once via
// resolve/reject, and any number of task goroutines may observe the result
// by calling Wait, but only the reactor goroutine ever mutates it. sync.Once
// guards against a RequestCore bug resolving twice rather than against
// concurrent producers, since the reactor model guarantees there is only
// ever one.
type future struct {
	done     chan struct{}
	once     sync.Once
	resolved atomic.Bool

	mu   sync.Mutex
	resp *Response
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// resolve fulfills the future with a successful Response. Only the first
// call (resolve or reject) has any effect.
func (f *future) resolve(resp *Response) {
	f.once.Do(func() {
		f.mu.Lock()
		f.resp = resp
		f.mu.Unlock()
		f.resolved.Store(true)
		close(f.done)
	})
}

// reject fulfills the future with a terminal error. Only the first call
// (resolve or reject) has any effect.
func (f *future) reject(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		f.resolved.Store(true)
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is cancelled, whichever
// comes first. A ctx cancellation does not resolve the underlying request;
// the request keeps running on the reactor until its own deadline or a
// later call to ResponseFuture.Cancel.
func (f *future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsReady reports whether the future has already been resolved, matching
// spec.md's is_ready() accessor. It never blocks.
func (f *future) IsReady() bool {
	return f.resolved.Load()
}

// ResponseFuture is the type RequestBuilder.AsyncPerform returns to callers
// (spec.md §5's Future<Response>). It wraps the raw SPSC future together
// with the cancellation hook needed to unwind an in-flight request.
type ResponseFuture struct {
	f      *future
	cancel context.CancelFunc
}

func newResponseFuture(f *future, cancel context.CancelFunc) *ResponseFuture {
	return &ResponseFuture{f: f, cancel: cancel}
}

// Get blocks the calling goroutine until the request resolves, the
// aggregate deadline elapses, or ctx is cancelled by the caller.
func (rf *ResponseFuture) Get(ctx context.Context) (*Response, error) {
	return rf.f.Wait(ctx)
}

// IsReady reports whether a call to Get would return immediately.
func (rf *ResponseFuture) IsReady() bool {
	return rf.f.IsReady()
}

// Cancel requests that the underlying RequestCore abandon the in-flight
// attempt (and any scheduled retry) as soon as the reactor processes the
// cancellation. It is safe to call Cancel multiple times or after the
// future has already resolved; both are no-ops.
func (rf *ResponseFuture) Cancel() {
	rf.cancel()
}
