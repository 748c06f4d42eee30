package reqengine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqengine/reqengine/pkg/observability/fake"
	"github.com/reqengine/reqengine/pkg/reqengine"
)

func TestNewClientRejectsNilObservability(t *testing.T) {
	c, err := reqengine.NewClient(nil)
	require.Nil(t, c)
	require.ErrorIs(t, err, reqengine.ErrObservabilityRequired)
}

func TestClientGetRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", "yep")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Get(srv.URL).Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(resp.Body()))
	// ParseHeaderLine preserves the single space HTTP puts after the colon.
	assert.Equal(t, " yep", resp.Headers["X-Echo"])
}

func TestClientRetriesOnServerErrorThenSucceeds(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.CreateRequest(http.MethodGet, srv.URL).
		Retry(5, false).
		Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt64(&attempts))
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.CreateRequest(http.MethodGet, srv.URL).
		Retry(3, false).
		Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt64(&attempts))
}

func TestClientPostBodyRoundTrip(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		received = string(buf)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Post(srv.URL, []byte(`{"ok":true}`)).Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, received)
}

func TestClientPutStreamsBody(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	var receivedLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 0, len(payload))
		chunk := make([]byte, 512)
		for {
			n, err := r.Body.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if err != nil {
				break
			}
		}
		receivedLen = len(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Put(srv.URL, payload).Perform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, len(payload), receivedLen)
}

func TestClientAsyncPerformCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	future := c.Get(srv.URL).AsyncPerform()
	future.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = future.Get(ctx)
	require.Error(t, err)
}

func TestClientRejectsOversizedBodyWithoutSubmitting(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := reqengine.NewClient(fake.NewProvider(), reqengine.WithMaxBodySize(4))
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Post(srv.URL, []byte("too big")).Perform(context.Background())
	assert.Nil(t, resp)
	require.ErrorIs(t, err, reqengine.ErrRequestBodyTooLarge)
	assert.Zero(t, atomic.LoadInt64(&hits))
}

func TestClientPerAttemptTimeoutExhaustsRetries(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c, err := reqengine.NewClient(fake.NewProvider())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.CreateRequest(http.MethodGet, srv.URL).
		Timeout(20 * time.Millisecond).
		Retry(2, true).
		Perform(context.Background())

	assert.Nil(t, resp)
	require.Error(t, err)
	var timeoutErr *reqengine.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.False(t, timeoutErr.Aggregate)
}
