package transfer

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/reqengine/reqengine/pkg/reqengine/reactor"
)

func runReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r := reactor.New(16)
	go r.Run(t.Context())
	return r
}

func TestHandleAsyncPerformGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "ok")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	r := runReactor(t)
	h := New(r, nil)
	h.SetURL(srv.URL)
	h.SetMethod(http.MethodGet)

	var body bytes.Buffer
	h.SetBodySink(&body)

	var headerLines []string
	var mu sync.Mutex
	h.SetHeaderFunction(func(line []byte) bool {
		mu.Lock()
		headerLines = append(headerLines, string(line))
		mu.Unlock()
		return true
	})

	done := make(chan error, 1)
	h.AsyncPerform(func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	if h.ResponseCode() != http.StatusOK {
		t.Fatalf("expected 200, got %d", h.ResponseCode())
	}
	if body.String() != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", body.String())
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, line := range headerLines {
		if line == "X-Test: ok\r\n" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected X-Test header line among %v", headerLines)
	}
}

func TestHandlePostBody(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	r := runReactor(t)
	h := New(r, nil)
	h.SetURL(srv.URL)
	h.SetMethod(http.MethodPost)
	h.SetPostBody([]byte(`{"a":1}`))

	done := make(chan error, 1)
	h.AsyncPerform(func(err error) { done <- err })

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(received) != `{"a":1}` {
		t.Fatalf("unexpected request body: %q", received)
	}
	if h.ResponseCode() != http.StatusCreated {
		t.Fatalf("expected 201, got %d", h.ResponseCode())
	}
}

func TestHandleCancelSurfacesError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	r := runReactor(t)
	h := New(r, nil)
	h.SetURL(srv.URL)
	h.SetMethod(http.MethodGet)

	done := make(chan error, 1)
	h.AsyncPerform(func(err error) { done <- err })

	h.Cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after Cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancellation to surface")
	}
}

func TestHandleNoFollowLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	r := runReactor(t)
	h := New(r, nil)
	h.SetURL(srv.URL)
	h.SetMethod(http.MethodGet)
	h.SetFollowLocation(false)

	done := make(chan error, 1)
	h.AsyncPerform(func(err error) { done <- err })

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ResponseCode() != http.StatusFound {
		t.Fatalf("expected the redirect itself (302), got %d", h.ResponseCode())
	}
}
