package reqengine

import "bytes"

// Response is produced lazily, once per attempt. A fresh Response replaces
// any previous one at the start of every attempt (perform_request in
// spec.md §4.2); prior attempts' bodies are discarded. Only the final
// attempt's Response is ever surfaced to the caller.
type Response struct {
	StatusCode int
	// Headers preserves insertion-order last-wins semantics: a duplicate
	// header name (e.g. repeated Set-Cookie) overwrites the prior value
	// rather than appending to it. See DESIGN.md for why this matches the
	// source's behavior instead of upgrading to a multimap.
	Headers map[string]string
	body    bytes.Buffer
}

// Body returns the accumulated response body.
func (r *Response) Body() []byte {
	return r.body.Bytes()
}

// newResponse allocates a fresh Response for a new attempt. The
// HeaderParser and the transfer engine's write callback never observe a
// nil *Response because this is always called before the transfer is
// submitted (RequestCore.performRequest).
func newResponse() *Response {
	return &Response{Headers: make(map[string]string)}
}

// ResponseBuilder accumulates a status line, a header map and a body sink
// across the header/write callbacks that transfer.Handle invokes on its
// transfer goroutine, before it posts the attempt's completion handler to
// the reactor. It is deliberately allocation-light: Write appends
// directly into the Response's internal buffer and SetHeader inserts
// exactly the two strings HeaderParser produced.
type ResponseBuilder struct {
	resp *Response
}

// newResponseBuilder wraps resp for incremental population.
func newResponseBuilder(resp *Response) *ResponseBuilder {
	return &ResponseBuilder{resp: resp}
}

// SetStatusCode records the response status code once known.
func (b *ResponseBuilder) SetStatusCode(code int) {
	b.resp.StatusCode = code
}

// SetHeader inserts key/value into the response's header map, replacing
// any prior value for the same key (last-wins, see Response.Headers).
func (b *ResponseBuilder) SetHeader(key, value string) {
	b.resp.Headers[key] = value
}

// Write implements io.Writer so the transfer handle can target the
// Response's body sink directly as bytes arrive.
func (b *ResponseBuilder) Write(p []byte) (int, error) {
	return b.resp.body.Write(p)
}
