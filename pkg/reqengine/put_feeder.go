package reqengine

import "io"

// putBodyFeeder is a cursor-based reader feeding a PUT payload to the
// transfer engine for one attempt (spec.md §4.4). RequestCore builds a new
// feeder for every attempt, and newPutBodyFeeder calls Reset, so each
// attempt reads the payload from its start.
type putBodyFeeder struct {
	payload   []byte
	cursor    int
	remaining int
}

// newPutBodyFeeder wraps payload without copying it: every attempt's
// feeder reads the same slice the caller passed to RequestBuilder.PutBody.
func newPutBodyFeeder(payload []byte) *putBodyFeeder {
	f := &putBodyFeeder{payload: payload}
	f.Reset()
	return f
}

// Reset rewinds the cursor to the start of the buffer. Called before every
// attempt, including the first.
func (f *putBodyFeeder) Reset() {
	f.cursor = 0
	f.remaining = len(f.payload)
}

// Read copies min(remaining, len(p)) bytes into p and advances the
// cursor. Once the buffer is drained it returns (0, io.EOF) — the Go
// idiom's end-of-body signal standing in for the source's "return 0"
// convention (see DESIGN.md).
func (f *putBodyFeeder) Read(p []byte) (int, error) {
	if f.remaining == 0 {
		return 0, io.EOF
	}

	n := len(p)
	if n > f.remaining {
		n = f.remaining
	}

	copy(p[:n], f.payload[f.cursor:f.cursor+n])
	f.cursor += n
	f.remaining -= n

	return n, nil
}

// Len reports the total payload size, used to set the transfer handle's
// Content-Length / input-file-size.
func (f *putBodyFeeder) Len() int {
	return len(f.payload)
}
