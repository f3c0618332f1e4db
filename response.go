package minireq

import (
	"net"
	"unicode/utf8"

	"github.com/arvidnet/minireq/pkg/buffer"
	"github.com/arvidnet/minireq/pkg/errors"
	"github.com/arvidnet/minireq/pkg/mrurl"
	"github.com/arvidnet/minireq/pkg/protocol"
	"github.com/arvidnet/minireq/pkg/timing"
)

// Response is the eager (fully-buffered) form of an HTTP exchange's
// outcome.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      protocol.Headers
	URL          mrurl.URL
	Body         []byte
	Timings      timing.Metrics
}

// AsString returns Body as a string, failing if it is not valid UTF-8.
func (resp *Response) AsString() (string, error) {
	if !utf8.Valid(resp.Body) {
		return "", errors.NewInvalidUTF8InBodyError(nil)
	}
	return string(resp.Body), nil
}

// ResponseLazy is the streaming form: headers are already parsed, but the
// body is read from the wire one byte at a time via Next. The underlying
// connection is exclusively owned by this ResponseLazy for the duration of
// its iteration and is closed automatically at normal end of body, on
// error, or by an explicit Close call.
type ResponseLazy struct {
	StatusCode   int
	ReasonPhrase string
	Headers      protocol.Headers
	URL          mrurl.URL
	Timings      timing.Metrics

	conn     net.Conn
	decoder  protocol.BodyDecoder
	skipBody bool
	done     bool
}

// Next returns the body's next byte, or ok=false at normal end (err nil).
// For HEAD responses and status codes 204/304, it returns ok=false
// immediately without reading anything from the connection.
func (rl *ResponseLazy) Next() (b byte, hint int, ok bool, err error) {
	if rl.skipBody || rl.done {
		rl.Close()
		return 0, 0, false, nil
	}
	b, hint, ok, err = rl.decoder.Next()
	if err != nil {
		rl.Close()
		return 0, 0, false, err
	}
	if !ok {
		rl.done = true
		rl.Close()
	}
	return b, hint, ok, nil
}

// Close releases the underlying connection, discarding any unread body
// bytes. Safe to call more than once, and safe to call before iteration
// completes.
func (rl *ResponseLazy) Close() error {
	if rl.conn == nil {
		return nil
	}
	err := rl.conn.Close()
	rl.conn = nil
	return err
}

// Eager drains the lazy iterator into a fully-buffered Response, reserving
// each hint before appending the byte. The accumulator spills to disk past
// memLimit bytes, so an unexpectedly large body never forces one big
// in-memory allocation.
func (rl *ResponseLazy) Eager(memLimit int64) (*Response, error) {
	buf := buffer.New(memLimit)
	defer buf.Close()

	for {
		b, hint, ok, err := rl.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		buf.Reserve(hint)
		if err := buf.WriteByte(b); err != nil {
			return nil, err
		}
	}

	body, err := drainBuffer(buf)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode:   rl.StatusCode,
		ReasonPhrase: rl.ReasonPhrase,
		Headers:      rl.Headers,
		URL:          rl.URL,
		Body:         body,
		Timings:      rl.Timings,
	}, nil
}

func drainBuffer(buf *buffer.Buffer) ([]byte, error) {
	if !buf.IsSpilled() {
		data := buf.Bytes()
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	r, err := buf.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]byte, 0, buf.Size())
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// skipsBody reports whether responses with this status code (or the HEAD
// method) must not have their body consumed regardless of framing headers.
func skipsBody(method Method, statusCode int) bool {
	return method == MethodHead || statusCode == 204 || statusCode == 304
}
