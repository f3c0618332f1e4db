package protocol

import (
	"bufio"
	"fmt"

	"github.com/arvidnet/minireq/pkg/errors"
)

// HeaderField is a single wire header. Using a slice rather than a map
// preserves the caller's header order on the wire: headers are emitted in
// the order they were set.
type HeaderField struct {
	Name  string
	Value string
}

// RequestLine is the minimal set of fields WriteRequest needs to serialize a
// request; it takes plain strings rather than importing the root package's
// richer Request type to avoid an import cycle (root imports protocol).
type RequestLine struct {
	Method       string
	PathAndQuery string // origin-form request-target, also through a CONNECT tunnel
	Host         string // Host header value, already includes ":port" when non-default
	Headers      []HeaderField
	Body         []byte
}

// WriteRequest serializes req as "METHOD target HTTP/1.1\r\n" followed by
// the Host header, the caller's headers in order, a blank line, and the
// body, flushing once at the end.
func WriteRequest(w *bufio.Writer, req RequestLine) error {
	if _, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", req.Method, req.PathAndQuery); err != nil {
		return errors.NewIOError("write", err)
	}
	if _, err := fmt.Fprintf(w, "Host: %s\r\n", req.Host); err != nil {
		return errors.NewIOError("write", err)
	}
	for _, h := range req.Headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return errors.NewIOError("write", err)
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return errors.NewIOError("write", err)
	}
	if len(req.Body) > 0 {
		if _, err := w.Write(req.Body); err != nil {
			return errors.NewIOError("write", err)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.NewIOError("flush", err)
	}
	return nil
}
