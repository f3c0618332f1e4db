package minireq

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"

	"github.com/arvidnet/minireq/pkg/errors"
	"github.com/arvidnet/minireq/pkg/mrurl"
	"github.com/arvidnet/minireq/pkg/protocol"
	"github.com/arvidnet/minireq/pkg/timing"
	"github.com/arvidnet/minireq/pkg/transport"
)

// exchangeState is the mutable per-hop state the redirect driver threads
// through doExchange: the method/URL/body/headers can all change between
// hops under the 3xx rewrite rules, while the deadline does not.
type exchangeState struct {
	method  Method
	url     mrurl.URL
	headers *Headers
	body    []byte
	hasBody bool
}

// doExchange performs exactly one request/response round-trip: connect,
// serialize, parse the status line/headers, classify body framing, and
// return a ResponseLazy owning the connection. It does not follow
// redirects; that is redirect.go's job.
func doExchange(ctx context.Context, r *Request, st exchangeState, deadline time.Time, timer *timing.Timer) (*ResponseLazy, error) {
	if r.httpsRequired && !st.url.HTTPS {
		return nil, errors.NewInvalidURLError("request requires https but URL is http")
	}

	timer.BeginHop()

	connCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	scheme := "http"
	if st.url.HTTPS {
		scheme = "https"
	}

	config := transport.Config{
		Scheme:   scheme,
		Host:     st.url.Host,
		Port:     st.url.Port.Resolve(st.url.HTTPS),
		Deadline: deadline,
		Proxy:    r.proxy,
	}

	tr := transport.New()
	conn, _, err := tr.Connect(connCtx, config, timer)
	if err != nil {
		return nil, err
	}

	if err := writeRequest(conn, r, st); err != nil {
		conn.Close()
		return nil, err
	}

	reader := bufio.NewReader(conn)
	timer.StartTTFB()
	meta, err := protocol.ReadMetadata(reader, r.maxHeadersSize, r.maxStatusLineLength)
	timer.EndTTFB()
	if err != nil {
		conn.Close()
		return nil, err
	}

	skip := skipsBody(st.method, meta.StatusCode)

	rl := &ResponseLazy{
		StatusCode:   meta.StatusCode,
		ReasonPhrase: meta.ReasonPhrase,
		Headers:      meta.Headers,
		URL:          st.url,
		Timings:      timer.GetMetrics(),
		conn:         conn,
		skipBody:     skip,
	}
	if !skip {
		rl.decoder = protocol.NewBodyDecoder(reader, &meta)
	}
	return rl, nil
}

// writeRequest serializes the request line, derived headers (Host,
// Connection, Content-Length — supplied only when the caller hasn't
// already set them via WithHeader), the caller's own headers in insertion
// order, and the body, onto conn.
func writeRequest(conn net.Conn, r *Request, st exchangeState) error {
	hostHeader := st.url.HostHeader()
	if v, ok := st.headers.Get("Host"); ok {
		hostHeader = v
	}

	fields := make([]protocol.HeaderField, 0, len(st.headers.fields)+2)

	if v, ok := st.headers.Get("Connection"); ok {
		fields = append(fields, protocol.HeaderField{Name: "Connection", Value: v})
	} else {
		fields = append(fields, protocol.HeaderField{Name: "Connection", Value: "close"})
	}

	if v, ok := st.headers.Get("Content-Length"); ok {
		fields = append(fields, protocol.HeaderField{Name: "Content-Length", Value: v})
	} else if st.hasBody && st.method != MethodHead {
		fields = append(fields, protocol.HeaderField{Name: "Content-Length", Value: strconv.Itoa(len(st.body))})
	}

	for _, f := range st.headers.fields {
		lower := f.name
		if equalFoldASCII(lower, "Host") || equalFoldASCII(lower, "Connection") || equalFoldASCII(lower, "Content-Length") {
			continue
		}
		fields = append(fields, protocol.HeaderField{Name: f.name, Value: f.value})
	}

	w := bufio.NewWriter(conn)
	return protocol.WriteRequest(w, protocol.RequestLine{
		Method:       string(st.method),
		PathAndQuery: st.url.PathAndQuery,
		Host:         hostHeader,
		Headers:      fields,
		Body:         st.body,
	})
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
