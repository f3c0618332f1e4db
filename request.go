// Package minireq is a minimal-dependency HTTP/1.1 client: URL parsing,
// request serialization, response parsing and transfer decoding
// (identity/content-length/chunked+trailers), a redirect state machine, a
// per-request deadline, and a CONNECT-proxy handshake, exposed through both
// a buffered (eager) and a streaming (lazy) response API.
package minireq

import (
	"time"

	"github.com/arvidnet/minireq/pkg/mrurl"
	"github.com/arvidnet/minireq/pkg/proxy"
)

// Method is an HTTP request method. The seven standard verbs are provided
// as constants; Custom accepts any other token and is emitted verbatim.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
)

// Custom returns a Method for a non-standard verb, emitted verbatim on the
// request line.
func Custom(verb string) Method {
	return Method(verb)
}

// DefaultMaxRedirects is the redirect budget a new Request starts with.
const DefaultMaxRedirects = 100

// Request is a builder for one HTTP exchange. Every With* method returns
// the same *Request so calls chain; a parse failure from NewRequest or a
// builder method is stuck on the Request and surfaced the first time a
// terminal method (Send, SendLazy, ...) is called, rather than panicking
// or returning an error from the builder chain itself.
type Request struct {
	method  Method
	url     mrurl.URL
	headers *Headers
	body    []byte
	hasBody bool

	hasTimeout bool
	timeout    time.Duration

	maxHeadersSize      int
	maxStatusLineLength int
	maxRedirects        int

	proxy         *proxy.Proxy
	caps          mrurl.Capabilities
	httpsRequired bool

	err error
}

// NewRequest parses rawURL and returns a Request for method. A URL parse
// failure is not returned here; it is stuck on the Request and surfaced by
// Send/SendLazy, matching the builder chain's error-free signature.
func NewRequest(method Method, rawURL string) *Request {
	r := &Request{
		method:       method,
		headers:      &Headers{},
		maxRedirects: DefaultMaxRedirects,
	}
	u, err := mrurl.Parse(rawURL, &r.caps)
	if err != nil {
		r.err = err
		return r
	}
	r.url = u
	return r
}

func Get(rawURL string) *Request     { return NewRequest(MethodGet, rawURL) }
func Post(rawURL string) *Request    { return NewRequest(MethodPost, rawURL) }
func Put(rawURL string) *Request     { return NewRequest(MethodPut, rawURL) }
func Delete(rawURL string) *Request  { return NewRequest(MethodDelete, rawURL) }
func Head(rawURL string) *Request    { return NewRequest(MethodHead, rawURL) }
func Options(rawURL string) *Request { return NewRequest(MethodOptions, rawURL) }
func Connect(rawURL string) *Request { return NewRequest(MethodConnect, rawURL) }
func Trace(rawURL string) *Request   { return NewRequest(MethodTrace, rawURL) }
func Patch(rawURL string) *Request   { return NewRequest(MethodPatch, rawURL) }

// WithHeader sets a header, case-insensitively overwriting any prior value
// for the same name.
func (r *Request) WithHeader(name, value string) *Request {
	r.headers.Set(name, value)
	return r
}

// WithBody sets the request body to raw bytes.
func (r *Request) WithBody(body []byte) *Request {
	r.body = body
	r.hasBody = true
	return r
}

// WithBodyString sets the request body from a string.
func (r *Request) WithBodyString(s string) *Request {
	r.body = []byte(s)
	r.hasBody = true
	return r
}

// WithHTTPSRequired rejects this request (and any redirect hop) whose URL
// is not https.
func (r *Request) WithHTTPSRequired() *Request {
	r.httpsRequired = true
	return r
}

// WithTimeout sets a per-request deadline, overriding MINREQ_TIMEOUT.
func (r *Request) WithTimeout(seconds float64) *Request {
	r.hasTimeout = true
	r.timeout = time.Duration(seconds * float64(time.Second))
	return r
}

// WithMaxHeadersSize bounds the cumulative size of the response's header
// block (see WithMaxStatusLineLength for the status line); 0 means
// unlimited.
func (r *Request) WithMaxHeadersSize(n int) *Request {
	r.maxHeadersSize = n
	return r
}

// WithMaxStatusLineLength bounds the response status line's length; 0 means
// unlimited.
func (r *Request) WithMaxStatusLineLength(n int) *Request {
	r.maxStatusLineLength = n
	return r
}

// WithMaxRedirects sets the redirect budget. 0 disables following redirects
// entirely: the first 3xx response is returned as-is.
func (r *Request) WithMaxRedirects(n int) *Request {
	r.maxRedirects = n
	return r
}

// WithProxy routes the request through p.
func (r *Request) WithProxy(p *proxy.Proxy) *Request {
	r.proxy = p
	return r
}

// WithParam appends "key=value", percent-encoded, to the URL's query
// string.
func (r *Request) WithParam(key, value string) *Request {
	if r.err != nil {
		return r
	}
	r.url.PathAndQuery = appendQueryParam(r.url.PathAndQuery, key, value)
	return r
}
