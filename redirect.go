package minireq

import (
	"context"

	"github.com/arvidnet/minireq/pkg/errors"
	"github.com/arvidnet/minireq/pkg/mrurl"
	"github.com/arvidnet/minireq/pkg/timing"
)

// DefaultMemLimit is the default in-memory accumulation threshold Send
// passes to ResponseLazy.Eager before it spills to disk.
const DefaultMemLimit = 4 * 1024 * 1024

// isRedirectStatus reports whether code is one of the 3xx codes the
// redirect driver acts on.
func isRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// SendLazy performs the request, following redirects, and returns a
// ResponseLazy whose body has not yet been consumed. The caller owns the
// returned ResponseLazy's connection and must drain or Close it.
func (r *Request) SendLazy(ctx context.Context) (*ResponseLazy, error) {
	if r.err != nil {
		return nil, r.err
	}

	deadline := resolveDeadline(r)

	visited := map[string]bool{r.url.VisitedKey(): true}

	st := exchangeState{
		method:  r.method,
		url:     r.url,
		headers: r.headers,
		body:    r.body,
		hasBody: r.hasBody,
	}

	remaining := r.maxRedirects
	initialBudget := r.maxRedirects

	// One Timer is shared across every hop, so Timings on the final
	// ResponseLazy reflects the whole redirect chain's cumulative DNS/TCP/TLS/TTFB
	// time and hop count, not just the last hop's.
	timer := timing.NewTimer()

	for {
		resp, err := doExchange(ctx, r, st, deadline, timer)
		if err != nil {
			return nil, err
		}

		if !isRedirectStatus(resp.StatusCode) {
			return resp, nil
		}

		locationValue := resp.Headers.Get("Location")
		hasLocation := locationValue != ""

		if remaining <= 0 {
			if initialBudget == 0 {
				// Caller explicitly disabled redirect-following (WithMaxRedirects(0));
				// the first 3xx response is returned as-is, per request.go's doc comment.
				return resp, nil
			}
			resp.Close()
			return nil, errors.NewTooManyRedirectionsError(initialBudget)
		}

		if !hasLocation {
			resp.Close()
			return nil, errors.NewRedirectLocationMissingError(resp.StatusCode)
		}

		newURL, err := mrurl.ResolveRedirect(st.url, locationValue, &r.caps)
		if err != nil {
			resp.Close()
			return nil, err
		}

		key := newURL.VisitedKey()
		if visited[key] {
			resp.Close()
			return nil, errors.NewInfiniteRedirectionLoopError(newURL.String())
		}
		visited[key] = true

		nextHeaders := st.headers
		nextBody := st.body
		nextHasBody := st.hasBody
		nextMethod := st.method

		switch resp.StatusCode {
		case 303:
			nextMethod = MethodGet
			nextBody = nil
			nextHasBody = false
			nextHeaders = st.headers.Clone()
			nextHeaders.Del("Content-Length")
			nextHeaders.Del("Content-Type")
		default:
			// 301/302 preserve method and body rather than downgrading
			// POST to GET; 307/308 strictly preserve both too.
		}

		resp.Close()

		st = exchangeState{
			method:  nextMethod,
			url:     newURL,
			headers: nextHeaders,
			body:    nextBody,
			hasBody: nextHasBody,
		}
		remaining--
	}
}

// Send performs the request and fully buffers the response body. It is a
// thin wrapper around SendLazy + ResponseLazy.Eager.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	rl, err := r.SendLazy(ctx)
	if err != nil {
		return nil, err
	}
	return rl.Eager(DefaultMemLimit)
}
