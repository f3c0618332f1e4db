package minireq

import (
	"os"
	"strconv"
	"time"
)

// MinreqTimeoutEnv names the environment variable holding the process-wide
// fallback timeout, in integer seconds. Malformed values are ignored.
const MinreqTimeoutEnv = "MINREQ_TIMEOUT"

// resolveDeadline computes the single absolute instant that governs connect,
// TLS handshake, and every read/write for this exchange — including every
// redirect hop, since redirects do not reset the deadline.
// Priority: the request's own WithTimeout override, else MINREQ_TIMEOUT,
// else no deadline (the zero time.Time).
func resolveDeadline(r *Request) time.Time {
	if r.hasTimeout {
		return time.Now().Add(r.timeout)
	}
	if s := os.Getenv(MinreqTimeoutEnv); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Time{}
}
