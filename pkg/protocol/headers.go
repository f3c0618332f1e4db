package protocol

import "strings"

// Headers is the response header map: case-insensitive, with every key
// stored lowercased. It is a deliberate departure from net/http.Header:
// that stdlib type's Add/Set/Get all route through
// textproto.CanonicalMIMEHeaderKey, which re-title-cases every key it
// touches ("content-type" becomes "Content-Type") before a caller ranging
// over the map ever sees it. Callers here are promised lowercased keys on
// the map itself, not just through a canonicalizing accessor, so Headers
// stores names pre-lowercased by ParseHeaderLine and never canonicalizes
// them again.
type Headers map[string][]string

// Add appends value under name's lowercased form, preserving any existing
// values for that name (used for header lines and trailers, which may
// repeat a name).
func (h Headers) Add(name, value string) {
	key := strings.ToLower(name)
	h[key] = append(h[key], value)
}

// Set replaces any existing values for name with a single value, per the
// synthesized Content-Length a completed chunked body installs.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = []string{value}
}

// Get returns the first value set for name, or "" if absent.
func (h Headers) Get(name string) string {
	v := h[strings.ToLower(name)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns every value set for name, in the order added.
func (h Headers) Values(name string) []string {
	return h[strings.ToLower(name)]
}

// Del removes every value set for name.
func (h Headers) Del(name string) {
	delete(h, strings.ToLower(name))
}

// Clone returns an independent copy of h.
func (h Headers) Clone() Headers {
	cp := make(Headers, len(h))
	for k, v := range h {
		vv := make([]string, len(v))
		copy(vv, v)
		cp[k] = vv
	}
	return cp
}
