// Package mrurl implements minireq's URL model: a parsed
// scheme/host/port/path-and-query/fragment/credentials tuple, plus the
// relative-redirect resolution rules the redirect driver needs.
//
// It deliberately does not reuse net/url.Parse as its engine: this model
// needs an explicit/implicit port distinction net/url does not carry, and
// keeps path and query as one opaque request-target string rather than
// net/url's decoded Path/RawQuery split. golang.org/x/net/idna supplies
// punycode encoding for non-ASCII hosts.
package mrurl

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/arvidnet/minireq/pkg/errors"
)

// Port distinguishes a port the caller or URL text specified explicitly from
// one implied by the scheme's default (443 for https, 80 for http).
type Port struct {
	Explicit bool
	Value    uint16
}

// Resolve returns the effective port number for a given scheme.
func (p Port) Resolve(https bool) uint16 {
	if p.Explicit {
		return p.Value
	}
	if https {
		return 443
	}
	return 80
}

// URL is minireq's parsed request-target model.
type URL struct {
	HTTPS          bool
	Host           string // always ASCII (punycode-encoded if originally non-ASCII)
	Port           Port
	PathAndQuery   string // always begins with "/"
	Fragment       string
	HasFragment    bool
	User           string
	Pass           string
	HasCredentials bool
}

// Capabilities models the optional external collaborators: TLS and the
// punycode encoder. Go ships crypto/tls and
// golang.org/x/net/idna unconditionally, so the zero value (both
// capabilities present) is the common case; embedders that want the
// HttpsFeatureNotEnabled / PunycodeFeatureNotEnabled error paths reachable
// (e.g. a cleartext-only build) set the corresponding NoXxx field.
type Capabilities struct {
	NoTLS      bool
	NoPunycode bool
}

// Parse parses raw into a URL. Only http:// and https:// schemes
// (case-insensitive) are accepted. caps may be nil, meaning both TLS and
// punycode capabilities are present.
func Parse(raw string, caps *Capabilities) (URL, error) {
	if caps == nil {
		caps = &Capabilities{}
	}

	var u URL

	rest := raw
	lower := strings.ToLower(rest)
	switch {
	case strings.HasPrefix(lower, "https://"):
		u.HTTPS = true
		rest = rest[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		u.HTTPS = false
		rest = rest[len("http://"):]
	default:
		return URL{}, errors.NewInvalidURLError(fmt.Sprintf("unsupported or missing scheme in %q", raw))
	}

	if u.HTTPS && caps.NoTLS {
		return URL{}, errors.NewHTTPSFeatureNotEnabledError(raw)
	}

	// authority runs up to the first '/', '?', or '#'
	authorityEnd := len(rest)
	for i, c := range rest {
		if c == '/' || c == '?' || c == '#' {
			authorityEnd = i
			break
		}
	}
	authority := rest[:authorityEnd]
	tail := rest[authorityEnd:]

	if authority == "" {
		return URL{}, errors.NewInvalidURLError(fmt.Sprintf("missing authority in %q", raw))
	}

	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		cred := authority[:at]
		authority = authority[at+1:]
		user, pass, hasPass := strings.Cut(cred, ":")
		u.HasCredentials = true
		u.User = user
		if hasPass {
			u.Pass = pass
		}
	}

	host, port, err := splitHostPort(authority)
	if err != nil {
		return URL{}, errors.NewInvalidURLError(fmt.Sprintf("invalid authority %q: %v", authority, err))
	}
	if host == "" {
		return URL{}, errors.NewInvalidURLError(fmt.Sprintf("missing host in %q", raw))
	}

	asciiHost, err := toASCIIHost(host, caps)
	if err != nil {
		return URL{}, err
	}
	u.Host = asciiHost
	u.Port = port

	// path-and-query: everything up to '#'; fragment is everything after.
	pathAndQuery := tail
	if h := strings.IndexByte(tail, '#'); h >= 0 {
		u.HasFragment = true
		u.Fragment = tail[h+1:]
		pathAndQuery = tail[:h]
	}
	if pathAndQuery == "" {
		pathAndQuery = "/"
	} else if pathAndQuery[0] != '/' {
		// a query with no path, e.g. "http://host?q=1"
		pathAndQuery = "/" + pathAndQuery
	}
	u.PathAndQuery = pathAndQuery

	return u, nil
}

func splitHostPort(authority string) (host string, port Port, err error) {
	if strings.HasPrefix(authority, "[") {
		// bracketed IPv6 literal
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", Port{}, fmt.Errorf("unterminated IPv6 literal")
		}
		host = authority[1:end]
		rest := authority[end+1:]
		if rest == "" {
			return host, Port{}, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", Port{}, fmt.Errorf("unexpected characters after IPv6 literal")
		}
		p, perr := parsePort(rest[1:])
		if perr != nil {
			return "", Port{}, perr
		}
		return host, p, nil
	}

	idx := strings.LastIndexByte(authority, ':')
	if idx < 0 {
		return authority, Port{}, nil
	}
	p, perr := parsePort(authority[idx+1:])
	if perr != nil {
		return "", Port{}, perr
	}
	return authority[:idx], p, nil
}

func parsePort(s string) (Port, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return Port{}, fmt.Errorf("invalid port %q", s)
	}
	return Port{Explicit: true, Value: uint16(n)}, nil
}

func toASCIIHost(host string, caps *Capabilities) (string, error) {
	isASCII := true
	for i := 0; i < len(host); i++ {
		if host[i] > 0x7f {
			isASCII = false
			break
		}
	}
	if isASCII {
		return host, nil
	}
	if caps.NoPunycode {
		return "", errors.NewPunycodeFeatureNotEnabledError(host)
	}
	encoded, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", errors.NewPunycodeConversionFailedError(host, err)
	}
	return encoded, nil
}

// HostHeader returns the value the serializer should emit for the Host
// header: the bare host when the port is implicit or explicitly equal to
// the scheme's default, or "host:port" for any other explicit port.
func (u URL) HostHeader() string {
	if !u.Port.Explicit || u.Port.Value == defaultPortFor(u.HTTPS) {
		return u.Host
	}
	return fmt.Sprintf("%s:%d", u.Host, u.Port.Value)
}

func defaultPortFor(https bool) uint16 {
	if https {
		return 443
	}
	return 80
}

// HostPort returns "host:port" using the resolved (possibly default) port,
// suitable for dialing or for a CONNECT request-target.
func (u URL) HostPort() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port.Resolve(u.HTTPS))
}

// String reconstructs the absolute URL text, including any fragment.
func (u URL) String() string {
	var b strings.Builder
	if u.HTTPS {
		b.WriteString("https://")
	} else {
		b.WriteString("http://")
	}
	if u.HasCredentials {
		b.WriteString(u.User)
		if u.Pass != "" {
			b.WriteByte(':')
			b.WriteString(u.Pass)
		}
		b.WriteByte('@')
	}
	b.WriteString(u.HostHeader())
	b.WriteString(u.PathAndQuery)
	if u.HasFragment {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// VisitedKey returns the identity used for the redirect driver's cycle
// guard: scheme+authority+path+query, fragment excluded.
func (u URL) VisitedKey() string {
	cp := u
	cp.HasFragment = false
	cp.Fragment = ""
	return cp.String()
}

// ResolveRedirect computes the new absolute URL for a Location header value,
// relative to base (the URL of the request that produced the redirect): a
// full http(s):// Location replaces everything but an absent fragment, "//"
// inherits the scheme only, a leading "/" inherits scheme+authority, and
// anything else is resolved against base's directory. In every case a
// Location without a fragment keeps base's fragment (see finalizeRedirect).
func ResolveRedirect(base URL, location string, caps *Capabilities) (URL, error) {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		parsed, err := Parse(location, caps)
		if err != nil {
			return URL{}, err
		}
		return finalizeRedirect(base, parsed)
	}

	next := base
	switch {
	case strings.HasPrefix(location, "//"):
		// inherit scheme only
		full := schemeString(base.HTTPS) + ":" + location
		parsed, err := Parse(full, caps)
		if err != nil {
			return URL{}, err
		}
		return finalizeRedirect(base, parsed)
	case strings.HasPrefix(location, "/"):
		pathAndQuery, fragment, hasFragment := splitFragment(location)
		next.PathAndQuery = pathAndQuery
		next.HasFragment = hasFragment
		next.Fragment = fragment
		return finalizeRedirect(base, next)
	default:
		baseDir := base.PathAndQuery
		if q := strings.IndexByte(baseDir, '?'); q >= 0 {
			baseDir = baseDir[:q]
		}
		if idx := strings.LastIndexByte(baseDir, '/'); idx >= 0 {
			baseDir = baseDir[:idx+1]
		} else {
			baseDir = "/"
		}
		pathAndQuery, fragment, hasFragment := splitFragment(location)
		next.PathAndQuery = baseDir + pathAndQuery
		next.HasFragment = hasFragment
		next.Fragment = fragment
		return finalizeRedirect(base, next)
	}
}

func splitFragment(s string) (rest, fragment string, has bool) {
	if h := strings.IndexByte(s, '#'); h >= 0 {
		return s[:h], s[h+1:], true
	}
	return s, "", false
}

func schemeString(https bool) string {
	if https {
		return "https"
	}
	return "http"
}

// finalizeRedirect settles the fragment: a fragment on the Location
// overrides the original; otherwise the original request's fragment is
// preserved on the final response URL.
func finalizeRedirect(base, next URL) (URL, error) {
	if !next.HasFragment {
		next.HasFragment = base.HasFragment
		next.Fragment = base.Fragment
	}
	return next, nil
}

