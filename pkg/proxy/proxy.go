// Package proxy models the CONNECT-tunnel proxy minireq's transport speaks to,
// and a supplemental URL-form parser for SOCKS5 forward proxies.
package proxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/arvidnet/minireq/pkg/errors"
)

// DefaultPort is used when a Proxy is parsed without an explicit port.
const DefaultPort = 8080

// Proxy describes an upstream the transport should CONNECT-tunnel through.
// Credentials, when present, are sent as a Proxy-Authorization: Basic header
// during the CONNECT handshake.
type Proxy struct {
	Host    string
	Port    uint16
	HasAuth bool
	User    string
	Pass    string

	// SOCKS5 is set when this proxy was parsed from a socks5:// URL via
	// ParseURL; the transport dials through golang.org/x/net/proxy instead
	// of performing an HTTP CONNECT handshake.
	SOCKS5 bool
}

// New parses the bare proxy grammar: "[user:pass@]host[:port]". Port
// defaults to 8080 when absent.
func New(s string) (*Proxy, error) {
	if s == "" {
		return nil, errors.NewInvalidURLError("proxy address cannot be empty")
	}

	rest := s
	p := &Proxy{Port: DefaultPort}

	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		cred := rest[:at]
		rest = rest[at+1:]
		user, pass, _ := strings.Cut(cred, ":")
		p.HasAuth = true
		p.User = user
		p.Pass = pass
	}

	host, portStr, err := splitHostPort(rest)
	if err != nil {
		return nil, errors.NewInvalidURLError(fmt.Sprintf("invalid proxy address %q: %v", s, err))
	}
	if host == "" {
		return nil, errors.NewInvalidURLError("proxy address must include a host")
	}
	p.Host = host

	if portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || port == 0 {
			return nil, errors.NewInvalidURLError(fmt.Sprintf("invalid proxy port %q", portStr))
		}
		p.Port = uint16(port)
	}

	return p, nil
}

// splitHostPort splits "host[:port]" without requiring a port, unlike
// net.SplitHostPort.
func splitHostPort(s string) (host, port string, err error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return s, "", nil
	}
	// Guard against bare IPv6 literals without brackets; this grammar does
	// not support them.
	if strings.Count(s, ":") > 1 && !strings.Contains(s, "]") {
		return "", "", fmt.Errorf("ambiguous host:port %q", s)
	}
	return s[:idx], s[idx+1:], nil
}

// Addr returns "host:port".
func (p *Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// ParseURL parses a URL-form proxy address. It rejects "http://" and
// "https://" schemes: this engine only performs CONNECT tunneling, and an
// http(s):// scheme would imply proxying via absolute-form requests, which
// it does not do. "socks5://" is accepted and dials via
// golang.org/x/net/proxy instead of a CONNECT handshake.
func ParseURL(rawURL string) (*Proxy, error) {
	if rawURL == "" {
		return nil, errors.NewInvalidURLError("proxy URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewInvalidURLError(fmt.Sprintf("invalid proxy URL: %v", err))
	}

	switch u.Scheme {
	case "socks5":
		// supported below
	case "http", "https":
		return nil, errors.NewInvalidURLError(fmt.Sprintf("proxy scheme %q is not a CONNECT tunnel; only socks5:// and the bare host[:port] grammar are supported", u.Scheme))
	case "":
		return nil, errors.NewInvalidURLError("proxy URL must include a scheme (socks5://) or use the bare host[:port] grammar")
	default:
		return nil, errors.NewInvalidURLError(fmt.Sprintf("unsupported proxy scheme: %s", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return nil, errors.NewInvalidURLError("proxy URL must include a host")
	}

	port := uint16(1080)
	if portStr := u.Port(); portStr != "" {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n == 0 {
			return nil, errors.NewInvalidURLError(fmt.Sprintf("invalid proxy port: %s", portStr))
		}
		port = uint16(n)
	}

	p := &Proxy{Host: host, Port: port, SOCKS5: true}
	if u.User != nil {
		p.HasAuth = true
		p.User = u.User.Username()
		p.Pass, _ = u.User.Password()
	}
	return p, nil
}
