// Package transport dials and, where requested, TLS-wraps the connection
// backing one request: direct TCP, CONNECT-tunneled through a proxy, or
// SOCKS5-dialed. It has no connection pool: minireq opens one connection
// per request, and redirect hops reconnect too, since every request is
// sent with Connection: close.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arvidnet/minireq/pkg/errors"
	"github.com/arvidnet/minireq/pkg/proxy"
	"github.com/arvidnet/minireq/pkg/timing"
	netproxy "golang.org/x/net/proxy"
)

// Config describes one connection to establish.
type Config struct {
	Scheme string // "http" or "https"
	Host   string
	Port   uint16

	ConnTimeout time.Duration
	DNSTimeout  time.Duration

	// Deadline, when non-zero, is applied via net.Conn.SetDeadline as soon
	// as the raw connection exists — before any CONNECT or SOCKS5
	// handshake, so the handshake reads are covered too. Per net.Conn's
	// documented semantics an absolute deadline applies to every future
	// read/write, so it covers the whole exchange without being reset
	// before each I/O call.
	Deadline time.Time

	Proxy *proxy.Proxy

	InsecureTLS       bool
	SNI               string
	DisableSNI        bool
	MinTLSVersion     uint16
	MaxTLSVersion     uint16
	CipherSuites      []uint16
	CustomCACerts     [][]byte
	ClientCertPEM     []byte
	ClientKeyPEM      []byte
}

// ConnectionMetadata describes the connection Connect established.
type ConnectionMetadata struct {
	ConnectedIP        string
	ConnectedPort      int
	NegotiatedProtocol string

	LocalAddr  string
	RemoteAddr string

	TLSVersion     string
	TLSCipherSuite string
	TLSServerName  string
	TLSResumed     bool

	ProxyUsed bool
	ProxyAddr string
}

// Transport dials connections. It holds no mutable state of its own beyond
// the resolver, since there is no connection pool to own.
type Transport struct {
	resolver *net.Resolver
}

// New returns a Transport using net.DefaultResolver.
func New() *Transport {
	return &Transport{resolver: net.DefaultResolver}
}

// NewWithResolver returns a Transport using a custom resolver, useful for
// tests that want to avoid real DNS lookups.
func NewWithResolver(resolver *net.Resolver) *Transport {
	return &Transport{resolver: resolver}
}

// Connect establishes (and, for https, TLS-wraps) the connection described
// by config, dialing directly, through a CONNECT proxy, or through a SOCKS5
// proxy depending on config.Proxy.
func (t *Transport) Connect(ctx context.Context, config Config, timer *timing.Timer) (net.Conn, *ConnectionMetadata, error) {
	if err := t.validateConfig(config); err != nil {
		return nil, nil, err
	}

	metadata := &ConnectionMetadata{}

	connTimeout := config.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}

	targetAddr := net.JoinHostPort(config.Host, strconv.Itoa(int(config.Port)))

	var conn net.Conn
	var err error

	if config.Proxy != nil {
		conn, err = t.connectViaProxy(ctx, config, targetAddr, connTimeout, timer, metadata)
	} else {
		dialAddr, err2 := t.resolveAddress(ctx, config, timer)
		if err2 != nil {
			return nil, nil, err2
		}
		host, portStr, _ := net.SplitHostPort(dialAddr)
		metadata.ConnectedIP = host
		if port, convErr := strconv.Atoi(portStr); convErr == nil {
			metadata.ConnectedPort = port
		}
		conn, err = t.connectTCP(ctx, dialAddr, connTimeout, timer)
	}
	if err != nil {
		return nil, nil, err
	}

	if conn.LocalAddr() != nil {
		metadata.LocalAddr = conn.LocalAddr().String()
	}
	if conn.RemoteAddr() != nil {
		metadata.RemoteAddr = conn.RemoteAddr().String()
	}

	if !config.Deadline.IsZero() {
		if err := conn.SetDeadline(config.Deadline); err != nil {
			conn.Close()
			return nil, nil, errors.NewIOErrorAddr("set_deadline", config.Host, int(config.Port), err)
		}
	}

	if strings.EqualFold(config.Scheme, "https") {
		conn, err = t.upgradeTLS(ctx, conn, config, timer, metadata)
		if err != nil {
			if conn != nil {
				conn.Close()
			}
			return nil, nil, errors.NewIOErrorAddr("tls_handshake", config.Host, int(config.Port), err)
		}
	} else {
		metadata.NegotiatedProtocol = "HTTP/1.1"
	}

	return conn, metadata, nil
}

func (t *Transport) validateConfig(config Config) error {
	if config.Host == "" {
		return errors.NewInvalidURLError("host cannot be empty")
	}
	if config.Port == 0 {
		return errors.NewInvalidURLError("port must be between 1 and 65535")
	}
	if config.Scheme != "http" && config.Scheme != "https" {
		return errors.NewInvalidURLError("scheme must be http or https")
	}
	if config.DisableSNI && config.SNI != "" {
		return errors.NewInvalidURLError("cannot set both DisableSNI and SNI")
	}
	return nil
}

func (t *Transport) resolveAddress(ctx context.Context, config Config, timer *timing.Timer) (string, error) {
	timer.StartDNS()
	defer timer.EndDNS()

	dnsTimeout := config.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = config.ConnTimeout
	}
	if dnsTimeout <= 0 {
		dnsTimeout = 5 * time.Second
	}

	ctxLookup, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := t.resolver.LookupIPAddr(ctxLookup, config.Host)
	if err != nil {
		return "", errors.NewIOErrorAddr("dns_lookup", config.Host, int(config.Port), err)
	}
	if len(addrs) == 0 {
		return "", errors.NewIOErrorAddr("dns_lookup", config.Host, int(config.Port), fmt.Errorf("no IP addresses found"))
	}

	ip := addrs[0].IP.String()
	return net.JoinHostPort(ip, strconv.Itoa(int(config.Port))), nil
}

func (t *Transport) connectTCP(ctx context.Context, dialAddr string, timeout time.Duration, timer *timing.Timer) (net.Conn, error) {
	timer.StartTCP()
	defer timer.EndTCP()

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, errors.NewIOError("dial", err)
	}
	return conn, nil
}

func (t *Transport) upgradeTLS(ctx context.Context, conn net.Conn, config Config, timer *timing.Timer, metadata *ConnectionMetadata) (net.Conn, error) {
	timer.StartTLS()
	defer timer.EndTLS()

	handshakeTimeout := config.ConnTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	tlsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var rootCAs *x509.CertPool
	if len(config.CustomCACerts) > 0 {
		rootCAs = x509.NewCertPool()
		for i, caCert := range config.CustomCACerts {
			if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
				return nil, fmt.Errorf("failed to parse CA certificate at index %d", i)
			}
		}
	}

	clientCert, err := t.loadClientCertificate(config)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.InsecureTLS,
		NextProtos:         []string{"http/1.1"},
		RootCAs:            rootCAs,
	}
	if config.MinTLSVersion > 0 {
		tlsConfig.MinVersion = config.MinTLSVersion
	}
	if config.MaxTLSVersion > 0 {
		tlsConfig.MaxVersion = config.MaxTLSVersion
	}
	if len(config.CipherSuites) > 0 {
		tlsConfig.CipherSuites = config.CipherSuites
	}
	if clientCert != nil {
		tlsConfig.Certificates = []tls.Certificate{*clientCert}
	}
	ConfigureSNI(tlsConfig, config.SNI, config.DisableSNI, config.Host)

	if tlsConfig.ServerName != "" {
		metadata.TLSServerName = tlsConfig.ServerName
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		conn.Close()
		return nil, err
	}

	state := tlsConn.ConnectionState()
	metadata.TLSVersion = tlsVersionString(state.Version)
	metadata.TLSCipherSuite = tls.CipherSuiteName(state.CipherSuite)
	metadata.NegotiatedProtocol = state.NegotiatedProtocol
	if metadata.NegotiatedProtocol == "" {
		metadata.NegotiatedProtocol = "HTTP/1.1"
	}
	metadata.TLSResumed = state.DidResume

	return tlsConn, nil
}

// tlsVersionString names the negotiated version for ConnectionMetadata.TLSVersion;
// crypto/tls has no exported equivalent of its own.
func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// connectViaProxy dials through config.Proxy: a CONNECT tunnel for a plain
// proxy.Proxy, or a SOCKS5 dial when the proxy was built via proxy.ParseURL
// with a socks5:// scheme.
func (t *Transport) connectViaProxy(ctx context.Context, config Config, targetAddr string, timeout time.Duration, timer *timing.Timer, metadata *ConnectionMetadata) (net.Conn, error) {
	p := config.Proxy
	metadata.ProxyUsed = true
	metadata.ProxyAddr = p.Addr()

	timer.StartTCP()
	defer timer.EndTCP()

	if p.SOCKS5 {
		conn, err := t.connectViaSOCKS5Proxy(ctx, p, targetAddr, timeout, config.Deadline)
		if err != nil {
			return nil, errors.NewIOErrorAddr("proxy_connect", p.Host, int(p.Port), err)
		}
		return conn, nil
	}

	conn, err := t.connectViaHTTPProxy(ctx, p, config, targetAddr, timeout)
	if err != nil {
		return nil, errors.NewIOErrorAddr("proxy_connect", p.Host, int(p.Port), err)
	}
	return conn, nil
}

// connectViaHTTPProxy performs the CONNECT handshake: dial the proxy, send
// "CONNECT target HTTP/1.1" plus an optional Proxy-Authorization header,
// then read the status line and discard headers until the blank line. Any
// 2xx status opens the tunnel; everything else fails it.
func (t *Transport) connectViaHTTPProxy(ctx context.Context, p *proxy.Proxy, config Config, targetAddr string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}
	if !config.Deadline.IsZero() {
		if err := conn.SetDeadline(config.Deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set proxy deadline: %w", err)
		}
	}

	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\n", targetAddr)
	fmt.Fprintf(&req, "Host: %s\r\n", targetAddr)
	if p.HasAuth {
		auth := base64.StdEncoding.EncodeToString([]byte(p.User + ":" + p.Pass))
		fmt.Fprintf(&req, "Proxy-Authorization: Basic %s\r\n", auth)
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT request: %w", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}

	if !isSuccessfulConnectStatus(statusLine) {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", strings.TrimSpace(statusLine))
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to read CONNECT response headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	return conn, nil
}

func isSuccessfulConnectStatus(statusLine string) bool {
	fields := strings.SplitN(strings.TrimSpace(statusLine), " ", 3)
	if len(fields) < 2 {
		return false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	return code >= 200 && code < 300
}

// deadlineDialer is the forward dialer handed to golang.org/x/net/proxy: it
// stamps the request deadline onto the raw connection before the SOCKS5
// handshake runs over it, so the handshake reads cannot outlive the request.
type deadlineDialer struct {
	dialer   *net.Dialer
	deadline time.Time
}

func (d deadlineDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := d.dialer.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	if !d.deadline.IsZero() {
		if err := conn.SetDeadline(d.deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// connectViaSOCKS5Proxy dials targetAddr through a SOCKS5 proxy using
// golang.org/x/net/proxy.
func (t *Transport) connectViaSOCKS5Proxy(ctx context.Context, p *proxy.Proxy, targetAddr string, timeout time.Duration, deadline time.Time) (net.Conn, error) {
	var auth *netproxy.Auth
	if p.HasAuth {
		auth = &netproxy.Auth{User: p.User, Password: p.Pass}
	}

	forward := deadlineDialer{dialer: &net.Dialer{Timeout: timeout}, deadline: deadline}
	dialer, err := netproxy.SOCKS5("tcp", p.Addr(), auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	conn, err := dialer.Dial("tcp", targetAddr)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 connection failed: %w", err)
	}
	return conn, nil
}

// loadClientCertificate builds a client certificate for mTLS from PEM bytes,
// returning nil when none is configured.
func (t *Transport) loadClientCertificate(config Config) (*tls.Certificate, error) {
	if len(config.ClientCertPEM) == 0 || len(config.ClientKeyPEM) == 0 {
		return nil, nil
	}
	cert, err := tls.X509KeyPair(config.ClientCertPEM, config.ClientKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client certificate/key: %w", err)
	}
	return &cert, nil
}

// ConfigureSNI applies SNI configuration to tlsConfig: an already-set
// ServerName is preserved, DisableSNI leaves it empty, otherwise customSNI
// or fallbackHost is used.
func ConfigureSNI(tlsConfig *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if tlsConfig == nil || tlsConfig.ServerName != "" || disableSNI {
		return
	}
	if customSNI != "" {
		tlsConfig.ServerName = customSNI
	} else {
		tlsConfig.ServerName = fallbackHost
	}
}
