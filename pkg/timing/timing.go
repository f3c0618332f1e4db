// Package timing measures the phases of one request/response exchange and
// is surfaced on every Response/ResponseLazy as its Timings field. One
// Timer is shared across an entire redirect chain, so Start/End accumulate
// into a running total per phase rather than recording a single start/end
// pair, and Metrics carries a Hops count alongside the summed durations.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures the cumulative timing of one exchange's phases, summed
// across every redirect hop it took.
type Metrics struct {
	DNSLookup    time.Duration `json:"dns_lookup"`
	TCPConnect   time.Duration `json:"tcp_connect"`
	TLSHandshake time.Duration `json:"tls_handshake"`
	TTFB         time.Duration `json:"ttfb"`
	TotalTime    time.Duration `json:"total_time"`
	Hops         int           `json:"hops"`
}

// Timer accumulates phase durations across one exchange. A single Timer is
// shared across every hop of a redirect chain: BeginHop marks the start of
// a new hop, and each phase's Start/End pair adds that hop's duration to a
// running total rather than overwriting the previous hop's measurement.
type Timer struct {
	start time.Time
	hops  int

	dnsStart, tcpStart, tlsStart, ttfbStart time.Time
	dnsTotal, tcpTotal, tlsTotal, ttfbTotal time.Duration
}

// NewTimer starts a new timing measurement session.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// BeginHop marks the start of one connect/request/response hop. Call it
// once per doExchange invocation, including the first.
func (t *Timer) BeginHop() {
	t.hops++
}

func (t *Timer) StartDNS() { t.dnsStart = time.Now() }
func (t *Timer) EndDNS()   { t.dnsTotal += since(t.dnsStart) }

func (t *Timer) StartTCP() { t.tcpStart = time.Now() }
func (t *Timer) EndTCP()   { t.tcpTotal += since(t.tcpStart) }

func (t *Timer) StartTLS() { t.tlsStart = time.Now() }
func (t *Timer) EndTLS()   { t.tlsTotal += since(t.tlsStart) }

func (t *Timer) StartTTFB() { t.ttfbStart = time.Now() }
func (t *Timer) EndTTFB()   { t.ttfbTotal += since(t.ttfbStart) }

// since returns the elapsed time since start, or 0 if start was never set.
func since(start time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// GetMetrics returns the timing metrics accumulated so far across every
// hop BeginHop has marked.
func (t *Timer) GetMetrics() Metrics {
	hops := t.hops
	if hops == 0 {
		hops = 1
	}
	return Metrics{
		DNSLookup:    t.dnsTotal,
		TCPConnect:   t.tcpTotal,
		TLSHandshake: t.tlsTotal,
		TTFB:         t.ttfbTotal,
		TotalTime:    time.Since(t.start),
		Hops:         hops,
	}
}

// GetConnectionTime returns the cumulative connection-establishment time
// (DNS + TCP + TLS) summed across every hop.
func (m Metrics) GetConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.TLSHandshake
}

// GetServerTime returns the cumulative time spent waiting on a server's
// first response byte, summed across every hop of the chain.
func (m Metrics) GetServerTime() time.Duration {
	return m.TTFB
}

// GetNetworkTime returns total time minus cumulative server time.
func (m Metrics) GetNetworkTime() time.Duration {
	return m.TotalTime - m.TTFB
}

func (m Metrics) String() string {
	return fmt.Sprintf("DNSLookup: %v, TCPConnect: %v, TLSHandshake: %v, TTFB: %v, TotalTime: %v, Hops: %d",
		m.DNSLookup, m.TCPConnect, m.TLSHandshake, m.TTFB, m.TotalTime, m.Hops)
}
