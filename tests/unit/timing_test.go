package unit

import (
	"testing"
	"time"

	"github.com/arvidnet/minireq/pkg/timing"
)

func TestTimerAccumulatesAcrossHops(t *testing.T) {
	timer := timing.NewTimer()

	timer.BeginHop()
	timer.StartDNS()
	time.Sleep(time.Millisecond)
	timer.EndDNS()
	timer.StartTCP()
	time.Sleep(time.Millisecond)
	timer.EndTCP()

	timer.BeginHop()
	timer.StartDNS()
	time.Sleep(time.Millisecond)
	timer.EndDNS()
	timer.StartTCP()
	time.Sleep(time.Millisecond)
	timer.EndTCP()

	m := timer.GetMetrics()
	if m.Hops != 2 {
		t.Fatalf("Hops = %d, want 2", m.Hops)
	}
	// Each phase ran once per hop, so the cumulative total must be at least
	// the sum of both hops' sleeps, not just the last hop's.
	if m.DNSLookup < 2*time.Millisecond {
		t.Fatalf("DNSLookup = %v, want >= 2ms (cumulative across both hops)", m.DNSLookup)
	}
	if m.TCPConnect < 2*time.Millisecond {
		t.Fatalf("TCPConnect = %v, want >= 2ms (cumulative across both hops)", m.TCPConnect)
	}
}

func TestTimerGetMetricsDefaultsToOneHop(t *testing.T) {
	timer := timing.NewTimer()
	m := timer.GetMetrics()
	if m.Hops != 1 {
		t.Fatalf("Hops = %d, want 1 when BeginHop was never called", m.Hops)
	}
}

func TestMetricsDerivedAccessors(t *testing.T) {
	m := timing.Metrics{
		DNSLookup:    10 * time.Millisecond,
		TCPConnect:   20 * time.Millisecond,
		TLSHandshake: 30 * time.Millisecond,
		TTFB:         40 * time.Millisecond,
		TotalTime:    150 * time.Millisecond,
		Hops:         3,
	}
	if got := m.GetConnectionTime(); got != 60*time.Millisecond {
		t.Fatalf("GetConnectionTime() = %v, want 60ms", got)
	}
	if got := m.GetServerTime(); got != 40*time.Millisecond {
		t.Fatalf("GetServerTime() = %v, want 40ms", got)
	}
	if got := m.GetNetworkTime(); got != 110*time.Millisecond {
		t.Fatalf("GetNetworkTime() = %v, want 110ms", got)
	}
}
