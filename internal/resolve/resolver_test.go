package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

// fakeLookuper answers lookups from fixed tables and counts calls.
type fakeLookuper struct {
	hosts    map[string][]net.IPAddr
	srv      map[string][]*net.SRV
	ipCalls  int
	srvCalls int
}

func (f *fakeLookuper) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	f.ipCalls++
	addrs, ok := f.hosts[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return addrs, nil
}

func (f *fakeLookuper) LookupSRV(_ context.Context, service, proto, name string) (string, []*net.SRV, error) {
	f.srvCalls++
	key := fmt.Sprintf("_%s._%s.%s", service, proto, name)
	records, ok := f.srv[key]
	if !ok {
		return "", nil, fmt.Errorf("lookup %s: no such host", key)
	}
	return key, records, nil
}

func ipAddrs(ips ...string) []net.IPAddr {
	out := make([]net.IPAddr, 0, len(ips))
	for _, s := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	return out
}

func TestResolveLiteralWithPort(t *testing.T) {
	lookup := &fakeLookuper{}
	r := NewWithLookuper(lookup)

	got, err := r.Resolve(context.Background(), "203.0.113.5:1234", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "203.0.113.5" || got.Port != 1234 {
		t.Errorf("got %s:%d, want 203.0.113.5:1234", got.IP, got.Port)
	}
	if lookup.ipCalls != 0 || lookup.srvCalls != 0 {
		t.Errorf("expected no lookups, got %d host / %d srv", lookup.ipCalls, lookup.srvCalls)
	}
}

func TestResolveBracketedIPv6(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})

	got, err := r.Resolve(context.Background(), "[2001:db8::1]:1234", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "2001:db8::1" || got.Port != 1234 {
		t.Errorf("got %s:%d, want 2001:db8::1:1234", got.IP, got.Port)
	}
}

func TestResolveBracketedIPv6NoPortResolvesAsName(t *testing.T) {
	lookup := &fakeLookuper{hosts: map[string][]net.IPAddr{
		"[2001:db8::1]": ipAddrs("2001:db8::1"),
	}}
	r := NewWithLookuper(lookup)

	// Brackets survive when no port follows them, so the literal goes
	// through name resolution instead of the IP fast path.
	got, err := r.Resolve(context.Background(), "[2001:db8::1]", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "2001:db8::1" || got.Port != 25565 {
		t.Errorf("got %s:%d, want 2001:db8::1:25565", got.IP, got.Port)
	}
	if lookup.ipCalls != 1 {
		t.Errorf("ip lookups = %d, want 1", lookup.ipCalls)
	}
}

func TestResolveBareIPv6NoPort(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})

	got, err := r.Resolve(context.Background(), "2001:db8::1", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "2001:db8::1" || got.Port != 25565 {
		t.Errorf("got %s:%d, want 2001:db8::1:25565", got.IP, got.Port)
	}
}

func TestResolveLiteralFallbackPort(t *testing.T) {
	lookup := &fakeLookuper{}
	r := NewWithLookuper(lookup)

	got, err := r.Resolve(context.Background(), "203.0.113.5", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "203.0.113.5" || got.Port != 25565 {
		t.Errorf("got %s:%d, want 203.0.113.5:25565", got.IP, got.Port)
	}
	if lookup.ipCalls != 0 {
		t.Errorf("expected no host lookup, got %d", lookup.ipCalls)
	}
}

func TestResolveInvalidSyntax(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})

	tests := []string{
		"bad[bracket",
		"[2001:db8::1]1234",
		":1234",
		"host:",
		"host:notaport",
		"host:99999",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), input, "minecraft", "tcp", 25565)
			if !errors.Is(err, ErrInvalidHostPort) {
				t.Errorf("Resolve(%q) error = %v, want ErrInvalidHostPort", input, err)
			}
		})
	}
}

func TestResolveHostWithPort(t *testing.T) {
	lookup := &fakeLookuper{hosts: map[string][]net.IPAddr{
		"play.example.com": ipAddrs("198.51.100.7"),
	}}
	r := NewWithLookuper(lookup)

	got, err := r.Resolve(context.Background(), "play.example.com:25570", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "198.51.100.7" || got.Port != 25570 {
		t.Errorf("got %s:%d, want 198.51.100.7:25570", got.IP, got.Port)
	}
	if lookup.srvCalls != 0 {
		t.Error("explicit port must not trigger SRV lookup")
	}
}

func TestResolveHostWithPortNoRecords(t *testing.T) {
	lookup := &fakeLookuper{hosts: map[string][]net.IPAddr{
		"empty.example.com": nil,
	}}
	r := NewWithLookuper(lookup)

	_, err := r.Resolve(context.Background(), "empty.example.com:25565", "minecraft", "tcp", 25565)
	var noAddr *NoAddressError
	if !errors.As(err, &noAddr) {
		t.Fatalf("error = %v, want NoAddressError", err)
	}
	if noAddr.Host != "empty.example.com" {
		t.Errorf("host = %q", noAddr.Host)
	}
}

func TestResolveSRV(t *testing.T) {
	lookup := &fakeLookuper{
		srv: map[string][]*net.SRV{
			"_minecraft._tcp.mc.example.com": {
				{Target: "node1.example.com.", Port: 25571, Priority: 0, Weight: 5},
			},
		},
	}
	r := NewWithLookuper(lookup)

	got, err := r.Resolve(context.Background(), "mc.example.com", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "node1.example.com" || got.Port != 25571 {
		t.Errorf("got %s:%d, want node1.example.com:25571", got.IP, got.Port)
	}
	if got.ResolvedHost != "node1.example.com" {
		t.Errorf("ResolvedHost = %q", got.ResolvedHost)
	}
}

func TestResolveSRVUnderscoreStripping(t *testing.T) {
	lookup := &fakeLookuper{
		srv: map[string][]*net.SRV{
			"_minecraft._tcp.mc.example.com": {
				{Target: "node1.example.com.", Port: 25571},
			},
		},
	}
	r := NewWithLookuper(lookup)

	got, err := r.Resolve(context.Background(), "mc.example.com", "_minecraft", "_tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Port != 25571 {
		t.Errorf("port = %d, want 25571", got.Port)
	}
}

func TestResolveSRVFallbackToHostLookup(t *testing.T) {
	lookup := &fakeLookuper{
		hosts: map[string][]net.IPAddr{
			"plain.example.com": ipAddrs("192.0.2.10"),
		},
	}
	r := NewWithLookuper(lookup)

	got, err := r.Resolve(context.Background(), "plain.example.com.", "minecraft", "tcp", 25565)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.IP != "192.0.2.10" || got.Port != 25565 {
		t.Errorf("got %s:%d, want 192.0.2.10:25565", got.IP, got.Port)
	}
	if lookup.srvCalls != 1 {
		t.Errorf("srv calls = %d, want 1", lookup.srvCalls)
	}
}

func TestResolveNoAlphaNoPort(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})

	_, err := r.Resolve(context.Background(), "300.300.300.300", "minecraft", "tcp", 25565)
	if !errors.Is(err, ErrNoSrvNoFallback) {
		t.Errorf("error = %v, want ErrNoSrvNoFallback", err)
	}
}

func TestPickSRVPriority(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})
	records := []*net.SRV{
		{Target: "low.", Priority: 10, Weight: 100},
		{Target: "high-a.", Priority: 0, Weight: 0},
		{Target: "high-b.", Priority: 0, Weight: 0},
	}

	for i := 0; i < 200; i++ {
		chosen := r.pickSRV(records)
		if chosen == nil {
			t.Fatal("pickSRV returned nil")
		}
		if chosen.Priority != 0 {
			t.Fatalf("picked priority %d record %s", chosen.Priority, chosen.Target)
		}
	}
}

func TestPickSRVZeroWeightNeverWins(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})
	records := []*net.SRV{
		{Target: "weighted.", Priority: 0, Weight: 10},
		{Target: "zero.", Priority: 0, Weight: 0},
	}

	for i := 0; i < 500; i++ {
		if chosen := r.pickSRV(records); chosen.Target != "weighted." {
			t.Fatalf("zero-weight record chosen on draw %d", i)
		}
	}
}

func TestPickSRVAllZeroWeightsUniform(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})
	records := []*net.SRV{
		{Target: "a.", Priority: 0, Weight: 0},
		{Target: "b.", Priority: 0, Weight: 0},
	}

	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		seen[r.pickSRV(records).Target]++
	}
	if seen["a."] == 0 || seen["b."] == 0 {
		t.Errorf("uniform draw never chose one target: %v", seen)
	}
}

func TestPickSRVEmpty(t *testing.T) {
	r := NewWithLookuper(&fakeLookuper{})
	if r.pickSRV(nil) != nil {
		t.Error("pickSRV(nil) should be nil")
	}
}

func TestEndpointAddr(t *testing.T) {
	tests := []struct {
		ep   Endpoint
		want string
	}{
		{Endpoint{IP: "192.0.2.1", Port: 25565}, "192.0.2.1:25565"},
		{Endpoint{IP: "2001:db8::1", Port: 80}, "[2001:db8::1]:80"},
	}
	for _, tt := range tests {
		if got := tt.ep.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
