// Package resolve turns textual server addresses into concrete endpoints.
// It accepts bare hosts, host:port, bracketed IPv6 literals and bare IPv6
// literals, and falls back to SRV lookup with RFC 2782 weighted selection
// when no explicit port is given.
package resolve

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidHostPort reports malformed host:port or bracket syntax.
var ErrInvalidHostPort = fmt.Errorf("invalid host:port format")

// ErrNoSrvNoFallback reports an address with no alphabetic content and no
// explicit port: it can be neither an SRV owner name nor an IP literal.
var ErrNoSrvNoFallback = fmt.Errorf("SRV lookup failed and no fallback available")

// NoAddressError reports a name that resolved to zero usable addresses.
type NoAddressError struct {
	Host string
}

func (e *NoAddressError) Error() string {
	return fmt.Sprintf("no A/AAAA records found for %s", e.Host)
}

// Endpoint is the result of one resolution attempt.
type Endpoint struct {
	IP            string
	Port          uint16
	OriginalInput string
	ResolvedHost  string
}

// Addr returns the endpoint in dialable host:port form.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(int(e.Port)))
}

// Lookuper is the DNS seam; *net.Resolver satisfies it.
type Lookuper interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Resolver resolves addresses using a Lookuper and a random source for
// SRV weight draws.
type Resolver struct {
	lookup Lookuper

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Resolver backed by the default system resolver.
func New() *Resolver {
	return NewWithLookuper(net.DefaultResolver)
}

// NewWithLookuper returns a Resolver using the given DNS seam.
func NewWithLookuper(l Lookuper) *Resolver {
	return &Resolver{
		lookup: l,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve turns input into an Endpoint.
//
// With an explicit port the host part is taken as-is (literal IP) or looked
// up directly. Without one, a literal IP gets fallbackPort; otherwise an SRV
// lookup for _{service}._{proto}.{host} is attempted, and its target/port
// win over fallbackPort. If SRV yields nothing the host is looked up with
// fallbackPort.
func (r *Resolver) Resolve(ctx context.Context, input, service, proto string, fallbackPort uint16) (Endpoint, error) {
	host, port, hasPort, err := splitHostPort(input)
	if err != nil {
		return Endpoint{}, err
	}

	if hasPort {
		if ip := net.ParseIP(host); ip != nil {
			return Endpoint{IP: ip.String(), Port: port, OriginalInput: input, ResolvedHost: host}, nil
		}
		addrs, err := r.lookup.LookupIPAddr(ctx, host)
		if err != nil {
			return Endpoint{}, err
		}
		if len(addrs) == 0 {
			return Endpoint{}, &NoAddressError{Host: host}
		}
		return Endpoint{IP: addrs[0].IP.String(), Port: port, OriginalInput: input, ResolvedHost: host}, nil
	}

	// Recomputed from the raw input: a bracketed IPv6 literal with no
	// port keeps its brackets, misses the literal fast path below, and
	// resolves as a name.
	host = strings.TrimSuffix(strings.TrimSpace(input), ".")

	if ip := net.ParseIP(host); ip != nil {
		return Endpoint{IP: ip.String(), Port: fallbackPort, OriginalInput: input, ResolvedHost: host}, nil
	}

	if !hasAlpha(host) {
		return Endpoint{}, ErrNoSrvNoFallback
	}

	// LookupSRV queries _service._proto.name; strip any caller-supplied
	// leading underscore so exactly one is present.
	service = strings.TrimPrefix(service, "_")
	proto = strings.TrimPrefix(proto, "_")

	if _, records, err := r.lookup.LookupSRV(ctx, service, proto, host); err == nil {
		if chosen := r.pickSRV(records); chosen != nil {
			target := strings.TrimSuffix(chosen.Target, ".")
			return Endpoint{
				IP:            target,
				Port:          chosen.Port,
				OriginalInput: input,
				ResolvedHost:  target,
			}, nil
		}
	}

	addrs, err := r.lookup.LookupIPAddr(ctx, host)
	if err != nil {
		return Endpoint{}, err
	}
	if len(addrs) == 0 {
		return Endpoint{}, &NoAddressError{Host: host}
	}
	return Endpoint{IP: addrs[0].IP.String(), Port: fallbackPort, OriginalInput: input, ResolvedHost: host}, nil
}

// pickSRV applies RFC 2782 selection: keep the minimum-priority records,
// then draw by weight. Re-randomized on every call.
func (r *Resolver) pickSRV(records []*net.SRV) *net.SRV {
	if len(records) == 0 {
		return nil
	}

	minPriority := records[0].Priority
	for _, rec := range records[1:] {
		if rec.Priority < minPriority {
			minPriority = rec.Priority
		}
	}

	var samePriority []*net.SRV
	var totalWeight uint32
	for _, rec := range records {
		if rec.Priority == minPriority {
			samePriority = append(samePriority, rec)
			totalWeight += uint32(rec.Weight)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if totalWeight == 0 {
		return samePriority[r.rng.Intn(len(samePriority))]
	}

	pick := uint32(r.rng.Int63n(int64(totalWeight)))
	for _, rec := range samePriority {
		w := uint32(rec.Weight)
		if pick < w {
			return rec
		}
		pick -= w
	}
	return nil
}

// splitHostPort separates an explicit port from input, reporting hasPort
// false for bare hosts and unbracketed IPv6 literals.
func splitHostPort(input string) (host string, port uint16, hasPort bool, err error) {
	if !strings.HasPrefix(input, "[") && strings.ContainsAny(input, "[]") {
		return "", 0, false, ErrInvalidHostPort
	}
	if strings.HasPrefix(input, "[") {
		end := strings.Index(input, "]")
		if end < 0 {
			return "", 0, false, ErrInvalidHostPort
		}
		host = input[1:end]
		rest := input[end+1:]
		if rest == "" {
			return host, 0, false, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, false, ErrInvalidHostPort
		}
		port, err = parsePort(rest[1:])
		if err != nil {
			return "", 0, false, err
		}
		return host, port, true, nil
	}

	switch colons := strings.Count(input, ":"); {
	case colons == 0:
		return input, 0, false, nil
	case colons > 1 && net.ParseIP(input) != nil:
		// Unbracketed IPv6 literal, no port.
		return input, 0, false, nil
	}

	idx := strings.LastIndex(input, ":")
	host = input[:idx]
	portStr := input[idx+1:]
	if host == "" || portStr == "" {
		return "", 0, false, ErrInvalidHostPort
	}
	port, err = parsePort(portStr)
	if err != nil {
		return "", 0, false, err
	}
	return host, port, true, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, ErrInvalidHostPort
	}
	return uint16(n), nil
}

func hasAlpha(s string) bool {
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
