package selector

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mc-loadbalancer/internal/backend"
	"mc-loadbalancer/internal/config"
)

// staticFinder selects from a fixed server list by round-robin cursor or
// live lowest-load probing.
type staticFinder struct {
	servers   []backend.Server
	algorithm string
	probe     ProbeFunc
	timeout   time.Duration

	mu sync.Mutex
	// cursor is read-then-advance: the first call returns servers[0].
	cursor int
}

func newStaticFinder(cfg *config.StaticConfig, probe ProbeFunc, timeout time.Duration) (*staticFinder, error) {
	servers := make([]backend.Server, 0, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		servers = append(servers, backend.FromConfig(sc))
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	return &staticFinder{
		servers:   servers,
		algorithm: cfg.Algorithm,
		probe:     probe,
		timeout:   timeout,
	}, nil
}

func (f *staticFinder) FindServer(ctx context.Context, _ net.IP) (backend.Server, error) {
	switch f.algorithm {
	case config.AlgorithmRoundRobin:
		return f.nextRoundRobin()
	case config.AlgorithmLowestPlayerCount:
		return f.lowestLoaded(ctx)
	default:
		return backend.Server{}, fmt.Errorf("unknown algorithm %q", f.algorithm)
	}
}

func (f *staticFinder) nextRoundRobin() (backend.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.servers) == 0 {
		return backend.Server{}, ErrNoServers
	}
	srv := f.servers[f.cursor]
	f.cursor = (f.cursor + 1) % len(f.servers)
	return srv, nil
}

// lowestLoaded probes the whole pool and returns the backend with the
// strictly smallest count. A failed or timed-out probe scores the worst
// possible value, so an unreachable backend is only chosen when every
// backend is unreachable. Ties go to pool order.
func (f *staticFinder) lowestLoaded(ctx context.Context) (backend.Server, error) {
	if len(f.servers) == 0 {
		return backend.Server{}, ErrNoServers
	}

	// Every entry starts at the worst score so backends never probed,
	// including those skipped when the context is cancelled mid-loop,
	// cannot win the selection.
	scores := make([]int, len(f.servers))
	for i := range scores {
		scores[i] = math.MaxInt
	}
	sem := semaphore.NewWeighted(staticProbeLimit)
	var wg sync.WaitGroup

	for i, srv := range f.servers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, srv backend.Server) {
			defer wg.Done()
			defer sem.Release(1)

			probeCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			if count, err := f.probe(probeCtx, srv); err == nil {
				scores[i] = count
			}
		}(i, srv)
	}
	wg.Wait()

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] < scores[best] {
			best = i
		}
	}
	return f.servers[best], nil
}

func (f *staticFinder) PlayerCount(ctx context.Context) int {
	return aggregateCount(ctx, f.servers, f.probe, staticProbeLimit, f.timeout)
}
