// Package selector implements the server-selection strategies: static
// round-robin, static lowest-load, geo-based and http-based. One Finder is
// shared by every connection for the process lifetime.
package selector

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mc-loadbalancer/internal/backend"
	"mc-loadbalancer/internal/config"
	"mc-loadbalancer/internal/geo"
	"mc-loadbalancer/internal/resolve"
)

// ErrNoServers is returned when selection is attempted on an empty pool.
var ErrNoServers = errors.New("no servers available")

// Probe fan-out limits.
const (
	staticProbeLimit = 5
	geoProbeLimit    = 8
)

// Finder picks a backend for a new session and reports the aggregate
// player count across its pool.
type Finder interface {
	// FindServer returns the backend the given client should be routed
	// to. clientIP is only consulted by geo mode.
	FindServer(ctx context.Context, clientIP net.IP) (backend.Server, error)

	// PlayerCount returns the sum of online players across the pool.
	// Unreachable backends contribute zero.
	PlayerCount(ctx context.Context) int
}

// ProbeFunc reads the player count of one backend.
type ProbeFunc func(ctx context.Context, srv backend.Server) (int, error)

// New builds the Finder for the validated configuration.
func New(cfg *config.Config, resolver *resolve.Resolver) (Finder, error) {
	probe := backend.NewProber(resolver).PlayerCount

	switch cfg.Mode {
	case config.ModeStatic:
		return newStaticFinder(cfg.Static, probe, cfg.ProbeTimeout)
	case config.ModeGeo:
		var store geo.Store
		if cfg.Geo.CacheAddress != "" {
			store = geo.NewRedisStore(cfg.Geo.CacheAddress)
		} else {
			store = geo.NewMemoryStore()
		}
		cache := geo.NewCache(store, cfg.Geo.Token)
		return newGeoFinder(cfg.Geo, cache, probe, cfg.ProbeTimeout), nil
	case config.ModeHTTP:
		return newHTTPFinder(cfg.HTTP, probe, cfg.ProbeTimeout), nil
	default:
		return nil, errors.New("unknown selection mode " + cfg.Mode)
	}
}

// aggregateCount probes every server concurrently, at most limit in
// flight, each bounded by timeout. Failed probes contribute zero.
func aggregateCount(ctx context.Context, servers []backend.Server, probe ProbeFunc, limit int64, timeout time.Duration) int {
	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0

	for _, srv := range servers {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(srv backend.Server) {
			defer wg.Done()
			defer sem.Release(1)

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			count, err := probe(probeCtx, srv)
			if err != nil {
				return
			}
			mu.Lock()
			total += count
			mu.Unlock()
		}(srv)
	}

	wg.Wait()
	return total
}
