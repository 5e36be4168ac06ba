package selector

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"mc-loadbalancer/internal/backend"
	"mc-loadbalancer/internal/config"
	"mc-loadbalancer/internal/geo"
)

// geoLookup is the geolocation seam; *geo.Cache satisfies it.
type geoLookup interface {
	Lookup(ctx context.Context, ip string) (*geo.Record, error)
}

// geoFinder routes clients by geolocation: continent match first, then
// country, then the configured fallback. Lookup failures degrade to the
// fallback; geo selection never fails.
type geoFinder struct {
	regions  map[string]backend.Server
	fallback backend.Server
	cache    geoLookup
	probe    ProbeFunc
	timeout  time.Duration
}

func newGeoFinder(cfg *config.GeoConfig, cache geoLookup, probe ProbeFunc, timeout time.Duration) *geoFinder {
	regions := make(map[string]backend.Server, len(cfg.Regions))
	for code, sc := range cfg.Regions {
		regions[code] = backend.FromConfig(sc)
	}
	return &geoFinder{
		regions:  regions,
		fallback: backend.FromConfig(cfg.Fallback),
		cache:    cache,
		probe:    probe,
		timeout:  timeout,
	}
}

func (f *geoFinder) FindServer(ctx context.Context, clientIP net.IP) (backend.Server, error) {
	if clientIP == nil {
		return f.fallback, nil
	}

	rec, err := f.cache.Lookup(ctx, clientIP.String())
	if err != nil {
		logrus.WithError(err).WithField("ip", clientIP.String()).Warn("Geo lookup failed, using fallback")
		return f.fallback, nil
	}

	if srv, ok := f.regions[rec.ContinentCode]; ok {
		return srv, nil
	}
	if srv, ok := f.regions[rec.CountryCode]; ok {
		return srv, nil
	}
	return f.fallback, nil
}

func (f *geoFinder) PlayerCount(ctx context.Context) int {
	pool := make([]backend.Server, 0, len(f.regions)+1)
	for _, srv := range f.regions {
		pool = append(pool, srv)
	}
	pool = append(pool, f.fallback)
	return aggregateCount(ctx, pool, f.probe, geoProbeLimit, f.timeout)
}
