// Package status renders and caches the server-list status payload.
package status

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mc-loadbalancer/internal/selector"
)

// refreshInterval bounds how often the aggregate player count is read
// from the selector. Between refreshes every status request is served
// from the entry table.
const refreshInterval = 15 * time.Second

// ServerName is the version name embedded in status responses.
const ServerName = "Loadbalancer"

// MaxPlayers is the fixed capacity figure embedded in status responses.
const MaxPlayers = 1000

// response is the status JSON document shape.
type response struct {
	Version           version `json:"version"`
	Players           players `json:"players"`
	Description       string  `json:"description"`
	Favicon           string  `json:"favicon,omitempty"`
	EnforceSecureChat bool    `json:"enforceSecureChat"`
}

type version struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type players struct {
	Max    int      `json:"max"`
	Online int      `json:"online"`
	Sample []sample `json:"sample"`
}

type sample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type cacheKey struct {
	motd     string
	protocol int32
	count    int
}

// Cache memoizes rendered status payloads keyed by (motd, protocol,
// player count), refreshing the count from the selector at most once per
// interval. Entries are never evicted; the key domain is tiny in
// practice.
type Cache struct {
	finder selector.Finder

	mu          sync.Mutex
	count       int
	lastRefresh time.Time
	entries     map[cacheKey]string
}

// NewCache returns a Cache backed by finder. The first Get always
// refreshes.
func NewCache(finder selector.Finder) *Cache {
	return &Cache{
		finder:  finder,
		entries: make(map[cacheKey]string),
	}
}

// Get returns the rendered status payload for the given motd and protocol
// version. The mutex serializes the staleness check, so concurrent
// callers in the same window trigger exactly one aggregate query.
func (c *Cache) Get(ctx context.Context, motd string, protocol int32) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRefresh.IsZero() || time.Since(c.lastRefresh) > refreshInterval {
		c.count = c.finder.PlayerCount(ctx)
		c.lastRefresh = time.Now()
	}

	key := cacheKey{motd: motd, protocol: protocol, count: c.count}
	if payload, ok := c.entries[key]; ok {
		return payload
	}

	payload := render(motd, protocol, c.count)
	c.entries[key] = payload
	return payload
}

func render(motd string, protocol int32, count int) string {
	doc := response{
		Version:           version{Name: ServerName, Protocol: protocol},
		Players:           players{Max: MaxPlayers, Online: count, Sample: []sample{}},
		Description:       motd,
		EnforceSecureChat: false,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(encoded)
}
