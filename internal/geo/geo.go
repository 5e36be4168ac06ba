// Package geo resolves client IPs to geolocation records using the ipinfo
// lite API, caching every answer in a persistent store keyed by IP.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.ipinfo.io/lite"

// Record is one geolocation answer. Identity is the IP.
type Record struct {
	IP            string `json:"ip"`
	ASN           string `json:"asn"`
	ASName        string `json:"as_name"`
	ASDomain      string `json:"as_domain"`
	CountryCode   string `json:"country_code"`
	Country       string `json:"country"`
	ContinentCode string `json:"continent_code"`
	Continent     string `json:"continent"`
}

// Store persists records keyed by IP. Get returns ok=false on a miss.
type Store interface {
	Get(ctx context.Context, ip string) (string, bool, error)
	Put(ctx context.Context, ip, value string) error
}

// Cache looks up geolocation data, hitting the store first and the API on
// a miss. Records are stored indefinitely; distinct IPs are fetched once
// for the life of the store.
type Cache struct {
	client  *http.Client
	store   Store
	token   string
	baseURL string
}

// NewCache returns a Cache using the given store and API token.
func NewCache(store Store, token string) *Cache {
	return &Cache{
		client:  &http.Client{Timeout: 10 * time.Second},
		store:   store,
		token:   token,
		baseURL: defaultBaseURL,
	}
}

// Lookup returns the record for ip, fetching and persisting it on a miss.
func (c *Cache) Lookup(ctx context.Context, ip string) (*Record, error) {
	if cached, ok, err := c.store.Get(ctx, ip); err != nil {
		logrus.WithError(err).WithField("ip", ip).Warn("Geo store read failed")
	} else if ok {
		var rec Record
		if err := json.Unmarshal([]byte(cached), &rec); err == nil {
			return &rec, nil
		}
		logrus.WithField("ip", ip).Warn("Discarding corrupt geo cache entry")
	}

	rec, err := c.fetch(ctx, ip)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(rec)
	if err == nil {
		if err := c.store.Put(ctx, ip, string(encoded)); err != nil {
			logrus.WithError(err).WithField("ip", ip).Warn("Geo store write failed")
		}
	}
	return rec, nil
}

func (c *Cache) fetch(ctx context.Context, ip string) (*Record, error) {
	url := fmt.Sprintf("%s/%s?token=%s", c.baseURL, ip, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo lookup for %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup for %s: status %d", ip, resp.StatusCode)
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding geo response for %s: %w", ip, err)
	}
	if rec.IP == "" {
		rec.IP = ip
	}
	return &rec, nil
}
