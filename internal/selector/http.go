package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"mc-loadbalancer/internal/backend"
	"mc-loadbalancer/internal/config"
)

// httpFinder asks a remote endpoint which backend to use. The endpoint
// answers {"address": ..., "port": ...}; any transport or decode error
// degrades to the configured fallback.
type httpFinder struct {
	endpoint string
	method   string
	headers  map[string]string
	fallback backend.Server
	client   *http.Client
	probe    ProbeFunc
	timeout  time.Duration
}

func newHTTPFinder(cfg *config.HTTPConfig, probe ProbeFunc, timeout time.Duration) *httpFinder {
	return &httpFinder{
		endpoint: cfg.Endpoint,
		method:   cfg.Method,
		headers:  cfg.Headers,
		fallback: backend.FromConfig(cfg.Fallback),
		client:   &http.Client{Timeout: timeout},
		probe:    probe,
		timeout:  timeout,
	}
}

func (f *httpFinder) FindServer(ctx context.Context, _ net.IP) (backend.Server, error) {
	srv, err := f.request(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Remote selector failed, using fallback")
		return f.fallback, nil
	}
	return srv, nil
}

func (f *httpFinder) request(ctx context.Context) (backend.Server, error) {
	req, err := http.NewRequestWithContext(ctx, f.method, f.endpoint, nil)
	if err != nil {
		return backend.Server{}, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return backend.Server{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backend.Server{}, fmt.Errorf("selector endpoint returned status %d", resp.StatusCode)
	}

	var answer struct {
		Address string `json:"address"`
		Port    uint16 `json:"port"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return backend.Server{}, fmt.Errorf("decoding selector response: %w", err)
	}
	if answer.Address == "" {
		return backend.Server{}, fmt.Errorf("selector response has no address")
	}
	if answer.Port == 0 {
		answer.Port = config.DefaultPort
	}
	return backend.Server{Address: answer.Address, Port: answer.Port}, nil
}

func (f *httpFinder) PlayerCount(ctx context.Context) int {
	// The remote selector owns the real pool; only the fallback is known
	// here.
	return aggregateCount(ctx, []backend.Server{f.fallback}, f.probe, 1, f.timeout)
}
