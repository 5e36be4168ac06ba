package conn

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"mc-loadbalancer/internal/metrics"
	"mc-loadbalancer/internal/resolve"
	"mc-loadbalancer/internal/selector"
	"mc-loadbalancer/internal/status"
)

// Server accepts client connections and runs one Connection per accept.
type Server struct {
	finder   selector.Finder
	cache    *status.Cache
	resolver *resolve.Resolver
	motd     string
	limiter  *rate.Limiter

	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// NewServer builds a Server. connRate caps accepted connections per
// second; the burst matches the rate so short spikes are absorbed.
func NewServer(finder selector.Finder, cache *status.Cache, resolver *resolve.Resolver, motd string, connRate int) *Server {
	return &Server{
		finder:   finder,
		cache:    cache,
		resolver: resolver,
		motd:     motd,
		limiter:  rate.NewLimiter(rate.Limit(connRate), connRate),
	}
}

// Serve accepts connections from ln until ctx is cancelled or the
// listener is closed. It waits for in-flight connections on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.wg.Wait()

	// Unblock Accept when the caller cancels.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		client, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithError(err).Warn("Accept failed")
			continue
		}

		metrics.Connections.Inc()
		id := s.nextID.Add(1)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			New(client, id, s.finder, s.cache, s.resolver, s.motd).Run(ctx)
		}()
	}
}
