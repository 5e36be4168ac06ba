// Package backend models the Minecraft servers traffic is routed to and
// implements the short-lived status probe used to read their player counts.
package backend

import (
	"context"
	"fmt"
	"net"

	"mc-loadbalancer/internal/config"
	"mc-loadbalancer/internal/resolve"
)

// Server represents a backend server. Identity is the address text.
type Server struct {
	Name    string
	Address string
	Port    uint16
}

// FromConfig builds a Server from its config entry.
func FromConfig(sc config.ServerConfig) Server {
	return Server{Name: sc.Name, Address: sc.Address, Port: sc.Port}
}

// String returns the server's display name or address.
func (s Server) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.Address)
	}
	return s.Address
}

// Resolve turns the server's address into a concrete endpoint. The
// configured port acts as the fallback when the address text carries none;
// an explicit port in the address text or an SRV record wins over it.
func (s Server) Resolve(ctx context.Context, r *resolve.Resolver) (resolve.Endpoint, error) {
	port := s.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return r.Resolve(ctx, s.Address, "minecraft", "tcp", port)
}

// Equal reports whether two servers identify the same backend.
func (s Server) Equal(other Server) bool {
	return s.Address == other.Address
}

// dialAddr resolves and joins the server's dial target.
func (s Server) dialAddr(ctx context.Context, r *resolve.Resolver) (string, error) {
	ep, err := s.Resolve(ctx, r)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ep.IP, fmt.Sprintf("%d", ep.Port)), nil
}
