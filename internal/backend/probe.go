package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"mc-loadbalancer/internal/mcwire"
	"mc-loadbalancer/internal/metrics"
	"mc-loadbalancer/internal/resolve"
)

// ProbeProtocolVersion is the protocol version the prober declares in its
// handshake.
const ProbeProtocolVersion int32 = 772

// Prober opens a short-lived connection to one backend, performs the
// handshake/status exchange and extracts the online-player count.
type Prober struct {
	resolver *resolve.Resolver
	dialer   *net.Dialer
}

// NewProber returns a Prober using the given resolver.
func NewProber(r *resolve.Resolver) *Prober {
	return &Prober{resolver: r, dialer: &net.Dialer{}}
}

// PlayerCount probes srv and returns its reported online-player count.
// The ctx deadline bounds the whole exchange: resolution, dialing, and
// both reads and writes.
func (p *Prober) PlayerCount(ctx context.Context, srv Server) (int, error) {
	count, err := p.playerCount(ctx, srv)
	if err != nil {
		metrics.ProbeFailures.Inc()
		logrus.WithError(err).WithField("server", srv.String()).Debug("Probe failed")
		return 0, err
	}
	return count, nil
}

func (p *Prober) playerCount(ctx context.Context, srv Server) (int, error) {
	addr, err := srv.dialAddr(ctx, p.resolver)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", srv.Address, err)
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	enc := mcwire.NewEncoder(conn)
	dec := mcwire.NewDecoder(conn)

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0, err
	}

	handshake := &mcwire.Handshake{
		ProtocolVersion: ProbeProtocolVersion,
		ServerAddress:   host,
		ServerPort:      port,
		Intent:          mcwire.IntentStatus,
	}
	if err := enc.WritePacket(mcwire.IDHandshake, handshake.Marshal()); err != nil {
		return 0, fmt.Errorf("writing handshake: %w", err)
	}
	if err := enc.WritePacket(mcwire.IDStatusRequest, nil); err != nil {
		return 0, fmt.Errorf("writing status request: %w", err)
	}

	packet, err := dec.ReadPacket()
	if err != nil {
		return 0, fmt.Errorf("reading status response: %w", err)
	}
	if packet.ID != mcwire.IDStatusResponse {
		return 0, fmt.Errorf("unexpected packet id %d in status response", packet.ID)
	}
	response, err := mcwire.UnmarshalStatusResponse(packet.Payload)
	if err != nil {
		return 0, fmt.Errorf("decoding status response: %w", err)
	}

	return parseOnlineCount(response.JSON)
}

// parseOnlineCount extracts players.online from a status JSON document.
func parseOnlineCount(doc string) (int, error) {
	var status struct {
		Players *struct {
			Online *int `json:"online"`
		} `json:"players"`
	}
	if err := json.Unmarshal([]byte(doc), &status); err != nil {
		return 0, fmt.Errorf("parsing status payload: %w", err)
	}
	if status.Players == nil {
		return 0, fmt.Errorf("status payload has no 'players' field")
	}
	if status.Players.Online == nil {
		return 0, fmt.Errorf("status payload has no 'players.online' field")
	}
	return *status.Players.Online, nil
}
