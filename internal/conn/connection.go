// Package conn drives the per-connection protocol state machine:
// handshake, then status or login, then the transfer redirect.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"mc-loadbalancer/internal/mcwire"
	"mc-loadbalancer/internal/metrics"
	"mc-loadbalancer/internal/resolve"
	"mc-loadbalancer/internal/selector"
	"mc-loadbalancer/internal/status"
)

// State is the connection's protocol state. It only ever advances.
type State int

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
	StateConfig
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	case StateConfig:
		return "config"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// handshakeTimeout bounds how long an idle peer may sit in the handshake
// state before the read fails.
const handshakeTimeout = 5 * time.Second

// minStatusProtocol is the floor for the protocol version echoed in
// status responses, covering clients that declare none.
const minStatusProtocol int32 = 766

// errDisconnect signals the normal end of a session after the transfer
// packet has been written.
var errDisconnect = errors.New("disconnect after transfer")

// Connection processes one accepted client connection. The finder and
// status cache are shared across all connections; everything else is
// owned by this connection alone.
type Connection struct {
	conn     net.Conn
	dec      *mcwire.Decoder
	enc      *mcwire.Encoder
	finder   selector.Finder
	cache    *status.Cache
	resolver *resolve.Resolver
	motd     string

	state    State
	protocol int32
	clientIP net.IP
	log      *logrus.Entry
}

// New wraps an accepted connection. id comes from the listener's atomic
// sequence and is used only for log correlation.
func New(c net.Conn, id uint64, finder selector.Finder, cache *status.Cache, resolver *resolve.Resolver, motd string) *Connection {
	var clientIP net.IP
	if addr, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		clientIP = addr.IP
	}
	return &Connection{
		conn:     c,
		dec:      mcwire.NewDecoder(c),
		enc:      mcwire.NewEncoder(c),
		finder:   finder,
		cache:    cache,
		resolver: resolver,
		motd:     motd,
		state:    StateHandshake,
		clientIP: clientIP,
		log: logrus.WithFields(logrus.Fields{
			"conn":   id,
			"client": c.RemoteAddr().String(),
		}),
	}
}

// Run processes packets until the session ends. Errors are connection-
// scoped: they are logged here and never propagate to the caller.
func (c *Connection) Run(ctx context.Context) {
	defer c.conn.Close()

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	_ = c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	for {
		packet, err := c.dec.ReadPacket()
		if err != nil {
			c.log.WithError(err).Debug("Connection closed")
			return
		}

		if err := c.handlePacket(ctx, packet); err != nil {
			if errors.Is(err, errDisconnect) {
				c.log.Debug("Session complete")
				return
			}
			c.log.WithError(err).
				WithField("state", c.state.String()).
				WithField("packet_id", packet.ID).
				Error("Failed to handle packet")
			return
		}
	}
}

func (c *Connection) handlePacket(ctx context.Context, packet *mcwire.Packet) error {
	switch c.state {
	case StateHandshake:
		return c.handleHandshake(packet)
	case StateStatus:
		return c.handleStatus(ctx, packet)
	case StateLogin:
		return c.handleLogin(packet)
	case StateConfig:
		if err := c.handleConfig(ctx); err != nil {
			return err
		}
		return errDisconnect
	default:
		return fmt.Errorf("packet in unexpected state %s", c.state)
	}
}

func (c *Connection) handleHandshake(packet *mcwire.Packet) error {
	if packet.ID != mcwire.IDHandshake {
		// Not fatal: some clients probe with legacy pings first.
		c.log.WithField("packet_id", packet.ID).Warn("Ignoring unknown packet in handshake state")
		return nil
	}

	handshake, err := mcwire.UnmarshalHandshake(packet.Payload)
	if err != nil {
		return fmt.Errorf("decoding handshake: %w", err)
	}

	c.protocol = handshake.ProtocolVersion
	switch handshake.Intent {
	case mcwire.IntentStatus:
		c.state = StateStatus
	case mcwire.IntentLogin, mcwire.IntentTransfer:
		c.state = StateLogin
	}
	// The handshake deadline no longer applies: status pings arrive at
	// the client's pace.
	_ = c.conn.SetReadDeadline(time.Time{})

	c.log.WithFields(logrus.Fields{
		"protocol": c.protocol,
		"state":    c.state.String(),
	}).Debug("Handshake complete")
	return nil
}

func (c *Connection) handleStatus(ctx context.Context, packet *mcwire.Packet) error {
	switch packet.ID {
	case mcwire.IDStatusRequest:
		metrics.StatusRequests.Inc()
		protocol := c.protocol
		if protocol < minStatusProtocol {
			protocol = minStatusProtocol
		}
		payload := c.cache.Get(ctx, c.motd, protocol)
		response := &mcwire.StatusResponse{JSON: payload}
		return c.enc.WritePacket(mcwire.IDStatusResponse, response.Marshal())

	case mcwire.IDPingRequest:
		ping, err := mcwire.UnmarshalPingRequest(packet.Payload)
		if err != nil {
			return fmt.Errorf("decoding ping: %w", err)
		}
		return c.enc.WritePacket(mcwire.IDPongResponse, mcwire.MarshalPong(ping.Payload))

	default:
		return fmt.Errorf("unexpected packet id %d in status state", packet.ID)
	}
}

func (c *Connection) handleLogin(packet *mcwire.Packet) error {
	switch packet.ID {
	case mcwire.IDLoginStart:
		login, err := mcwire.UnmarshalLoginStart(packet.Payload)
		if err != nil {
			return fmt.Errorf("decoding login start: %w", err)
		}
		c.log.WithField("player", login.Name).Debug("Login start")

		// No authentication happens here: the backend the client is
		// transferred to performs the real login.
		success := &mcwire.LoginSuccess{UUID: login.UUID, Name: login.Name}
		return c.enc.WritePacket(mcwire.IDLoginSuccess, success.Marshal())

	case mcwire.IDLoginAcknowledged:
		c.state = StateConfig
		return nil

	default:
		return fmt.Errorf("unexpected packet id %d in login state", packet.ID)
	}
}

// handleConfig runs once the client enters the config state: pick a
// backend, resolve it, and hand the client its address.
func (c *Connection) handleConfig(ctx context.Context) error {
	srv, err := c.finder.FindServer(ctx, c.clientIP)
	if err != nil {
		return fmt.Errorf("selecting backend: %w", err)
	}

	endpoint, err := srv.Resolve(ctx, c.resolver)
	if err != nil {
		return fmt.Errorf("resolving backend %s: %w", srv.Address, err)
	}

	c.log.WithFields(logrus.Fields{
		"server": srv.String(),
		"target": endpoint.Addr(),
	}).Info("Transferring client")

	transfer := &mcwire.Transfer{Host: endpoint.IP, Port: int32(endpoint.Port)}
	if err := c.enc.WritePacket(mcwire.IDTransfer, transfer.Marshal()); err != nil {
		return fmt.Errorf("writing transfer packet: %w", err)
	}
	metrics.Redirects.Inc()
	return nil
}
