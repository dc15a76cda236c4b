// Package virtualdevice implements the auxiliary TCP listener that lets
// ordinary Meshtastic clients (phone apps, meshtastic-python, third-party
// tools) attach to the same mesh state the gateway's physical radio link
// sees, without touching the radio itself. Each accepted connection is an
// otherwise-unmodified Meshtastic client and speaks the same framed
// FromRadio/ToRadio protocol a phone would over Bluetooth.
package virtualdevice

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/session"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// outboxSize bounds how far a slow client can fall behind before it gets
// disconnected, mirroring internal/link's frame channel buffer.
const outboxSize = 256

// Server listens for virtual-device connections and mediates between
// them and the radio session: replay on accept, broadcast of inbound
// frames, and funnelling of client ToRadio submissions back to the
// physical transport.
type Server struct {
	addr               string
	store              store.Store
	allowAdminCommands bool
	logger             *zap.Logger

	mu      sync.Mutex
	sess    *session.Session
	clients map[*Client]struct{}
}

// New constructs a Server. AttachSession must be called once the radio
// Session it will serve has been constructed, before Run is started.
func New(addr string, st store.Store, allowAdminCommands bool) *Server {
	return &Server{
		addr:               addr,
		store:              st,
		allowAdminCommands: allowAdminCommands,
		logger:             logging.With(zap.String("component", "virtualdevice")),
		clients:            make(map[*Client]struct{}),
	}
}

// AttachSession wires the already-constructed radio Session into the
// server. Session construction takes this server's OnSessionReady and
// OnBroadcastFrame methods as callback Options before the Session value
// exists to be referenced here, so wiring happens in two steps: build the
// Server, build the Session with the Server's method values as callbacks,
// then call AttachSession so forwarded client frames have somewhere to
// go.
func (s *Server) AttachSession(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
}

// Run accepts connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("virtual-device listener started", zap.String("addr", s.addr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		c := newClient(conn, s)
		s.addClient(c)
		go c.run(ctx)
	}
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// ClientCount reports how many virtual-device clients are currently
// attached, for the operator TUI's status panel.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// OnSessionReady is registered via session.WithReadyCallback at Session
// construction time. Capture completing (first connection, or any
// reconnection) means the physical node/channel/config state may have
// changed, so every currently-attached client gets a fresh replay (§4.5
// Refresh) rather than being left with a stale one.
func (s *Server) OnSessionReady() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.triggerReplay()
	}
}

// OnBroadcastFrame is registered via session.WithBroadcastCallback. Every
// post-ready FromRadio frame the session observes is fanned out verbatim
// to every connected client (§4.5 Broadcast); a client whose outbox is
// full is disconnected rather than allowed to block the fan-out of
// everyone else.
func (s *Server) OnBroadcastFrame(raw []byte) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.enqueue(raw)
	}
}
