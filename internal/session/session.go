// Package session implements the radio session: config capture, request
// correlation, the admin passkey lifecycle, and send/ACK accounting on
// top of a connected link.Link. It is the only component that
// understands Meshtastic's FromRadio/ToRadio semantics; link.Link only
// knows bytes, and internal/store only knows rows.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/link"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// Session drives one radio link through config capture and steady-state
// send/receive, keeping the mesh state store in sync.
type Session struct {
	link   *link.Link
	store  store.Store
	logger *zap.Logger

	requests *RequestTable
	passkeys *PasskeyCache

	onReady          func()
	onInboundText    func(store.Message)
	onBroadcastFrame func([]byte)

	mu                    sync.Mutex
	state                 captureState
	configID              uint32
	readyFired            bool
	localNodeNum          uint32
	captureTimer          *time.Timer
	configFragments       map[uint32]*meshtastic.ConfigFragment
	moduleConfigFragments map[uint32]*meshtastic.ConfigFragment
	deviceMetadata        *meshtastic.DeviceMetadata

	destQueues map[uint32]*destinationQueue
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithReadyCallback registers a callback fired exactly once, after
// capture completes and the session transitions to Ready (§4.2.1).
func WithReadyCallback(fn func()) Option {
	return func(s *Session) { s.onReady = fn }
}

// WithInboundTextCallback registers a callback fired after every inbound
// text message is persisted, e.g. for the automation scheduler's
// auto-responder to inspect new traffic without polling the store.
func WithInboundTextCallback(fn func(store.Message)) Option {
	return func(s *Session) { s.onInboundText = fn }
}

// New constructs a Session around an already-constructed Link and Store.
// The caller starts the link's own Run loop separately; Session.Run reads
// from its Frames channel.
func New(l *link.Link, st store.Store, opts ...Option) *Session {
	s := &Session{
		link:                  l,
		store:                 st,
		logger:                logging.With(zap.String("component", "session")),
		requests:              NewRequestTable(),
		state:                 stateDisconnected,
		configFragments:       make(map[uint32]*meshtastic.ConfigFragment),
		moduleConfigFragments: make(map[uint32]*meshtastic.ConfigFragment),
		destQueues:            make(map[uint32]*destinationQueue),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.passkeys = NewPasskeyCache(st, s.fetchSessionPasskey)
	return s
}

// fetchSessionPasskey issues a GetSessionKey admin request to remoteNodeNum
// and waits for its response, implementing §4.2.3 step 2.
func (s *Session) fetchSessionPasskey(ctx context.Context, remoteNodeNum uint32) (store.SessionPasskey, error) {
	id, err := s.sendAdminNoPasskey(ctx, remoteNodeNum, meshtastic.NewGetSessionKeyRequest())
	if err != nil {
		return store.SessionPasskey{}, err
	}

	v, err := s.requests.Await(ctx, id, KindSessionPasskey, remoteNodeNum)
	if err != nil {
		return store.SessionPasskey{}, err
	}
	admin, ok := v.(*meshtastic.AdminMessage)
	if !ok {
		return store.SessionPasskey{}, ErrSessionNotReady
	}
	return store.SessionPasskey{
		RemoteNodeNum: remoteNodeNum,
		Bytes:         admin.SessionPasskey,
		ExpiresAt:     int64(admin.SessionExpiresAt),
	}, nil
}

// sendAdminNoPasskey sends an admin message without going through
// PasskeyCache.Get, used only for the GetSessionKey request itself (which
// would otherwise recurse into fetching a passkey to fetch a passkey).
func (s *Session) sendAdminNoPasskey(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (uint32, error) {
	payload := meshtastic.EncodeAdminMessage(admin)
	id := newPacketID()
	from := s.LocalNodeNum()
	pkt := meshtastic.NewAdminPacket(from, dest, id, payload, true)
	if err := s.link.Send(ctx, meshtastic.EncodeToRadio(pkt)); err != nil {
		return 0, err
	}
	return id, nil
}

// Run drains decoded frames from the link until its Frames channel closes
// (the link's own Run loop exited) or ctx is cancelled. The link owns
// reconnect/backoff transparently and keeps delivering on the same
// channel across reconnects, so a second goroutine watches for each new
// connection and (re)starts config capture from Handshake on it.
func (s *Session) Run(ctx context.Context) {
	go s.watchConnections(ctx)

	frames := s.link.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frames:
			if !ok {
				return
			}
			fr, err := meshtastic.ParseFromRadio(data)
			if err != nil {
				s.logger.Debug("discarding unparseable frame", zap.Error(err))
				continue
			}
			s.handleFromRadio(ctx, fr)
			if s.IsReady() && s.onBroadcastFrame != nil {
				s.onBroadcastFrame(data)
			}
		}
	}
}

// watchConnections restarts capture each time the link transitions from
// disconnected to connected, and marks the session Disconnected (§4.2.1
// state 4) the instant it drops, cancelling any outstanding awaiters so
// in-flight sends fail fast instead of waiting out their full timeout.
func (s *Session) watchConnections(ctx context.Context) {
	wasConnected := false
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := s.link.IsConnected()
			switch {
			case connected && !wasConnected:
				handshake := s.beginCapture()
				if err := s.link.Send(ctx, handshake); err != nil {
					s.logger.Warn("want-config handshake send failed", zap.Error(err))
				}
			case !connected && wasConnected:
				s.mu.Lock()
				s.state = stateDisconnected
				s.mu.Unlock()
				s.requests.CancelAll()
			}
			wasConnected = connected
		}
	}
}

// IsReady reports whether capture has completed on the current
// connection (§4.2.1 state Ready).
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// LocalNodeNum returns this gateway's own node number, populated once
// MyNodeInfo arrives during capture.
func (s *Session) LocalNodeNum() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localNodeNum
}

// ConfigFragment returns the most recently captured raw Config oneof
// fragment for variant, if any (e.g. ConfigVariantLoRa).
func (s *Session) ConfigFragment(variant uint32) (*meshtastic.ConfigFragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.configFragments[variant]
	return f, ok
}

// ModuleConfigFragment returns the most recently captured raw
// ModuleConfig oneof fragment for variant, if any.
func (s *Session) ModuleConfigFragment(variant uint32) (*meshtastic.ConfigFragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.moduleConfigFragments[variant]
	return f, ok
}

// AllConfigFragments returns a snapshot of every captured Config and
// ModuleConfig fragment, for the virtual-device server's replay path.
func (s *Session) AllConfigFragments() (config, moduleConfig []*meshtastic.ConfigFragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.configFragments {
		config = append(config, f)
	}
	for _, f := range s.moduleConfigFragments {
		moduleConfig = append(moduleConfig, f)
	}
	return config, moduleConfig
}

// DeviceMetadata returns the most recently captured device metadata, if
// any has arrived yet.
func (s *Session) DeviceMetadata() (*meshtastic.DeviceMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceMetadata, s.deviceMetadata != nil
}
