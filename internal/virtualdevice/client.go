package virtualdevice

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// Client is one accepted virtual-device connection.
type Client struct {
	conn   net.Conn
	framer *meshtastic.StreamFramer
	server *Server
	logger *zap.Logger

	outbox chan []byte
	done   chan struct{}
	closed atomic.Bool

	mu           sync.Mutex
	wantConfigID uint32
}

func newClient(conn net.Conn, s *Server) *Client {
	return &Client{
		conn:   conn,
		framer: meshtastic.NewStreamFramer(conn, conn),
		server: s,
		logger: s.logger.With(zap.String("remote", conn.RemoteAddr().String())),
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
}

// run drives the client's write loop and read loop until either side
// closes or ctx is cancelled. The read and write loops proceed
// independently per §5: nothing here blocks another client, and only the
// server's client-set mutex is ever shared.
func (c *Client) run(ctx context.Context) {
	defer c.close()

	go c.writeLoop()

	for {
		data, err := c.framer.ReadPacket()
		if err != nil {
			return
		}
		tr, err := meshtastic.ParseToRadio(data)
		if err != nil {
			c.logger.Debug("discarding unparseable ToRadio frame", zap.Error(err))
			continue
		}
		c.handleToRadio(ctx, tr, data)

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case data, ok := <-c.outbox:
			if !ok {
				return
			}
			if err := c.framer.WritePacket(data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue fans a broadcast frame out to this client, disconnecting it
// instead of blocking if it has fallen too far behind (§4.5 point 2,
// §5's backpressure rule).
func (c *Client) enqueue(data []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.outbox <- data:
	default:
		c.logger.Warn("client outbox full, disconnecting")
		c.close()
	}
}

func (c *Client) close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	c.conn.Close()
	c.server.removeClient(c)
}

// handleToRadio dispatches one decoded client submission: a fresh
// want_config_id triggers a full replay, a mesh packet is either
// forwarded to the physical transport or rejected if it's an admin
// command this server isn't configured to allow, and disconnect closes
// the connection cleanly.
func (c *Client) handleToRadio(ctx context.Context, tr *meshtastic.ToRadio, raw []byte) {
	switch {
	case tr.WantConfigID != 0:
		c.mu.Lock()
		c.wantConfigID = tr.WantConfigID
		c.mu.Unlock()
		c.replay(ctx, tr.WantConfigID)

	case tr.Disconnect:
		c.close()

	case tr.Packet != nil:
		c.forwardPacket(ctx, tr.Packet, raw)
	}
}

func (c *Client) forwardPacket(ctx context.Context, pkt *meshtastic.MeshPacket, raw []byte) {
	sess := c.server.session()
	if sess == nil {
		return
	}

	isAdmin := pkt.Decoded != nil && pkt.Decoded.PortNum == meshtastic.PortNumAdminApp
	if isAdmin && !c.server.allowAdminCommands {
		c.logger.Info("rejecting admin command from virtual-device client, not allowed")
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{
			Packet: adminRejectionPacket(sess.LocalNodeNum(), pkt),
		}))
		return
	}

	if err := sess.ForwardClientFrame(ctx, raw); err != nil {
		c.logger.Warn("forward client frame failed", zap.Error(err))
	}
}

// adminRejectionPacket builds a synthetic routing-failure reply so a
// rejected client sees an explicit error rather than silence. The payload
// carries error_reason 33 (Meshtastic's NOT_AUTHORIZED routing error).
func adminRejectionPacket(localNodeNum uint32, original *meshtastic.MeshPacket) *meshtastic.MeshPacket {
	return &meshtastic.MeshPacket{
		From:    localNodeNum,
		To:      original.From,
		Channel: original.Channel,
		ID:      newSyntheticID(),
		Decoded: &meshtastic.Data{
			PortNum:   meshtastic.PortNumRoutingApp,
			RequestID: original.ID,
			Payload:   meshtastic.EncodeUint32(1, 33),
		},
	}
}

// newSyntheticID returns a random non-zero packet id for frames this
// server originates itself (rejection notices), rather than ones it is
// relaying.
func newSyntheticID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}

// replay sends this client its full inventory in one pass: local node
// identity, every known node and channel, every captured config and
// module-config fragment, device metadata, and finally a
// ConfigCompleteID sentinel that echoes the client's own want_config_id
// (§4.5 point 1) so it knows replay is finished.
func (c *Client) replay(ctx context.Context, wantConfigID uint32) {
	sess := c.server.session()
	if sess == nil || !sess.IsReady() {
		return
	}

	st := c.server.store

	if n, err := st.GetNode(ctx, sess.LocalNodeNum()); err == nil && n != nil {
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{
			MyInfo: &meshtastic.MyNodeInfo{MyNodeNum: sess.LocalNodeNum()},
		}))
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{NodeInfo: nodeInfoFromStore(*n)}))
	}

	nodes, err := st.ListNodes(ctx)
	if err != nil {
		c.logger.Warn("replay: list nodes failed", zap.Error(err))
	}
	for _, n := range nodes {
		if n.NodeNum == sess.LocalNodeNum() {
			continue
		}
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{NodeInfo: nodeInfoFromStore(n)}))
	}

	channels, err := st.ListChannels(ctx)
	if err != nil {
		c.logger.Warn("replay: list channels failed", zap.Error(err))
	}
	for _, ch := range channels {
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{Channel: channelSettingsFromStore(ch)}))
	}

	configFragments, moduleConfigFragments := sess.AllConfigFragments()
	for _, f := range configFragments {
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{Config: f}))
	}
	for _, f := range moduleConfigFragments {
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{ModuleConfig: f}))
	}

	if meta, ok := sess.DeviceMetadata(); ok {
		c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{Metadata: meta}))
	}

	c.enqueue(meshtastic.EncodeFromRadio(&meshtastic.FromRadio{ConfigCompleteID: wantConfigID}))
}

func nodeInfoFromStore(n store.Node) *meshtastic.NodeInfo {
	return &meshtastic.NodeInfo{
		Num: n.NodeNum,
		User: &meshtastic.User{
			LongName:  n.LongName,
			ShortName: n.ShortName,
			HwModel:   n.HwModel,
			Role:      n.Role,
			PublicKey: n.PublicKey,
		},
		Snr:        n.SNR,
		LastHeard:  uint32(n.LastHeard),
		Channel:    n.LastChannel,
		Hops:       n.HopsAway,
		IsFavorite: n.Favorite,
	}
}

func channelSettingsFromStore(ch store.Channel) *meshtastic.ChannelSettings {
	return &meshtastic.ChannelSettings{
		Index: ch.Index,
		Role:  ch.Role,
		Settings: &meshtastic.ChannelConfig{
			Psk:             ch.Psk,
			Name:            ch.Name,
			UplinkEnabled:   ch.UplinkEnabled,
			DownlinkEnabled: ch.DownlinkEnabled,
		},
	}
}

// triggerReplay re-sends this client's full inventory using its own last
// want_config_id, for §4.5's Refresh requirement on physical reconnect.
// A client that has never sent a want_config_id yet has nothing to
// refresh.
func (c *Client) triggerReplay() {
	c.mu.Lock()
	id := c.wantConfigID
	c.mu.Unlock()
	if id == 0 {
		return
	}
	c.replay(context.Background(), id)
}
