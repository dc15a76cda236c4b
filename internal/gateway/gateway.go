// Package gateway wires together the mesh state store, the radio link
// and session, the automation scheduler and the virtual-device server
// into a single running service, and owns its lifecycle.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/config"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/link"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/message"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/mqttmirror"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/output"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/scheduler"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/session"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/virtualdevice"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// Gateway mediates a single physical radio for many consumers: it keeps
// the mesh state store in sync via the radio session, runs the
// automations registered in the store's settings table, and serves the
// virtual-device listener to auxiliary clients.
type Gateway struct {
	cfg    *config.Config
	logger *zap.Logger

	store     store.Store
	link      *link.Link
	session   *session.Session
	scheduler *scheduler.Scheduler
	vdServer  *virtualdevice.Server
	mirror    *mqttmirror.Mirror
	outputs   []output.Output
	messages  chan store.Message

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New opens the mesh state store and wires the link, session, scheduler
// and virtual-device server around it. Automations, the MQTT mirror and
// notification outputs are configured from the store's settings table,
// not from cfg, per the split described in internal/config.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("gateway: open store: %w", err)
	}

	var dialer link.Dialer
	switch cfg.Transport.Type {
	case "serial":
		dialer = link.SerialDialer{Port: cfg.Transport.Serial.Port, Baud: cfg.Transport.Serial.Baud}
	case "tcp":
		dialer = link.TCPDialer{Host: cfg.Transport.TCP.Host, Port: cfg.Transport.TCP.Port}
	default:
		return nil, fmt.Errorf("gateway: unknown transport type %q", cfg.Transport.Type)
	}

	l := link.New(dialer, link.Config{})

	g := &Gateway{
		cfg:      cfg,
		logger:   logging.With(zap.String("component", "gateway")),
		store:    st,
		link:     l,
		messages: make(chan store.Message, 64),
	}

	var vdServer *virtualdevice.Server
	if cfg.VirtualDevice.Enabled {
		vdServer = virtualdevice.New(cfg.VirtualDevice.Addr, st, cfg.VirtualDevice.AllowAdminCommands)
	}

	// responder is filled in after the Session exists (it needs the
	// Session as its Sender), but the callback below is only invoked
	// once Session.Run starts, so capturing the variable by reference
	// and assigning it later is safe.
	var responder *scheduler.Responder

	sessOpts := []session.Option{}
	if vdServer != nil {
		sessOpts = append(sessOpts, session.WithReadyCallback(vdServer.OnSessionReady))
	}
	sessOpts = append(sessOpts, session.WithInboundTextCallback(func(msg store.Message) {
		if responder != nil {
			responder.HandleMessage(msg)
		}
		g.forwardToOutputs(context.Background(), msg)
		select {
		case g.messages <- msg:
		default:
		}
	}))
	sessOpts = append(sessOpts, session.WithBroadcastCallback(func(raw []byte) {
		if vdServer != nil {
			vdServer.OnBroadcastFrame(raw)
		}
		g.mirrorFrame(raw)
	}))

	sess := session.New(l, st, sessOpts...)
	if vdServer != nil {
		vdServer.AttachSession(sess)
	}

	g.session = sess
	g.vdServer = vdServer

	var rErr error
	responder, rErr = newResponder(ctx, st, sess)
	if rErr != nil {
		return nil, rErr
	}

	sch := scheduler.New(st, sess)
	if err := registerAutomations(ctx, sch, sess, st); err != nil {
		return nil, err
	}
	g.scheduler = sch

	if mirror, err := newMirror(ctx, st); err != nil {
		g.logger.Warn("mqtt mirror disabled", zap.Error(err))
	} else {
		g.mirror = mirror
	}

	outputs, err := newOutputs(ctx, st)
	if err != nil {
		return nil, err
	}
	g.outputs = outputs

	return g, nil
}

// Start begins the link's connect loop, the session's frame processing
// loop, the scheduler's automations and, if enabled, the virtual-device
// listener. It returns once everything has been launched; callers cancel
// ctx and call Stop to shut down.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("gateway: already running")
	}
	g.running = true
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.mu.Unlock()

	go g.link.Run(runCtx)
	go g.session.Run(runCtx)
	g.scheduler.Start(runCtx)

	if g.vdServer != nil {
		go func() {
			if err := g.vdServer.Run(runCtx); err != nil {
				g.logger.Warn("virtual-device server stopped", zap.Error(err))
			}
		}()
	}

	g.logger.Info("gateway started", zap.String("transport", g.cfg.Transport.Type))
	return nil
}

// Stop halts the scheduler, virtual-device server, session and link, and
// closes the outputs and MQTT mirror.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil
	}
	g.running = false

	if g.cancel != nil {
		g.cancel()
	}
	g.scheduler.Stop()
	if err := g.link.Close(); err != nil {
		g.logger.Warn("error closing link", zap.Error(err))
	}
	if g.mirror != nil {
		g.mirror.Close()
	}
	for _, out := range g.outputs {
		if err := out.Close(); err != nil {
			g.logger.Warn("error closing output", zap.String("output", out.Name()), zap.Error(err))
		}
	}

	g.logger.Info("gateway stopped")
	return nil
}

// LinkStatus reports the physical transport's current connection state,
// for the operator TUI.
func (g *Gateway) LinkStatus() link.Status {
	return g.link.Status()
}

// SessionReady reports whether config capture has completed.
func (g *Gateway) SessionReady() bool {
	return g.session.IsReady()
}

// LocalNodeNum returns this gateway's own node number once captured.
func (g *Gateway) LocalNodeNum() uint32 {
	return g.session.LocalNodeNum()
}

// NodeCount reports how many mesh nodes the store currently knows about.
func (g *Gateway) NodeCount(ctx context.Context) int {
	nodes, err := g.store.ListNodes(ctx)
	if err != nil {
		return 0
	}
	return len(nodes)
}

// TaskCount reports how many automations are registered.
func (g *Gateway) TaskCount() int {
	return g.scheduler.TaskCount()
}

// VirtualDeviceClientCount reports how many auxiliary clients are
// currently attached, or 0 if the virtual-device listener is disabled.
func (g *Gateway) VirtualDeviceClientCount() int {
	if g.vdServer == nil {
		return 0
	}
	return g.vdServer.ClientCount()
}

// Messages returns a channel of inbound text messages observed by the
// radio session, for consumers such as the TUI that want a live feed
// rather than polling the store.
func (g *Gateway) Messages() <-chan store.Message {
	return g.messages
}

// forwardToOutputs builds a notification packet from an inbound text
// message and sends it to every configured output, mirroring the
// teacher's relay loop's send-to-outputs step.
func (g *Gateway) forwardToOutputs(ctx context.Context, msg store.Message) {
	if len(g.outputs) == 0 {
		return
	}
	pkt := packetFromMessage(msg)
	for _, out := range g.outputs {
		if !out.Enabled() {
			continue
		}
		if err := out.Send(ctx, pkt); err != nil {
			g.logger.Warn("output send failed", zap.String("output", out.Name()), zap.Error(err))
		}
	}
}

func packetFromMessage(msg store.Message) *message.Packet {
	channel := uint32(0)
	if msg.Channel >= 0 {
		channel = uint32(msg.Channel)
	}
	return &message.Packet{
		ID:      msg.RequestID,
		From:    msg.From,
		To:      msg.To,
		Channel: channel,
		PortNum: message.PortNumTextMessage,
		Payload: &message.TextMessage{Text: msg.Text},
		SNR:     msg.RxSnr,
		RSSI:    msg.RxRssi,
	}
}

// mirrorFrame decodes a raw FromRadio frame and publishes it to the MQTT
// mirror, if one is configured. Frames that aren't MeshPackets (config
// fragments, node info, etc.) are not mirrored.
func (g *Gateway) mirrorFrame(raw []byte) {
	if g.mirror == nil {
		return
	}
	fr, err := meshtastic.ParseFromRadio(raw)
	if err != nil || fr.Packet == nil {
		return
	}
	pkt := fr.ToPacket()
	if pkt == nil {
		return
	}
	g.mirror.Publish(message.FromMeshtasticPacket(pkt))
}
