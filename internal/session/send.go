package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// ErrSessionNotReady is returned when a send is attempted before capture
// completes (§4.2.1 state Ready required).
var ErrSessionNotReady = errors.New("session: not ready")

// destinationQueue is a per-destination mutex. SendText with wantAck holds
// it until the ack resolves or times out, so a second SendText to the
// same node waits for the first. SendAdmin holds it only while writing the
// frame, and traceroute and passkey-less admin sends do not take it, so
// those can be in flight beside another want-ack record to the same node.
// Sends to other nodes are never blocked by it.
type destinationQueue struct {
	mu sync.Mutex
}

func (s *Session) destQueue(dest uint32) *destinationQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.destQueues[dest]
	if !ok {
		q = &destinationQueue{}
		s.destQueues[dest] = q
	}
	return q
}

// newPacketID returns a random non-zero 32-bit packet id, doubling as the
// requestId the device echoes back in ACKs and admin responses.
func newPacketID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}

// SendText queues a text message to dest on channel and returns once the
// device has accepted it onto the wire; delivery confirmation arrives
// asynchronously and updates the Message's DeliveryState in the store.
func (s *Session) SendText(ctx context.Context, dest, channel uint32, text string, wantAck bool) (*store.Message, error) {
	if !s.IsReady() {
		return nil, ErrSessionNotReady
	}

	id := newPacketID()
	from := s.LocalNodeNum()

	msg := store.Message{
		ID:            fmt.Sprintf("%d", id),
		From:          from,
		To:            dest,
		Text:          text,
		Channel:       channelOrDirect(dest, channel),
		PortNum:       uint32(meshtastic.PortNumTextMessageApp),
		RequestID:     id,
		TimestampMs:   time.Now().UnixMilli(),
		WantAck:       wantAck,
		DeliveryState: store.DeliveryPending,
		CreatedAtMs:   time.Now().UnixMilli(),
	}

	q := s.destQueue(dest)
	q.mu.Lock()

	pkt := meshtastic.NewTextMessagePacket(from, dest, channel, id, text, wantAck)
	if err := s.link.Send(ctx, meshtastic.EncodeToRadio(pkt)); err != nil {
		q.mu.Unlock()
		return nil, fmt.Errorf("session: send text: %w", err)
	}

	if _, err := s.store.InsertMessage(ctx, msg); err != nil {
		s.logger.Warn("insert outbound message failed", zap.Error(err))
	}

	if wantAck {
		// Hold the destination's queue until this want-ack record is
		// resolved or times out, enforcing §4.2.4's "at most one
		// in-flight want-ack per destination" without blocking the
		// caller's own return.
		go func() {
			defer q.mu.Unlock()
			awaitCtx, cancel := context.WithTimeout(context.Background(), KindAck.Timeout())
			defer cancel()
			if _, err := s.requests.Await(awaitCtx, id, KindAck, dest); err != nil {
				s.logger.Debug("ack await ended", zap.Uint32("request_id", id), zap.Error(err))
			}
		}()
	} else {
		q.mu.Unlock()
	}

	return &msg, nil
}

func channelOrDirect(dest, channel uint32) int32 {
	if dest == broadcastNodeNum {
		return int32(channel)
	}
	return store.DirectMessageChannel
}

// BroadcastNodeNum is the reserved "everyone" destination, for use by
// callers (e.g. the automation scheduler) composing channel broadcasts.
const BroadcastNodeNum uint32 = 0xFFFFFFFF

const broadcastNodeNum = BroadcastNodeNum

// SendAdmin issues an admin command to dest. Remote (non-local) targets
// are routed through the §4.2.3 passkey lifecycle; local-node commands
// may omit the passkey.
func (s *Session) SendAdmin(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (uint32, error) {
	if !s.IsReady() {
		return 0, ErrSessionNotReady
	}

	if dest != s.LocalNodeNum() && s.passkeys != nil {
		passkey, err := s.passkeys.Get(ctx, dest, time.Now())
		if err != nil {
			return 0, fmt.Errorf("session: fetch session passkey: %w", err)
		}
		admin.SessionPasskey = passkey.Bytes
	}

	payload := meshtastic.EncodeAdminMessage(admin)
	id := newPacketID()
	from := s.LocalNodeNum()

	q := s.destQueue(dest)
	q.mu.Lock()
	defer q.mu.Unlock()

	pkt := meshtastic.NewAdminPacket(from, dest, id, payload, true)
	if err := s.link.Send(ctx, meshtastic.EncodeToRadio(pkt)); err != nil {
		return 0, fmt.Errorf("session: send admin: %w", err)
	}
	return id, nil
}

// SendAdminAwait issues an admin command and blocks for its reply,
// correlated by requestId per §4.2.2.
func (s *Session) SendAdminAwait(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (*meshtastic.AdminMessage, error) {
	id, err := s.SendAdmin(ctx, dest, admin)
	if err != nil {
		return nil, err
	}
	v, err := s.requests.Await(ctx, id, KindAdminConfig, dest)
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*meshtastic.AdminMessage)
	if !ok {
		return nil, fmt.Errorf("session: unexpected admin reply type %T", v)
	}
	return resp, nil
}

// SendTraceroute issues a traceroute request to dest and returns its
// packet id for correlation.
func (s *Session) SendTraceroute(ctx context.Context, dest, channel uint32) (uint32, error) {
	if !s.IsReady() {
		return 0, ErrSessionNotReady
	}
	id := newPacketID()
	from := s.LocalNodeNum()
	pkt := &meshtastic.ToRadio{
		Packet: &meshtastic.MeshPacket{
			From:    from,
			To:      dest,
			Channel: channel,
			ID:      id,
			WantAck: true,
			Decoded: &meshtastic.Data{
				PortNum:      meshtastic.PortNumTracerouteApp,
				WantResponse: true,
			},
		},
	}
	if err := s.link.Send(ctx, meshtastic.EncodeToRadio(pkt)); err != nil {
		return 0, fmt.Errorf("session: send traceroute: %w", err)
	}
	return id, nil
}

// handlePacket applies an inbound decoded MeshPacket: text messages are
// persisted, routing replies resolve outstanding awaiters and update
// Message delivery state, admin and traceroute replies resolve their
// awaiters by requestId or by (kind, fromNode) fallback.
func (s *Session) handlePacket(ctx context.Context, pkt *meshtastic.MeshPacket) {
	if pkt.ID == 0 {
		// spec.md §9: a zero packet id is dropped rather than assigned a
		// synthetic one.
		return
	}
	if pkt.Decoded == nil {
		return
	}

	switch pkt.Decoded.PortNum {
	case meshtastic.PortNumTextMessageApp:
		s.handleInboundText(ctx, pkt)
	case meshtastic.PortNumRoutingApp:
		s.handleRoutingReply(ctx, pkt)
	case meshtastic.PortNumAdminApp:
		s.handleAdminReply(ctx, pkt)
	case meshtastic.PortNumTracerouteApp:
		s.handleTracerouteReply(ctx, pkt)
	}
}

func (s *Session) handleInboundText(ctx context.Context, pkt *meshtastic.MeshPacket) {
	msg := store.Message{
		ID:            fmt.Sprintf("%d", pkt.ID),
		From:          pkt.From,
		To:            pkt.To,
		Text:          string(pkt.Decoded.Payload),
		Channel:       channelOrDirect(pkt.To, pkt.Channel),
		PortNum:       uint32(pkt.Decoded.PortNum),
		RequestID:     pkt.Decoded.RequestID,
		TimestampMs:   time.Now().UnixMilli(),
		RxTimeMs:      int64(pkt.RxTime) * 1000,
		HopStart:      pkt.HopStart,
		HopLimit:      pkt.HopLimit,
		RxSnr:         pkt.RxSnr,
		RxRssi:        pkt.RxRssi,
		DeliveryState: store.DeliveryDelivered,
		CreatedAtMs:   time.Now().UnixMilli(),
	}
	inserted, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		s.logger.Warn("insert inbound message failed", zap.Error(err))
		return
	}
	if inserted && s.onInboundText != nil {
		s.onInboundText(msg)
	}
}

// handleRoutingReply is the session's ACK path (§4.2.4): a ROUTING_APP
// reply's Data.RequestID names the original outbound packet, and its
// payload's error_reason distinguishes an explicit ack from a routing
// failure.
func (s *Session) handleRoutingReply(ctx context.Context, pkt *meshtastic.MeshPacket) {
	requestID := pkt.Decoded.RequestID
	if requestID == 0 {
		return
	}

	errorReason, err := meshtastic.ParseRoutingError(pkt.Decoded.Payload)
	if err != nil {
		s.logger.Debug("routing reply payload unparseable", zap.Error(err))
		errorReason = meshtastic.RoutingErrorNone
	}

	msg, lookupErr := s.store.GetMessageByRequestID(ctx, requestID)
	if lookupErr == nil && msg != nil {
		state := deliveryStateFor(msg.Channel, msg.To, pkt.From, errorReason)
		if err := s.store.UpdateMessageDeliveryState(ctx, msg.ID, state, pkt.From); err != nil {
			s.logger.Warn("update delivery state failed", zap.String("id", msg.ID), zap.Error(err))
		}
	}

	if errorReason == meshtastic.RoutingErrorNone {
		s.requests.Resolve(requestID, errorReason)
	} else {
		s.requests.Fail(requestID, fmt.Errorf("routing error %d", errorReason))
	}
}

// deliveryStateFor implements §4.2.4's transition table: direct messages
// go straight to confirmed on any ack reply; channel (broadcast) messages
// go to delivered on an implicit ack (some relaying node acking on the
// destination's behalf) and confirmed on an explicit ack from the true
// destination (replyFrom == originalTo). A nonzero errorReason is always
// a failure.
func deliveryStateFor(channel int32, originalTo, replyFrom uint32, errorReason uint32) store.DeliveryState {
	if errorReason != meshtastic.RoutingErrorNone {
		return store.DeliveryFailed
	}
	if channel == store.DirectMessageChannel {
		return store.DeliveryConfirmed
	}
	if replyFrom == originalTo {
		return store.DeliveryConfirmed
	}
	return store.DeliveryDelivered
}

func (s *Session) handleAdminReply(ctx context.Context, pkt *meshtastic.MeshPacket) {
	admin, err := meshtastic.ParseAdminMessage(pkt.Decoded.Payload)
	if err != nil {
		s.logger.Warn("parse admin reply failed", zap.Error(err))
		return
	}

	if admin.Variant == meshtastic.AdminVariantGetSessionKeyResponse {
		if ok := s.requests.ResolveByKindAndNode(KindSessionPasskey, pkt.From, admin); ok {
			return
		}
	}

	requestID := pkt.Decoded.RequestID
	if requestID != 0 && s.requests.Resolve(requestID, admin) {
		return
	}
	s.requests.ResolveByKindAndNode(KindAdminConfig, pkt.From, admin)
}

func (s *Session) handleTracerouteReply(ctx context.Context, pkt *meshtastic.MeshPacket) {
	requestID := pkt.Decoded.RequestID
	if requestID != 0 && s.requests.Resolve(requestID, pkt.Decoded.Payload) {
		return
	}
	s.requests.ResolveByKindAndNode(KindTraceroute, pkt.From, pkt.Decoded.Payload)
}
