package session

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// captureState is the §4.2.1 state machine's current phase.
type captureState int

const (
	stateHandshake captureState = iota
	stateCapturing
	stateReady
	stateDisconnected
)

// captureIdleTimeout is how long capture waits after the last useful
// record before giving up on the sentinel and transitioning to Ready.
const captureIdleTimeout = 30 * time.Second

// newConfigID returns a random non-zero 32-bit id for a want-config
// handshake, per §4.2.1 step 1.
func newConfigID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}

// beginCapture resets capture state for a new connection and returns the
// want-config payload to send.
func (s *Session) beginCapture() []byte {
	s.mu.Lock()
	s.state = stateCapturing
	s.configID = newConfigID()
	s.readyFired = false
	s.mu.Unlock()

	s.resetCaptureTimer()
	return meshtastic.EncodeToRadio(meshtastic.NewWantConfigPacket(s.configID))
}

func (s *Session) resetCaptureTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captureTimer != nil {
		s.captureTimer.Stop()
	}
	s.captureTimer = time.AfterFunc(captureIdleTimeout, s.onCaptureIdle)
}

// onCaptureIdle fires the §4.2.1 "no sentinel within 30s" fallback.
func (s *Session) onCaptureIdle() {
	s.mu.Lock()
	if s.state != stateCapturing {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Warn("config-complete sentinel not received within idle window, proceeding to ready")
	s.transitionToReady()
}

// handleFromRadio dispatches one decoded inbound record during capture or
// steady-state operation, applying it to the mesh state store.
func (s *Session) handleFromRadio(ctx context.Context, fr *meshtastic.FromRadio) {
	switch {
	case fr.MyInfo != nil:
		s.mu.Lock()
		s.localNodeNum = fr.MyInfo.MyNodeNum
		s.mu.Unlock()
		s.resetCaptureTimer()

	case fr.NodeInfo != nil:
		s.applyNodeInfo(ctx, fr.NodeInfo)
		s.resetCaptureTimer()

	case fr.Channel != nil:
		s.applyChannel(ctx, fr.Channel)
		s.resetCaptureTimer()

	case fr.Config != nil || fr.ModuleConfig != nil:
		// Opaque config fragments are not normalized into store columns;
		// they are retained in memory, and the virtual-device replay
		// re-sends them to its clients as captured.
		s.mu.Lock()
		if fr.Config != nil {
			s.configFragments[fr.Config.Variant] = fr.Config
		}
		if fr.ModuleConfig != nil {
			s.moduleConfigFragments[fr.ModuleConfig.Variant] = fr.ModuleConfig
		}
		s.mu.Unlock()
		s.resetCaptureTimer()

	case fr.Metadata != nil:
		s.mu.Lock()
		s.deviceMetadata = fr.Metadata
		s.mu.Unlock()
		s.resetCaptureTimer()

	case fr.QueueStatus != nil:
		s.resetCaptureTimer()

	case fr.ConfigCompleteID != 0:
		s.onConfigComplete(fr.ConfigCompleteID)

	case fr.Packet != nil:
		s.handlePacket(ctx, fr.Packet)
	}
}

func (s *Session) onConfigComplete(completeID uint32) {
	s.mu.Lock()
	expected := s.configID
	state := s.state
	s.mu.Unlock()

	if state != stateCapturing || completeID != expected {
		return
	}
	s.transitionToReady()
}

// transitionToReady fires Ready exactly once per connection, guaranteeing
// every capture-batch update lands in the store before the callback runs
// (the caller of handleFromRadio always applies state synchronously, so
// by the time we get here every queued FromRadio has already been
// processed).
func (s *Session) transitionToReady() {
	s.mu.Lock()
	if s.captureTimer != nil {
		s.captureTimer.Stop()
	}
	if s.state != stateCapturing || s.readyFired {
		s.mu.Unlock()
		return
	}
	s.state = stateReady
	s.readyFired = true
	onReady := s.onReady
	s.mu.Unlock()

	s.logger.Info("capture complete, session ready")
	if onReady != nil {
		onReady()
	}
}

func (s *Session) applyNodeInfo(ctx context.Context, ni *meshtastic.NodeInfo) {
	n := store.Node{
		NodeNum:     ni.Num,
		HopsAway:    ni.Hops,
		SNR:         ni.Snr,
		LastHeard:   int64(ni.LastHeard),
		LastChannel: ni.Channel,
		UpdatedAt:   time.Now().UnixMilli(),
	}
	if ni.User != nil {
		n.LongName = ni.User.LongName
		n.ShortName = ni.User.ShortName
		n.HwModel = ni.User.HwModel
		n.Role = ni.User.Role
		n.PublicKey = ni.User.PublicKey
	}
	if ni.DeviceMetrics != nil {
		n.RebootCount = 0 // device metrics carry no reboot count; MyNodeInfo does
	}
	if err := s.store.UpsertNode(ctx, n); err != nil {
		s.logger.Warn("upsert node from capture failed", zap.Uint32("node", ni.Num), zap.Error(err))
		return
	}
	if ni.Position != nil {
		pos := store.NodePosition{
			Latitude:      ni.Position.Latitude(),
			Longitude:     ni.Position.Longitude(),
			Altitude:      float64(ni.Position.Altitude),
			GPSAccuracy:   ni.Position.GpsAccuracy,
			HDOP:          ni.Position.HDOP,
			Channel:       ni.Channel,
			TimestampMs:   time.Now().UnixMilli(),
			PrecisionBits: precisionBitsPtr(ni.Position),
		}
		if _, err := s.store.ApplyPosition(ctx, ni.Num, pos, time.Now()); err != nil {
			s.logger.Warn("apply position from capture failed", zap.Uint32("node", ni.Num), zap.Error(err))
		}
	}
}

// precisionBitsPtr always returns a non-nil pointer (spec.md §9 Open
// Question): the wire decoder produces a concrete uint32, so an absent
// precision field and a reported precision of exactly 0 are not
// distinguished; every decoded Position counts as carrying precision
// metadata.
func precisionBitsPtr(p *meshtastic.Position) *uint32 {
	v := p.PrecisionBits
	return &v
}

func (s *Session) applyChannel(ctx context.Context, ch *meshtastic.ChannelSettings) {
	c := store.Channel{Index: ch.Index, Role: ch.Role}
	if ch.Settings != nil {
		c.Name = ch.Settings.Name
		c.Psk = ch.Settings.Psk
		c.UplinkEnabled = ch.Settings.UplinkEnabled
		c.DownlinkEnabled = ch.Settings.DownlinkEnabled
	}
	if err := s.store.UpsertChannel(ctx, c); err != nil {
		s.logger.Warn("upsert channel from capture failed", zap.Uint32("index", ch.Index), zap.Error(err))
	}
}
