package session

import "context"

// ForwardClientFrame writes an already-encoded ToRadio frame straight to
// the physical transport on behalf of a virtual-device client (§4.5
// Funnel). The virtual-device server is responsible for the
// allowAdminCommands policy check before calling this: once a frame
// reaches here it is written as-is, the same way a directly-connected
// phone app's bytes would be.
func (s *Session) ForwardClientFrame(ctx context.Context, raw []byte) error {
	if !s.IsReady() {
		return ErrSessionNotReady
	}
	return s.link.Send(ctx, raw)
}

// WithBroadcastCallback registers a callback fired for every inbound
// FromRadio frame the session observes after capture completes — mesh
// packets, node/channel updates, admin responses — so the virtual-device
// server can fan them out to its connected clients (§4.5 Broadcast).
func WithBroadcastCallback(fn func(frameBytes []byte)) Option {
	return func(s *Session) { s.onBroadcastFrame = fn }
}
