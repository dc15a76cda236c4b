package scheduler

import (
	"context"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// BroadcastNodeNum is the reserved "everyone" destination, mirrored from
// internal/session so task files don't need to import that package just
// for a constant.
const BroadcastNodeNum uint32 = 0xFFFFFFFF

// Sender is the slice of *session.Session that automation tasks need.
// Depending on the interface rather than the concrete type keeps this
// package testable without a live link, and mirrors §5's rule that
// every write passes through the session's single send queue: nothing
// in this package reaches for internal/link directly.
type Sender interface {
	SendText(ctx context.Context, dest, channel uint32, text string, wantAck bool) (*store.Message, error)
	SendAdmin(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (uint32, error)
	SendAdminAwait(ctx context.Context, dest uint32, admin *meshtastic.AdminMessage) (*meshtastic.AdminMessage, error)
	SendTraceroute(ctx context.Context, dest, channel uint32) (uint32, error)
}
