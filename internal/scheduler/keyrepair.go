package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// AutoKeyRepairConfig configures the auto-key-repair task.
type AutoKeyRepairConfig struct {
	MaxExchanges int  // admin round-trips attempted before giving up
	AutoPurge    bool // ignore the node once exchanges are exhausted
}

// NewAutoKeyRepairTask finds nodes flagged with a low-entropy or
// duplicate public key and attempts to shake loose a fresh key by
// round-tripping a harmless admin request (a get-owner request, since a
// reply implies the node re-ran its session handshake). After
// MaxExchanges unsuccessful attempts the node is optionally ignored so
// it stops being offered channel access.
func NewAutoKeyRepairTask(name string, interval time.Duration, cfg AutoKeyRepairConfig, sess Sender, st store.Store) *Task {
	var mu sync.Mutex
	attempts := make(map[uint32]int)

	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("scheduler: list nodes: %w", err)
			}
			for _, n := range nodes {
				if !n.KeyIsLowEntropy && !n.DuplicateKeyDetected {
					continue
				}

				mu.Lock()
				count := attempts[n.NodeNum]
				mu.Unlock()

				if cfg.MaxExchanges > 0 && count >= cfg.MaxExchanges {
					if cfg.AutoPurge {
						reason := "key security: exchanges exhausted (" + n.KeySecurityIssueDetails + ")"
						if err := st.IgnoreNode(ctx, n.NodeNum, reason); err == nil {
							auditf(ctx, st, tickStart.UnixMilli(), "auto-key-repair", "purged node %s after %d failed exchanges", store.NodeID(n.NodeNum), count)
						}
					}
					continue
				}

				probe := &meshtastic.AdminMessage{Variant: meshtastic.AdminVariantGetOwnerRequest}
				_, err := sess.SendAdminAwait(ctx, n.NodeNum, probe)

				mu.Lock()
				attempts[n.NodeNum] = count + 1
				mu.Unlock()

				auditf(ctx, st, tickStart.UnixMilli(), "auto-key-repair", "key repair exchange %d/%d -> node %s: %v", count+1, cfg.MaxExchanges, store.NodeID(n.NodeNum), errOrOK(err))
			}
			return nil
		},
	}
}
