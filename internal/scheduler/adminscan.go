package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// RemoteAdminScannerConfig configures the remote-admin-scanner task.
type RemoteAdminScannerConfig struct {
	RecheckAfter time.Duration // re-probe a node this long after its last check
	Budget       int
}

// NewRemoteAdminScannerTask probes nodes whose remote-admin capability is
// unknown or stale by issuing a get-owner admin request: a reply proves
// the node accepts remote admin from this gateway, a timeout records a
// negative result that expires after RecheckAfter.
func NewRemoteAdminScannerTask(name string, interval time.Duration, cfg RemoteAdminScannerConfig, sess Sender, st store.Store) *Task {
	return &Task{
		Name:     name,
		Interval: interval,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			nodes, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("scheduler: list nodes: %w", err)
			}

			budget := cfg.Budget
			sent := 0
			for _, n := range nodes {
				if budget > 0 && sent >= budget {
					break
				}
				age := tickStart.Sub(time.UnixMilli(n.HasRemoteAdminCheckedAt))
				if n.HasRemoteAdminCheckedAt != 0 && age < cfg.RecheckAfter {
					continue
				}
				sent++

				probe := &meshtastic.AdminMessage{Variant: meshtastic.AdminVariantGetOwnerRequest}
				_, err := sess.SendAdminAwait(ctx, n.NodeNum, probe)
				has := err == nil
				if err := st.SetHasRemoteAdmin(ctx, n.NodeNum, has, tickStart, ""); err != nil {
					continue
				}
				auditf(ctx, st, tickStart.UnixMilli(), "remote-admin-scan", "node %s remote admin: %v", store.NodeID(n.NodeNum), has)
			}
			return nil
		},
	}
}
